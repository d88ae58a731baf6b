package rules

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/digital-land/green-box-data-quality/internal/expectation"
)

// Suite is a rules document. Rules can be listed explicitly or described per
// table; both forms expand into the same ordered definitions.
type Suite struct {
	Collection      string            `yaml:"collection"`
	Dataset         string            `yaml:"dataset"`
	DefaultSeverity string            `yaml:"default_severity"`
	Rules           []Definition      `yaml:"rules"`
	Tables          []TableSpec       `yaml:"tables"`
	CustomQueries   []CustomQuerySpec `yaml:"custom_queries"`
}

type TableSpec struct {
	Name          string      `yaml:"name"`
	MinRows       *int64      `yaml:"min_rows"`
	MaxRows       *int64      `yaml:"max_rows"`
	Columns       []string    `yaml:"columns"`
	StrictColumns *bool       `yaml:"strict_columns"`
	KeyFields     []string    `yaml:"key_fields"`
	Severity      string      `yaml:"severity"`
	Fields        []FieldSpec `yaml:"fields"`
}

type FieldSpec struct {
	Name             string                   `yaml:"name"`
	Unique           bool                     `yaml:"unique"`
	AllowedValues    []any                    `yaml:"allowed_values"`
	RequireAllValues bool                     `yaml:"require_all_values"`
	RowCountPerValue []expectation.CountRange `yaml:"row_count_per_value"`
	MinValue         *float64                 `yaml:"min_value"`
	MaxValue         *float64                 `yaml:"max_value"`
	Geometry         bool                     `yaml:"geometry"`
	JSONKeys         []string                 `yaml:"json_keys"`
	Severity         string                   `yaml:"severity"`
}

type CustomQuerySpec struct {
	Name          string                      `yaml:"name"`
	Query         string                      `yaml:"query"`
	Expected      *expectation.ExpectedResult `yaml:"expected"`
	ExpectedValue any                         `yaml:"expected_value"`
	Severity      string                      `yaml:"severity"`
}

func Load(path string) (Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Suite{}, &expectation.ConfigError{Reason: fmt.Sprintf("read rules file: %v", err)}
	}
	suite, err := Parse(data)
	if err != nil {
		return Suite{}, fmt.Errorf("%s: %w", path, err)
	}
	return suite, nil
}

// Parse decodes a YAML (or JSON) rules document. Unknown keys are rejected.
func Parse(data []byte) (Suite, error) {
	var suite Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&suite); err != nil {
		return Suite{}, &expectation.ConfigError{Reason: fmt.Sprintf("parse rules: %v", err)}
	}
	return suite, nil
}

// Definitions expands the document in order: explicit rules, then table
// blocks, then custom queries. Missing severities take DefaultSeverity.
func (s Suite) Definitions() ([]Definition, error) {
	var defs []Definition
	add := func(name string, kind expectation.Kind, severity string, params any) error {
		sev, err := s.severity(name, severity)
		if err != nil {
			return err
		}
		def, err := NewDefinition(name, kind, sev, params)
		if err != nil {
			return &expectation.ConfigError{Rule: name, Reason: err.Error()}
		}
		defs = append(defs, def)
		return nil
	}

	for _, rule := range s.Rules {
		sev, err := s.severity(rule.Name, string(rule.Severity))
		if err != nil {
			return nil, err
		}
		rule.Severity = sev
		defs = append(defs, rule)
	}

	for _, table := range s.Tables {
		if strings.TrimSpace(table.Name) == "" {
			return nil, &expectation.ConfigError{Reason: "table name is required"}
		}
		tableSeverity := firstNonEmpty(table.Severity)

		if table.MinRows != nil || table.MaxRows != nil {
			params := expectation.RowCountRange{Table: table.Name, Min: 0, Max: math.MaxInt64}
			if table.MinRows != nil {
				params.Min = *table.MinRows
			}
			if table.MaxRows != nil {
				params.Max = *table.MaxRows
			}
			if err := add(table.Name+":row_count", expectation.KindRowCountRange, tableSeverity, params); err != nil {
				return nil, err
			}
		}
		if len(table.Columns) > 0 {
			strict := true
			if table.StrictColumns != nil {
				strict = *table.StrictColumns
			}
			params := expectation.ColumnSetExistence{Table: table.Name, Columns: table.Columns, Strict: strict}
			if err := add(table.Name+":columns", expectation.KindColumnSetExistence, tableSeverity, params); err != nil {
				return nil, err
			}
		}

		for _, field := range table.Fields {
			if err := expandField(table, field, add); err != nil {
				return nil, err
			}
		}
	}

	for _, custom := range s.CustomQueries {
		params := expectation.CustomQueryEquality{Query: custom.Query}
		switch {
		case custom.Expected != nil:
			params.Expected = *custom.Expected
		case custom.ExpectedValue != nil:
			params.Expected = expectation.ExpectedResult{Rows: [][]any{{custom.ExpectedValue}}}
		default:
			return nil, &expectation.ConfigError{Rule: custom.Name, Reason: "expected or expected_value is required"}
		}
		if err := add(custom.Name, expectation.KindCustomQueryEquality, custom.Severity, params); err != nil {
			return nil, err
		}
	}

	return defs, nil
}

type addFunc func(name string, kind expectation.Kind, severity string, params any) error

func expandField(table TableSpec, field FieldSpec, add addFunc) error {
	if strings.TrimSpace(field.Name) == "" {
		return &expectation.ConfigError{Reason: fmt.Sprintf("table %q: field name is required", table.Name)}
	}
	prefix := table.Name + "." + field.Name + ":"
	severity := firstNonEmpty(field.Severity, table.Severity)
	refFields := table.KeyFields

	if field.Unique {
		params := expectation.FieldUniqueness{Table: table.Name, Fields: []string{field.Name}}
		if err := add(prefix+"unique", expectation.KindFieldUniqueness, severity, params); err != nil {
			return err
		}
	}
	if len(field.AllowedValues) > 0 {
		params := expectation.ValueSetMembership{
			Table:               table.Name,
			Field:               field.Name,
			Values:              field.AllowedValues,
			RequireFullCoverage: field.RequireAllValues,
		}
		if err := add(prefix+"allowed_values", expectation.KindValueSetMembership, severity, params); err != nil {
			return err
		}
	}
	if len(field.RowCountPerValue) > 0 {
		params := expectation.GroupedRowCountRange{Table: table.Name, Field: field.Name, Ranges: field.RowCountPerValue}
		if err := add(prefix+"row_count_per_value", expectation.KindGroupedRowCountRange, severity, params); err != nil {
			return err
		}
	}
	if field.MinValue != nil || field.MaxValue != nil {
		params := expectation.ScalarFieldRange{Table: table.Name, Field: field.Name, Min: -math.MaxFloat64, Max: math.MaxFloat64, RefFields: refFields}
		if field.MinValue != nil {
			params.Min = *field.MinValue
		}
		if field.MaxValue != nil {
			params.Max = *field.MaxValue
		}
		if err := add(prefix+"range", expectation.KindScalarFieldRange, severity, params); err != nil {
			return err
		}
	}
	if field.Geometry {
		params := expectation.GeometryValidity{Table: table.Name, Field: field.Name, RefFields: refFields}
		if err := add(prefix+"geometry", expectation.KindGeometryValidity, severity, params); err != nil {
			return err
		}
	}
	if len(field.JSONKeys) > 0 {
		params := expectation.DocumentKeyMembership{Table: table.Name, Field: field.Name, Keys: field.JSONKeys, RefFields: refFields}
		if err := add(prefix+"json_keys", expectation.KindDocumentKeyMembership, severity, params); err != nil {
			return err
		}
	}
	return nil
}

func (s Suite) severity(rule, raw string) (expectation.Severity, error) {
	raw = firstNonEmpty(raw, s.DefaultSeverity)
	if raw == "" {
		return "", &expectation.ConfigError{Rule: rule, Reason: "severity is required (set it on the rule or as default_severity)"}
	}
	severity, err := expectation.ParseSeverity(raw)
	if err != nil {
		return "", withRule(err, rule)
	}
	return severity, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
