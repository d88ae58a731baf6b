package rules

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/digital-land/green-box-data-quality/internal/expectation"
)

// Definition is one rule: a kind tag, its parameters and a severity. Params
// stays an undecoded YAML node until Resolve knows which type to decode into.
type Definition struct {
	Name     string               `yaml:"name"`
	Kind     expectation.Kind     `yaml:"kind"`
	Severity expectation.Severity `yaml:"severity,omitempty"`
	Params   yaml.Node            `yaml:"params"`
}

// NewDefinition builds a definition from typed parameters, for callers that
// assemble rules in code.
func NewDefinition(name string, kind expectation.Kind, severity expectation.Severity, params any) (Definition, error) {
	def := Definition{Name: name, Kind: kind, Severity: severity}
	if params != nil {
		if err := def.Params.Encode(params); err != nil {
			return Definition{}, fmt.Errorf("encode params for rule %q: %w", name, err)
		}
	}
	return def, nil
}

// Resolve turns definitions into validated checks. Every definition is
// resolved before any is returned, so one bad rule rejects the whole set.
func Resolve(defs []Definition) ([]expectation.Check, error) {
	checks := make([]expectation.Check, 0, len(defs))
	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if _, ok := seen[def.Name]; ok {
			return nil, &expectation.ConfigError{Rule: def.Name, Reason: "duplicate rule name"}
		}
		seen[def.Name] = struct{}{}

		check, err := resolveDefinition(def)
		if err != nil {
			return nil, err
		}
		checks = append(checks, check)
	}
	return checks, nil
}

func resolveDefinition(def Definition) (expectation.Check, error) {
	if strings.TrimSpace(def.Name) == "" {
		return expectation.Check{}, &expectation.ConfigError{Reason: "rule name is required"}
	}
	kind, err := expectation.ParseKind(string(def.Kind))
	if err != nil {
		return expectation.Check{}, withRule(err, def.Name)
	}
	severity, err := expectation.ParseSeverity(string(def.Severity))
	if err != nil {
		return expectation.Check{}, withRule(err, def.Name)
	}

	exp, err := decodeExpectation(kind, &def.Params)
	if err != nil {
		return expectation.Check{}, &expectation.ConfigError{Rule: def.Name, Reason: err.Error()}
	}

	check := expectation.Check{Name: def.Name, Severity: severity, Expectation: exp}
	if err := check.Validate(); err != nil {
		return expectation.Check{}, err
	}
	return check, nil
}

// decodeExpectation is the single dispatch from kind tag to parameter type.
func decodeExpectation(kind expectation.Kind, params *yaml.Node) (expectation.Expectation, error) {
	switch kind {
	case expectation.KindTableSetExistence:
		return decodeAs(params, expectation.TableSetExistence{Strict: true})
	case expectation.KindColumnSetExistence:
		return decodeAs(params, expectation.ColumnSetExistence{Strict: true})
	case expectation.KindRowCountRange:
		return decodeAs(params, expectation.RowCountRange{})
	case expectation.KindGroupedRowCountRange:
		return decodeAs(params, expectation.GroupedRowCountRange{})
	case expectation.KindValueSetMembership:
		return decodeAs(params, expectation.ValueSetMembership{})
	case expectation.KindFieldUniqueness:
		return decodeAs(params, expectation.FieldUniqueness{})
	case expectation.KindGeometryValidity:
		return decodeAs(params, expectation.GeometryValidity{})
	case expectation.KindDocumentKeyMembership:
		return decodeAs(params, expectation.DocumentKeyMembership{})
	case expectation.KindDocumentValueMembership:
		return decodeAs(params, expectation.DocumentValueMembership{})
	case expectation.KindScalarFieldRange:
		return decodeAs(params, expectation.ScalarFieldRange{})
	case expectation.KindCustomQueryEquality:
		return decodeAs(params, expectation.CustomQueryEquality{})
	}
	return nil, fmt.Errorf("unknown rule kind %q", kind)
}

// decodeAs decodes params over defaults, rejecting keys the type does not
// declare.
func decodeAs[T expectation.Expectation](params *yaml.Node, defaults T) (expectation.Expectation, error) {
	value := defaults
	if params == nil || params.Kind == 0 {
		return value, nil
	}
	raw, err := yaml.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return value, nil
}

func withRule(err error, rule string) error {
	var configErr *expectation.ConfigError
	if errors.As(err, &configErr) {
		return &expectation.ConfigError{Rule: rule, Reason: configErr.Reason}
	}
	return &expectation.ConfigError{Rule: rule, Reason: err.Error()}
}
