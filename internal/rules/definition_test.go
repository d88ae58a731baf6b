package rules

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/digital-land/green-box-data-quality/internal/expectation"
)

func TestResolveHandlesEveryKind(t *testing.T) {
	for _, kind := range expectation.Kinds() {
		_, err := decodeExpectation(kind, &yaml.Node{})
		if err != nil {
			t.Fatalf("decodeExpectation(%q) error = %v", kind, err)
		}
	}
}

func TestResolveRejectsUnknownKind(t *testing.T) {
	def := Definition{Name: "mystery", Kind: "check_everything", Severity: expectation.SeverityWarn}
	_, err := Resolve([]Definition{def})
	var configErr *expectation.ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("error = %v", err)
	}
	if configErr.Rule != "mystery" || !strings.Contains(configErr.Reason, "unknown rule kind") {
		t.Fatalf("config error = %+v", configErr)
	}
}

func TestResolveRejectsUnknownParams(t *testing.T) {
	var def Definition
	if err := yaml.Unmarshal([]byte("name: rows\nkind: row_count_range\nseverity: warn\nparams: {table: t, min: 1, max: 2, maximum: 3}\n"), &def); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	_, err := Resolve([]Definition{def})
	if !errors.Is(err, expectation.ErrConfiguration) || !strings.Contains(err.Error(), "maximum") {
		t.Fatalf("error = %v", err)
	}
}

func TestResolveValidatesEveryRuleBeforeReturning(t *testing.T) {
	good, err := NewDefinition("rows", expectation.KindRowCountRange, expectation.SeverityWarn, expectation.RowCountRange{Table: "t", Min: 1, Max: 2})
	if err != nil {
		t.Fatalf("NewDefinition() error = %v", err)
	}
	bad, err := NewDefinition("cols", expectation.KindColumnSetExistence, expectation.SeverityWarn, map[string]any{"table": "t"})
	if err != nil {
		t.Fatalf("NewDefinition() error = %v", err)
	}

	checks, err := Resolve([]Definition{good, bad})
	if err == nil {
		t.Fatal("expected validation error for empty columns")
	}
	if checks != nil {
		t.Fatalf("checks = %v, want nil", checks)
	}
}

func TestResolveRejectsDuplicateNames(t *testing.T) {
	def, err := NewDefinition("rows", expectation.KindRowCountRange, expectation.SeverityWarn, expectation.RowCountRange{Table: "t", Min: 1, Max: 2})
	if err != nil {
		t.Fatalf("NewDefinition() error = %v", err)
	}
	if _, err := Resolve([]Definition{def, def}); !errors.Is(err, expectation.ErrConfiguration) {
		t.Fatalf("error = %v, want %v", err, expectation.ErrConfiguration)
	}
}

func TestResolveDefaultsExistenceChecksToStrict(t *testing.T) {
	def, err := NewDefinition("tables", expectation.KindTableSetExistence, expectation.SeverityWarn, map[string]any{"tables": []string{"a"}})
	if err != nil {
		t.Fatalf("NewDefinition() error = %v", err)
	}
	checks, err := Resolve([]Definition{def})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !checks[0].Expectation.(expectation.TableSetExistence).Strict {
		t.Fatal("expected strict default")
	}
}

func TestResolveAcceptsSeverityAliases(t *testing.T) {
	def, err := NewDefinition("rows", expectation.KindRowCountRange, "error", expectation.RowCountRange{Table: "t", Min: 1, Max: 2})
	if err != nil {
		t.Fatalf("NewDefinition() error = %v", err)
	}
	checks, err := Resolve([]Definition{def})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if checks[0].Severity != expectation.SeverityRaiseError {
		t.Fatalf("severity = %s", checks[0].Severity)
	}
}
