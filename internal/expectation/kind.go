package expectation

import (
	"fmt"
	"strings"
)

// Kind discriminates the expectation variants in rule definitions and
// persisted responses.
type Kind string

const (
	KindTableSetExistence       Kind = "table_set_existence"
	KindColumnSetExistence      Kind = "column_set_existence"
	KindRowCountRange           Kind = "row_count_range"
	KindGroupedRowCountRange    Kind = "grouped_row_count_range"
	KindValueSetMembership      Kind = "value_set_membership"
	KindFieldUniqueness         Kind = "field_uniqueness"
	KindGeometryValidity        Kind = "geometry_validity"
	KindDocumentKeyMembership   Kind = "document_key_membership"
	KindDocumentValueMembership Kind = "document_value_membership"
	KindScalarFieldRange        Kind = "scalar_field_range"
	KindCustomQueryEquality     Kind = "custom_query_equality"
)

var allKinds = []Kind{
	KindTableSetExistence,
	KindColumnSetExistence,
	KindRowCountRange,
	KindGroupedRowCountRange,
	KindValueSetMembership,
	KindFieldUniqueness,
	KindGeometryValidity,
	KindDocumentKeyMembership,
	KindDocumentValueMembership,
	KindScalarFieldRange,
	KindCustomQueryEquality,
}

func Kinds() []Kind {
	return append([]Kind(nil), allKinds...)
}

func ParseKind(raw string) (Kind, error) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, kind := range allKinds {
		if kind == normalized {
			return kind, nil
		}
	}
	return "", &ConfigError{Reason: fmt.Sprintf("unknown rule kind %q", raw)}
}

type Severity string

const (
	SeverityWarn       Severity = "warn"
	SeverityRaiseError Severity = "raise_error"
)

func ParseSeverity(raw string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "warn", "warning":
		return SeverityWarn, nil
	case "raise_error", "error":
		return SeverityRaiseError, nil
	default:
		return "", &ConfigError{Reason: fmt.Sprintf("invalid severity %q (valid: warn, raise_error)", raw)}
	}
}

func (s Severity) Valid() bool {
	return s == SeverityWarn || s == SeverityRaiseError
}

// Escalates reports whether a failure at this severity fails the run.
func (s Severity) Escalates() bool {
	return s == SeverityRaiseError
}
