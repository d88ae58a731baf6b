package expectation

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrQuery         = errors.New("query error")
)

// ConfigError is a rule that cannot be resolved or validated. It is raised
// before any check runs.
type ConfigError struct {
	Rule   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%s: rule %q: %s", ErrConfiguration, e.Rule, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// QueryError is a failure of the dataset runner while evaluating one check.
type QueryError struct {
	Rule string
	Kind Kind
	SQL  string
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: rule %q (%s): %v", ErrQuery, e.Rule, e.Kind, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{ErrQuery, e.Err}
}
