package balance

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers can
// branch with errors.Is.
var (
	// ErrInvalidData is returned for malformed unit or center records.
	ErrInvalidData = errors.New("invalid input data")

	// ErrInvalidConfig is returned when the configuration cannot define a target.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvariant is returned when the ledger detects an inconsistent state.
	ErrInvariant = errors.New("invariant violation")
)

// DataError identifies the record that failed validation.
type DataError struct {
	Kind   string // "unit" or "center"
	ID     string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.ID, e.Reason)
}

func (e *DataError) Unwrap() error { return ErrInvalidData }

// ConfigError names the offending configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// InvariantError aborts a run whose ledger no longer satisfies its invariants.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string { return "invariant violation: " + e.Reason }

func (e *InvariantError) Unwrap() error { return ErrInvariant }

func invariantf(format string, args ...any) error {
	return &InvariantError{Reason: fmt.Sprintf(format, args...)}
}
