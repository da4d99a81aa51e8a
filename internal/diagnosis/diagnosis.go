// Package diagnosis implements the diagnosis engine: user-declared result
// enums, the Diagnosis value type, the per-run store, and the execution
// contract for phase-level and test-level diagnosers.
package diagnosis

import (
	"errors"
	"fmt"
	"time"
)

// Result is one member of a user-defined diagnosis result enum. Declare a
// domain's results as typed constants:
//
//	const (
//		BatteryLow      diagnosis.Result = "BATTERY_LOW"
//		BatteryHealthy  diagnosis.Result = "BATTERY_HEALTHY"
//	)
//
// Result string values must be globally unique across every enum used by the
// diagnosers attached to a single test; CheckForDuplicateResults enforces
// this before the test is allowed to run.
type Result string

// Priority indicates how important a diagnosis is relative to others with the
// same component.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

// Diagnosis is an immutable higher-level pass/fail-relevant signal derived
// from phase or test records.
type Diagnosis struct {
	// Result is the enum member this diagnosis reports.
	Result Result `json:"result"`
	// Description is the human-readable explanation.
	Description string `json:"description"`
	// Component optionally names the DUT component this applies to.
	Component string `json:"component,omitempty"`
	// Priority of the diagnosis.
	Priority Priority `json:"priority,omitempty"`
	// IsFailure marks this diagnosis as failing the phase/test.
	IsFailure bool `json:"is_failure"`
	// IsInternal marks this diagnosis as phase-local bookkeeping; internal
	// diagnoses never propagate to the test record's diagnosis list and are
	// illegal at test scope.
	IsInternal bool `json:"is_internal"`
	// TimeMillis is when the diagnosis was made.
	TimeMillis int64 `json:"time_millis"`
}

// Sentinel errors for diagnoser misuse. Configuration-time errors are fatal
// before a test runs; ErrInvalidDiagnosis surfaces at run time as a phase or
// test ERROR.
var (
	ErrInvalidDiagnosis = errors.New("invalid diagnosis")
	ErrDuplicateResult  = errors.New("duplicate diagnosis result value")
	ErrDiagnoser        = errors.New("malformed diagnoser")
)

// New creates a Diagnosis. Internal diagnoses can never be failures; the two
// flags are mutually exclusive.
func New(result Result, description string, opts ...Option) (Diagnosis, error) {
	d := Diagnosis{
		Result:      result,
		Description: description,
		Priority:    PriorityNormal,
		TimeMillis:  time.Now().UnixMilli(),
	}
	for _, opt := range opts {
		opt(&d)
	}
	if d.IsFailure && d.IsInternal {
		return Diagnosis{}, fmt.Errorf("%w: diagnosis %q cannot be both internal and a failure", ErrInvalidDiagnosis, result)
	}
	return d, nil
}

// MustNew is New for statically-known-good diagnoses; it panics on misuse.
func MustNew(result Result, description string, opts ...Option) Diagnosis {
	d, err := New(result, description, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Option customizes a Diagnosis under construction.
type Option func(*Diagnosis)

// WithComponent sets the component name.
func WithComponent(component string) Option {
	return func(d *Diagnosis) { d.Component = component }
}

// WithPriority sets the priority.
func WithPriority(p Priority) Option {
	return func(d *Diagnosis) { d.Priority = p }
}

// AsFailure marks the diagnosis as a failure.
func AsFailure() Option {
	return func(d *Diagnosis) { d.IsFailure = true }
}

// AsInternal marks the diagnosis as phase-local only.
func AsInternal() Option {
	return func(d *Diagnosis) { d.IsInternal = true }
}
