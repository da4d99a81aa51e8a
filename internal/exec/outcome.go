// Package exec contains the execution machinery: the per-phase executor with
// timeout and repeat handling, the mutable phase and test state, and the tree
// traversal that turns a phase node tree into a finalized test record.
package exec

import (
	"fmt"

	"teststand/internal/phase"
)

type outcomeKind int

const (
	kindResult outcomeKind = iota
	kindTimeout
	kindException
	kindKilled
)

// PhaseExecutionOutcome describes how one phase attempt terminated: a
// returned result, a timeout, a captured panic or error, or an external
// kill.
type PhaseExecutionOutcome struct {
	kind   outcomeKind
	result phase.Result
	err    error
}

// ResultOutcome wraps a normalized phase result.
func ResultOutcome(r phase.Result) PhaseExecutionOutcome {
	return PhaseExecutionOutcome{kind: kindResult, result: r}
}

// TimeoutOutcome marks an attempt that exceeded its deadline.
func TimeoutOutcome() PhaseExecutionOutcome {
	return PhaseExecutionOutcome{kind: kindTimeout}
}

// ExceptionOutcome wraps a captured panic or error from the phase body.
func ExceptionOutcome(err error) PhaseExecutionOutcome {
	return PhaseExecutionOutcome{kind: kindException, err: err}
}

// KilledOutcome marks an attempt terminated by an external stop.
func KilledOutcome() PhaseExecutionOutcome {
	return PhaseExecutionOutcome{kind: kindKilled}
}

// Result returns the phase result, if the attempt finished with one.
func (o PhaseExecutionOutcome) Result() (phase.Result, bool) {
	if o.kind != kindResult {
		return "", false
	}
	return o.result, true
}

// Err returns the captured error, if any.
func (o PhaseExecutionOutcome) Err() error {
	return o.err
}

// IsTimeout reports whether the attempt exceeded its deadline.
func (o PhaseExecutionOutcome) IsTimeout() bool {
	return o.kind == kindTimeout
}

// RaisedException reports whether the body panicked or errored.
func (o PhaseExecutionOutcome) RaisedException() bool {
	return o.kind == kindException
}

// IsKilled reports whether the attempt was externally stopped.
func (o PhaseExecutionOutcome) IsKilled() bool {
	return o.kind == kindKilled
}

// IsTerminal reports whether the attempt ends the whole test: an exception,
// a timeout, a kill, or an explicit STOP.
func (o PhaseExecutionOutcome) IsTerminal() bool {
	switch o.kind {
	case kindTimeout, kindException, kindKilled:
		return true
	case kindResult:
		return o.result == phase.ResultStop
	}
	return false
}

// IsRepeat reports whether the attempt asked to run again.
func (o PhaseExecutionOutcome) IsRepeat() bool {
	return o.kind == kindResult && o.result == phase.ResultRepeat
}

// IsSkip reports whether the attempt asked to be skipped.
func (o PhaseExecutionOutcome) IsSkip() bool {
	return o.kind == kindResult && o.result == phase.ResultSkip
}

// IsFailAndContinue reports whether the attempt failed but the test goes on.
func (o PhaseExecutionOutcome) IsFailAndContinue() bool {
	return o.kind == kindResult && o.result == phase.ResultFailAndContinue
}

// IsFailSubtest reports whether the attempt failed the enclosing subtest.
func (o PhaseExecutionOutcome) IsFailSubtest() bool {
	return o.kind == kindResult && o.result == phase.ResultFailSubtest
}

// String renders the outcome for the phase record's result field.
func (o PhaseExecutionOutcome) String() string {
	switch o.kind {
	case kindTimeout:
		return "TIMEOUT"
	case kindException:
		return fmt.Sprintf("ERROR(%v)", o.err)
	case kindKilled:
		return "KILLED"
	default:
		return string(o.result)
	}
}
