// Package phase defines the building blocks of a test: the phase descriptor
// wrapping a user function with metadata, and the node tree (sequences,
// groups, subtests, branches, checkpoints) the executor traverses.
package phase

import "fmt"

// Result is what a phase function returns to steer execution.
type Result string

const (
	// ResultContinue proceeds to the next phase. A phase returning the zero
	// value is treated as CONTINUE.
	ResultContinue Result = "CONTINUE"
	// ResultRepeat re-executes the same phase, subject to the repeat limit.
	ResultRepeat Result = "REPEAT"
	// ResultSkip marks the phase SKIP and discards its measurements.
	ResultSkip Result = "SKIP"
	// ResultStop ends the whole test after this phase finalizes.
	ResultStop Result = "STOP"
	// ResultFailAndContinue marks the phase FAIL but keeps the test going.
	ResultFailAndContinue Result = "FAIL_AND_CONTINUE"
	// ResultFailSubtest fails the enclosing subtest; remaining subtest phases
	// are skipped rather than aborted. Only legal inside a subtest.
	ResultFailSubtest Result = "FAIL_SUBTEST"
)

// Valid reports whether r is a recognized result value.
func (r Result) Valid() bool {
	switch r {
	case ResultContinue, ResultRepeat, ResultSkip, ResultStop,
		ResultFailAndContinue, ResultFailSubtest:
		return true
	}
	return false
}

// Normalize maps the zero value to CONTINUE and rejects anything unknown.
func (r Result) Normalize() (Result, error) {
	if r == "" {
		return ResultContinue, nil
	}
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidResult, string(r))
	}
	return r, nil
}
