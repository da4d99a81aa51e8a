package diagnosis

import (
	"fmt"
	"strings"
)

// ConditionMode selects how a Condition combines its expected results.
type ConditionMode string

const (
	// ModeAll is satisfied when every expected result is in the store.
	ModeAll ConditionMode = "ALL"
	// ModeAny is satisfied when at least one expected result is in the store.
	ModeAny ConditionMode = "ANY"
	// ModeNotAll is satisfied unless every expected result is in the store.
	ModeNotAll ConditionMode = "NOT_ALL"
	// ModeNotAny is satisfied only when none of the expected results are in
	// the store.
	ModeNotAny ConditionMode = "NOT_ANY"
)

// Condition is a predicate over the diagnoses recorded so far. Branch nodes
// use it to decide whether their child sequence executes.
type Condition struct {
	Mode    ConditionMode
	Results []Result
}

// OnAll builds an ALL condition.
func OnAll(results ...Result) Condition {
	return Condition{Mode: ModeAll, Results: results}
}

// OnAny builds an ANY condition.
func OnAny(results ...Result) Condition {
	return Condition{Mode: ModeAny, Results: results}
}

// OnNotAll builds a NOT_ALL condition.
func OnNotAll(results ...Result) Condition {
	return Condition{Mode: ModeNotAll, Results: results}
}

// OnNotAny builds a NOT_ANY condition.
func OnNotAny(results ...Result) Condition {
	return Condition{Mode: ModeNotAny, Results: results}
}

// Check evaluates the condition against the store.
func (c Condition) Check(store *Store) bool {
	all := true
	any := false
	for _, r := range c.Results {
		if store.Has(r) {
			any = true
		} else {
			all = false
		}
	}
	switch c.Mode {
	case ModeAll:
		return all
	case ModeAny:
		return any
	case ModeNotAll:
		return !all
	case ModeNotAny:
		return !any
	default:
		return false
	}
}

// String renders the condition for branch records, e.g. "ANY(X, Y)".
func (c Condition) String() string {
	names := make([]string, len(c.Results))
	for i, r := range c.Results {
		names[i] = string(r)
	}
	return fmt.Sprintf("%s(%s)", c.Mode, strings.Join(names, ", "))
}
