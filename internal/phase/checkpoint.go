package phase

import "teststand/internal/diagnosis"

// Checkpoint inspects prior results and applies a phase result when its
// predicate holds. The usual action is STOP; FAIL_SUBTEST is legal only
// inside a subtest and rejected by pre-run validation otherwise.
type Checkpoint struct {
	CheckpointName string
	// Action is applied when the checkpoint triggers. Must be ResultStop or
	// ResultFailSubtest.
	Action Result
	// Condition, when non-nil, triggers on a diagnosis condition. When nil
	// the checkpoint triggers if any prior phase failed.
	Condition *diagnosis.Condition
}

// FailureCheckpoint triggers when any prior phase has outcome FAIL.
func FailureCheckpoint(name string, action Result) *Checkpoint {
	return &Checkpoint{CheckpointName: name, Action: action}
}

// DiagnosisCheckpoint triggers when the diagnosis condition holds.
func DiagnosisCheckpoint(name string, action Result, cond diagnosis.Condition) *Checkpoint {
	return &Checkpoint{CheckpointName: name, Action: action, Condition: &cond}
}

func (c *Checkpoint) Name() string {
	return c.CheckpointName
}

func (c *Checkpoint) Walk(fn func(Node)) {
	fn(c)
}
