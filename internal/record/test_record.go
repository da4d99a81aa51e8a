package record

import (
	"teststand/internal/diagnosis"
)

// TestRecord aggregates everything that happened in one test execution.
// Outcome is write-once: once finalized it can only be replaced by the
// ABORTED override path.
type TestRecord struct {
	RunID           string                 `json:"run_id"`
	DUTID           string                 `json:"dut_id"`
	StationID       string                 `json:"station_id"`
	StartTimeMillis int64                  `json:"start_time_millis"`
	EndTimeMillis   int64                  `json:"end_time_millis"`
	Outcome         TestOutcome            `json:"outcome"`
	OutcomeDetails  []string               `json:"outcome_details"`
	Marginal        bool                   `json:"marginal,omitempty"`
	Metadata        map[string]interface{} `json:"metadata"`
	Phases          []*PhaseRecord         `json:"phases"`
	Subtests        []*SubtestRecord       `json:"subtests"`
	Branches        []*BranchRecord        `json:"branches"`
	Checkpoints     []*CheckpointRecord    `json:"checkpoints"`
	Diagnosers      []DiagnoserRecord      `json:"diagnosers"`
	Diagnoses       []diagnosis.Diagnosis  `json:"diagnoses"`
	LogRecords      []LogRecord            `json:"log_records"`
}

// NewTestRecord creates an empty record for a run.
func NewTestRecord(runID, dutID, stationID string) *TestRecord {
	return &TestRecord{
		RunID:     runID,
		DUTID:     dutID,
		StationID: stationID,
		Metadata:  make(map[string]interface{}),
	}
}

// FinalizeOutcome applies the terminal outcome. It reports whether the
// outcome was actually applied: a second finalize is a no-op unless the new
// outcome is ABORTED, which always wins.
func (r *TestRecord) FinalizeOutcome(outcome TestOutcome) bool {
	if r.Outcome != "" && outcome != TestAborted {
		return false
	}
	if r.Outcome == TestAborted {
		return false
	}
	r.Outcome = outcome
	return true
}

// AddOutcomeDetail appends a human-readable detail about the outcome.
func (r *TestRecord) AddOutcomeDetail(detail string) {
	r.OutcomeDetails = append(r.OutcomeDetails, detail)
}

// LastPhase returns the most recently recorded phase, or nil.
func (r *TestRecord) LastPhase() *PhaseRecord {
	if len(r.Phases) == 0 {
		return nil
	}
	return r.Phases[len(r.Phases)-1]
}

// AnyPhaseFailed reports whether any recorded phase has outcome FAIL.
func (r *TestRecord) AnyPhaseFailed() bool {
	for _, p := range r.Phases {
		if p.Outcome == PhaseFail {
			return true
		}
	}
	return false
}
