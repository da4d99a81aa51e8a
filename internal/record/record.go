// Package record defines the append-only output structures describing a test
// execution: the per-phase record, the aggregate test record, and the
// auxiliary subtest/branch/checkpoint records. Records are mutable while the
// executor builds them and treated as immutable once finalized; output
// writers only ever see the finalized form.
package record

import (
	"crypto/sha1"
	"encoding/hex"

	"teststand/internal/diagnosis"
)

// PhaseOutcome is the final disposition of one phase execution.
type PhaseOutcome string

const (
	PhasePass  PhaseOutcome = "PASS"
	PhaseFail  PhaseOutcome = "FAIL"
	PhaseSkip  PhaseOutcome = "SKIP"
	PhaseError PhaseOutcome = "ERROR"
)

// TestOutcome is the single terminal outcome of a test run.
type TestOutcome string

const (
	TestPass    TestOutcome = "PASS"
	TestFail    TestOutcome = "FAIL"
	TestError   TestOutcome = "ERROR"
	TestTimeout TestOutcome = "TIMEOUT"
	TestAborted TestOutcome = "ABORTED"
)

// SubtestOutcome is the localized outcome of a subtest.
type SubtestOutcome string

const (
	SubtestPass SubtestOutcome = "PASS"
	SubtestFail SubtestOutcome = "FAIL"
	SubtestStop SubtestOutcome = "STOP"
)

// CodeInfo locates the user function a phase wraps.
type CodeInfo struct {
	Name       string `json:"name"`
	SourceFile string `json:"source_file,omitempty"`
	Line       int    `json:"line,omitempty"`
}

// OptionsSnapshot captures the phase options that matter for reporting.
type OptionsSnapshot struct {
	TimeoutMillis   int64 `json:"timeout_millis,omitempty"`
	RepeatLimit     int   `json:"repeat_limit,omitempty"`
	RepeatOnTimeout bool  `json:"repeat_on_timeout,omitempty"`
	HasRunIf        bool  `json:"has_run_if,omitempty"`
}

// MeasurementRecord is the immutable snapshot of one measurement at phase
// finalization.
type MeasurementRecord struct {
	Name          string        `json:"name"`
	Outcome       string        `json:"outcome"`
	Marginal      bool          `json:"marginal,omitempty"`
	MeasuredValue interface{}   `json:"measured_value,omitempty"`
	Units         string        `json:"units,omitempty"`
	Dimensions    []string      `json:"dimensions,omitempty"`
	Validators    []string      `json:"validators,omitempty"`
	Docstring     string        `json:"docstring,omitempty"`
}

// Attachment is a named binary blob recorded by a phase.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimetype,omitempty"`
	SHA1     string `json:"sha1"`
	Data     []byte `json:"-"`
}

// NewAttachment builds an attachment, computing the content hash.
func NewAttachment(name string, data []byte, mimeType string) Attachment {
	sum := sha1.Sum(data)
	return Attachment{
		Name:     name,
		MimeType: mimeType,
		SHA1:     hex.EncodeToString(sum[:]),
		Data:     data,
	}
}

// LogRecord is one captured log entry scoped to the test run.
type LogRecord struct {
	TimestampMillis int64  `json:"timestamp_millis"`
	Level           string `json:"level"`
	Subsystem       string `json:"subsystem"`
	Message         string `json:"message"`
}

// PhaseRecord captures one phase execution.
type PhaseRecord struct {
	Name            string                       `json:"name"`
	CodeInfo        CodeInfo                     `json:"codeinfo"`
	Options         OptionsSnapshot              `json:"options"`
	Measurements    map[string]MeasurementRecord `json:"measurements"`
	Attachments     map[string]Attachment        `json:"attachments,omitempty"`
	StartTimeMillis int64                        `json:"start_time_millis"`
	EndTimeMillis   int64                        `json:"end_time_millis"`
	// Result is the raw execution result (a phase result name, or an error
	// description for exception/timeout terminations).
	Result string `json:"result"`
	// Outcome is the derived disposition after finalization.
	Outcome  PhaseOutcome `json:"outcome"`
	Marginal bool         `json:"marginal,omitempty"`
	// DiagnosisResults lists non-failure diagnosis results attributed to
	// this phase; FailureDiagnosisResults lists the failing ones.
	DiagnosisResults        []diagnosis.Result `json:"diagnosis_results"`
	FailureDiagnosisResults []diagnosis.Result `json:"failure_diagnosis_results"`
}

// SubtestRecord captures a subtest's localized outcome.
type SubtestRecord struct {
	Name            string         `json:"name"`
	Outcome         SubtestOutcome `json:"outcome"`
	StartTimeMillis int64          `json:"start_time_millis"`
	EndTimeMillis   int64          `json:"end_time_millis"`
}

// IsFail reports whether the subtest has already failed; the executor uses
// this to skip the subtest's remaining phases without hard-aborting them.
func (s *SubtestRecord) IsFail() bool {
	return s.Outcome == SubtestFail
}

// BranchRecord notes whether a branch's condition held and its sequence ran.
type BranchRecord struct {
	Name      string `json:"name"`
	Condition string `json:"condition"`
	Taken     bool   `json:"taken"`
}

// CheckpointRecord captures a checkpoint evaluation.
type CheckpointRecord struct {
	Name      string `json:"name"`
	Action    string `json:"action"`
	Triggered bool   `json:"triggered"`
	// Result is the phase result applied when the checkpoint triggered.
	Result string `json:"result,omitempty"`
}

// DiagnoserRecord names a diagnoser that participated in the run.
type DiagnoserRecord struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}
