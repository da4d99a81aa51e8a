package exec

import (
	"sync"
	"time"

	"teststand/internal/config"
	"teststand/internal/diagnosis"
	"teststand/internal/plug"
	"teststand/internal/record"
	"teststand/pkg/logging"
)

// FailureExceptionMatcher classifies a captured phase error. A match means
// "the DUT failed" and finalizes FAIL instead of ERROR.
type FailureExceptionMatcher func(err error) bool

// TestState is the per-run mutable context: the record under construction,
// the diagnosis store, the plug manager, and scratch space. Exactly one
// TestState exists per execution attempt; it is owned by the control
// goroutine plus the single active phase goroutine.
type TestState struct {
	cfg       config.Config
	rec       *record.TestRecord
	diagStore *diagnosis.Store
	plugs     *plug.Manager
	userData  map[string]interface{}

	failureMatchers []FailureExceptionMatcher
	notify          func()

	mu      sync.Mutex
	aborted bool

	logMu sync.Mutex
}

// NewTestState creates the state for one run.
func NewTestState(cfg config.Config, runID, dutID string, plugs *plug.Manager) *TestState {
	if plugs == nil {
		plugs = plug.NewManager()
	}
	return &TestState{
		cfg:       cfg,
		rec:       record.NewTestRecord(runID, dutID, cfg.StationID),
		diagStore: diagnosis.NewStore(),
		plugs:     plugs,
		userData:  make(map[string]interface{}),
	}
}

// SetFailureExceptions declares the error classes that mean DUT failure
// rather than framework error.
func (s *TestState) SetFailureExceptions(matchers []FailureExceptionMatcher) {
	s.failureMatchers = matchers
}

// SetNotify wires the live-observer hook. Measurement updates funnel here.
func (s *TestState) SetNotify(fn func()) {
	s.notify = fn
}

// NotifyUpdate wakes live observers, if any.
func (s *TestState) NotifyUpdate() {
	if s.notify != nil {
		s.notify()
	}
}

// Record returns the test record under construction.
func (s *TestState) Record() *record.TestRecord {
	return s.rec
}

// Diagnoses returns the run-scoped diagnosis store.
func (s *TestState) Diagnoses() *diagnosis.Store {
	return s.diagStore
}

// Plugs returns the plug manager for this run.
func (s *TestState) Plugs() *plug.Manager {
	return s.plugs
}

// Config returns the effective station configuration.
func (s *TestState) Config() config.Config {
	return s.cfg
}

// SetDUTID records the DUT identifier and forwards it to interested plugs.
func (s *TestState) SetDUTID(id string) {
	s.rec.DUTID = id
	s.plugs.SetDUTID(id)
}

// MarkStarted stamps the record's start time.
func (s *TestState) MarkStarted() {
	s.rec.StartTimeMillis = time.Now().UnixMilli()
}

// MarkFinished stamps the record's end time.
func (s *TestState) MarkFinished() {
	s.rec.EndTimeMillis = time.Now().UnixMilli()
}

// Capture implements logging.CaptureSink: every log entry emitted during the
// run lands in the test record.
func (s *TestState) Capture(entry logging.LogEntry) {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	msg := entry.Message
	if entry.Err != nil {
		msg += ": " + entry.Err.Error()
	}
	s.rec.LogRecords = append(s.rec.LogRecords, record.LogRecord{
		TimestampMillis: entry.Timestamp.UnixMilli(),
		Level:           entry.Level.String(),
		Subsystem:       entry.Subsystem,
		Message:         msg,
	})
}

// Abort finalizes ABORTED. Abort is sticky: every later finalize call is a
// no-op.
func (s *TestState) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return
	}
	s.aborted = true
	s.rec.FinalizeOutcome(record.TestAborted)
	s.rec.AddOutcomeDetail("aborted by operator")
	logging.Warn("exec", "Test %s aborted", s.rec.RunID)
}

// Aborted reports whether the run has been aborted.
func (s *TestState) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// FinalizeNormally derives the test outcome after a full traversal. A test
// with zero phases passes vacuously; a test whose every phase was skipped is
// an ERROR, guarding against silently vacuous passes.
func (s *TestState) FinalizeNormally() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return
	}
	r := s.rec
	switch {
	case len(r.Phases) == 0:
		r.FinalizeOutcome(record.TestPass)
	case r.AnyPhaseFailed():
		r.FinalizeOutcome(record.TestFail)
	case allSkipped(r):
		r.FinalizeOutcome(record.TestError)
		r.AddOutcomeDetail("every phase was skipped")
	case s.diagStore.HasFailure():
		r.FinalizeOutcome(record.TestFail)
	default:
		r.FinalizeOutcome(record.TestPass)
	}
	s.escalateMarginal()
}

// FinalizeFromPhaseOutcome handles the early-exit paths: a phase exception,
// timeout, kill, or explicit STOP.
func (s *TestState) FinalizeFromPhaseOutcome(outcome PhaseExecutionOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return
	}
	r := s.rec
	switch {
	case outcome.RaisedException():
		err := outcome.Err()
		if s.matchesFailureException(err) {
			r.FinalizeOutcome(record.TestFail)
			r.AddOutcomeDetail("declared failure exception: " + err.Error())
		} else {
			r.FinalizeOutcome(record.TestError)
			r.AddOutcomeDetail(err.Error())
		}
	case outcome.IsTimeout():
		r.FinalizeOutcome(record.TestTimeout)
	case outcome.IsKilled():
		s.aborted = true
		r.FinalizeOutcome(record.TestAborted)
	default:
		// Explicit STOP: pass or fail based on what already happened.
		if r.AnyPhaseFailed() || s.diagStore.HasFailure() {
			r.FinalizeOutcome(record.TestFail)
		} else {
			r.FinalizeOutcome(record.TestPass)
		}
	}
	s.escalateMarginal()
}

func (s *TestState) matchesFailureException(err error) bool {
	for _, m := range s.failureMatchers {
		if m(err) {
			return true
		}
	}
	return false
}

// escalateMarginal lifts phase-level marginality onto the test record. The
// escalation crosses subtest and group boundaries unconditionally; a marginal
// phase anywhere marks the whole run marginal.
func (s *TestState) escalateMarginal() {
	for _, p := range s.rec.Phases {
		if p.Marginal {
			s.rec.Marginal = true
			return
		}
	}
}

func allSkipped(r *record.TestRecord) bool {
	for _, p := range r.Phases {
		if p.Outcome != record.PhaseSkip {
			return false
		}
	}
	return len(r.Phases) > 0
}
