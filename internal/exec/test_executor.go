package exec

import (
	"fmt"
	"sync"
	"time"

	"teststand/internal/config"
	"teststand/internal/diagnosis"
	"teststand/internal/phase"
	"teststand/internal/record"
	"teststand/pkg/logging"
)

type traversalStatus int

const (
	statusContinue traversalStatus = iota
	statusTerminal
)

// StartTrigger resolves the DUT identifier before the main tree runs,
// typically by prompting the operator.
type StartTrigger func() (string, error)

// TestExecutor owns one test run: it waits for the start trigger,
// initializes plugs, walks the phase node tree, runs test diagnosers, tears
// down plugs, and finalizes the record. All traversal happens on the calling
// goroutine; only phase bodies get their own.
type TestExecutor struct {
	cfg            config.Config
	state          *TestState
	phaseExec      *PhaseExecutor
	root           phase.Node
	testDiagnosers []diagnosis.TestDiagnoser

	mu             sync.Mutex
	abortRequested bool
	fullAbort      bool
}

// NewTestExecutor builds the executor for one run.
func NewTestExecutor(cfg config.Config, state *TestState, root phase.Node, testDiagnosers []diagnosis.TestDiagnoser) *TestExecutor {
	return &TestExecutor{
		cfg:            cfg,
		state:          state,
		phaseExec:      NewPhaseExecutor(cfg),
		root:           root,
		testDiagnosers: testDiagnosers,
	}
}

// Abort requests the run to stop. The first call stops the current phase and
// lets teardown run; a second call escalates to a full abort that bypasses
// even teardown.
func (e *TestExecutor) Abort() {
	e.mu.Lock()
	first := !e.abortRequested
	e.abortRequested = true
	if !first {
		e.fullAbort = true
	}
	e.mu.Unlock()

	if first {
		logging.Warn("exec", "Abort requested, stopping current phase")
		e.state.Abort()
		e.phaseExec.Stop()
	} else {
		logging.Warn("exec", "Second abort, skipping remaining teardown")
		e.phaseExec.Terminate()
	}
}

func (e *TestExecutor) aborting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.abortRequested
}

func (e *TestExecutor) fullyAborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fullAbort
}

// Execute runs the whole test and returns the finalized record. A completed
// run always yields a record with a non-empty outcome, even on internal
// errors.
func (e *TestExecutor) Execute(trigger StartTrigger) *record.TestRecord {
	e.state.MarkStarted()
	logging.SetCaptureSink(e.state)
	defer logging.SetCaptureSink(nil)

	e.recordDeclaredDiagnosers()

	defer func() {
		if r := recover(); r != nil {
			logging.Error("exec", nil, "Internal error during test execution: %v", r)
			e.state.Record().FinalizeOutcome(record.TestError)
			e.state.Record().AddOutcomeDetail(fmt.Sprintf("internal error: %v", r))
		}
		e.state.Plugs().TearDownPlugs()
		e.state.MarkFinished()
	}()

	if trigger != nil {
		dutID, err := trigger()
		if err != nil {
			logging.Error("exec", err, "Start trigger failed")
			e.state.FinalizeFromPhaseOutcome(ExceptionOutcome(err))
			return e.state.Record()
		}
		e.state.SetDUTID(dutID)
	}

	if err := e.state.Plugs().InitializePlugs(); err != nil {
		logging.Error("exec", err, "Plug initialization failed")
		e.state.FinalizeFromPhaseOutcome(ExceptionOutcome(err))
		return e.state.Record()
	}

	e.executeNode(e.root, nil, false)

	if !e.state.Aborted() {
		e.runTestDiagnosers()
	}
	e.state.FinalizeNormally()
	logging.Info("exec", "Test %s finished: %s", e.state.Record().RunID, e.state.Record().Outcome)
	return e.state.Record()
}

func (e *TestExecutor) recordDeclaredDiagnosers() {
	rec := e.state.Record()
	for _, d := range phase.CollectDiagnosers(e.root) {
		rec.Diagnosers = append(rec.Diagnosers, record.DiagnoserRecord{Name: d.Name(), Kind: "phase"})
	}
	for _, d := range e.testDiagnosers {
		rec.Diagnosers = append(rec.Diagnosers, record.DiagnoserRecord{Name: d.Name(), Kind: "test"})
	}
}

// executeNode dispatches over the closed node variant set.
func (e *TestExecutor) executeNode(n phase.Node, sub *record.SubtestRecord, teardown bool) traversalStatus {
	switch v := n.(type) {
	case *phase.Descriptor:
		return e.executePhaseNode(v, sub, teardown)
	case *phase.Sequence:
		return e.executeSequence(v, sub, teardown)
	case *phase.Group:
		return e.executeGroup(v, sub)
	case *phase.Subtest:
		return e.executeSubtest(v, teardown)
	case *phase.Branch:
		return e.executeBranch(v, sub, teardown)
	case *phase.Checkpoint:
		return e.executeCheckpoint(v, sub)
	default:
		logging.Error("exec", nil, "Unknown phase node type %T, skipping", n)
		return statusContinue
	}
}

// executeSequence runs children in order. Outside teardown the first
// terminal child stops the sequence; in teardown every child runs and the
// most critical status wins, so cleanup always gets its chance. A full
// abort stops even teardown.
func (e *TestExecutor) executeSequence(s *phase.Sequence, sub *record.SubtestRecord, teardown bool) traversalStatus {
	if teardown {
		worst := statusContinue
		for _, child := range s.Nodes {
			if e.fullyAborted() {
				return statusTerminal
			}
			if e.executeNode(child, sub, true) == statusTerminal {
				worst = statusTerminal
			}
		}
		return worst
	}
	for _, child := range s.Nodes {
		if e.aborting() {
			return statusTerminal
		}
		if e.executeNode(child, sub, false) == statusTerminal {
			return statusTerminal
		}
		if e.stopOnFirstFailure(s) {
			logging.Warn("exec", "Stopping on first failure")
			e.state.FinalizeFromPhaseOutcome(ResultOutcome(phase.ResultStop))
			return statusTerminal
		}
	}
	return statusContinue
}

// stopOnFirstFailure applies the configured early stop. The check runs only
// on the top-level sequence: failures inside subtests and groups surface
// through their own semantics, not through this global switch.
func (e *TestExecutor) stopOnFirstFailure(s *phase.Sequence) bool {
	if !e.cfg.StopOnFirstFailure || phase.Node(s) != e.root {
		return false
	}
	last := e.state.Record().LastPhase()
	return last != nil && last.Outcome == record.PhaseFail
}

// executeGroup runs setup, main, teardown. Teardown runs if and only if
// setup completed without a terminal result.
func (e *TestExecutor) executeGroup(g *phase.Group, sub *record.SubtestRecord) traversalStatus {
	if g.Setup != nil {
		if e.executeSequence(g.Setup, sub, false) == statusTerminal {
			logging.Debug("exec", "Group %s setup terminal, teardown skipped", g.Name())
			return statusTerminal
		}
	}
	status := statusContinue
	if g.Main != nil {
		status = e.executeSequence(g.Main, sub, false)
	}
	if g.Teardown != nil {
		if e.executeSequence(g.Teardown, sub, true) == statusTerminal {
			status = statusTerminal
		}
	}
	return status
}

func (e *TestExecutor) executeSubtest(s *phase.Subtest, teardown bool) traversalStatus {
	subRec := &record.SubtestRecord{
		Name:            s.SubtestName,
		Outcome:         record.SubtestPass,
		StartTimeMillis: time.Now().UnixMilli(),
	}
	logging.Debug("exec", "Entering subtest %s", s.SubtestName)
	status := statusContinue
	if s.Nodes != nil {
		status = e.executeSequence(s.Nodes, subRec, teardown)
	}
	if status == statusTerminal && subRec.Outcome == record.SubtestPass {
		subRec.Outcome = record.SubtestStop
	}
	subRec.EndTimeMillis = time.Now().UnixMilli()
	e.state.Record().Subtests = append(e.state.Record().Subtests, subRec)
	return status
}

// executeBranch always records whether the branch was taken, then runs the
// child sequence only if the condition holds right now.
func (e *TestExecutor) executeBranch(b *phase.Branch, sub *record.SubtestRecord, teardown bool) traversalStatus {
	taken := b.Condition.Check(e.state.Diagnoses())
	e.state.Record().Branches = append(e.state.Record().Branches, &record.BranchRecord{
		Name:      b.Name(),
		Condition: b.Condition.String(),
		Taken:     taken,
	})
	if !taken {
		logging.Debug("exec", "Branch %s not taken", b.Name())
		return statusContinue
	}
	if b.Nodes == nil {
		return statusContinue
	}
	return e.executeSequence(b.Nodes, sub, teardown)
}

func (e *TestExecutor) executeCheckpoint(c *phase.Checkpoint, sub *record.SubtestRecord) traversalStatus {
	var triggered bool
	if c.Condition != nil {
		triggered = c.Condition.Check(e.state.Diagnoses())
	} else {
		triggered = e.state.Record().AnyPhaseFailed() || (sub != nil && sub.IsFail())
	}
	cp := &record.CheckpointRecord{
		Name:      c.CheckpointName,
		Action:    string(c.Action),
		Triggered: triggered,
	}
	e.state.Record().Checkpoints = append(e.state.Record().Checkpoints, cp)
	if !triggered {
		return statusContinue
	}
	cp.Result = string(c.Action)
	logging.Info("exec", "Checkpoint %s triggered (%s)", c.CheckpointName, c.Action)

	if c.Action == phase.ResultFailSubtest {
		if sub == nil {
			// Pre-run validation rejects this shape; reaching it anyway is an
			// internal error.
			err := fmt.Errorf("%w: %q", phase.ErrCheckpointOutsideSubtest, c.CheckpointName)
			e.state.FinalizeFromPhaseOutcome(ExceptionOutcome(err))
			return statusTerminal
		}
		sub.Outcome = record.SubtestFail
		return statusContinue
	}
	e.state.FinalizeFromPhaseOutcome(ResultOutcome(phase.ResultStop))
	return statusTerminal
}

func (e *TestExecutor) executePhaseNode(desc *phase.Descriptor, sub *record.SubtestRecord, teardown bool) traversalStatus {
	// A failing subtest skips its remaining phases individually instead of
	// hard-aborting them.
	if sub != nil && sub.IsFail() {
		e.phaseExec.recordWithoutRunning(desc, e.state, ResultOutcome(phase.ResultSkip))
		return statusContinue
	}

	outcome := e.phaseExec.ExecutePhase(desc, e.state, teardown)
	switch {
	case outcome.IsFailSubtest():
		if sub == nil {
			err := fmt.Errorf("phase %s returned FAIL_SUBTEST outside a subtest", desc.Name())
			e.state.FinalizeFromPhaseOutcome(ExceptionOutcome(err))
			return statusTerminal
		}
		sub.Outcome = record.SubtestFail
		return statusContinue
	case outcome.IsKilled():
		e.state.Abort()
		return statusTerminal
	case outcome.IsTerminal():
		e.state.FinalizeFromPhaseOutcome(outcome)
		return statusTerminal
	default:
		return statusContinue
	}
}

// runTestDiagnosers executes every test diagnoser. One failing diagnoser
// never stops the rest; if any failed and no terminal outcome exists yet,
// the test is an ERROR.
func (e *TestExecutor) runTestDiagnosers() {
	erred := false
	rec := e.state.Record()
	for _, d := range e.testDiagnosers {
		diags, err := diagnosis.ExecuteTestDiagnoser(d, rec.View(), e.state.Diagnoses())
		if err != nil {
			logging.Error("exec", err, "Test diagnoser failed")
			erred = true
			continue
		}
		rec.Diagnoses = append(rec.Diagnoses, diags...)
	}
	if erred && rec.Outcome == "" {
		rec.FinalizeOutcome(record.TestError)
		rec.AddOutcomeDetail("test diagnoser failed")
	}
}
