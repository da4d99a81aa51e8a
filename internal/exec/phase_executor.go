package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"teststand/internal/config"
	"teststand/internal/measure"
	"teststand/internal/phase"
	"teststand/internal/record"
	"teststand/pkg/logging"
)

// joinPollInterval is how often the control goroutine wakes while waiting on
// a phase body, so an external Stop is noticed promptly.
const joinPollInterval = 100 * time.Millisecond

// PhaseExecutor runs one phase at a time in its own goroutine, enforcing
// timeout, repeat policy, and cooperative stop. There is never more than one
// phase goroutine alive; concurrency exists only for timeout enforcement.
type PhaseExecutor struct {
	cfg config.Config

	// mu guards the stop flags and cancelCurrent. The lock closes the window
	// between a Stop call and a phase goroutine being spawned, so a stop is
	// never missed.
	mu            sync.Mutex
	stopping      bool
	terminating   bool
	cancelCurrent context.CancelFunc
}

// NewPhaseExecutor builds an executor with the given configuration.
func NewPhaseExecutor(cfg config.Config) *PhaseExecutor {
	return &PhaseExecutor{cfg: cfg}
}

// Stop requests a cooperative stop: the repeat loop exits at its next
// boundary and the currently running phase body's context is cancelled.
// Teardown phases still run after a Stop; only Terminate skips them. If the
// body does not exit within the cancel timeout it is abandoned, best-effort,
// rather than blocking the test forever.
func (e *PhaseExecutor) Stop() {
	e.stop(false)
}

// Terminate escalates a stop to a full abort: teardown phases are skipped
// too and a running teardown body is cancelled.
func (e *PhaseExecutor) Terminate() {
	e.stop(true)
}

func (e *PhaseExecutor) stop(full bool) {
	e.mu.Lock()
	e.stopping = true
	if full {
		e.terminating = true
	}
	cancel := e.cancelCurrent
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// stopped reports whether a phase of the given kind may still run. A plain
// stop spares teardown phases so cleanup keeps its guarantee.
func (e *PhaseExecutor) stopped(isTeardown bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminating || (e.stopping && !isTeardown)
}

// ExecutePhase runs a descriptor to completion, including the repeat loop.
// Every attempt appends its own phase record to the test record. The
// returned outcome is the final attempt's, after repeat-limit conversion.
func (e *PhaseExecutor) ExecutePhase(desc *phase.Descriptor, test *TestState, isTeardown bool) PhaseExecutionOutcome {
	opts := desc.Options()

	// The run-if gate is evaluated before any phase goroutine exists. An
	// erroring predicate records the phase as ERROR without running it; a
	// false one records SKIP. Neither enters the repeat loop.
	if opts.RunIf != nil {
		ok, err := opts.RunIf(test.Diagnoses())
		if err != nil {
			return e.recordWithoutRunning(desc, test, ExceptionOutcome(fmt.Errorf("run-if predicate for %s: %w", desc.Name(), err)))
		}
		if !ok {
			logging.Debug("exec", "Phase %s skipped by run-if", desc.Name())
			return e.recordWithoutRunning(desc, test, ResultOutcome(phase.ResultSkip))
		}
	}

	limit := opts.EffectiveRepeatLimit()
	for attempt := 1; ; attempt++ {
		if e.stopped(isTeardown) {
			return KilledOutcome()
		}

		ps, err := newPhaseState(context.Background(), desc, test)
		if err != nil {
			return e.recordWithoutRunning(desc, test, ExceptionOutcome(err))
		}

		outcome := e.executeOnce(ps, desc, test, isTeardown)

		repeat := outcome.IsRepeat() ||
			(opts.ForceRepeat && !outcome.IsTerminal()) ||
			(outcome.IsTimeout() && opts.RepeatOnTimeout)
		if repeat && attempt >= limit {
			logging.Warn("exec", "Phase %s hit repeat limit (%d), stopping", desc.Name(), limit)
			ps.hitRepeatLimit = true
			outcome = ResultOutcome(phase.ResultStop)
			repeat = false
		}

		outcome = ps.Finalize(outcome, outcome.IsKilled())
		test.Record().Phases = append(test.Record().Phases, ps.PhaseRecord())

		if !repeat || e.stopped(isTeardown) {
			return outcome
		}
		logging.Debug("exec", "Phase %s repeating (attempt %d/%d)", desc.Name(), attempt, limit)
	}
}

// recordWithoutRunning finalizes a phase record for a phase whose body never
// executed (run-if gate or setup failure).
func (e *PhaseExecutor) recordWithoutRunning(desc *phase.Descriptor, test *TestState, outcome PhaseExecutionOutcome) PhaseExecutionOutcome {
	ps := &PhaseState{
		desc:         desc,
		test:         test,
		measurements: measure.NewCollection(desc.Measurements()),
		ctx:          context.Background(),
		rec: &record.PhaseRecord{
			Name:            desc.Name(),
			CodeInfo:        desc.CodeInfo(),
			Options:         desc.Options().Snapshot(),
			Measurements:    make(map[string]record.MeasurementRecord),
			StartTimeMillis: time.Now().UnixMilli(),
		},
	}
	outcome = ps.Finalize(outcome, false)
	test.Record().Phases = append(test.Record().Phases, ps.PhaseRecord())
	return outcome
}

// executeOnce runs one attempt of the phase body in a dedicated goroutine
// and joins it, polling so Stop stays responsive.
func (e *PhaseExecutor) executeOnce(ps *PhaseState, desc *phase.Descriptor, test *TestState, isTeardown bool) PhaseExecutionOutcome {
	opts := desc.Options()
	timeout := opts.Timeout
	if timeout <= 0 {
		if isTeardown {
			timeout = e.cfg.TeardownTimeout()
		} else {
			timeout = e.cfg.DefaultPhaseTimeout()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps.ctx = ctx

	e.mu.Lock()
	if e.terminating || (e.stopping && !isTeardown) {
		e.mu.Unlock()
		cancel()
		return KilledOutcome()
	}
	e.cancelCurrent = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancelCurrent = nil
		e.mu.Unlock()
		cancel()
	}()

	stopMonitor := startMonitor(ps, opts.Monitor)
	defer stopMonitor()

	done := make(chan PhaseExecutionOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- ExceptionOutcome(fmt.Errorf("phase %s panicked: %v", desc.Name(), r))
			}
		}()
		result, err := desc.Call(ps.api())
		if err != nil {
			done <- ExceptionOutcome(err)
			return
		}
		done <- ResultOutcome(result)
	}()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(joinPollInterval)
	defer poll.Stop()

	for {
		select {
		case outcome := <-done:
			return outcome
		case <-deadline.C:
			cancel()
			e.awaitAbandoned(desc.Name(), done)
			return TimeoutOutcome()
		case <-poll.C:
			if e.stopped(isTeardown) {
				cancel()
				e.awaitAbandoned(desc.Name(), done)
				return KilledOutcome()
			}
		}
	}
}

// awaitAbandoned gives a cancelled phase body the cancel timeout to exit.
// A body stuck in uninterruptible work is left running; its writes go to a
// phase state the executor no longer reads.
func (e *PhaseExecutor) awaitAbandoned(name string, done <-chan PhaseExecutionOutcome) {
	select {
	case <-done:
	case <-time.After(e.cfg.CancelTimeout()):
		logging.Warn("exec", "Phase %s did not exit after cancellation, abandoning its goroutine", name)
	}
}
