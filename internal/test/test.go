// Package test is the front door: it assembles a phase tree, plugs,
// diagnosers, and output callbacks into a runnable test, validates the shape
// before execution, and drives the executor.
package test

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"teststand/internal/config"
	"teststand/internal/diagnosis"
	"teststand/internal/exec"
	"teststand/internal/output"
	"teststand/internal/phase"
	"teststand/internal/plug"
	"teststand/internal/record"
	"teststand/pkg/logging"
)

// Test wraps a phase node tree with everything needed to run it.
type Test struct {
	name            string
	description     string
	root            *phase.Sequence
	metadata        map[string]interface{}
	plugs           *plug.Manager
	testDiagnosers  []diagnosis.TestDiagnoser
	failureMatchers []exec.FailureExceptionMatcher
	callbacks       []output.Callback

	mu       sync.Mutex
	executor *exec.TestExecutor
}

// New builds a test over the given nodes, which form its top-level sequence.
func New(name string, nodes ...phase.Node) *Test {
	return &Test{
		name:     name,
		root:     phase.NamedSequence(name, nodes...),
		metadata: make(map[string]interface{}),
		plugs:    plug.NewManager(),
	}
}

// Name returns the test's name.
func (t *Test) Name() string { return t.name }

// Description returns the human-readable description.
func (t *Test) Description() string { return t.description }

// SetDescription attaches a human-readable description.
func (t *Test) SetDescription(desc string) { t.description = desc }

// SetMetadata records a metadata key copied onto every test record.
func (t *Test) SetMetadata(key string, value interface{}) {
	t.metadata[key] = value
}

// Plugs returns the plug manager so callers can register factories.
func (t *Test) Plugs() *plug.Manager { return t.plugs }

// AddTestDiagnosers attaches test-level diagnosers.
func (t *Test) AddTestDiagnosers(diagnosers ...diagnosis.TestDiagnoser) {
	t.testDiagnosers = append(t.testDiagnosers, diagnosers...)
}

// SetFailureExceptions declares error classes that mean DUT failure rather
// than framework error.
func (t *Test) SetFailureExceptions(matchers ...exec.FailureExceptionMatcher) {
	t.failureMatchers = matchers
}

// AddOutputCallbacks attaches record consumers fired after every run.
func (t *Test) AddOutputCallbacks(callbacks ...output.Callback) {
	t.callbacks = append(t.callbacks, callbacks...)
}

// Validate checks the tree shape before execution: unique subtest names,
// legal checkpoint placement, and globally unique diagnosis results.
func (t *Test) Validate() error {
	if err := phase.CheckSubtestNames(t.root); err != nil {
		return fmt.Errorf("test %s: %w", t.name, err)
	}
	if err := phase.CheckCheckpointPlacement(t.root); err != nil {
		return fmt.Errorf("test %s: %w", t.name, err)
	}
	phaseDiagnosers := phase.CollectDiagnosers(t.root)
	if err := diagnosis.CheckForDuplicateResults(phaseDiagnosers, t.testDiagnosers); err != nil {
		return fmt.Errorf("test %s: %w", t.name, err)
	}
	return nil
}

// Execute validates and runs the test once, fires output callbacks, and
// returns the finalized record. The returned error covers configuration
// problems only; a DUT failure is reported through the record's outcome.
func (t *Test) Execute(cfg config.Config, trigger exec.StartTrigger) (*record.TestRecord, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	state := exec.NewTestState(cfg, uuid.NewString(), "", t.plugs)
	state.SetFailureExceptions(t.failureMatchers)
	for k, v := range t.metadata {
		state.Record().Metadata[k] = v
	}
	state.Record().Metadata["test_name"] = t.name

	executor := exec.NewTestExecutor(cfg, state, t.root, t.testDiagnosers)
	t.mu.Lock()
	t.executor = executor
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.executor = nil
		t.mu.Unlock()
	}()

	logging.Info("test", "Starting test %s (run %s)", t.name, state.Record().RunID)
	rec := executor.Execute(trigger)
	output.Dispatch(t.callbacks, rec)
	return rec, nil
}

// Abort stops the active run, if any. The first call lets teardown finish;
// a second call escalates to a full abort.
func (t *Test) Abort() {
	t.mu.Lock()
	executor := t.executor
	t.mu.Unlock()
	if executor != nil {
		executor.Abort()
	}
}
