package diagnosis

import (
	"fmt"
	"sort"
	"strings"

	"teststand/pkg/logging"
)

// PhaseRecordView is the read surface a phase diagnoser gets over the phase
// record it analyzes. The record package implements it; diagnosers never see
// the mutable record itself.
type PhaseRecordView interface {
	// PhaseName returns the name of the executed phase.
	PhaseName() string
	// Failed reports whether the phase outcome is FAIL or ERROR.
	Failed() bool
	// MeasurementValue returns the measured value for name, if one was set.
	MeasurementValue(name string) (interface{}, bool)
	// MeasurementPassed reports whether the named measurement validated PASS.
	MeasurementPassed(name string) (bool, bool)
}

// TestRecordView is the read surface a test diagnoser gets over the whole
// test record.
type TestRecordView interface {
	// DUTID returns the identifier of the device under test.
	DUTID() string
	// PhaseViews returns views over every executed phase, in order.
	PhaseViews() []PhaseRecordView
}

// PhaseDiagnoser converts one finished phase record into zero or more
// diagnoses.
type PhaseDiagnoser interface {
	// Name identifies the diagnoser in records and logs.
	Name() string
	// Results declares every Result this diagnoser may emit.
	Results() []Result
	// AlwaysFail reports whether every emitted diagnosis is forced to be a
	// failure.
	AlwaysFail() bool
	// DiagnosePhase analyzes the phase record. It may return zero, one, or
	// several diagnoses.
	DiagnosePhase(phase PhaseRecordView, store *Store) ([]Diagnosis, error)
}

// TestDiagnoser converts the finished test record into zero or more
// diagnoses.
type TestDiagnoser interface {
	Name() string
	Results() []Result
	AlwaysFail() bool
	// DiagnoseTest analyzes the full test record.
	DiagnoseTest(test TestRecordView, store *Store) ([]Diagnosis, error)
}

// PhaseDiagnoserFunc wraps a plain function as a PhaseDiagnoser.
type PhaseDiagnoserFunc struct {
	DiagnoserName string
	ResultSet     []Result
	ForceFailure  bool
	Func          func(phase PhaseRecordView, store *Store) ([]Diagnosis, error)
}

func (f PhaseDiagnoserFunc) Name() string      { return f.DiagnoserName }
func (f PhaseDiagnoserFunc) Results() []Result { return f.ResultSet }
func (f PhaseDiagnoserFunc) AlwaysFail() bool  { return f.ForceFailure }

func (f PhaseDiagnoserFunc) DiagnosePhase(phase PhaseRecordView, store *Store) ([]Diagnosis, error) {
	return f.Func(phase, store)
}

// TestDiagnoserFunc wraps a plain function as a TestDiagnoser.
type TestDiagnoserFunc struct {
	DiagnoserName string
	ResultSet     []Result
	ForceFailure  bool
	Func          func(test TestRecordView, store *Store) ([]Diagnosis, error)
}

func (f TestDiagnoserFunc) Name() string      { return f.DiagnoserName }
func (f TestDiagnoserFunc) Results() []Result { return f.ResultSet }
func (f TestDiagnoserFunc) AlwaysFail() bool  { return f.ForceFailure }

func (f TestDiagnoserFunc) DiagnoseTest(test TestRecordView, store *Store) ([]Diagnosis, error) {
	return f.Func(test, store)
}

// declaredResults is satisfied by both diagnoser kinds; used for the global
// duplicate-value check.
type declaredResults interface {
	Name() string
	Results() []Result
}

// CheckForDuplicateResults verifies that every Result value declared across
// all diagnosers is unique. Diagnosers sharing one enum declare identical
// result sets and do not conflict; the same value appearing in two different
// sets is a configuration error caught at test-assembly time.
func CheckForDuplicateResults(phaseDiagnosers []PhaseDiagnoser, testDiagnosers []TestDiagnoser) error {
	all := make([]declaredResults, 0, len(phaseDiagnosers)+len(testDiagnosers))
	for _, d := range phaseDiagnosers {
		all = append(all, d)
	}
	for _, d := range testDiagnosers {
		all = append(all, d)
	}

	type owner struct {
		name string
		sig  string
	}
	seen := make(map[Result]owner)
	for _, d := range all {
		sig := resultSetSignature(d.Results())
		declared := make(map[Result]bool, len(d.Results()))
		for _, r := range d.Results() {
			if declared[r] {
				return fmt.Errorf("%w: %q declared twice by diagnoser %q", ErrDuplicateResult, r, d.Name())
			}
			declared[r] = true
			if prev, ok := seen[r]; ok && prev.sig != sig {
				return fmt.Errorf("%w: %q declared by diagnosers %q and %q", ErrDuplicateResult, r, prev.name, d.Name())
			}
			seen[r] = owner{name: d.Name(), sig: sig}
		}
	}
	return nil
}

// resultSetSignature canonicalizes a declared result set so that diagnosers
// sharing one enum compare equal regardless of declaration order.
func resultSetSignature(results []Result) string {
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = string(r)
	}
	sort.Strings(names)
	return strings.Join(names, "\x00")
}

// normalize validates a diagnoser's returned diagnoses: every result must be
// one the diagnoser declared, and AlwaysFail forces the failure flag.
func normalize(name string, declared []Result, alwaysFail bool, diags []Diagnosis) ([]Diagnosis, error) {
	valid := make(map[Result]bool, len(declared))
	for _, r := range declared {
		valid[r] = true
	}
	out := make([]Diagnosis, 0, len(diags))
	for _, d := range diags {
		if d.Result == "" {
			return nil, fmt.Errorf("%w: diagnoser %q returned a diagnosis with no result", ErrInvalidDiagnosis, name)
		}
		if !valid[d.Result] {
			return nil, fmt.Errorf("%w: diagnoser %q returned undeclared result %q", ErrInvalidDiagnosis, name, d.Result)
		}
		if alwaysFail {
			d.IsFailure = true
			d.IsInternal = false
		}
		out = append(out, d)
	}
	return out, nil
}

// ExecutePhaseDiagnoser runs one phase diagnoser against a phase record view,
// normalizes its return, and adds the resulting diagnoses to the store. The
// returned slice is what the caller should fold into the phase record
// (internal diagnoses are included; the record split is the caller's job).
func ExecutePhaseDiagnoser(d PhaseDiagnoser, phase PhaseRecordView, store *Store) ([]Diagnosis, error) {
	diags, err := d.DiagnosePhase(phase, store)
	if err != nil {
		return nil, fmt.Errorf("phase diagnoser %q: %w", d.Name(), err)
	}
	diags, err = normalize(d.Name(), d.Results(), d.AlwaysFail(), diags)
	if err != nil {
		return nil, err
	}
	for _, diag := range diags {
		store.Add(diag)
		logging.Debug("diagnosis", "Phase diagnoser %s emitted %s (failure=%t internal=%t)",
			d.Name(), diag.Result, diag.IsFailure, diag.IsInternal)
	}
	return diags, nil
}

// ExecuteTestDiagnoser runs one test diagnoser. Internal diagnoses are
// meaningless at test scope and are rejected.
func ExecuteTestDiagnoser(d TestDiagnoser, test TestRecordView, store *Store) ([]Diagnosis, error) {
	diags, err := d.DiagnoseTest(test, store)
	if err != nil {
		return nil, fmt.Errorf("test diagnoser %q: %w", d.Name(), err)
	}
	diags, err = normalize(d.Name(), d.Results(), d.AlwaysFail(), diags)
	if err != nil {
		return nil, err
	}
	for _, diag := range diags {
		if diag.IsInternal {
			return nil, fmt.Errorf("%w: test diagnoser %q returned internal diagnosis %q", ErrInvalidDiagnosis, d.Name(), diag.Result)
		}
	}
	for _, diag := range diags {
		store.Add(diag)
		logging.Debug("diagnosis", "Test diagnoser %s emitted %s (failure=%t)", d.Name(), diag.Result, diag.IsFailure)
	}
	return diags, nil
}
