package exec

import (
	"context"
	"fmt"
	"time"

	"teststand/internal/diagnosis"
	"teststand/internal/measure"
	"teststand/internal/phase"
	"teststand/internal/plug"
	"teststand/internal/record"
	"teststand/pkg/logging"
)

// PhaseState is the mutable context of one phase attempt. Every attempt gets
// a fresh state with measurements deep-copied from the descriptor templates,
// so values never bleed between runs or between repeat attempts. It
// implements phase.TestAPI and phase.StateAPI.
type PhaseState struct {
	desc         *phase.Descriptor
	test         *TestState
	rec          *record.PhaseRecord
	measurements *measure.Collection
	plugsByName  map[string]plug.Plug
	ctx          context.Context

	// hitRepeatLimit is set by the executor when the repeat limit converted
	// the outcome to STOP; the phase is then judged by its measurements
	// rather than recorded as an error.
	hitRepeatLimit bool
}

func newPhaseState(ctx context.Context, desc *phase.Descriptor, test *TestState) (*PhaseState, error) {
	refs := make(map[string]string, len(desc.Plugs()))
	for _, ref := range desc.Plugs() {
		refs[ref.Name] = ref.Kind
	}
	plugs, err := test.Plugs().ProvidePlugs(refs)
	if err != nil {
		return nil, err
	}

	collection := measure.NewCollection(desc.Measurements())
	for _, m := range collection.All() {
		m.ActivateConditionalValidators(test.Diagnoses())
		m.SetNotify(func(string) { test.NotifyUpdate() })
	}

	ps := &PhaseState{
		desc:         desc,
		test:         test,
		measurements: collection,
		plugsByName:  plugs,
		ctx:          ctx,
		rec: &record.PhaseRecord{
			Name:            desc.Name(),
			CodeInfo:        desc.CodeInfo(),
			Options:         desc.Options().Snapshot(),
			Measurements:    make(map[string]record.MeasurementRecord),
			StartTimeMillis: time.Now().UnixMilli(),
		},
	}
	return ps, nil
}

// DUTID implements phase.TestAPI.
func (ps *PhaseState) DUTID() string {
	return ps.test.Record().DUTID
}

// Measurements implements phase.TestAPI.
func (ps *PhaseState) Measurements() *measure.Collection {
	return ps.measurements
}

// Attach implements phase.TestAPI.
func (ps *PhaseState) Attach(name string, data []byte, mimeType string) error {
	if ps.rec.Attachments == nil {
		ps.rec.Attachments = make(map[string]record.Attachment)
	}
	if _, ok := ps.rec.Attachments[name]; ok {
		return fmt.Errorf("attachment %q already recorded on phase %s", name, ps.rec.Name)
	}
	ps.rec.Attachments[name] = record.NewAttachment(name, data, mimeType)
	return nil
}

// Plug implements phase.TestAPI.
func (ps *PhaseState) Plug(name string) (plug.Plug, bool) {
	p, ok := ps.plugsByName[name]
	return p, ok
}

// Diagnoses implements phase.TestAPI.
func (ps *PhaseState) Diagnoses() *diagnosis.Store {
	return ps.test.Diagnoses()
}

// Args implements phase.TestAPI.
func (ps *PhaseState) Args() map[string]interface{} {
	return ps.desc.Args()
}

// UserData implements phase.TestAPI.
func (ps *PhaseState) UserData() map[string]interface{} {
	return ps.test.userData
}

// Logf implements phase.TestAPI.
func (ps *PhaseState) Logf(format string, args ...interface{}) {
	logging.Info("phase:"+ps.rec.Name, format, args...)
}

// Context implements phase.TestAPI.
func (ps *PhaseState) Context() context.Context {
	return ps.ctx
}

// Record implements phase.StateAPI.
func (ps *PhaseState) Record() *record.TestRecord {
	return ps.test.Record()
}

// NotifyUpdate implements phase.StateAPI.
func (ps *PhaseState) NotifyUpdate() {
	ps.test.NotifyUpdate()
}

// PhaseRecord returns the record of this attempt.
func (ps *PhaseState) PhaseRecord() *record.PhaseRecord {
	return ps.rec
}

// api returns the facade handed to the phase body. Only phases that declared
// RequiresTestState see the StateAPI surface; everyone else gets a view that
// cannot be asserted past TestAPI.
func (ps *PhaseState) api() phase.TestAPI {
	if ps.desc.Options().RequiresTestState {
		return ps
	}
	return restrictedAPI{ps}
}

// restrictedAPI narrows a PhaseState to the plain TestAPI method set.
type restrictedAPI struct {
	phase.TestAPI
}

// Finalize runs the strict finalization pipeline: measurements first, then
// the pre-diagnosis outcome, then diagnosers, then the post-diagnosis
// outcome. Each step sees the previous step's effects. The returned outcome
// may differ from the input when measurement finalization raises.
func (ps *PhaseState) Finalize(outcome PhaseExecutionOutcome, aborted bool) PhaseExecutionOutcome {
	outcome = ps.finalizeMeasurements(outcome)
	ps.snapshotMeasurements()
	ps.setPrediagnosisOutcome(outcome)

	diagnoserErred := false
	if !aborted && !outcome.IsRepeat() && !outcome.IsSkip() {
		diagnoserErred = ps.executeDiagnosers()
	}
	ps.setPostdiagnosisOutcome(outcome, diagnoserErred)

	ps.rec.Result = outcome.String()
	ps.rec.EndTimeMillis = time.Now().UnixMilli()
	return outcome
}

// finalizeMeasurements validates still-PARTIALLY_SET dimensioned
// measurements. A validation panic here overrides the phase result unless it
// is already terminal.
func (ps *PhaseState) finalizeMeasurements(outcome PhaseExecutionOutcome) PhaseExecutionOutcome {
	var caught error
	for _, m := range ps.measurements.All() {
		func() {
			defer func() {
				if r := recover(); r != nil && caught == nil {
					caught = fmt.Errorf("validating measurement %s: %v", m.Name(), r)
				}
			}()
			m.ValidateFinal()
		}()
	}
	if caught != nil {
		logging.Error("exec", caught, "Measurement finalization failed in phase %s", ps.rec.Name)
		if !outcome.IsTerminal() {
			return ExceptionOutcome(caught)
		}
	}
	return outcome
}

func (ps *PhaseState) snapshotMeasurements() {
	for _, m := range ps.measurements.All() {
		value, _ := m.Value()
		ps.rec.Measurements[m.Name()] = record.MeasurementRecord{
			Name:          m.Name(),
			Outcome:       string(m.Outcome()),
			Marginal:      m.Marginal(),
			MeasuredValue: value,
			Units:         m.Units(),
			Dimensions:    m.Dimensions(),
			Validators:    measure.DescribeValidators(m.Validators()),
			Docstring:     m.Docstring(),
		}
	}
}

func (ps *PhaseState) setPrediagnosisOutcome(outcome PhaseExecutionOutcome) {
	switch {
	case outcome.IsTerminal() && !ps.hitRepeatLimit:
		ps.rec.Outcome = record.PhaseError
	case outcome.IsRepeat() || outcome.IsSkip():
		ps.rec.Outcome = record.PhaseSkip
	case outcome.IsFailAndContinue() || outcome.IsFailSubtest():
		ps.rec.Outcome = record.PhaseFail
	case !ps.measurementsAcceptable():
		ps.rec.Outcome = record.PhaseFail
	default:
		ps.rec.Outcome = record.PhasePass
		for _, m := range ps.measurements.All() {
			if m.Marginal() {
				ps.rec.Marginal = true
				break
			}
		}
	}
}

func (ps *PhaseState) measurementsAcceptable() bool {
	for _, m := range ps.measurements.All() {
		switch m.Outcome() {
		case measure.OutcomePass:
		case measure.OutcomeUnset:
			if !ps.test.Config().AllowUnsetMeasurements {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// executeDiagnosers runs the phase diagnosers against this phase's record.
// A diagnoser error never stops the remaining diagnosers.
func (ps *PhaseState) executeDiagnosers() bool {
	erred := false
	for _, d := range ps.desc.Diagnosers() {
		diags, err := diagnosis.ExecutePhaseDiagnoser(d, ps.rec, ps.test.Diagnoses())
		if err != nil {
			logging.Error("exec", err, "Phase diagnoser failed in phase %s", ps.rec.Name)
			erred = true
			continue
		}
		for _, diag := range diags {
			if diag.IsFailure {
				ps.rec.FailureDiagnosisResults = append(ps.rec.FailureDiagnosisResults, diag.Result)
			} else {
				ps.rec.DiagnosisResults = append(ps.rec.DiagnosisResults, diag.Result)
			}
			if !diag.IsInternal {
				ps.test.Record().Diagnoses = append(ps.test.Record().Diagnoses, diag)
			}
		}
	}
	return erred
}

// setPostdiagnosisOutcome downgrades the outcome based on diagnoser results:
// a diagnoser error means ERROR unless the phase was already terminal, and a
// failure diagnosis turns a PASS into FAIL. Outcomes are never upgraded.
func (ps *PhaseState) setPostdiagnosisOutcome(outcome PhaseExecutionOutcome, diagnoserErred bool) {
	if diagnoserErred && !outcome.IsTerminal() {
		ps.rec.Outcome = record.PhaseError
		return
	}
	if ps.rec.Outcome == record.PhasePass && len(ps.rec.FailureDiagnosisResults) > 0 {
		ps.rec.Outcome = record.PhaseFail
	}
}
