package record

import "teststand/internal/diagnosis"

// PhaseRecord implements diagnosis.PhaseRecordView so diagnosers can inspect
// finished phases without the diagnosis package importing record types.

// PhaseName returns the phase's reported name.
func (p *PhaseRecord) PhaseName() string {
	return p.Name
}

// Failed reports whether the phase finished with outcome FAIL or ERROR.
func (p *PhaseRecord) Failed() bool {
	return p.Outcome == PhaseFail || p.Outcome == PhaseError
}

// MeasurementValue returns the measured value of a named measurement and
// whether a value was recorded.
func (p *PhaseRecord) MeasurementValue(name string) (interface{}, bool) {
	m, ok := p.Measurements[name]
	if !ok || m.MeasuredValue == nil {
		return nil, false
	}
	return m.MeasuredValue, true
}

// MeasurementPassed reports whether the named measurement validated PASS, and
// whether the measurement exists at all.
func (p *PhaseRecord) MeasurementPassed(name string) (bool, bool) {
	m, ok := p.Measurements[name]
	if !ok {
		return false, false
	}
	return m.Outcome == "PASS", true
}

// testRecordView adapts a TestRecord to diagnosis.TestRecordView. An adapter
// is used because the DUTID field name would collide with the interface
// method.
type testRecordView struct {
	record *TestRecord
}

func (v testRecordView) DUTID() string {
	return v.record.DUTID
}

func (v testRecordView) PhaseViews() []diagnosis.PhaseRecordView {
	views := make([]diagnosis.PhaseRecordView, 0, len(v.record.Phases))
	for _, p := range v.record.Phases {
		views = append(views, p)
	}
	return views
}

// View exposes the record to test diagnosers.
func (r *TestRecord) View() diagnosis.TestRecordView {
	return testRecordView{record: r}
}
