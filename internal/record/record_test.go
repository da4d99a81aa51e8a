package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teststand/internal/diagnosis"
)

func TestFinalizeOutcomeIsWriteOnce(t *testing.T) {
	r := NewTestRecord("run-1", "DUT1", "station-1")

	assert.True(t, r.FinalizeOutcome(TestPass))
	assert.False(t, r.FinalizeOutcome(TestFail))
	assert.Equal(t, TestPass, r.Outcome)
}

func TestAbortedOverridesAndSticks(t *testing.T) {
	r := NewTestRecord("run-1", "DUT1", "station-1")

	assert.True(t, r.FinalizeOutcome(TestFail))
	assert.True(t, r.FinalizeOutcome(TestAborted), "ABORTED overrides an existing outcome")
	assert.Equal(t, TestAborted, r.Outcome)

	assert.False(t, r.FinalizeOutcome(TestAborted), "second abort is a no-op")
	assert.False(t, r.FinalizeOutcome(TestPass))
	assert.Equal(t, TestAborted, r.Outcome)
}

func TestAnyPhaseFailedAndLastPhase(t *testing.T) {
	r := NewTestRecord("run-1", "DUT1", "station-1")
	assert.Nil(t, r.LastPhase())
	assert.False(t, r.AnyPhaseFailed())

	r.Phases = append(r.Phases,
		&PhaseRecord{Name: "a", Outcome: PhasePass},
		&PhaseRecord{Name: "b", Outcome: PhaseFail},
	)
	assert.True(t, r.AnyPhaseFailed())
	assert.Equal(t, "b", r.LastPhase().Name)
}

func TestAttachmentHash(t *testing.T) {
	a := NewAttachment("log.txt", []byte("hello"), "text/plain")
	// sha1("hello")
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", a.SHA1)
	assert.Equal(t, "text/plain", a.MimeType)
}

func TestPhaseRecordImplementsDiagnoserView(t *testing.T) {
	p := &PhaseRecord{
		Name:    "measure_rail",
		Outcome: PhaseFail,
		Measurements: map[string]MeasurementRecord{
			"voltage": {Name: "voltage", Outcome: "FAIL", MeasuredValue: 2.5},
		},
	}
	var view diagnosis.PhaseRecordView = p

	assert.Equal(t, "measure_rail", view.PhaseName())
	assert.True(t, view.Failed())

	// ERROR counts as failed for diagnosers; PASS and SKIP do not.
	assert.True(t, (&PhaseRecord{Outcome: PhaseError}).Failed())
	assert.False(t, (&PhaseRecord{Outcome: PhasePass}).Failed())
	assert.False(t, (&PhaseRecord{Outcome: PhaseSkip}).Failed())

	v, ok := view.MeasurementValue("voltage")
	require.True(t, ok)
	assert.Equal(t, 2.5, v)

	passed, exists := view.MeasurementPassed("voltage")
	assert.True(t, exists)
	assert.False(t, passed)

	_, ok = view.MeasurementValue("missing")
	assert.False(t, ok)
}

func TestTestRecordView(t *testing.T) {
	r := NewTestRecord("run-1", "DUT1", "station-1")
	r.Phases = append(r.Phases, &PhaseRecord{Name: "a"}, &PhaseRecord{Name: "b"})

	view := r.View()
	assert.Equal(t, "DUT1", view.DUTID())
	views := view.PhaseViews()
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0].PhaseName())
}

func TestAsBaseTypesStableKeys(t *testing.T) {
	r := NewTestRecord("run-1", "DUT1", "station-1")
	r.FinalizeOutcome(TestPass)
	r.Phases = append(r.Phases, &PhaseRecord{
		Name:    "p",
		Outcome: PhasePass,
		Measurements: map[string]MeasurementRecord{
			"v": {Name: "v", Outcome: "PASS", MeasuredValue: 1.0, Units: "V"},
		},
		Attachments: map[string]Attachment{
			"blob": NewAttachment("blob", []byte{1, 2}, "application/octet-stream"),
		},
		DiagnosisResults:        []diagnosis.Result{"OK"},
		FailureDiagnosisResults: []diagnosis.Result{},
	})
	r.Diagnoses = append(r.Diagnoses, diagnosis.MustNew("OK", "fine"))

	base := r.AsBaseTypes()
	for _, key := range []string{
		"dut_id", "station_id", "start_time_millis", "end_time_millis",
		"outcome", "outcome_details", "marginal", "metadata", "phases",
		"subtests", "branches", "checkpoints", "diagnosers", "diagnoses",
		"log_records",
	} {
		assert.Contains(t, base, key, "test record key %s", key)
	}
	assert.Equal(t, "PASS", base["outcome"])

	phases := base["phases"].([]interface{})
	require.Len(t, phases, 1)
	pb := phases[0].(map[string]interface{})
	for _, key := range []string{
		"name", "codeinfo", "measurements", "options", "diagnosis_results",
		"failure_diagnosis_results", "start_time_millis", "end_time_millis",
		"attachments", "result", "outcome", "marginal",
	} {
		assert.Contains(t, pb, key, "phase record key %s", key)
	}

	// Attachment data stays out of the serialized form; only the hash goes.
	ab := pb["attachments"].(map[string]interface{})["blob"].(map[string]interface{})
	assert.Contains(t, ab, "sha1")
	assert.NotContains(t, ab, "data")
}
