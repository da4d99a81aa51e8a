package cmd

import (
	"teststand/internal/diagnosis"
	"teststand/internal/measure"
	"teststand/internal/phase"
	"teststand/internal/test"
	"teststand/pkg/logging"
)

// The self-check test exercises the framework end to end without hardware.
// It doubles as a worked example of declaring phases, measurements, groups,
// and diagnosers.

const diagVoltageLow diagnosis.Result = "SELFCHECK_VOLTAGE_LOW"

func selfCheckPowerOn(api phase.TestAPI) phase.Result {
	api.Logf("powering on (simulated)")
	return phase.ResultContinue
}

func selfCheckVoltage(api phase.TestAPI) phase.Result {
	if err := api.Measurements().Set("voltage", 3.31); err != nil {
		api.Logf("recording voltage: %v", err)
	}
	return phase.ResultContinue
}

func selfCheckPowerOff(api phase.TestAPI) phase.Result {
	api.Logf("powering off (simulated)")
	return phase.ResultContinue
}

func newSelfCheckTest() *test.Test {
	voltage := measure.New("voltage").
		WithUnits("V").
		WithDocstring("Simulated rail voltage").
		WithValidator(measure.InRange{Min: 3.0, Max: 3.6})

	voltageDiagnoser := diagnosis.PhaseDiagnoserFunc{
		DiagnoserName: "voltage_margin",
		ResultSet:     []diagnosis.Result{diagVoltageLow},
		Func: func(p diagnosis.PhaseRecordView, store *diagnosis.Store) ([]diagnosis.Diagnosis, error) {
			v, ok := p.MeasurementValue("voltage")
			if !ok {
				return nil, nil
			}
			if f, isFloat := v.(float64); isFloat && f < 3.2 {
				d, err := diagnosis.New(diagVoltageLow, "rail voltage near lower limit")
				if err != nil {
					return nil, err
				}
				return []diagnosis.Diagnosis{d}, nil
			}
			return nil, nil
		},
	}

	t := test.New("selfcheck",
		phase.NewGroup("power",
			phase.NewSequence(phase.New(selfCheckPowerOn)),
			phase.NewSequence(phase.New(selfCheckVoltage,
				phase.WithMeasurements(voltage),
				phase.WithDiagnosers(voltageDiagnoser),
			)),
			phase.NewSequence(phase.New(selfCheckPowerOff)),
		),
		phase.FailureCheckpoint("selfcheck_ok", phase.ResultStop),
	)
	t.SetDescription("Framework self-check with a simulated voltage measurement")
	return t
}

func init() {
	if err := registry.Register(newSelfCheckTest()); err != nil {
		logging.Fallback("registering built-in test: %v", err)
	}
}
