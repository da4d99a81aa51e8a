package exec

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teststand/internal/config"
	"teststand/internal/diagnosis"
	"teststand/internal/measure"
	"teststand/internal/phase"
	"teststand/internal/plug"
	"teststand/internal/record"
)

func execConfig() config.Config {
	cfg := config.Default()
	cfg.StationID = "bench-1"
	cfg.CancelTimeoutS = 0.2
	cfg.DefaultPhaseTimeoutS = 5
	cfg.TeardownTimeoutS = 5
	return cfg
}

func runTree(t *testing.T, cfg config.Config, root phase.Node) *record.TestRecord {
	t.Helper()
	state := NewTestState(cfg, "run-test", "DUT1", nil)
	return NewTestExecutor(cfg, state, root, nil).Execute(nil)
}

func passingPhase(name string) *phase.Descriptor {
	return phase.New(func(api phase.TestAPI) phase.Result {
		return phase.ResultContinue
	}, phase.WithName(name))
}

func failingPhase(name string) *phase.Descriptor {
	return phase.New(func(api phase.TestAPI) phase.Result {
		return phase.ResultFailAndContinue
	}, phase.WithName(name))
}

func TestPassingRun(t *testing.T) {
	root := phase.NewSequence(
		phase.New(func(api phase.TestAPI) phase.Result {
			api.Measurements().Set("voltage", 3.3)
			return phase.ResultContinue
		}, phase.WithName("power_on"), phase.WithMeasurements(
			measure.New("voltage").WithUnits("V").WithValidator(measure.InRange{Min: 3.0, Max: 3.6}))),
		passingPhase("power_off"),
	)

	rec := runTree(t, execConfig(), root)

	assert.Equal(t, record.TestPass, rec.Outcome)
	assert.Equal(t, "DUT1", rec.DUTID)
	assert.Equal(t, "bench-1", rec.StationID)
	require.Len(t, rec.Phases, 2)
	assert.Equal(t, record.PhasePass, rec.Phases[0].Outcome)
	assert.Equal(t, "PASS", rec.Phases[0].Measurements["voltage"].Outcome)
	assert.NotZero(t, rec.StartTimeMillis)
	assert.GreaterOrEqual(t, rec.EndTimeMillis, rec.StartTimeMillis)
}

func TestVacuousPass(t *testing.T) {
	rec := runTree(t, execConfig(), phase.NewSequence())
	assert.Equal(t, record.TestPass, rec.Outcome)
	assert.Empty(t, rec.Phases)
}

func TestFailingMeasurementFailsTest(t *testing.T) {
	root := phase.NewSequence(
		phase.New(func(api phase.TestAPI) phase.Result {
			api.Measurements().Set("voltage", 9.9)
			return phase.ResultContinue
		}, phase.WithName("overvolt"), phase.WithMeasurements(
			measure.New("voltage").WithValidator(measure.InRange{Min: 3.0, Max: 3.6}))),
		passingPhase("after"),
	)

	rec := runTree(t, execConfig(), root)

	assert.Equal(t, record.TestFail, rec.Outcome)
	require.Len(t, rec.Phases, 2, "FAIL is not terminal, later phases still run")
	assert.Equal(t, record.PhaseFail, rec.Phases[0].Outcome)
	assert.Equal(t, record.PhasePass, rec.Phases[1].Outcome)
}

func TestGroupTeardownRunsAfterMainErrors(t *testing.T) {
	root := phase.NewSequence(phase.NewGroup("power",
		phase.NewSequence(passingPhase("setup")),
		phase.NewSequence(phase.New(func(api phase.TestAPI) phase.Result {
			panic("short circuit")
		}, phase.WithName("main"))),
		phase.NewSequence(passingPhase("teardown")),
	))

	rec := runTree(t, execConfig(), root)

	assert.Equal(t, record.TestError, rec.Outcome)
	require.Len(t, rec.Phases, 3, "teardown runs because setup completed")
	assert.Equal(t, record.PhasePass, rec.Phases[0].Outcome)
	assert.Equal(t, record.PhaseError, rec.Phases[1].Outcome)
	assert.Equal(t, record.PhasePass, rec.Phases[2].Outcome)
}

func TestGroupTeardownSkippedWhenSetupTerminal(t *testing.T) {
	root := phase.NewSequence(phase.NewGroup("power",
		phase.NewSequence(phase.New(func(api phase.TestAPI) phase.Result {
			return phase.ResultStop
		}, phase.WithName("setup"))),
		phase.NewSequence(passingPhase("main")),
		phase.NewSequence(passingPhase("teardown")),
	))

	rec := runTree(t, execConfig(), root)

	require.Len(t, rec.Phases, 1, "group was never entered, teardown is skipped")
	assert.Equal(t, "setup", rec.Phases[0].Name)
}

func TestSubtestFailSkipsSiblings(t *testing.T) {
	root := phase.NewSequence(
		phase.NewSubtest("power_rail",
			phase.New(func(api phase.TestAPI) phase.Result {
				return phase.ResultFailSubtest
			}, phase.WithName("check")),
			passingPhase("sibling"),
		),
		passingPhase("after"),
	)

	rec := runTree(t, execConfig(), root)

	assert.Equal(t, record.TestFail, rec.Outcome)
	require.Len(t, rec.Phases, 3)
	assert.Equal(t, record.PhaseFail, rec.Phases[0].Outcome)
	assert.Equal(t, record.PhaseSkip, rec.Phases[1].Outcome, "siblings in a failed subtest are skipped individually")
	assert.Equal(t, record.PhasePass, rec.Phases[2].Outcome, "phases after the subtest still run")

	require.Len(t, rec.Subtests, 1)
	assert.Equal(t, "power_rail", rec.Subtests[0].Name)
	assert.Equal(t, record.SubtestFail, rec.Subtests[0].Outcome)
}

func TestFailSubtestOutsideSubtestIsError(t *testing.T) {
	root := phase.NewSequence(phase.New(func(api phase.TestAPI) phase.Result {
		return phase.ResultFailSubtest
	}, phase.WithName("misplaced")))

	rec := runTree(t, execConfig(), root)
	assert.Equal(t, record.TestError, rec.Outcome)
}

func TestAllSkippedIsError(t *testing.T) {
	never := func(*diagnosis.Store) (bool, error) { return false, nil }
	root := phase.NewSequence(
		phase.New(func(api phase.TestAPI) phase.Result { return phase.ResultContinue },
			phase.WithName("a"), phase.WithRunIf(never)),
		phase.New(func(api phase.TestAPI) phase.Result { return phase.ResultContinue },
			phase.WithName("b"), phase.WithRunIf(never)),
	)

	rec := runTree(t, execConfig(), root)

	assert.Equal(t, record.TestError, rec.Outcome)
	assert.Contains(t, rec.OutcomeDetails, "every phase was skipped")
}

func TestStopOnFirstFailure(t *testing.T) {
	cfg := execConfig()
	cfg.StopOnFirstFailure = true

	t.Run("top-level failure stops the run", func(t *testing.T) {
		root := phase.NewSequence(failingPhase("bad"), passingPhase("never"))
		rec := runTree(t, cfg, root)
		assert.Equal(t, record.TestFail, rec.Outcome)
		require.Len(t, rec.Phases, 1)
	})

	t.Run("nested failure does not trigger the early stop", func(t *testing.T) {
		root := phase.NewSequence(
			phase.GroupOf("g", failingPhase("bad"), passingPhase("still_runs")),
		)
		rec := runTree(t, cfg, root)
		assert.Equal(t, record.TestFail, rec.Outcome)
		require.Len(t, rec.Phases, 2)
	})
}

func TestTimeoutFinalizesTest(t *testing.T) {
	root := phase.NewSequence(
		phase.New(func(api phase.TestAPI) phase.Result {
			<-api.Context().Done()
			return phase.ResultContinue
		}, phase.WithName("slow"), phase.WithTimeout(50*time.Millisecond)),
		passingPhase("never"),
	)

	rec := runTree(t, execConfig(), root)

	assert.Equal(t, record.TestTimeout, rec.Outcome)
	require.Len(t, rec.Phases, 1)
}

func TestFailureExceptionMatcher(t *testing.T) {
	cfg := execConfig()
	root := phase.NewSequence(phase.New(func(api phase.TestAPI) phase.Result {
		panic("dut gave up")
	}, phase.WithName("fragile")))

	state := NewTestState(cfg, "run-test", "DUT1", nil)
	state.SetFailureExceptions([]FailureExceptionMatcher{
		func(err error) bool { return err != nil && strings.Contains(err.Error(), "dut gave up") },
	})
	rec := NewTestExecutor(cfg, state, root, nil).Execute(nil)

	assert.Equal(t, record.TestFail, rec.Outcome, "declared failure exceptions mean DUT failure, not framework error")
}

func TestAbortDuringPhase(t *testing.T) {
	cfg := execConfig()
	root := phase.NewSequence(
		phase.New(func(api phase.TestAPI) phase.Result {
			<-api.Context().Done()
			return phase.ResultContinue
		}, phase.WithName("blocking")),
		passingPhase("never"),
	)

	state := NewTestState(cfg, "run-test", "DUT1", nil)
	e := NewTestExecutor(cfg, state, root, nil)
	go func() {
		time.Sleep(150 * time.Millisecond)
		e.Abort()
	}()
	rec := e.Execute(nil)

	assert.Equal(t, record.TestAborted, rec.Outcome)
	assert.True(t, state.Aborted())
	for _, p := range rec.Phases {
		assert.NotEqual(t, "never", p.Name)
	}
}

func TestAbortStillRunsGroupTeardown(t *testing.T) {
	cfg := execConfig()
	var cleanupRan bool
	root := phase.NewSequence(phase.NewGroup("power",
		phase.NewSequence(passingPhase("setup")),
		phase.NewSequence(phase.New(func(api phase.TestAPI) phase.Result {
			<-api.Context().Done()
			return phase.ResultContinue
		}, phase.WithName("main"))),
		phase.NewSequence(phase.New(func(api phase.TestAPI) phase.Result {
			cleanupRan = true
			return phase.ResultContinue
		}, phase.WithName("cleanup"))),
	))

	state := NewTestState(cfg, "run-test", "DUT1", nil)
	e := NewTestExecutor(cfg, state, root, nil)
	go func() {
		time.Sleep(150 * time.Millisecond)
		e.Abort()
	}()
	rec := e.Execute(nil)

	assert.Equal(t, record.TestAborted, rec.Outcome)
	assert.True(t, cleanupRan, "a single abort must still run group teardown")
	names := make([]string, 0, len(rec.Phases))
	for _, p := range rec.Phases {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "cleanup")
}

func TestSecondAbortSkipsRemainingTeardown(t *testing.T) {
	cfg := execConfig()
	var lateCleanupRan bool
	root := phase.NewSequence(phase.NewGroup("power",
		phase.NewSequence(passingPhase("setup")),
		phase.NewSequence(phase.New(func(api phase.TestAPI) phase.Result {
			<-api.Context().Done()
			return phase.ResultContinue
		}, phase.WithName("main"))),
		phase.NewSequence(
			phase.New(func(api phase.TestAPI) phase.Result {
				<-api.Context().Done()
				return phase.ResultContinue
			}, phase.WithName("cleanup")),
			phase.New(func(api phase.TestAPI) phase.Result {
				lateCleanupRan = true
				return phase.ResultContinue
			}, phase.WithName("late_cleanup")),
		),
	))

	state := NewTestState(cfg, "run-test", "DUT1", nil)
	e := NewTestExecutor(cfg, state, root, nil)
	go func() {
		time.Sleep(100 * time.Millisecond)
		e.Abort()
		time.Sleep(300 * time.Millisecond)
		e.Abort()
	}()
	rec := e.Execute(nil)

	assert.Equal(t, record.TestAborted, rec.Outcome)
	assert.False(t, lateCleanupRan, "a full abort skips the rest of teardown")
	for _, p := range rec.Phases {
		assert.NotEqual(t, "late_cleanup", p.Name)
	}
}

func TestBranchRecordsTakenAndNotTaken(t *testing.T) {
	const diagSeen diagnosis.Result = "BRANCH_SEEN"
	cfg := execConfig()
	root := phase.NewSequence(
		phase.BranchOnAny("when_seen", []diagnosis.Result{diagSeen}, passingPhase("taken_child")),
		phase.BranchOnAny("when_missing", []diagnosis.Result{"NEVER_SET"}, passingPhase("skipped_child")),
	)

	state := NewTestState(cfg, "run-test", "DUT1", nil)
	state.Diagnoses().Add(diagnosis.MustNew(diagSeen, "preset"))
	rec := NewTestExecutor(cfg, state, root, nil).Execute(nil)

	require.Len(t, rec.Branches, 2, "branches are recorded whether taken or not")
	assert.True(t, rec.Branches[0].Taken)
	assert.False(t, rec.Branches[1].Taken)

	require.Len(t, rec.Phases, 1)
	assert.Equal(t, "taken_child", rec.Phases[0].Name)
}

func TestCheckpoint(t *testing.T) {
	t.Run("triggered stop halts the run", func(t *testing.T) {
		root := phase.NewSequence(
			failingPhase("bad"),
			phase.FailureCheckpoint("gate", phase.ResultStop),
			passingPhase("never"),
		)
		rec := runTree(t, execConfig(), root)

		assert.Equal(t, record.TestFail, rec.Outcome)
		require.Len(t, rec.Phases, 1)
		require.Len(t, rec.Checkpoints, 1)
		assert.True(t, rec.Checkpoints[0].Triggered)
	})

	t.Run("untriggered checkpoint is still recorded", func(t *testing.T) {
		root := phase.NewSequence(
			passingPhase("good"),
			phase.FailureCheckpoint("gate", phase.ResultStop),
			passingPhase("after"),
		)
		rec := runTree(t, execConfig(), root)

		assert.Equal(t, record.TestPass, rec.Outcome)
		require.Len(t, rec.Phases, 2)
		require.Len(t, rec.Checkpoints, 1)
		assert.False(t, rec.Checkpoints[0].Triggered)
	})

	t.Run("fail_subtest checkpoint fails the subtest and continues", func(t *testing.T) {
		root := phase.NewSequence(
			phase.NewSubtest("rail",
				failingPhase("bad"),
				phase.FailureCheckpoint("gate", phase.ResultFailSubtest),
				passingPhase("sibling"),
			),
			passingPhase("after"),
		)
		rec := runTree(t, execConfig(), root)

		assert.Equal(t, record.TestFail, rec.Outcome)
		require.Len(t, rec.Subtests, 1)
		assert.Equal(t, record.SubtestFail, rec.Subtests[0].Outcome)
		require.Len(t, rec.Phases, 3)
		assert.Equal(t, record.PhaseSkip, rec.Phases[1].Outcome)
		assert.Equal(t, record.PhasePass, rec.Phases[2].Outcome)
	})
}

type fakeDMM struct {
	readings int
	tornDown bool
}

func (f *fakeDMM) TearDown() { f.tornDown = true }

func TestPlugsProvidedAndTornDown(t *testing.T) {
	cfg := execConfig()
	dmm := &fakeDMM{}
	mgr := plug.NewManager()
	require.NoError(t, mgr.Register("dmm", func() (plug.Plug, error) { return dmm, nil }))

	root := phase.NewSequence(phase.New(func(api phase.TestAPI) phase.Result {
		p, ok := api.Plug("meter")
		if !ok {
			return phase.ResultStop
		}
		p.(*fakeDMM).readings++
		return phase.ResultContinue
	}, phase.WithName("read"), phase.WithPlugDecl("meter", "dmm")))

	state := NewTestState(cfg, "run-test", "", mgr)
	rec := NewTestExecutor(cfg, state, root, nil).Execute(func() (string, error) {
		return "DUT42", nil
	})

	assert.Equal(t, record.TestPass, rec.Outcome)
	assert.Equal(t, "DUT42", rec.DUTID)
	assert.Equal(t, 1, dmm.readings)
	assert.True(t, dmm.tornDown, "plugs are torn down when the run ends")
}

func TestStartTriggerFailure(t *testing.T) {
	cfg := execConfig()
	state := NewTestState(cfg, "run-test", "", nil)
	root := phase.NewSequence(passingPhase("never"))

	rec := NewTestExecutor(cfg, state, root, nil).Execute(func() (string, error) {
		return "", errors.New("operator walked away")
	})

	assert.Equal(t, record.TestError, rec.Outcome)
	assert.Empty(t, rec.Phases)
}

func TestTestDiagnosersRunAfterTraversal(t *testing.T) {
	const diagSlow diagnosis.Result = "RUN_WAS_SLOW"
	cfg := execConfig()
	root := phase.NewSequence(passingPhase("only"))

	td := diagnosis.TestDiagnoserFunc{
		DiagnoserName: "pace",
		ResultSet:     []diagnosis.Result{diagSlow},
		Func: func(view diagnosis.TestRecordView, store *diagnosis.Store) ([]diagnosis.Diagnosis, error) {
			return []diagnosis.Diagnosis{diagnosis.MustNew(diagSlow, "took a while")}, nil
		},
	}

	state := NewTestState(cfg, "run-test", "DUT1", nil)
	rec := NewTestExecutor(cfg, state, root, []diagnosis.TestDiagnoser{td}).Execute(nil)

	assert.Equal(t, record.TestPass, rec.Outcome, "non-failure diagnoses do not fail the test")
	require.Len(t, rec.Diagnoses, 1)
	assert.Equal(t, diagSlow, rec.Diagnoses[0].Result)

	// Declared diagnosers are listed on the record up front.
	require.Len(t, rec.Diagnosers, 1)
	assert.Equal(t, "pace", rec.Diagnosers[0].Name)
	assert.Equal(t, "test", rec.Diagnosers[0].Kind)
}

func TestErroringTestDiagnoserErrorsTest(t *testing.T) {
	cfg := execConfig()
	root := phase.NewSequence(passingPhase("only"))

	td := diagnosis.TestDiagnoserFunc{
		DiagnoserName: "broken",
		ResultSet:     []diagnosis.Result{"UNUSED"},
		Func: func(diagnosis.TestRecordView, *diagnosis.Store) ([]diagnosis.Diagnosis, error) {
			return nil, errors.New("diagnoser bug")
		},
	}

	state := NewTestState(cfg, "run-test", "DUT1", nil)
	rec := NewTestExecutor(cfg, state, root, []diagnosis.TestDiagnoser{td}).Execute(nil)

	assert.Equal(t, record.TestError, rec.Outcome)
}

func TestMarginalMeasurementEscalates(t *testing.T) {
	lo, hi := 3.1, 3.5
	root := phase.NewSequence(phase.New(func(api phase.TestAPI) phase.Result {
		api.Measurements().Set("voltage", 3.55)
		return phase.ResultContinue
	}, phase.WithName("edge"), phase.WithMeasurements(
		measure.New("voltage").WithValidator(
			measure.InRange{Min: 3.0, Max: 3.6, MarginalMin: &lo, MarginalMax: &hi}))))

	rec := runTree(t, execConfig(), root)

	assert.Equal(t, record.TestPass, rec.Outcome)
	require.Len(t, rec.Phases, 1)
	assert.True(t, rec.Phases[0].Marginal)
	assert.True(t, rec.Marginal, "phase marginality lifts onto the test record")
}
