package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teststand/internal/config"
	"teststand/internal/record"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		outcome record.TestOutcome
		want    int
	}{
		{record.TestPass, ExitCodeSuccess},
		{record.TestFail, ExitCodeFail},
		{record.TestAborted, ExitCodeAborted},
		{record.TestError, ExitCodeError},
		{record.TestTimeout, ExitCodeError},
	}
	for _, tc := range tests {
		t.Run(string(tc.outcome), func(t *testing.T) {
			assert.Equal(t, tc.want, exitCodeFor(tc.outcome))
		})
	}
}

func TestSelfCheckTestIsRegisteredAndPasses(t *testing.T) {
	tst, ok := Registry().Get("selfcheck")
	require.True(t, ok, "built-in selfcheck test missing from registry")

	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	rec, err := tst.Execute(cfg, func() (string, error) { return "SIM-DUT", nil })
	require.NoError(t, err)

	assert.Equal(t, record.TestPass, rec.Outcome)
	assert.Equal(t, "SIM-DUT", rec.DUTID)
	require.Len(t, rec.Phases, 3)
	assert.Equal(t, "PASS", rec.Phases[1].Measurements["voltage"].Outcome)
	require.Len(t, rec.Checkpoints, 1)
	assert.False(t, rec.Checkpoints[0].Triggered)
}
