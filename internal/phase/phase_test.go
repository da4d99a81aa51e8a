package phase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teststand/internal/measure"
)

func noopPhase(api TestAPI) Result { return ResultContinue }

func TestResultNormalize(t *testing.T) {
	r, err := Result("").Normalize()
	require.NoError(t, err)
	assert.Equal(t, ResultContinue, r)

	r, err = ResultStop.Normalize()
	require.NoError(t, err)
	assert.Equal(t, ResultStop, r)

	_, err = Result("BOGUS").Normalize()
	assert.ErrorIs(t, err, ErrInvalidResult)
}

func TestNewResolvesCodeInfo(t *testing.T) {
	d := New(noopPhase)
	info := d.CodeInfo()
	assert.Equal(t, "noopPhase", info.Name)
	assert.Equal(t, "phase_test.go", info.SourceFile)
	assert.NotZero(t, info.Line)
	assert.Equal(t, "noopPhase", d.Name())
}

func TestWrapOrCopy(t *testing.T) {
	t.Run("wraps a plain function", func(t *testing.T) {
		d, err := WrapOrCopy(Func(noopPhase), WithTimeout(time.Second))
		require.NoError(t, err)
		assert.Equal(t, time.Second, d.Options().Timeout)
	})

	t.Run("copies a descriptor without mutating it", func(t *testing.T) {
		orig := New(noopPhase, WithTimeout(time.Second))
		copied, err := WrapOrCopy(orig, WithTimeout(2*time.Second))
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, copied.Options().Timeout)
		assert.Equal(t, time.Second, orig.Options().Timeout)
	})

	t.Run("rejects non-phases", func(t *testing.T) {
		_, err := WrapOrCopy(42)
		assert.ErrorIs(t, err, ErrNotPhase)
	})
}

func TestWithArgsSubstitutesNameAndKeepsUnknownKeys(t *testing.T) {
	orig := New(noopPhase, WithName("measure {rail} rail"))

	specialized := orig.WithArgs(map[string]interface{}{
		"rail":    "3v3",
		"ignored": true,
	})
	assert.Equal(t, "measure 3v3 rail", specialized.Name())
	// Unknown keys are broadcast: kept silently for other phases to consume.
	assert.Equal(t, true, specialized.Args()["ignored"])

	// The original template is untouched.
	assert.Equal(t, "measure {rail} rail", orig.Name())
	assert.Empty(t, orig.Args())
}

func TestWithPlugsSubstitutesKinds(t *testing.T) {
	orig := New(noopPhase, WithPlugDecl("dmm", "sim_dmm"))

	specialized := orig.WithPlugs(map[string]string{
		"dmm":     "real_dmm",
		"unknown": "whatever",
	})
	require.Len(t, specialized.Plugs(), 1)
	assert.Equal(t, "real_dmm", specialized.Plugs()[0].Kind)
	assert.Equal(t, "sim_dmm", orig.Plugs()[0].Kind)
}

func TestCopyIsolatesMeasurementTemplates(t *testing.T) {
	orig := New(noopPhase, WithMeasurements(measure.New("v")))
	copied, err := WrapOrCopy(orig)
	require.NoError(t, err)
	require.Len(t, copied.Measurements(), 1)
	assert.NotSame(t, orig.Measurements()[0], copied.Measurements()[0])
}

func TestCheckSubtestNames(t *testing.T) {
	ok := NewSequence(
		NewSubtest("first", New(noopPhase)),
		NewSubtest("second", New(noopPhase)),
	)
	assert.NoError(t, CheckSubtestNames(ok))

	dup := NewSequence(
		NewSubtest("same", New(noopPhase)),
		NewGroup("g", nil, NewSequence(NewSubtest("same", New(noopPhase))), nil),
	)
	assert.ErrorIs(t, CheckSubtestNames(dup), ErrDuplicateSubtestName)
}

func TestCheckCheckpointPlacement(t *testing.T) {
	ok := NewSequence(
		NewSubtest("s", New(noopPhase), FailureCheckpoint("inside", ResultFailSubtest)),
		FailureCheckpoint("outside", ResultStop),
	)
	assert.NoError(t, CheckCheckpointPlacement(ok))

	bad := NewSequence(
		FailureCheckpoint("outside", ResultFailSubtest),
	)
	assert.ErrorIs(t, CheckCheckpointPlacement(bad), ErrCheckpointOutsideSubtest)

	nested := NewSequence(
		NewGroup("g", nil, NewSequence(FailureCheckpoint("in_group", ResultFailSubtest)), nil),
	)
	assert.ErrorIs(t, CheckCheckpointPlacement(nested), ErrCheckpointOutsideSubtest)
}

func TestWalkVisitsDepthFirst(t *testing.T) {
	leafA := New(noopPhase, WithName("a"))
	leafB := New(noopPhase, WithName("b"))
	root := NewSequence(
		NewGroup("g", NewSequence(leafA), NewSequence(leafB), nil),
	)

	var names []string
	root.Walk(func(n Node) { names = append(names, n.Name()) })
	assert.Equal(t, []string{"sequence", "g", "sequence", "a", "sequence", "b"}, names)
}
