package measure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teststand/internal/diagnosis"
)

func TestScalarSetValidatesImmediately(t *testing.T) {
	m := New("voltage").WithValidator(InRange{Min: 1, Max: 5}).Copy()

	require.NoError(t, m.Set(3.0))
	assert.Equal(t, OutcomePass, m.Outcome())

	require.NoError(t, m.Set(9.0))
	assert.Equal(t, OutcomeFail, m.Outcome())
}

func TestValidateIsIdempotent(t *testing.T) {
	m := New("current").WithValidator(InRange{Min: 0, Max: 10}).Copy()
	require.NoError(t, m.Set(4))

	first := m.Validate()
	second := m.Validate()
	assert.Equal(t, first, second)
	assert.Equal(t, OutcomePass, second)
}

func TestDimensionArityRejected(t *testing.T) {
	m := New("sweep").WithDimensions("freq", "power").Copy()

	err := m.SetDimensioned([]interface{}{1.0}, 42)
	require.ErrorIs(t, err, ErrInvalidDimensions)

	err = m.SetDimensioned([]interface{}{1.0, 2.0, 3.0}, 42)
	require.ErrorIs(t, err, ErrInvalidDimensions)

	require.NoError(t, m.SetDimensioned([]interface{}{1.0, 2.0}, 42))
	assert.Equal(t, OutcomePartiallySet, m.Outcome())
}

func TestDimensionedValidationDeferred(t *testing.T) {
	m := New("sweep").WithDimensions("freq").Copy()

	// Untouched dimensioned measurements stay UNSET even after finalization.
	assert.Equal(t, OutcomeUnset, m.ValidateFinal())

	require.NoError(t, m.SetDimensioned([]interface{}{100}, 1.0))
	require.NoError(t, m.SetDimensioned([]interface{}{200}, 2.0))
	assert.Equal(t, OutcomePartiallySet, m.Outcome())

	assert.Equal(t, OutcomePass, m.ValidateFinal())
}

func TestDimensionedReplaceSameCoordinates(t *testing.T) {
	m := New("sweep").WithDimensions("freq").Copy()
	require.NoError(t, m.SetDimensioned([]interface{}{100}, 1.0))
	require.NoError(t, m.SetDimensioned([]interface{}{100}, 9.0))

	v, ok := m.Value()
	require.True(t, ok)
	values := v.([]DimensionedValue)
	require.Len(t, values, 1)
	assert.Equal(t, 9.0, values[0].Value)
}

func TestScalarRejectsDimensionedAccess(t *testing.T) {
	scalar := New("x").Copy()
	err := scalar.SetDimensioned([]interface{}{1}, 2)
	assert.ErrorIs(t, err, ErrNotDimensioned)

	dim := New("y").WithDimensions("t").Copy()
	err = dim.Set(2)
	assert.ErrorIs(t, err, ErrNotDimensioned)
}

func TestMarginalFlag(t *testing.T) {
	lo, hi := 2.0, 8.0
	m := New("temp").
		WithValidator(InRange{Min: 0, Max: 10, MarginalMin: &lo, MarginalMax: &hi}).
		Copy()

	require.NoError(t, m.Set(5.0))
	assert.Equal(t, OutcomePass, m.Outcome())
	assert.False(t, m.Marginal())

	require.NoError(t, m.Set(9.0))
	assert.Equal(t, OutcomePass, m.Outcome())
	assert.True(t, m.Marginal())
}

func TestTransformAppliedBeforeValidation(t *testing.T) {
	m := New("scaled").
		WithTransform(func(v interface{}) interface{} { return v.(float64) * 10 }).
		WithValidator(InRange{Min: 25, Max: 35}).
		Copy()

	require.NoError(t, m.Set(3.0))
	assert.Equal(t, OutcomePass, m.Outcome())
	v, _ := m.Value()
	assert.Equal(t, 30.0, v)
}

func TestConditionalValidatorActivation(t *testing.T) {
	const tightened diagnosis.Result = "TIGHTEN_LIMITS"
	template := New("v").
		WithValidator(InRange{Min: 0, Max: 100}).
		WithConditionalValidator(tightened, InRange{Min: 0, Max: 10})

	store := diagnosis.NewStore()

	// Without the diagnosis the loose limit applies.
	loose := template.Copy()
	loose.ActivateConditionalValidators(store)
	require.NoError(t, loose.Set(50.0))
	assert.Equal(t, OutcomePass, loose.Outcome())

	store.Add(diagnosis.MustNew(tightened, "tighten"))
	tight := template.Copy()
	tight.ActivateConditionalValidators(store)
	require.NoError(t, tight.Set(50.0))
	assert.Equal(t, OutcomeFail, tight.Outcome())
}

func TestCopyIsolatesState(t *testing.T) {
	template := New("v").WithValidator(InRange{Min: 0, Max: 1})
	a := template.Copy()
	require.NoError(t, a.Set(0.5))

	b := template.Copy()
	assert.Equal(t, OutcomeUnset, b.Outcome())
	assert.False(t, b.Measured())
}

func TestCollectionRejectsUnknownNames(t *testing.T) {
	c := NewCollection([]*Measurement{New("known")})

	err := c.Set("unknown", 1)
	assert.ErrorIs(t, err, ErrUnknownMeasurement)

	_, err = c.Get("unknown")
	assert.ErrorIs(t, err, ErrUnknownMeasurement)

	require.NoError(t, c.Set("known", 1))
	v, err := c.Value("known")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name      string
		validator Validator
		value     interface{}
		want      bool
	}{
		{"in range", InRange{Min: 1, Max: 3}, 2, true},
		{"below range", InRange{Min: 1, Max: 3}, 0, false},
		{"range inclusive", InRange{Min: 1, Max: 3}, 3.0, true},
		{"within percent", WithinPercent{Expected: 100, Percent: 5}, 104.0, true},
		{"outside percent", WithinPercent{Expected: 100, Percent: 5}, 106.0, false},
		{"equals", Equals{Expected: "ok"}, "ok", true},
		{"equals mismatch", Equals{Expected: "ok"}, "nope", false},
		{"matches", MatchesPattern(`^SN\d{4}$`), "SN0042", true},
		{"matches mismatch", MatchesPattern(`^SN\d{4}$`), "SN42", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.validator.Validate(tc.value))
		})
	}
}
