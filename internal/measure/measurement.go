// Package measure implements the measurement model: named, validated values
// recorded during a phase, including multi-dimensional variants whose
// validation is deferred to phase finalization.
package measure

import (
	"errors"
	"fmt"

	"teststand/internal/diagnosis"
	"teststand/pkg/logging"
)

// Outcome is the validation state of a measurement.
type Outcome string

const (
	// OutcomeUnset means no value has been recorded.
	OutcomeUnset Outcome = "UNSET"
	// OutcomePass means the value passed every validator.
	OutcomePass Outcome = "PASS"
	// OutcomeFail means at least one validator rejected the value.
	OutcomeFail Outcome = "FAIL"
	// OutcomePartiallySet means a dimensioned measurement has values but has
	// not been validated yet; validation happens at phase finalization.
	OutcomePartiallySet Outcome = "PARTIALLY_SET"
)

var (
	// ErrInvalidDimensions is returned when a coordinate tuple's arity does
	// not match the measurement's declared dimensions.
	ErrInvalidDimensions = errors.New("invalid dimension coordinates")
	// ErrNotDimensioned is returned when dimensioned access is used on a
	// scalar measurement, or scalar access on a dimensioned one.
	ErrNotDimensioned = errors.New("measurement dimensionality mismatch")
	// ErrUnknownMeasurement is returned by Collection lookups for names that
	// were never declared on the phase.
	ErrUnknownMeasurement = errors.New("unknown measurement")
)

// Validator checks one measured value. Validators may panic to signal an
// internal error; the panic forces the measurement to FAIL and then
// propagates into the phase's terminal exception handling.
type Validator interface {
	Validate(value interface{}) bool
}

// MarginalValidator optionally extends Validator with a soft "close to the
// limit" signal. Marginality never changes PASS/FAIL.
type MarginalValidator interface {
	Validator
	IsMarginal(value interface{}) bool
}

// Transform is applied to a value before it is stored and validated.
type Transform func(value interface{}) interface{}

// Measurement is a declared, validated value slot. Templates are declared on
// phase descriptors; the phase state deep-copies every template at the start
// of each phase run so values never leak between runs.
type Measurement struct {
	name       string
	docstring  string
	units      string
	dimensions []string

	validators  []Validator
	conditional map[diagnosis.Result][]Validator
	transform   Transform

	outcome  Outcome
	marginal bool
	value    interface{}
	measured bool
	dimStore *dimStorage

	notify func(name string)
}

// New declares a measurement template.
func New(name string) *Measurement {
	return &Measurement{
		name:    name,
		outcome: OutcomeUnset,
	}
}

// WithDocstring attaches documentation.
func (m *Measurement) WithDocstring(doc string) *Measurement {
	m.docstring = doc
	return m
}

// WithUnits attaches a unit label.
func (m *Measurement) WithUnits(units string) *Measurement {
	m.units = units
	return m
}

// WithDimensions declares coordinate dimensions, making the measurement
// multi-dimensional. Values are then recorded per coordinate tuple and
// validated at phase finalization.
func (m *Measurement) WithDimensions(names ...string) *Measurement {
	m.dimensions = names
	return m
}

// WithValidator appends validators.
func (m *Measurement) WithValidator(validators ...Validator) *Measurement {
	m.validators = append(m.validators, validators...)
	return m
}

// WithTransform sets a value transform applied before storage.
func (m *Measurement) WithTransform(t Transform) *Measurement {
	m.transform = t
	return m
}

// WithConditionalValidator registers a validator that only activates if the
// given diagnosis result is already in the store when the phase begins. This
// lets authors tighten or loosen checks based on prior diagnoses.
func (m *Measurement) WithConditionalValidator(result diagnosis.Result, v Validator) *Measurement {
	if m.conditional == nil {
		m.conditional = make(map[diagnosis.Result][]Validator)
	}
	m.conditional[result] = append(m.conditional[result], v)
	return m
}

// Copy produces a fresh, unset instance of the template. Validators and the
// transform are shared (they are stateless); all mutable state is reset.
func (m *Measurement) Copy() *Measurement {
	c := &Measurement{
		name:       m.name,
		docstring:  m.docstring,
		units:      m.units,
		dimensions: append([]string(nil), m.dimensions...),
		validators: append([]Validator(nil), m.validators...),
		transform:  m.transform,
		outcome:    OutcomeUnset,
	}
	if m.conditional != nil {
		c.conditional = make(map[diagnosis.Result][]Validator, len(m.conditional))
		for r, vs := range m.conditional {
			c.conditional[r] = append([]Validator(nil), vs...)
		}
	}
	if c.Dimensioned() {
		c.dimStore = newDimStorage()
	}
	return c
}

// SetNotify wires the update hook funneling into the test state's observer
// notification.
func (m *Measurement) SetNotify(fn func(name string)) {
	m.notify = fn
}

// Name returns the declared name.
func (m *Measurement) Name() string { return m.name }

// Docstring returns the documentation string.
func (m *Measurement) Docstring() string { return m.docstring }

// Units returns the unit label.
func (m *Measurement) Units() string { return m.units }

// Dimensions returns the declared dimension names.
func (m *Measurement) Dimensions() []string { return m.dimensions }

// Dimensioned reports whether the measurement is multi-dimensional.
func (m *Measurement) Dimensioned() bool { return len(m.dimensions) > 0 }

// Outcome returns the current validation outcome.
func (m *Measurement) Outcome() Outcome { return m.outcome }

// Marginal reports whether the measurement passed but was close to a limit.
func (m *Measurement) Marginal() bool { return m.marginal }

// Measured reports whether at least one value has been recorded.
func (m *Measurement) Measured() bool { return m.measured }

// Value returns the scalar value, or the ordered dimensioned values for a
// dimensioned measurement.
func (m *Measurement) Value() (interface{}, bool) {
	if !m.measured {
		return nil, false
	}
	if m.Dimensioned() {
		return m.dimStore.values(), true
	}
	return m.value, true
}

// Validators returns the currently active validators.
func (m *Measurement) Validators() []Validator { return m.validators }

// ActivateConditionalValidators promotes conditional validators whose
// diagnosis result is already present in the store. Called once, at phase
// start, before the phase body runs.
func (m *Measurement) ActivateConditionalValidators(store *diagnosis.Store) {
	for result, vs := range m.conditional {
		if store.Has(result) {
			m.validators = append(m.validators, vs...)
			logging.Debug("measure", "Measurement %s: activated %d conditional validator(s) for %s",
				m.name, len(vs), result)
		}
	}
}

// Set stores a scalar value and validates it immediately. Overwriting a
// previously-set value is allowed but logged, since it usually indicates a
// phase bug.
func (m *Measurement) Set(value interface{}) error {
	if m.Dimensioned() {
		return fmt.Errorf("%w: %s is dimensioned, use SetDimensioned", ErrNotDimensioned, m.name)
	}
	if m.transform != nil {
		value = m.transform(value)
	}
	if m.measured {
		logging.Warn("measure", "Measurement %s overwritten (old=%v new=%v)", m.name, m.value, value)
	}
	m.value = value
	m.measured = true
	m.Validate()
	if m.notify != nil {
		m.notify(m.name)
	}
	return nil
}

// SetDimensioned stores one value at the given coordinates. The coordinate
// arity must match the declared dimensions. Validation is deferred to phase
// finalization; the outcome transitions to PARTIALLY_SET on each set.
func (m *Measurement) SetDimensioned(coordinates []interface{}, value interface{}) error {
	if !m.Dimensioned() {
		return fmt.Errorf("%w: %s is scalar, use Set", ErrNotDimensioned, m.name)
	}
	if len(coordinates) != len(m.dimensions) {
		return fmt.Errorf("%w: %s expects %d coordinate(s), got %d",
			ErrInvalidDimensions, m.name, len(m.dimensions), len(coordinates))
	}
	if m.transform != nil {
		value = m.transform(value)
	}
	m.dimStore.set(coordinates, value)
	m.measured = true
	m.outcome = OutcomePartiallySet
	if m.notify != nil {
		m.notify(m.name)
	}
	return nil
}

// Validate runs every validator against the stored value. The outcome is
// PASS iff all validators accept. A panicking validator forces FAIL and the
// panic propagates to the phase's terminal exception handling. Validation is
// idempotent: re-validating an unchanged value yields the same outcome.
func (m *Measurement) Validate() Outcome {
	if !m.measured {
		return m.outcome
	}
	value, _ := m.Value()

	defer func() {
		if r := recover(); r != nil {
			m.outcome = OutcomeFail
			panic(r)
		}
	}()

	m.marginal = false
	for _, v := range m.validators {
		if !v.Validate(value) {
			m.outcome = OutcomeFail
			return m.outcome
		}
	}
	m.outcome = OutcomePass
	for _, v := range m.validators {
		if mv, ok := v.(MarginalValidator); ok && mv.IsMarginal(value) {
			m.marginal = true
			break
		}
	}
	return m.outcome
}

// ValidateFinal validates a dimensioned measurement at phase finalization.
// It only runs if at least one value was recorded; an untouched dimensioned
// measurement stays UNSET.
func (m *Measurement) ValidateFinal() Outcome {
	if !m.Dimensioned() || !m.measured {
		return m.outcome
	}
	return m.Validate()
}
