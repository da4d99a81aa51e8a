package measure

import "fmt"

// Collection is the name-keyed set of measurements owned by one phase
// execution. It is built from the phase descriptor's templates (deep-copied)
// and rejects every name that was not declared.
type Collection struct {
	order  []string
	byName map[string]*Measurement
}

// NewCollection deep-copies the given templates into a fresh collection.
func NewCollection(templates []*Measurement) *Collection {
	c := &Collection{
		byName: make(map[string]*Measurement, len(templates)),
	}
	for _, t := range templates {
		copied := t.Copy()
		c.order = append(c.order, copied.Name())
		c.byName[copied.Name()] = copied
	}
	return c
}

// Get returns the measurement with the given declared name.
func (c *Collection) Get(name string) (*Measurement, error) {
	m, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMeasurement, name)
	}
	return m, nil
}

// Set stores a scalar value on the named measurement.
func (c *Collection) Set(name string, value interface{}) error {
	m, err := c.Get(name)
	if err != nil {
		return err
	}
	return m.Set(value)
}

// SetDimensioned stores a value at the given coordinates on the named
// measurement.
func (c *Collection) SetDimensioned(name string, coordinates []interface{}, value interface{}) error {
	m, err := c.Get(name)
	if err != nil {
		return err
	}
	return m.SetDimensioned(coordinates, value)
}

// Value returns the recorded value of the named measurement.
func (c *Collection) Value(name string) (interface{}, error) {
	m, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	v, ok := m.Value()
	if !ok {
		return nil, fmt.Errorf("measurement %q has no value", name)
	}
	return v, nil
}

// Names returns the declared names in declaration order.
func (c *Collection) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// All returns the measurements in declaration order.
func (c *Collection) All() []*Measurement {
	out := make([]*Measurement, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}

// Len returns the number of declared measurements.
func (c *Collection) Len() int {
	return len(c.order)
}
