package measure

import (
	"fmt"
	"regexp"
	"strings"
)

// toFloat coerces numeric values for the numeric validators. Non-numeric
// values panic, which forces the measurement to FAIL and surfaces as a phase
// error (a numeric validator on a non-numeric value is an authoring bug).
func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint64:
		return float64(v)
	default:
		panic(fmt.Sprintf("validator: non-numeric value %v (%T)", value, value))
	}
}

// InRange validates that a numeric value is within [Min, Max] inclusive.
// Optional marginal bounds flag values that pass but sit close to a limit.
type InRange struct {
	Min float64
	Max float64
	// MarginalMin/MarginalMax, when non-nil, define the inner band; values
	// outside the band (but still in range) are marginal.
	MarginalMin *float64
	MarginalMax *float64
}

func (r InRange) Validate(value interface{}) bool {
	v := toFloat(value)
	return v >= r.Min && v <= r.Max
}

func (r InRange) IsMarginal(value interface{}) bool {
	v := toFloat(value)
	if r.MarginalMin != nil && v < *r.MarginalMin {
		return true
	}
	if r.MarginalMax != nil && v > *r.MarginalMax {
		return true
	}
	return false
}

func (r InRange) String() string {
	return fmt.Sprintf("in_range(%g, %g)", r.Min, r.Max)
}

// WithinPercent validates that a numeric value is within Percent of Expected.
type WithinPercent struct {
	Expected float64
	Percent  float64
}

func (w WithinPercent) Validate(value interface{}) bool {
	v := toFloat(value)
	tolerance := w.Expected * w.Percent / 100.0
	if tolerance < 0 {
		tolerance = -tolerance
	}
	return v >= w.Expected-tolerance && v <= w.Expected+tolerance
}

func (w WithinPercent) String() string {
	return fmt.Sprintf("within_percent(%g, %g%%)", w.Expected, w.Percent)
}

// Equals validates exact equality via string comparison of the rendered
// values, matching how heterogeneous measurement values compare in records.
type Equals struct {
	Expected interface{}
}

func (e Equals) Validate(value interface{}) bool {
	if value == e.Expected {
		return true
	}
	return fmt.Sprintf("%v", value) == fmt.Sprintf("%v", e.Expected)
}

func (e Equals) String() string {
	return fmt.Sprintf("equals(%v)", e.Expected)
}

// Matches validates that the value's string form matches a regular
// expression.
type Matches struct {
	pattern *regexp.Regexp
}

// MatchesPattern compiles pattern into a Matches validator; it panics on an
// invalid pattern since validators are declared at test-authoring time.
func MatchesPattern(pattern string) Matches {
	return Matches{pattern: regexp.MustCompile(pattern)}
}

func (m Matches) Validate(value interface{}) bool {
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprintf("%v", value)
	}
	return m.pattern.MatchString(s)
}

func (m Matches) String() string {
	return fmt.Sprintf("matches(%s)", m.pattern.String())
}

// ValidatorFunc adapts a plain predicate into a Validator.
type ValidatorFunc func(value interface{}) bool

func (f ValidatorFunc) Validate(value interface{}) bool {
	return f(value)
}

// DescribeValidators renders validators for record snapshots.
func DescribeValidators(validators []Validator) []string {
	out := make([]string, 0, len(validators))
	for _, v := range validators {
		if s, ok := v.(fmt.Stringer); ok {
			out = append(out, s.String())
			continue
		}
		out = append(out, strings.TrimPrefix(fmt.Sprintf("%T", v), "measure."))
	}
	return out
}
