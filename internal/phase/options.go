package phase

import (
	"time"

	"teststand/internal/diagnosis"
	"teststand/internal/measure"
	"teststand/internal/record"
)

// DefaultRepeatLimit bounds phases that keep returning REPEAT without
// declaring their own limit.
const DefaultRepeatLimit = 50

// RunIfFunc decides whether a phase runs at all. It is evaluated before the
// phase goroutine is spawned; a false return records the phase as SKIP.
type RunIfFunc func(store *diagnosis.Store) (bool, error)

// Monitor describes a background sampler attached to a phase: while the phase
// body runs, Sample is called every Interval and the value is stored into the
// named dimensioned measurement keyed by elapsed milliseconds.
type Monitor struct {
	Measurement string
	Interval    time.Duration
	Sample      func(api TestAPI) (interface{}, error)
}

// Options carries a phase's execution policy.
type Options struct {
	// Name overrides the function-derived phase name. It may contain
	// {placeholders} substituted by WithArgs.
	Name string
	// Timeout bounds one attempt of the phase body. Zero means the
	// configured default.
	Timeout time.Duration
	// RunIf gates execution; nil means always run.
	RunIf RunIfFunc
	// RepeatLimit caps REPEAT re-executions; zero means DefaultRepeatLimit.
	RepeatLimit int
	// RepeatOnTimeout re-runs a timed-out attempt instead of failing it.
	RepeatOnTimeout bool
	// ForceRepeat re-runs the phase regardless of its returned result, until
	// the repeat limit converts the outcome to STOP.
	ForceRepeat bool
	// RequiresTestState hands the phase the full StateAPI instead of the
	// plain facade.
	RequiresTestState bool
	// Monitor, when set, runs a background sampler for the phase's duration.
	Monitor *Monitor
}

// EffectiveRepeatLimit resolves the zero value to the default.
func (o Options) EffectiveRepeatLimit() int {
	if o.RepeatLimit <= 0 {
		return DefaultRepeatLimit
	}
	return o.RepeatLimit
}

// Snapshot captures the reporting-relevant options for the phase record.
func (o Options) Snapshot() record.OptionsSnapshot {
	return record.OptionsSnapshot{
		TimeoutMillis:   o.Timeout.Milliseconds(),
		RepeatLimit:     o.RepeatLimit,
		RepeatOnTimeout: o.RepeatOnTimeout,
		HasRunIf:        o.RunIf != nil,
	}
}

// Option mutates a descriptor at construction time.
type Option func(*Descriptor)

// WithName sets the display name; {placeholders} are substituted by WithArgs.
func WithName(name string) Option {
	return func(d *Descriptor) { d.options.Name = name }
}

// WithTimeout bounds each attempt of the phase body.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Descriptor) { d.options.Timeout = timeout }
}

// WithRunIf gates the phase on a predicate over the diagnosis store.
func WithRunIf(fn RunIfFunc) Option {
	return func(d *Descriptor) { d.options.RunIf = fn }
}

// WithRepeatLimit caps REPEAT re-executions.
func WithRepeatLimit(limit int) Option {
	return func(d *Descriptor) { d.options.RepeatLimit = limit }
}

// WithRepeatOnTimeout re-runs timed-out attempts.
func WithRepeatOnTimeout() Option {
	return func(d *Descriptor) { d.options.RepeatOnTimeout = true }
}

// WithRequiresTestState hands the phase the full StateAPI.
func WithRequiresTestState() Option {
	return func(d *Descriptor) { d.options.RequiresTestState = true }
}

// WithMonitor attaches a background sampler to the phase.
func WithMonitor(m *Monitor) Option {
	return func(d *Descriptor) { d.options.Monitor = m }
}

// WithMeasurements declares the measurement templates the phase owns.
func WithMeasurements(templates ...*measure.Measurement) Option {
	return func(d *Descriptor) {
		d.measurements = append(d.measurements, templates...)
	}
}

// WithPlugDecl declares that the phase wants the plug of the given kind bound
// to the given parameter name.
func WithPlugDecl(name, kind string) Option {
	return func(d *Descriptor) {
		d.plugs = append(d.plugs, PlugRef{Name: name, Kind: kind})
	}
}

// WithDiagnosers attaches phase diagnosers run at finalization.
func WithDiagnosers(diagnosers ...diagnosis.PhaseDiagnoser) Option {
	return func(d *Descriptor) {
		d.diagnosers = append(d.diagnosers, diagnosers...)
	}
}
