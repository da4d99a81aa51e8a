package phase

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"teststand/internal/diagnosis"
	"teststand/internal/measure"
	"teststand/internal/record"
)

var (
	// ErrInvalidResult marks a phase function returning an unrecognized
	// result value.
	ErrInvalidResult = errors.New("invalid phase result")
	// ErrNotPhase marks a WrapOrCopy argument that is neither a phase
	// function nor a descriptor.
	ErrNotPhase = errors.New("not a phase")
	// ErrDuplicateSubtestName marks two subtests sharing a name in one tree.
	ErrDuplicateSubtestName = errors.New("duplicate subtest name")
	// ErrCheckpointOutsideSubtest marks a FAIL_SUBTEST checkpoint placed
	// outside any subtest.
	ErrCheckpointOutsideSubtest = errors.New("FAIL_SUBTEST checkpoint outside subtest")
)

// PlugRef binds a phase parameter name to a registered plug kind.
type PlugRef struct {
	Name string
	Kind string
}

// Descriptor is the immutable template for one phase: the user function plus
// everything declared about it. Specializing calls (WithArgs, WithPlugs)
// return copies and never mutate the original, so one descriptor can be
// reused across call sites.
type Descriptor struct {
	fn           Func
	options      Options
	measurements []*measure.Measurement
	plugs        []PlugRef
	diagnosers   []diagnosis.PhaseDiagnoser
	args         map[string]interface{}
	codeInfo     record.CodeInfo
}

// New wraps a phase function with metadata.
func New(fn Func, opts ...Option) *Descriptor {
	d := &Descriptor{
		fn:       fn,
		codeInfo: codeInfoFor(fn),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WrapOrCopy normalizes its argument into an independent descriptor: a
// descriptor is copied (options merged in), a plain function is wrapped
// fresh. The original is never mutated.
func WrapOrCopy(v interface{}, opts ...Option) (*Descriptor, error) {
	switch p := v.(type) {
	case *Descriptor:
		d := p.copy()
		for _, opt := range opts {
			opt(d)
		}
		return d, nil
	case Func:
		return New(p, opts...), nil
	case func(api TestAPI) Result:
		return New(p, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotPhase, v)
	}
}

// copy deep-copies the descriptor. Measurement templates are copied so a
// specialized descriptor can rename or re-validate without touching the
// original's templates.
func (d *Descriptor) copy() *Descriptor {
	out := &Descriptor{
		fn:       d.fn,
		options:  d.options,
		codeInfo: d.codeInfo,
	}
	out.measurements = make([]*measure.Measurement, len(d.measurements))
	for i, m := range d.measurements {
		out.measurements[i] = m.Copy()
	}
	out.plugs = append([]PlugRef(nil), d.plugs...)
	out.diagnosers = append([]diagnosis.PhaseDiagnoser(nil), d.diagnosers...)
	if d.args != nil {
		out.args = make(map[string]interface{}, len(d.args))
		for k, v := range d.args {
			out.args[k] = v
		}
	}
	return out
}

// WithArgs returns a copy with extra arguments bound and {placeholders} in
// the name substituted. Keys without a matching placeholder are kept silently
// so one argument map can be broadcast across heterogeneous phases.
func (d *Descriptor) WithArgs(args map[string]interface{}) *Descriptor {
	out := d.copy()
	if out.args == nil {
		out.args = make(map[string]interface{}, len(args))
	}
	for k, v := range args {
		out.args[k] = v
	}
	if out.options.Name != "" {
		out.options.Name = substituteName(out.options.Name, args)
	}
	return out
}

// WithPlugs returns a copy with plug kinds substituted by parameter name.
// Names this phase never declared are ignored, matching WithArgs broadcast
// semantics.
func (d *Descriptor) WithPlugs(subplugs map[string]string) *Descriptor {
	out := d.copy()
	for i, ref := range out.plugs {
		if kind, ok := subplugs[ref.Name]; ok {
			out.plugs[i].Kind = kind
		}
	}
	return out
}

func substituteName(name string, args map[string]interface{}) string {
	for k, v := range args {
		name = strings.ReplaceAll(name, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return name
}

// Name returns the display name: the option override if set, else the
// function's name.
func (d *Descriptor) Name() string {
	if d.options.Name != "" {
		return d.options.Name
	}
	return d.codeInfo.Name
}

// Options returns the phase's execution policy.
func (d *Descriptor) Options() Options {
	return d.options
}

// Measurements returns the declared measurement templates.
func (d *Descriptor) Measurements() []*measure.Measurement {
	return d.measurements
}

// Plugs returns the declared plug references.
func (d *Descriptor) Plugs() []PlugRef {
	return d.plugs
}

// Diagnosers returns the phase diagnosers run at finalization.
func (d *Descriptor) Diagnosers() []diagnosis.PhaseDiagnoser {
	return d.diagnosers
}

// Args returns the extra arguments bound by WithArgs, never nil.
func (d *Descriptor) Args() map[string]interface{} {
	if d.args == nil {
		return map[string]interface{}{}
	}
	return d.args
}

// CodeInfo locates the wrapped function.
func (d *Descriptor) CodeInfo() record.CodeInfo {
	return d.codeInfo
}

// Call invokes the phase body and normalizes its result.
func (d *Descriptor) Call(api TestAPI) (Result, error) {
	return d.fn(api).Normalize()
}

// Walk visits the descriptor; it is a leaf node.
func (d *Descriptor) Walk(fn func(Node)) {
	fn(d)
}

// codeInfoFor resolves function name, file, and line via the runtime.
func codeInfoFor(fn Func) record.CodeInfo {
	if fn == nil {
		return record.CodeInfo{Name: "<nil>"}
	}
	pc := reflect.ValueOf(fn).Pointer()
	f := runtime.FuncForPC(pc)
	if f == nil {
		return record.CodeInfo{Name: "<unknown>"}
	}
	file, line := f.FileLine(pc)
	name := f.Name()
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	return record.CodeInfo{
		Name:       name,
		SourceFile: filepath.Base(file),
		Line:       line,
	}
}
