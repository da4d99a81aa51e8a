// Package plug manages the lifecycle of hardware-abstraction objects shared
// across phases. Plugs are registered by kind, instantiated once per test run,
// handed by reference to every phase that declares them, and torn down
// best-effort when the run ends.
package plug

import (
	"fmt"

	"teststand/pkg/logging"
)

// Plug is a hardware-abstraction object with a teardown hook. Plugs hold
// their own internal state and must serialize their own concurrent access if
// touched from monitor goroutines.
type Plug interface {
	TearDown()
}

// DUTSettable is implemented by plugs that want to know the DUT identifier
// once the start trigger resolves it.
type DUTSettable interface {
	SetDUTID(id string)
}

// Factory constructs a fresh plug instance.
type Factory func() (Plug, error)

// Manager owns plug construction and teardown for one test run.
type Manager struct {
	factories map[string]Factory
	live      map[string]Plug
	order     []string
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{
		factories: make(map[string]Factory),
		live:      make(map[string]Plug),
	}
}

// Register adds a factory for a plug kind. Registering the same kind twice is
// a configuration error.
func (m *Manager) Register(kind string, factory Factory) error {
	if _, ok := m.factories[kind]; ok {
		return fmt.Errorf("plug kind %q already registered", kind)
	}
	m.factories[kind] = factory
	return nil
}

// InitializePlugs instantiates the given kinds. Kinds already live are left
// alone so a start-trigger's plugs survive into the main run. With no
// arguments every registered kind is initialized.
func (m *Manager) InitializePlugs(kinds ...string) error {
	if len(kinds) == 0 {
		for kind := range m.factories {
			kinds = append(kinds, kind)
		}
	}
	for _, kind := range kinds {
		if _, ok := m.live[kind]; ok {
			continue
		}
		factory, ok := m.factories[kind]
		if !ok {
			return fmt.Errorf("plug kind %q not registered", kind)
		}
		p, err := factory()
		if err != nil {
			return fmt.Errorf("initializing plug %q: %w", kind, err)
		}
		m.live[kind] = p
		m.order = append(m.order, kind)
		logging.Debug("plug", "Initialized plug %s", kind)
	}
	return nil
}

// ProvidePlugs resolves parameter-name to plug-kind references into live
// instances. Every referenced kind must have been initialized.
func (m *Manager) ProvidePlugs(refs map[string]string) (map[string]Plug, error) {
	out := make(map[string]Plug, len(refs))
	for name, kind := range refs {
		p, ok := m.live[kind]
		if !ok {
			return nil, fmt.Errorf("plug kind %q referenced by %q is not initialized", kind, name)
		}
		out[name] = p
	}
	return out, nil
}

// Plug returns the live instance of a kind, if initialized.
func (m *Manager) Plug(kind string) (Plug, bool) {
	p, ok := m.live[kind]
	return p, ok
}

// SetDUTID forwards the DUT identifier to every live plug that wants it.
func (m *Manager) SetDUTID(id string) {
	for _, kind := range m.order {
		if s, ok := m.live[kind].(DUTSettable); ok {
			s.SetDUTID(id)
		}
	}
}

// TearDownPlugs tears down live plugs in reverse initialization order. A
// panicking teardown is logged and the remaining plugs still get their turn.
func (m *Manager) TearDownPlugs() {
	for i := len(m.order) - 1; i >= 0; i-- {
		kind := m.order[i]
		p, ok := m.live[kind]
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("plug", nil, "Teardown of plug %s panicked: %v", kind, r)
				}
			}()
			p.TearDown()
		}()
		delete(m.live, kind)
	}
	m.order = nil
}
