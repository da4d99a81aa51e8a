package test

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
)

// Registry is an explicit process-wide collection of runnable tests. The CLI
// and the signal handler are handed a registry instance; there is no hidden
// global state.
type Registry struct {
	mu    sync.RWMutex
	tests map[string]*Test
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tests: make(map[string]*Test)}
}

// Register adds a test. Duplicate names are rejected.
func (r *Registry) Register(t *Test) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tests[t.Name()]; ok {
		return fmt.Errorf("test %q already registered", t.Name())
	}
	r.tests[t.Name()] = t
	return nil
}

// Get returns the named test.
func (r *Registry) Get(name string) (*Test, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tests[name]
	return t, ok
}

// Names returns the registered test names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tests))
	for name := range r.tests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered tests in name order.
func (r *Registry) All() []*Test {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tests))
	for name := range r.tests {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Test, 0, len(names))
	for _, name := range names {
		out = append(out, r.tests[name])
	}
	return out
}

// NotifyAbortSignals forwards SIGINT and SIGTERM to the test's Abort while
// it runs. The first signal stops the current phase and lets teardown run;
// the second escalates to a full abort. The returned function detaches the
// handler.
func NotifyAbortSignals(t *Test) func() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ch:
				t.Abort()
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
