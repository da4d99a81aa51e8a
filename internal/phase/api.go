package phase

import (
	"context"

	"teststand/internal/diagnosis"
	"teststand/internal/measure"
	"teststand/internal/plug"
	"teststand/internal/record"
)

// TestAPI is the facade handed to phase functions. It exposes exactly what a
// phase body needs: its own measurements, attachments, plugs, the diagnosis
// store, and run-scoped metadata. The executor implements it.
type TestAPI interface {
	// DUTID returns the identifier of the device under test.
	DUTID() string
	// Measurements returns the phase's own measurement collection, freshly
	// copied from the descriptor templates for this attempt.
	Measurements() *measure.Collection
	// Attach records a named binary blob on the phase record.
	Attach(name string, data []byte, mimeType string) error
	// Plug returns the live plug bound to the given parameter name declared
	// by this phase.
	Plug(name string) (plug.Plug, bool)
	// Diagnoses returns the run-scoped diagnosis store, read-mostly from a
	// phase's point of view.
	Diagnoses() *diagnosis.Store
	// Args returns the extra arguments bound to this descriptor via WithArgs.
	Args() map[string]interface{}
	// UserData is run-scoped scratch space shared across phases.
	UserData() map[string]interface{}
	// Logf logs into the test record's log stream.
	Logf(format string, args ...interface{})
	// Context is cancelled when the phase times out or the test is stopped.
	// Long-running bodies should check it at safe points; cancellation is
	// cooperative and an unresponsive body is abandoned, not killed.
	Context() context.Context
}

// StateAPI extends TestAPI for phases that opt into RequiresTestState. It
// exposes the mutable record under construction; with great power etc.
type StateAPI interface {
	TestAPI
	// Record returns the test record being built. Phases must treat already
	// finalized entries as read-only.
	Record() *record.TestRecord
	// NotifyUpdate wakes live observers after an out-of-band mutation.
	NotifyUpdate()
}

// Func is a phase body. Returning the zero Result means CONTINUE. Phases
// that declared RequiresTestState may type-assert the api to StateAPI.
type Func func(api TestAPI) Result
