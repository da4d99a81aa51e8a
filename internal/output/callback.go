// Package output turns finalized test records into files and console
// summaries. Callbacks are isolated from one another: a failing writer is
// logged and never affects the others or the test outcome.
package output

import (
	"golang.org/x/sync/errgroup"

	"teststand/internal/record"
	"teststand/pkg/logging"
)

// Callback consumes one finalized test record.
type Callback interface {
	// Name identifies the callback in logs.
	Name() string
	// Handle processes the record. The record is finalized and must be
	// treated as read-only.
	Handle(rec *record.TestRecord) error
}

// Dispatch fans the record out to every callback concurrently and waits for
// all of them. Errors are swallowed after logging.
func Dispatch(callbacks []Callback, rec *record.TestRecord) {
	var g errgroup.Group
	for _, cb := range callbacks {
		cb := cb
		g.Go(func() error {
			if err := cb.Handle(rec); err != nil {
				logging.Error("output", err, "Output callback %s failed", cb.Name())
			}
			return nil
		})
	}
	// Errors never propagate; Wait only synchronizes.
	_ = g.Wait()
}
