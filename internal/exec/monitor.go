package exec

import (
	"time"

	"teststand/internal/phase"
	"teststand/pkg/logging"
)

// startMonitor runs a phase's background sampler, storing each sample into
// the named dimensioned measurement keyed by elapsed milliseconds. The
// returned function stops the sampler and waits for it to exit; it is safe
// to call with a nil monitor.
func startMonitor(ps *PhaseState, mon *phase.Monitor) func() {
	if mon == nil {
		return func() {}
	}
	interval := mon.Interval
	if interval <= 0 {
		interval = time.Second
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logging.Error("exec", nil, "Monitor for phase %s panicked: %v", ps.rec.Name, r)
			}
		}()
		start := time.Now()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ps.ctx.Done():
				return
			case <-ticker.C:
				value, err := mon.Sample(ps.api())
				if err != nil {
					logging.Warn("exec", "Monitor sample for phase %s failed: %v", ps.rec.Name, err)
					continue
				}
				elapsed := time.Since(start).Milliseconds()
				if err := ps.measurements.SetDimensioned(mon.Measurement, []interface{}{elapsed}, value); err != nil {
					logging.Warn("exec", "Monitor for phase %s cannot record sample: %v", ps.rec.Name, err)
					return
				}
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}
