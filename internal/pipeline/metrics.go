package pipeline

import "sync/atomic"

// Metrics are the pipeline's monotonic counters, surfaced on /status.
type Metrics struct {
	framesIn        atomic.Uint64
	framesSampled   atomic.Uint64
	framesProcessed atomic.Uint64
	framesPaired    atomic.Uint64
	framesBroadcast atomic.Uint64
	sampleSkips     atomic.Uint64
	processNanos    atomic.Uint64
}

// Snapshot renders the counters for the status surface.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"frames_in_total":        m.framesIn.Load(),
		"frames_sampled_total":   m.framesSampled.Load(),
		"frames_processed_total": m.framesProcessed.Load(),
		"frames_paired_total":    m.framesPaired.Load(),
		"frames_broadcast_total": m.framesBroadcast.Load(),
		"sample_skips_total":     m.sampleSkips.Load(),
		"process_nanos_total":    m.processNanos.Load(),
	}
}
