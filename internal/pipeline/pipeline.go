// Package pipeline wires the frame source, sampler, engine, broadcast, and
// export manager into one run loop.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modelbashir-create/ChromaVue-V1/internal/engine"
	"github.com/modelbashir-create/ChromaVue-V1/internal/export"
	"github.com/modelbashir-create/ChromaVue-V1/internal/sampler"
	"github.com/modelbashir-create/ChromaVue-V1/internal/types"
)

// Options configure one pipeline run.
type Options struct {
	GridSize int
	// UIRate throttles snapshot broadcasts to websocket clients.
	UIRate time.Duration
}

// Pipeline is the single producer context that feeds the engine. It owns the
// latest-snapshot cache served to late-joining visualizer clients.
type Pipeline struct {
	eng     *engine.Engine
	exp     *export.Manager
	logger  *zap.Logger
	opts    Options
	metrics *Metrics

	snapMu   sync.Mutex
	snapshot map[string]any
}

// New builds a pipeline around an already-running engine and export manager.
func New(eng *engine.Engine, exp *export.Manager, metrics *Metrics, opts Options, logger *zap.Logger) *Pipeline {
	if opts.GridSize <= 0 {
		opts.GridSize = 64
	}
	if opts.UIRate <= 0 {
		opts.UIRate = time.Second
	}
	return &Pipeline{
		eng:     eng,
		exp:     exp,
		logger:  logger,
		opts:    opts,
		metrics: metrics,
	}
}

// Snapshot returns the latest broadcast payload, or nil before the first
// processed frame.
func (p *Pipeline) Snapshot() any {
	p.snapMu.Lock()
	defer p.snapMu.Unlock()
	if p.snapshot == nil {
		return nil
	}
	return p.snapshot
}

// Run consumes raw frames until the channel closes or ctx is cancelled.
// Frames are handed to the engine one at a time; records fan out to the
// export manager and, on the UI ticker, to the broadcast channel.
func (p *Pipeline) Run(ctx context.Context, frames <-chan sampler.RawFrame, uiMessages chan<- any) error {
	ticker := time.NewTicker(p.opts.UIRate)
	defer ticker.Stop()
	lastStatus := types.PairStatus("")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.flush(uiMessages)
		case raw, ok := <-frames:
			if !ok {
				p.flush(uiMessages)
				return nil
			}
			p.metrics.framesIn.Add(1)
			frame, ok := sampler.Sample(raw, p.opts.GridSize)
			if !ok {
				p.metrics.sampleSkips.Add(1)
				continue
			}
			p.metrics.framesSampled.Add(1)

			start := time.Now()
			rec, err := p.eng.Process(ctx, frame)
			p.metrics.processNanos.Add(uint64(time.Since(start).Nanoseconds()))
			if err != nil {
				if errors.Is(err, engine.ErrClosed) {
					return nil
				}
				return err
			}
			p.metrics.framesProcessed.Add(1)
			if rec.PairStatus == types.PairPaired {
				p.metrics.framesPaired.Add(1)
			}
			p.exp.AppendFrame(rec, export.Grids{
				Scalar: rec.ScalarField,
				RGBR:   frame.R,
				RGBG:   frame.G,
				RGBB:   frame.B,
				Depth:  frame.Depth,
			})
			// appended after the frame so an auto-started session catches
			// its own first transition
			if rec.PairStatus != lastStatus {
				p.exp.AppendEvent(rec.TimestampMs, "pair_status", string(rec.PairStatus))
				lastStatus = rec.PairStatus
			}
			p.store(rec)
		}
	}
}

func (p *Pipeline) store(rec types.AnalysisRecord) {
	payload := map[string]any{
		"type":         "record",
		"timestamp_ms": rec.TimestampMs,
		"fps":          rec.FPS,
		"flash_on":     rec.FlashOn,
		"pair_status":  rec.PairStatus,
		"grid_size":    rec.GridSize,
		"log_ratio_rg": rec.LogRatioRG,
		"band_555":     rec.Band555,
		"band_590":     rec.Band590,
		"band_640":     rec.Band640,
		"scalar":       rec.ScalarField,
	}
	p.snapMu.Lock()
	p.snapshot = payload
	p.snapMu.Unlock()
}

func (p *Pipeline) flush(uiMessages chan<- any) {
	p.snapMu.Lock()
	payload := p.snapshot
	p.snapMu.Unlock()
	if payload == nil {
		return
	}
	select {
	case uiMessages <- payload:
		p.metrics.framesBroadcast.Add(1)
	default:
	}
}
