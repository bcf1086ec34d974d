// Package engine computes the per-frame scalar field and owns the pairing
// baseline cache. All cross-frame state lives in a single goroutine; callers
// interact only through Process, so no lock guards the cache.
package engine

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/modelbashir-create/ChromaVue-V1/internal/bands"
	"github.com/modelbashir-create/ChromaVue-V1/internal/kernel"
	"github.com/modelbashir-create/ChromaVue-V1/internal/types"
)

const (
	// DefaultPairWindowMs bounds how stale a flash-off baseline may be
	// when a flash-on frame arrives.
	DefaultPairWindowMs = 120
	// fpsAlpha is the smoothing factor of the frame-rate EMA.
	fpsAlpha = 0.25
)

// ErrClosed is returned by Process after Close.
var ErrClosed = errors.New("engine closed")

// pairingState is the engine's only cross-frame state. Both grids are cached
// together or not at all; the band-mean cache pairs independently against the
// same timestamp.
type pairingState struct {
	offR       []float32
	offG       []float32
	offTsMs    int64
	offBands   *bands.Bands
	offBandsTs int64
}

func (s *pairingState) gridValid(tsMs, windowMs int64) bool {
	return s.offR != nil && tsMs-s.offTsMs <= windowMs && tsMs >= s.offTsMs
}

func (s *pairingState) bandsValid(tsMs, windowMs int64) bool {
	return s.offBands != nil && tsMs-s.offBandsTs <= windowMs && tsMs >= s.offBandsTs
}

type request struct {
	frame types.SampledFrame
	reply chan types.AnalysisRecord
}

// Engine is the serialized pairing and scalar computation context.
type Engine struct {
	compute      kernel.Compute
	pairWindowMs int64
	logger       *zap.Logger

	requests chan request
	closed   chan struct{}
	done     chan struct{}
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithPairWindow overrides the pairing window in milliseconds.
func WithPairWindow(ms int64) Option {
	return func(e *Engine) {
		if ms > 0 {
			e.pairWindowMs = ms
		}
	}
}

// New starts the engine's goroutine. Close releases it.
func New(compute kernel.Compute, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		compute:      compute,
		pairWindowMs: DefaultPairWindowMs,
		logger:       logger,
		requests:     make(chan request),
		closed:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.loop()
	return e
}

// Process hands one frame to the engine and waits for its record. Callers
// must not invoke Process concurrently with themselves; the engine serializes
// anyway, but the producer contract is one in-flight frame.
func (e *Engine) Process(ctx context.Context, frame types.SampledFrame) (types.AnalysisRecord, error) {
	req := request{frame: frame, reply: make(chan types.AnalysisRecord, 1)}
	select {
	case e.requests <- req:
	case <-e.closed:
		return types.AnalysisRecord{}, ErrClosed
	case <-ctx.Done():
		return types.AnalysisRecord{}, ctx.Err()
	}
	select {
	case rec := <-req.reply:
		return rec, nil
	case <-ctx.Done():
		return types.AnalysisRecord{}, ctx.Err()
	}
}

// Close stops the engine goroutine. Pending Process calls fail with ErrClosed.
func (e *Engine) Close() {
	close(e.closed)
	<-e.done
}

func (e *Engine) loop() {
	defer close(e.done)
	var (
		state      pairingState
		fps        float64
		lastTsMs   int64
		haveLastTs bool
	)
	for {
		select {
		case <-e.closed:
			return
		case req := <-e.requests:
			fps = e.updateFPS(fps, &lastTsMs, &haveLastTs, req.frame.TimestampMs)
			rec := e.analyze(&state, req.frame)
			rec.FPS = fps
			req.reply <- rec
		}
	}
}

// updateFPS maintains the exponential moving average of the frame rate,
// seeded by the first valid inter-frame interval.
func (e *Engine) updateFPS(fps float64, lastTsMs *int64, haveLastTs *bool, tsMs int64) float64 {
	if !*haveLastTs {
		*haveLastTs = true
		*lastTsMs = tsMs
		return fps
	}
	dt := tsMs - *lastTsMs
	*lastTsMs = tsMs
	if dt <= 0 {
		return fps
	}
	instantaneous := 1000.0 / float64(dt)
	if fps == 0 {
		return instantaneous
	}
	return fpsAlpha*instantaneous + (1-fpsAlpha)*fps
}

func (e *Engine) analyze(state *pairingState, frame types.SampledFrame) types.AnalysisRecord {
	rec := types.AnalysisRecord{
		TimestampMs: frame.TimestampMs,
		FlashOn:     frame.FlashOn,
		MeanR:       frame.MeanR,
		MeanG:       frame.MeanG,
		MeanB:       frame.MeanB,
		GridSize:    frame.GridSize,
		PairStatus:  types.PairNone,
		Meta:        frame.Meta,
		Depth:       frame.Depth,
	}
	rec.LogRatioRG = math.Log10(math.Max(kernel.Eps, frame.MeanR) / math.Max(kernel.Eps, frame.MeanG))

	frameBands := bands.Map(frame.MeanR, frame.MeanG, frame.MeanB)
	rec.Band555, rec.Band590, rec.Band640 = frameBands.B555, frameBands.B590, frameBands.B640

	// Band-level pairing runs against its own cached mean vector, aligned
	// on the same window as the grid pairing but consumed independently.
	if frame.FlashOn && state.bandsValid(frame.TimestampMs, e.pairWindowMs) {
		delta := bands.Delta(frameBands, *state.offBands)
		ratio := bands.LogRatio(frameBands, *state.offBands)
		rec.DeltaBand555, rec.DeltaBand590, rec.DeltaBand640 = &delta.B555, &delta.B590, &delta.B640
		rec.LogBandRatio555, rec.LogBandRatio590, rec.LogBandRatio640 = &ratio.B555, &ratio.B590, &ratio.B640
		state.offBands = nil
	}

	valid := frame.Valid()
	switch {
	case valid && frame.FlashOn && state.gridValid(frame.TimestampMs, e.pairWindowMs):
		rec.ScalarField = e.compute.PairedField(frame.R, frame.G, state.offR, state.offG)
		rec.PairStatus = types.PairPaired
		state.offR, state.offG = nil, nil
	case valid:
		rec.ScalarField = e.compute.RatioField(frame.R, frame.G)
		if !frame.FlashOn {
			// Overwrite, never accumulate: the newest off frame is
			// always the baseline.
			state.offR = frame.R
			state.offG = frame.G
			state.offTsMs = frame.TimestampMs
			state.offBands = &frameBands
			state.offBandsTs = frame.TimestampMs
			rec.PairStatus = types.PairBaselineCached
		}
	default:
		e.logger.Debug("degenerate frame, emitting zero field",
			zap.Int("grid_size", frame.GridSize),
			zap.Int("len_r", len(frame.R)),
			zap.Int("len_g", len(frame.G)))
	}

	// The kernel declines degenerate input with nil; the contract is a
	// best-effort record, so emit an all-zero field of the declared size.
	if rec.ScalarField == nil && frame.GridSize > 0 {
		rec.ScalarField = make([]float32, frame.GridSize*frame.GridSize)
	}
	return rec
}
