// Package kernel implements the clamped log-ratio field computation with two
// interchangeable paths: a row-parallel pool and a scalar fallback. Both
// implement the same formula and must agree within floating-point tolerance.
package kernel

import (
	"math"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	// Eps floors numerator and denominator before the ratio is taken.
	Eps = 1e-6
	// ClampLo and ClampHi bound every output value.
	ClampLo = -0.30
	ClampHi = 0.30
)

// Compute is one implementation of the numeric kernel. Both methods return
// nil on degenerate input (empty or mismatched slices); they never panic on
// well-formed input.
type Compute interface {
	// RatioField computes clamp(log10(max(Eps,a[i])/max(Eps,b[i]))).
	RatioField(a, b []float32) []float32
	// PairedField computes the background-subtracted variant
	// clamp(log10(max(Eps,onA[i]-offA[i])/max(Eps,onB[i]-offB[i]))).
	PairedField(onA, onB, offA, offB []float32) []float32
	Name() string
}

func clampLog10(num, den float64) float32 {
	v := math.Log10(math.Max(Eps, num) / math.Max(Eps, den))
	if v < ClampLo {
		return ClampLo
	}
	if v > ClampHi {
		return ClampHi
	}
	return float32(v)
}

// Scalar is the plain single-goroutine path. Always available.
type Scalar struct{}

func (Scalar) Name() string { return "scalar" }

func (Scalar) RatioField(a, b []float32) []float32 {
	if len(a) == 0 || len(a) != len(b) {
		return nil
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = clampLog10(float64(a[i]), float64(b[i]))
	}
	return out
}

func (Scalar) PairedField(onA, onB, offA, offB []float32) []float32 {
	n := len(onA)
	if n == 0 || len(onB) != n || len(offA) != n || len(offB) != n {
		return nil
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = clampLog10(float64(onA[i])-float64(offA[i]), float64(onB[i])-float64(offB[i]))
	}
	return out
}

// Selector tries the accelerated path first and falls back to the scalar
// path when it is absent or returns no result. Fallbacks are counted but
// never surfaced to the caller.
type Selector struct {
	accel     Compute
	fallback  Scalar
	logger    *zap.Logger
	fallbacks atomic.Uint64
}

// Select probes the requested accelerated path against the scalar path on a
// fixed input and returns a Selector. A failed probe (or parallel=false)
// leaves the Selector scalar-only.
func Select(parallel bool, workers int, logger *zap.Logger) *Selector {
	s := &Selector{logger: logger}
	if !parallel {
		logger.Info("kernel path selected", zap.String("path", "scalar"))
		return s
	}
	p := NewParallel(workers)
	if err := probe(p, s.fallback); err != nil {
		p.Close()
		logger.Warn("parallel kernel probe failed, using scalar path", zap.Error(err))
		return s
	}
	s.accel = p
	logger.Info("kernel path selected", zap.String("path", p.Name()), zap.Int("workers", workers))
	return s
}

func (s *Selector) Name() string {
	if s.accel != nil {
		return s.accel.Name()
	}
	return s.fallback.Name()
}

// Fallbacks reports how many calls fell through to the scalar path after the
// accelerated path declined.
func (s *Selector) Fallbacks() uint64 { return s.fallbacks.Load() }

func (s *Selector) RatioField(a, b []float32) []float32 {
	if s.accel != nil {
		if out := safeRatio(s.accel, a, b); out != nil {
			return out
		}
		s.fallbacks.Add(1)
	}
	return s.fallback.RatioField(a, b)
}

func (s *Selector) PairedField(onA, onB, offA, offB []float32) []float32 {
	if s.accel != nil {
		if out := safePaired(s.accel, onA, onB, offA, offB); out != nil {
			return out
		}
		s.fallbacks.Add(1)
	}
	return s.fallback.PairedField(onA, onB, offA, offB)
}

// Close releases the accelerated path's workers, if any.
func (s *Selector) Close() {
	if p, ok := s.accel.(*Parallel); ok {
		p.Close()
	}
}

func safeRatio(k Compute, a, b []float32) (out []float32) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	return k.RatioField(a, b)
}

func safePaired(k Compute, onA, onB, offA, offB []float32) (out []float32) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	return k.PairedField(onA, onB, offA, offB)
}
