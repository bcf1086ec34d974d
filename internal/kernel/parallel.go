package kernel

import (
	"errors"
	"math"
	"runtime"
	"sync"
)

// Parallel partitions the grid across a persistent worker pool and blocks
// until every chunk is done. It declines (returns nil) on degenerate input
// or after Close, so the Selector can fall back to the scalar path.
type Parallel struct {
	workers int
	jobs    chan job
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

type job struct {
	run  func()
	done *sync.WaitGroup
}

// NewParallel starts a pool with the given worker count (defaults to
// GOMAXPROCS when non-positive).
func NewParallel(workers int) *Parallel {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Parallel{
		workers: workers,
		jobs:    make(chan job, workers),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				j.run()
				j.done.Done()
			}
		}()
	}
	return p
}

func (p *Parallel) Name() string { return "parallel" }

// Close stops the workers. Subsequent field calls return nil.
func (p *Parallel) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Parallel) RatioField(a, b []float32) []float32 {
	n := len(a)
	if n == 0 || len(b) != n {
		return nil
	}
	out := make([]float32, n)
	ok := p.dispatch(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = clampLog10(float64(a[i]), float64(b[i]))
		}
	})
	if !ok {
		return nil
	}
	return out
}

func (p *Parallel) PairedField(onA, onB, offA, offB []float32) []float32 {
	n := len(onA)
	if n == 0 || len(onB) != n || len(offA) != n || len(offB) != n {
		return nil
	}
	out := make([]float32, n)
	ok := p.dispatch(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = clampLog10(float64(onA[i])-float64(offA[i]), float64(onB[i])-float64(offB[i]))
		}
	})
	if !ok {
		return nil
	}
	return out
}

// dispatch splits [0,n) into per-worker chunks, queues them, and waits.
func (p *Parallel) dispatch(n int, run func(lo, hi int)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	chunk := (n + p.workers - 1) / p.workers
	var done sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		lo, hi := lo, hi
		done.Add(1)
		p.jobs <- job{run: func() { run(lo, hi) }, done: &done}
	}
	p.mu.Unlock()
	done.Wait()
	return true
}

// probe runs both paths on a fixed vector and demands elementwise agreement
// within 1e-4 before the accelerated path is allowed to serve real frames.
func probe(accel, fallback Compute) error {
	a := []float32{0.10, 0.40, 0.95, 0.0001, 0.5}
	b := []float32{0.20, 0.30, 0.05, 0.9, 0.5}
	want := fallback.RatioField(a, b)
	got := accel.RatioField(a, b)
	if got == nil {
		return errors.New("accelerated path returned no result")
	}
	for i := range want {
		if math.Abs(float64(want[i])-float64(got[i])) > 1e-4 {
			return errors.New("accelerated path disagrees with scalar path")
		}
	}
	return nil
}
