// Package sampler reduces raw camera frames into fixed-size channel grids.
package sampler

import (
	"github.com/modelbashir-create/ChromaVue-V1/internal/types"
)

// RawFrame is one camera frame as delivered by the producer: tightly packed
// RGBA bytes, row-major, plus the illumination flag and capture metadata for
// that exposure.
type RawFrame struct {
	TimestampMs int64
	FlashOn     bool
	Width       int
	Height      int
	Pixels      []byte
	// Depth is an optional row-major Width*Height depth plane in meters.
	Depth []float32
	Meta  types.CaptureMeta
}

// Sample reduces a raw RGBA frame to gridSize×gridSize per-channel grids
// normalized to [0,1], plus whole-frame channel means. Each grid cell is the
// mean of the pixel block it covers. Returns ok=false for degenerate input
// (bad dimensions, short pixel buffer, non-positive grid size); callers treat
// that as a skipped frame, never an error.
func Sample(raw RawFrame, gridSize int) (types.SampledFrame, bool) {
	if gridSize <= 0 || raw.Width <= 0 || raw.Height <= 0 {
		return types.SampledFrame{}, false
	}
	if len(raw.Pixels) < raw.Width*raw.Height*4 {
		return types.SampledFrame{}, false
	}

	n := gridSize * gridSize
	frame := types.SampledFrame{
		TimestampMs: raw.TimestampMs,
		FlashOn:     raw.FlashOn,
		GridSize:    gridSize,
		R:           make([]float32, n),
		G:           make([]float32, n),
		B:           make([]float32, n),
		Meta:        raw.Meta,
	}

	var sumR, sumG, sumB float64
	for gy := 0; gy < gridSize; gy++ {
		y0 := gy * raw.Height / gridSize
		y1 := (gy + 1) * raw.Height / gridSize
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for gx := 0; gx < gridSize; gx++ {
			x0 := gx * raw.Width / gridSize
			x1 := (gx + 1) * raw.Width / gridSize
			if x1 <= x0 {
				x1 = x0 + 1
			}
			var r, g, b float64
			for y := y0; y < y1; y++ {
				row := y * raw.Width * 4
				for x := x0; x < x1; x++ {
					p := row + x*4
					r += float64(raw.Pixels[p])
					g += float64(raw.Pixels[p+1])
					b += float64(raw.Pixels[p+2])
				}
			}
			count := float64((y1 - y0) * (x1 - x0))
			cell := gy*gridSize + gx
			frame.R[cell] = float32(r / count / 255.0)
			frame.G[cell] = float32(g / count / 255.0)
			frame.B[cell] = float32(b / count / 255.0)
			sumR += r / count
			sumG += g / count
			sumB += b / count
		}
	}

	// Whole-frame means from the cell means; cells tile the frame so this
	// is the full-resolution mean up to block rounding.
	frame.MeanR = sumR / float64(n) / 255.0
	frame.MeanG = sumG / float64(n) / 255.0
	frame.MeanB = sumB / float64(n) / 255.0

	if len(raw.Depth) >= raw.Width*raw.Height {
		frame.Depth = sampleDepth(raw.Depth, raw.Width, raw.Height, gridSize)
	}
	return frame, true
}

func sampleDepth(depth []float32, width, height, gridSize int) []float32 {
	out := make([]float32, gridSize*gridSize)
	for gy := 0; gy < gridSize; gy++ {
		// nearest-neighbor center sample; depth planes are smooth enough
		y := (gy*height + height/2) / gridSize
		if y >= height {
			y = height - 1
		}
		for gx := 0; gx < gridSize; gx++ {
			x := (gx*width + width/2) / gridSize
			if x >= width {
				x = width - 1
			}
			out[gy*gridSize+gx] = depth[y*width+x]
		}
	}
	return out
}
