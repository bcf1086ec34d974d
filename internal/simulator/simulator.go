// Package simulator produces synthetic dual-illumination camera frames for
// runs without a capture producer.
package simulator

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/modelbashir-create/ChromaVue-V1/internal/sampler"
	"github.com/modelbashir-create/ChromaVue-V1/internal/types"
)

// Stream emits width×height RGBA frames on a ticker at acqRate frames/sec,
// alternating flash-off and flash-on exposures. The scene is a radial
// absorption spot whose red channel responds to the flash more than the
// green, so paired ratios show structure.
func Stream(ctx context.Context, width, height int, acqRate float64) <-chan sampler.RawFrame {
	out := make(chan sampler.RawFrame)
	go func() {
		defer close(out)
		if acqRate <= 0 {
			acqRate = 30
		}
		ticker := time.NewTicker(time.Duration(float64(time.Second) / acqRate))
		defer ticker.Stop()

		base := make([]float64, width*height)
		centerX := float64(width) / 2.0
		centerY := float64(height) / 2.0
		for i := range base {
			dx := float64(i%width) - centerX
			dy := float64(i/width) - centerY
			d2 := dx*dx + dy*dy
			base[i] = math.Exp(-d2 / (float64(width*height) / 16))
		}

		flashOn := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				frame := sampler.RawFrame{
					TimestampMs: time.Now().UnixMilli(),
					FlashOn:     flashOn,
					Width:       width,
					Height:      height,
					Pixels:      render(base, width, height, flashOn),
					Meta: types.CaptureMeta{
						ExposureMs:           8,
						ISO:                  100,
						WBGainR:              1.8,
						WBGainB:              1.6,
						FlashLevel:           flashLevel(flashOn),
						DistanceMm:           220 + rand.Float64()*10,
						TiltDeg:              rand.Float64()*4 - 2,
						OrientationRaw:       1,
						OrientationCanonical: "portrait",
					},
				}
				select {
				case <-ctx.Done():
					return
				case out <- frame:
				}
				flashOn = !flashOn
			}
		}
	}()
	return out
}

func flashLevel(on bool) float64 {
	if on {
		return 1.0
	}
	return 0.0
}

func render(base []float64, width, height int, flashOn bool) []byte {
	pixels := make([]byte, width*height*4)
	for i, b := range base {
		// ambient floor plus flash-induced, channel-dependent lift
		r := 0.10 + 0.05*b
		g := 0.20 + 0.02*b
		bl := 0.15
		if flashOn {
			r += 0.30 * b
			g += 0.10 * b
			bl += 0.05
		}
		noise := rand.Float64() * 0.01
		pixels[i*4] = toByte(r + noise)
		pixels[i*4+1] = toByte(g + noise)
		pixels[i*4+2] = toByte(bl + noise)
		pixels[i*4+3] = 0xff
	}
	return pixels
}

func toByte(v float64) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v * 255)
}
