// Package bands maps RGB channel means onto proxy spectral-band intensities.
package bands

import "math"

// Eps floors band intensities so downstream logarithms stay finite.
const Eps = 1e-6

// Bands holds proxy intensities for the three target bands, in nm.
type Bands struct {
	B555 float64 `json:"band_555"`
	B590 float64 `json:"band_590"`
	B640 float64 `json:"band_640"`
}

// Fixed projection of normalized (R, G, B) means onto the proxy bands.
// Each row weighs the channels toward one band; rows sum to 1.
var projection = [3][3]float64{
	{0.120, 0.760, 0.120}, // 555 nm: green-dominated
	{0.460, 0.480, 0.060}, // 590 nm: red/green mix
	{0.840, 0.140, 0.020}, // 640 nm: red-dominated
}

// Map applies the fixed linear transform to the channel means and floors
// every output at Eps. Deterministic, no state.
func Map(meanR, meanG, meanB float64) Bands {
	in := [3]float64{meanR, meanG, meanB}
	var out [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i] += projection[i][j] * in[j]
		}
		if out[i] < Eps {
			out[i] = Eps
		}
	}
	return Bands{B555: out[0], B590: out[1], B640: out[2]}
}

// Delta returns per-band on-minus-off differences.
func Delta(on, off Bands) Bands {
	return Bands{
		B555: on.B555 - off.B555,
		B590: on.B590 - off.B590,
		B640: on.B640 - off.B640,
	}
}

// LogRatio returns per-band log10(on/off) with both operands floored at Eps.
func LogRatio(on, off Bands) Bands {
	return Bands{
		B555: math.Log10(math.Max(Eps, on.B555) / math.Max(Eps, off.B555)),
		B590: math.Log10(math.Max(Eps, on.B590) / math.Max(Eps, off.B590)),
		B640: math.Log10(math.Max(Eps, on.B640) / math.Max(Eps, off.B640)),
	}
}
