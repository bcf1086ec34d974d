package types

// PairStatus reports how the scalar field of a frame was derived.
type PairStatus string

const (
	// PairNone means the unpaired fallback formula was used and nothing
	// was cached from this frame.
	PairNone PairStatus = "none"
	// PairBaselineCached means the frame was flash-off and its grids were
	// cached as the baseline for a future flash-on frame.
	PairBaselineCached PairStatus = "baseline_cached"
	// PairPaired means the frame was combined with a cached flash-off
	// baseline inside the pairing window.
	PairPaired PairStatus = "paired"
)

// CaptureMeta carries per-frame capture parameters reported by the producer.
// Values the producer does not report are zero.
type CaptureMeta struct {
	ExposureMs           float64 `json:"exposure_ms"`
	ISO                  float64 `json:"iso"`
	WBGainR              float64 `json:"wb_gain_r"`
	WBGainB              float64 `json:"wb_gain_b"`
	FlashLevel           float64 `json:"flash_level"`
	DistanceMm           float64 `json:"distance_mm"`
	TiltDeg              float64 `json:"tilt_deg"`
	OrientationRaw       int     `json:"orientation_raw"`
	OrientationCanonical string  `json:"orientation_canonical"`
}

// SampledFrame is the reduced form of one camera frame: per-channel grids
// normalized to [0,1] plus whole-frame channel means. GridSize is the side
// length; each channel slice holds GridSize*GridSize values in row-major
// order. Immutable once produced by the sampler.
type SampledFrame struct {
	TimestampMs int64
	FlashOn     bool
	GridSize    int
	R           []float32
	G           []float32
	B           []float32
	MeanR       float64
	MeanG       float64
	MeanB       float64
	// Depth is an optional depth plane resampled to the same grid, in
	// meters. Nil when the producer has no depth source.
	Depth []float32
	Meta  CaptureMeta
}

// Valid reports whether the frame carries a usable set of grids.
func (f SampledFrame) Valid() bool {
	n := f.GridSize * f.GridSize
	return f.GridSize > 0 && len(f.R) == n && len(f.G) == n && len(f.B) == n
}

// AnalysisRecord is the engine's per-frame output. Read-only after creation;
// consumers copy what they retain.
type AnalysisRecord struct {
	TimestampMs     int64       `json:"timestamp_ms"`
	FlashOn         bool        `json:"flash_on"`
	FPS             float64     `json:"fps"`
	MeanR           float64     `json:"mean_r"`
	MeanG           float64     `json:"mean_g"`
	MeanB           float64     `json:"mean_b"`
	LogRatioRG      float64     `json:"log_ratio_rg"`
	Band555         float64     `json:"band_555"`
	Band590         float64     `json:"band_590"`
	Band640         float64     `json:"band_640"`
	DeltaBand555    *float64    `json:"delta_band_555,omitempty"`
	DeltaBand590    *float64    `json:"delta_band_590,omitempty"`
	DeltaBand640    *float64    `json:"delta_band_640,omitempty"`
	LogBandRatio555 *float64    `json:"log_band_ratio_555,omitempty"`
	LogBandRatio590 *float64    `json:"log_band_ratio_590,omitempty"`
	LogBandRatio640 *float64    `json:"log_band_ratio_640,omitempty"`
	GridSize        int         `json:"grid_size"`
	ScalarField     []float32   `json:"-"`
	PairStatus      PairStatus  `json:"pair_status"`
	Meta            CaptureMeta `json:"meta"`
	Depth           []float32   `json:"-"`
}
