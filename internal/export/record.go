package export

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/modelbashir-create/ChromaVue-V1/internal/types"
)

// SchemaVersion is embedded in every serialized record.
const SchemaVersion = 2

// GridPaths holds session-relative paths of the binary grid artifacts
// persisted for one frame. Empty strings mean the artifact was not attached.
type GridPaths struct {
	Scalar string `json:"scalar_path,omitempty"`
	RGBR   string `json:"rgb_r_path,omitempty"`
	RGBG   string `json:"rgb_g_path,omitempty"`
	RGBB   string `json:"rgb_b_path,omitempty"`
	Depth  string `json:"depth_path,omitempty"`
}

// QCFlags are the per-frame quality-control booleans derived from the
// configured acceptance windows.
type QCFlags struct {
	DistanceOK   bool `json:"qc_distance_ok"`
	TiltOK       bool `json:"qc_tilt_ok"`
	SaturationOK bool `json:"qc_saturation_ok"`
	PairingOK    bool `json:"qc_pairing_ok"`
}

// FrameExportRecord is one line of the frame log: the analysis record plus
// capture metadata, scalar summary, artifact paths, and QC flags. Written
// once, never mutated after being queued.
type FrameExportRecord struct {
	SchemaVersion int    `json:"schema_version"`
	RecordType    string `json:"record_type"`
	FrameIndex    int    `json:"frame_index"`
	types.AnalysisRecord
	ScalarMean    float64   `json:"scalar_mean"`
	ScalarStd     float64   `json:"scalar_std"`
	InferenceMean *float64  `json:"inference_mean,omitempty"`
	InferenceStd  *float64  `json:"inference_std,omitempty"`
	HeatmapPath   string    `json:"heatmap_path,omitempty"`
	Paths         GridPaths `json:"paths"`
	QC            QCFlags   `json:"qc"`
}

// EventExportRecord is one line of the event log.
type EventExportRecord struct {
	SchemaVersion int    `json:"schema_version"`
	RecordType    string `json:"record_type"`
	ID            string `json:"id"`
	TimestampMs   int64  `json:"timestamp_ms"`
	Name          string `json:"name"`
	Note          string `json:"note,omitempty"`
}

// fieldStats returns mean and population standard deviation of a grid.
func fieldStats(field []float32) (mean, std float64) {
	if len(field) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range field {
		sum += float64(v)
	}
	mean = sum / float64(len(field))
	var sq float64
	for _, v := range field {
		d := float64(v) - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(field)))
}

// summaryColumns is the fixed column order of summary.csv. The header row is
// exactly this list, written once before the first data row.
var summaryColumns = []string{
	"timestamp_ms", "frame_index", "record_type", "schema_version", "phase",
	"exposure_ms", "iso", "wb_gain_r", "wb_gain_b", "flash_on", "flash_level",
	"distance_mm", "tilt_deg", "orientation_raw", "orientation_canonical",
	"mean_r", "mean_g", "mean_b", "log_ratio_rg",
	"band_555", "band_590", "band_640",
	"delta_band_555", "delta_band_590", "delta_band_640",
	"log_band_ratio_555", "log_band_ratio_590", "log_band_ratio_640",
	"inference_mean", "inference_std",
	"scalar_mean", "scalar_std", "scalar_path",
	"qc_distance_ok", "qc_tilt_ok", "qc_saturation_ok", "qc_pairing_ok",
	"heatmap_path",
}

// CSVHeader returns the summary header line, newline-terminated.
func CSVHeader() []byte {
	return []byte(strings.Join(summaryColumns, ",") + "\n")
}

// CSVRow renders one summary row in summaryColumns order.
func (r *FrameExportRecord) CSVRow() []byte {
	phase := "off"
	if r.FlashOn {
		phase = "on"
	}
	cols := []string{
		strconv.FormatInt(r.TimestampMs, 10),
		strconv.Itoa(r.FrameIndex),
		r.RecordType,
		strconv.Itoa(r.SchemaVersion),
		phase,
		ftoa(r.Meta.ExposureMs),
		ftoa(r.Meta.ISO),
		ftoa(r.Meta.WBGainR),
		ftoa(r.Meta.WBGainB),
		strconv.FormatBool(r.FlashOn),
		ftoa(r.Meta.FlashLevel),
		ftoa(r.Meta.DistanceMm),
		ftoa(r.Meta.TiltDeg),
		strconv.Itoa(r.Meta.OrientationRaw),
		r.Meta.OrientationCanonical,
		ftoa(r.MeanR), ftoa(r.MeanG), ftoa(r.MeanB), ftoa(r.LogRatioRG),
		ftoa(r.Band555), ftoa(r.Band590), ftoa(r.Band640),
		optFtoa(r.DeltaBand555), optFtoa(r.DeltaBand590), optFtoa(r.DeltaBand640),
		optFtoa(r.LogBandRatio555), optFtoa(r.LogBandRatio590), optFtoa(r.LogBandRatio640),
		optFtoa(r.InferenceMean), optFtoa(r.InferenceStd),
		ftoa(r.ScalarMean), ftoa(r.ScalarStd), r.Paths.Scalar,
		strconv.FormatBool(r.QC.DistanceOK),
		strconv.FormatBool(r.QC.TiltOK),
		strconv.FormatBool(r.QC.SaturationOK),
		strconv.FormatBool(r.QC.PairingOK),
		r.HeatmapPath,
	}
	return []byte(strings.Join(cols, ",") + "\n")
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func optFtoa(v *float64) string {
	if v == nil {
		return ""
	}
	return ftoa(*v)
}

// encodeGrid renders a float32 grid as raw little-endian bytes, row-major,
// no header.
func encodeGrid(field []float32) []byte {
	out := make([]byte, 4*len(field))
	for i, v := range field {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
