package export

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modelbashir-create/ChromaVue-V1/internal/types"
)

func testRecord(tsMs int64, status types.PairStatus) types.AnalysisRecord {
	return types.AnalysisRecord{
		TimestampMs: tsMs,
		FlashOn:     status == types.PairPaired,
		FPS:         30.0,
		MeanR:       0.4,
		MeanG:       0.3,
		MeanB:       0.2,
		LogRatioRG:  0.1249,
		Band555:     0.3,
		Band590:     0.35,
		Band640:     0.38,
		GridSize:    2,
		ScalarField: []float32{0.1, -0.1, 0.2, 0.0},
		PairStatus:  status,
		Meta: types.CaptureMeta{
			ExposureMs: 8, ISO: 100, WBGainR: 1.8, WBGainB: 1.6,
			DistanceMm: 200, TiltDeg: 3,
			OrientationRaw: 1, OrientationCanonical: "portrait",
		},
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestDisabledExportTouchesNothing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sessions")
	m := NewManager(Config{Enabled: false, RootDir: root}, zap.NewNop())

	id, err := m.BeginSession()
	require.NoError(t, err)
	assert.Empty(t, id)
	for i := 0; i < 100; i++ {
		m.AppendFrame(testRecord(int64(i), types.PairNone), Grids{Scalar: []float32{1}})
		m.AppendEvent(int64(i), "tick", "")
	}
	m.EndSession()
	m.Drain()

	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err), "disabled export must create no files")
}

func TestBeginSessionIdempotent(t *testing.T) {
	m := NewManager(Config{Enabled: true, RootDir: t.TempDir()}, zap.NewNop())
	defer func() { m.EndSession(); m.Drain() }()

	first, err := m.BeginSession()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := m.BeginSession()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAppendFrameWritesAllFormats(t *testing.T) {
	root := t.TempDir()
	m := NewManager(Config{
		Enabled:    true,
		RootDir:    root,
		CSVEnabled: true,
		QC:         QCWindows{DistanceMinMm: 150, DistanceMaxMm: 300, TiltMaxDeg: 10, SaturationMax: 0.95},
	}, zap.NewNop())

	id, err := m.BeginSession()
	require.NoError(t, err)
	dir := filepath.Join(root, id)

	for i := 0; i < 3; i++ {
		rec := testRecord(int64(i*33), types.PairPaired)
		m.AppendFrame(rec, Grids{
			Scalar: rec.ScalarField,
			RGBR:   []float32{0.4, 0.4, 0.4, 0.4},
			RGBG:   []float32{0.3, 0.3, 0.3, 0.3},
			RGBB:   []float32{0.2, 0.2, 0.2, 0.2},
		})
	}
	m.EndSession()
	m.Drain()

	frames := readLines(t, filepath.Join(dir, FramesLogName))
	require.Len(t, frames, 3)
	var rec FrameExportRecord
	require.NoError(t, json.Unmarshal([]byte(frames[0]), &rec))
	assert.Equal(t, SchemaVersion, rec.SchemaVersion)
	assert.Equal(t, "frame", rec.RecordType)
	assert.Equal(t, 0, rec.FrameIndex)
	assert.Equal(t, filepath.Join(ScalarDirName, "scalar_000000.bin"), rec.Paths.Scalar)
	assert.True(t, rec.QC.PairingOK)
	assert.True(t, rec.QC.DistanceOK)
	assert.InDelta(t, 0.05, rec.ScalarMean, 1e-9)

	// header exactly once, then one row per append
	summary := readLines(t, filepath.Join(dir, SummaryName))
	require.Len(t, summary, 4)
	assert.Equal(t, strings.TrimRight(string(CSVHeader()), "\n"), summary[0])
	headerCols := strings.Split(summary[0], ",")
	for _, row := range summary[1:] {
		assert.Len(t, strings.Split(row, ","), len(headerCols))
	}

	// events: session_start and session_end
	events := readLines(t, filepath.Join(dir, EventsLogName))
	require.Len(t, events, 2)
	var ev EventExportRecord
	require.NoError(t, json.Unmarshal([]byte(events[0]), &ev))
	assert.Equal(t, "session_start", ev.Name)
	assert.NotEmpty(t, ev.ID)

	// binary grids: float32 LE, no header
	for i := 0; i < 3; i++ {
		data, err := os.ReadFile(filepath.Join(dir, ScalarDirName, "scalar_00000"+string(rune('0'+i))+".bin"))
		require.NoError(t, err)
		assert.Len(t, data, 4*4)
	}
	rgbFiles, err := os.ReadDir(filepath.Join(dir, RGBDirName))
	require.NoError(t, err)
	assert.Len(t, rgbFiles, 9)
}

func TestAppendAfterEndIsNoop(t *testing.T) {
	root := t.TempDir()
	m := NewManager(Config{Enabled: true, RootDir: root}, zap.NewNop())
	id, err := m.BeginSession()
	require.NoError(t, err)
	m.AppendFrame(testRecord(0, types.PairNone), Grids{})
	m.EndSession()
	m.Drain()

	m.AppendFrame(testRecord(33, types.PairNone), Grids{})
	m.AppendEvent(33, "late", "")
	m.Drain()

	frames := readLines(t, filepath.Join(root, id, FramesLogName))
	assert.Len(t, frames, 1)
}

func TestAutoStartOnFirstAppend(t *testing.T) {
	root := t.TempDir()
	m := NewManager(Config{Enabled: true, AutoStart: true, RootDir: root}, zap.NewNop())

	_, active := m.ActiveSession()
	assert.False(t, active)

	m.AppendFrame(testRecord(0, types.PairNone), Grids{})
	id, active := m.ActiveSession()
	require.True(t, active)

	m.EndSession()
	m.Drain()
	frames := readLines(t, filepath.Join(root, id, FramesLogName))
	assert.Len(t, frames, 1)
}

func TestQCFlagsOutsideWindows(t *testing.T) {
	m := NewManager(Config{
		Enabled: true,
		RootDir: t.TempDir(),
		QC:      QCWindows{DistanceMinMm: 150, DistanceMaxMm: 300, TiltMaxDeg: 10, SaturationMax: 0.95},
	}, zap.NewNop())

	rec := testRecord(0, types.PairNone)
	rec.Meta.DistanceMm = 500
	rec.Meta.TiltDeg = 25
	rec.MeanR = 0.99
	qc := m.qcFlags(rec)
	assert.False(t, qc.DistanceOK)
	assert.False(t, qc.TiltOK)
	assert.False(t, qc.SaturationOK)
	assert.False(t, qc.PairingOK)
}

func TestEncodeGridRoundTrip(t *testing.T) {
	in := []float32{0.25, -0.3, 0.0, 0.3}
	data := encodeGrid(in)
	require.Len(t, data, 16)
	// spot-check the first value: 0.25 is 0x3E800000 little-endian
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3e}, data[:4])
}
