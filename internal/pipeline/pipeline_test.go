package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modelbashir-create/ChromaVue-V1/internal/engine"
	"github.com/modelbashir-create/ChromaVue-V1/internal/export"
	"github.com/modelbashir-create/ChromaVue-V1/internal/kernel"
	"github.com/modelbashir-create/ChromaVue-V1/internal/sampler"
	"github.com/modelbashir-create/ChromaVue-V1/internal/types"
)

func solidRaw(tsMs int64, flashOn bool, r, g, b byte) sampler.RawFrame {
	const side = 8
	pixels := make([]byte, side*side*4)
	for i := 0; i < side*side; i++ {
		pixels[i*4] = r
		pixels[i*4+1] = g
		pixels[i*4+2] = b
		pixels[i*4+3] = 0xff
	}
	return sampler.RawFrame{
		TimestampMs: tsMs,
		FlashOn:     flashOn,
		Width:       side,
		Height:      side,
		Pixels:      pixels,
		Meta:        types.CaptureMeta{DistanceMm: 200},
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	logger := zap.NewNop()
	root := t.TempDir()

	eng := engine.New(kernel.Scalar{}, logger)
	defer eng.Close()
	manager := export.NewManager(export.Config{
		Enabled:    true,
		AutoStart:  true,
		RootDir:    root,
		CSVEnabled: true,
	}, logger)

	var metrics Metrics
	pipe := New(eng, manager, &metrics, Options{GridSize: 4, UIRate: time.Hour}, logger)

	frames := make(chan sampler.RawFrame, 4)
	frames <- solidRaw(0, false, 26, 51, 38)   // off baseline
	frames <- solidRaw(80, true, 102, 77, 38)  // pairs with it
	frames <- solidRaw(120, true, 102, 77, 38) // no baseline left
	frames <- sampler.RawFrame{TimestampMs: 160, Width: 0, Height: 0} // skipped
	close(frames)

	uiMessages := make(chan any, 16)
	require.NoError(t, pipe.Run(context.Background(), frames, uiMessages))

	m := metrics.Snapshot()
	assert.Equal(t, uint64(4), m["frames_in_total"])
	assert.Equal(t, uint64(3), m["frames_processed_total"])
	assert.Equal(t, uint64(1), m["frames_paired_total"])
	assert.Equal(t, uint64(1), m["sample_skips_total"])

	snap, ok := pipe.Snapshot().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "record", snap["type"])
	assert.Equal(t, 4, snap["grid_size"])

	id, active := manager.ActiveSession()
	require.True(t, active)
	manager.EndSession()
	manager.Drain()

	dir := filepath.Join(root, id)
	data, err := os.ReadFile(filepath.Join(dir, export.FramesLogName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)

	var paired export.FrameExportRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &paired))
	assert.Equal(t, types.PairPaired, paired.PairStatus)
	assert.True(t, paired.QC.PairingOK)
	assert.NotEmpty(t, paired.Paths.Scalar)
	assert.NotEmpty(t, paired.Paths.RGBR)

	// grid artifacts land under the session directory
	_, err = os.Stat(filepath.Join(dir, paired.Paths.Scalar))
	assert.NoError(t, err)
}

func TestPipelineFlushOnClose(t *testing.T) {
	logger := zap.NewNop()
	eng := engine.New(kernel.Scalar{}, logger)
	defer eng.Close()
	manager := export.NewManager(export.Config{Enabled: false}, logger)

	var metrics Metrics
	pipe := New(eng, manager, &metrics, Options{GridSize: 4, UIRate: time.Hour}, logger)

	frames := make(chan sampler.RawFrame, 1)
	frames <- solidRaw(0, false, 100, 100, 100)
	close(frames)

	uiMessages := make(chan any, 1)
	require.NoError(t, pipe.Run(context.Background(), frames, uiMessages))

	// the final flush pushes the last snapshot to the broadcast channel
	select {
	case msg := <-uiMessages:
		payload, ok := msg.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "record", payload["type"])
	default:
		t.Fatal("expected a broadcast message after source close")
	}
	assert.Equal(t, uint64(1), metrics.Snapshot()["frames_broadcast_total"])
}
