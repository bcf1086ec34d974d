package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelbashir-create/ChromaVue-V1/internal/types"
)

// solidFrame builds a width×height RGBA buffer of one color.
func solidFrame(width, height int, r, g, b byte) []byte {
	pixels := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		pixels[i*4] = r
		pixels[i*4+1] = g
		pixels[i*4+2] = b
		pixels[i*4+3] = 0xff
	}
	return pixels
}

func TestSampleUniformFrame(t *testing.T) {
	raw := RawFrame{
		TimestampMs: 42,
		FlashOn:     true,
		Width:       8,
		Height:      8,
		Pixels:      solidFrame(8, 8, 255, 51, 0),
	}
	frame, ok := Sample(raw, 4)
	require.True(t, ok)
	assert.Equal(t, int64(42), frame.TimestampMs)
	assert.True(t, frame.FlashOn)
	require.True(t, frame.Valid())
	require.Len(t, frame.R, 16)

	for i := range frame.R {
		assert.InDelta(t, 1.0, frame.R[i], 1e-6)
		assert.InDelta(t, 0.2, frame.G[i], 1e-6)
		assert.InDelta(t, 0.0, frame.B[i], 1e-6)
	}
	assert.InDelta(t, 1.0, frame.MeanR, 1e-6)
	assert.InDelta(t, 0.2, frame.MeanG, 1e-6)
	assert.InDelta(t, 0.0, frame.MeanB, 1e-6)
}

func TestSampleBlockAverages(t *testing.T) {
	// 2x2 image reduced to one cell: cell is the mean of all four pixels
	pixels := make([]byte, 2*2*4)
	reds := []byte{0, 100, 200, 100}
	for i, r := range reds {
		pixels[i*4] = r
		pixels[i*4+3] = 0xff
	}
	frame, ok := Sample(RawFrame{Width: 2, Height: 2, Pixels: pixels}, 1)
	require.True(t, ok)
	require.Len(t, frame.R, 1)
	assert.InDelta(t, 100.0/255.0, frame.R[0], 1e-6)
}

func TestSampleNonDividingGrid(t *testing.T) {
	// 10x10 into 3x3: blocks of unequal size must still tile the frame
	frame, ok := Sample(RawFrame{Width: 10, Height: 10, Pixels: solidFrame(10, 10, 128, 128, 128)}, 3)
	require.True(t, ok)
	require.Len(t, frame.R, 9)
	for i := range frame.R {
		assert.InDelta(t, 128.0/255.0, frame.R[i], 1e-6)
	}
}

func TestSampleDegenerateInput(t *testing.T) {
	_, ok := Sample(RawFrame{Width: 0, Height: 8, Pixels: []byte{}}, 4)
	assert.False(t, ok)
	_, ok = Sample(RawFrame{Width: 8, Height: 8, Pixels: make([]byte, 10)}, 4)
	assert.False(t, ok, "short pixel buffer")
	_, ok = Sample(RawFrame{Width: 8, Height: 8, Pixels: solidFrame(8, 8, 1, 1, 1)}, 0)
	assert.False(t, ok, "non-positive grid size")
}

func TestSampleDepthPlane(t *testing.T) {
	depth := make([]float32, 8*8)
	for i := range depth {
		depth[i] = 0.25
	}
	raw := RawFrame{
		Width:  8,
		Height: 8,
		Pixels: solidFrame(8, 8, 10, 10, 10),
		Depth:  depth,
	}
	frame, ok := Sample(raw, 2)
	require.True(t, ok)
	require.Len(t, frame.Depth, 4)
	for _, v := range frame.Depth {
		assert.InDelta(t, 0.25, v, 1e-6)
	}
}

func TestSampleCarriesMeta(t *testing.T) {
	meta := types.CaptureMeta{ExposureMs: 8, ISO: 200, DistanceMm: 210}
	frame, ok := Sample(RawFrame{Width: 4, Height: 4, Pixels: solidFrame(4, 4, 1, 2, 3), Meta: meta}, 2)
	require.True(t, ok)
	assert.Equal(t, meta, frame.Meta)
}
