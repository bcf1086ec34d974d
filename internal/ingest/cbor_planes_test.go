package ingest

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePixelPlane(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	out, err := decodePixelPlane(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, out)

	out, err = decodePixelPlane(cbor.Tag{Number: tagUint8, Content: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, out)

	_, err = decodePixelPlane(cbor.Tag{Number: tagFloat32LE, Content: raw})
	assert.Error(t, err)
	_, err = decodePixelPlane("nope")
	assert.Error(t, err)
}

func TestDecodeFloat32Plane(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(-1.25))

	out, err := decodeFloat32Plane(cbor.Tag{Number: tagFloat32LE, Content: data})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.5, out[0], 1e-6)
	assert.InDelta(t, -1.25, out[1], 1e-6)
}

func TestDecodeUint16DepthConvertsToMeters(t *testing.T) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:], 1500) // 1.5 m in mm
	binary.LittleEndian.PutUint16(data[2:], 250)

	out, err := decodeFloat32Plane(cbor.Tag{Number: tagUint16LE, Content: data})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 1.5, out[0], 1e-6)
	assert.InDelta(t, 0.25, out[1], 1e-6)
}

func TestDecodePlaneRejectsUnknownTag(t *testing.T) {
	_, err := decodeFloat32Plane(cbor.Tag{Number: 99, Content: []byte{0}})
	assert.Error(t, err)
	_, err = decodeFloat32Plane(42)
	assert.Error(t, err)
}
