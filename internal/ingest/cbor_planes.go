package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// RFC 8746 typed-array tags used by the capture producer.
const (
	tagUint8     = 64
	tagUint16LE  = 69
	tagUint32LE  = 70
	tagFloat32LE = 85
)

// decodePixelPlane accepts either a plain byte string or a tag-64 typed
// array and returns the raw RGBA bytes.
func decodePixelPlane(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case cbor.Tag:
		if v.Number != tagUint8 {
			return nil, fmt.Errorf("unsupported pixel tag %d", v.Number)
		}
		data, ok := v.Content.([]byte)
		if !ok {
			return nil, errors.New("invalid pixel tag content")
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported pixel plane type %T", value)
	}
}

// decodeFloat32Plane accepts a tag-85 typed array (or raw bytes of float32
// LE values) and returns the decoded plane.
func decodeFloat32Plane(value any) ([]float32, error) {
	switch v := value.(type) {
	case []byte:
		return bytesToFloat32(v), nil
	case cbor.Tag:
		data, ok := v.Content.([]byte)
		if !ok {
			return nil, errors.New("invalid typed array content")
		}
		switch v.Number {
		case tagFloat32LE:
			return bytesToFloat32(data), nil
		case tagUint16LE:
			// Some producers ship depth as millimeter uint16s.
			u := bytesToUint16(data)
			out := make([]float32, len(u))
			for i, n := range u {
				out[i] = float32(n) / 1000.0
			}
			return out, nil
		case tagUint32LE:
			u := bytesToUint32(data)
			out := make([]float32, len(u))
			for i, n := range u {
				out[i] = float32(n) / 1000.0
			}
			return out, nil
		default:
			return nil, fmt.Errorf("unsupported typed array tag %d", v.Number)
		}
	default:
		return nil, fmt.Errorf("unsupported plane type %T", value)
	}
}

func bytesToUint16(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := 0; i < len(out); i++ {
		out[i] = binary.LittleEndian.Uint16(data[i*2 : i*2+2])
	}
	return out
}

func bytesToUint32(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := 0; i < len(out); i++ {
		out[i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
	return out
}

func bytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := 0; i < len(out); i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
