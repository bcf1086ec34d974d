// Package ingest receives camera frames from the capture producer over ZMQ.
package ingest

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"
	"go.uber.org/zap"

	"github.com/modelbashir-create/ChromaVue-V1/internal/sampler"
	"github.com/modelbashir-create/ChromaVue-V1/internal/types"
)

var (
	decodeFailures atomic.Uint64
	decodeCount    atomic.Uint64
)

// DecodeFailures reports how many messages were skipped as undecodable.
func DecodeFailures() uint64 { return decodeFailures.Load() }

// DecodeCount reports how many messages were decoded successfully.
func DecodeCount() uint64 { return decodeCount.Load() }

// Stream connects a PULL socket to endpoint and returns a channel of raw
// frames. Expects CBOR maps shaped like the capture producer's messages:
//
//	{ "type": "frame", "timestamp_ms": <int>, "flash_on": <bool>,
//	  "width": <int>, "height": <int>, "pixels": <RGBA bytes or typed array>,
//	  "exposure_ms": ..., "iso": ..., "wb_gain_r": ..., "wb_gain_b": ...,
//	  "flash_level": ..., "distance_mm": ..., "tilt_deg": ...,
//	  "orientation": <int>, "depth": <float32 typed array, optional> }
//
// Malformed messages are skipped with rate-limited logging; nothing here is
// fatal after the socket connects.
func Stream(ctx context.Context, endpoint string, logEvery int, logger *zap.Logger) (<-chan sampler.RawFrame, error) {
	if logEvery < 1 {
		logEvery = 1
	}
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, fmt.Errorf("create ingest socket: %w", err)
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}

	out := make(chan sampler.RawFrame, 128)
	skipped := 0
	logSkip := func(msg string, fields ...zap.Field) {
		decodeFailures.Add(1)
		skipped++
		if skipped%logEvery == 0 {
			logger.Warn(msg, fields...)
		}
	}
	go func() {
		defer close(out)
		defer socket.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				logSkip("ingest recv error", zap.Error(err))
				continue
			}
			frame, ok := decodeFrame(msg, logSkip)
			if !ok {
				continue
			}
			decodeCount.Add(1)
			select {
			case <-ctx.Done():
				return
			case out <- frame:
			}
		}
	}()
	return out, nil
}

func decodeFrame(msg []byte, logSkip func(string, ...zap.Field)) (sampler.RawFrame, bool) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		logSkip("ingest CBOR decode error", zap.Error(err))
		return sampler.RawFrame{}, false
	}
	msgType, _ := payload["type"].(string)
	if msgType != "frame" {
		logSkip("ingest ignoring message", zap.String("type", msgType))
		return sampler.RawFrame{}, false
	}

	tsMs, err := toInt64(payload["timestamp_ms"])
	if err != nil {
		logSkip("ingest invalid timestamp_ms", zap.Error(err))
		return sampler.RawFrame{}, false
	}
	width, errW := toInt(payload["width"])
	height, errH := toInt(payload["height"])
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		logSkip("ingest invalid frame geometry")
		return sampler.RawFrame{}, false
	}
	flashOn, _ := payload["flash_on"].(bool)

	pixels, err := decodePixelPlane(payload["pixels"])
	if err != nil || len(pixels) < width*height*4 {
		logSkip("ingest invalid pixel plane", zap.Error(err))
		return sampler.RawFrame{}, false
	}

	raw := sampler.RawFrame{
		TimestampMs: tsMs,
		FlashOn:     flashOn,
		Width:       width,
		Height:      height,
		Pixels:      pixels,
		Meta:        decodeMeta(payload),
	}
	if depthRaw, ok := payload["depth"]; ok {
		if depth, err := decodeFloat32Plane(depthRaw); err == nil && len(depth) >= width*height {
			raw.Depth = depth
		}
	}
	return raw, true
}

func decodeMeta(payload map[string]any) types.CaptureMeta {
	meta := types.CaptureMeta{
		ExposureMs: toFloatOr(payload["exposure_ms"], 0),
		ISO:        toFloatOr(payload["iso"], 0),
		WBGainR:    toFloatOr(payload["wb_gain_r"], 0),
		WBGainB:    toFloatOr(payload["wb_gain_b"], 0),
		FlashLevel: toFloatOr(payload["flash_level"], 0),
		DistanceMm: toFloatOr(payload["distance_mm"], 0),
		TiltDeg:    toFloatOr(payload["tilt_deg"], 0),
	}
	if v, err := toInt(payload["orientation"]); err == nil {
		meta.OrientationRaw = v
		meta.OrientationCanonical = canonicalOrientation(v)
	}
	return meta
}

// canonicalOrientation mirrors the producer's raw orientation codes.
func canonicalOrientation(raw int) string {
	switch raw {
	case 1:
		return "portrait"
	case 2:
		return "portrait_upside_down"
	case 3:
		return "landscape_left"
	case 4:
		return "landscape_right"
	default:
		return "unknown"
	}
}

func toInt(v any) (int, error) {
	n, err := toInt64(v)
	return int(n), err
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func toFloatOr(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return fallback
	}
}
