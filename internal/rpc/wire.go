package rpc

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	"github.com/instrumentd/rig-core/internal/device"
)

// request is the wire form of a method call. Args holds the named
// arguments; each handler decodes only the names it expects.
type request struct {
	Args map[string]json.RawMessage `json:"args,omitempty"`
}

// response is the wire form of a method reply.
//
// On success OK is true and Result carries the return value. On failure
// OK is false, Error carries the message and Kind the error taxonomy tag
// used to rebuild the sentinel on the client side.
type response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Kind   string          `json:"kind,omitempty"`
}

// Error kind tags. An empty or unknown kind maps to a plain remote call
// failure on the client side.
const (
	KindLifecycle          = "lifecycle"
	KindDeviceFault        = "device_fault"
	KindUnsupportedTrigger = "unsupported_trigger"
	KindQueueExhausted     = "queue_exhausted"
	KindSettings           = "settings"
	KindNotFound           = "not_found"
)

// kindOf maps a device error to its wire kind tag.
func kindOf(err error) string {
	switch {
	case errors.Is(err, device.ErrLifecycle):
		return KindLifecycle
	case errors.Is(err, device.ErrDeviceFault):
		return KindDeviceFault
	case errors.Is(err, device.ErrUnsupportedTrigger):
		return KindUnsupportedTrigger
	case errors.Is(err, device.ErrQueueExhausted):
		return KindQueueExhausted
	case errors.Is(err, device.ErrSettings):
		return KindSettings
	case errors.Is(err, device.ErrNotFound):
		return KindNotFound
	default:
		return ""
	}
}

// sentinelOf maps a wire kind tag back to the sentinel it encodes, or
// nil for an unknown tag.
func sentinelOf(kind string) error {
	switch kind {
	case KindLifecycle:
		return device.ErrLifecycle
	case KindDeviceFault:
		return device.ErrDeviceFault
	case KindUnsupportedTrigger:
		return device.ErrUnsupportedTrigger
	case KindQueueExhausted:
		return device.ErrQueueExhausted
	case KindSettings:
		return device.ErrSettings
	case KindNotFound:
		return device.ErrNotFound
	default:
		return nil
	}
}

// wireFrame is the JSON form of a device.Frame. Pixel data is packed as
// little-endian uint16 and base64 encoded; JSON arrays of numbers are an
// order of magnitude larger for typical sensor sizes.
type wireFrame struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Index     uint64    `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data"`
}

func encodeFrame(f device.Frame) wireFrame {
	buf := make([]byte, 2*len(f.Data))
	for i, v := range f.Data {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return wireFrame{
		Width:     f.Width,
		Height:    f.Height,
		Index:     f.Index,
		Timestamp: f.Timestamp,
		Data:      base64.StdEncoding.EncodeToString(buf),
	}
}

func decodeFrame(w wireFrame) (device.Frame, error) {
	buf, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return device.Frame{}, err
	}
	data := make([]uint16, len(buf)/2)
	for i := range data {
		data[i] = binary.LittleEndian.Uint16(buf[2*i:])
	}
	return device.Frame{
		Data:      data,
		Width:     w.Width,
		Height:    w.Height,
		Index:     w.Index,
		Timestamp: w.Timestamp,
	}, nil
}
