package mqtt

import (
	"encoding/json"
	"time"

	"github.com/instrumentd/rig-core/internal/device"
)

// Publisher is the publishing surface FrameSink needs. *Client
// satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// FrameSink adapts an MQTT client as a device.Sink. Each accepted frame
// is announced on the entry's frame topic as metadata only; pixel data
// stays on the rpc push channel. Use it for dashboards and acquisition
// monitors that care about frame cadence, not content.
type FrameSink struct {
	pub   Publisher
	topic string
	log   Logger
}

// frameAnnouncement is the wire form of one frame event.
type frameAnnouncement struct {
	Index     uint64    `json:"index"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Timestamp time.Time `json:"timestamp"`
}

// NewFrameSink creates a sink announcing frames for the given device
// entry.
func NewFrameSink(pub Publisher, entry string) *FrameSink {
	return &FrameSink{
		pub:   pub,
		topic: Topics{}.DeviceFrames(entry),
	}
}

// SetLogger sets the logger used for publish failures.
func (s *FrameSink) SetLogger(log Logger) {
	s.log = log
}

// Accept implements device.Sink. It runs on the acquisition goroutine;
// publish failures are logged and the frame is otherwise dropped, never
// blocking acquisition on broker trouble.
func (s *FrameSink) Accept(frame device.Frame) {
	payload, err := json.Marshal(frameAnnouncement{
		Index:     frame.Index,
		Width:     frame.Width,
		Height:    frame.Height,
		Timestamp: frame.Timestamp,
	})
	if err != nil {
		return
	}
	if err := s.pub.Publish(s.topic, payload, 0, false); err != nil && s.log != nil {
		s.log.Warn("publishing frame announcement", "topic", s.topic, "error", err)
	}
}
