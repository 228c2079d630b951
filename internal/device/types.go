package device

import "time"

// State is the lifecycle state of a device.
type State string

// Lifecycle states. Shutdown is terminal: once reached no method other than
// State and Shutdown itself may be called.
const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateEnabled       State = "enabled"
	StateDisabled      State = "disabled"
	StateShutdown      State = "shutdown"
)

// TriggerType defines what constitutes a trigger, as opposed to the trigger
// mode which defines the action taken when one is received.
type TriggerType string

// Trigger types. Only TriggerSoftware can be fired through Trigger(); edge
// and pulse triggers are physical signals outside this layer's control.
const (
	TriggerSoftware    TriggerType = "software"
	TriggerRisingEdge  TriggerType = "rising_edge"
	TriggerFallingEdge TriggerType = "falling_edge"
	TriggerPulse       TriggerType = "pulse"
)

// TriggerMode defines the action taken when a trigger is received.
type TriggerMode string

// Trigger modes. A device declares the subset it supports; few devices
// support all of them.
const (
	TriggerOnce   TriggerMode = "once"
	TriggerBulb   TriggerMode = "bulb"
	TriggerStrobe TriggerMode = "strobe"
	TriggerStart  TriggerMode = "start"
)

// TriggerSpec is a (type, mode) pair. The active pair must always be a
// member of the device's declared supported set.
type TriggerSpec struct {
	Type TriggerType `json:"type"`
	Mode TriggerMode `json:"mode"`
}

// Binning holds horizontal and vertical sensor binning factors.
type Binning struct {
	H int `json:"h"`
	V int `json:"v"`
}

// ROI is a sensor region of interest. The rectangle completely defines the
// region without reference to sensor geometry.
type ROI struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AxisLimits are the lower and upper travel limits of a stage axis.
type AxisLimits struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Frame is one item produced by a streaming device. Data is row-major with
// Width*Height elements.
type Frame struct {
	Data      []uint16  `json:"data"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Index     uint64    `json:"index"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink consumes items produced by a streaming device. Implementations are
// supplied by callers; the pipeline never buffers outside the sink itself.
//
// Accept is called from the device's acquisition goroutine, one item at a
// time, in acquisition order. A slow sink slows acquisition delivery; it
// never causes reordering or drops.
type Sink interface {
	Accept(frame Frame)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(frame Frame)

// Accept implements Sink.
func (f SinkFunc) Accept(frame Frame) { f(frame) }
