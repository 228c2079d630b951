package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/instrumentd/rig-core/internal/device"
)

// Default sensor geometry when conf does not override it.
const (
	defaultSensorWidth  = 512
	defaultSensorHeight = 512
	defaultExposure     = 0.01
)

// cameraDriver simulates a frame-producing sensor. Each trigger
// synthesises one frame sized by the current ROI and binning; frames
// wait in a pending queue until the acquisition loop fetches them.
type cameraDriver struct {
	width  int
	height int

	mu        sync.Mutex
	alive     bool
	acquiring bool
	exposure  float64
	binning   device.Binning
	roi       device.ROI
	pending   []device.Frame
	index     uint64
}

func newCameraDriver(width, height int) *cameraDriver {
	return &cameraDriver{width: width, height: height}
}

func (d *cameraDriver) Initialize(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alive = true
	d.exposure = defaultExposure
	d.binning = device.Binning{H: 1, V: 1}
	d.roi = device.ROI{Left: 0, Top: 0, Width: d.width, Height: d.height}
	return nil
}

func (d *cameraDriver) Shutdown(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alive = false
	d.acquiring = false
	d.pending = nil
	return nil
}

func (d *cameraDriver) Alive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive
}

func (d *cameraDriver) StartAcquisition(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquiring = true
	return nil
}

func (d *cameraDriver) AbortAcquisition(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquiring = false
	d.pending = nil
	return nil
}

func (d *cameraDriver) FetchFrame(_ context.Context) (*device.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return nil, nil
	}
	frame := d.pending[0]
	d.pending = d.pending[1:]
	return &frame, nil
}

func (d *cameraDriver) ExposureTime() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exposure, nil
}

func (d *cameraDriver) SetExposureTime(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("exposure time must be non-negative (was %g)", seconds)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exposure = seconds
	return nil
}

func (d *cameraDriver) SensorShape() (int, int) { return d.width, d.height }

func (d *cameraDriver) Binning() (device.Binning, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.binning, nil
}

func (d *cameraDriver) SetBinning(b device.Binning) error {
	if b.H < 1 || b.V < 1 {
		return fmt.Errorf("binning factors must be positive (was %dx%d)", b.H, b.V)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.binning = b
	return nil
}

func (d *cameraDriver) ROI() (device.ROI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roi, nil
}

func (d *cameraDriver) SetROI(r device.ROI) error {
	if r.Left < 0 || r.Top < 0 || r.Width < 1 || r.Height < 1 ||
		r.Left+r.Width > d.width || r.Top+r.Height > d.height {
		return fmt.Errorf("roi %+v does not fit sensor %dx%d", r, d.width, d.height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roi = r
	return nil
}

func (d *cameraDriver) SupportedTriggers() []device.TriggerSpec {
	return []device.TriggerSpec{
		{Type: device.TriggerSoftware, Mode: device.TriggerOnce},
		{Type: device.TriggerSoftware, Mode: device.TriggerStrobe},
		{Type: device.TriggerRisingEdge, Mode: device.TriggerOnce},
		{Type: device.TriggerRisingEdge, Mode: device.TriggerStrobe},
	}
}

func (d *cameraDriver) ArmTrigger(_ context.Context, _ device.TriggerSpec) error {
	return nil
}

// FireTrigger synthesises one frame at the current ROI and binning. The
// pixel values encode the frame index so tests can tell frames apart.
func (d *cameraDriver) FireTrigger(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.acquiring {
		return fmt.Errorf("camera is not acquiring")
	}

	width := d.roi.Width / d.binning.H
	height := d.roi.Height / d.binning.V
	data := make([]uint16, width*height)
	for i := range data {
		data[i] = uint16((d.index + uint64(i)) % 65536)
	}

	d.pending = append(d.pending, device.Frame{
		Data:      data,
		Width:     width,
		Height:    height,
		Index:     d.index,
		Timestamp: time.Now(),
	})
	d.index++
	return nil
}

// NewCamera builds a simulated camera. Conf keys: "width" and "height"
// set the sensor shape (default 512x512).
func NewCamera(conf map[string]any) (*device.Camera, error) {
	driver := newCameraDriver(
		confInt(conf, "width", defaultSensorWidth),
		confInt(conf, "height", defaultSensorHeight),
	)
	return device.NewCamera(driver)
}
