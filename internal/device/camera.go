package device

import (
	"context"
	"fmt"
)

// CameraDriver is the hardware surface a vendor camera binding implements.
// Drivers do not run the lifecycle state machine; the Camera role does.
type CameraDriver interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Alive() bool

	// StartAcquisition arms the sensor; AbortAcquisition stops it and
	// releases hardware-owned buffers.
	StartAcquisition(ctx context.Context) error
	AbortAcquisition(ctx context.Context) error

	// FetchFrame polls for the next frame with minimal processing. A nil
	// frame with nil error means no data is ready.
	FetchFrame(ctx context.Context) (*Frame, error)

	ExposureTime() (float64, error)
	SetExposureTime(seconds float64) error
	SensorShape() (width, height int)
	Binning() (Binning, error)
	SetBinning(b Binning) error
	ROI() (ROI, error)
	SetROI(r ROI) error

	SupportedTriggers() []TriggerSpec
	ArmTrigger(ctx context.Context, spec TriggerSpec) error
	FireTrigger(ctx context.Context) error
}

// maxExposureSeconds bounds the exposure time setting. One hour covers any
// practical long exposure.
const maxExposureSeconds = 3600.0

// Camera is the streaming device role. It composes the lifecycle state
// machine, the trigger capability, and the data-delivery pipeline around a
// CameraDriver.
type Camera struct {
	*Base
	*TriggerCapability
	data   *DataSource
	driver CameraDriver
}

// NewCamera builds the Camera role around the given driver.
func NewCamera(driver CameraDriver) (*Camera, error) {
	c := &Camera{driver: driver}
	c.data = NewDataSource(driver.FetchFrame)

	c.Base = NewBase(Hooks{
		Initialize: driver.Initialize,
		Enable:     c.enable,
		Disable:    c.disable,
		Shutdown:   driver.Shutdown,
		Alive:      driver.Alive,
	})

	trigger, err := NewTriggerCapability(
		driver.SupportedTriggers(),
		c.Base.State,
		driver.ArmTrigger,
		driver.FireTrigger,
	)
	if err != nil {
		return nil, fmt.Errorf("building camera: %w", err)
	}
	c.TriggerCapability = trigger

	if err := c.AddSetting(Setting{
		Name:      "exposure time",
		Type:      SettingFloat,
		Getter:    func() (any, error) { return driver.ExposureTime() },
		Setter:    func(v any) error { f, _ := asFloat(v); return driver.SetExposureTime(f) },
		HasBounds: true,
		Min:       0,
		Max:       maxExposureSeconds,
	}); err != nil {
		return nil, fmt.Errorf("building camera: %w", err)
	}

	if err := c.AddSetting(Setting{
		Name:   "binning",
		Type:   SettingTuple,
		Getter: func() (any, error) { return c.GetBinning() },
		Setter: func(v any) error {
			b, err := binningValue(v)
			if err != nil {
				return err
			}
			return c.SetBinning(b)
		},
	}); err != nil {
		return nil, fmt.Errorf("building camera: %w", err)
	}

	if err := c.AddSetting(Setting{
		Name:   "roi",
		Type:   SettingTuple,
		Getter: func() (any, error) { return c.GetROI() },
		Setter: func(v any) error {
			r, err := roiValue(v)
			if err != nil {
				return err
			}
			return c.SetROI(r)
		},
	}); err != nil {
		return nil, fmt.Errorf("building camera: %w", err)
	}

	return c, nil
}

// binningValue converts a settings-registry value into a Binning. Remote
// writes arrive as decoded JSON objects, local callers pass the struct.
func binningValue(v any) (Binning, error) {
	switch b := v.(type) {
	case Binning:
		return b, nil
	case map[string]any:
		h, hok := asFloat(b["h"])
		vv, vok := asFloat(b["v"])
		if !hok || !vok {
			return Binning{}, fmt.Errorf("%w: binning expects integer fields h and v", ErrSettings)
		}
		return Binning{H: int(h), V: int(vv)}, nil
	default:
		return Binning{}, fmt.Errorf("%w: binning expects an object, got %T", ErrSettings, v)
	}
}

// roiValue converts a settings-registry value into an ROI.
func roiValue(v any) (ROI, error) {
	switch r := v.(type) {
	case ROI:
		return r, nil
	case map[string]any:
		left, lok := asFloat(r["left"])
		top, tok := asFloat(r["top"])
		width, wok := asFloat(r["width"])
		height, hok := asFloat(r["height"])
		if !lok || !tok || !wok || !hok {
			return ROI{}, fmt.Errorf("%w: roi expects integer fields left, top, width and height", ErrSettings)
		}
		return ROI{Left: int(left), Top: int(top), Width: int(width), Height: int(height)}, nil
	default:
		return ROI{}, fmt.Errorf("%w: roi expects an object, got %T", ErrSettings, v)
	}
}

// SetLogger sets the logger used by the acquisition loop.
func (c *Camera) SetLogger(logger Logger) { c.data.SetLogger(logger) }

// SetClient implements DataStreamer.
func (c *Camera) SetClient(sink Sink) { c.data.SetClient(sink) }

// PushClient implements DataStreamer.
func (c *Camera) PushClient(sink Sink) { c.data.PushClient(sink) }

// PopClient implements DataStreamer.
func (c *Camera) PopClient() (Sink, error) { return c.data.PopClient() }

// Acquiring reports whether the acquisition loop is running. True implies
// the camera is enabled.
func (c *Camera) Acquiring() bool { return c.data.Acquiring() }

// enable starts sensor acquisition and the delivery loop.
func (c *Camera) enable(ctx context.Context) error {
	if err := c.driver.StartAcquisition(ctx); err != nil {
		return err
	}
	// The loop outlives the Enable call; it is stopped by disable, not by
	// the caller's request context.
	return c.data.Start(context.WithoutCancel(ctx))
}

// disable stops the delivery loop, then the sensor, in that order, so
// no frame is fetched after hardware buffers are released.
func (c *Camera) disable(ctx context.Context) error {
	c.data.Stop()
	return c.driver.AbortAcquisition(ctx)
}

// SensorShape returns the sensor extent in pixels.
func (c *Camera) SensorShape() (int, int) { return c.driver.SensorShape() }

// ExposureTime returns the current exposure time in seconds.
func (c *Camera) ExposureTime() (float64, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}
	return c.driver.ExposureTime()
}

// SetExposureTime sets the exposure time in seconds.
func (c *Camera) SetExposureTime(seconds float64) error {
	if err := c.guard(); err != nil {
		return err
	}
	if seconds < 0 || seconds > maxExposureSeconds {
		return fmt.Errorf("%w: exposure time %v outside [0 %v]", ErrSettings, seconds, maxExposureSeconds)
	}
	return c.driver.SetExposureTime(seconds)
}

// GetBinning returns the current binning.
func (c *Camera) GetBinning() (Binning, error) {
	if err := c.guard(); err != nil {
		return Binning{}, err
	}
	return c.driver.Binning()
}

// SetBinning sets binning along both axes.
func (c *Camera) SetBinning(b Binning) error {
	if err := c.guard(); err != nil {
		return err
	}
	if b.H < 1 || b.V < 1 {
		return fmt.Errorf("%w: binning factors must be >= 1", ErrSettings)
	}
	return c.driver.SetBinning(b)
}

// GetROI returns the current region of interest.
func (c *Camera) GetROI() (ROI, error) {
	if err := c.guard(); err != nil {
		return ROI{}, err
	}
	return c.driver.ROI()
}

// SetROI sets the region of interest, clipped to the sensor. A zero width
// or height selects the full remaining extent at the current binning.
func (c *Camera) SetROI(r ROI) error {
	if err := c.guard(); err != nil {
		return err
	}

	maxW, maxH := c.driver.SensorShape()
	binning, err := c.driver.Binning()
	if err != nil {
		return err
	}
	if r.Left >= maxW || r.Top >= maxH {
		return fmt.Errorf("%w: roi origin (%d, %d) outside sensor %dx%d",
			ErrSettings, r.Left, r.Top, maxW, maxH)
	}
	if r.Width == 0 {
		r.Width = maxW / binning.H
	}
	if r.Height == 0 {
		r.Height = maxH / binning.V
	}
	if r.Left < 0 {
		r.Left = 0
	}
	if r.Top < 0 {
		r.Top = 0
	}
	if r.Left+r.Width > maxW {
		r.Width = maxW - r.Left
	}
	if r.Top+r.Height > maxH {
		r.Height = maxH - r.Top
	}
	return c.driver.SetROI(r)
}
