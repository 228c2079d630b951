package device

import (
	"context"
	"fmt"
	"sync"
)

// LightDriver is the hardware surface a laser or LED binding implements.
type LightDriver interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Alive() bool

	// On and Off gate emission. For hardware-triggered sources, On arms
	// the source to follow the external signal rather than emit directly.
	On(ctx context.Context) error
	Off(ctx context.Context) error
	IsOn() (bool, error)

	// Power reads and writes the emission power in the [0, 1] interval.
	Power() (float64, error)
	SetPower(power float64) error

	// Status returns raw device status lines for diagnostics.
	Status(ctx context.Context) ([]string, error)

	SupportedTriggers() []TriggerSpec
	ArmTrigger(ctx context.Context, spec TriggerSpec) error
}

// LightSource is the role for lasers and LEDs. Enable starts (or arms)
// emission, disable stops it.
type LightSource struct {
	*Base
	*TriggerCapability
	driver LightDriver

	// spMu guards setPoint. Writes arrive from the rpc daemon's handler
	// goroutines, reads from any caller.
	spMu     sync.Mutex
	setPoint float64
}

// NewLightSource builds the LightSource role around the given driver.
func NewLightSource(driver LightDriver) (*LightSource, error) {
	l := &LightSource{driver: driver}

	l.Base = NewBase(Hooks{
		Initialize: driver.Initialize,
		Enable:     driver.On,
		Disable:    driver.Off,
		Shutdown:   driver.Shutdown,
		Alive:      driver.Alive,
	})

	// Light sources are trigger targets, but a software trigger is
	// meaningless for a continuous emitter: firing is a no-op beyond the
	// On performed by enable.
	trigger, err := NewTriggerCapability(
		driver.SupportedTriggers(),
		l.Base.State,
		driver.ArmTrigger,
		func(ctx context.Context) error { return nil },
	)
	if err != nil {
		return nil, fmt.Errorf("building light source: %w", err)
	}
	l.TriggerCapability = trigger

	if err := l.AddSetting(Setting{
		Name:      "power",
		Type:      SettingFloat,
		Getter:    func() (any, error) { return driver.Power() },
		Setter:    func(v any) error { f, _ := asFloat(v); return l.SetPower(f) },
		HasBounds: true,
		Min:       0,
		Max:       1,
	}); err != nil {
		return nil, fmt.Errorf("building light source: %w", err)
	}

	return l, nil
}

// GetIsOn reports whether the source is currently able to produce light.
func (l *LightSource) GetIsOn() (bool, error) {
	if err := l.guard(); err != nil {
		return false, err
	}
	return l.driver.IsOn()
}

// GetPower returns the current emission power in [0, 1].
func (l *LightSource) GetPower() (float64, error) {
	if err := l.guard(); err != nil {
		return 0, err
	}
	return l.driver.Power()
}

// SetPower sets the emission power. The value is clipped to [0, 1] before
// it reaches the driver; the clipped value becomes the set point.
func (l *LightSource) SetPower(power float64) error {
	if err := l.guard(); err != nil {
		return err
	}
	clipped := min(max(power, 0), 1)
	if err := l.driver.SetPower(clipped); err != nil {
		return fmt.Errorf("%w: set power: %w", ErrDeviceFault, err)
	}
	l.spMu.Lock()
	l.setPoint = clipped
	l.spMu.Unlock()
	return nil
}

// GetSetPower returns the power set point: the last clipped value written,
// not a hardware readback.
func (l *LightSource) GetSetPower() float64 {
	l.spMu.Lock()
	defer l.spMu.Unlock()
	return l.setPoint
}

// GetStatus returns raw device status lines.
func (l *LightSource) GetStatus(ctx context.Context) ([]string, error) {
	if err := l.guard(); err != nil {
		return nil, err
	}
	return l.driver.Status(ctx)
}
