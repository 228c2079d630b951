package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/instrumentd/rig-core/internal/device"
)

// lightDriver simulates a laser or LED.
type lightDriver struct {
	mu    sync.Mutex
	alive bool
	on    bool
	power float64
}

func (d *lightDriver) Initialize(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alive = true
	return nil
}

func (d *lightDriver) Shutdown(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alive = false
	d.on = false
	return nil
}

func (d *lightDriver) Alive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive
}

func (d *lightDriver) On(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.on = true
	return nil
}

func (d *lightDriver) Off(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.on = false
	return nil
}

func (d *lightDriver) IsOn() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.on, nil
}

func (d *lightDriver) Power() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.power, nil
}

func (d *lightDriver) SetPower(power float64) error {
	if power < 0 || power > 1 {
		return fmt.Errorf("power %g outside [0, 1]", power)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.power = power
	return nil
}

func (d *lightDriver) Status(_ context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	emission := "emission off"
	if d.on {
		emission = "emission on"
	}
	return []string{emission, fmt.Sprintf("power %.3f", d.power)}, nil
}

func (d *lightDriver) SupportedTriggers() []device.TriggerSpec {
	return []device.TriggerSpec{
		{Type: device.TriggerSoftware, Mode: device.TriggerBulb},
		{Type: device.TriggerRisingEdge, Mode: device.TriggerBulb},
		{Type: device.TriggerPulse, Mode: device.TriggerStrobe},
	}
}

func (d *lightDriver) ArmTrigger(_ context.Context, _ device.TriggerSpec) error {
	return nil
}

// NewLight builds a simulated light source. No conf keys.
func NewLight(_ map[string]any) (*device.LightSource, error) {
	return device.NewLightSource(&lightDriver{})
}
