package sim

import (
	"context"
	"sync"

	"github.com/instrumentd/rig-core/internal/device"
)

const defaultActuators = 52

// mirrorDriver simulates a deformable mirror. It records the last
// applied pattern so tests can observe trigger-queued application order.
type mirrorDriver struct {
	actuators int

	mu      sync.Mutex
	alive   bool
	current []float64
}

func (d *mirrorDriver) Initialize(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alive = true
	return nil
}

func (d *mirrorDriver) Shutdown(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alive = false
	return nil
}

func (d *mirrorDriver) Alive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive
}

func (d *mirrorDriver) NActuators() int { return d.actuators }

func (d *mirrorDriver) Apply(_ context.Context, pattern []float64) error {
	clipped := make([]float64, len(pattern))
	for i, v := range pattern {
		clipped[i] = min(max(v, 0), 1)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = clipped
	return nil
}

// CurrentPattern returns a copy of the last applied pattern, nil if none.
func (d *mirrorDriver) CurrentPattern() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil
	}
	out := make([]float64, len(d.current))
	copy(out, d.current)
	return out
}

func (d *mirrorDriver) SupportedTriggers() []device.TriggerSpec {
	return []device.TriggerSpec{
		{Type: device.TriggerSoftware, Mode: device.TriggerOnce},
		{Type: device.TriggerRisingEdge, Mode: device.TriggerOnce},
	}
}

func (d *mirrorDriver) ArmTrigger(_ context.Context, _ device.TriggerSpec) error {
	return nil
}

// NewMirror builds a simulated deformable mirror. Conf key: "actuators"
// (default 52).
func NewMirror(conf map[string]any) (*device.DeformableMirror, error) {
	driver := &mirrorDriver{actuators: confInt(conf, "actuators", defaultActuators)}
	return device.NewDeformableMirror(driver)
}
