package sim

import (
	"context"
	"sync"

	"github.com/instrumentd/rig-core/internal/device"
)

// Default travel limits in device units when conf does not set them.
const (
	defaultAxisLower = -25000.0
	defaultAxisUpper = 25000.0
)

// axisDriver simulates one stage axis. Moves complete instantly.
type axisDriver struct {
	limits device.AxisLimits

	mu       sync.Mutex
	position float64
}

func (d *axisDriver) Position() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position, nil
}

func (d *axisDriver) Limits() device.AxisLimits { return d.limits }

func (d *axisDriver) MoveTo(_ context.Context, position float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = position
	return nil
}

// stageHomer moves every axis to zero during Enable.
type stageHomer struct {
	axes map[string]*axisDriver
}

func (h *stageHomer) Home(ctx context.Context) error {
	for _, axis := range h.axes {
		if err := axis.MoveTo(ctx, 0); err != nil {
			return err
		}
	}
	return nil
}

// NewStage builds a simulated stage. Conf key "axes" maps axis names to
// {"lower": L, "upper": U} limit pairs; absent, the stage gets "x" and
// "y" axes with default limits.
func NewStage(conf map[string]any) (*device.Stage, error) {
	sims := simAxes(conf)

	drivers := make(map[string]device.AxisDriver, len(sims))
	for name, axis := range sims {
		drivers[name] = axis
	}

	return device.NewStage(drivers, device.StageOptions{
		Homer: &stageHomer{axes: sims},
	})
}

func simAxes(conf map[string]any) map[string]*axisDriver {
	raw, ok := conf["axes"].(map[string]any)
	if !ok || len(raw) == 0 {
		return map[string]*axisDriver{
			"x": {limits: device.AxisLimits{Lower: defaultAxisLower, Upper: defaultAxisUpper}},
			"y": {limits: device.AxisLimits{Lower: defaultAxisLower, Upper: defaultAxisUpper}},
		}
	}

	axes := make(map[string]*axisDriver, len(raw))
	for name, v := range raw {
		spec, _ := v.(map[string]any)
		axes[name] = &axisDriver{limits: device.AxisLimits{
			Lower: confFloat(spec, "lower", defaultAxisLower),
			Upper: confFloat(spec, "upper", defaultAxisUpper),
		}}
	}
	return axes
}
