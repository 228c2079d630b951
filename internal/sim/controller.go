package sim

import (
	"fmt"

	"github.com/instrumentd/rig-core/internal/device"
)

// NewController builds a simulated multi-device controller owning light
// sources and a filter wheel, the shape of a typical laser engine. Conf
// keys: "lights" is the light count (default 2), "wheel_positions" the
// wheel position count (default 6).
func NewController(conf map[string]any) (*device.Controller, error) {
	lights := confInt(conf, "lights", 2)
	if lights < 1 {
		return nil, fmt.Errorf("building sim controller: lights must be positive (was %d)", lights)
	}

	devices := make(map[string]device.Device, lights+1)
	for i := 0; i < lights; i++ {
		light, err := NewLight(nil)
		if err != nil {
			return nil, fmt.Errorf("building sim controller: %w", err)
		}
		devices[fmt.Sprintf("light%d", i)] = light
	}

	wheel, err := NewWheel(map[string]any{
		"positions": confInt(conf, "wheel_positions", defaultWheelPositions),
	})
	if err != nil {
		return nil, fmt.Errorf("building sim controller: %w", err)
	}
	devices["wheel"] = wheel

	return device.NewController(devices, device.ControllerOptions{})
}
