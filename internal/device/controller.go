package device

import (
	"context"
	"fmt"
	"sort"
)

// SubDeviceOwner is implemented by devices that own and expose a set of
// sub-devices, typically multi-device controllers.
type SubDeviceOwner interface {
	Devices() map[string]Device
}

// Controller is the role for devices that control multiple sub-devices:
// multi-laser engines, stage controllers driving an XY pair plus a filter
// wheel, and the like. Sub-devices share the controller's process and are
// not independently addressable outside it unless the construction
// function also returns them as top-level entries.
//
// Shutting down the controller shuts down every sub-device. Sub-device
// shutdown is idempotent, so a sub-device that was already shut down
// directly is skipped harmlessly.
type Controller struct {
	*Base
	devices map[string]Device
}

// ControllerOptions configures the controller's own hardware link.
type ControllerOptions struct {
	Initialize func(ctx context.Context) error
	Shutdown   func(ctx context.Context) error
	Alive      func() bool
}

// NewController builds the Controller role over named sub-devices.
func NewController(devices map[string]Device, opts ControllerOptions) (*Controller, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("building controller: at least one sub-device is required")
	}

	c := &Controller{devices: devices}
	c.Base = NewBase(Hooks{
		Initialize: opts.Initialize,
		Shutdown: func(ctx context.Context) error {
			var firstErr error
			for _, name := range c.deviceNames() {
				if err := c.devices[name].Shutdown(ctx); err != nil && firstErr == nil {
					firstErr = fmt.Errorf("sub-device %q: %w", name, err)
				}
			}
			if opts.Shutdown != nil {
				if err := opts.Shutdown(ctx); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		},
		Alive: opts.Alive,
	})
	return c, nil
}

// Devices implements SubDeviceOwner.
func (c *Controller) Devices() map[string]Device { return c.devices }

func (c *Controller) deviceNames() []string {
	names := make([]string, 0, len(c.devices))
	for name := range c.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
