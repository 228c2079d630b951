package sim

import (
	"context"

	"github.com/instrumentd/rig-core/internal/device"
	"github.com/instrumentd/rig-core/internal/floating"
	"github.com/instrumentd/rig-core/internal/server"
)

// The simulators register as built-in drivers. Importing this package
// for side effects (the way database/sql drivers are imported) makes
// them available to the server.
func init() {
	server.Register("sim.camera", single(func(conf map[string]any) (device.Device, error) {
		return NewCamera(conf)
	}))
	server.Register("sim.light", single(func(conf map[string]any) (device.Device, error) {
		return NewLight(conf)
	}))
	server.Register("sim.wheel", single(func(conf map[string]any) (device.Device, error) {
		return NewWheel(conf)
	}))
	server.Register("sim.stage", single(func(conf map[string]any) (device.Device, error) {
		return NewStage(conf)
	}))
	server.Register("sim.mirror", single(func(conf map[string]any) (device.Device, error) {
		return NewMirror(conf)
	}))
	server.Register("sim.controller", single(func(conf map[string]any) (device.Device, error) {
		return NewController(conf)
	}))
	server.RegisterFloating("sim.camera_floating", func(_ string, conf map[string]any) floating.CandidateFactory {
		return NewFloatingCameraPool(conf)
	})
}

// single adapts a one-device constructor to a server.Factory.
func single(build func(conf map[string]any) (device.Device, error)) server.Factory {
	return func(_ context.Context, entry string, conf map[string]any) (map[string]device.Device, error) {
		dev, err := build(conf)
		if err != nil {
			return nil, err
		}
		return map[string]device.Device{entry: dev}, nil
	}
}
