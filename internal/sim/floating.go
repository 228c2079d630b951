package sim

import (
	"context"
	"fmt"

	"github.com/instrumentd/rig-core/internal/device"
	"github.com/instrumentd/rig-core/internal/floating"
)

// FloatingCamera is a simulated camera whose serial number is only
// readable once the hardware link is up, the shape of a real SDK where
// enumeration order is unstable.
type FloatingCamera struct {
	*device.Camera
	driver *cameraDriver
	serial string
}

// GetID implements device.Identifiable.
func (c *FloatingCamera) GetID(_ context.Context) (string, error) {
	if !c.driver.Alive() {
		return "", fmt.Errorf("serial unreadable before initialize")
	}
	return c.serial, nil
}

// NewFloatingCameraPool builds a candidate factory over a fixed pool of
// simulated cameras. Conf keys: "serials" lists the attached serial
// numbers in enumeration order; "width" and "height" set the sensor
// shape shared by the pool.
func NewFloatingCameraPool(conf map[string]any) floating.CandidateFactory {
	serials := confStrings(conf, "serials")
	width := confInt(conf, "width", defaultSensorWidth)
	height := confInt(conf, "height", defaultSensorHeight)

	return func(_ context.Context, index int) (device.Identifiable, error) {
		if index >= len(serials) {
			return nil, fmt.Errorf("%w: %d units attached", floating.ErrPoolExhausted, len(serials))
		}
		driver := newCameraDriver(width, height)
		cam, err := device.NewCamera(driver)
		if err != nil {
			return nil, err
		}
		return &FloatingCamera{Camera: cam, driver: driver, serial: serials[index]}, nil
	}
}
