package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/instrumentd/rig-core/internal/device"
)

const defaultWheelPositions = 6

// wheelDriver simulates a filter wheel. Moves are instantaneous.
type wheelDriver struct {
	positions int

	mu       sync.Mutex
	alive    bool
	position int
}

func (d *wheelDriver) Initialize(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alive = true
	d.position = 0
	return nil
}

func (d *wheelDriver) Shutdown(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alive = false
	return nil
}

func (d *wheelDriver) Alive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive
}

func (d *wheelDriver) Position() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position, nil
}

func (d *wheelDriver) SetPosition(position int) error {
	if position < 0 || position >= d.positions {
		return fmt.Errorf("position %d outside [0, %d)", position, d.positions)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = position
	return nil
}

// NewWheel builds a simulated filter wheel. Conf key: "positions"
// (default 6).
func NewWheel(conf map[string]any) (*device.FilterWheel, error) {
	positions := confInt(conf, "positions", defaultWheelPositions)
	return device.NewFilterWheel(&wheelDriver{positions: positions}, positions)
}
