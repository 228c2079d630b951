package device

import (
	"context"
	"fmt"
)

// WheelDriver is the hardware surface for filter wheels, cube turrets, and
// filter sliders.
type WheelDriver interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Alive() bool

	Position() (int, error)
	SetPosition(position int) error
}

// FilterWheel is the role for devices with a fixed number of filter
// positions, including positions that may not hold a filter.
type FilterWheel struct {
	*Base
	driver    WheelDriver
	positions int
}

// NewFilterWheel builds the FilterWheel role. positions is the total
// number of filter positions and must be positive.
func NewFilterWheel(driver WheelDriver, positions int) (*FilterWheel, error) {
	if positions < 1 {
		return nil, fmt.Errorf("building filter wheel: positions must be positive (was %d)", positions)
	}

	w := &FilterWheel{driver: driver, positions: positions}
	w.Base = NewBase(Hooks{
		Initialize: driver.Initialize,
		Shutdown:   driver.Shutdown,
		Alive:      driver.Alive,
	})

	if err := w.AddSetting(Setting{
		Name:      "position",
		Type:      SettingInt,
		Getter:    func() (any, error) { return driver.Position() },
		Setter:    func(v any) error { f, _ := asFloat(v); return w.SetPosition(int(f)) },
		HasBounds: true,
		Min:       0,
		Max:       float64(positions - 1),
	}); err != nil {
		return nil, fmt.Errorf("building filter wheel: %w", err)
	}

	return w, nil
}

// NPositions returns the number of wheel positions.
func (w *FilterWheel) NPositions() int { return w.positions }

// GetPosition returns the current position, zero-based.
func (w *FilterWheel) GetPosition() (int, error) {
	if err := w.guard(); err != nil {
		return 0, err
	}
	return w.driver.Position()
}

// SetPosition moves the wheel to the given zero-based position.
func (w *FilterWheel) SetPosition(position int) error {
	if err := w.guard(); err != nil {
		return err
	}
	if position < 0 || position >= w.positions {
		return fmt.Errorf("%w: position %d outside [0 %d]", ErrSettings, position, w.positions-1)
	}
	return w.driver.SetPosition(position)
}
