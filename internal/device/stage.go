package device

import (
	"context"
	"fmt"
	"sort"
)

// AxisDriver is the hardware surface for a single stage axis.
type AxisDriver interface {
	Position() (float64, error)
	Limits() AxisLimits
	MoveTo(ctx context.Context, position float64) error
}

// StageAxis is a single dimension of a Stage. It is not a Device itself;
// even single-axis stages are a Stage composed of one StageAxis.
//
// Move operations are clipped to the axis limits: a target beyond a limit
// moves to the limit, without error.
type StageAxis struct {
	driver AxisDriver
}

// NewStageAxis wraps an axis driver.
func NewStageAxis(driver AxisDriver) *StageAxis {
	return &StageAxis{driver: driver}
}

// Position returns the current axis position.
func (a *StageAxis) Position() (float64, error) { return a.driver.Position() }

// Limits returns the axis travel limits.
func (a *StageAxis) Limits() AxisLimits { return a.driver.Limits() }

// MoveTo moves the axis to the given position, clipped to the limits.
func (a *StageAxis) MoveTo(ctx context.Context, position float64) error {
	limits := a.driver.Limits()
	return a.driver.MoveTo(ctx, min(max(position, limits.Lower), limits.Upper))
}

// MoveBy moves the axis by the given amount, clipped to the limits.
func (a *StageAxis) MoveBy(ctx context.Context, delta float64) error {
	pos, err := a.driver.Position()
	if err != nil {
		return err
	}
	return a.MoveTo(ctx, pos+delta)
}

// StageHomer is implemented by stage hardware that must find a reference
// position before it can be moved. Homing happens during Enable.
type StageHomer interface {
	Home(ctx context.Context) error
}

// Stage is the role for positioning stages of any number of axes. Each
// axis has a name unique within the stage, typically "x", "y" or "z".
//
// There is no guarantee that a multi-axis move is simultaneous; when order
// matters, move the axes individually.
type Stage struct {
	*Base
	axes map[string]*StageAxis
}

// StageOptions configures optional stage behaviour.
type StageOptions struct {
	// Homer, when set, is invoked during Enable.
	Homer StageHomer

	// Alive reports hardware link health; state-derived when nil.
	Alive func() bool

	// Initialize and Shutdown hook the hardware link lifecycle.
	Initialize func(ctx context.Context) error
	Shutdown   func(ctx context.Context) error
}

// NewStage builds the Stage role from named axis drivers.
func NewStage(axes map[string]AxisDriver, opts StageOptions) (*Stage, error) {
	if len(axes) == 0 {
		return nil, fmt.Errorf("building stage: at least one axis is required")
	}

	s := &Stage{axes: make(map[string]*StageAxis, len(axes))}
	for name, driver := range axes {
		s.axes[name] = NewStageAxis(driver)
	}

	enable := func(ctx context.Context) error {
		if opts.Homer != nil {
			return opts.Homer.Home(ctx)
		}
		return nil
	}
	s.Base = NewBase(Hooks{
		Initialize: opts.Initialize,
		Enable:     enable,
		Shutdown:   opts.Shutdown,
		Alive:      opts.Alive,
	})
	return s, nil
}

// Axes returns the map of axis names to axes.
func (s *Stage) Axes() map[string]*StageAxis { return s.axes }

// AxisNames returns the axis names in sorted order.
func (s *Stage) AxisNames() []string {
	names := make([]string, 0, len(s.axes))
	for name := range s.axes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Position returns a map of axis name to current position.
func (s *Stage) Position() (map[string]float64, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(s.axes))
	for name, axis := range s.axes {
		pos, err := axis.Position()
		if err != nil {
			return nil, fmt.Errorf("axis %q: %w", name, err)
		}
		out[name] = pos
	}
	return out, nil
}

// Limits returns a map of axis name to travel limits.
func (s *Stage) Limits() map[string]AxisLimits {
	out := make(map[string]AxisLimits, len(s.axes))
	for name, axis := range s.axes {
		out[name] = axis.Limits()
	}
	return out
}

// MoveTo moves the named axes to the given positions, each clipped to its
// limits. Unknown axis names fail before any axis moves.
func (s *Stage) MoveTo(ctx context.Context, position map[string]float64) error {
	if err := s.checkMove(position); err != nil {
		return err
	}
	for name, target := range position {
		if err := s.axes[name].MoveTo(ctx, target); err != nil {
			return fmt.Errorf("axis %q: %w", name, err)
		}
	}
	return nil
}

// MoveBy moves the named axes by the given amounts, each clipped to its
// limits.
func (s *Stage) MoveBy(ctx context.Context, delta map[string]float64) error {
	if err := s.checkMove(delta); err != nil {
		return err
	}
	for name, d := range delta {
		if err := s.axes[name].MoveBy(ctx, d); err != nil {
			return fmt.Errorf("axis %q: %w", name, err)
		}
	}
	return nil
}

func (s *Stage) checkMove(targets map[string]float64) error {
	if err := s.guard(); err != nil {
		return err
	}
	if s.State() != StateEnabled {
		return fmt.Errorf("%w: move while %s", ErrLifecycle, s.State())
	}
	for name := range targets {
		if _, ok := s.axes[name]; !ok {
			return fmt.Errorf("%w: unknown axis %q", ErrSettings, name)
		}
	}
	return nil
}
