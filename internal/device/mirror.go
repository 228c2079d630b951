package device

import (
	"context"
	"fmt"
	"sync"
)

// MirrorDriver is the hardware surface a deformable-mirror binding
// implements. Apply receives one per-actuator pattern; values outside
// [0, 1] are the driver's to clip if its hardware cannot take them.
type MirrorDriver interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Alive() bool

	NActuators() int
	Apply(ctx context.Context, pattern []float64) error

	SupportedTriggers() []TriggerSpec
	ArmTrigger(ctx context.Context, spec TriggerSpec) error
}

// DeformableMirror is the role for deformable mirrors. Patterns can be
// applied immediately or staged with QueuePatterns and applied one per
// trigger, in order.
//
// There is deliberately no reset operation: what "reset" does to the
// actuators is vendor-defined and inconsistent. Callers that want a known
// shape should apply the pattern that produces it.
type DeformableMirror struct {
	*Base
	*TriggerCapability
	driver MirrorDriver

	mu       sync.Mutex
	queue    [][]float64
	queueIdx int
}

// NewDeformableMirror builds the DeformableMirror role around the given
// driver.
func NewDeformableMirror(driver MirrorDriver) (*DeformableMirror, error) {
	m := &DeformableMirror{driver: driver}
	m.Base = NewBase(Hooks{
		Initialize: driver.Initialize,
		Shutdown:   driver.Shutdown,
		Alive:      driver.Alive,
	})

	trigger, err := NewTriggerCapability(
		driver.SupportedTriggers(),
		m.Base.State,
		driver.ArmTrigger,
		m.applyNext,
	)
	if err != nil {
		return nil, fmt.Errorf("building deformable mirror: %w", err)
	}
	m.TriggerCapability = trigger
	return m, nil
}

// NActuators returns the number of actuators.
func (m *DeformableMirror) NActuators() int { return m.driver.NActuators() }

// validatePattern checks a single pattern's length against the actuator
// count. Value-range clipping is the driver's concern.
func (m *DeformableMirror) validatePattern(pattern []float64) error {
	if n := m.driver.NActuators(); len(pattern) != n {
		return fmt.Errorf("%w: pattern length %d differs from actuator count %d",
			ErrSettings, len(pattern), n)
	}
	return nil
}

// ApplyPattern applies one pattern immediately. It requires the software
// trigger type: silently reprogramming the trigger would clear any queue
// on the hardware, so the caller must do that explicitly.
func (m *DeformableMirror) ApplyPattern(ctx context.Context, pattern []float64) error {
	if err := m.guard(); err != nil {
		return err
	}
	if spec := m.TriggerSpec(); spec.Type != TriggerSoftware {
		return fmt.Errorf("%w: apply pattern requires software trigger type, have %s",
			ErrUnsupportedTrigger, spec.Type)
	}
	if err := m.validatePattern(pattern); err != nil {
		return err
	}
	return m.driver.Apply(ctx, pattern)
}

// QueuePatterns stages a sequence of patterns, replacing any previously
// queued set. Each subsequent Trigger applies the next pattern in order,
// starting at index 0.
func (m *DeformableMirror) QueuePatterns(patterns [][]float64) error {
	if err := m.guard(); err != nil {
		return err
	}
	for i, p := range patterns {
		if err := m.validatePattern(p); err != nil {
			return fmt.Errorf("pattern %d: %w", i, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = patterns
	m.queueIdx = 0
	return nil
}

// QueuedPatterns returns how many staged patterns have not been applied.
func (m *DeformableMirror) QueuedPatterns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) - m.queueIdx
}

// applyNext is the software-trigger action: apply the next queued pattern.
// An empty or exhausted queue is an error, never a silent no-op.
func (m *DeformableMirror) applyNext(ctx context.Context) error {
	m.mu.Lock()
	if m.queueIdx >= len(m.queue) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d patterns queued, %d applied",
			ErrQueueExhausted, len(m.queue), m.queueIdx)
	}
	pattern := m.queue[m.queueIdx]
	m.queueIdx++
	m.mu.Unlock()

	return m.driver.Apply(ctx, pattern)
}
