package device

import (
	"context"
	"fmt"
	"sync"
)

// TriggerCapability implements TriggerTarget for roles that compose it.
//
// The device declares its supported (type, mode) combinations once at
// construction; the active pair is always a member of that set. Arming the
// hardware for a new pair and firing a software trigger are delegated to
// the role through the apply and fire callbacks.
type TriggerCapability struct {
	mu        sync.Mutex
	supported map[TriggerSpec]struct{}
	current   TriggerSpec

	state func() State
	apply func(ctx context.Context, spec TriggerSpec) error
	fire  func(ctx context.Context) error
}

// NewTriggerCapability builds the capability. supported must be non-empty;
// the first entry becomes the initial active pair. state reports the
// owning device's lifecycle state; apply reconfigures hardware for a new
// pair (nil when arming is a pure software concern); fire performs the
// device-specific software trigger action.
func NewTriggerCapability(
	supported []TriggerSpec,
	state func() State,
	apply func(ctx context.Context, spec TriggerSpec) error,
	fire func(ctx context.Context) error,
) (*TriggerCapability, error) {
	if len(supported) == 0 {
		return nil, fmt.Errorf("%w: no trigger combinations declared", ErrUnsupportedTrigger)
	}
	if state == nil || fire == nil {
		return nil, fmt.Errorf("%w: state and fire callbacks are required", ErrUnsupportedTrigger)
	}

	set := make(map[TriggerSpec]struct{}, len(supported))
	for _, spec := range supported {
		set[spec] = struct{}{}
	}
	return &TriggerCapability{
		supported: set,
		current:   supported[0],
		state:     state,
		apply:     apply,
		fire:      fire,
	}, nil
}

// TriggerSpec returns the active (type, mode) pair.
func (t *TriggerCapability) TriggerSpec() TriggerSpec {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Supported reports the declared combinations.
func (t *TriggerCapability) Supported() []TriggerSpec {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TriggerSpec, 0, len(t.supported))
	for spec := range t.supported {
		out = append(out, spec)
	}
	return out
}

// SetTrigger arms the device for the given combination. The device must be
// enabled; an undeclared combination fails with ErrUnsupportedTrigger. How
// deeply this reconfigures hardware is device specific.
func (t *TriggerCapability) SetTrigger(ctx context.Context, ttype TriggerType, tmode TriggerMode) error {
	if s := t.state(); s != StateEnabled {
		return fmt.Errorf("%w: set trigger while %s", ErrLifecycle, s)
	}

	spec := TriggerSpec{Type: ttype, Mode: tmode}
	t.mu.Lock()
	_, ok := t.supported[spec]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: (%s, %s)", ErrUnsupportedTrigger, ttype, tmode)
	}

	if t.apply != nil {
		if err := t.apply(ctx, spec); err != nil {
			return fmt.Errorf("%w: arming (%s, %s): %w", ErrDeviceFault, ttype, tmode, err)
		}
	}

	t.mu.Lock()
	t.current = spec
	t.mu.Unlock()
	return nil
}

// Trigger fires a software trigger. Hardware edges are physically external
// and cannot be emulated by this call, so any non-software trigger type
// fails with ErrUnsupportedTrigger.
func (t *TriggerCapability) Trigger(ctx context.Context) error {
	if s := t.state(); s != StateEnabled {
		return fmt.Errorf("%w: trigger while %s", ErrLifecycle, s)
	}

	t.mu.Lock()
	current := t.current
	t.mu.Unlock()
	if current.Type != TriggerSoftware {
		return fmt.Errorf("%w: trigger type is %s, not software", ErrUnsupportedTrigger, current.Type)
	}
	return t.fire(ctx)
}
