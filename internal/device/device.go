package device

import (
	"context"
	"fmt"
	"sync"
)

// Device is the capability surface every instrument exposes, locally or
// across the process boundary.
type Device interface {
	// Initialize establishes the hardware link. Valid only from the
	// uninitialized state.
	Initialize(ctx context.Context) error

	// Enable makes the device ready for use. Valid from the initialized,
	// disabled, or enabled state; re-entering enabled is the only visible
	// effect of calling it while already enabled. A failed Enable leaves
	// the device disabled and returns an error wrapping ErrDeviceFault.
	Enable(ctx context.Context) error

	// Disable parks the device for a period of inactivity. The enabled and
	// disabled states are the only valid starting points.
	Disable(ctx context.Context) error

	// Shutdown disables and disconnects the device. It is terminal:
	// afterwards only State and further Shutdown calls are permitted.
	// Consecutive calls are no-ops.
	Shutdown(ctx context.Context) error

	// State reports the current lifecycle state. Never blocks on hardware.
	State() State

	// IsAlive reports whether the hardware link still responds. It does
	// not change state.
	IsAlive() bool

	// Settings registry access. See the package documentation for the
	// contract trade-offs.
	GetSetting(name string) (any, error)
	SetSetting(name string, value any) error
	DescribeSetting(name string) (SettingDescription, error)
	DescribeSettings() []SettingDescription
}

// Identifiable is implemented by floating devices: devices whose hardware
// identity (typically a serial number) is only knowable after Initialize.
type Identifiable interface {
	Device

	// GetID returns a unique hardware identifier such as a serial number.
	// Valid only after Initialize.
	GetID(ctx context.Context) (string, error)
}

// TriggerTarget is the capability of devices that can be armed for
// triggers.
type TriggerTarget interface {
	TriggerSpec() TriggerSpec
	SetTrigger(ctx context.Context, ttype TriggerType, tmode TriggerMode) error

	// Trigger fires a software trigger. Fails with ErrUnsupportedTrigger
	// unless the active trigger type is TriggerSoftware, and with
	// ErrLifecycle unless the device is enabled.
	Trigger(ctx context.Context) error
}

// DataStreamer is the capability of devices that push produced items to a
// caller-supplied sink stack.
type DataStreamer interface {
	SetClient(sink Sink)
	PushClient(sink Sink)
	PopClient() (Sink, error)
}

// Hooks carries the device-specific work behind each lifecycle transition.
// Base runs the state machine; hooks run the hardware. Any nil hook is a
// no-op. Concrete roles build the Hooks from their driver; they must not
// bypass the state machine.
type Hooks struct {
	Initialize func(ctx context.Context) error
	Enable     func(ctx context.Context) error
	Disable    func(ctx context.Context) error
	Shutdown   func(ctx context.Context) error

	// Alive reports whether the hardware link responds. When nil, IsAlive
	// is derived from the lifecycle state alone.
	Alive func() bool
}

// Base implements the lifecycle state machine and settings registry that
// every concrete role embeds.
//
// Transitions are serialised by an internal mutex: Initialize, Enable,
// Disable, Shutdown and setting writes never interleave destructively, even
// when a background acquisition loop is running.
type Base struct {
	mu       sync.Mutex
	state    State
	hooks    Hooks
	settings *settingSet
	sealed   bool
}

// NewBase returns a Base in the uninitialized state.
func NewBase(hooks Hooks) *Base {
	return &Base{
		state:    StateUninitialized,
		hooks:    hooks,
		settings: newSettingSet(),
	}
}

// State implements Device.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsAlive implements Device. After Shutdown it always reports false.
func (b *Base) IsAlive() bool {
	b.mu.Lock()
	state := b.state
	alive := b.hooks.Alive
	b.mu.Unlock()

	if state == StateUninitialized || state == StateShutdown {
		return false
	}
	if alive != nil {
		return alive()
	}
	return true
}

// Initialize implements Device.
func (b *Base) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateUninitialized {
		return fmt.Errorf("%w: initialize from %s", ErrLifecycle, b.state)
	}
	if b.hooks.Initialize != nil {
		if err := b.hooks.Initialize(ctx); err != nil {
			return fmt.Errorf("%w: initialize: %w", ErrDeviceFault, err)
		}
	}
	b.state = StateInitialized
	b.sealed = true
	return nil
}

// Enable implements Device.
func (b *Base) Enable(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateEnabled:
		// Idempotent re-enable.
		return nil
	case StateInitialized, StateDisabled:
	default:
		return fmt.Errorf("%w: enable from %s", ErrLifecycle, b.state)
	}

	if b.hooks.Enable != nil {
		if err := b.hooks.Enable(ctx); err != nil {
			// A failed enable must leave a consistent, retryable state.
			b.state = StateDisabled
			return fmt.Errorf("%w: enable: %w", ErrDeviceFault, err)
		}
	}
	b.state = StateEnabled
	return nil
}

// Disable implements Device.
func (b *Base) Disable(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disableLocked(ctx)
}

func (b *Base) disableLocked(ctx context.Context) error {
	switch b.state {
	case StateDisabled:
		return nil
	case StateEnabled:
	default:
		return fmt.Errorf("%w: disable from %s", ErrLifecycle, b.state)
	}

	if b.hooks.Disable != nil {
		if err := b.hooks.Disable(ctx); err != nil {
			return fmt.Errorf("%w: disable: %w", ErrDeviceFault, err)
		}
	}
	b.state = StateDisabled
	return nil
}

// Shutdown implements Device.
func (b *Base) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateShutdown {
		return nil
	}

	// Best effort disable first so acquisition loops and emitters stop
	// before the hardware link is torn down.
	if b.state == StateEnabled {
		if err := b.disableLocked(ctx); err != nil {
			// Shutdown must still proceed; the link may already be gone.
			_ = err
		}
	}

	var shutdownErr error
	if b.hooks.Shutdown != nil {
		shutdownErr = b.hooks.Shutdown(ctx)
	}
	b.state = StateShutdown
	if shutdownErr != nil {
		return fmt.Errorf("%w: shutdown: %w", ErrDeviceFault, shutdownErr)
	}
	return nil
}

// guard returns an ErrLifecycle error when the device has been shut down.
// Settings and capability methods call it before touching hardware.
func (b *Base) guard() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateShutdown {
		return fmt.Errorf("%w: device is shut down", ErrLifecycle)
	}
	return nil
}

// AddSetting declares a setting. It may only be called during construction,
// before Initialize; afterwards the set of names is immutable. A duplicate
// name is a construction-time error.
func (b *Base) AddSetting(s Setting) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return fmt.Errorf("%w: settings are immutable after initialize", ErrSettings)
	}
	return b.settings.add(s)
}

// GetSetting implements Device.
func (b *Base) GetSetting(name string) (any, error) {
	if err := b.guard(); err != nil {
		return nil, err
	}
	return b.settings.get(name)
}

// SetSetting implements Device. Writes are serialised with lifecycle
// transitions.
func (b *Base) SetSetting(name string, value any) error {
	if err := b.guard(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settings.set(name, value)
}

// DescribeSetting implements Device.
func (b *Base) DescribeSetting(name string) (SettingDescription, error) {
	return b.settings.describe(name)
}

// DescribeSettings implements Device.
func (b *Base) DescribeSettings() []SettingDescription {
	return b.settings.describeAll()
}
