package device

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestBaseLifecycleHappyPath(t *testing.T) {
	ctx := context.Background()

	var order []string
	b := NewBase(Hooks{
		Initialize: func(context.Context) error { order = append(order, "initialize"); return nil },
		Enable:     func(context.Context) error { order = append(order, "enable"); return nil },
		Disable:    func(context.Context) error { order = append(order, "disable"); return nil },
		Shutdown:   func(context.Context) error { order = append(order, "shutdown"); return nil },
	})

	if got := b.State(); got != StateUninitialized {
		t.Fatalf("State() = %s, want uninitialized", got)
	}
	if b.IsAlive() {
		t.Error("IsAlive() = true before Initialize")
	}

	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := b.State(); got != StateInitialized {
		t.Errorf("State() = %s, want initialized", got)
	}
	if !b.IsAlive() {
		t.Error("IsAlive() = false after Initialize")
	}

	if err := b.Enable(ctx); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if err := b.Disable(ctx); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if err := b.Enable(ctx); err != nil {
		t.Fatalf("re-Enable() error = %v", err)
	}
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := b.State(); got != StateShutdown {
		t.Errorf("State() = %s, want shutdown", got)
	}
	if b.IsAlive() {
		t.Error("IsAlive() = true after Shutdown")
	}

	want := []string{"initialize", "enable", "disable", "enable", "disable", "shutdown"}
	if len(order) != len(want) {
		t.Fatalf("hook order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("hook order = %v, want %v", order, want)
		}
	}
}

func TestBaseRejectsInvalidTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		op   func(b *Base) error
	}{
		{"enable uninitialized", func(b *Base) error { return b.Enable(ctx) }},
		{"disable uninitialized", func(b *Base) error { return b.Disable(ctx) }},
		{"double initialize", func(b *Base) error {
			if err := b.Initialize(ctx); err != nil {
				return fmt.Errorf("first initialize: %v", err)
			}
			return b.Initialize(ctx)
		}},
		{"disable initialized", func(b *Base) error {
			if err := b.Initialize(ctx); err != nil {
				return fmt.Errorf("initialize: %v", err)
			}
			return b.Disable(ctx)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBase(Hooks{})
			err := tt.op(b)
			if !errors.Is(err, ErrLifecycle) {
				t.Errorf("error = %v, want ErrLifecycle", err)
			}
		})
	}
}

func TestBaseEnableIdempotent(t *testing.T) {
	ctx := context.Background()

	enables := 0
	b := NewBase(Hooks{
		Enable: func(context.Context) error { enables++; return nil },
	})
	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := b.Enable(ctx); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if err := b.Enable(ctx); err != nil {
		t.Fatalf("second Enable() error = %v", err)
	}
	if enables != 1 {
		t.Errorf("enable hook ran %d times, want 1", enables)
	}
}

func TestBaseFailedEnableLeavesDisabled(t *testing.T) {
	ctx := context.Background()

	fail := true
	b := NewBase(Hooks{
		Enable: func(context.Context) error {
			if fail {
				return errors.New("laser interlock open")
			}
			return nil
		},
	})
	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	err := b.Enable(ctx)
	if !errors.Is(err, ErrDeviceFault) {
		t.Fatalf("Enable() error = %v, want ErrDeviceFault", err)
	}
	if got := b.State(); got != StateDisabled {
		t.Fatalf("State() after failed enable = %s, want disabled", got)
	}

	// The fault is retryable.
	fail = false
	if err := b.Enable(ctx); err != nil {
		t.Fatalf("retry Enable() error = %v", err)
	}
}

func TestBaseShutdownDisablesFirst(t *testing.T) {
	ctx := context.Background()

	var order []string
	b := NewBase(Hooks{
		Disable:  func(context.Context) error { order = append(order, "disable"); return nil },
		Shutdown: func(context.Context) error { order = append(order, "shutdown"); return nil },
	})
	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := b.Enable(ctx); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if len(order) != 2 || order[0] != "disable" || order[1] != "shutdown" {
		t.Errorf("hook order = %v, want [disable shutdown]", order)
	}
}

func TestBaseShutdownIdempotent(t *testing.T) {
	ctx := context.Background()

	shutdowns := 0
	b := NewBase(Hooks{
		Shutdown: func(context.Context) error { shutdowns++; return nil },
	})
	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
	if shutdowns != 1 {
		t.Errorf("shutdown hook ran %d times, want 1", shutdowns)
	}
}

func TestBaseShutdownProceedsPastDisableError(t *testing.T) {
	ctx := context.Background()

	shutdownRan := false
	b := NewBase(Hooks{
		Disable:  func(context.Context) error { return errors.New("link lost") },
		Shutdown: func(context.Context) error { shutdownRan = true; return nil },
	})
	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := b.Enable(ctx); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !shutdownRan {
		t.Error("shutdown hook did not run after disable failure")
	}
	if got := b.State(); got != StateShutdown {
		t.Errorf("State() = %s, want shutdown", got)
	}
}

func TestBaseGuardAfterShutdown(t *testing.T) {
	ctx := context.Background()

	b := NewBase(Hooks{})
	value := 5.0
	if err := b.AddSetting(Setting{
		Name:   "gain",
		Type:   SettingFloat,
		Getter: func() (any, error) { return value, nil },
		Setter: func(v any) error { value = v.(float64); return nil },
	}); err != nil {
		t.Fatalf("AddSetting() error = %v", err)
	}
	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if _, err := b.GetSetting("gain"); !errors.Is(err, ErrLifecycle) {
		t.Errorf("GetSetting() after shutdown error = %v, want ErrLifecycle", err)
	}
	if err := b.SetSetting("gain", 2.0); !errors.Is(err, ErrLifecycle) {
		t.Errorf("SetSetting() after shutdown error = %v, want ErrLifecycle", err)
	}
}

func TestBaseAliveHook(t *testing.T) {
	ctx := context.Background()

	alive := true
	b := NewBase(Hooks{
		Alive: func() bool { return alive },
	})
	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if !b.IsAlive() {
		t.Error("IsAlive() = false with responsive link")
	}
	alive = false
	if b.IsAlive() {
		t.Error("IsAlive() = true with dead link")
	}
	if got := b.State(); got != StateInitialized {
		t.Errorf("State() changed to %s on IsAlive", got)
	}
}
