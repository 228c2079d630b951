package device

import (
	"context"
	"errors"
	"testing"
)

func newTriggerFixture(t *testing.T, state State) (*TriggerCapability, *int) {
	t.Helper()

	fired := 0
	tc, err := NewTriggerCapability(
		[]TriggerSpec{
			{Type: TriggerSoftware, Mode: TriggerOnce},
			{Type: TriggerRisingEdge, Mode: TriggerStrobe},
		},
		func() State { return state },
		nil,
		func(context.Context) error { fired++; return nil },
	)
	if err != nil {
		t.Fatalf("NewTriggerCapability() error = %v", err)
	}
	return tc, &fired
}

func TestTriggerDefaultIsFirstDeclared(t *testing.T) {
	tc, _ := newTriggerFixture(t, StateEnabled)

	got := tc.TriggerSpec()
	want := TriggerSpec{Type: TriggerSoftware, Mode: TriggerOnce}
	if got != want {
		t.Errorf("TriggerSpec() = %+v, want %+v", got, want)
	}
}

func TestTriggerSetAndFire(t *testing.T) {
	ctx := context.Background()
	tc, fired := newTriggerFixture(t, StateEnabled)

	if err := tc.Trigger(ctx); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if *fired != 1 {
		t.Errorf("fire callback ran %d times, want 1", *fired)
	}

	if err := tc.SetTrigger(ctx, TriggerRisingEdge, TriggerStrobe); err != nil {
		t.Fatalf("SetTrigger() error = %v", err)
	}
	if got := tc.TriggerSpec(); got.Type != TriggerRisingEdge {
		t.Errorf("TriggerSpec().Type = %s, want rising_edge", got.Type)
	}

	// Hardware edges cannot be fired in software.
	if err := tc.Trigger(ctx); !errors.Is(err, ErrUnsupportedTrigger) {
		t.Errorf("Trigger() with edge type error = %v, want ErrUnsupportedTrigger", err)
	}
	if *fired != 1 {
		t.Errorf("fire callback ran %d times after rejected trigger, want 1", *fired)
	}
}

func TestTriggerRejectsUndeclaredCombination(t *testing.T) {
	tc, _ := newTriggerFixture(t, StateEnabled)

	err := tc.SetTrigger(context.Background(), TriggerSoftware, TriggerBulb)
	if !errors.Is(err, ErrUnsupportedTrigger) {
		t.Fatalf("SetTrigger(undeclared) error = %v, want ErrUnsupportedTrigger", err)
	}
	if got := tc.TriggerSpec(); got.Mode != TriggerOnce {
		t.Errorf("active pair changed to %+v after rejected SetTrigger", got)
	}
}

func TestTriggerRequiresEnabled(t *testing.T) {
	ctx := context.Background()
	for _, state := range []State{StateUninitialized, StateInitialized, StateDisabled, StateShutdown} {
		tc, _ := newTriggerFixture(t, state)
		if err := tc.SetTrigger(ctx, TriggerSoftware, TriggerOnce); !errors.Is(err, ErrLifecycle) {
			t.Errorf("SetTrigger() while %s error = %v, want ErrLifecycle", state, err)
		}
		if err := tc.Trigger(ctx); !errors.Is(err, ErrLifecycle) {
			t.Errorf("Trigger() while %s error = %v, want ErrLifecycle", state, err)
		}
	}
}

func TestTriggerApplyFailureKeepsCurrent(t *testing.T) {
	applyErr := errors.New("serial timeout")
	tc, err := NewTriggerCapability(
		[]TriggerSpec{
			{Type: TriggerSoftware, Mode: TriggerOnce},
			{Type: TriggerRisingEdge, Mode: TriggerStrobe},
		},
		func() State { return StateEnabled },
		func(context.Context, TriggerSpec) error { return applyErr },
		func(context.Context) error { return nil },
	)
	if err != nil {
		t.Fatalf("NewTriggerCapability() error = %v", err)
	}

	setErr := tc.SetTrigger(context.Background(), TriggerRisingEdge, TriggerStrobe)
	if !errors.Is(setErr, ErrDeviceFault) {
		t.Fatalf("SetTrigger() error = %v, want ErrDeviceFault", setErr)
	}
	if got := tc.TriggerSpec(); got.Type != TriggerSoftware {
		t.Errorf("active pair = %+v after failed arm, want software/once", got)
	}
}

func TestTriggerConstructionErrors(t *testing.T) {
	state := func() State { return StateEnabled }
	fire := func(context.Context) error { return nil }

	if _, err := NewTriggerCapability(nil, state, nil, fire); !errors.Is(err, ErrUnsupportedTrigger) {
		t.Errorf("empty supported set error = %v, want ErrUnsupportedTrigger", err)
	}
	spec := []TriggerSpec{{Type: TriggerSoftware, Mode: TriggerOnce}}
	if _, err := NewTriggerCapability(spec, nil, nil, fire); err == nil {
		t.Error("nil state callback accepted")
	}
	if _, err := NewTriggerCapability(spec, state, nil, nil); err == nil {
		t.Error("nil fire callback accepted")
	}
}
