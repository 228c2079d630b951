package server

import (
	"context"
	"testing"

	"github.com/instrumentd/rig-core/internal/device"
	"github.com/instrumentd/rig-core/internal/floating"
)

func fakeFactory(entry string) Factory {
	return func(_ context.Context, name string, _ map[string]any) (map[string]device.Device, error) {
		return map[string]device.Device{name: device.NewBase(device.Hooks{})}, nil
	}
}

func fakeFloatingFactory() FloatingFactory {
	return func(_ string, _ map[string]any) floating.CandidateFactory {
		return func(_ context.Context, _ int) (device.Identifiable, error) {
			return nil, floating.ErrPoolExhausted
		}
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register("test.cam", fakeFactory("cam"))
	r.RegisterFloating("test.cam_floating", fakeFloatingFactory())

	if _, ok := r.Factory("test.cam"); !ok {
		t.Error("Factory(test.cam) not found")
	}
	if _, ok := r.Factory("test.cam_floating"); ok {
		t.Error("Factory() should not return floating drivers")
	}
	if _, ok := r.FloatingFactory("test.cam_floating"); !ok {
		t.Error("FloatingFactory(test.cam_floating) not found")
	}

	if r.IsFloating("test.cam") {
		t.Error("IsFloating(test.cam) = true")
	}
	if !r.IsFloating("test.cam_floating") {
		t.Error("IsFloating(test.cam_floating) = false")
	}
	if !r.Known("test.cam") || !r.Known("test.cam_floating") {
		t.Error("Known() = false for registered drivers")
	}
	if r.Known("test.missing") {
		t.Error("Known(test.missing) = true")
	}

	drivers := r.Drivers()
	if len(drivers) != 2 || drivers[0] != "test.cam" || drivers[1] != "test.cam_floating" {
		t.Errorf("Drivers() = %v, want sorted pair", drivers)
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register("test.cam", fakeFactory("cam"))

	defer func() {
		if recover() == nil {
			t.Error("duplicate registration should panic")
		}
	}()
	r.RegisterFloating("test.cam", fakeFloatingFactory())
}

func TestRegistryEmptyNamePanics(t *testing.T) {
	r := NewRegistry()
	defer func() {
		if recover() == nil {
			t.Error("empty name should panic")
		}
	}()
	r.Register("", fakeFactory("cam"))
}
