package server

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/instrumentd/rig-core/internal/device"
	"github.com/instrumentd/rig-core/internal/floating"
)

// Factory constructs the devices one config entry serves. The map keys
// become remote object names; a single-device driver returns one pair
// keyed by the entry name. A driver for a composite controller returns
// the controller under the entry name; its sub-devices are exposed as
// "entry.sub" objects by the rpc layer.
type Factory func(ctx context.Context, entry string, conf map[string]any) (map[string]device.Device, error)

// FloatingFactory builds the candidate factory for a floating driver.
// The entry's uid selects which candidate is kept.
type FloatingFactory func(entry string, conf map[string]any) floating.CandidateFactory

// Registry maps driver names to device factories. Drivers register
// themselves at init time, so registration panics on programming errors
// rather than returning them.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	floating  map[string]FloatingFactory
}

// NewRegistry returns an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		floating:  make(map[string]FloatingFactory),
	}
}

// Register adds a fixed-identity driver. It panics if the name is empty,
// already registered, or the factory is nil.
func (r *Registry) Register(name string, factory Factory) {
	if name == "" || factory == nil {
		panic("server: Register requires a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("server: driver %q registered twice", name))
	}
	if _, dup := r.floating[name]; dup {
		panic(fmt.Sprintf("server: driver %q registered twice", name))
	}
	r.factories[name] = factory
}

// RegisterFloating adds a floating driver: one whose physical unit is
// selected by uid at worker startup. Same panic rules as Register.
func (r *Registry) RegisterFloating(name string, factory FloatingFactory) {
	if name == "" || factory == nil {
		panic("server: RegisterFloating requires a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("server: driver %q registered twice", name))
	}
	if _, dup := r.floating[name]; dup {
		panic(fmt.Sprintf("server: driver %q registered twice", name))
	}
	r.floating[name] = factory
}

// Factory returns the fixed-identity factory for a driver name.
func (r *Registry) Factory(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// FloatingFactory returns the floating factory for a driver name.
func (r *Registry) FloatingFactory(name string) (FloatingFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.floating[name]
	return f, ok
}

// IsFloating reports whether the named driver resolves by uid.
func (r *Registry) IsFloating(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.floating[name]
	return ok
}

// Known reports whether the driver name is registered at all.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.factories[name]; ok {
		return true
	}
	_, ok := r.floating[name]
	return ok
}

// Drivers returns all registered driver names in sorted order.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories)+len(r.floating))
	for name := range r.factories {
		names = append(names, name)
	}
	for name := range r.floating {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// defaultRegistry serves init-time driver self-registration, the same
// pattern database/sql uses for its drivers.
var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry drivers register into.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds a driver to the default registry.
func Register(name string, factory Factory) {
	defaultRegistry.Register(name, factory)
}

// RegisterFloating adds a floating driver to the default registry.
func RegisterFloating(name string, factory FloatingFactory) {
	defaultRegistry.RegisterFloating(name, factory)
}
