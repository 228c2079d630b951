// Package floating resolves "floating" devices: pools of structurally
// identical device handles that can only be told apart by a hardware
// identity read after initialization.
//
// Some vendor SDKs assign indices to attached units in an order that is
// not stable across process-level open/close cycles, so it is impossible
// to ask the SDK for a specific physical unit. The only way to find the
// wanted one is to construct candidates in turn, initialize each, and
// check its identity.
//
// Two resolutions for the same device class must not run concurrently
// without external serialisation, or they can race to claim the same
// physical unit. The device server serialises per-class resolution;
// other callers are responsible for their own serialisation.
package floating

import (
	"context"
	"errors"
	"fmt"

	"github.com/instrumentd/rig-core/internal/device"
)

// ErrPoolExhausted reports that the factory has no candidate at the
// requested index. Factories return it (or wrap it) to end resolution.
var ErrPoolExhausted = errors.New("floating: candidate pool exhausted")

// CandidateFactory constructs the candidate at the given pool index. It
// returns an error wrapping ErrPoolExhausted when index is past the end
// of the pool.
type CandidateFactory func(ctx context.Context, index int) (device.Identifiable, error)

// Logger is the logging interface for the resolver.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Resolve walks the candidate pool until it finds the device whose
// identity matches wantedID, and transfers exclusive ownership of that
// initialized instance to the caller.
//
// A rejected candidate is shut down only after the next candidate has
// been constructed and initialized. Shutting down first would release
// the physical unit back to the SDK, and with unstable enumeration order
// the next construction could attach to the same wrong unit again.
//
// On exhaustion the last rejected candidate is shut down and Resolve
// fails with an error wrapping device.ErrNotFound. There is no retry
// or backoff: each candidate is tried exactly once per resolution.
func Resolve(ctx context.Context, factory CandidateFactory, wantedID string, log Logger) (device.Identifiable, error) {
	if log == nil {
		log = noopLogger{}
	}

	current, err := construct(ctx, factory, 0)
	if err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			return nil, fmt.Errorf("%w: no candidates for id %q", device.ErrNotFound, wantedID)
		}
		return nil, err
	}

	for index := 0; ; index++ {
		id, err := current.GetID(ctx)
		if err != nil {
			shutdownRejected(ctx, current, log)
			return nil, fmt.Errorf("reading candidate %d identity: %w", index, err)
		}
		if id == wantedID {
			log.Info("floating device resolved", "id", id, "index", index)
			return current, nil
		}
		log.Info("rejecting candidate", "id", id, "wanted", wantedID, "index", index)

		// Claim the next unit before releasing the rejected one.
		next, err := construct(ctx, factory, index+1)
		if err != nil {
			shutdownRejected(ctx, current, log)
			if errors.Is(err, ErrPoolExhausted) {
				return nil, fmt.Errorf("%w: no candidate matched id %q after %d tries",
					device.ErrNotFound, wantedID, index+1)
			}
			return nil, err
		}
		shutdownRejected(ctx, current, log)
		current = next
	}
}

// construct builds and initializes one candidate. A candidate that fails
// to initialize is discarded without shutdown: it never owned hardware.
func construct(ctx context.Context, factory CandidateFactory, index int) (device.Identifiable, error) {
	candidate, err := factory(ctx, index)
	if err != nil {
		return nil, err
	}
	if err := candidate.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initializing candidate %d: %w", index, err)
	}
	return candidate, nil
}

func shutdownRejected(ctx context.Context, d device.Identifiable, log Logger) {
	if err := d.Shutdown(ctx); err != nil {
		// The unit stays allocated until the process exits; resolution
		// itself is unaffected.
		log.Warn("shutting down rejected candidate", "error", err)
	}
}
