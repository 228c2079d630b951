package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrLifecycle) {
//	    // invalid transition or call after shutdown
//	}
var (
	// ErrLifecycle is returned for an invalid state transition or any call
	// made after Shutdown. Fatal to the call, not to the process.
	ErrLifecycle = errors.New("device: invalid lifecycle state")

	// ErrDeviceFault is returned when hardware reports a failure during
	// enable or operation. The device is left disabled; retrying Enable
	// after diagnosis is valid.
	ErrDeviceFault = errors.New("device: hardware fault")

	// ErrUnsupportedTrigger is returned when a (type, mode) combination is
	// not in the device's supported set, or when Trigger is called while
	// the trigger type is not software.
	ErrUnsupportedTrigger = errors.New("device: unsupported trigger")

	// ErrQueueExhausted is returned when Trigger is called with an empty or
	// exhausted pattern queue.
	ErrQueueExhausted = errors.New("device: pattern queue exhausted")

	// ErrSettings is returned for a write to a readonly setting or a value
	// outside the declared domain.
	ErrSettings = errors.New("device: invalid setting write")

	// ErrNotFound is returned when floating-device resolution exhausts the
	// candidate pool without a match. Fatal to the server entry.
	ErrNotFound = errors.New("device: not found")

	// ErrRemoteCall is returned when a call fails at the process boundary.
	// Device-side state is unknown; callers must re-check with IsAlive.
	ErrRemoteCall = errors.New("device: remote call failed")
)
