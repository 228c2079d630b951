// Package server orchestrates the device server.
//
// The server runs in two modes of the same binary. Parent mode reads
// the config, validates its entries against the driver registry, and
// spawns one worker process per entry. Worker mode serves a single
// entry: it constructs the entry's devices, binds them to an rpc daemon
// on the entry's address, and runs until signalled.
//
// One process per entry is deliberate. Vendor SDKs routinely tolerate
// only one initialisation per process, leak state across reopens, or
// crash outright; a worker crash then takes down one device, not the
// whole rig. The parent supervises workers with SIGTERM then SIGKILL
// escalation and records their fate in SQLite for operator inspection.
// Restart after failure is opt-in per entry, because a restarted worker
// comes back with its devices uninitialized.
//
// Drivers self-register into the default registry at init time, the way
// database/sql drivers do; importing a driver package for side effects
// makes it configurable.
package server
