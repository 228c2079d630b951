package server

import (
	"fmt"

	"github.com/instrumentd/rig-core/internal/infrastructure/config"
)

// ValidateEntries checks the device entries against the driver registry.
// The config package validates what it can see in the file alone; the
// rules here need to know which drivers exist and which are floating.
//
// Rules:
//   - every driver must be registered
//   - floating drivers require uid, fixed drivers forbid it
//   - no two entries may share a host:port address; each worker owns
//     its listener, and a composite controller already exposes its
//     sub-devices through the one entry
func ValidateEntries(cfg *config.Config, reg *Registry) error {
	addrs := make(map[string]string, len(cfg.Devices))
	for _, e := range cfg.Devices {
		if !reg.Known(e.Driver) {
			return fmt.Errorf("entry %q: unknown driver %q (registered: %v)",
				e.Name, e.Driver, reg.Drivers())
		}

		if reg.IsFloating(e.Driver) {
			if e.UID == "" {
				return fmt.Errorf("entry %q: driver %q is floating and requires uid", e.Name, e.Driver)
			}
		} else if e.UID != "" {
			return fmt.Errorf("entry %q: uid is only valid for floating drivers (driver %q is fixed)",
				e.Name, e.Driver)
		}

		addr := cfg.Address(e)
		if other, dup := addrs[addr]; dup {
			return fmt.Errorf("entries %q and %q share address %s", other, e.Name, addr)
		}
		addrs[addr] = e.Name
	}
	return nil
}
