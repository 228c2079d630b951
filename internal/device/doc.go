// Package device defines the capability model shared by every instrument
// type in Rig Core.
//
// A device is a state machine (uninitialized → initialized → enabled ↔
// disabled, with shutdown terminal from any state) plus a set of optional
// capabilities that concrete roles compose:
//
//   - TriggerTarget: the device can be armed for software or hardware
//     triggers (cameras, light sources, deformable mirrors).
//   - DataSource: the device produces a stream of items delivered to a
//     caller-supplied Sink (cameras).
//
// Concrete roles (Camera, LightSource, FilterWheel, Stage, DeformableMirror,
// Controller) embed Base and delegate hardware work to a narrow driver
// interface supplied at construction. Role-specific control logic (exposure
// calculation, motion planning) belongs to drivers, not to this package.
//
// Settings are an escape hatch: a per-device string-keyed accessor map for
// vendor parameters that fall outside the typed capability surface. Writing
// a setting can leave hardware in a state the role contract cannot
// represent; that is a documented trade-off.
//
// Thread Safety:
//   - Lifecycle transitions on a device are serialised by Base.
//   - A DataSource acquisition loop runs concurrently with lifecycle calls;
//     Disable and Shutdown stop it before returning.
package device
