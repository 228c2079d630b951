// Package sim provides simulated drivers for every device role.
//
// The simulators serve two purposes: they are the built-in drivers a
// server can run without any hardware attached, and they are the
// fixtures the rest of the codebase tests against. They register
// themselves with the server's driver registry at init time, under
// these names:
//
//	sim.camera           streaming camera, one synthetic frame per trigger
//	sim.light            light source with a [0, 1] power setting
//	sim.wheel            filter wheel, position count from conf
//	sim.stage            stage with named axes and travel limits
//	sim.mirror           deformable mirror, actuator count from conf
//	sim.controller       controller owning a light and a wheel
//	sim.camera_floating  camera pool resolved by serial number
//
// Conf keys each driver reads are documented on its factory. All
// simulators are safe for concurrent use.
package sim
