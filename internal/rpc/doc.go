// Package rpc carries device calls and frame streams across the process
// boundary between the device server and its worker processes.
//
// The protocol is HTTP/JSON. Every exposed device is an object with a
// name; a call is a POST to /v1/objects/{object}/{method} with a JSON
// body of named arguments, answered by an envelope that either carries a
// result or an error with a kind tag. The kind tag lets the client side
// rebuild the original sentinel error, so errors.Is checks work the same
// against a Proxy as against a local device.
//
// Frame streams run in the opposite direction: the worker pushes frames
// to a caller-registered URL served by a SinkServer. Delivery is
// sequential per stream, matching the in-process ordering guarantee.
//
// Thread Safety: Daemon, Proxy and SinkServer are safe for concurrent
// use from multiple goroutines.
package rpc
