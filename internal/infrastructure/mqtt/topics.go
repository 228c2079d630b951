package mqtt

import "fmt"

// Topic prefixes for the device server's MQTT surface.
//
// The scheme is rigcore/{category}/{entry}/{suffix}. Workers publish
// their own status and device lifecycle topics; the parent server
// publishes the system status topic.
const (
	// TopicPrefix is the base for all topics.
	TopicPrefix = "rigcore"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "rigcore/system"

	// TopicPrefixWorker is the base for per-worker status topics.
	TopicPrefixWorker = "rigcore/worker"

	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "rigcore/device"
)

// Topics provides builders for the server's MQTT topics. Using these
// helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("camera-left")
//	// Returns: "rigcore/device/camera-left/state"
type Topics struct{}

// SystemStatus returns the parent server's status topic.
//
// Example: rigcore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// WorkerStatus returns the status topic for one worker. The worker
// publishes online/offline here, and its LWT lands here when it dies
// without a graceful disconnect.
//
// Example: rigcore/worker/camera-left/status
func (Topics) WorkerStatus(entry string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixWorker, entry)
}

// DeviceState returns the lifecycle state topic for one device entry.
// Published retained on every transition, so late subscribers see the
// current state immediately.
//
// Example: rigcore/device/camera-left/state
func (Topics) DeviceState(entry string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixDevice, entry)
}

// DeviceFrames returns the frame announcement topic for one device
// entry. Carries frame metadata only; pixel data travels over the rpc
// push channel.
//
// Example: rigcore/device/camera-left/frames
func (Topics) DeviceFrames(entry string) string {
	return fmt.Sprintf("%s/%s/frames", TopicPrefixDevice, entry)
}

// DeviceFrameStats returns the delivery statistics topic for one
// device entry. Workers publish delivered/dropped counters here on
// their report tick.
//
// Example: rigcore/device/camera-left/frame_stats
func (Topics) DeviceFrameStats(entry string) string {
	return fmt.Sprintf("%s/%s/frame_stats", TopicPrefixDevice, entry)
}

// AllWorkerStatus returns a pattern matching every worker status topic.
//
// Pattern: rigcore/worker/+/status
func (Topics) AllWorkerStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixWorker)
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: rigcore/device/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixDevice)
}

// AllTopics returns a pattern matching the whole topic tree. Use with
// caution, this receives ALL traffic.
//
// Pattern: rigcore/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
