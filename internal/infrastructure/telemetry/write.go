package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceState records a device lifecycle transition.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - device: Configured entry name (e.g., "camera-main")
//   - state: The lifecycle state reached (e.g., "enabled", "disabled")
func (c *Client) WriteDeviceState(device string, state string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_state",
		map[string]string{
			"device": device,
		},
		map[string]interface{}{
			"state": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAcquisitionStats records frame delivery counters for a streaming device.
//
// Parameters:
//   - device: Configured entry name
//   - delivered: Frames handed to the client sink since the last sample
//   - dropped: Frames discarded because no sink accepted them
func (c *Client) WriteAcquisitionStats(device string, delivered int64, dropped int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"acquisition",
		map[string]string{
			"device": device,
		},
		map[string]interface{}{
			"frames_delivered": delivered,
			"frames_dropped":   dropped,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteWorkerStats records worker process health for one served entry.
//
// Parameters:
//   - entry: Configured entry name the worker serves
//   - status: Process status string (e.g., "running", "failed")
//   - restarts: Total restarts since the server started
//   - uptimeSeconds: Seconds since the current process was spawned
func (c *Client) WriteWorkerStats(entry string, status string, restarts int, uptimeSeconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"worker",
		map[string]string{
			"entry": entry,
		},
		map[string]interface{}{
			"status":         status,
			"restarts":       restarts,
			"uptime_seconds": uptimeSeconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
