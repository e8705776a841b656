package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReceiverState writes a receiver state snapshot as a telemetry point.
//
// This is the primary method for recording receiver telemetry. The write is
// non-blocking; data is batched and sent asynchronously. Fields that are
// unknown (nil) are omitted from the point.
//
// Parameters:
//   - power: Main zone power on/off, nil if unknown
//   - volume: Main zone volume 0-98, nil if unknown
//   - muted: Main zone mute, nil if unknown
//   - input: Active input source tag, empty if unknown
//   - surround: Surround mode tag, empty if unknown
func (c *Client) WriteReceiverState(power *bool, volume *int, muted *bool, input, surround string) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{}
	if input != "" {
		tags["input"] = input
	}
	if surround != "" {
		tags["surround"] = surround
	}

	fields := map[string]interface{}{}
	if power != nil {
		fields["power"] = boolToInt(*power)
	}
	if volume != nil {
		fields["volume"] = *volume
	}
	if muted != nil {
		fields["muted"] = boolToInt(*muted)
	}

	if len(fields) == 0 {
		return
	}

	point := write.NewPoint("avr_state", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteZone2State writes a zone 2 telemetry point.
//
// Parameters:
//   - volume: Zone 2 volume, nil if unknown
//   - muted: Zone 2 mute, nil if unknown
func (c *Client) WriteZone2State(volume *int, muted *bool) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{}
	if volume != nil {
		fields["volume"] = *volume
	}
	if muted != nil {
		fields["muted"] = boolToInt(*muted)
	}

	if len(fields) == 0 {
		return
	}

	point := write.NewPoint("avr_zone2", map[string]string{}, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteConnectionEvent records a connection lifecycle event
// (connected, disconnected, reconnect_failed).
//
// Parameters:
//   - event: Event name tag
//   - attempts: Number of connection attempts taken, 0 if not applicable
func (c *Client) WriteConnectionEvent(event string, attempts int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"avr_connection",
		map[string]string{
			"event": event,
		},
		map[string]interface{}{
			"attempts": attempts,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
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
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

// boolToInt converts a bool to 0/1 for numeric field storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
