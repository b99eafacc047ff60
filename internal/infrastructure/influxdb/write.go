package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteExecutionMetric records the outcome of a rule execution.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Tag cardinality stays low: rule_id and trigger_type are bounded by the
// rule set, success has two values.
//
// Parameters:
//   - ruleID: Identifier of the rule that fired
//   - triggerType: What fired the rule (e.g., "time", "presence", "manual")
//   - success: Whether all actions completed without failure
//   - actionsExecuted: Number of actions attempted
//   - duration: Wall-clock time for the full action sequence
//
// Example:
//
//	client.WriteExecutionMetric("rule-morning-lights", "time", true, 3, 120*time.Millisecond)
func (c *Client) WriteExecutionMetric(ruleID string, triggerType string, success bool, actionsExecuted int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	successTag := "false"
	if success {
		successTag = "true"
	}

	point := write.NewPoint(
		"rule_executions",
		map[string]string{
			"rule_id":      ruleID,
			"trigger_type": triggerType,
			"success":      successTag,
		},
		map[string]interface{}{
			"actions_executed": actionsExecuted,
			"duration_ms":      float64(duration.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceMetric writes a single device measurement to InfluxDB.
//
// Used for recording numeric device state as telemetry (brightness,
// temperature, power draw).
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "light-living-01")
//   - measurement: The metric name (e.g., "brightness", "temperature_c")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteDeviceMetric("thermostat-01", "temperature_c", 21.5)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
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
