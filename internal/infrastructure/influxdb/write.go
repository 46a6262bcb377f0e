package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the gateway.
const (
	MeasurementProperties = "thing_properties"
	MeasurementActions    = "thing_actions"
	MeasurementEvents     = "thing_events"
)

// WritePropertyValue records a property change.
//
// Numbers land in the "value" field as float64, booleans in "bool_value",
// strings in "string_value". Anything else is stored as JSON in "json_value".
//
// Example:
//
//	client.WritePropertyValue("lamp-1", "brightness", 80)
//	// thing_properties,thing_id=lamp-1,property=brightness value=80
func (c *Client) WritePropertyValue(thingID, property string, value any, at time.Time) {
	c.WritePointWithTime(MeasurementProperties,
		map[string]string{"thing_id": thingID, "property": property},
		ValueFields(value),
		at)
}

// WriteActionCompleted records how long an action took from request to
// completion.
func (c *Client) WriteActionCompleted(thingID, action, actionID string, duration time.Duration, at time.Time) {
	c.WritePointWithTime(MeasurementActions,
		map[string]string{"thing_id": thingID, "action": action},
		map[string]any{"id": actionID, "duration_ms": duration.Milliseconds()},
		at)
}

// WriteEvent records an emitted event. data may be nil.
func (c *Client) WriteEvent(thingID, event string, data any, at time.Time) {
	fields := map[string]any{"count": 1}
	if data != nil {
		for k, v := range ValueFields(data) {
			fields[k] = v
		}
	}
	c.WritePointWithTime(MeasurementEvents,
		map[string]string{"thing_id": thingID, "event": event},
		fields,
		at)
}

// WritePoint writes a point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
// Writes on a disconnected client are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

// ValueFields maps a JSON value onto typed line-protocol fields.
func ValueFields(value any) map[string]any {
	switch v := value.(type) {
	case bool:
		return map[string]any{"bool_value": v}
	case string:
		return map[string]any{"string_value": v}
	case float64:
		return map[string]any{"value": v}
	case float32:
		return map[string]any{"value": float64(v)}
	case int:
		return map[string]any{"value": float64(v)}
	case int64:
		return map[string]any{"value": float64(v)}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return map[string]any{"value": f}
		}
		return map[string]any{"string_value": v.String()}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return map[string]any{"string_value": "<unencodable>"}
		}
		return map[string]any{"json_value": string(data)}
	}
}
