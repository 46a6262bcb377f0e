package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "webthing"

// Topic categories. Every device topic has the shape
// {prefix}/{category}/{thingID}/{name}[/{actionID}].
const (
	CategoryCommand = "command"
	CategoryState   = "state"
	CategoryAction  = "action"
	CategoryAck     = "ack"
	CategoryEvent   = "event"
)

// Topics builds the gateway's MQTT topics under a prefix.
//
//	topics := mqtt.Topics{Prefix: "webthing"}
//	topics.Command("lamp-1", "brightness")
//	// Returns: "webthing/command/lamp-1/brightness"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

func (t Topics) join(parts ...string) string {
	return t.prefix() + "/" + strings.Join(parts, "/")
}

// Command is where the gateway publishes property writes for a device.
func (t Topics) Command(thingID, property string) string {
	return t.join(CategoryCommand, thingID, property)
}

// State is where a device reports a property value it changed itself.
func (t Topics) State(thingID, property string) string {
	return t.join(CategoryState, thingID, property)
}

// Action is where the gateway publishes action requests.
func (t Topics) Action(thingID, action string) string {
	return t.join(CategoryAction, thingID, action)
}

// Ack is where a device confirms it finished one action request.
func (t Topics) Ack(thingID, action, actionID string) string {
	return t.join(CategoryAck, thingID, action, actionID)
}

// Event is where a device raises an event.
func (t Topics) Event(thingID, event string) string {
	return t.join(CategoryEvent, thingID, event)
}

// SystemStatus carries the gateway's retained online/offline status.
func (t Topics) SystemStatus() string {
	return t.join("system", "status")
}

// AllStates matches every device state report.
func (t Topics) AllStates() string {
	return t.join(CategoryState, "+", "+")
}

// AllEvents matches every device event.
func (t Topics) AllEvents() string {
	return t.join(CategoryEvent, "+", "+")
}

// AllAcks matches every action acknowledgement.
func (t Topics) AllAcks() string {
	return t.join(CategoryAck, "+", "+", "+")
}

// DeviceTopic is a parsed device topic.
type DeviceTopic struct {
	Category string
	ThingID  string
	Name     string
	// ActionID is only set for ack topics.
	ActionID string
}

// Parse splits a device topic produced by Topics. It returns false for
// topics outside the prefix or with the wrong number of levels.
func (t Topics) Parse(topic string) (DeviceTopic, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/")
	if !ok {
		return DeviceTopic{}, false
	}
	parts := strings.Split(rest, "/")
	for _, p := range parts {
		if p == "" {
			return DeviceTopic{}, false
		}
	}

	switch {
	case len(parts) == 3 && parts[0] != CategoryAck:
		return DeviceTopic{Category: parts[0], ThingID: parts[1], Name: parts[2]}, true
	case len(parts) == 4 && parts[0] == CategoryAck:
		return DeviceTopic{Category: parts[0], ThingID: parts[1], Name: parts[2], ActionID: parts[3]}, true
	default:
		return DeviceTopic{}, false
	}
}
