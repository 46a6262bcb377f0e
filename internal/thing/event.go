package thing

import "time"

// timestampLayout renders UTC times as 2006-01-02T15:04:05+00:00.
const timestampLayout = "2006-01-02T15:04:05-07:00"

// Timestamp formats t the way WebThing descriptions carry times.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Event is an immutable record of something that happened on a Thing.
type Event struct {
	name string
	data any
	time time.Time
}

// NewEvent creates an event stamped with the current time. data may be nil.
func NewEvent(name string, data any) *Event {
	return &Event{
		name: name,
		data: data,
		time: time.Now(),
	}
}

// Name returns the event kind.
func (e *Event) Name() string { return e.name }

// Data returns the payload, or nil.
func (e *Event) Data() any { return e.data }

// Time returns when the event was created.
func (e *Event) Time() time.Time { return e.time }

// Description renders the event as {name: {timestamp, data?}}.
func (e *Event) Description() map[string]any {
	inner := map[string]any{
		"timestamp": Timestamp(e.time),
	}
	if e.data != nil {
		inner["data"] = e.data
	}
	return map[string]any{e.name: inner}
}
