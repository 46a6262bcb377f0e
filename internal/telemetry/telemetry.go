package telemetry

import (
	"time"

	"github.com/nerrad567/webthing-gateway/internal/thing"
)

// Writer is the subset of the InfluxDB client used for history.
type Writer interface {
	WritePropertyValue(thingID, property string, value any, at time.Time)
	WriteActionCompleted(thingID, action, actionID string, duration time.Duration, at time.Time)
	WriteEvent(thingID, event string, data any, at time.Time)
}

// Recorder writes Thing activity to a Writer.
type Recorder struct {
	w   Writer
	now func() time.Time
}

// NewRecorder creates a recorder over w.
func NewRecorder(w Writer) *Recorder {
	return &Recorder{w: w, now: time.Now}
}

// PropertyChanged writes the new value.
func (r *Recorder) PropertyChanged(t *thing.Thing, name string, value any) {
	r.w.WritePropertyValue(t.ID(), name, value, r.now())
}

// ActionStatusChanged writes completed actions with their run time.
// Created and pending transitions are not recorded.
func (r *Recorder) ActionStatusChanged(t *thing.Thing, state thing.ActionState) {
	if state.Status != thing.StatusCompleted {
		return
	}
	duration := state.TimeCompleted.Sub(state.TimeRequested)
	if duration < 0 {
		duration = 0
	}
	r.w.WriteActionCompleted(t.ID(), state.Name, state.ID, duration, state.TimeCompleted)
}

// EventAdded writes the event at its own timestamp.
func (r *Recorder) EventAdded(t *thing.Thing, e *thing.Event) {
	r.w.WriteEvent(t.ID(), e.Name(), e.Data(), e.Time())
}
