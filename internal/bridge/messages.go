package bridge

import "time"

// AckStatus is the outcome a device reports for an action request.
type AckStatus string

// Acknowledgement statuses.
const (
	AckOK    AckStatus = "ok"
	AckError AckStatus = "error"
)

// CommandMessage is published to {prefix}/command/{thing}/{property} when a
// property write is accepted.
type CommandMessage struct {
	Thing     string    `json:"thing"`
	Property  string    `json:"property"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// StateMessage is what a device publishes to {prefix}/state/{thing}/{property}.
type StateMessage struct {
	Value any `json:"value"`
}

// ActionRequest is published to {prefix}/action/{thing}/{action} when an
// action body starts.
type ActionRequest struct {
	ID            string    `json:"id"`
	Thing         string    `json:"thing"`
	Action        string    `json:"action"`
	Input         any       `json:"input,omitempty"`
	TimeRequested time.Time `json:"time_requested"`
	// AckTimeout is how long the gateway waits, in milliseconds. Zero means
	// no acknowledgement is expected.
	AckTimeout int64 `json:"ack_timeout_ms,omitempty"`
}

// AckMessage is what a device publishes to {prefix}/ack/{thing}/{action}/{id}.
type AckMessage struct {
	Status  AckStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}

// EventMessage is what a device publishes to {prefix}/event/{thing}/{event}.
type EventMessage struct {
	Data any `json:"data,omitempty"`
}
