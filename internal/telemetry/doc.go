// Package telemetry feeds Thing activity into the time-series history.
//
// Recorder is a thing.Listener. It turns property changes, completed actions
// and emitted events into points on a Writer, normally *influxdb.Client.
// Writes are non-blocking on the client side, so the listener is safe to
// call from the notification path.
package telemetry
