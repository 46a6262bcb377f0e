// Package bridge connects Things to physical devices over MQTT.
//
// Outbound, it supplies the Value forwarders and action bodies the catalog
// wires into each Thing: an accepted property write is published as a
// command, and a running action publishes a request and optionally waits
// for the device to acknowledge it.
//
// Inbound, it subscribes to device state, event and acknowledgement topics
// and feeds them back into the attached Things:
//
//	{prefix}/state/{thing}/{property}        -> Value.ReportExternalUpdate
//	{prefix}/event/{thing}/{event}           -> Thing.AddEvent
//	{prefix}/ack/{thing}/{action}/{id}       -> wakes the waiting action body
//
// Device state reports bypass validation: the device is the ground truth.
//
// Thread Safety: All methods are safe for concurrent use.
package bridge
