// Package mcpserver exposes the gateway's Things as Model Context Protocol
// tools over stdio, so an assistant can read properties, write them and
// request actions with the same validation the HTTP API applies.
//
// Tools:
//
//	list_things     descriptions of every served Thing
//	get_property    current value of one property
//	set_property    validated write through the Thing's forwarder
//	request_action  create and start an action, returning its description
//	list_actions    action instances, optionally filtered by kind
//	cancel_action   cancel and remove one action instance
//	list_events     logged events, optionally filtered by kind
//
// Things are addressed by id. Tool failures are returned as error results,
// never as protocol errors.
package mcpserver
