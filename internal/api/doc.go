// Package api serves Things over HTTP and WebSocket.
//
// Each Thing exposes its description, properties, actions and events as
// REST resources, and a WebSocket push channel on the same root URL:
//
//	GET        /                         Thing description, or WebSocket upgrade
//	GET        /properties               {name: value, ...}
//	GET|PUT    /properties/{name}        {name: value}
//	GET|POST   /actions                  live actions / request one
//	GET|POST   /actions/{name}           same, for one kind
//	GET|DELETE /actions/{name}/{id}      one action / cancel it
//	GET        /events                   event log
//	GET        /events/{name}            event log for one kind
//
// In multiple mode the same tree is mounted under /{index} for every Thing
// and GET / lists all descriptions.
//
// WebSocket clients exchange {"messageType", "data"} envelopes: they send
// setProperty, requestAction and addEventSubscription, and receive
// propertyStatus, actionStatus, event and error messages.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
