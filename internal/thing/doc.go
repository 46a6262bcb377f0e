// Package thing implements the WebThing device model served by the gateway.
//
// A Thing aggregates named Properties (each backed by an observable Value),
// available Action kinds with their live Action instances, available Event
// kinds with an append-only Event log, and the set of connected subscribers
// that receive push notifications.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────────┐
//	│                              Thing                                │
//	│                                                                   │
//	│  ┌─────────────┐   ┌─────────────┐   ┌──────────────────────────┐ │
//	│  │  Property   │──▶│    Value    │   │ Subscribers              │ │
//	│  │ (validate)  │   │ (forward,   │   │ • global (props/actions) │ │
//	│  └─────────────┘   │  observe)   │   │ • per event kind         │ │
//	│                    └──────┬──────┘   └────────────▲─────────────┘ │
//	│  ┌─────────────┐          │ propertyStatus        │               │
//	│  │   Action    │──────────┴─── actionStatus ──────┤               │
//	│  │ (lifecycle) │                                  │               │
//	│  └─────────────┘   ┌─────────────┐    event       │               │
//	│                    │  Event log  │────────────────┘               │
//	│                    └─────────────┘                                │
//	└───────────────────────────────────────────────────────────────────┘
//
// Writes reach a Value from three places: HTTP handlers, WebSocket clients and
// device bridges reporting ground truth. Each Value serialises its own writers,
// so the pushes for one property are observed by every subscriber in the order
// the writes were applied.
//
// # Lock Ordering
//
// Value write lock → Action lock → Thing lock. Notifications are pushed with a
// non-blocking Subscriber.Send, and action bodies never run under any of these
// locks.
//
// Thread Safety: All exported methods are safe for concurrent use.
package thing
