// Package catalog builds Things from their YAML declarations.
//
// Each declared property becomes a Value plus Property, each action kind is
// registered with a body, and each event kind is declared. How writes and
// action bodies reach a device is decided by a Binder: the MQTT bridge in
// production, or LocalBinder when no broker is configured.
//
//	things, err := catalog.Build(cfg.Things, binder, logger)
package catalog
