package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/webthing-gateway/internal/infrastructure/config"
	"github.com/nerrad567/webthing-gateway/internal/thing"
)

// Binder supplies the device side of declared properties and actions.
type Binder interface {
	// Forwarder returns the write path for a writable property.
	Forwarder(thingID, property string) thing.Forwarder

	// Performer returns the body factory for an action kind. timeout is how
	// long the body may wait for the device; zero means do not wait.
	Performer(thingID, action string, timeout time.Duration) thing.ActionFactory
}

// LocalBinder keeps everything in process: writes are accepted as-is and
// action bodies complete immediately.
type LocalBinder struct{}

// Forwarder accepts every value.
func (LocalBinder) Forwarder(string, string) thing.Forwarder {
	return func(any) error { return nil }
}

// Performer returns bodies that finish at once.
func (LocalBinder) Performer(string, string, time.Duration) thing.ActionFactory {
	return func(any) thing.Performer {
		return thing.PerformerFunc(func(context.Context, *thing.Action) error { return nil })
	}
}

// Build creates one Thing per declaration, in declaration order.
//
// Parameters:
//   - decls: Thing declarations from config.yaml
//   - binder: Device side for writes and action bodies
//   - logger: Logger handed to every Thing (may be nil)
//
// Returns:
//   - []*thing.Thing: Things ready to serve
//   - error: ErrInvalidDeclaration wrapping the first problem found
func Build(decls []config.ThingConfig, binder Binder, logger thing.Logger) ([]*thing.Thing, error) {
	things := make([]*thing.Thing, 0, len(decls))
	for _, decl := range decls {
		t, err := BuildThing(decl, binder, logger)
		if err != nil {
			return nil, err
		}
		things = append(things, t)
	}
	return things, nil
}

// BuildThing creates a single Thing from its declaration.
//
// Properties flagged readOnly get no forwarder: they can only change
// through device reports. Members are added in name order so descriptions
// and snapshots are stable across restarts.
func BuildThing(decl config.ThingConfig, binder Binder, logger thing.Logger) (*thing.Thing, error) {
	if decl.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidDeclaration)
	}
	if binder == nil {
		binder = LocalBinder{}
	}

	t := thing.New(decl.ID, decl.Title, decl.Type, decl.Description)
	if logger != nil {
		t.SetLogger(logger)
	}
	if decl.UIHref != "" {
		t.SetUIHref(decl.UIHref)
	}

	for _, name := range sortedKeys(decl.Properties) {
		pc := decl.Properties[name]
		metadata, err := normalizeMap(pc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: property %q: %w", ErrInvalidDeclaration, decl.ID, name, err)
		}
		initial, err := normalize(pc.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: property %q value: %w", ErrInvalidDeclaration, decl.ID, name, err)
		}

		var forward thing.Forwarder
		if readOnly, _ := metadata["readOnly"].(bool); !readOnly { //nolint:errcheck // absent means writable
			forward = binder.Forwarder(decl.ID, name)
		}

		p, err := thing.NewProperty(name, thing.NewValue(initial, forward), metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDeclaration, decl.ID, err)
		}
		if err := t.AddProperty(p); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDeclaration, decl.ID, err)
		}
	}

	for _, name := range sortedKeys(decl.Actions) {
		ac := decl.Actions[name]
		metadata, err := normalizeMap(ac.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: action %q: %w", ErrInvalidDeclaration, decl.ID, name, err)
		}
		timeout := time.Duration(ac.Timeout) * time.Second
		if err := t.AddAvailableAction(name, metadata, binder.Performer(decl.ID, name, timeout)); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDeclaration, decl.ID, err)
		}
	}

	for _, name := range sortedKeys(decl.Events) {
		metadata, err := normalizeMap(decl.Events[name].Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: event %q: %w", ErrInvalidDeclaration, decl.ID, name, err)
		}
		t.AddAvailableEvent(name, metadata)
	}

	return t, nil
}

// normalize round-trips v through JSON so YAML-decoded values have the same
// shape as values arriving over HTTP (float64 numbers, map[string]any).
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	v, err := normalize(m)
	if err != nil {
		return nil, err
	}
	out, _ := v.(map[string]any) //nolint:errcheck // a map always round-trips to a map
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
