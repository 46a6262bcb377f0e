package thing

import (
	"fmt"
	"sync"
)

// Property binds a Value to a Thing under a name, with descriptive metadata
// and a schema every externally requested write must satisfy.
type Property struct {
	name      string
	value     *Value
	metadata  map[string]any
	validator Validator

	mu         sync.RWMutex
	hrefPrefix string
}

// NewProperty creates a property backed by value.
//
// The metadata doubles as the JSON schema for writes once its descriptive
// fields (title, unit, readOnly, ...) are removed.
//
// Parameters:
//   - name: Property name, unique within its Thing
//   - value: Backing Value
//   - metadata: Thing Description metadata (type, unit, minimum, readOnly, ...)
//
// Returns:
//   - *Property: Property ready to be added to a Thing
//   - error: ErrInvalidSchema if the metadata does not compile
func NewProperty(name string, value *Value, metadata map[string]any) (*Property, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	validator, err := NewSchemaValidator(PropertySchema(metadata))
	if err != nil {
		return nil, fmt.Errorf("property %q: %w", name, err)
	}
	return &Property{
		name:      name,
		value:     value,
		metadata:  metadata,
		validator: validator,
	}, nil
}

// Name returns the property name.
func (p *Property) Name() string {
	return p.name
}

// Value returns the backing Value. Device bridges use it to report updates.
func (p *Property) Value() *Value {
	return p.value
}

// Metadata returns the declared metadata. Callers must not modify it.
func (p *Property) Metadata() map[string]any {
	return p.metadata
}

// ReadOnly reports whether the metadata flags the property readOnly.
func (p *Property) ReadOnly() bool {
	ro, _ := p.metadata["readOnly"].(bool) //nolint:errcheck // absent means writable
	return ro
}

// Href returns the property's resource path.
func (p *Property) Href() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hrefPrefix + "/properties/" + p.name
}

func (p *Property) setHrefPrefix(prefix string) {
	p.mu.Lock()
	p.hrefPrefix = prefix
	p.mu.Unlock()
}

// GetValue returns the current value.
func (p *Property) GetValue() any {
	return p.value.Get()
}

// ValidateValue checks v against the read-only flag and then the schema.
func (p *Property) ValidateValue(v any) error {
	if p.ReadOnly() {
		return fmt.Errorf("%w: %s", ErrReadOnly, p.name)
	}
	if err := p.validator.Validate(v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, p.name, err)
	}
	return nil
}

// SetValue validates v and writes it through the Value.
//
// On success the owning Thing has already pushed the change to its
// subscribers when SetValue returns. On failure the stored value is unchanged.
func (p *Property) SetValue(v any) error {
	if err := p.ValidateValue(v); err != nil {
		return err
	}
	if err := p.value.Set(v); err != nil {
		return fmt.Errorf("property %q: %w", p.name, err)
	}
	return nil
}

// AsDescription returns the metadata plus a link to the property resource.
func (p *Property) AsDescription() map[string]any {
	desc := make(map[string]any, len(p.metadata)+1)
	for k, v := range p.metadata {
		desc[k] = v
	}

	var links []any
	if existing, ok := p.metadata["links"].([]any); ok {
		links = append(links, existing...)
	}
	links = append(links, map[string]any{
		"rel":  "property",
		"href": p.Href(),
	})
	desc["links"] = links
	return desc
}
