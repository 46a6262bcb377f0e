package thing

import (
	"errors"
	"testing"
)

func levelProperty(t *testing.T, initial any) *Property {
	t.Helper()
	p, err := NewProperty("level", NewValue(initial, func(any) error { return nil }), map[string]any{
		"title":   "Level",
		"type":    "number",
		"unit":    "percent",
		"minimum": 0,
		"maximum": 100,
	})
	if err != nil {
		t.Fatalf("NewProperty() error = %v", err)
	}
	return p
}

func TestProperty_SetValue(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantErr error
	}{
		{"in range", 42.0, nil},
		{"lower bound", 0.0, nil},
		{"above maximum", 101.0, ErrInvalidValue},
		{"wrong type", "high", ErrInvalidValue},
		{"null", nil, ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := levelProperty(t, 50.0)
			err := p.SetValue(tt.value)

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("SetValue() error = %v", err)
				}
				if got := p.GetValue(); got != tt.value {
					t.Errorf("GetValue() = %v, want %v", got, tt.value)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) || !errors.Is(err, ErrValidation) {
				t.Fatalf("SetValue() error = %v, want %v", err, tt.wantErr)
			}
			if got := p.GetValue(); got != 50.0 {
				t.Errorf("GetValue() = %v, want unchanged 50", got)
			}
		})
	}
}

func TestProperty_ReadOnly(t *testing.T) {
	p, err := NewProperty("temperature", NewValue(21.5, nil), map[string]any{
		"type":     "number",
		"readOnly": true,
	})
	if err != nil {
		t.Fatalf("NewProperty() error = %v", err)
	}

	for _, v := range []any{22.0, 21.5, "bogus"} {
		if err := p.SetValue(v); !errors.Is(err, ErrReadOnly) {
			t.Errorf("SetValue(%v) error = %v, want ErrReadOnly", v, err)
		}
	}
	if got := p.GetValue(); got != 21.5 {
		t.Errorf("GetValue() = %v, want 21.5", got)
	}
}

func TestProperty_AsDescription(t *testing.T) {
	p := levelProperty(t, 0.0)
	p.setHrefPrefix("/0")

	desc := p.AsDescription()
	if desc["type"] != "number" || desc["unit"] != "percent" {
		t.Errorf("metadata missing from description: %v", desc)
	}
	links, ok := desc["links"].([]any)
	if !ok || len(links) != 1 {
		t.Fatalf("links = %v, want one link", desc["links"])
	}
	link := links[0].(map[string]any)
	if link["rel"] != "property" || link["href"] != "/0/properties/level" {
		t.Errorf("link = %v", link)
	}
	if _, ok := p.Metadata()["links"]; ok {
		t.Error("AsDescription() modified the metadata")
	}
}

func TestNewProperty_InvalidSchema(t *testing.T) {
	_, err := NewProperty("broken", NewValue(nil, nil), map[string]any{"type": 12})
	if !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("NewProperty() error = %v, want ErrInvalidSchema", err)
	}
}
