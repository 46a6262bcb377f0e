package thing

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Validator checks a decoded JSON value against a schema.
type Validator interface {
	Validate(v any) error
}

// descriptiveKeys are Thing Description fields that carry no validation meaning.
var descriptiveKeys = []string{"@type", "unit", "title", "description", "readOnly", "links"}

// jsonSchema validates values with a compiled gojsonschema schema.
type jsonSchema struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles schema into a Validator.
//
// An empty or nil schema accepts every value, including null.
//
// Returns:
//   - Validator: compiled validator
//   - error: ErrInvalidSchema if schema cannot be compiled
func NewSchemaValidator(schema map[string]any) (Validator, error) {
	if len(schema) == 0 {
		return acceptAll{}, nil
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	return &jsonSchema{schema: compiled}, nil
}

// Validate returns nil when v satisfies the schema.
func (s *jsonSchema) Validate(v any) error {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(v))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		msgs = append(msgs, re.String())
	}
	return fmt.Errorf("schema violation: %s", strings.Join(msgs, "; "))
}

type acceptAll struct{}

func (acceptAll) Validate(any) error { return nil }

// PropertySchema derives the value schema from property metadata by dropping
// the purely descriptive fields.
func PropertySchema(metadata map[string]any) map[string]any {
	schema := make(map[string]any, len(metadata))
	for k, v := range metadata {
		schema[k] = v
	}
	for _, k := range descriptiveKeys {
		delete(schema, k)
	}
	return schema
}

// ActionInputSchema returns the "input" schema declared in action metadata,
// or nil when the action accepts any input.
func ActionInputSchema(metadata map[string]any) map[string]any {
	input, ok := metadata["input"].(map[string]any)
	if !ok {
		return nil
	}
	return input
}
