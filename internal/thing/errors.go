package thing

import (
	"errors"
	"fmt"
)

// Domain errors for the thing package.
//
// Check them with errors.Is():
//
//	if errors.Is(err, thing.ErrValidation) {
//	    // read-only or schema violation
//	}
var (
	// ErrValidation is the parent of every property write rejection.
	ErrValidation = errors.New("thing: validation failed")

	// ErrReadOnly is returned when writing a property flagged readOnly.
	ErrReadOnly = fmt.Errorf("%w: read-only property", ErrValidation)

	// ErrInvalidValue is returned when a value does not satisfy the property schema.
	ErrInvalidValue = fmt.Errorf("%w: invalid property value", ErrValidation)

	// ErrPropertyNotFound is returned when a property name does not exist on a Thing.
	ErrPropertyNotFound = errors.New("thing: property not found")

	// ErrPropertyExists is returned when adding a property whose name is taken.
	ErrPropertyExists = errors.New("thing: property already exists")

	// ErrUnknownAction is returned when an action kind has not been declared.
	ErrUnknownAction = errors.New("thing: unknown action")

	// ErrInvalidActionInput is returned when action input fails the declared schema.
	ErrInvalidActionInput = errors.New("thing: invalid action input")

	// ErrActionNotFound is returned when no live action matches a name and id.
	ErrActionNotFound = errors.New("thing: action not found")

	// ErrNoForwarder is returned when Value.Set is called on a sensor-only value.
	ErrNoForwarder = errors.New("thing: value has no forwarder")

	// ErrForwardFailed is returned when the device side-effect of a write fails.
	ErrForwardFailed = errors.New("thing: forwarding value failed")

	// ErrInvalidSchema is returned when declared metadata is not a usable JSON schema.
	ErrInvalidSchema = errors.New("thing: invalid schema")

	// ErrSerialization is returned when a description or notification cannot be encoded.
	ErrSerialization = errors.New("thing: serialization failed")
)
