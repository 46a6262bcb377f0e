package catalog

import "errors"

// ErrInvalidDeclaration is returned when a Thing declaration cannot be built.
var ErrInvalidDeclaration = errors.New("catalog: invalid thing declaration")
