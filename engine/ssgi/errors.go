package ssgi

import "errors"

var (
	// ErrDisposed is returned by every operation of an Effect after Dispose.
	ErrDisposed = errors.New("ssgi: effect disposed")

	// ErrInvalidOptions is returned when an Options field is out of range. The message names the field.
	ErrInvalidOptions = errors.New("ssgi: invalid options")

	// ErrInvalidSize is returned by SetSize when only one dimension is set or a dimension is negative.
	ErrInvalidSize = errors.New("ssgi: invalid size")

	// ErrNoDirectLight is returned by Update when no direct light buffer is supplied.
	ErrNoDirectLight = errors.New("ssgi: missing direct light buffer")
)
