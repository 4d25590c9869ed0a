package texture

import "errors"

var (
	// ErrAllocation is returned when a texture cannot be allocated (invalid size or budget exceeded).
	ErrAllocation = errors.New("texture: allocation failed")

	// ErrSizeMismatch is returned when textures that must share an extent do not.
	ErrSizeMismatch = errors.New("texture: size mismatch")

	// ErrMissingSurface is returned when a required surface buffer is nil.
	ErrMissingSurface = errors.New("texture: missing surface buffer")
)
