// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "math"

// Size is a pixel extent. The zero value means "unset".
type Size struct {
	Width  int
	Height int
}

// IsZero reports whether both dimensions are unset.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

// Texels returns Width*Height.
func (s Size) Texels() int {
	return s.Width * s.Height
}

// Scaled returns the size multiplied by scale, rounded to the nearest pixel and clamped to at least 1x1.
//
// Parameters:
//   - scale: the resolution scale, typically in (0, 1]
//
// Returns:
//   - Size: the scaled size
func (s Size) Scaled(scale float64) Size {
	w := int(math.Round(float64(s.Width) * scale))
	h := int(math.Round(float64(s.Height) * scale))
	return Size{Width: max(w, 1), Height: max(h, 1)}
}
