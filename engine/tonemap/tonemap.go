// Package tonemap maps linear HDR radiance to display range.
package tonemap

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Mode selects the tone mapping operator.
type Mode int

const (
	// None passes radiance through unchanged.
	None Mode = iota
	// Linear scales by exposure and clamps to [0, 1].
	Linear
	// Reinhard applies c / (1 + c) per channel.
	Reinhard
	// ACES applies the Narkowicz fit of the ACES filmic curve.
	ACES
)

func (m Mode) String() string {
	switch m {
	case None:
		return "none"
	case Linear:
		return "linear"
	case Reinhard:
		return "reinhard"
	case ACES:
		return "aces"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Parse converts a mode name as printed by String back to a Mode.
//
// Parameters:
//   - name: the mode name, case-insensitive
//
// Returns:
//   - Mode: the parsed mode
//   - error: non-nil when the name is unknown
func Parse(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "":
		return None, nil
	case "linear":
		return Linear, nil
	case "reinhard":
		return Reinhard, nil
	case "aces":
		return ACES, nil
	}
	return None, fmt.Errorf("tonemap: unknown mode %q", name)
}

// Apply maps c with the given operator after multiplying by exposure.
func (m Mode) Apply(c mgl32.Vec3, exposure float32) mgl32.Vec3 {
	c = c.Mul(exposure)
	switch m {
	case Linear:
		return mgl32.Vec3{clamp01(c[0]), clamp01(c[1]), clamp01(c[2])}
	case Reinhard:
		return mgl32.Vec3{c[0] / (1 + c[0]), c[1] / (1 + c[1]), c[2] / (1 + c[2])}
	case ACES:
		return mgl32.Vec3{aces(c[0]), aces(c[1]), aces(c[2])}
	default:
		return c
	}
}

func aces(x float32) float32 {
	const a, b, c, d, e = 2.51, 0.03, 2.43, 0.59, 0.14
	return clamp01((x * (a*x + b)) / (x*(c*x+d) + e))
}

func clamp01(x float32) float32 {
	return mgl32.Clamp(x, 0, 1)
}
