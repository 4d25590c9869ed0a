package texture

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
)

// SurfaceSet is the per-frame set of surface buffers rasterized by the host renderer.
// All buffers share one extent and are read-only to the pipeline.
type SurfaceSet struct {
	// Depth holds non-linear device depth in R, in [0, 1] with 1 meaning background.
	Depth View

	// Normal holds the view-space normal in RGB and perceptual roughness in A.
	Normal View

	// Velocity holds the UV-space motion vector in RG: prevUV = uv - velocity.
	Velocity View

	// Diffuse holds the diffuse albedo in RGB and metalness in A.
	Diffuse View
}

// Size returns the shared extent of the set.
func (s SurfaceSet) Size() common.Size {
	if s.Depth == nil {
		return common.Size{}
	}
	return s.Depth.Size()
}

// Validate checks that every buffer is present and that all buffers share one extent.
//
// Returns:
//   - error: ErrMissingSurface or ErrSizeMismatch, nil when the set is usable
func (s SurfaceSet) Validate() error {
	named := []struct {
		name string
		view View
	}{
		{"depth", s.Depth},
		{"normal", s.Normal},
		{"velocity", s.Velocity},
		{"diffuse", s.Diffuse},
	}
	for _, n := range named {
		if n.view == nil {
			return fmt.Errorf("%w: %s", ErrMissingSurface, n.name)
		}
	}
	size := s.Depth.Size()
	for _, n := range named[1:] {
		if n.view.Size() != size {
			return fmt.Errorf("%w: %s is %v, depth is %v", ErrSizeMismatch, n.name, n.view.Size(), size)
		}
	}
	return nil
}
