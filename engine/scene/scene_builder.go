package scene

import (
	"github.com/Carmen-Shannon/oxy-ssgi/engine/environment"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/light"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithName sets the scene's identifier.
//
// Parameters:
//   - name: the identifier
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithName(name string) SceneBuilderOption {
	return func(s *scene) {
		s.name = name
	}
}

// WithEnvironment sets the initial environment map.
func WithEnvironment(env *environment.Map) SceneBuilderOption {
	return func(s *scene) {
		s.env = env
	}
}

// WithSurfaces sets the initial surface buffers.
//
// Parameters:
//   - surfaces: the surface buffers
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithSurfaces(surfaces texture.SurfaceSet) SceneBuilderOption {
	return func(s *scene) {
		s.surfaces = surfaces
	}
}

// WithLights adds initial lights to the scene.
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		s.lights = append(s.lights, lights...)
	}
}
