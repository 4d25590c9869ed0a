// Package scene exposes the host-side scene state read by the screen-space GI pipeline:
// the environment map, the rasterized surface buffers, and the lights used for direct lighting.
package scene

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-ssgi/engine/environment"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/light"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
)

// Scene is the read side of a scene as seen by post-processing effects.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Environment returns the current environment map, or nil when the scene has none.
	// The returned map may change between frames.
	Environment() *environment.Map

	// SetEnvironment replaces the environment map. Passing nil removes it.
	//
	// Parameters:
	//   - env: the new environment map
	SetEnvironment(env *environment.Map)

	// Surfaces returns the surface buffers of the most recent frame.
	Surfaces() texture.SurfaceSet

	// SetSurfaces replaces the surface buffers.
	//
	// Parameters:
	//   - surfaces: the new surface buffers
	SetSurfaces(surfaces texture.SurfaceSet)

	// Lights returns a snapshot of the scene's lights.
	Lights() []light.Light

	// AddLight appends a light to the scene.
	AddLight(l light.Light)
}

type scene struct {
	mu       *sync.RWMutex
	name     string
	env      *environment.Map
	surfaces texture.SurfaceSet
	lights   []light.Light
}

var _ Scene = &scene{}

// NewScene creates a scene whose state is set entirely by its owner.
//
// Parameters:
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:   &sync.RWMutex{},
		name: "scene",
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) Environment() *environment.Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.env
}

func (s *scene) SetEnvironment(env *environment.Map) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env = env
}

func (s *scene) Surfaces() texture.SurfaceSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.surfaces
}

func (s *scene) SetSurfaces(surfaces texture.SurfaceSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surfaces = surfaces
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]light.Light, len(s.lights))
	copy(out, s.lights)
	return out
}

func (s *scene) AddLight(l light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = append(s.lights, l)
}
