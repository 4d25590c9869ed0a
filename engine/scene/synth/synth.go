// Package synth renders the surface buffers and direct lighting of a small analytic scene on the CPU.
// It stands in for a host rasterizer so the GI pipeline can run headless.
package synth

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/camera"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/environment"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/light"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/log"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/scene"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
)

var logger = log.New("synth")

// Synth is a scene.Scene whose surfaces are produced by Render.
type Synth struct {
	scene.Scene

	mu      sync.Mutex
	cam     camera.Camera
	world   world
	size    common.Size
	workers int
	pool    worker.DynamicWorkerPool

	depth    *texture.Texture
	normal   *texture.Texture
	velocity *texture.Texture
	diffuse  *texture.Texture
	direct   *texture.Texture
}

// New builds a synthetic scene from a description.
//
// Parameters:
//   - desc: the scene description
//   - cam: the camera the surfaces are rendered from
//   - size: the host render resolution
//   - options: functional options
//
// Returns:
//   - *Synth: the scene, with surfaces allocated but not yet rendered
//   - error: a description or allocation error
func New(desc *Description, cam camera.Camera, size common.Size, options ...SynthBuilderOption) (*Synth, error) {
	w, lights, err := desc.build()
	if err != nil {
		return nil, err
	}

	sceneOpts := []scene.SceneBuilderOption{scene.WithName(desc.Name), scene.WithLights(lights...)}
	if desc.Sky.Len() > 0 {
		env, err := environment.NewUniform(desc.Name+"_sky", common.Size{Width: 64, Height: 32}, desc.Sky)
		if err != nil {
			return nil, err
		}
		sceneOpts = append(sceneOpts, scene.WithEnvironment(env))
	}

	s := &Synth{
		Scene:   scene.NewScene(sceneOpts...),
		cam:     cam,
		world:   w,
		workers: max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(s)
	}
	s.pool = worker.NewDynamicWorkerPool(s.workers, 256, 1*time.Second)

	if err := s.Resize(size); err != nil {
		return nil, err
	}
	return s, nil
}

// Size returns the host render resolution.
func (s *Synth) Size() common.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Resize reallocates every buffer at the new resolution. Resizing to the current size is a no-op.
//
// Parameters:
//   - size: the new host resolution
//
// Returns:
//   - error: an allocation error
func (s *Synth) Resize(size common.Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size == s.size && s.depth != nil {
		return nil
	}

	var err error
	alloc := func(label string) *texture.Texture {
		if err != nil {
			return nil
		}
		var t *texture.Texture
		t, err = texture.New(label, size)
		return t
	}
	depth, normal, velocity := alloc("synth_depth"), alloc("synth_normal"), alloc("synth_velocity")
	diffuse, direct := alloc("synth_diffuse"), alloc("synth_direct")
	if err != nil {
		return fmt.Errorf("synth: resize to %dx%d: %w", size.Width, size.Height, err)
	}

	s.size = size
	s.depth, s.normal, s.velocity, s.diffuse, s.direct = depth, normal, velocity, diffuse, direct
	s.Scene.SetSurfaces(texture.SurfaceSet{Depth: depth, Normal: normal, Velocity: velocity, Diffuse: diffuse})
	logger.Debugf("resized surfaces to %dx%d", size.Width, size.Height)
	return nil
}

// DirectLight returns the direct lighting buffer written by the last Render.
func (s *Synth) DirectLight() texture.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct
}

// Render traces one primary ray per pixel from the camera's current state and rewrites
// every surface buffer and the direct lighting buffer. Rows are shaded on the worker pool.
func (s *Synth) Render() {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := s.cam.ViewMatrix()
	viewProj := s.cam.ViewProjectionMatrix()
	prevViewProj := s.cam.PreviousViewProjectionMatrix()
	invProj := s.cam.InverseProjectionMatrix()
	invView := s.cam.InverseViewMatrix()
	eye := invView.Col(3).Vec3()
	env := s.Scene.Environment()
	lights := s.Scene.Lights()

	var wg sync.WaitGroup
	for y := 0; y < s.size.Height; y++ {
		wg.Add(1)
		row := y
		s.pool.SubmitTask(worker.Task{
			ID: row,
			Do: func() (any, error) {
				defer wg.Done()
				for x := 0; x < s.size.Width; x++ {
					u := (float32(x) + 0.5) / float32(s.size.Width)
					v := (float32(row) + 0.5) / float32(s.size.Height)
					ndc := mgl32.Vec4{u*2 - 1, 1 - v*2, 1, 1}
					vp := invProj.Mul4x1(ndc)
					dirView := vp.Vec3().Mul(1 / vp[3]).Normalize()
					dir := invView.Mul4x1(dirView.Vec4(0)).Vec3().Normalize()
					s.shade(x, row, u, v, ray{orig: eye, dir: dir}, view, viewProj, prevViewProj, env, lights)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	for _, t := range []*texture.Texture{s.depth, s.normal, s.velocity, s.diffuse, s.direct} {
		t.Touch()
	}
}

func (s *Synth) shade(x, y int, u, v float32, r ray, view, viewProj, prevViewProj mgl32.Mat4, env *environment.Map, lights []light.Light) {
	var rec hitRecord
	if !s.world.hit(r, 1e-4, float32(math.Inf(1)), &rec) {
		s.depth.Set(x, y, mgl32.Vec4{1, 0, 0, 0})
		s.normal.Set(x, y, mgl32.Vec4{})
		s.velocity.Set(x, y, mgl32.Vec4{})
		s.diffuse.Set(x, y, mgl32.Vec4{})
		var bg mgl32.Vec3
		if env != nil {
			bg = env.Sample(r.dir, 0)
		}
		s.direct.Set(x, y, bg.Vec4(1))
		return
	}

	clip := viewProj.Mul4x1(rec.p.Vec4(1))
	depth := clip[2] / clip[3]

	prev := prevViewProj.Mul4x1(rec.p.Vec4(1))
	prevU := (prev[0]/prev[3])*0.5 + 0.5
	prevV := 0.5 - (prev[1]/prev[3])*0.5

	n := view.Mul4x1(rec.normal.Vec4(0)).Vec3().Normalize()

	s.depth.Set(x, y, mgl32.Vec4{depth, 0, 0, 0})
	s.normal.Set(x, y, n.Vec4(rec.mat.Roughness))
	s.velocity.Set(x, y, mgl32.Vec4{u - prevU, v - prevV, 0, 0})
	s.diffuse.Set(x, y, rec.mat.Albedo.Vec4(rec.mat.Metalness))
	s.direct.Set(x, y, s.directLight(rec, lights).Vec4(1))
}

// directLight evaluates emission plus shadowed Lambert lighting from every enabled light.
func (s *Synth) directLight(rec hitRecord, lights []light.Light) mgl32.Vec3 {
	out := rec.mat.Emissive
	diffuse := rec.mat.Albedo.Mul((1 - rec.mat.Metalness) / math.Pi)
	origin := rec.p.Add(rec.normal.Mul(1e-3))
	for _, l := range lights {
		if !l.Enabled() {
			continue
		}
		toLight, radiance, dist := l.Incident(rec.p)
		ndotl := rec.normal.Dot(toLight)
		if ndotl <= 0 || radiance == (mgl32.Vec3{}) {
			continue
		}
		if s.world.occluded(ray{orig: origin, dir: toLight}, 1e-4, dist-2e-3) {
			continue
		}
		c := radiance.Mul(ndotl)
		out = out.Add(mgl32.Vec3{diffuse[0] * c[0], diffuse[1] * c[1], diffuse[2] * c[2]})
	}
	return out
}
