// Package ssgi implements screen-space global illumination as a post-processing effect: a
// ray-march pass producing noisy indirect radiance, SVGF temporal accumulation, an edge-aware
// à-trous spatial denoiser, and composition with the host's direct light.
package ssgi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/camera"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/environment"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/log"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/profiler"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/scene"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/tonemap"
)

var logger = log.New("ssgi")

// defaultVariantCacheSize bounds the shader variants kept per effect unless WithVariantCache
// shares a cache.
const defaultVariantCacheSize = 64

// Effect is the screen-space GI pipeline bound to one renderer, scene and camera.
// Safe for concurrent use; every method serializes on the effect.
type Effect interface {
	// Options returns the active options.
	Options() Options

	// SetOptions validates next and applies the difference to the affected stages. Changes that
	// only touch uniforms take effect on the next frame; variant, iteration count and resolution
	// changes rebuild what they invalidate.
	//
	// Parameters:
	//   - next: the new options
	//
	// Returns:
	//   - error: ErrInvalidOptions, ErrDisposed, or a build or allocation error
	SetOptions(next Options) error

	// SetSize resizes every internal buffer to the output resolution scaled by
	// Options.ResolutionScale. Without force, a call with the same width, height and scale as
	// the previous one is a no-op. Passing 0 for both dimensions is ignored.
	//
	// Parameters:
	//   - width, height: the output resolution in pixels
	//   - force: reallocate even when nothing changed
	//
	// Returns:
	//   - error: ErrInvalidSize, ErrDisposed, or an allocation error
	SetSize(width, height int, force bool) error

	// Size returns the internal resolution every stage runs at, zero before the first resize.
	Size() common.Size

	// Generation returns a counter bumped every time the internal buffers are reallocated.
	Generation() uint64

	// KeepEnvMapUpdated synchronizes the ray-march stage with the scene's environment map.
	// Update calls it every frame; call it directly after swapping the environment between frames.
	//
	// Returns:
	//   - error: ErrDisposed, or a build or allocation error
	KeepEnvMapUpdated() error

	// Update runs one frame of the pipeline against the scene's current surfaces.
	//
	// Parameters:
	//   - directLight: the host's direct lighting at the surface resolution
	//
	// Returns:
	//   - error: ErrDisposed, ErrNoDirectLight, a surface validation error, or a frame error
	Update(directLight texture.View) error

	// ResetHistory discards the temporal history, as after a camera cut. The next frame shows
	// the raw ray-marched sample.
	ResetHistory()

	// Output returns the composed color of the last frame at the internal resolution, nil
	// before the first resize.
	Output() texture.View

	// ToneMapping returns the renderer's tone-mapping operator captured by the last Update. The
	// host applies it to Output.
	ToneMapping() tonemap.Mode

	// ReadDebugViews makes every intermediate buffer current on the CPU and returns views of them.
	//
	// Returns:
	//   - DebugViews: the intermediate buffers
	//   - error: ErrDisposed or a readback error
	ReadDebugViews() (DebugViews, error)

	// Dispose releases every buffer and provider the effect owns. Pipelines stay cached in the
	// renderer for other effects. Calling Dispose again is a no-op.
	Dispose()
}

// DebugViews exposes the intermediate buffers of the last frame.
type DebugViews struct {
	Depth    texture.View
	Normal   texture.View
	Velocity texture.View
	Diffuse  texture.View
	Radiance texture.View
	Temporal texture.View
	Output   texture.View
}

// sizeRequest is the last accepted SetSize call, compared before reallocating.
type sizeRequest struct {
	width  int
	height int
	scale  float64
}

// inputKey identifies the host buffers the providers were bound to.
type inputKey [5]uint64

func inputKeyOf(surfaces texture.SurfaceSet, direct texture.View) inputKey {
	return inputKey{
		surfaces.Depth.Generation(),
		surfaces.Normal.Generation(),
		surfaces.Velocity.Generation(),
		surfaces.Diffuse.Generation(),
		direct.Generation(),
	}
}

// effect is the implementation of the Effect interface.
type effect struct {
	mu *sync.Mutex

	ctx      stageContext
	shared   sharedUniforms
	options  Options
	scene    scene.Scene
	camera   camera.Camera
	profiler *profiler.Profiler

	raymarch *raymarchPass
	temporal *temporalStage
	spatial  *spatialStage
	compose  *compositionStage

	initialSize *common.Size
	last        sizeRequest
	size        common.Size
	allocated   bool
	generation  uint64

	needsBind     bool
	inputs        inputKey
	boundSurfaces texture.SurfaceSet
	boundDirect   texture.View

	env        *environment.Map
	envSampled bool
	envVersion uint64

	frame       uint32
	toneMapping tonemap.Mode
	disposed    bool
}

var _ Effect = &effect{}

// NewEffect builds every stage for the given renderer, scene and camera. When the options or
// WithSize carry a resolution the buffers are allocated immediately; otherwise the first Update
// sizes the effect from the scene's surfaces.
//
// Parameters:
//   - r: the renderer that owns the pipelines and textures
//   - sc: the scene providing the surfaces and the environment map
//   - cam: the camera the surfaces were rasterized with
//   - options: functional options to configure the effect
//
// Returns:
//   - Effect: the effect
//   - error: ErrInvalidOptions, or a build or allocation error
func NewEffect(r renderer.Renderer, sc scene.Scene, cam camera.Camera, options ...EffectBuilderOption) (Effect, error) {
	switch {
	case r == nil:
		return nil, fmt.Errorf("%w: nil renderer", ErrInvalidOptions)
	case sc == nil:
		return nil, fmt.Errorf("%w: nil scene", ErrInvalidOptions)
	case cam == nil:
		return nil, fmt.Errorf("%w: nil camera", ErrInvalidOptions)
	}

	e := &effect{
		mu:       &sync.Mutex{},
		options:  DefaultOptions(),
		scene:    sc,
		camera:   cam,
		raymarch: newRaymarchPass(),
		temporal: newTemporalStage(defaultResetVariance),
		spatial:  newSpatialStage(),
		compose:  newCompositionStage(DefaultComposeParams()),
	}
	e.ctx = stageContext{r: r, logger: logger, shared: &e.shared}
	for _, opt := range options {
		opt(e)
	}
	if e.initialSize != nil {
		e.options.Width = e.initialSize.Width
		e.options.Height = e.initialSize.Height
	}
	if e.ctx.cache == nil {
		e.ctx.cache = shader.NewVariantCache(defaultVariantCacheSize)
	}
	if err := e.options.Validate(); err != nil {
		return nil, err
	}
	if err := e.configureAll(); err != nil {
		return nil, err
	}
	if err := e.setSize(e.options.Width, e.options.Height, true); err != nil {
		e.dispose()
		return nil, err
	}
	e.toneMapping = r.ToneMapping()
	e.ctx.logger.Debugf("effect created (backend %v, %d denoise iterations)", r.Backend(), e.options.DenoiseIterations)
	return e, nil
}

func (e *effect) configureAll() error {
	if _, err := e.raymarch.configure(&e.ctx, e.options); err != nil {
		return err
	}
	if _, err := e.temporal.configure(&e.ctx, e.options); err != nil {
		return err
	}
	if _, err := e.spatial.configure(&e.ctx, e.options); err != nil {
		return err
	}
	return e.compose.configure(&e.ctx)
}

func (e *effect) Options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.options
}

func (e *effect) SetOptions(next Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return ErrDisposed
	}
	if err := next.Validate(); err != nil {
		return err
	}

	c := diffOptions(e.options, next)
	e.options = next
	if c == 0 {
		return nil
	}
	e.ctx.logger.Debugf("options changed: %s", c)

	if c.has(changeRaymarchVariant | changeRaymarchParams) {
		changed, err := e.raymarch.configure(&e.ctx, next)
		if err != nil {
			return err
		}
		e.needsBind = e.needsBind || changed
	}
	if c.has(changeTemporalVariant | changeTemporalParams) {
		changed, err := e.temporal.configure(&e.ctx, next)
		if err != nil {
			return err
		}
		e.needsBind = e.needsBind || changed
	}
	if c.has(changeDenoiseParams | changeIterations) {
		rebind, err := e.spatial.configure(&e.ctx, next)
		if err != nil {
			return err
		}
		e.needsBind = e.needsBind || rebind
	}
	if c.has(changeReprojection) {
		e.needsBind = true
	}
	if c.has(changeResolution) && e.allocated {
		return e.setSize(e.last.width, e.last.height, false)
	}
	return nil
}

func (e *effect) SetSize(width, height int, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return ErrDisposed
	}
	return e.setSize(width, height, force)
}

func (e *effect) setSize(width, height int, force bool) error {
	if width == 0 && height == 0 {
		return nil
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	req := sizeRequest{width: width, height: height, scale: e.options.ResolutionScale}
	if !force && e.allocated && req == e.last {
		return nil
	}
	internal := common.Size{Width: width, Height: height}.Scaled(req.scale)
	if !force && e.allocated && internal == e.size {
		// the buffers fit, but the output they map to changed
		e.last = req
		e.temporal.reset()
		return nil
	}

	e.releaseBuffers()
	if err := e.allocate(internal); err != nil {
		e.releaseBuffers()
		e.allocated = false
		e.size = common.Size{}
		e.last = sizeRequest{}
		return err
	}
	e.allocated = true
	e.size = internal
	e.last = req
	e.generation++
	e.needsBind = true
	e.ctx.logger.Infof("resized to %dx%d at scale %.2f (internal %dx%d, generation %d)",
		width, height, req.scale, internal.Width, internal.Height, e.generation)
	return nil
}

func (e *effect) allocate(size common.Size) error {
	if err := e.raymarch.allocate(&e.ctx, size); err != nil {
		return err
	}
	if err := e.temporal.allocate(&e.ctx, size); err != nil {
		return err
	}
	if err := e.spatial.allocate(&e.ctx, size); err != nil {
		return err
	}
	return e.compose.allocate(&e.ctx, size)
}

func (e *effect) releaseBuffers() {
	e.raymarch.releaseBuffers(&e.ctx)
	e.temporal.releaseBuffers(&e.ctx)
	e.spatial.releaseBuffers(&e.ctx)
	e.compose.releaseBuffers(&e.ctx)
}

func (e *effect) Size() common.Size {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}

func (e *effect) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

func (e *effect) KeepEnvMapUpdated() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return ErrDisposed
	}
	return e.keepEnvMapUpdated()
}

// keepEnvMapUpdated attaches equirectangular environment maps to the ray-march stage and
// detaches everything else. A map without mipmaps gets a trilinear mip chain, since rough rays
// sample it at a lod derived from their cone.
func (e *effect) keepEnvMapUpdated() error {
	env := e.scene.Environment()
	sampled := env != nil && env.Mapping() == environment.MappingEquirectangular
	if env == e.env && sampled == e.envSampled &&
		(!sampled || (!env.NeedsUpdate() && env.Version() == e.envVersion)) {
		return nil
	}

	if !sampled {
		if e.raymarch.hasEnvironment() {
			e.ctx.logger.Noticef("environment detached")
		}
		if env != nil {
			e.ctx.logger.Infof("environment %q has %v mapping and is not sampled", env.Label(), env.Mapping())
		}
		e.raymarch.clearEnvironment(&e.ctx)
	} else {
		if !env.GenerateMipmaps() {
			env.SetGenerateMipmaps(true)
			env.SetFilters(environment.FilterLinearMipmapLinear, environment.FilterLinearMipmapLinear)
			env.MarkNeedsUpdate()
		}
		pix, levels := env.Packed()
		maxMip := min(env.MaxMipLevel(), len(levels)-1)
		if err := e.raymarch.setEnvironment(&e.ctx, env.Label(), pix, levels, maxMip); err != nil {
			return err
		}
		e.envVersion = env.Version()
		if env != e.env {
			e.ctx.logger.Noticef("environment %q attached (%d levels, max mip %d)", env.Label(), len(levels), maxMip)
		}
	}
	e.env = env
	e.envSampled = sampled

	if _, err := e.raymarch.configure(&e.ctx, e.options); err != nil {
		return err
	}
	e.needsBind = true
	return nil
}

func (e *effect) Update(directLight texture.View) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return ErrDisposed
	}
	if directLight == nil {
		return ErrNoDirectLight
	}
	if err := e.keepEnvMapUpdated(); err != nil {
		return err
	}

	surfaces := e.scene.Surfaces()
	if err := surfaces.Validate(); err != nil {
		return err
	}
	input := surfaces.Size()
	if directLight.Size() != input {
		return fmt.Errorf("%w: direct light is %v, surfaces are %v", texture.ErrSizeMismatch, directLight.Size(), input)
	}
	if !e.allocated {
		if err := e.setSize(input.Width, input.Height, false); err != nil {
			return err
		}
	}

	if key := inputKeyOf(surfaces, directLight); e.needsBind || key != e.inputs {
		if err := e.timed("bind", func() error { return e.bind(surfaces, directLight) }); err != nil {
			return err
		}
	}

	e.refreshShared(input)
	if err := e.runFrame(); err != nil {
		e.ctx.logger.Warningf("dropped frame %d: %v", e.frame, err)
		return err
	}
	e.temporal.swap()
	e.frame++

	if err := e.timed("download", func() error { return e.ctx.r.Download(e.output()) }); err != nil {
		return err
	}
	e.toneMapping = e.ctx.r.ToneMapping()
	if e.profiler != nil {
		e.profiler.Tick()
	}
	return nil
}

// bind rebuilds every provider against the current buffers and host inputs. Host views that
// are no longer bound are released from the backend.
func (e *effect) bind(surfaces texture.SurfaceSet, direct texture.View) error {
	e.releaseStaleViews(surfaces, direct)

	gb := &e.raymarch.gbuffer
	reprojDepth, reprojVelocity := viewOf(gb.depth), viewOf(gb.velocity)
	if e.options.Antialias {
		reprojDepth, reprojVelocity = surfaces.Depth, surfaces.Velocity
	}

	if err := e.raymarch.bind(&e.ctx, surfaces, direct); err != nil {
		return err
	}
	if err := e.temporal.bind(&e.ctx, gb, viewOf(e.raymarch.radiance), reprojDepth, reprojVelocity); err != nil {
		return err
	}
	temporal := viewOf(e.temporal.output)
	if len(e.spatial.iterations) > 0 {
		e.compose.unbind()
		if err := e.spatial.bind(&e.ctx, temporal, gb, direct, &e.compose.params); err != nil {
			return err
		}
	} else if err := e.compose.bind(&e.ctx, temporal, gb, direct); err != nil {
		return err
	}

	e.needsBind = false
	e.inputs = inputKeyOf(surfaces, direct)
	e.boundSurfaces = surfaces
	e.boundDirect = direct
	e.ctx.logger.Debugf("bound generation %d to inputs %v", e.generation, e.inputs)
	return nil
}

func (e *effect) releaseStaleViews(surfaces texture.SurfaceSet, direct texture.View) {
	next := map[uint64]bool{}
	for _, v := range []texture.View{surfaces.Depth, surfaces.Normal, surfaces.Velocity, surfaces.Diffuse, direct} {
		if v != nil {
			next[v.Generation()] = true
		}
	}
	for _, v := range e.boundViews() {
		if !next[v.Generation()] {
			e.ctx.r.ReleaseView(v)
		}
	}
}

func (e *effect) boundViews() []texture.View {
	var out []texture.View
	for _, v := range []texture.View{e.boundSurfaces.Depth, e.boundSurfaces.Normal, e.boundSurfaces.Velocity, e.boundSurfaces.Diffuse, e.boundDirect} {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

func (e *effect) refreshShared(input common.Size) {
	e.shared.camera = e.camera.Uniform(e.size)
	e.shared.frame = uniforms.GPUFrameUniform{
		Resolution:      [2]float32{float32(e.size.Width), float32(e.size.Height)},
		InputResolution: [2]float32{float32(input.Width), float32(input.Height)},
		Frame:           e.frame,
	}
}

// runFrame records every stage and executes the batch. EndComputeFrame runs even when
// recording failed so the renderer never stays inside a frame.
func (e *effect) runFrame() error {
	r := e.ctx.r
	if err := r.BeginComputeFrame(); err != nil {
		return err
	}
	recErr := e.timed("record", e.recordStages)
	endErr := e.timed("execute", r.EndComputeFrame)
	return errors.Join(recErr, endErr)
}

func (e *effect) recordStages() error {
	if err := e.raymarch.record(&e.ctx, e.size); err != nil {
		return err
	}
	if err := e.temporal.record(&e.ctx, e.size); err != nil {
		return err
	}
	if len(e.spatial.iterations) > 0 {
		return e.spatial.record(&e.ctx, e.size)
	}
	return e.compose.record(&e.ctx, e.size)
}

func (e *effect) timed(stage string, fn func() error) error {
	if e.profiler == nil {
		return fn()
	}
	return e.profiler.Time(stage, fn)
}

func (e *effect) ResetHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.temporal.reset()
}

// output is the texture the host reads: the last à-trous iteration or the standalone composition.
func (e *effect) output() *texture.Texture {
	if t := e.spatial.output(); t != nil {
		return t
	}
	return e.compose.output
}

func (e *effect) Output() texture.View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return viewOf(e.output())
}

func (e *effect) ToneMapping() tonemap.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.toneMapping
}

func (e *effect) ReadDebugViews() (DebugViews, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return DebugViews{}, ErrDisposed
	}
	gb := e.raymarch.gbuffer
	owned := []*texture.Texture{gb.depth, gb.normal, gb.velocity, gb.diffuse, e.raymarch.radiance, e.temporal.output, e.output()}
	for _, t := range owned {
		if t == nil {
			continue
		}
		if err := e.ctx.r.Download(t); err != nil {
			return DebugViews{}, err
		}
	}
	return DebugViews{
		Depth:    viewOf(gb.depth),
		Normal:   viewOf(gb.normal),
		Velocity: viewOf(gb.velocity),
		Diffuse:  viewOf(gb.diffuse),
		Radiance: viewOf(e.raymarch.radiance),
		Temporal: viewOf(e.temporal.output),
		Output:   viewOf(e.output()),
	}, nil
}

func (e *effect) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.dispose()
	e.ctx.logger.Debugf("effect disposed after %d frames", e.frame)
}

func (e *effect) dispose() {
	e.releaseBuffers()
	e.raymarch.clearEnvironment(&e.ctx)
	for _, v := range e.boundViews() {
		e.ctx.r.ReleaseView(v)
	}
	e.boundSurfaces = texture.SurfaceSet{}
	e.boundDirect = nil
	e.allocated = false
	e.size = common.Size{}
	e.disposed = true
}
