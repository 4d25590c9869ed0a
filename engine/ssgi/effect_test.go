package ssgi

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/camera"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/environment"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/profiler"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/scene"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/kernel"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/tonemap"
	"github.com/go-gl/mathgl/mgl32"
)

func newTex(t *testing.T, label string, size common.Size, fill mgl32.Vec4) *texture.Texture {
	t.Helper()
	tex, err := texture.New(label, size)
	if err != nil {
		t.Fatalf("failed to allocate %s: %v", label, err)
	}
	tex.Fill(fill)
	return tex
}

// planeFixture is a rough camera-facing plane filling the view, rendered by a CPU renderer.
type planeFixture struct {
	r      renderer.Renderer
	scene  scene.Scene
	camera camera.Camera
	size   common.Size
	albedo mgl32.Vec3
	direct *texture.Texture
}

func newPlaneFixture(t *testing.T, size common.Size, albedo mgl32.Vec3) *planeFixture {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeCPU, renderer.WithWorkers(2), renderer.WithToneMapping(tonemap.Reinhard))
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}
	t.Cleanup(r.Release)

	cam := camera.NewCamera()
	f := &planeFixture{r: r, camera: cam, size: size, albedo: albedo}
	f.scene = scene.NewScene(scene.WithSurfaces(f.surfaces(t, size, 3)))
	f.direct = newTex(t, "direct", size, mgl32.Vec4{})
	return f
}

// surfaces builds a plane at distance view units with roughness 1 and zero motion.
func (f *planeFixture) surfaces(t *testing.T, size common.Size, distance float32) texture.SurfaceSet {
	t.Helper()
	n, far := f.camera.Near(), f.camera.Far()
	d := (far - n*far/distance) / (far - n)
	return texture.SurfaceSet{
		Depth:    newTex(t, "depth", size, mgl32.Vec4{d, 0, 0, 0}),
		Normal:   newTex(t, "normal", size, mgl32.Vec4{0, 0, 1, 1}),
		Velocity: newTex(t, "velocity", size, mgl32.Vec4{}),
		Diffuse:  newTex(t, "diffuse", size, f.albedo.Vec4(0)),
	}
}

func (f *planeFixture) effect(t *testing.T, opts ...EffectBuilderOption) *effect {
	t.Helper()
	e, err := NewEffect(f.r, f.scene, f.camera, opts...)
	if err != nil {
		t.Fatalf("failed to create effect: %v", err)
	}
	t.Cleanup(e.Dispose)
	return e.(*effect)
}

func (f *planeFixture) run(t *testing.T, e Effect, frames int) {
	t.Helper()
	for i := 0; i < frames; i++ {
		if err := e.Update(f.direct); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
}

func uniformSky(t *testing.T, radiance mgl32.Vec3) *environment.Map {
	t.Helper()
	env, err := environment.NewUniform("sky", common.Size{Width: 16, Height: 8}, radiance)
	if err != nil {
		t.Fatalf("failed to create environment: %v", err)
	}
	return env
}

func debugViews(t *testing.T, e Effect) DebugViews {
	t.Helper()
	views, err := e.ReadDebugViews()
	if err != nil {
		t.Fatalf("failed to read debug views: %v", err)
	}
	return views
}

func TestNewEffectErrors(t *testing.T) {
	f := newPlaneFixture(t, common.Size{Width: 4, Height: 4}, mgl32.Vec3{1, 1, 1})
	bad := DefaultOptions()
	bad.SPP = 0

	cases := []struct {
		r    renderer.Renderer
		sc   scene.Scene
		cam  camera.Camera
		opts []EffectBuilderOption
		want error
	}{
		{nil, f.scene, f.camera, nil, ErrInvalidOptions},
		{f.r, nil, f.camera, nil, ErrInvalidOptions},
		{f.r, f.scene, nil, nil, ErrInvalidOptions},
		{f.r, f.scene, f.camera, []EffectBuilderOption{WithOptions(bad)}, ErrInvalidOptions},
		{f.r, f.scene, f.camera, []EffectBuilderOption{WithSize(8, 0)}, ErrInvalidSize},
	}
	for i, c := range cases {
		e, err := NewEffect(c.r, c.sc, c.cam, c.opts...)
		if !errors.Is(err, c.want) {
			t.Errorf("[case %d] expected %v, got %v", i, c.want, err)
		}
		if e != nil {
			t.Errorf("[case %d] expected no effect on error", i)
		}
	}
}

func TestSetSize(t *testing.T) {
	f := newPlaneFixture(t, common.Size{Width: 8, Height: 8}, mgl32.Vec3{1, 1, 1})
	e := f.effect(t, WithSize(8, 8))
	if e.Generation() != 1 || e.Size() != (common.Size{Width: 8, Height: 8}) {
		t.Fatalf("expected generation 1 at 8x8, got %d at %v", e.Generation(), e.Size())
	}
	out := e.Output().Generation()

	cases := []struct {
		width, height int
		force         bool
		generation    uint64
		size          common.Size
		err           error
	}{
		{8, 8, false, 1, common.Size{Width: 8, Height: 8}, nil},
		{0, 0, false, 1, common.Size{Width: 8, Height: 8}, nil},
		{0, 0, true, 1, common.Size{Width: 8, Height: 8}, nil},
		{8, 0, false, 1, common.Size{Width: 8, Height: 8}, ErrInvalidSize},
		{-1, 4, false, 1, common.Size{Width: 8, Height: 8}, ErrInvalidSize},
		{8, 8, true, 2, common.Size{Width: 8, Height: 8}, nil},
		{16, 4, false, 3, common.Size{Width: 16, Height: 4}, nil},
		{16, 4, false, 3, common.Size{Width: 16, Height: 4}, nil},
	}
	for i, c := range cases {
		err := e.SetSize(c.width, c.height, c.force)
		if !errors.Is(err, c.err) {
			t.Fatalf("[case %d] expected error %v, got %v", i, c.err, err)
		}
		if got := e.Generation(); got != c.generation {
			t.Errorf("[case %d] expected generation %d, got %d", i, c.generation, got)
		}
		if got := e.Size(); got != c.size {
			t.Errorf("[case %d] expected size %v, got %v", i, c.size, got)
		}
	}
	if e.Output().Generation() == out {
		t.Errorf("expected the output texture to be reallocated")
	}
}

func TestSetSizeFollowsResolutionScale(t *testing.T) {
	f := newPlaneFixture(t, common.Size{Width: 8, Height: 8}, mgl32.Vec3{1, 1, 1})
	e := f.effect(t, WithSize(8, 8))

	cases := []struct {
		scale      float64
		size       common.Size
		generation uint64
	}{
		{0.5, common.Size{Width: 4, Height: 4}, 2},
		{0.5, common.Size{Width: 4, Height: 4}, 2},
		// rounds to the same internal size and keeps the buffers
		{0.52, common.Size{Width: 4, Height: 4}, 2},
		{1, common.Size{Width: 8, Height: 8}, 3},
	}
	for i, c := range cases {
		o := e.Options()
		o.ResolutionScale = c.scale
		if err := e.SetOptions(o); err != nil {
			t.Fatalf("[case %d] failed to set options: %v", i, err)
		}
		if got := e.Size(); got != c.size {
			t.Errorf("[case %d] expected size %v, got %v", i, c.size, got)
		}
		if got := e.Generation(); got != c.generation {
			t.Errorf("[case %d] expected generation %d, got %d", i, c.generation, got)
		}
	}
}

func TestWithSizeOverridesOptions(t *testing.T) {
	f := newPlaneFixture(t, common.Size{Width: 4, Height: 4}, mgl32.Vec3{1, 1, 1})
	cases := [][]EffectBuilderOption{
		{WithSize(8, 8), WithOptions(DefaultOptions())},
		{WithOptions(DefaultOptions()), WithSize(8, 8)},
	}
	for i, opts := range cases {
		e := f.effect(t, opts...)
		if got := e.Size(); got != (common.Size{Width: 8, Height: 8}) {
			t.Errorf("[case %d] expected size 8x8, got %v", i, got)
		}
		if o := e.Options(); o.Width != 8 || o.Height != 8 {
			t.Errorf("[case %d] expected options to carry 8x8, got %dx%d", i, o.Width, o.Height)
		}
	}
}

func TestAllocationFailureReleasesBuffers(t *testing.T) {
	size := common.Size{Width: 4, Height: 4}
	f := newPlaneFixture(t, size, mgl32.Vec3{1, 1, 1})
	r, err := renderer.NewRenderer(renderer.BackendTypeCPU, renderer.WithWorkers(2), renderer.WithMaxTexels(16*16*20))
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}
	t.Cleanup(r.Release)
	f.r = r

	if e, err := NewEffect(r, f.scene, f.camera, WithSize(64, 64)); !errors.Is(err, texture.ErrAllocation) || e != nil {
		t.Fatalf("expected ErrAllocation from construction, got %v", err)
	}
	if texels, live := r.TexelsInUse(); texels != 0 || live != 0 {
		t.Fatalf("expected nothing allocated after a failed construction, got %d texels in %d textures", texels, live)
	}

	e := f.effect(t, WithSize(size.Width, size.Height))
	generation := e.Generation()
	if err := e.SetSize(64, 64, false); !errors.Is(err, texture.ErrAllocation) {
		t.Fatalf("expected ErrAllocation from resize, got %v", err)
	}
	if texels, live := r.TexelsInUse(); texels != 0 || live != 0 {
		t.Errorf("expected every buffer released after a failed resize, got %d texels in %d textures", texels, live)
	}
	if e.Output() != nil || !e.Size().IsZero() {
		t.Errorf("expected an unsized effect after a failed resize, got %v", e.Size())
	}

	f.run(t, e, 1)
	if e.Size() != size {
		t.Errorf("expected the next frame to resize to %v, got %v", size, e.Size())
	}
	if e.Generation() <= generation {
		t.Errorf("expected a new generation after recovering, got %d", e.Generation())
	}
}

func TestSameInternalSizeResetsHistory(t *testing.T) {
	f := newPlaneFixture(t, common.Size{Width: 8, Height: 8}, mgl32.Vec3{0.5, 0.5, 0.5})
	f.scene.SetEnvironment(uniformSky(t, mgl32.Vec3{1, 1, 1}))
	o := DefaultOptions()
	o.ResolutionScale = 0.5
	e := f.effect(t, WithOptions(o), WithSize(8, 8), WithTemporalParams(0.75))

	f.run(t, e, 2)
	if got := debugViews(t, e).Temporal.At(1, 1)[3]; !mgl32.FloatEqualThreshold(got, 0, 1e-6) {
		t.Fatalf("expected accumulated history, got variance %v", got)
	}

	// 7x7 at half scale rounds to the same 4x4 buffers
	generation := e.Generation()
	if err := e.SetSize(7, 7, false); err != nil {
		t.Fatalf("failed to resize: %v", err)
	}
	if e.Generation() != generation || e.Size() != (common.Size{Width: 4, Height: 4}) {
		t.Fatalf("expected the 4x4 buffers to be kept, got %v at generation %d", e.Size(), e.Generation())
	}
	f.run(t, e, 1)
	if got := debugViews(t, e).Temporal.At(1, 1)[3]; !mgl32.FloatEqualThreshold(got, 0.75, 1e-6) {
		t.Errorf("expected the reset variance after the size change, got %v", got)
	}
}

func TestUpdateSizesFromSurfaces(t *testing.T) {
	size := common.Size{Width: 6, Height: 4}
	f := newPlaneFixture(t, size, mgl32.Vec3{1, 1, 1})
	e := f.effect(t)
	if e.Output() != nil || !e.Size().IsZero() {
		t.Fatalf("expected an unsized effect before the first frame")
	}
	f.run(t, e, 1)
	if e.Size() != size {
		t.Errorf("expected size %v, got %v", size, e.Size())
	}
	if e.Output() == nil || e.Output().Size() != size {
		t.Errorf("expected a %v output", size)
	}
	if e.ToneMapping() != tonemap.Reinhard {
		t.Errorf("expected the renderer's tone mapping, got %v", e.ToneMapping())
	}
}

func TestUpdateErrors(t *testing.T) {
	f := newPlaneFixture(t, common.Size{Width: 4, Height: 4}, mgl32.Vec3{1, 1, 1})
	e := f.effect(t)
	wrong := newTex(t, "direct", common.Size{Width: 2, Height: 2}, mgl32.Vec4{})

	cases := []struct {
		direct texture.View
		want   error
	}{
		{nil, ErrNoDirectLight},
		{wrong, texture.ErrSizeMismatch},
	}
	for i, c := range cases {
		if err := e.Update(c.direct); !errors.Is(err, c.want) {
			t.Errorf("[case %d] expected %v, got %v", i, c.want, err)
		}
	}

	f.scene.SetSurfaces(texture.SurfaceSet{})
	if err := e.Update(f.direct); !errors.Is(err, texture.ErrMissingSurface) {
		t.Errorf("expected ErrMissingSurface, got %v", err)
	}
}

func TestHistoryResets(t *testing.T) {
	f := newPlaneFixture(t, common.Size{Width: 8, Height: 8}, mgl32.Vec3{0.5, 0.5, 0.5})
	f.scene.SetEnvironment(uniformSky(t, mgl32.Vec3{1, 1, 1}))
	e := f.effect(t, WithSize(8, 8), WithTemporalParams(0.75))

	cases := []struct {
		name     string
		action   func() error
		variance float32
	}{
		{"first frame", func() error { return nil }, 0.75},
		{"same size", func() error { return e.SetSize(8, 8, false) }, 0},
		{"forced resize", func() error { return e.SetSize(8, 8, true) }, 0.75},
		{"accumulated", func() error { return nil }, 0},
		{"camera cut", func() error { e.ResetHistory(); return nil }, 0.75},
	}
	for i, c := range cases {
		if err := c.action(); err != nil {
			t.Fatalf("[case %d] %s: %v", i, c.name, err)
		}
		f.run(t, e, 1)
		if c.variance == 0 {
			// a second frame on valid history drives the variance of a constant signal to zero
			f.run(t, e, 1)
		}
		views := debugViews(t, e)
		got := views.Temporal.At(3, 3)
		if !mgl32.FloatEqualThreshold(got[3], c.variance, 1e-6) {
			t.Errorf("[case %d] %s: expected variance %v, got %v", i, c.name, c.variance, got[3])
		}
		if rad := views.Radiance.At(3, 3).Vec3(); c.variance != 0 && !got.Vec3().ApproxEqualThreshold(rad, 1e-6) {
			t.Errorf("[case %d] %s: expected the raw sample %v after a reset, got %v", i, c.name, rad, got.Vec3())
		}
	}
}

func TestMissPolicy(t *testing.T) {
	sky := mgl32.Vec3{0.5, 0.6, 0.7}
	albedo := mgl32.Vec3{0.8, 0.4, 0.2}
	direct := mgl32.Vec4{0.1, 0.2, 0.3, 1}

	cases := []struct {
		missedRays bool
		env        bool
		want       mgl32.Vec3
	}{
		{true, true, direct.Vec3().Add(mgl32.Vec3{sky[0] * albedo[0], sky[1] * albedo[1], sky[2] * albedo[2]})},
		{false, true, direct.Vec3()},
		{true, false, direct.Vec3()},
	}
	for i, c := range cases {
		f := newPlaneFixture(t, common.Size{Width: 8, Height: 8}, albedo)
		f.direct.Fill(direct)
		if c.env {
			f.scene.SetEnvironment(uniformSky(t, sky))
		}
		o := DefaultOptions()
		o.MissedRays = c.missedRays
		e := f.effect(t, WithOptions(o))
		f.run(t, e, 2)

		out := e.Output()
		for y := 0; y < out.Size().Height; y++ {
			for x := 0; x < out.Size().Width; x++ {
				if got := out.At(x, y).Vec3(); !got.ApproxEqualThreshold(c.want, 1e-4) {
					t.Fatalf("[case %d] pixel (%d,%d): expected %v, got %v", i, x, y, c.want, got)
				}
			}
		}
	}
}

func TestPlaneConvergesToAlbedoTimesSky(t *testing.T) {
	sky := mgl32.Vec3{0.9, 0.8, 0.6}
	albedo := mgl32.Vec3{0.7, 0.5, 0.3}
	want := mgl32.Vec3{sky[0] * albedo[0], sky[1] * albedo[1], sky[2] * albedo[2]}

	f := newPlaneFixture(t, common.Size{Width: 16, Height: 16}, albedo)
	f.scene.SetEnvironment(uniformSky(t, sky))
	o := DefaultOptions()
	o.SPP = 1
	o.DenoiseIterations = 5
	o.Jitter = 0.5
	p := profiler.NewProfiler()
	e := f.effect(t, WithOptions(o), WithProfiler(p))
	f.run(t, e, 30)

	out := e.Output()
	var mean mgl32.Vec3
	texels := float32(out.Size().Texels())
	for y := 0; y < out.Size().Height; y++ {
		for x := 0; x < out.Size().Width; x++ {
			mean = mean.Add(out.At(x, y).Vec3().Mul(1 / texels))
		}
	}
	if !mean.ApproxEqualThreshold(want, 1e-3) {
		t.Errorf("expected mean %v, got %v", want, mean)
	}
	var variance float32
	for y := 0; y < out.Size().Height; y++ {
		for x := 0; x < out.Size().Width; x++ {
			d := out.At(x, y).Vec3().Sub(mean)
			variance += d.Dot(d) / texels
		}
	}
	if variance > 1e-6 {
		t.Errorf("expected a noise-free result, got variance %v", variance)
	}
	if p.Frames() != 30 {
		t.Errorf("expected 30 profiled frames, got %d", p.Frames())
	}
	if len(p.Stages()) == 0 {
		t.Errorf("expected stage timings")
	}
}

func TestEnvironmentTracking(t *testing.T) {
	f := newPlaneFixture(t, common.Size{Width: 4, Height: 4}, mgl32.Vec3{1, 1, 1})
	e := f.effect(t)
	useEnv := func() bool {
		return e.raymarch.raymarchKernel.defines.Has(kernel.DefineUseEnvMap)
	}
	if useEnv() {
		t.Fatalf("expected no environment variant without a map")
	}

	sky := uniformSky(t, mgl32.Vec3{1, 1, 1})
	f.scene.SetEnvironment(sky)
	if err := e.KeepEnvMapUpdated(); err != nil {
		t.Fatalf("failed to track environment: %v", err)
	}
	if !useEnv() {
		t.Errorf("expected the environment variant for an equirectangular map")
	}
	if !sky.GenerateMipmaps() {
		t.Errorf("expected mipmaps to be enabled")
	}
	if minF, magF := sky.Filters(); minF != environment.FilterLinearMipmapLinear || magF != environment.FilterLinearMipmapLinear {
		t.Errorf("expected trilinear filters, got %v/%v", minF, magF)
	}
	if sky.NeedsUpdate() || sky.Levels() != sky.MaxMipLevel()+1 {
		t.Errorf("expected a full uploaded mip chain, got %d levels", sky.Levels())
	}
	if got := int(e.raymarch.params.MaxEnvMipLevel); got != sky.MaxMipLevel() {
		t.Errorf("expected max mip level %d, got %d", sky.MaxMipLevel(), got)
	}
	atlas := e.raymarch.envAtlas.Generation()

	// unchanged map: nothing is re-uploaded
	if err := e.KeepEnvMapUpdated(); err != nil {
		t.Fatalf("failed to track environment: %v", err)
	}
	if e.raymarch.envAtlas.Generation() != atlas {
		t.Errorf("expected the atlas to be reused")
	}

	sky.SetMapping(environment.MappingUV)
	if err := e.KeepEnvMapUpdated(); err != nil {
		t.Fatalf("failed to track environment: %v", err)
	}
	if useEnv() || e.raymarch.hasEnvironment() {
		t.Errorf("expected non-equirectangular maps to be ignored")
	}

	sky.SetMapping(environment.MappingEquirectangular)
	f.scene.SetEnvironment(nil)
	if err := e.KeepEnvMapUpdated(); err != nil {
		t.Fatalf("failed to track environment: %v", err)
	}
	if useEnv() {
		t.Errorf("expected the environment variant to be dropped with the map")
	}
}

func TestSetOptionsSwitchesVariants(t *testing.T) {
	f := newPlaneFixture(t, common.Size{Width: 8, Height: 8}, mgl32.Vec3{1, 1, 1})
	f.scene.SetEnvironment(uniformSky(t, mgl32.Vec3{1, 1, 1}))
	e := f.effect(t)
	f.run(t, e, 1)
	before := e.raymarch.raymarchKernel.pipeline.PipelineKey()

	o := e.Options()
	o.SPP = 2
	o.DenoiseIterations = 0
	o.Antialias = true
	if err := e.SetOptions(o); err != nil {
		t.Fatalf("failed to set options: %v", err)
	}
	after := e.raymarch.raymarchKernel.pipeline.PipelineKey()
	if after == before {
		t.Fatalf("expected a new ray-march variant")
	}
	if f.r.Pipeline(before) == nil || f.r.Pipeline(after) == nil {
		t.Errorf("expected both variants to stay registered")
	}
	if !e.needsBind {
		t.Errorf("expected the providers to be marked for rebinding")
	}
	f.run(t, e, 2)
	if e.Output() != viewOf(e.compose.output) {
		t.Errorf("expected the standalone composition to produce the output without iterations")
	}
	want := mgl32.Vec3{1, 1, 1}
	if got := e.Output().At(4, 4).Vec3(); !got.ApproxEqualThreshold(want, 1e-4) {
		t.Errorf("expected %v, got %v", want, got)
	}

	o.DenoiseIterations = 2
	if err := e.SetOptions(o); err != nil {
		t.Fatalf("failed to set options: %v", err)
	}
	f.run(t, e, 1)
	if e.Output() != viewOf(e.spatial.output()) {
		t.Errorf("expected the last denoise iteration to produce the output")
	}
	if err := e.SetOptions(Options{}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestSurfaceSwapRebinds(t *testing.T) {
	f := newPlaneFixture(t, common.Size{Width: 4, Height: 4}, mgl32.Vec3{1, 1, 1})
	e := f.effect(t)
	f.run(t, e, 1)
	first := e.inputs

	f.scene.SetSurfaces(f.surfaces(t, f.size, 5))
	f.run(t, e, 1)
	if e.inputs == first {
		t.Errorf("expected new surfaces to be rebound")
	}
}

func TestDispose(t *testing.T) {
	f := newPlaneFixture(t, common.Size{Width: 4, Height: 4}, mgl32.Vec3{1, 1, 1})
	f.scene.SetEnvironment(uniformSky(t, mgl32.Vec3{1, 1, 1}))
	e := f.effect(t)
	f.run(t, e, 1)
	if _, live := f.r.TexelsInUse(); live == 0 {
		t.Fatalf("expected live textures before dispose")
	}

	e.Dispose()
	e.Dispose()
	if texels, live := f.r.TexelsInUse(); texels != 0 || live != 0 {
		t.Errorf("expected every texture to be released, got %d texels in %d textures", texels, live)
	}

	calls := []func() error{
		func() error { return e.Update(f.direct) },
		func() error { return e.SetSize(8, 8, true) },
		func() error { return e.SetOptions(DefaultOptions()) },
		e.KeepEnvMapUpdated,
		func() error { _, err := e.ReadDebugViews(); return err },
	}
	for i, call := range calls {
		if err := call(); !errors.Is(err, ErrDisposed) {
			t.Errorf("[case %d] expected ErrDisposed, got %v", i, err)
		}
	}
}
