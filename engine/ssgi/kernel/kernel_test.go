package kernel

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/camera"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/environment"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
)

func raymarchDefines(missed, env bool) shader.Defines {
	return shader.Defines{}.
		SetInt(DefineSteps, 20).
		SetInt(DefineRefineSteps, 5).
		SetInt(DefineSPP, 4).
		SetFlag(DefineMissedRays, missed).
		SetFlag(DefineUseEnvMap, env)
}

func variants() map[Name][]shader.Defines {
	return map[Name][]shader.Defines{
		GBuffer:  {{}},
		Raymarch: {raymarchDefines(true, true), raymarchDefines(false, false), raymarchDefines(true, false)},
		Temporal: {
			shader.Defines{}.SetInt(DefineCorrectionRadius, 1),
			shader.Defines{}.SetInt(DefineCorrectionRadius, 0).SetFlag(DefineReflectionsOnly, true),
		},
		Denoise: {{}, shader.Defines{}.SetFlag(DefineCompose, true)},
		Compose: {{}},
	}
}

func build(t *testing.T, name Name, defines shader.Defines) pipeline.Pipeline {
	t.Helper()
	p, err := Build(shader.NewVariantCache(0), name, defines)
	if err != nil {
		t.Fatalf("failed to build %s: %v", name, err)
	}
	return p
}

// bind creates a provider that assigns each resource to the binding of the named variable.
func bind(t *testing.T, p pipeline.Pipeline, resources map[string]any) bind_group_provider.BindGroupProvider {
	t.Helper()
	var opts []bind_group_provider.BindGroupProviderOption
	for name, res := range resources {
		binding, ok := p.Shader().BindGroupFromVarName(0, name)
		if !ok {
			continue
		}
		switch v := res.(type) {
		case texture.View:
			opts = append(opts, bind_group_provider.WithTexture(binding, v))
		case bind_group_provider.Uniform:
			opts = append(opts, bind_group_provider.WithUniform(binding, v))
		default:
			t.Fatalf("resource %s has unsupported type %T", name, res)
		}
	}
	return bind_group_provider.NewBindGroupProvider(p.PipelineKey(), opts...)
}

func run(t *testing.T, p pipeline.Pipeline, resources map[string]any, size common.Size) {
	t.Helper()
	rows, err := p.Kernel()(pipeline.NewBindings(p.Shader(), bind(t, p, resources), size))
	if err != nil {
		t.Fatalf("kernel %s: %v", p.PipelineKey(), err)
	}
	rows(0, size.Height)
}

func newTex(t *testing.T, label string, size common.Size, fill mgl32.Vec4) *texture.Texture {
	t.Helper()
	tex, err := texture.New(label, size)
	if err != nil {
		t.Fatalf("failed to allocate %s: %v", label, err)
	}
	tex.Fill(fill)
	return tex
}

// planeScene is a camera-facing diffuse plane filling the view at a fixed distance.
type planeScene struct {
	size   common.Size
	cam    camera.GPUCameraUniform
	frame  uniforms.GPUFrameUniform
	albedo mgl32.Vec3

	surfaceDepth, surfaceNormal, surfaceVelocity, surfaceDiffuse, direct *texture.Texture
	depth, normal, velocity, diffuse                                     *texture.Texture
}

func newPlaneScene(t *testing.T, size common.Size, distance, roughness float32, albedo mgl32.Vec3) *planeScene {
	t.Helper()
	c := camera.NewCamera()
	s := &planeScene{
		size:   size,
		cam:    c.Uniform(size),
		albedo: albedo,
		frame: uniforms.GPUFrameUniform{
			Resolution:      [2]float32{float32(size.Width), float32(size.Height)},
			InputResolution: [2]float32{float32(size.Width), float32(size.Height)},
		},
	}
	n, f := s.cam.Near, s.cam.Far
	d := (f - n*f/distance) / (f - n)
	s.surfaceDepth = newTex(t, "surface depth", size, mgl32.Vec4{d, 0, 0, 0})
	s.surfaceNormal = newTex(t, "surface normal", size, mgl32.Vec4{0, 0, 1, roughness})
	s.surfaceVelocity = newTex(t, "surface velocity", size, mgl32.Vec4{})
	s.surfaceDiffuse = newTex(t, "surface diffuse", size, albedo.Vec4(0))
	s.direct = newTex(t, "direct", size, mgl32.Vec4{})
	s.depth = newTex(t, "gbuffer depth", size, mgl32.Vec4{})
	s.normal = newTex(t, "gbuffer normal", size, mgl32.Vec4{})
	s.velocity = newTex(t, "gbuffer velocity", size, mgl32.Vec4{})
	s.diffuse = newTex(t, "gbuffer diffuse", size, mgl32.Vec4{})

	run(t, build(t, GBuffer, shader.Defines{}), map[string]any{
		"camera":           &s.cam,
		"frame":            &s.frame,
		"surface_depth":    s.surfaceDepth,
		"surface_normal":   s.surfaceNormal,
		"surface_velocity": s.surfaceVelocity,
		"surface_diffuse":  s.surfaceDiffuse,
		"gbuffer_depth":    s.depth,
		"gbuffer_normal":   s.normal,
		"gbuffer_velocity": s.velocity,
		"gbuffer_diffuse":  s.diffuse,
	}, size)
	return s
}

func packedEnv(t *testing.T, m *environment.Map) (*texture.Texture, uniforms.GPUEnvLevels) {
	t.Helper()
	pix, levels := m.Packed()
	tex := newTex(t, "env", common.Size{Width: len(pix) / texture.Channels, Height: 1}, mgl32.Vec4{})
	copy(tex.Pixels(), pix)
	return tex, EnvLevels(levels)
}

func TestBuildEveryVariant(t *testing.T) {
	cache := shader.NewVariantCache(0)
	keys := make(map[string]bool)
	for name, list := range variants() {
		for i, defines := range list {
			p, err := Build(cache, name, defines)
			if err != nil {
				t.Fatalf("[case %s %d] unexpected error: %v", name, i, err)
			}
			if keys[p.PipelineKey()] {
				t.Fatalf("[case %s %d] duplicate pipeline key %s", name, i, p.PipelineKey())
			}
			keys[p.PipelineKey()] = true
			if p.Kernel() == nil {
				t.Fatalf("[case %s %d] expected a CPU kernel", name, i)
			}
			if _, ok := p.Shader().BindingForRole(shader.AnnotationArgParams, shader.AnnotationArgRoleFrame); !ok {
				t.Errorf("[case %s %d] expected a frame uniform binding", name, i)
			}
		}
	}
	if cache.Builds() != len(keys) {
		t.Errorf("expected %d builds, got %d", len(keys), cache.Builds())
	}
}

func TestOptionalBindingsFollowDefines(t *testing.T) {
	withEnv := build(t, Raymarch, raymarchDefines(true, true))
	withoutEnv := build(t, Raymarch, raymarchDefines(true, false))
	if _, ok := withEnv.Shader().BindingForRole(shader.AnnotationArgEnvironment, shader.AnnotationArgRolePixels); !ok {
		t.Error("expected env pixels when USE_ENVMAP is set")
	}
	if _, ok := withoutEnv.Shader().BindingForRole(shader.AnnotationArgEnvironment, shader.AnnotationArgRolePixels); ok {
		t.Error("expected no env pixels without USE_ENVMAP")
	}

	composing := build(t, Denoise, shader.Defines{}.SetFlag(DefineCompose, true))
	plain := build(t, Denoise, shader.Defines{})
	if len(composing.Shader().Bindings()) <= len(plain.Shader().Bindings()) {
		t.Errorf("expected the composing iteration to declare more bindings (%d vs %d)",
			len(composing.Shader().Bindings()), len(plain.Shader().Bindings()))
	}
}

func TestKernelsPassNaga(t *testing.T) {
	for name, list := range variants() {
		for i, defines := range list {
			p := build(t, name, defines)
			if err := shader.Validate(p.Shader()); err != nil {
				t.Skipf("[case %s %d] naga could not validate this variant: %v", name, i, err)
			}
		}
	}
}

func TestBuildErrors(t *testing.T) {
	cache := shader.NewVariantCache(0)
	if _, err := Build(cache, "ssgi_nope", shader.Defines{}); !errors.Is(err, ErrUnknownKernel) {
		t.Fatalf("expected ErrUnknownKernel, got %v", err)
	}
	if _, err := Build(cache, Raymarch, shader.Defines{}.SetInt(DefineSPP, 1)); err == nil {
		t.Fatal("expected an error for a variant missing STEPS")
	}
	if _, err := Source("ssgi_nope"); !errors.Is(err, ErrUnknownKernel) {
		t.Fatalf("expected ErrUnknownKernel from Source, got %v", err)
	}
}

func TestGBufferResolve(t *testing.T) {
	size := common.Size{Width: 4, Height: 4}
	s := newPlaneScene(t, size, 3, 0.5, mgl32.Vec3{0.8, 0.5, 0.2})

	g := s.depth.At(1, 1)
	if abs(g[1]-3) > 1e-3 {
		t.Fatalf("expected linear depth 3, got %v", g[1])
	}
	if g[2] != 0 {
		t.Fatalf("expected zero curvature on a plane, got %v", g[2])
	}
	if got := s.normal.At(2, 2); !got.ApproxEqual(mgl32.Vec4{0, 0, 1, 0.5}) {
		t.Fatalf("unexpected normal %v", got)
	}

	// Punch a background hole and resolve at half resolution.
	s.surfaceDepth.Set(3, 3, mgl32.Vec4{1, 0, 0, 0})
	half := common.Size{Width: 2, Height: 2}
	out := map[string]*texture.Texture{}
	for _, n := range []string{"gbuffer_depth", "gbuffer_normal", "gbuffer_velocity", "gbuffer_diffuse"} {
		out[n] = newTex(t, n, half, mgl32.Vec4{9, 9, 9, 9})
	}
	frame := uniforms.GPUFrameUniform{Resolution: [2]float32{2, 2}, InputResolution: [2]float32{4, 4}}
	run(t, build(t, GBuffer, shader.Defines{}), map[string]any{
		"camera":           &s.cam,
		"frame":            &frame,
		"surface_depth":    s.surfaceDepth,
		"surface_normal":   s.surfaceNormal,
		"surface_velocity": s.surfaceVelocity,
		"surface_diffuse":  s.surfaceDiffuse,
		"gbuffer_depth":    out["gbuffer_depth"],
		"gbuffer_normal":   out["gbuffer_normal"],
		"gbuffer_velocity": out["gbuffer_velocity"],
		"gbuffer_diffuse":  out["gbuffer_diffuse"],
	}, half)

	if got := out["gbuffer_depth"].At(1, 1); got[0] != 1 || got[1] != s.cam.Far {
		t.Fatalf("expected the background marker at (1,1), got %v", got)
	}
	if got := out["gbuffer_diffuse"].At(1, 1); got != (mgl32.Vec4{}) {
		t.Fatalf("expected zero albedo on background, got %v", got)
	}
	if got := out["gbuffer_diffuse"].At(0, 0); !got.Vec3().ApproxEqual(s.albedo) {
		t.Fatalf("expected albedo %v at (0,0), got %v", s.albedo, got)
	}
	// (1,0) samples (3,1), whose right and lower neighbors are both surface.
	if got := out["gbuffer_depth"].At(1, 0); got[2] != 0 {
		t.Fatalf("expected zero curvature at (1,0), got %v", got[2])
	}
}

func TestRaymarchMissPolicy(t *testing.T) {
	size := common.Size{Width: 8, Height: 8}
	s := newPlaneScene(t, size, 3, 1, mgl32.Vec3{0.8, 0.8, 0.8})
	s.depth.Set(0, 0, mgl32.Vec4{1, s.cam.Far, 0, 0})

	e := mgl32.Vec3{0.5, 0.6, 0.7}
	env, err := environment.NewUniform("sky", common.Size{Width: 16, Height: 8}, e)
	if err != nil {
		t.Fatalf("failed to create environment: %v", err)
	}
	envPixels, envLevels := packedEnv(t, env)
	params := uniforms.GPURaymarchParams{RayDistance: 10, Thickness: 10, JitterRoughness: 1}

	cases := []struct {
		missed, useEnv bool
		want           mgl32.Vec3
	}{
		{true, true, e},
		{false, true, mgl32.Vec3{}},
		{true, false, mgl32.Vec3{}},
		{false, false, mgl32.Vec3{}},
	}
	for i, c := range cases {
		out := newTex(t, "radiance", size, mgl32.Vec4{9, 9, 9, 9})
		run(t, build(t, Raymarch, raymarchDefines(c.missed, c.useEnv)), map[string]any{
			"camera":         &s.cam,
			"frame":          &s.frame,
			"params":         &params,
			"gbuffer_depth":  s.depth,
			"gbuffer_normal": s.normal,
			"direct_light":   s.direct,
			"radiance_out":   out,
			"env_pixels":     envPixels,
			"env_levels":     envLevels,
		}, size)

		if got := out.At(0, 0); got != (mgl32.Vec4{}) {
			t.Errorf("[case %d] expected zero radiance on background, got %v", i, got)
		}
		for y := 0; y < size.Height; y++ {
			for x := 0; x < size.Width; x++ {
				if x == 0 && y == 0 {
					continue
				}
				got := out.At(x, y)
				if !got.Vec3().ApproxEqualThreshold(c.want, 1e-4) {
					t.Fatalf("[case %d] pixel (%d,%d): expected %v, got %v", i, x, y, c.want, got)
				}
				if got[3] != 0 {
					t.Fatalf("[case %d] expected no specular samples on a rough surface, got %v", i, got[3])
				}
			}
		}
	}
}

func TestRaymarchHitsOccluder(t *testing.T) {
	size := common.Size{Width: 16, Height: 16}
	s := newPlaneScene(t, size, 6, 1, mgl32.Vec3{1, 1, 1})
	// The right half is a block three units in front of the wall.
	n, f := s.cam.Near, s.cam.Far
	near := (f - n*f/3) / (f - n)
	for y := 0; y < size.Height; y++ {
		for x := size.Width / 2; x < size.Width; x++ {
			s.depth.Set(x, y, mgl32.Vec4{near, LinearizeDepth(near, n, f), 0, 0})
		}
	}
	s.direct.Fill(mgl32.Vec4{2, 2, 2, 1})
	params := uniforms.GPURaymarchParams{RayDistance: 10, Thickness: 10, JitterRoughness: 1}
	out := newTex(t, "radiance", size, mgl32.Vec4{})
	run(t, build(t, Raymarch, raymarchDefines(true, false)), map[string]any{
		"camera":         &s.cam,
		"frame":          &s.frame,
		"params":         &params,
		"gbuffer_depth":  s.depth,
		"gbuffer_normal": s.normal,
		"direct_light":   s.direct,
		"radiance_out":   out,
	}, size)

	var edge float32
	for y := 0; y < size.Height; y++ {
		edge += out.At(size.Width/2-1, y)[0]
		for x := 0; x < size.Width; x++ {
			got := out.At(x, y)
			if got[0] < 0 || got[0] > 2+1e-4 {
				t.Fatalf("pixel (%d,%d): radiance %v outside [0, 2]", x, y, got)
			}
			if x >= size.Width/2 && got[0] != 0 {
				t.Fatalf("pixel (%d,%d): expected the block to see nothing but sky, got %v", x, y, got)
			}
		}
	}
	if edge == 0 {
		t.Fatal("expected wall pixels next to the block to pick up its light")
	}
}
