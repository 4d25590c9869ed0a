package kernel

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/environment"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
)

// temporalHarness ping-pongs the history of the temporal kernel over a plane scene.
type temporalHarness struct {
	t               *testing.T
	scene           *planeScene
	params          uniforms.GPUTemporalParams
	reflectionsOnly bool

	radiance *texture.Texture
	in, out  [3]*texture.Texture
	result   *texture.Texture
}

func newTemporalHarness(t *testing.T, s *planeScene) *temporalHarness {
	h := &temporalHarness{
		t:     t,
		scene: s,
		params: uniforms.GPUTemporalParams{
			Blend:                  0.9,
			Correction:             1,
			ResetVariance:          1,
			ReprojectionResolution: s.frame.Resolution,
		},
		radiance: newTex(t, "radiance", s.size, mgl32.Vec4{}),
		result:   newTex(t, "temporal", s.size, mgl32.Vec4{}),
	}
	for i := range h.in {
		h.in[i] = newTex(t, "history in", s.size, mgl32.Vec4{})
		h.out[i] = newTex(t, "history out", s.size, mgl32.Vec4{})
	}
	return h
}

func (h *temporalHarness) step() {
	defines := shader.Defines{}.SetInt(DefineCorrectionRadius, 1).SetFlag(DefineReflectionsOnly, h.reflectionsOnly)
	run(h.t, build(h.t, Temporal, defines), map[string]any{
		"camera":             &h.scene.cam,
		"frame":              &h.scene.frame,
		"params":             &h.params,
		"radiance":           h.radiance,
		"gbuffer_depth":      h.scene.depth,
		"gbuffer_normal":     h.scene.normal,
		"reproject_depth":    h.scene.depth,
		"reproject_velocity": h.scene.velocity,
		"accum_in":           h.in[0],
		"moments_in":         h.in[1],
		"geometry_in":        h.in[2],
		"accum_out":          h.out[0],
		"moments_out":        h.out[1],
		"geometry_out":       h.out[2],
		"temporal_out":       h.result,
	}, h.scene.size)
	h.in, h.out = h.out, h.in
}

func TestTemporalFirstFramePassesThrough(t *testing.T) {
	s := newPlaneScene(t, common.Size{Width: 4, Height: 4}, 3, 1, mgl32.Vec3{1, 1, 1})
	h := newTemporalHarness(t, s)
	h.radiance.Fill(mgl32.Vec4{0.3, 0.4, 0.5, 0})
	h.step()

	got := h.result.At(2, 1)
	if !got.ApproxEqual(mgl32.Vec4{0.3, 0.4, 0.5, 1}) {
		t.Fatalf("expected the raw sample with reset variance, got %v", got)
	}
	if n := h.in[0].At(2, 1)[3]; n != 1 {
		t.Fatalf("expected one accumulated sample, got %v", n)
	}
}

func TestTemporalVarianceNeverIncreases(t *testing.T) {
	s := newPlaneScene(t, common.Size{Width: 4, Height: 4}, 3, 1, mgl32.Vec3{1, 1, 1})
	h := newTemporalHarness(t, s)

	prev := float32(math.Inf(1))
	for frame := 0; frame < 24; frame++ {
		v := float32(0.2)
		if frame%3 == 0 {
			v = 1.4
		}
		h.radiance.Fill(mgl32.Vec4{v, v, v, 0})
		h.step()

		variance := h.result.At(1, 2)[3]
		if variance > prev {
			t.Fatalf("[case %d] variance rose from %v to %v", frame, prev, variance)
		}
		prev = variance
	}
	if n := h.in[0].At(1, 2)[3]; n != 24 {
		t.Fatalf("expected 24 accumulated samples, got %v", n)
	}
	if prev >= 1 {
		t.Fatalf("expected the variance to fall below the reset value, got %v", prev)
	}
}

func TestTemporalConvergesToMean(t *testing.T) {
	s := newPlaneScene(t, common.Size{Width: 2, Height: 2}, 3, 1, mgl32.Vec3{1, 1, 1})
	h := newTemporalHarness(t, s)
	h.params.Blend = 0.98
	for frame := 0; frame < 200; frame++ {
		v := float32(0)
		if frame%2 == 0 {
			v = 1
		}
		h.radiance.Fill(mgl32.Vec4{v, v, v, 0})
		h.step()
	}
	if got := h.result.At(0, 0)[0]; abs(got-0.5) > 0.05 {
		t.Fatalf("expected the accumulation to settle near 0.5, got %v", got)
	}
}

func TestTemporalRejectsDisocclusion(t *testing.T) {
	s := newPlaneScene(t, common.Size{Width: 4, Height: 4}, 3, 1, mgl32.Vec3{1, 1, 1})
	cases := []struct {
		name     string
		geometry mgl32.Vec4
		velocity mgl32.Vec4
	}{
		{"depth jump", mgl32.Vec4{0, 0, 1, 6}, mgl32.Vec4{}},
		{"normal flip", mgl32.Vec4{0, 0, -1, 3}, mgl32.Vec4{}},
		{"off screen", mgl32.Vec4{0, 0, 1, 3}, mgl32.Vec4{2, 0, 0, 0}},
		{"cleared", mgl32.Vec4{}, mgl32.Vec4{}},
	}
	for i, c := range cases {
		h := newTemporalHarness(t, s)
		h.in[0].Fill(mgl32.Vec4{5, 5, 5, 10})
		h.in[1].Fill(mgl32.Vec4{5, 25, 0.01, 0})
		h.in[2].Fill(c.geometry)
		s.velocity.Fill(c.velocity)
		h.radiance.Fill(mgl32.Vec4{0.5, 0.5, 0.5, 0})
		h.step()

		got := h.result.At(1, 1)
		if !got.ApproxEqual(mgl32.Vec4{0.5, 0.5, 0.5, 1}) {
			t.Errorf("[case %d] %s: expected history to be rejected, got %v", i, c.name, got)
		}
	}
	s.velocity.Fill(mgl32.Vec4{})
}

func TestTemporalReflectionsOnly(t *testing.T) {
	s := newPlaneScene(t, common.Size{Width: 2, Height: 2}, 3, 1, mgl32.Vec3{1, 1, 1})
	h := newTemporalHarness(t, s)
	h.reflectionsOnly = true
	h.radiance.Fill(mgl32.Vec4{1, 1, 1, 0})
	h.step()
	h.radiance.Fill(mgl32.Vec4{0, 0, 0, 0})
	h.step()
	if got := h.result.At(0, 0)[0]; got != 0 {
		t.Fatalf("expected diffuse samples to bypass accumulation, got %v", got)
	}

	h.radiance.Fill(mgl32.Vec4{1, 1, 1, 1})
	h.step()
	if got := h.result.At(0, 0)[0]; got <= 0 || got >= 1 {
		t.Fatalf("expected specular samples to blend with history, got %v", got)
	}
}

func defaultDenoiseParams() *uniforms.GPUDenoiseParams {
	return &uniforms.GPUDenoiseParams{
		LumaPhi:         10,
		DepthPhi:        2,
		NormalPhi:       50,
		RoughnessPhi:    1,
		JitterRoughness: 1,
		KernelRadius:    2,
		StepSize:        1,
	}
}

func TestEdgeWeight(t *testing.T) {
	p := defaultDenoiseParams()
	up := mgl32.Vec3{0, 0, 1}
	base := EdgeSample{Luma: 0.5, Depth: 1, Roughness: 0.5, Normal: up}
	cases := []struct {
		name string
		q    EdgeSample
		max  float32
		min  float32
	}{
		{"identical", base, 1, 1},
		{"depth step", EdgeSample{Luma: 0.5, Depth: 1.5, Roughness: 0.5, Normal: up}, 1e-3, 0},
		{"depth within phi", EdgeSample{Luma: 0.5, Depth: 1.005, Roughness: 0.5, Normal: up}, 1, 0.5},
		{"orthogonal normal", EdgeSample{Luma: 0.5, Depth: 1, Roughness: 0.5, Normal: mgl32.Vec3{1, 0, 0}}, 1e-3, 0},
		{"rougher", EdgeSample{Luma: 0.5, Depth: 1, Roughness: 1, Normal: up}, 0.61, 0.6},
	}
	for i, c := range cases {
		w := EdgeWeight(base, c.q, 1, p)
		if w > c.max+1e-6 || w < c.min-1e-6 {
			t.Errorf("[case %d] %s: weight %v outside [%v, %v]", i, c.name, w, c.min, c.max)
		}
	}

	p.CurvaturePhi = 10
	curved := base
	curved.Curvature = 1
	if w := EdgeWeight(base, curved, 1, p); w >= 1e-3 {
		t.Errorf("expected curvature to stop the filter, got %v", w)
	}
}

func TestJitteredRoughness(t *testing.T) {
	p := &uniforms.GPUDenoiseParams{Jitter: 0.25, JitterRoughness: 0.5}
	if got := JitteredRoughness(0.5, p); abs(got-0.5) > 1e-6 {
		t.Fatalf("expected 0.5, got %v", got)
	}
	p.Jitter = 1
	if got := JitteredRoughness(1, p); got != 1 {
		t.Fatalf("expected the result to be capped at 1, got %v", got)
	}
}

func denoise(t *testing.T, s *planeScene, params *uniforms.GPUDenoiseParams, in *texture.Texture) *texture.Texture {
	t.Helper()
	out := newTex(t, "denoised", s.size, mgl32.Vec4{})
	run(t, build(t, Denoise, shader.Defines{}), map[string]any{
		"camera":         &s.cam,
		"frame":          &s.frame,
		"params":         params,
		"color_in":       in,
		"gbuffer_depth":  s.depth,
		"gbuffer_normal": s.normal,
		"color_out":      out,
	}, s.size)
	return out
}

func TestDenoisePreservesFlatColor(t *testing.T) {
	s := newPlaneScene(t, common.Size{Width: 8, Height: 8}, 3, 1, mgl32.Vec3{1, 1, 1})
	in := newTex(t, "noisy", s.size, mgl32.Vec4{0.4, 0.5, 0.6, 0.2})
	out := denoise(t, s, defaultDenoiseParams(), in)
	got := out.At(4, 4)
	if !got.Vec3().ApproxEqualThreshold(mgl32.Vec3{0.4, 0.5, 0.6}, 1e-5) {
		t.Fatalf("expected a flat field to stay flat, got %v", got)
	}
	if got[3] >= 0.2 {
		t.Fatalf("expected filtering to reduce variance, got %v", got[3])
	}
}

func TestDenoiseStopsAtDepthEdges(t *testing.T) {
	s := newPlaneScene(t, common.Size{Width: 8, Height: 8}, 3, 1, mgl32.Vec3{1, 1, 1})
	in := newTex(t, "split", s.size, mgl32.Vec4{})
	for y := 0; y < s.size.Height; y++ {
		for x := 0; x < s.size.Width; x++ {
			if x < 4 {
				in.Set(x, y, mgl32.Vec4{1, 0, 0, 0.5})
				continue
			}
			in.Set(x, y, mgl32.Vec4{0, 0, 1, 0.5})
			g := s.depth.At(x, y)
			s.depth.Set(x, y, mgl32.Vec4{g[0], g[1] * 2, 0, 0})
		}
	}
	out := denoise(t, s, defaultDenoiseParams(), in)
	if got := out.At(3, 4); got[2] > 1e-3 {
		t.Fatalf("expected no bleeding across the depth edge, got %v", got)
	}
	if got := out.At(4, 4); got[0] > 1e-3 {
		t.Fatalf("expected no bleeding across the depth edge, got %v", got)
	}
}

func TestDenoiseSkipsBackground(t *testing.T) {
	s := newPlaneScene(t, common.Size{Width: 4, Height: 4}, 3, 1, mgl32.Vec3{1, 1, 1})
	s.depth.Set(0, 0, mgl32.Vec4{1, s.cam.Far, 0, 0})
	in := newTex(t, "in", s.size, mgl32.Vec4{0.5, 0.5, 0.5, 0.1})
	in.Set(0, 0, mgl32.Vec4{100, 100, 100, 0})
	out := denoise(t, s, defaultDenoiseParams(), in)
	if got := out.At(1, 1); got[0] > 0.5+1e-5 {
		t.Fatalf("expected the background texel to be ignored, got %v", got)
	}
	if got := out.At(0, 0); got != (mgl32.Vec4{100, 100, 100, 0}) {
		t.Fatalf("expected background to pass through, got %v", got)
	}
}

func TestComposePixel(t *testing.T) {
	params := &uniforms.GPUComposeParams{F0: 0.04, SaturationBoost: 0.5, LumaWeight: 0.5}
	n := mgl32.Vec3{0, 0, 1}
	cases := []struct {
		name                 string
		indirect, direct     mgl32.Vec3
		albedo               mgl32.Vec3
		metalness, roughness float32
		want                 mgl32.Vec3
	}{
		{"rough dielectric", mgl32.Vec3{1, 1, 1}, mgl32.Vec3{0.1, 0, 0}, mgl32.Vec3{0.5, 0.25, 0.1}, 0, 1, mgl32.Vec3{0.6, 0.25, 0.1}},
		{"black indirect", mgl32.Vec3{}, mgl32.Vec3{0.2, 0.2, 0.2}, mgl32.Vec3{1, 0, 0}, 1, 0, mgl32.Vec3{0.2, 0.2, 0.2}},
		{"smooth white metal", mgl32.Vec3{0.3, 0.6, 0.9}, mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, 1, 0, mgl32.Vec3{0.5579, 0.5579, 0.5579}},
	}
	for i, c := range cases {
		got := ComposePixel(c.indirect, c.direct, c.albedo, c.metalness, c.roughness, n, n, params)
		if !got.ApproxEqualThreshold(c.want, 1e-3) {
			t.Errorf("[case %d] %s: expected %v, got %v", i, c.name, c.want, got)
		}
	}
}

func TestAlbedoTint(t *testing.T) {
	cases := []struct {
		albedo mgl32.Vec3
		boost  float32
		want   mgl32.Vec3
	}{
		{mgl32.Vec3{0.5, 0.5, 0.5}, 1, mgl32.Vec3{1, 1, 1}},
		{mgl32.Vec3{}, 1, mgl32.Vec3{1, 1, 1}},
		{mgl32.Vec3{0.5, 0.25, 0.25}, 0, mgl32.Vec3{1, 0.5, 0.5}},
		{mgl32.Vec3{0.5, 0.25, 0.25}, 1, mgl32.Vec3{1, 0, 0}},
	}
	for i, c := range cases {
		if got := AlbedoTint(c.albedo, c.boost); !got.ApproxEqualThreshold(c.want, 1e-5) {
			t.Errorf("[case %d] expected %v, got %v", i, c.want, got)
		}
	}
}

func TestFresnelSchlick(t *testing.T) {
	if got := FresnelSchlick(0.04, 1); abs(got-0.04) > 1e-6 {
		t.Fatalf("expected f0 at normal incidence, got %v", got)
	}
	if got := FresnelSchlick(0.04, 0); abs(got-1) > 1e-6 {
		t.Fatalf("expected full reflectance at grazing incidence, got %v", got)
	}
}

func TestEnvSamplerMatchesMap(t *testing.T) {
	size := common.Size{Width: 16, Height: 8}
	base, err := texture.New("gradient", size)
	if err != nil {
		t.Fatalf("failed to allocate: %v", err)
	}
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			base.Set(x, y, mgl32.Vec4{float32(x) / 16, float32(y) / 8, float32((x*7+y*3)%5) / 5, 1})
		}
	}
	m := environment.New("gradient", environment.MappingEquirectangular, base)
	m.SetGenerateMipmaps(true)
	pixels, levels := packedEnv(t, m)
	sampler := newEnvSampler(pixels, levels)

	dirs := []mgl32.Vec3{{0, 0, -1}, {1, 0.3, 0}, {-0.2, -0.9, 0.4}, {0, 1, 0}, {0.7, 0, 0.7}}
	lods := []float32{0, 0.5, 1.7, float32(m.MaxMipLevel()), 10}
	for i, d := range dirs {
		for _, lod := range lods {
			want := m.Sample(d, lod)
			if got := sampler.sample(d, lod); !got.ApproxEqualThreshold(want, 1e-4) {
				t.Errorf("[case %d] lod %v: expected %v, got %v", i, lod, want, got)
			}
		}
	}
	if len(levels) != m.Levels() {
		t.Fatalf("expected %d levels, got %d", m.Levels(), len(levels))
	}
}
