package environment

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
)

func TestMaxMipLevel(t *testing.T) {
	cases := []struct {
		size common.Size
		exp  int
	}{
		{common.Size{Width: 1, Height: 1}, 0},
		{common.Size{Width: 2, Height: 1}, 1},
		{common.Size{Width: 256, Height: 128}, 8},
		{common.Size{Width: 300, Height: 150}, 8},
		{common.Size{Width: 64, Height: 512}, 9},
	}
	for i, c := range cases {
		if got := MaxMipLevel(c.size); got != c.exp {
			t.Fatalf("[case %d] expected %d for %v, got %d", i, c.exp, c.size, got)
		}
	}
}

func TestMipChainBuiltOnUpdate(t *testing.T) {
	env, err := NewUniform("env", common.Size{Width: 16, Height: 8}, mgl32.Vec3{1, 1, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Levels() != 1 {
		t.Fatalf("expected a single level before mip generation, got %d", env.Levels())
	}

	env.SetGenerateMipmaps(true)
	env.SetFilters(FilterLinearMipmapLinear, FilterLinearMipmapLinear)
	env.MarkNeedsUpdate()

	if got, exp := env.Levels(), env.MaxMipLevel()+1; got != exp {
		t.Fatalf("expected %d levels, got %d", exp, got)
	}
	if env.NeedsUpdate() {
		t.Fatal("expected the update flag to be consumed")
	}

	pix, levels := env.Packed()
	last := levels[len(levels)-1]
	if last.Size != (common.Size{Width: 1, Height: 1}) {
		t.Fatalf("expected 1x1 last level, got %v", last.Size)
	}
	if len(pix) != last.Offset+texture.Channels {
		t.Fatalf("expected packed length %d, got %d", last.Offset+texture.Channels, len(pix))
	}
}

func TestSampleUniformIsConstantAtEveryLod(t *testing.T) {
	radiance := mgl32.Vec3{0.2, 0.4, 0.8}
	env, _ := NewUniform("env", common.Size{Width: 32, Height: 16}, radiance)
	env.SetGenerateMipmaps(true)
	env.MarkNeedsUpdate()

	dirs := []mgl32.Vec3{{0, 1, 0}, {0, -1, 0}, {1, 0, 0}, {0, 0, -1}, {0.3, -0.2, 0.9}}
	lods := []float32{0, 0.5, 2.25, 100}
	for _, d := range dirs {
		for _, lod := range lods {
			got := env.Sample(d, lod)
			if !got.ApproxEqualThreshold(radiance, 1e-5) {
				t.Fatalf("dir %v lod %f: expected %v, got %v", d, lod, radiance, got)
			}
		}
	}
}

func TestDirectionToUV(t *testing.T) {
	cases := []struct {
		dir  mgl32.Vec3
		u, v float32
	}{
		{mgl32.Vec3{0, 0, -1}, 0.5, 0.5},
		{mgl32.Vec3{1, 0, 0}, 0.75, 0.5},
		{mgl32.Vec3{0, 1, 0}, 0.5, 0},
		{mgl32.Vec3{0, -1, 0}, 0.5, 1},
	}
	for i, c := range cases {
		u, v := DirectionToUV(c.dir)
		if math.Abs(float64(u-c.u)) > 1e-5 || math.Abs(float64(v-c.v)) > 1e-5 {
			t.Fatalf("[case %d] expected (%f, %f), got (%f, %f)", i, c.u, c.v, u, v)
		}
	}
}

func TestSampleZeroDirection(t *testing.T) {
	env, _ := NewUniform("env", common.Size{Width: 4, Height: 2}, mgl32.Vec3{1, 1, 1})
	if got := env.Sample(mgl32.Vec3{}, 0); got != (mgl32.Vec3{}) {
		t.Fatalf("expected zero radiance for a zero direction, got %v", got)
	}
}

func TestFromImageLinearizes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	img.Set(1, 0, color.RGBA{R: 128, G: 128, B: 128, A: 255})

	env, err := FromImage("img", img, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Mapping() != MappingEquirectangular {
		t.Fatalf("expected equirectangular mapping, got %v", env.Mapping())
	}
	_, levels := env.Packed()
	if len(levels) != 1 {
		t.Fatalf("expected a single level, got %d", len(levels))
	}
	pix, _ := env.Packed()
	if math.Abs(float64(pix[0]-2)) > 1e-4 {
		t.Fatalf("expected white scaled to 2, got %f", pix[0])
	}
	// sRGB 128 is roughly 0.216 linear.
	if got := pix[4] / 2; math.Abs(float64(got-0.216)) > 0.01 {
		t.Fatalf("expected linearized mid grey, got %f", got)
	}

	if _, err := FromImage("empty", image.NewRGBA(image.Rect(0, 0, 0, 0)), 1); err == nil {
		t.Fatal("expected an error for an empty image")
	}
}
