package kernel

import (
	"math"

	"github.com/Carmen-Shannon/oxy-ssgi/engine/environment"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
)

// envSampler reads the packed environment atlas the way the ray-march WGSL does: bilinear
// within a level with horizontal wrap and vertical clamp, linear between levels.
type envSampler struct {
	pixels []float32
	levels uniforms.GPUEnvLevels
}

func newEnvSampler(pixels texture.View, levels uniforms.GPUEnvLevels) envSampler {
	return envSampler{pixels: pixels.Pixels(), levels: levels}
}

func (e envSampler) fetch(l uniforms.GPUEnvLevel, x, y int) mgl32.Vec3 {
	w, h := int(l.Width), int(l.Height)
	x = ((x % w) + w) % w
	y = min(max(y, 0), h-1)
	i := (int(l.Offset) + y*w + x) * texture.Channels
	if i+2 >= len(e.pixels) {
		return mgl32.Vec3{}
	}
	return mgl32.Vec3{e.pixels[i], e.pixels[i+1], e.pixels[i+2]}
}

func (e envSampler) bilinear(l uniforms.GPUEnvLevel, u, v float32) mgl32.Vec3 {
	px := u*float32(l.Width) - 0.5
	py := v*float32(l.Height) - 0.5
	bx := float32(math.Floor(float64(px)))
	by := float32(math.Floor(float64(py)))
	fx, fy := px-bx, py-by
	x, y := int(bx), int(by)
	top := mix3(e.fetch(l, x, y), e.fetch(l, x+1, y), fx)
	bottom := mix3(e.fetch(l, x, y+1), e.fetch(l, x+1, y+1), fx)
	return mix3(top, bottom, fy)
}

// sample returns the non-negative radiance in world direction dir at fractional level lod.
func (e envSampler) sample(dir mgl32.Vec3, lod float32) mgl32.Vec3 {
	if len(e.levels) == 0 || e.levels[0].Width == 0 || dir.Len() == 0 {
		return mgl32.Vec3{}
	}
	u, v := environment.DirectionToUV(dir)
	count := len(e.levels)
	l := mgl32.Clamp(lod, 0, float32(count-1))
	lo := int(l)
	hi := min(lo+1, count-1)
	t := l - float32(lo)
	c := mix3(e.bilinear(e.levels[lo], u, v), e.bilinear(e.levels[hi], u, v), t)
	return mgl32.Vec3{max(c[0], 0), max(c[1], 0), max(c[2], 0)}
}

// EnvLevels converts the level layout of a packed environment map to its GPU table. Offsets
// move from float indices to texel indices.
func EnvLevels(levels []environment.Level) uniforms.GPUEnvLevels {
	out := make(uniforms.GPUEnvLevels, len(levels))
	for i, l := range levels {
		out[i] = uniforms.GPUEnvLevel{
			Offset: uint32(l.Offset / texture.Channels),
			Width:  uint32(l.Size.Width),
			Height: uint32(l.Size.Height),
		}
	}
	return out
}
