package kernel

import (
	"math"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
)

// The helpers below follow the WGSL utility library line for line so both backends produce the
// same image up to float rounding.

const normalEpsilon = 1e-4

var lumaWeights = mgl32.Vec3{0.2125, 0.7154, 0.0721}

// Luminance returns the Rec. 709 luma of a linear color.
func Luminance(c mgl32.Vec3) float32 {
	return c.Dot(lumaWeights)
}

// LinearizeDepth converts device depth in [0, 1] to positive view distance.
func LinearizeDepth(d, near, far float32) float32 {
	return near * far / (far - d*(far-near))
}

// ViewPosition reconstructs the view-space position of a pixel from its UV and device depth.
func ViewPosition(u, v, d float32, invProj mgl32.Mat4) mgl32.Vec3 {
	p := invProj.Mul4x1(mgl32.Vec4{u*2 - 1, 1 - v*2, d, 1})
	return p.Vec3().Mul(1 / p[3])
}

// ProjectUV projects a view-space position. The result holds UV in x, y and device depth in z.
func ProjectUV(p mgl32.Vec3, proj mgl32.Mat4) mgl32.Vec3 {
	clip := proj.Mul4x1(p.Vec4(1))
	ndc := clip.Vec3().Mul(1 / clip[3])
	return mgl32.Vec3{ndc[0]*0.5 + 0.5, 0.5 - ndc[1]*0.5, ndc[2]}
}

// pixelUV returns the UV of a pixel center.
func pixelUV(x, y int, size common.Size) (float32, float32) {
	return (float32(x) + 0.5) / float32(size.Width), (float32(y) + 0.5) / float32(size.Height)
}

// texelCoord maps a UV to the texel of t containing it, the CPU side of uv_index.
func texelCoord(t texture.View, u, v float32) (int, int) {
	size := t.Size()
	return int(math.Floor(float64(u * float32(size.Width)))), int(math.Floor(float64(v * float32(size.Height))))
}

func fetchUV(t texture.View, u, v float32) mgl32.Vec4 {
	x, y := texelCoord(t, u, v)
	return t.At(x, y)
}

func insideUV(u, v float32) bool {
	return u >= 0 && u <= 1 && v >= 0 && v <= 1
}

func safeNormalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.Len() <= normalEpsilon {
		return mgl32.Vec3{}
	}
	return v.Normalize()
}

func mix3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Mul(1 - t).Add(b.Mul(t))
}

func mix(a, b, t float32) float32 {
	return a*(1-t) + b*t
}

func reflect(i, n mgl32.Vec3) mgl32.Vec3 {
	return i.Sub(n.Mul(2 * n.Dot(i)))
}

func sqrt(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

func exp(x float32) float32 {
	return float32(math.Exp(float64(x)))
}

func pow(x, y float32) float32 {
	return float32(math.Pow(float64(x), float64(y)))
}

func abs(x float32) float32 {
	return float32(math.Abs(float64(x)))
}

// pcg is the PCG hash used to seed and advance the per-pixel random sequence.
func pcg(v uint32) uint32 {
	state := v*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}

// rng is the per-pixel random sequence; next returns values in [0, 1).
type rng uint32

func (r *rng) next() float32 {
	*r = rng(pcg(uint32(*r)))
	return float32(uint32(*r)>>8) / 16777216
}

func pixelSeed(i, frame uint32) rng {
	return rng(pcg(i ^ pcg(frame+0x68bc21eb)))
}

func orthonormalBasis(n mgl32.Vec3) mgl32.Mat3 {
	up := mgl32.Vec3{0, 1, 0}
	if abs(n[1]) > 0.999 {
		up = mgl32.Vec3{1, 0, 0}
	}
	t := up.Cross(n).Normalize()
	b := n.Cross(t)
	return mgl32.Mat3FromCols(t, b, n)
}

// cosineHemisphere draws a cosine-weighted direction around n.
func cosineHemisphere(n mgl32.Vec3, u1, u2 float32) mgl32.Vec3 {
	r := sqrt(u1)
	phi := 2 * math.Pi * float64(u2)
	local := mgl32.Vec3{r * float32(math.Cos(phi)), r * float32(math.Sin(phi)), sqrt(max(0, 1-u1))}
	return orthonormalBasis(n).Mul3x1(local).Normalize()
}

// uniformHemisphere draws a uniformly distributed direction around n.
func uniformHemisphere(n mgl32.Vec3, u1, u2 float32) mgl32.Vec3 {
	z := u1
	r := sqrt(max(0, 1-z*z))
	phi := 2 * math.Pi * float64(u2)
	local := mgl32.Vec3{r * float32(math.Cos(phi)), r * float32(math.Sin(phi)), z}
	return orthonormalBasis(n).Mul3x1(local).Normalize()
}
