package kernel

import (
	"github.com/Carmen-Shannon/oxy-ssgi/engine/camera"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
)

// EdgeSample is what the spatial filter knows about one pixel when weighting it.
type EdgeSample struct {
	Luma      float32
	Depth     float32 // linear view depth
	Roughness float32 // already jittered
	Curvature float32
	Normal    mgl32.Vec3
}

// EdgeWeight returns the edge-stopping weight between the filter center c and a neighbor q.
// Depth differences are measured in percent of the center's view depth, so a step larger than
// DepthPhi percent weighs less than exp(-8).
//
// Parameters:
//   - c: the center pixel
//   - q: the neighbor pixel
//   - lumaScale: LumaPhi times the center's standard deviation, plus a small epsilon
//   - p: the iteration's parameters
//
// Returns:
//   - float32: the weight in [0, 1]
func EdgeWeight(c, q EdgeSample, lumaScale float32, p *uniforms.GPUDenoiseParams) float32 {
	dz := 100 * abs(q.Depth-c.Depth) / max(c.Depth, 1e-4)
	z := dz / max(p.DepthPhi, 1e-4)
	wDepth := exp(-8 * z * z)
	wLuma := exp(-abs(q.Luma-c.Luma) / lumaScale)
	wNormal := float32(1)
	if p.NormalPhi > 0 {
		wNormal = pow(max(c.Normal.Dot(q.Normal), 0), p.NormalPhi)
	}
	wRough := exp(-p.RoughnessPhi * abs(q.Roughness-c.Roughness))
	wCurv := exp(-p.CurvaturePhi * abs(q.Curvature-c.Curvature))
	return wDepth * wLuma * wNormal * wRough * wCurv
}

// JitteredRoughness perturbs roughness the way the filter sees it.
func JitteredRoughness(r float32, p *uniforms.GPUDenoiseParams) float32 {
	return min(1, p.Jitter+p.JitterRoughness*r)
}

func tent(d, radius int) float32 {
	if d < 0 {
		d = -d
	}
	return 1 - float32(d)/float32(radius+1)
}

// composer carries what the composing variant of the filter needs beyond the filter itself.
type composer struct {
	params  *uniforms.GPUComposeParams
	direct  texture.View
	diffuse texture.View
	invProj mgl32.Mat4
}

func (c composer) directAt(u, v float32) mgl32.Vec3 {
	return fetchUV(c.direct, u, v).Vec3()
}

func (c composer) compose(x, y int, u, v, d float32, indirect mgl32.Vec3, gn mgl32.Vec4) mgl32.Vec4 {
	albedo := c.diffuse.At(x, y)
	view := ViewPosition(u, v, d, c.invProj).Mul(-1).Normalize()
	return ComposePixel(indirect, c.directAt(u, v), albedo.Vec3(), albedo[3], gn[3], gn.Vec3(), view, c.params).Vec4(1)
}

// denoiseKernel runs one à-trous iteration over color_in.
func denoiseKernel(b pipeline.Bindings) (pipeline.RowFunc, error) {
	r := &resolver{b: b}
	cam := resolveUniform[*camera.GPUCameraUniform](r, "camera")
	params := resolveUniform[*uniforms.GPUDenoiseParams](r, "params")
	in := r.texture("color_in")
	depth := r.texture("gbuffer_depth")
	normal := r.texture("gbuffer_normal")
	out := r.output("color_out")
	if r.err != nil {
		return nil, r.err
	}

	composing := b.Defines().Has(DefineCompose)
	var comp composer
	if composing {
		comp = composer{
			params:  resolveUniform[*uniforms.GPUComposeParams](r, "compose_params"),
			direct:  r.texture("direct_light"),
			diffuse: r.texture("gbuffer_diffuse"),
			invProj: mgl32.Mat4(cam.InverseProjection),
		}
		if r.err != nil {
			return nil, r.err
		}
	}

	radius := int(params.KernelRadius)
	spacing := int(max(params.StepSize, 1))
	size := b.Size()

	return func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < size.Width; x++ {
				u, v := pixelUV(x, y, size)
				c := in.At(x, y)
				g := depth.At(x, y)
				if g[0] >= 1 {
					if composing {
						out.Set(x, y, comp.directAt(u, v).Vec4(1))
					} else {
						out.Set(x, y, c)
					}
					continue
				}

				gn := normal.At(x, y)
				centerVar := max(c[3], 0)
				lumaScale := params.LumaPhi*sqrt(centerVar) + 1e-4
				center := EdgeSample{
					Luma:      Luminance(c.Vec3()),
					Depth:     g[1],
					Roughness: JitteredRoughness(gn[3], params),
					Curvature: g[2],
					Normal:    gn.Vec3(),
				}

				var sum mgl32.Vec3
				var wsum, vsum float32
				for dy := -radius; dy <= radius; dy++ {
					for dx := -radius; dx <= radius; dx++ {
						px, py := x+dx*spacing, y+dy*spacing
						if px < 0 || py < 0 || px >= size.Width || py >= size.Height {
							continue
						}
						qg := depth.At(px, py)
						if qg[0] >= 1 {
							continue
						}
						qc := in.At(px, py)
						qn := normal.At(px, py)
						w := tent(dx, radius) * tent(dy, radius)
						if dx != 0 || dy != 0 {
							q := EdgeSample{
								Luma:      Luminance(qc.Vec3()),
								Depth:     qg[1],
								Roughness: JitteredRoughness(qn[3], params),
								Curvature: qg[2],
								Normal:    qn.Vec3(),
							}
							w *= EdgeWeight(center, q, lumaScale, params)
						}
						sum = sum.Add(qc.Vec3().Mul(w))
						wsum += w
						vsum += w * w * max(qc[3], 0)
					}
				}
				filtered := sum.Mul(1 / wsum)

				if composing {
					out.Set(x, y, comp.compose(x, y, u, v, g[0], filtered, gn))
				} else {
					out.Set(x, y, filtered.Vec4(vsum/(wsum*wsum)))
				}
			}
		}
	}, nil
}
