package kernel

import (
	"github.com/Carmen-Shannon/oxy-ssgi/engine/camera"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
)

// marcher traces screen-space rays against the internal depth buffer.
type marcher struct {
	proj        mgl32.Mat4
	near        float32
	distance    float32
	thickness   float32
	steps       int
	refineSteps int
	depth       texture.View
}

type hit struct {
	ok   bool
	t    float32
	u, v float32
}

func (m marcher) sceneDepth(p mgl32.Vec3) mgl32.Vec4 {
	s := ProjectUV(p, m.proj)
	return fetchUV(m.depth, s[0], s[1])
}

// march steps along dir from origin. A sample hits when the ray lies behind the depth buffer by
// less than the thickness; the hit is then refined by bisection.
func (m marcher) march(origin, dir mgl32.Vec3, offset float32) hit {
	stepLen := 2 * m.distance / float32(m.steps)
	var prevT float32
	for k := 1; k <= m.steps; k++ {
		t := stepLen * (float32(k) + offset)
		q := origin.Add(dir.Mul(t))
		if q[2] >= -m.near {
			break
		}
		s := ProjectUV(q, m.proj)
		if !insideUV(s[0], s[1]) {
			break
		}
		sd := fetchUV(m.depth, s[0], s[1])
		rayDepth := -q[2]
		if sd[0] < 1 && rayDepth > sd[1] && rayDepth-sd[1] < m.thickness {
			lo, hi := prevT, t
			for range m.refineSteps {
				mid := 0.5 * (lo + hi)
				mp := origin.Add(dir.Mul(mid))
				md := m.sceneDepth(mp)
				if md[0] < 1 && -mp[2] > md[1] {
					hi = mid
				} else {
					lo = mid
				}
			}
			end := ProjectUV(origin.Add(dir.Mul(hi)), m.proj)
			return hit{ok: true, t: hi, u: end[0], v: end[1]}
		}
		prevT = t
	}
	return hit{}
}

// attenuation fades hits beyond the configured distance to zero at twice the distance.
func (m marcher) attenuation(t float32) float32 {
	if t <= m.distance {
		return 1
	}
	a := max(1-(t-m.distance)/m.distance, 0)
	return a * a
}

// raymarchKernel writes the mean indirect radiance of SPP rays per pixel, with the fraction of
// specular samples in alpha.
func raymarchKernel(b pipeline.Bindings) (pipeline.RowFunc, error) {
	r := &resolver{b: b}
	cam := resolveUniform[*camera.GPUCameraUniform](r, "camera")
	frame := resolveUniform[*uniforms.GPUFrameUniform](r, "frame")
	params := resolveUniform[*uniforms.GPURaymarchParams](r, "params")
	depth := r.texture("gbuffer_depth")
	normal := r.texture("gbuffer_normal")
	direct := r.texture("direct_light")
	out := r.output("radiance_out")
	if r.err != nil {
		return nil, r.err
	}

	defines := b.Defines()
	useEnv := defines.Has(DefineUseEnvMap)
	sampleMisses := useEnv && defines.Has(DefineMissedRays)
	var env envSampler
	if useEnv {
		pixels := r.texture("env_pixels")
		levels := resolveUniform[uniforms.GPUEnvLevels](r, "env_levels")
		if r.err != nil {
			return nil, r.err
		}
		env = newEnvSampler(pixels, levels)
	}

	spp := max(defines.Int(DefineSPP, 1), 1)
	m := marcher{
		proj:        mgl32.Mat4(cam.Projection),
		near:        cam.Near,
		distance:    params.RayDistance,
		thickness:   params.Thickness,
		steps:       max(defines.Int(DefineSteps, 1), 1),
		refineSteps: max(defines.Int(DefineRefineSteps, 0), 0),
		depth:       depth,
	}
	invProj := mgl32.Mat4(cam.InverseProjection)
	camToWorld := mgl32.Mat4(cam.InverseView)
	size := b.Size()

	return func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < size.Width; x++ {
				g := depth.At(x, y)
				if g[0] >= 1 {
					out.Set(x, y, mgl32.Vec4{})
					continue
				}
				u, v := pixelUV(x, y, size)
				p := ViewPosition(u, v, g[0], invProj)
				view := p.Mul(-1).Normalize()
				gn := normal.At(x, y)
				degenerate := gn.Vec3().Len() < normalEpsilon
				n := view
				if !degenerate {
					n = gn.Vec3().Normalize()
				}
				rough := gn[3]
				specProb := (1 - rough) * (1 - rough)
				origin := p.Add(n.Mul(1e-3 * g[1]))

				state := pixelSeed(uint32(y*size.Width+x), frame.Frame)
				var sum mgl32.Vec3
				var spec float32
				for range spp {
					uLobe := state.next()
					u1 := state.next()
					u2 := state.next()
					uOffset := state.next()

					var dir mgl32.Vec3
					isSpec := false
					switch {
					case degenerate:
						dir = uniformHemisphere(n, u1, u2)
					case uLobe < specProb:
						refl := reflect(view.Mul(-1), n)
						dir = mix3(refl, cosineHemisphere(n, u1, u2), rough*params.JitterRoughness).Normalize()
						if dir.Dot(n) <= 0 {
							dir = refl
						}
						isSpec = true
					default:
						dir = cosineHemisphere(n, u1, u2)
					}

					h := m.march(origin, dir, params.Jitter*(uOffset-0.5))
					switch {
					case h.ok:
						sum = sum.Add(direct.Sample(h.u, h.v).Vec3().Mul(m.attenuation(h.t)))
					case sampleMisses:
						worldDir := camToWorld.Mul4x1(dir.Vec4(0)).Vec3()
						sum = sum.Add(env.sample(worldDir, rough*params.MaxEnvMipLevel))
					}
					if isSpec {
						spec++
					}
				}
				out.Set(x, y, sum.Mul(1/float32(spp)).Vec4(spec/float32(spp)))
			}
		}
	}, nil
}
