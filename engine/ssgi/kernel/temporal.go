package kernel

import (
	"github.com/Carmen-Shannon/oxy-ssgi/engine/camera"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// MaxHistorySamples caps the accumulated sample count stored in the history alpha channel.
	MaxHistorySamples = 1024

	rejected = 1e6

	// History is reused only when the relative linear depth differs by less than
	// maxDepthRatio and the world normals agree to within minNormalDot.
	maxDepthRatio = 0.1
	minNormalDot  = 0.9

	correctionPenalty = 0.05
)

// historyScore rates a history texel against the current surface; lower is better and
// rejected means the texel fails the disocclusion test.
func historyScore(geometry mgl32.Vec4, lin float32, n mgl32.Vec3) float32 {
	if geometry[3] <= 0 {
		return rejected
	}
	dz := abs(geometry[3]-lin) / max(lin, 1e-4)
	dn := geometry.Vec3().Dot(n)
	if dz >= maxDepthRatio || dn <= minNormalDot {
		return rejected
	}
	return dz + (1 - dn)
}

// temporalKernel blends the new radiance into the reprojected history and tracks luminance
// moments for the variance estimate consumed by the spatial filter.
func temporalKernel(b pipeline.Bindings) (pipeline.RowFunc, error) {
	r := &resolver{b: b}
	cam := resolveUniform[*camera.GPUCameraUniform](r, "camera")
	params := resolveUniform[*uniforms.GPUTemporalParams](r, "params")
	radiance := r.texture("radiance")
	depth := r.texture("gbuffer_depth")
	normal := r.texture("gbuffer_normal")
	reprojDepth := r.texture("reproject_depth")
	reprojVelocity := r.texture("reproject_velocity")
	accumIn := r.texture("accum_in")
	momentsIn := r.texture("moments_in")
	geometryIn := r.texture("geometry_in")
	accumOut := r.output("accum_out")
	momentsOut := r.output("moments_out")
	geometryOut := r.output("geometry_out")
	out := r.output("temporal_out")
	if r.err != nil {
		return nil, r.err
	}

	defines := b.Defines()
	radius := max(defines.Int(DefineCorrectionRadius, 0), 0)
	reflectionsOnly := defines.Has(DefineReflectionsOnly)
	camToWorld := mgl32.Mat4(cam.InverseView)
	size := b.Size()
	reset := params.ResetVariance

	return func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < size.Width; x++ {
				cur := radiance.At(x, y)
				g := depth.At(x, y)
				if g[0] >= 1 {
					accumOut.Set(x, y, mgl32.Vec4{})
					momentsOut.Set(x, y, mgl32.Vec4{0, 0, reset, 0})
					geometryOut.Set(x, y, mgl32.Vec4{})
					out.Set(x, y, mgl32.Vec4{0, 0, 0, reset})
					continue
				}

				u, v := pixelUV(x, y, size)
				var n mgl32.Vec3
				if vn := normal.At(x, y).Vec3(); vn.Len() > normalEpsilon {
					n = camToWorld.Mul4x1(vn.Vec4(0)).Vec3().Normalize()
				}

				rx, ry := texelCoord(reprojDepth, u, v)
				lin := g[1]
				if rd := reprojDepth.At(rx, ry)[0]; rd < 1 {
					lin = LinearizeDepth(rd, cam.Near, cam.Far)
				}
				vel := reprojVelocity.At(texelCoord(reprojVelocity, u, v))
				pu, pv := u-vel[0], v-vel[1]

				best := float32(rejected)
				bx, by := 0, 0
				if insideUV(pu, pv) {
					bx, by = texelCoord(accumIn, pu, pv)
					best = historyScore(geometryIn.At(bx, by), lin, n)
					if params.Correction > 0 {
						cx, cy := bx, by
						for dy := -radius; dy <= radius; dy++ {
							for dx := -radius; dx <= radius; dx++ {
								qx, qy := cx+dx, cy+dy
								if (dx == 0 && dy == 0) || qx < 0 || qy < 0 || qx >= size.Width || qy >= size.Height {
									continue
								}
								offset := mgl32.Vec2{float32(dx), float32(dy)}.Len()
								s := historyScore(geometryIn.At(qx, qy), lin, n) + (1-params.Correction)*correctionPenalty*offset
								if s < best {
									best, bx, by = s, qx, qy
								}
							}
						}
					}
				}

				lum := Luminance(cur.Vec3())
				color := cur.Vec3()
				count := float32(1)
				m1, m2 := lum, lum*lum
				variance := reset
				if best < rejected {
					h := accumIn.At(bx, by)
					m := momentsIn.At(bx, by)
					count = min(h[3]+1, MaxHistorySamples)
					alpha := max(1/count, 1-params.Blend)
					if reflectionsOnly {
						alpha = mix(1, alpha, cur[3])
					}
					color = mix3(h.Vec3(), color, alpha)
					m1 = mix(m[0], lum, alpha)
					m2 = mix(m[1], lum*lum, alpha)
					variance = min(m[2], max(m2-m1*m1, 0)/count)
				}

				accumOut.Set(x, y, color.Vec4(count))
				momentsOut.Set(x, y, mgl32.Vec4{m1, m2, variance, 0})
				geometryOut.Set(x, y, n.Vec4(lin))
				out.Set(x, y, color.Vec4(variance))
			}
		}
	}, nil
}
