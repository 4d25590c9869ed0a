package kernel

import (
	"github.com/Carmen-Shannon/oxy-ssgi/engine/camera"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/go-gl/mathgl/mgl32"
)

// gbufferKernel resamples the host surfaces to the dispatch size. The depth output holds device
// depth, linear depth and curvature; background pixels are zeroed except for depth.
func gbufferKernel(b pipeline.Bindings) (pipeline.RowFunc, error) {
	r := &resolver{b: b}
	cam := resolveUniform[*camera.GPUCameraUniform](r, "camera")
	depth := r.texture("surface_depth")
	normal := r.texture("surface_normal")
	velocity := r.texture("surface_velocity")
	diffuse := r.texture("surface_diffuse")
	outDepth := r.output("gbuffer_depth")
	outNormal := r.output("gbuffer_normal")
	outVelocity := r.output("gbuffer_velocity")
	outDiffuse := r.output("gbuffer_diffuse")
	if r.err != nil {
		return nil, r.err
	}

	size := b.Size()
	normalAt := func(x, y int) mgl32.Vec3 {
		if depth.At(x, y)[0] >= 1 {
			return mgl32.Vec3{}
		}
		return normal.At(x, y).Vec3()
	}

	return func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < size.Width; x++ {
				u, v := pixelUV(x, y, size)
				sx, sy := texelCoord(depth, u, v)
				d := depth.At(sx, sy)[0]
				if d >= 1 {
					outDepth.Set(x, y, mgl32.Vec4{1, cam.Far, 0, 0})
					outNormal.Set(x, y, mgl32.Vec4{})
					outVelocity.Set(x, y, mgl32.Vec4{})
					outDiffuse.Set(x, y, mgl32.Vec4{})
					continue
				}

				raw := normal.At(sx, sy)
				n := safeNormalize(raw.Vec3())

				var curvature, taps float32
				for _, nb := range [2]mgl32.Vec3{normalAt(sx+1, sy), normalAt(sx, sy+1)} {
					if nb.Len() > normalEpsilon {
						curvature += n.Sub(nb.Normalize()).Len()
						taps++
					}
				}
				if taps > 0 {
					curvature /= taps
				}

				vel := velocity.At(sx, sy)
				outDepth.Set(x, y, mgl32.Vec4{d, LinearizeDepth(d, cam.Near, cam.Far), curvature, 0})
				outNormal.Set(x, y, n.Vec4(mgl32.Clamp(raw[3], 0, 1)))
				outVelocity.Set(x, y, mgl32.Vec4{vel[0], vel[1], 0, 0})
				outDiffuse.Set(x, y, diffuse.At(sx, sy))
			}
		}
	}, nil
}
