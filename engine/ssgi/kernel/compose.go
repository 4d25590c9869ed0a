package kernel

import (
	"math"

	"github.com/Carmen-Shannon/oxy-ssgi/engine/camera"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
)

// FresnelSchlick returns the Schlick approximation of reflectance at the given cosine.
func FresnelSchlick(f0, cosTheta float32) float32 {
	return f0 + (1-f0)*pow(1-mgl32.Clamp(cosTheta, 0, 1), 5)
}

// AlbedoTint returns the hue of albedo at full value with its saturation boosted, the color
// metals tint their reflections with.
func AlbedoTint(albedo mgl32.Vec3, boost float32) mgl32.Vec3 {
	h, s, _ := colorful.Color{R: float64(albedo[0]), G: float64(albedo[1]), B: float64(albedo[2])}.Hsv()
	c := colorful.Hsv(h, math.Min(1, s*(1+float64(boost))), 1)
	return mgl32.Vec3{float32(c.R), float32(c.G), float32(c.B)}
}

// ComposePixel merges filtered indirect light with direct light. Rough dielectrics take the
// indirect light modulated by albedo; smooth and metallic surfaces take it as a reflection,
// tinted by the albedo hue in proportion to metalness.
//
// Parameters:
//   - indirect: the filtered indirect radiance
//   - direct: the host's direct lighting
//   - albedo: the diffuse albedo
//   - metalness: in [0, 1]
//   - roughness: in [0, 1]
//   - n: the view-space normal
//   - v: the normalized direction from the surface to the eye
//   - p: the composition parameters
//
// Returns:
//   - mgl32.Vec3: the final color
func ComposePixel(indirect, direct, albedo mgl32.Vec3, metalness, roughness float32, n, v mgl32.Vec3, p *uniforms.GPUComposeParams) mgl32.Vec3 {
	fresnel := FresnelSchlick(p.F0, n.Dot(v))
	blend := mgl32.Clamp(mix(fresnel, 1, metalness)*(1-roughness)*(1+p.LumaWeight*(1-Luminance(albedo))), 0, 1)
	tint := AlbedoTint(albedo, p.SaturationBoost)
	tinted := indirect
	if tl := Luminance(tint); tl > 1e-4 {
		tinted = tint.Mul(Luminance(indirect) / tl)
	}
	specular := mix3(indirect, tinted, metalness)
	diffuse := mgl32.Vec3{indirect[0] * albedo[0], indirect[1] * albedo[1], indirect[2] * albedo[2]}
	return direct.Add(mix3(diffuse, specular, blend))
}

// composeKernel composes color_in directly when the spatial filter is disabled.
func composeKernel(b pipeline.Bindings) (pipeline.RowFunc, error) {
	r := &resolver{b: b}
	cam := resolveUniform[*camera.GPUCameraUniform](r, "camera")
	comp := composer{
		params:  resolveUniform[*uniforms.GPUComposeParams](r, "compose_params"),
		direct:  r.texture("direct_light"),
		diffuse: r.texture("gbuffer_diffuse"),
	}
	in := r.texture("color_in")
	depth := r.texture("gbuffer_depth")
	normal := r.texture("gbuffer_normal")
	out := r.output("color_out")
	if r.err != nil {
		return nil, r.err
	}
	comp.invProj = mgl32.Mat4(cam.InverseProjection)
	size := b.Size()

	return func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < size.Width; x++ {
				u, v := pixelUV(x, y, size)
				g := depth.At(x, y)
				if g[0] >= 1 {
					out.Set(x, y, comp.directAt(u, v).Vec4(1))
					continue
				}
				out.Set(x, y, comp.compose(x, y, u, v, g[0], in.At(x, y).Vec3(), normal.At(x, y)))
			}
		}
	}, nil
}
