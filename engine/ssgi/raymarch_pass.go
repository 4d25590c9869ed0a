package ssgi

import (
	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/environment"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/kernel"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
)

// gBuffer is the pipeline-owned surface data written once per frame and sampled by every
// downstream stage.
type gBuffer struct {
	depth    *texture.Texture
	normal   *texture.Texture
	velocity *texture.Texture
	diffuse  *texture.Texture
}

func (g *gBuffer) resources() []resource {
	return []resource{
		textureAt(shader.AnnotationArgGBuffer, shader.AnnotationArgRoleDepth, viewOf(g.depth)),
		textureAt(shader.AnnotationArgGBuffer, shader.AnnotationArgRoleNormal, viewOf(g.normal)),
		textureAt(shader.AnnotationArgGBuffer, shader.AnnotationArgRoleVelocity, viewOf(g.velocity)),
		textureAt(shader.AnnotationArgGBuffer, shader.AnnotationArgRoleDiffuse, viewOf(g.diffuse)),
	}
}

// raymarchPass resamples the host surfaces into the G-buffer and marches spp rays per pixel
// against it, writing the noisy indirect radiance.
type raymarchPass struct {
	gbuffer  gBuffer
	radiance *texture.Texture

	gbufferKernel  variant
	raymarchKernel variant

	gbufferProvider  bind_group_provider.BindGroupProvider
	raymarchProvider bind_group_provider.BindGroupProvider

	params uniforms.GPURaymarchParams

	envAtlas  *texture.Texture
	envLevels uniforms.GPUEnvLevels
	maxEnvMip int
}

func newRaymarchPass() *raymarchPass {
	return &raymarchPass{
		gbufferKernel:  variant{name: kernel.GBuffer},
		raymarchKernel: variant{name: kernel.Raymarch},
	}
}

// configure selects the ray-march variant for o and the current environment and refreshes the
// uniform block.
//
// Returns:
//   - bool: true when the variant changed
//   - error: a build error
func (p *raymarchPass) configure(ctx *stageContext, o Options) (bool, error) {
	if _, err := p.gbufferKernel.selectDefines(ctx, shader.Defines{}); err != nil {
		return false, err
	}
	changed, err := p.raymarchKernel.selectDefines(ctx, raymarchDefines(o, p.hasEnvironment()))
	if err != nil {
		return false, err
	}
	p.params = raymarchParams(o, p.maxEnvMip)
	p.raymarchKernel.touch(p.raymarchProvider, shader.AnnotationArgRoleStage)
	return changed, nil
}

func (p *raymarchPass) hasEnvironment() bool {
	return p.envAtlas != nil
}

// setEnvironment uploads a packed mip chain, reusing the atlas when its size is unchanged.
func (p *raymarchPass) setEnvironment(ctx *stageContext, label string, pix []float32, levels []environment.Level, maxMip int) error {
	size := common.Size{Width: max(len(pix)/texture.Channels, 1), Height: 1}
	if p.envAtlas == nil || p.envAtlas.Size() != size {
		ctx.release(&p.envAtlas)
		t, err := ctx.allocate(label+"_atlas", size)
		if err != nil {
			return err
		}
		p.envAtlas = t
	}
	copy(p.envAtlas.Pixels(), pix)
	p.envAtlas.Touch()
	p.envLevels = kernel.EnvLevels(levels)
	p.maxEnvMip = maxMip
	return nil
}

func (p *raymarchPass) clearEnvironment(ctx *stageContext) {
	ctx.release(&p.envAtlas)
	p.envLevels = nil
	p.maxEnvMip = 0
}

func (p *raymarchPass) allocate(ctx *stageContext, size common.Size) error {
	return ctx.allocateAll(size, map[string]**texture.Texture{
		"ssgi_gbuffer_depth":    &p.gbuffer.depth,
		"ssgi_gbuffer_normal":   &p.gbuffer.normal,
		"ssgi_gbuffer_velocity": &p.gbuffer.velocity,
		"ssgi_gbuffer_diffuse":  &p.gbuffer.diffuse,
		"ssgi_radiance":         &p.radiance,
	})
}

func (p *raymarchPass) releaseBuffers(ctx *stageContext) {
	releaseProvider(&p.gbufferProvider)
	releaseProvider(&p.raymarchProvider)
	ctx.release(&p.gbuffer.depth, &p.gbuffer.normal, &p.gbuffer.velocity, &p.gbuffer.diffuse, &p.radiance)
}

// bind wires the host surfaces and direct light into both kernels.
func (p *raymarchPass) bind(ctx *stageContext, surfaces texture.SurfaceSet, direct texture.View) error {
	releaseProvider(&p.gbufferProvider)
	releaseProvider(&p.raymarchProvider)

	gb := append(ctx.sharedResources(), p.gbuffer.resources()...)
	gb = append(gb,
		textureAt(shader.AnnotationArgSurface, shader.AnnotationArgRoleDepth, surfaces.Depth),
		textureAt(shader.AnnotationArgSurface, shader.AnnotationArgRoleNormal, surfaces.Normal),
		textureAt(shader.AnnotationArgSurface, shader.AnnotationArgRoleVelocity, surfaces.Velocity),
		textureAt(shader.AnnotationArgSurface, shader.AnnotationArgRoleDiffuse, surfaces.Diffuse),
	)
	provider, err := p.gbufferKernel.bind(ctx, "ssgi gbuffer", gb)
	if err != nil {
		return err
	}
	p.gbufferProvider = provider

	rm := append(ctx.sharedResources(), p.gbuffer.resources()...)
	rm = append(rm,
		uniformAt(shader.AnnotationArgParams, shader.AnnotationArgRoleStage, &p.params),
		textureAt(shader.AnnotationArgDirectLight, "", direct),
		textureAt(shader.AnnotationArgRadiance, "", viewOf(p.radiance)),
	)
	if p.hasEnvironment() {
		rm = append(rm,
			textureAt(shader.AnnotationArgEnvironment, shader.AnnotationArgRolePixels, p.envAtlas),
			uniformAt(shader.AnnotationArgEnvironment, shader.AnnotationArgRoleLevels, p.envLevels),
		)
	}
	provider, err = p.raymarchKernel.bind(ctx, "ssgi raymarch", rm)
	if err != nil {
		return err
	}
	p.raymarchProvider = provider
	return nil
}

func (p *raymarchPass) record(ctx *stageContext, size common.Size) error {
	if err := p.gbufferKernel.dispatch(ctx, p.gbufferProvider, size); err != nil {
		return err
	}
	return p.raymarchKernel.dispatch(ctx, p.raymarchProvider, size)
}
