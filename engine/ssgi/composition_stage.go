package ssgi

import (
	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/kernel"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
)

// compositionStage owns the composition coefficients. With at least one denoise iteration the
// spatial stage composes inline and this stage only lends it the coefficients; without
// iterations it composes the temporal output itself.
type compositionStage struct {
	kernel   variant
	params   uniforms.GPUComposeParams
	output   *texture.Texture
	provider bind_group_provider.BindGroupProvider
}

func newCompositionStage(params uniforms.GPUComposeParams) *compositionStage {
	return &compositionStage{
		kernel: variant{name: kernel.Compose},
		params: params,
	}
}

func (s *compositionStage) configure(ctx *stageContext) error {
	_, err := s.kernel.selectDefines(ctx, shader.Defines{})
	return err
}

func (s *compositionStage) allocate(ctx *stageContext, size common.Size) error {
	t, err := ctx.allocate("ssgi_composed", size)
	if err != nil {
		return err
	}
	s.output = t
	return nil
}

func (s *compositionStage) releaseBuffers(ctx *stageContext) {
	releaseProvider(&s.provider)
	ctx.release(&s.output)
}

func (s *compositionStage) bind(ctx *stageContext, input texture.View, gb *gBuffer, direct texture.View) error {
	releaseProvider(&s.provider)
	res := append(ctx.sharedResources(), gb.resources()...)
	res = append(res,
		uniformAt(shader.AnnotationArgParams, shader.AnnotationArgRoleCompose, &s.params),
		textureAt(shader.AnnotationArgStageInput, "", input),
		textureAt(shader.AnnotationArgStageOutput, "", viewOf(s.output)),
		textureAt(shader.AnnotationArgDirectLight, "", direct),
	)
	p, err := s.kernel.bind(ctx, "ssgi compose", res)
	if err != nil {
		return err
	}
	s.provider = p
	return nil
}

// unbind drops the provider while the spatial stage composes inline.
func (s *compositionStage) unbind() {
	releaseProvider(&s.provider)
}

func (s *compositionStage) record(ctx *stageContext, size common.Size) error {
	return s.kernel.dispatch(ctx, s.provider, size)
}
