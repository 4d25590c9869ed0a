package ssgi

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/kernel"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
)

// history is one side of the temporal ping-pong: accumulated color with its sample count,
// luminance moments with the variance estimate, and the geometry the history was built on.
type history struct {
	accum    *texture.Texture
	moments  *texture.Texture
	geometry *texture.Texture
}

// temporalStage reprojects last frame's history and blends the new radiance into it. Frame N
// reads history[current] and writes history[1-current]; swap flips the roles after the frame.
type temporalStage struct {
	kernel    variant
	history   [2]history
	output    *texture.Texture
	providers [2]bind_group_provider.BindGroupProvider
	current   int

	params        uniforms.GPUTemporalParams
	resetVariance float32
	reprojection  common.Size
}

func newTemporalStage(resetVariance float32) *temporalStage {
	return &temporalStage{
		kernel:        variant{name: kernel.Temporal},
		resetVariance: resetVariance,
	}
}

func (s *temporalStage) configure(ctx *stageContext, o Options) (bool, error) {
	changed, err := s.kernel.selectDefines(ctx, temporalDefines(o))
	if err != nil {
		return false, err
	}
	s.params = temporalParams(o, s.resetVariance, s.reprojection)
	for _, p := range s.providers {
		s.kernel.touch(p, shader.AnnotationArgRoleStage)
	}
	return changed, nil
}

func (s *temporalStage) allocate(ctx *stageContext, size common.Size) error {
	s.current = 0
	targets := map[string]**texture.Texture{"ssgi_temporal": &s.output}
	for i := range s.history {
		h := &s.history[i]
		targets[fmt.Sprintf("ssgi_history_accum_%d", i)] = &h.accum
		targets[fmt.Sprintf("ssgi_history_moments_%d", i)] = &h.moments
		targets[fmt.Sprintf("ssgi_history_geometry_%d", i)] = &h.geometry
	}
	return ctx.allocateAll(size, targets)
}

func (s *temporalStage) releaseBuffers(ctx *stageContext) {
	for i := range s.providers {
		releaseProvider(&s.providers[i])
	}
	for i := range s.history {
		h := &s.history[i]
		ctx.release(&h.accum, &h.moments, &h.geometry)
	}
	ctx.release(&s.output)
}

// bind creates one provider per ping-pong direction.
//
// Parameters:
//   - ctx: the stage context
//   - gb: the frame's G-buffer
//   - radiance: the ray-march output
//   - reprojDepth: the depth used to validate reprojection, from the G-buffer or the host
//   - reprojVelocity: the matching velocity buffer
//
// Returns:
//   - error: a binding error
func (s *temporalStage) bind(ctx *stageContext, gb *gBuffer, radiance, reprojDepth, reprojVelocity texture.View) error {
	s.reprojection = reprojDepth.Size()
	s.params.ReprojectionResolution = [2]float32{float32(s.reprojection.Width), float32(s.reprojection.Height)}

	for i := range s.providers {
		releaseProvider(&s.providers[i])
	}
	for i := range s.providers {
		in, out := &s.history[i], &s.history[1-i]
		res := append(ctx.sharedResources(), gb.resources()...)
		res = append(res,
			uniformAt(shader.AnnotationArgParams, shader.AnnotationArgRoleStage, &s.params),
			textureAt(shader.AnnotationArgRadiance, "", radiance),
			textureAt(shader.AnnotationArgReprojection, shader.AnnotationArgRoleDepth, reprojDepth),
			textureAt(shader.AnnotationArgReprojection, shader.AnnotationArgRoleVelocity, reprojVelocity),
			textureAt(shader.AnnotationArgHistory, shader.AnnotationArgRoleAccumIn, in.accum),
			textureAt(shader.AnnotationArgHistory, shader.AnnotationArgRoleMomentsIn, in.moments),
			textureAt(shader.AnnotationArgHistory, shader.AnnotationArgRoleGeometryIn, in.geometry),
			textureAt(shader.AnnotationArgHistory, shader.AnnotationArgRoleAccumOut, out.accum),
			textureAt(shader.AnnotationArgHistory, shader.AnnotationArgRoleMomentsOut, out.moments),
			textureAt(shader.AnnotationArgHistory, shader.AnnotationArgRoleGeometryOut, out.geometry),
			textureAt(shader.AnnotationArgStageOutput, "", viewOf(s.output)),
		)
		p, err := s.kernel.bind(ctx, fmt.Sprintf("ssgi temporal %d", i), res)
		if err != nil {
			return err
		}
		s.providers[i] = p
	}
	return nil
}

func (s *temporalStage) record(ctx *stageContext, size common.Size) error {
	return s.kernel.dispatch(ctx, s.providers[s.current], size)
}

// swap makes the history written this frame the input of the next one.
func (s *temporalStage) swap() {
	s.current = 1 - s.current
}

// reset discards the accumulated history in place; the next frame outputs its raw sample.
func (s *temporalStage) reset() {
	for _, h := range s.history {
		for _, t := range []*texture.Texture{h.accum, h.moments, h.geometry} {
			if t != nil {
				t.Clear()
			}
		}
	}
}
