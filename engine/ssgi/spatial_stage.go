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

// spatialIteration is one à-trous pass with its own uniform block and provider.
type spatialIteration struct {
	params   uniforms.GPUDenoiseParams
	provider bind_group_provider.BindGroupProvider
}

// spatialStage runs a fixed number of edge-aware à-trous iterations, ping-ponging between two
// buffers. The last iteration runs the composing variant and writes the final color.
type spatialStage struct {
	filter     variant
	composing  variant
	ping       [2]*texture.Texture
	iterations []spatialIteration
}

func newSpatialStage() *spatialStage {
	return &spatialStage{
		filter:    variant{name: kernel.Denoise},
		composing: variant{name: kernel.Denoise},
	}
}

// configure rebuilds the per-iteration parameters. Changing the iteration count drops every
// provider.
//
// Returns:
//   - bool: true when the providers must be rebound
//   - error: a build error
func (s *spatialStage) configure(ctx *stageContext, o Options) (bool, error) {
	if _, err := s.filter.selectDefines(ctx, denoiseDefines(false)); err != nil {
		return false, err
	}
	if _, err := s.composing.selectDefines(ctx, denoiseDefines(true)); err != nil {
		return false, err
	}

	rebind := len(s.iterations) != o.DenoiseIterations
	if rebind {
		s.releaseProviders()
		s.iterations = make([]spatialIteration, o.DenoiseIterations)
	}
	for i := range s.iterations {
		it := &s.iterations[i]
		it.params = denoiseParams(o, i)
		s.kernelFor(i).touch(it.provider, shader.AnnotationArgRoleStage)
	}
	return rebind, nil
}

func (s *spatialStage) kernelFor(i int) *variant {
	if i == len(s.iterations)-1 {
		return &s.composing
	}
	return &s.filter
}

func (s *spatialStage) allocate(ctx *stageContext, size common.Size) error {
	return ctx.allocateAll(size, map[string]**texture.Texture{
		"ssgi_denoise_0": &s.ping[0],
		"ssgi_denoise_1": &s.ping[1],
	})
}

func (s *spatialStage) releaseProviders() {
	for i := range s.iterations {
		releaseProvider(&s.iterations[i].provider)
	}
}

func (s *spatialStage) releaseBuffers(ctx *stageContext) {
	s.releaseProviders()
	ctx.release(&s.ping[0], &s.ping[1])
}

// bind chains the iterations: the first reads input, iteration i writes ping[i%2], and
// iteration i+1 reads what iteration i wrote.
//
// Parameters:
//   - ctx: the stage context
//   - input: the temporal stage output
//   - gb: the frame's G-buffer
//   - direct: the host direct light
//   - compose: the composition coefficients bound to the last iteration
//
// Returns:
//   - error: a binding error
func (s *spatialStage) bind(ctx *stageContext, input texture.View, gb *gBuffer, direct texture.View, compose *uniforms.GPUComposeParams) error {
	s.releaseProviders()
	src := input
	for i := range s.iterations {
		it := &s.iterations[i]
		dst := s.ping[i%2]
		res := append(ctx.sharedResources(), gb.resources()...)
		res = append(res,
			uniformAt(shader.AnnotationArgParams, shader.AnnotationArgRoleStage, &it.params),
			uniformAt(shader.AnnotationArgParams, shader.AnnotationArgRoleCompose, compose),
			textureAt(shader.AnnotationArgStageInput, "", src),
			textureAt(shader.AnnotationArgStageOutput, "", dst),
			textureAt(shader.AnnotationArgDirectLight, "", direct),
		)
		p, err := s.kernelFor(i).bind(ctx, fmt.Sprintf("ssgi denoise %d", i), res)
		if err != nil {
			return err
		}
		it.provider = p
		src = dst
	}
	return nil
}

func (s *spatialStage) record(ctx *stageContext, size common.Size) error {
	for i := range s.iterations {
		if err := s.kernelFor(i).dispatch(ctx, s.iterations[i].provider, size); err != nil {
			return err
		}
	}
	return nil
}

// output returns the buffer written by the last iteration, or nil without iterations.
func (s *spatialStage) output() *texture.Texture {
	if len(s.iterations) == 0 {
		return nil
	}
	return s.ping[(len(s.iterations)-1)%2]
}
