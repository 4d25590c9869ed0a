// Package kernel holds the per-pixel SSGI kernels. Every kernel exists twice: as an annotated
// WGSL source compiled for the WebGPU backend, and as a Go function with the same arithmetic
// run by the CPU backend.
package kernel

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
)

// ErrUnknownKernel is returned by Build for a name outside Names.
var ErrUnknownKernel = errors.New("kernel: unknown kernel")

// Name identifies a kernel. It doubles as the base key of the kernel's variants.
type Name string

const (
	GBuffer  Name = "ssgi_gbuffer"
	Raymarch Name = "ssgi_raymarch"
	Temporal Name = "ssgi_temporal"
	Denoise  Name = "ssgi_denoise"
	Compose  Name = "ssgi_compose"
)

// Compile-time switches understood by the kernels.
const (
	DefineSteps            = "STEPS"
	DefineRefineSteps      = "REFINE_STEPS"
	DefineSPP              = "SPP"
	DefineMissedRays       = "MISSED_RAYS"
	DefineUseEnvMap        = "USE_ENVMAP"
	DefineCorrectionRadius = "CORRECTION_RADIUS"
	DefineReflectionsOnly  = "REFLECTIONS_ONLY"
	DefineCompose          = "COMPOSE"
)

//go:embed assets/gbuffer.wgsl
var gbufferSource string

//go:embed assets/raymarch.wgsl
var raymarchSource string

//go:embed assets/temporal.wgsl
var temporalSource string

//go:embed assets/denoise.wgsl
var denoiseSource string

//go:embed assets/composite.wgsl
var composeSource string

type entry struct {
	source string
	cpu    pipeline.KernelFunc
}

var registry = map[Name]entry{
	GBuffer:  {source: gbufferSource, cpu: gbufferKernel},
	Raymarch: {source: raymarchSource, cpu: raymarchKernel},
	Temporal: {source: temporalSource, cpu: temporalKernel},
	Denoise:  {source: denoiseSource, cpu: denoiseKernel},
	Compose:  {source: composeSource, cpu: composeKernel},
}

// Names lists every kernel in pipeline order.
func Names() []Name {
	return []Name{GBuffer, Raymarch, Temporal, Denoise, Compose}
}

// Source returns the raw annotated WGSL of a kernel.
//
// Parameters:
//   - name: the kernel
//
// Returns:
//   - string: the WGSL source before pre-processing
//   - error: ErrUnknownKernel
func Source(name Name) (string, error) {
	e, ok := registry[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKernel, name)
	}
	return e.source, nil
}

// Build returns the pipeline running one variant of a kernel. The variant is parsed once per
// cache; the pipeline key is the variant key, so equal defines yield equal keys.
//
// Parameters:
//   - cache: the variant cache
//   - name: the kernel
//   - defines: the variant's compile-time switches
//
// Returns:
//   - pipeline.Pipeline: a pipeline carrying both the shader and the CPU kernel
//   - error: ErrUnknownKernel or the pre-processing error of the variant
func Build(cache *shader.VariantCache, name Name, defines shader.Defines) (pipeline.Pipeline, error) {
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKernel, name)
	}
	s, err := cache.Get(string(name), e.source, defines)
	if err != nil {
		return nil, fmt.Errorf("build %s [%s]: %w", name, defines, err)
	}
	return pipeline.NewPipeline("", pipeline.WithComputeShader(s), pipeline.WithKernel(e.cpu)), nil
}

// resolver collects the resources of a dispatch and remembers the first lookup error.
type resolver struct {
	b   pipeline.Bindings
	err error
}

func (r *resolver) texture(name string) texture.View {
	if r.err != nil {
		return nil
	}
	t, err := r.b.Texture(name)
	r.err = err
	return t
}

func (r *resolver) output(name string) *texture.Texture {
	if r.err != nil {
		return nil
	}
	t, err := r.b.Output(name)
	r.err = err
	return t
}

func resolveUniform[T bind_group_provider.Uniform](r *resolver, name string) T {
	var zero T
	if r.err != nil {
		return zero
	}
	v, err := pipeline.UniformAs[T](r.b, name)
	r.err = err
	return v
}
