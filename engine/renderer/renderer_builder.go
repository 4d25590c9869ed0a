package renderer

import (
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/tonemap"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithPipeline registers a single Pipeline once the backend exists.
//
// Parameters:
//   - p: the Pipeline to register
//
// Returns:
//   - RendererBuilderOption: a function that applies the pipeline option to a renderer
func WithPipeline(p pipeline.Pipeline) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPipelines = append(r.pendingPipelines, p)
	}
}

// WithPipelines registers every given Pipeline once the backend exists.
//
// Parameters:
//   - pipelines: the Pipelines to register
//
// Returns:
//   - RendererBuilderOption: a function that applies the pipelines option to a renderer
func WithPipelines(pipelines ...pipeline.Pipeline) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPipelines = append(r.pendingPipelines, pipelines...)
	}
}

// WithWorkers sets the size of the CPU backend's worker pool. Ignored by the WebGPU backend.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - RendererBuilderOption: a function that applies the workers option to a renderer
func WithWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.workers = max(n, 1)
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithToneMapping sets the tone-mapping operator published to the host. Defaults to tonemap.ACES.
func WithToneMapping(m tonemap.Mode) RendererBuilderOption {
	return func(r *renderer) {
		r.toneMapping = m
	}
}

// WithMaxTexels caps the texels AllocateTexture may hand out; 0 disables the cap.
func WithMaxTexels(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.maxTexels = max(n, 0)
	}
}
