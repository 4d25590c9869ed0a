package pipeline

import (
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithComputeShader sets the compute shader for this pipeline.
//
// Parameters:
//   - s: the compute shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute shader for this pipeline
func WithComputeShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.computeShader = s
	}
}

// WithKernel sets the CPU implementation executed by the CPU backend.
//
// Parameters:
//   - k: the kernel function
//
// Returns:
//   - PipelineBuilderOption: a function that sets the kernel for this pipeline
func WithKernel(k KernelFunc) PipelineBuilderOption {
	return func(p *pipeline) {
		p.kernel = k
	}
}
