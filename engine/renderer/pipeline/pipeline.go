package pipeline

import (
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// RowFunc executes a kernel for every pixel in rows [y0, y1). Rows are independent, so a
// backend may run disjoint ranges concurrently.
type RowFunc func(y0, y1 int)

// KernelFunc is the CPU reference implementation of a compute kernel. It resolves the dispatch's
// bindings once and returns the per-row body, or an error if a binding is missing or mistyped.
type KernelFunc func(b Bindings) (RowFunc, error)

// pipeline is the implementation of the Pipeline interface.
// It holds one compute kernel variant, its CPU implementation, and the WebGPU pipeline object.
type pipeline struct {
	// pipelineKey is the unique identifier for this pipeline, used for caching and lookups
	pipelineKey string

	// computeShader is the parsed kernel variant; required before registering the pipeline.
	computeShader shader.Shader

	// kernel is the CPU implementation of the same kernel, used by the CPU backend.
	kernel KernelFunc

	// computePipeline is the GPU pipeline, nil until registered with the WebGPU backend
	computePipeline *wgpu.ComputePipeline
}

// Pipeline defines the interface for a compute pipeline: one kernel variant expressed both as WGSL
// (for the WebGPU backend) and as a KernelFunc (for the CPU backend). Both forms read and write the
// same bindings, declared once in the WGSL source.
type Pipeline interface {
	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	// It is the variant key of the shader.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader returns the parsed kernel variant.
	//
	// Returns:
	//   - shader.Shader: the kernel variant
	Shader() shader.Shader

	// Kernel returns the CPU implementation of the kernel, or nil if none was given.
	//
	// Returns:
	//   - KernelFunc: the CPU kernel
	Kernel() KernelFunc

	// Pipeline returns the underlying *wgpu.ComputePipeline, or nil before GPU registration.
	//
	// Returns:
	//   - any: the underlying pipeline object
	Pipeline() any

	// ComputePipeline returns the GPU compute pipeline, or nil before GPU registration.
	ComputePipeline() *wgpu.ComputePipeline

	// SetComputePipeline sets the compute pipeline
	//
	// Parameters:
	//   - p: the WebGPU compute pipeline to set
	SetComputePipeline(p *wgpu.ComputePipeline)

	// Release releases the GPU pipeline if one was created. The pipeline can be registered again.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a compute pipeline. The key defaults to the shader's variant key when empty.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline, or "" to use the shader's key
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance
func NewPipeline(pipelineKey string, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{pipelineKey: pipelineKey}
	for _, opt := range opts {
		opt(p)
	}
	if p.pipelineKey == "" && p.computeShader != nil {
		p.pipelineKey = p.computeShader.Key()
	}
	return p
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader() shader.Shader {
	return p.computeShader
}

func (p *pipeline) Kernel() KernelFunc {
	return p.kernel
}

func (p *pipeline) Pipeline() any {
	return p.computePipeline
}

func (p *pipeline) ComputePipeline() *wgpu.ComputePipeline {
	return p.computePipeline
}

func (p *pipeline) SetComputePipeline(cp *wgpu.ComputePipeline) {
	p.computePipeline = cp
}

func (p *pipeline) Release() {
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
}
