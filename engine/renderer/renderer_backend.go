package renderer

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
)

// RendererBackendType identifies the compute backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeCPU executes each kernel's CPU implementation on a worker pool.
	BackendTypeCPU RendererBackendType = iota

	// BackendTypeWGPU selects the WebGPU-based compute backend.
	BackendTypeWGPU
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeCPU:
		return "cpu"
	case BackendTypeWGPU:
		return "wgpu"
	default:
		return fmt.Sprintf("RendererBackendType(%d)", int(t))
	}
}

// ParseBackendType converts a backend name as printed by String back to a RendererBackendType.
//
// Parameters:
//   - name: the backend name, case-insensitive
//
// Returns:
//   - RendererBackendType: the parsed backend
//   - error: non-nil when the name is unknown
func ParseBackendType(name string) (RendererBackendType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cpu", "":
		return BackendTypeCPU, nil
	case "wgpu", "gpu", "webgpu":
		return BackendTypeWGPU, nil
	}
	return BackendTypeCPU, fmt.Errorf("renderer: unknown backend %q", name)
}

// RendererBackend is the compute backend interface behind the Renderer. Both implementations
// execute the same pipelines: the CPU backend runs pipeline.Kernel, the WebGPU backend runs the
// pipeline's WGSL variant.
type RendererBackend interface {
	// RegisterComputePipeline prepares a pipeline for dispatch.
	//
	// Parameters:
	//   - p: the pipeline to register
	//
	// Returns:
	//   - error: an error if the pipeline cannot run on this backend
	RegisterComputePipeline(p pipeline.Pipeline) error

	// ReleasePipeline releases backend objects created for p.
	ReleasePipeline(p pipeline.Pipeline)

	// InitBindGroup validates the provider against the pipeline's declared bindings and creates
	// any backend resources the bindings need.
	//
	// Parameters:
	//   - p: the pipeline the provider is bound to
	//   - provider: the dispatch's resources
	//
	// Returns:
	//   - error: a binding or allocation error
	InitBindGroup(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider) error

	// WriteBuffers applies staged uniform writes.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// BeginComputeFrame starts batching dispatches for one frame.
	//
	// Returns:
	//   - error: an error if the frame cannot begin
	BeginComputeFrame() error

	// DispatchCompute records one dispatch of p over size pixels in the current frame.
	//
	// Parameters:
	//   - p: the pipeline to dispatch
	//   - provider: the dispatch's resources
	//   - size: the dispatch extent in pixels
	//
	// Returns:
	//   - error: ErrNoComputeFrame, a binding error, or a backend error
	DispatchCompute(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, size common.Size) error

	// EndComputeFrame executes or submits every dispatch recorded since BeginComputeFrame, in
	// order, and returns once their outputs are complete.
	//
	// Returns:
	//   - error: an error if submission fails
	EndComputeFrame() error

	// Download makes the CPU copy of t current after GPU dispatches wrote it.
	//
	// Parameters:
	//   - t: the texture to read back
	//
	// Returns:
	//   - error: a readback error
	Download(t *texture.Texture) error

	// ReleaseTexture frees backend storage created for t.
	ReleaseTexture(t texture.View)

	// Release frees every backend object.
	Release()
}
