package renderer

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/log"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/tonemap"
)

var logger = log.New("renderer")

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend
	allocator   *texture.BudgetAllocator
	toneMapping tonemap.Mode
	released    bool

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	workers              int
	maxTexels            int
	pendingPipelines     []pipeline.Pipeline
}

// Renderer defines the interface for the compute system that runs the SSGI kernels.
//
// It owns a cache of pipelines keyed by variant, the texture allocator with its memory budget,
// and the tone-mapping operator the host applies to the final output. Dispatches are batched
// per frame: BeginComputeFrame, any number of DispatchCompute calls, then EndComputeFrame, which
// returns once every dispatch completed in order.
type Renderer interface {
	// Backend returns the type of the active backend.
	//
	// Returns:
	//   - RendererBackendType: the backend type
	Backend() RendererBackendType

	// ToneMapping returns the host tone-mapping operator.
	//
	// Returns:
	//   - tonemap.Mode: the operator
	ToneMapping() tonemap.Mode

	// SetToneMapping selects the host tone-mapping operator.
	//
	// Parameters:
	//   - m: the operator
	SetToneMapping(m tonemap.Mode)

	// AllocateTexture creates a texture counted against the renderer's texel budget.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the texture extent
	//
	// Returns:
	//   - *texture.Texture: the texture
	//   - error: texture.ErrAllocation when the budget is exhausted or the size is invalid
	AllocateTexture(label string, size common.Size) (*texture.Texture, error)

	// ReleaseTexture returns a texture's budget and frees its backend storage. Nil is ignored.
	//
	// Parameters:
	//   - t: the texture to release
	ReleaseTexture(t *texture.Texture)

	// ReleaseView frees backend storage created for a texture the renderer did not allocate,
	// such as a host surface buffer.
	//
	// Parameters:
	//   - v: the view to forget
	ReleaseView(v texture.View)

	// TexelsInUse reports the allocated texels and the number of live textures.
	//
	// Returns:
	//   - int: texels in use
	//   - int: live textures
	TexelsInUse() (int, int)

	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves a copy of the pipeline cache.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines registers one or more pipelines with the backend, then caches them by
	// PipelineKey. Pipelines whose keys are already registered are skipped to avoid duplicate
	// backend resource creation.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// ReleasePipeline removes a pipeline from the cache and frees its backend objects.
	//
	// Parameters:
	//   - key: the pipeline key
	ReleasePipeline(key string)

	// InitBindGroup validates a provider against a cached pipeline and creates its backend
	// resources. DispatchCompute does the same lazily; calling it up front surfaces binding and
	// allocation errors at setup time.
	//
	// Parameters:
	//   - pipelineKey: the cached pipeline
	//   - provider: the dispatch's resources
	//
	// Returns:
	//   - error: ErrPipelineNotFound or a binding error
	InitBindGroup(pipelineKey string, provider bind_group_provider.BindGroupProvider) error

	// WriteBuffers writes all staged buffer writes to the backend.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// BeginComputeFrame starts batching compute dispatches for one frame. Must be paired with
	// EndComputeFrame.
	//
	// Returns:
	//   - error: an error if the frame could not begin
	BeginComputeFrame() error

	// DispatchCompute looks up the cached compute Pipeline by key and records a dispatch over size
	// pixels in the current frame.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached compute Pipeline to use
	//   - provider: the BindGroupProvider holding the dispatch's resources
	//   - size: the dispatch extent in pixels
	//
	// Returns:
	//   - error: ErrPipelineNotFound, ErrNoComputeFrame, or a binding error
	DispatchCompute(pipelineKey string, provider bind_group_provider.BindGroupProvider, size common.Size) error

	// EndComputeFrame runs or submits every dispatch recorded since BeginComputeFrame.
	//
	// Returns:
	//   - error: an error if execution fails
	EndComputeFrame() error

	// Download makes the CPU pixels of t current after the last frame wrote it.
	//
	// Parameters:
	//   - t: the texture
	//
	// Returns:
	//   - error: a readback error
	Download(t *texture.Texture) error

	// Release frees every pipeline and backend object. Further calls are no-ops or return ErrReleased.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with the specified backend type.
//
// Parameters:
//   - backendType: the compute backend to use
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: ErrBackendUnavailable if the backend could not be created, or a pipeline registration error
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   backendType,
		workers:       max(runtime.NumCPU()-1, 1),
		toneMapping:   tonemap.ACES,
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}
	r.allocator = texture.NewBudgetAllocator(r.maxTexels)

	switch backendType {
	case BackendTypeWGPU:
		b, err := newWGPURendererBackend(r.forceFallbackAdapter)
		if err != nil {
			return nil, err
		}
		r.backend = b
	case BackendTypeCPU:
		r.backend = newCPURendererBackend(r.workers)
	default:
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, backendType)
	}

	if err := r.RegisterPipelines(r.pendingPipelines...); err != nil {
		r.Release()
		return nil, err
	}
	r.pendingPipelines = nil
	logger.Debugf("renderer created (backend %v, tone mapping %v)", backendType, r.toneMapping)
	return r, nil
}

func (r *renderer) Backend() RendererBackendType {
	return r.backendType
}

func (r *renderer) ToneMapping() tonemap.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.toneMapping
}

func (r *renderer) SetToneMapping(m tonemap.Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toneMapping = m
}

func (r *renderer) AllocateTexture(label string, size common.Size) (*texture.Texture, error) {
	return r.allocator.Allocate(label, size)
}

func (r *renderer) ReleaseTexture(t *texture.Texture) {
	if t == nil {
		return
	}
	r.allocator.Release(t)
	r.backend.ReleaseTexture(t)
}

func (r *renderer) ReleaseView(v texture.View) {
	if v == nil {
		return
	}
	r.backend.ReleaseTexture(v)
}

func (r *renderer) TexelsInUse() (int, int) {
	return r.allocator.Used(), r.allocator.Live()
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]pipeline.Pipeline, len(r.pipelineCache))
	for k, p := range r.pipelineCache {
		out[k] = p
	}
	return out
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return ErrReleased
	}
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		if err := r.backend.RegisterComputePipeline(p); err != nil {
			return fmt.Errorf("register %s: %w", key, err)
		}
		r.pipelineCache[key] = p
		logger.Debugf("registered pipeline %s", key)
	}
	return nil
}

func (r *renderer) ReleasePipeline(key string) {
	r.mu.Lock()
	p, ok := r.pipelineCache[key]
	delete(r.pipelineCache, key)
	r.mu.Unlock()

	if ok {
		r.backend.ReleasePipeline(p)
	}
}

func (r *renderer) lookup(key string) (pipeline.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return nil, ErrReleased
	}
	p, ok := r.pipelineCache[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, key)
	}
	return p, nil
}

func (r *renderer) InitBindGroup(pipelineKey string, provider bind_group_provider.BindGroupProvider) error {
	p, err := r.lookup(pipelineKey)
	if err != nil {
		return err
	}
	return r.backend.InitBindGroup(p, provider)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	if len(writes) == 0 {
		return
	}
	r.backend.WriteBuffers(writes)
}

func (r *renderer) BeginComputeFrame() error {
	r.mu.Lock()
	released := r.released
	r.mu.Unlock()
	if released {
		return ErrReleased
	}
	return r.backend.BeginComputeFrame()
}

func (r *renderer) DispatchCompute(pipelineKey string, provider bind_group_provider.BindGroupProvider, size common.Size) error {
	p, err := r.lookup(pipelineKey)
	if err != nil {
		return err
	}
	return r.backend.DispatchCompute(p, provider, size)
}

func (r *renderer) EndComputeFrame() error {
	return r.backend.EndComputeFrame()
}

func (r *renderer) Download(t *texture.Texture) error {
	return r.backend.Download(t)
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return
	}
	r.released = true
	for key, p := range r.pipelineCache {
		r.backend.ReleasePipeline(p)
		delete(r.pipelineCache, key)
	}
	r.backend.Release()
}
