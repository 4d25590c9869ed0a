package renderer

import (
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
)

// rowsPerTaskDivisor sets how many tasks each worker receives per dispatch on average.
const rowsPerTaskDivisor = 4

// cpuDispatch is one recorded kernel invocation.
type cpuDispatch struct {
	key     string
	run     pipeline.RowFunc
	size    common.Size
	outputs []*texture.Texture
}

// cpuRendererBackend runs every pipeline's KernelFunc on a worker pool. Dispatches recorded
// between BeginComputeFrame and EndComputeFrame run in order; the rows of a single dispatch run
// concurrently and the next dispatch starts only after every row finished.
type cpuRendererBackend struct {
	mu *sync.Mutex

	workers int
	pool    worker.DynamicWorkerPool

	inFrame bool
	frame   []cpuDispatch
	taskID  int
}

var _ RendererBackend = &cpuRendererBackend{}

// newCPURendererBackend creates the CPU backend.
//
// Parameters:
//   - workers: the number of pool workers (minimum 1)
//
// Returns:
//   - *cpuRendererBackend: the backend
func newCPURendererBackend(workers int) *cpuRendererBackend {
	workers = max(workers, 1)
	return &cpuRendererBackend{
		mu:      &sync.Mutex{},
		workers: workers,
		pool:    worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
	}
}

func (b *cpuRendererBackend) RegisterComputePipeline(p pipeline.Pipeline) error {
	if p.Kernel() == nil {
		return fmt.Errorf("%w: %s", ErrNoKernel, p.PipelineKey())
	}
	if p.Shader() == nil {
		return fmt.Errorf("%w: %s", ErrNoShader, p.PipelineKey())
	}
	return nil
}

func (b *cpuRendererBackend) ReleasePipeline(p pipeline.Pipeline) {}

func (b *cpuRendererBackend) InitBindGroup(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider) error {
	return pipeline.NewBindings(p.Shader(), provider, common.Size{}).Validate()
}

// WriteBuffers drops the staged bytes: kernels read uniform values directly from the provider.
func (b *cpuRendererBackend) WriteBuffers(writes []bind_group_provider.BufferWrite) {}

func (b *cpuRendererBackend) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.inFrame = true
	b.frame = b.frame[:0]
	return nil
}

func (b *cpuRendererBackend) DispatchCompute(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, size common.Size) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.inFrame {
		return ErrNoComputeFrame
	}
	if p.Kernel() == nil {
		return fmt.Errorf("%w: %s", ErrNoKernel, p.PipelineKey())
	}

	bindings := pipeline.NewBindings(p.Shader(), provider, size)
	if err := bindings.Validate(); err != nil {
		return err
	}
	run, err := p.Kernel()(bindings)
	if err != nil {
		return fmt.Errorf("kernel %s: %w", p.PipelineKey(), err)
	}

	var outputs []*texture.Texture
	for _, decl := range p.Shader().Bindings() {
		if decl.Access != shader.AccessReadWrite {
			continue
		}
		out, err := bindings.Output(decl.Name)
		if err != nil {
			return err
		}
		outputs = append(outputs, out)
	}

	b.frame = append(b.frame, cpuDispatch{key: p.PipelineKey(), run: run, size: size, outputs: outputs})
	return nil
}

func (b *cpuRendererBackend) EndComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.inFrame {
		return ErrNoComputeFrame
	}
	for _, d := range b.frame {
		b.execute(d)
	}
	b.frame = b.frame[:0]
	b.inFrame = false
	return nil
}

// execute splits a dispatch into row bands and waits for all of them.
func (b *cpuRendererBackend) execute(d cpuDispatch) {
	rows := d.size.Height
	if rows <= 0 || d.size.Width <= 0 {
		return
	}
	band := max((rows+b.workers*rowsPerTaskDivisor-1)/(b.workers*rowsPerTaskDivisor), 1)

	var wg sync.WaitGroup
	for y0 := 0; y0 < rows; y0 += band {
		y1 := min(y0+band, rows)
		wg.Add(1)
		b.taskID++
		b.pool.SubmitTask(worker.Task{
			ID: b.taskID,
			Do: func() (any, error) {
				defer wg.Done()
				d.run(y0, y1)
				return nil, nil
			},
		})
	}
	wg.Wait()

	for _, out := range d.outputs {
		out.Touch()
	}
}

// Download is a no-op: kernels write the CPU pixels directly.
func (b *cpuRendererBackend) Download(t *texture.Texture) error {
	return nil
}

func (b *cpuRendererBackend) ReleaseTexture(t texture.View) {}

func (b *cpuRendererBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frame = nil
	b.inFrame = false
}
