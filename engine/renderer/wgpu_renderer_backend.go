package renderer

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/cogentcore/webgpu/wgpu"
)

// texelBytes is the storage size of one RGBA32F texel.
const texelBytes = texture.Channels * 4

// gpuTexture is the storage buffer mirroring one texture.View.
type gpuTexture struct {
	buffer *wgpu.Buffer

	// synced is the CPU version last uploaded to or downloaded from the buffer.
	synced uint64

	// gpuAhead is set once a dispatch wrote the buffer and cleared by Download.
	gpuAhead bool
}

// bindState records what a provider's bind group was built from so it is rebuilt only
// when a binding changes.
type bindState struct {
	pipelineKey string
	textures    map[int]uint64
	uniforms    map[int]int
}

func (s *bindState) matches(other *bindState) bool {
	if s == nil || other == nil || s.pipelineKey != other.pipelineKey ||
		len(s.textures) != len(other.textures) || len(s.uniforms) != len(other.uniforms) {
		return false
	}
	for b, g := range s.textures {
		if other.textures[b] != g {
			return false
		}
	}
	for b, n := range s.uniforms {
		if other.uniforms[b] != n {
			return false
		}
	}
	return true
}

// wgpuRendererBackend is the headless WebGPU compute backend. Textures live on the GPU as
// storage buffers of vec4<f32>, keyed by texture generation, and are uploaded whenever the CPU
// copy's version moves past the last synchronized version.
type wgpuRendererBackend struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	layouts  map[string]*wgpu.BindGroupLayout
	textures map[uint64]*gpuTexture
	bound    map[bind_group_provider.BindGroupProvider]*bindState

	computeFrameEncoder *wgpu.CommandEncoder
}

var _ RendererBackend = &wgpuRendererBackend{}

// newWGPURendererBackend requests an adapter and device without a surface.
//
// Parameters:
//   - forceFallbackAdapter: request the software fallback adapter
//
// Returns:
//   - *wgpuRendererBackend: the backend
//   - error: ErrBackendUnavailable wrapping the adapter or device error
func newWGPURendererBackend(forceFallbackAdapter bool) (*wgpuRendererBackend, error) {
	runtime.LockOSThread()
	b := &wgpuRendererBackend{
		mu:       &sync.Mutex{},
		instance: wgpu.CreateInstance(nil),
		layouts:  make(map[string]*wgpu.BindGroupLayout),
		textures: make(map[uint64]*gpuTexture),
		bound:    make(map[bind_group_provider.BindGroupProvider]*bindState),
	}

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
	})
	if err != nil {
		b.instance.Release()
		return nil, fmt.Errorf("%w: adapter: %v", ErrBackendUnavailable, err)
	}
	b.adapter = a

	// The spatial kernel reads up to nine storage buffers; raise the per-stage limit so every
	// kernel variant fits a single bind group.
	limits := wgpu.DefaultLimits()
	limits.MaxStorageBuffersPerShaderStage = 16

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "SSGI Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		a.Release()
		b.instance.Release()
		return nil, fmt.Errorf("%w: device: %v", ErrBackendUnavailable, err)
	}
	b.device = d
	b.queue = d.GetQueue()
	logger.Infof("wgpu backend ready (fallback adapter: %t)", forceFallbackAdapter)
	return b, nil
}

func (b *wgpuRendererBackend) RegisterComputePipeline(p pipeline.Pipeline) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	computeShader := p.Shader()
	if computeShader == nil {
		return fmt.Errorf("%w: %s", ErrNoShader, p.PipelineKey())
	}

	module, err := b.device.CreateShaderModule(computeShader.Module())
	if err != nil {
		return fmt.Errorf("shader module %s: %w", computeShader.Key(), err)
	}
	defer module.Release()

	desc := computeShader.BindGroupLayoutDescriptor(0)
	bgl, err := b.device.CreateBindGroupLayout(&desc)
	if err != nil {
		return fmt.Errorf("failed to create bind group layout for %s: %w", p.PipelineKey(), err)
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		bgl.Release()
		return err
	}
	defer layout.Release()

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.PipelineKey() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: computeShader.EntryPoint(),
		},
	})
	if err != nil {
		bgl.Release()
		return err
	}

	p.SetComputePipeline(created)
	b.layouts[p.PipelineKey()] = bgl
	return nil
}

func (b *wgpuRendererBackend) ReleasePipeline(p pipeline.Pipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bgl, ok := b.layouts[p.PipelineKey()]; ok {
		bgl.Release()
		delete(b.layouts, p.PipelineKey())
	}
	p.Release()
}

func (b *wgpuRendererBackend) InitBindGroup(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initBindGroup(p, provider)
}

func (b *wgpuRendererBackend) initBindGroup(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider) error {
	s := p.Shader()
	if s == nil {
		return fmt.Errorf("%w: %s", ErrNoShader, p.PipelineKey())
	}
	layout, ok := b.layouts[p.PipelineKey()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPipelineNotFound, p.PipelineKey())
	}
	if err := pipeline.NewBindings(s, provider, common.Size{}).Validate(); err != nil {
		return err
	}

	state := &bindState{
		pipelineKey: p.PipelineKey(),
		textures:    make(map[int]uint64),
		uniforms:    make(map[int]int),
	}
	for _, decl := range s.Bindings() {
		if u := provider.Uniform(decl.Binding); u != nil {
			state.uniforms[decl.Binding] = u.Size()
			continue
		}
		state.textures[decl.Binding] = provider.Texture(decl.Binding).Generation()
	}
	if provider.BindGroup() != nil && state.matches(b.bound[provider]) {
		return nil
	}

	provider.ReleaseGPU()
	entries := make([]wgpu.BindGroupEntry, 0, len(s.Bindings()))
	for _, decl := range s.Bindings() {
		var buf *wgpu.Buffer
		if u := provider.Uniform(decl.Binding); u != nil {
			usage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
			if decl.Access == shader.AccessUniform {
				usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
			}
			size := alignBufferSize(max(uint64(u.Size()), decl.MinSize))
			created, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
				Label: fmt.Sprintf("%s %s", provider.Label(), decl.Name),
				Size:  size,
				Usage: usage,
			})
			if err != nil {
				return fmt.Errorf("uniform %s: %w", decl.Name, err)
			}
			b.queue.WriteBuffer(created, 0, u.Marshal())
			provider.SetBuffer(decl.Binding, created)
			buf = created
		} else {
			gt, err := b.ensureTexture(provider.Texture(decl.Binding))
			if err != nil {
				return err
			}
			buf = gt.buffer
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(decl.Binding),
			Buffer:  buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		})
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " Bind Group",
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return err
	}
	provider.SetBindGroup(bindGroup)
	b.bound[provider] = state
	logger.Debugf("bind group %s rebuilt for %s", provider.Label(), p.PipelineKey())
	return nil
}

// ensureTexture returns the storage buffer for t, creating it on first use, and uploads the
// CPU pixels when they changed since the last synchronization.
func (b *wgpuRendererBackend) ensureTexture(t texture.View) (*gpuTexture, error) {
	gt, ok := b.textures[t.Generation()]
	if !ok {
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: t.Label(),
			Size:  uint64(t.Size().Texels() * texelBytes),
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", texture.ErrAllocation, t.Label(), err)
		}
		gt = &gpuTexture{buffer: buf}
		b.textures[t.Generation()] = gt
		b.queue.WriteBuffer(buf, 0, common.SliceToBytes(t.Pixels()))
		gt.synced = t.Version()
		return gt, nil
	}
	if v := t.Version(); v != gt.synced {
		b.queue.WriteBuffer(gt.buffer, 0, common.SliceToBytes(t.Pixels()))
		gt.synced = v
		gt.gpuAhead = false
	}
	return gt, nil
}

func (b *wgpuRendererBackend) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range writes {
		buf := w.Provider.Buffer(w.Binding)
		// Unbound or outgrown buffers are rewritten in full when the bind group is rebuilt.
		if buf == nil || w.End() > buf.GetSize() {
			continue
		}
		b.queue.WriteBuffer(buf, w.Offset, w.Data)
	}
}

func (b *wgpuRendererBackend) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.computeFrameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackend) DispatchCompute(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, size common.Size) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return ErrNoComputeFrame
	}
	computePipeline := p.ComputePipeline()
	if computePipeline == nil {
		return fmt.Errorf("%w: %s", ErrPipelineNotFound, p.PipelineKey())
	}
	if err := b.initBindGroup(p, provider); err != nil {
		return err
	}

	s := p.Shader()
	var outputs []*gpuTexture
	for _, decl := range s.Bindings() {
		t := provider.Texture(decl.Binding)
		if t == nil {
			continue
		}
		gt, err := b.ensureTexture(t)
		if err != nil {
			return err
		}
		if decl.Access == shader.AccessReadWrite {
			outputs = append(outputs, gt)
		}
	}

	wg := s.WorkgroupSize()
	pass := b.computeFrameEncoder.BeginComputePass(nil)
	pass.SetPipeline(computePipeline)
	pass.SetBindGroup(0, provider.BindGroup(), nil)
	pass.DispatchWorkgroups(workgroups(size.Width, wg[0]), workgroups(size.Height, wg[1]), 1)
	pass.End()
	pass.Release()

	for _, gt := range outputs {
		gt.gpuAhead = true
	}
	return nil
}

func (b *wgpuRendererBackend) EndComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return ErrNoComputeFrame
	}

	commandBuffer, err := b.computeFrameEncoder.Finish(nil)
	if err != nil {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
		return err
	}

	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.computeFrameEncoder.Release()
	b.computeFrameEncoder = nil
	return nil
}

func (b *wgpuRendererBackend) Download(t *texture.Texture) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	gt, ok := b.textures[t.Generation()]
	if !ok || !gt.gpuAhead {
		return nil
	}

	size := uint64(t.Size().Texels() * texelBytes)
	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: t.Label() + " Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("readback %s: %w", t.Label(), err)
	}
	defer staging.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	encoder.CopyBufferToBuffer(gt.buffer, 0, staging, 0, size)
	commandBuffer, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	var mapErr error
	staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("readback %s: map status %v", t.Label(), status)
		}
	})
	b.device.Poll(true, nil)
	if mapErr != nil {
		return mapErr
	}

	data := staging.GetMappedRange(0, uint(size))
	common.BytesToFloat32(t.Pixels(), data)
	staging.Unmap()

	t.Touch()
	gt.synced = t.Version()
	gt.gpuAhead = false
	return nil
}

func (b *wgpuRendererBackend) ReleaseTexture(t texture.View) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gt, ok := b.textures[t.Generation()]; ok {
		gt.buffer.Release()
		delete(b.textures, t.Generation())
	}
}

func (b *wgpuRendererBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for provider := range b.bound {
		provider.ReleaseGPU()
	}
	clear(b.bound)

	for _, gt := range b.textures {
		gt.buffer.Release()
	}
	clear(b.textures)

	for _, bgl := range b.layouts {
		bgl.Release()
	}
	clear(b.layouts)

	if b.computeFrameEncoder != nil {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
	}
	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
	b.queue, b.device, b.adapter, b.instance = nil, nil, nil, nil
}

// alignBufferSize rounds n up to the 16-byte granularity wgpu expects for uniform buffers.
func alignBufferSize(n uint64) uint64 {
	return max((n+15)&^15, 16)
}

// workgroups returns the number of workgroups of size wg needed to cover n invocations.
func workgroups(n int, wg uint32) uint32 {
	if wg == 0 {
		wg = 1
	}
	return (uint32(max(n, 0)) + wg - 1) / wg
}
