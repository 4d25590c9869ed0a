package bind_group_provider

import (
	"maps"
	"slices"

	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/cogentcore/webgpu/wgpu"
)

// Uniform is a GPU-aligned value that can be uploaded into a uniform or storage buffer.
// The uniforms package and camera.GPUCameraUniform implement it with pointer receivers.
type Uniform interface {
	// Size returns the byte size of the marshaled value.
	Size() int

	// Marshal serializes the value with the layout of its WGSL struct.
	Marshal() []byte
}

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label added for convenience.
	label string

	// textures holds the texture bound at each storage binding, keyed by binding index.
	textures map[int]texture.View

	// uniforms holds the uniform value bound at each uniform binding, keyed by binding index.
	uniforms map[int]Uniform

	// dirty tracks uniform bindings whose value changed since the last PendingWrites call.
	dirty map[int]struct{}

	// The following fields are GPU allocated resources and must be released when no longer needed.
	// They are populated by the WebGPU backend on first dispatch; the CPU backend never sets them.

	// bindGroup is the GPU bind group created for this provider, or nil if not initialized with the Renderer.
	bindGroup *wgpu.BindGroup
	// bindGroupLayout is the GPU bind group layout created for this provider, or nil if not initialized with the Renderer.
	bindGroupLayout *wgpu.BindGroupLayout
	// buffers holds the GPU buffers created for this provider, keyed by binding index.
	buffers map[int]*wgpu.Buffer
}

// BindGroupProvider defines the resources bound to one kernel dispatch. Stages own their
// providers and fill them with the textures and uniforms their kernel declares; the Renderer
// reads them back by binding index when it executes the dispatch.
//
// Usage pattern:
//  1. A stage creates a BindGroupProvider per dispatch it issues each frame
//  2. The stage sets every texture and uniform binding declared by the kernel variant
//  3. The stage calls Renderer.InitBindGroup(pipeline, provider) to validate the bindings
//  4. Each frame the stage updates uniforms and calls Renderer.DispatchCompute
//  5. The backend uploads PendingWrites, and on the GPU creates buffers and the bind group lazily
type BindGroupProvider interface {
	// Release releases any GPU resources held by this provider and drops every binding.
	Release()

	// Label returns the debug label for this provider.
	// Used for debugging and profiling purposes.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Texture returns the texture bound at binding, or nil if none is set.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - texture.View: the bound texture or nil
	Texture(binding int) texture.View

	// Textures returns every bound texture keyed by binding index.
	//
	// Returns:
	//   - map[int]texture.View: the bound textures
	Textures() map[int]texture.View

	// SetTexture binds a texture. Passing nil removes the binding.
	//
	// Parameters:
	//   - binding: the binding index
	//   - t: the texture to bind
	SetTexture(binding int, t texture.View)

	// Uniform returns the uniform bound at binding, or nil if none is set.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - Uniform: the bound uniform or nil
	Uniform(binding int) Uniform

	// Uniforms returns every bound uniform keyed by binding index.
	//
	// Returns:
	//   - map[int]Uniform: the bound uniforms
	Uniforms() map[int]Uniform

	// SetUniform binds a uniform value and marks it for upload.
	//
	// Parameters:
	//   - binding: the binding index
	//   - u: the uniform value
	SetUniform(binding int, u Uniform)

	// PendingWrites returns one BufferWrite per uniform changed since the previous call, in
	// binding order, and clears the pending set.
	//
	// Returns:
	//   - []BufferWrite: the writes to apply before the next dispatch
	PendingWrites() []BufferWrite

	// BindGroup returns the created bind group for shader binding.
	// Returns nil if GPU resources have not been initialized.
	//
	// Returns:
	//   - *wgpu.BindGroup: the bind group or nil
	BindGroup() *wgpu.BindGroup

	// BindGroupLayout returns the created bind group layout for this provider.
	// Returns nil if GPU resources have not been initialized.
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the bind group layout or nil
	BindGroupLayout() *wgpu.BindGroupLayout

	// Buffer returns the GPU buffer created for a binding.
	// Returns nil if GPU resources have not been initialized.
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer or nil
	Buffer(binding int) *wgpu.Buffer

	// Buffers returns a map of all buffers associated with this provider, keyed by binding index.
	//
	// Returns:
	//   - map[int]*wgpu.Buffer: a map of buffers keyed by binding index
	Buffers() map[int]*wgpu.Buffer

	// SetBindGroup sets the bind group after GPU initialization.
	//
	// Parameters:
	//   - bg: the created bind group
	SetBindGroup(bg *wgpu.BindGroup)

	// SetBindGroupLayout sets the bind group layout after GPU initialization.
	//
	// Parameters:
	//   - bgl: the created bind group layout
	SetBindGroupLayout(bgl *wgpu.BindGroupLayout)

	// SetBuffer sets the GPU buffer of a binding after GPU initialization.
	//
	// Parameters:
	//   - binding: the binding index
	//   - buf: the created buffer
	SetBuffer(binding int, buf *wgpu.Buffer)

	// SetBuffers sets multiple buffers at once after GPU initialization.
	//
	// Parameters:
	//   - buffers: a map of buffers keyed by binding index
	SetBuffers(buffers map[int]*wgpu.Buffer)

	// ReleaseGPU releases the bind group, layout, and buffers but keeps the bindings, so a
	// backend can rebuild them after a bound texture was reallocated.
	ReleaseGPU()
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: the debug label
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:    label,
		textures: make(map[int]texture.View),
		uniforms: make(map[int]Uniform),
		dirty:    make(map[int]struct{}),
		buffers:  make(map[int]*wgpu.Buffer),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) Texture(binding int) texture.View {
	return p.textures[binding]
}

func (p *bindGroupProvider) Textures() map[int]texture.View {
	return p.textures
}

func (p *bindGroupProvider) SetTexture(binding int, t texture.View) {
	if t == nil {
		delete(p.textures, binding)
		return
	}
	p.textures[binding] = t
}

func (p *bindGroupProvider) Uniform(binding int) Uniform {
	return p.uniforms[binding]
}

func (p *bindGroupProvider) Uniforms() map[int]Uniform {
	return p.uniforms
}

func (p *bindGroupProvider) SetUniform(binding int, u Uniform) {
	if u == nil {
		delete(p.uniforms, binding)
		delete(p.dirty, binding)
		return
	}
	p.uniforms[binding] = u
	p.dirty[binding] = struct{}{}
}

func (p *bindGroupProvider) PendingWrites() []BufferWrite {
	if len(p.dirty) == 0 {
		return nil
	}
	writes := make([]BufferWrite, 0, len(p.dirty))
	for _, binding := range slices.Sorted(maps.Keys(p.dirty)) {
		writes = append(writes, BufferWrite{
			Provider: p,
			Binding:  binding,
			Data:     p.uniforms[binding].Marshal(),
		})
	}
	clear(p.dirty)
	return writes
}

func (p *bindGroupProvider) BindGroup() *wgpu.BindGroup {
	return p.bindGroup
}

func (p *bindGroupProvider) BindGroupLayout() *wgpu.BindGroupLayout {
	return p.bindGroupLayout
}

func (p *bindGroupProvider) Buffer(binding int) *wgpu.Buffer {
	return p.buffers[binding]
}

func (p *bindGroupProvider) Buffers() map[int]*wgpu.Buffer {
	return p.buffers
}

func (p *bindGroupProvider) SetBindGroup(bg *wgpu.BindGroup) {
	p.bindGroup = bg
}

func (p *bindGroupProvider) SetBindGroupLayout(bgl *wgpu.BindGroupLayout) {
	p.bindGroupLayout = bgl
}

func (p *bindGroupProvider) SetBuffer(binding int, buf *wgpu.Buffer) {
	if p.buffers == nil {
		p.buffers = make(map[int]*wgpu.Buffer)
	}
	p.buffers[binding] = buf
}

func (p *bindGroupProvider) SetBuffers(buffers map[int]*wgpu.Buffer) {
	p.buffers = buffers
}

func (p *bindGroupProvider) ReleaseGPU() {
	for i, buf := range p.buffers {
		if buf != nil {
			buf.Release()
		}
		delete(p.buffers, i)
	}
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	if p.bindGroupLayout != nil {
		p.bindGroupLayout.Release()
		p.bindGroupLayout = nil
	}
}

func (p *bindGroupProvider) Release() {
	p.ReleaseGPU()
	clear(p.textures)
	clear(p.uniforms)
	clear(p.dirty)
}
