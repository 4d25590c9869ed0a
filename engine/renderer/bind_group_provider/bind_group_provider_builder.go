package bind_group_provider

import (
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/cogentcore/webgpu/wgpu"
)

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithTexture binds a texture at construction.
//
// Parameters:
//   - binding: the binding index
//   - t: the texture to bind
//
// Returns:
//   - BindGroupProviderOption: a function that binds the texture
func WithTexture(binding int, t texture.View) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.SetTexture(binding, t)
	}
}

// WithUniform binds a uniform at construction and marks it for upload.
//
// Parameters:
//   - binding: the binding index
//   - u: the uniform value
//
// Returns:
//   - BindGroupProviderOption: a function that binds the uniform
func WithUniform(binding int, u Uniform) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.SetUniform(binding, u)
	}
}

// WithBindGroup sets the bind group for this provider.
//
// Parameters:
//   - bg: the bind group to set for this provider
//
// Returns:
//   - BindGroupProviderOption: a function that sets the bind group for this provider
func WithBindGroup(bg *wgpu.BindGroup) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.bindGroup = bg
	}
}

// WithBuffer sets a buffer for a specific binding index.
//
// Parameters:
//   - binding: the binding index for this buffer
//   - buf: the buffer to associate with this binding
//
// Returns:
//   - BindGroupProviderOption: a function that sets the buffer for the specified binding
func WithBuffer(binding int, buf *wgpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.buffers[binding] = buf
	}
}
