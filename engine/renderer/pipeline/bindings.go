package pipeline

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
)

var (
	// ErrUnknownBinding is returned when a kernel asks for a variable its variant does not declare.
	ErrUnknownBinding = errors.New("pipeline: binding not declared by kernel")

	// ErrMissingBinding is returned when a declared binding has no resource in the provider.
	ErrMissingBinding = errors.New("pipeline: binding has no resource")

	// ErrBindingKind is returned when a resource does not match the binding's address space.
	ErrBindingKind = errors.New("pipeline: resource does not match binding")
)

// bindingGroup is the only bind group kernels declare.
const bindingGroup = 0

// Bindings resolves the resources of one dispatch by WGSL variable name.
type Bindings struct {
	shader   shader.Shader
	provider bind_group_provider.BindGroupProvider
	size     common.Size
}

// NewBindings pairs a kernel variant with the provider supplying its resources.
//
// Parameters:
//   - s: the kernel variant
//   - provider: the dispatch's resources
//   - size: the dispatch extent in pixels
//
// Returns:
//   - Bindings: the resolver
func NewBindings(s shader.Shader, provider bind_group_provider.BindGroupProvider, size common.Size) Bindings {
	return Bindings{shader: s, provider: provider, size: size}
}

// Size returns the dispatch extent.
func (b Bindings) Size() common.Size {
	return b.size
}

// Defines returns the compile-time switches of the variant.
func (b Bindings) Defines() shader.Defines {
	return b.shader.Defines()
}

func (b Bindings) lookup(name string) (int, error) {
	binding, ok := b.shader.BindGroupFromVarName(bindingGroup, name)
	if !ok {
		return 0, fmt.Errorf("%w: %s in %s", ErrUnknownBinding, name, b.shader.Key())
	}
	return binding, nil
}

// Texture returns the texture bound to the storage variable name.
//
// Parameters:
//   - name: the WGSL variable name
//
// Returns:
//   - texture.View: the bound texture
//   - error: ErrUnknownBinding or ErrMissingBinding
func (b Bindings) Texture(name string) (texture.View, error) {
	binding, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	t := b.provider.Texture(binding)
	if t == nil {
		return nil, fmt.Errorf("%w: %s (binding %d) in %s", ErrMissingBinding, name, binding, b.provider.Label())
	}
	return t, nil
}

// Output returns the writable texture bound to the read_write variable name.
//
// Parameters:
//   - name: the WGSL variable name
//
// Returns:
//   - *texture.Texture: the bound texture
//   - error: ErrUnknownBinding, ErrMissingBinding, or ErrBindingKind when the texture is not
//     writable or its size differs from the dispatch
func (b Bindings) Output(name string) (*texture.Texture, error) {
	v, err := b.Texture(name)
	if err != nil {
		return nil, err
	}
	t, ok := v.(*texture.Texture)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a read-only view", ErrBindingKind, name)
	}
	if t.Size() != b.size {
		return nil, fmt.Errorf("%w: output %s is %v, dispatch is %v", texture.ErrSizeMismatch, name, t.Size(), b.size)
	}
	return t, nil
}

// Uniform returns the uniform bound to the variable name.
//
// Parameters:
//   - name: the WGSL variable name
//
// Returns:
//   - bind_group_provider.Uniform: the bound value
//   - error: ErrUnknownBinding or ErrMissingBinding
func (b Bindings) Uniform(name string) (bind_group_provider.Uniform, error) {
	binding, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	u := b.provider.Uniform(binding)
	if u == nil {
		return nil, fmt.Errorf("%w: %s (binding %d) in %s", ErrMissingBinding, name, binding, b.provider.Label())
	}
	return u, nil
}

// UniformAs returns the uniform bound to name as its concrete type.
//
// Parameters:
//   - b: the bindings
//   - name: the WGSL variable name
//
// Returns:
//   - T: the bound value
//   - error: a lookup error, or ErrBindingKind when the value has a different type
func UniformAs[T bind_group_provider.Uniform](b Bindings, name string) (T, error) {
	var zero T
	u, err := b.Uniform(name)
	if err != nil {
		return zero, err
	}
	v, ok := u.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T, want %T", ErrBindingKind, name, u, zero)
	}
	return v, nil
}

// Validate checks that every binding declared by the variant has a resource of the right kind:
// a uniform for var<uniform>, a texture for storage arrays of texels, and a uniform or texture for
// other storage bindings.
//
// Returns:
//   - error: the first missing or mismatched binding
func (b Bindings) Validate() error {
	for _, decl := range b.shader.Bindings() {
		tex := b.provider.Texture(decl.Binding)
		uni := b.provider.Uniform(decl.Binding)
		switch {
		case tex == nil && uni == nil:
			return fmt.Errorf("%w: %s (binding %d) in %s", ErrMissingBinding, decl.Name, decl.Binding, b.provider.Label())
		case decl.Access == shader.AccessUniform && uni == nil:
			return fmt.Errorf("%w: %s is a uniform but has a texture", ErrBindingKind, decl.Name)
		case decl.Access == shader.AccessReadWrite && tex == nil:
			return fmt.Errorf("%w: %s is an output but has a uniform", ErrBindingKind, decl.Name)
		case decl.Access == shader.AccessReadWrite:
			if _, ok := tex.(*texture.Texture); !ok {
				return fmt.Errorf("%w: %s is a read-only view", ErrBindingKind, decl.Name)
			}
		}
	}
	return nil
}
