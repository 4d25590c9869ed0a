package shader

import (
	"errors"
	"fmt"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNoEntryPoint is returned when a kernel source has no @compute function.
var ErrNoEntryPoint = errors.New("shader: no @compute entry point")

// shader is the implementation of the Shader interface.
// It holds one pre-processed compute kernel variant and everything parsed from it.
type shader struct {
	key                        string
	baseKey                    string
	source                     string
	defines                    Defines
	bindings                   []Binding
	bindGroupLayoutDescriptors map[int]wgpu.BindGroupLayoutDescriptor
	bindingVarNames            map[int]map[int]string
	workGroupSize              [3]uint32
	entryPoint                 string
	module                     *wgpu.ShaderModuleDescriptor
	declarations               []Annotation
}

// Shader defines the interface for a loaded and parsed WGSL compute kernel variant. It exposes
// the variant key, processed source, defines, entry point, bindings, bind group layout
// descriptors, workgroup size, and pre-processor declarations needed for pipeline creation
// and resource wiring.
type Shader interface {
	// Key retrieves the unique identifier for this variant, used for caching and lookups.
	// It combines the base key and the defines hash (see VariantKey).
	//
	// Returns:
	//   - string: the variant key
	Key() string

	// BaseKey retrieves the kernel key shared by every variant of the same source.
	//
	// Returns:
	//   - string: the base key
	BaseKey() string

	// Source retrieves the processed WGSL source code.
	//
	// Returns:
	//   - string: the WGSL source code of the variant
	Source() string

	// Defines retrieves the compile-time switches this variant was built with.
	//
	// Returns:
	//   - Defines: a copy of the variant's defines
	Defines() Defines

	// Bindings retrieves every buffer binding declared by the variant, sorted by group and binding.
	//
	// Returns:
	//   - []Binding: the declared bindings
	Bindings() []Binding

	// BindGroupLayoutDescriptor retrieves the bind group layout descriptor for a group.
	//
	// Parameters:
	//   - group: the group index
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the descriptor for the group, or an empty descriptor if not declared
	BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor

	// BindGroupLayoutDescriptors retrieves all parsed bind group layout descriptors keyed by group index.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: descriptors keyed by group index
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// BindGroupVarName retrieves the variable name for a given group and binding index, if it exists.
	//
	// Parameters:
	//   - group: the bind group index
	//   - binding: the binding index within the group
	//
	// Returns:
	//   - string: the variable name, or "" if not declared
	BindGroupVarName(group, binding int) string

	// BindGroupFromVarName retrieves the binding index of a variable within a group.
	//
	// Parameters:
	//   - group: the bind group index
	//   - varName: the WGSL variable name
	//
	// Returns:
	//   - int: the binding index
	//   - bool: false if the variable is not declared in the group
	BindGroupFromVarName(group int, varName string) (int, bool)

	// BindGroupVarNames retrieves all variable names keyed by group and binding index.
	//
	// Returns:
	//   - map[int]map[int]string: variable names keyed by group and binding
	BindGroupVarNames() map[int]map[int]string

	// BindingForRole finds the binding a provider annotation assigned to identity and role.
	// An empty role matches a provider annotation declared without one.
	//
	// Parameters:
	//   - identity: the provider identity (e.g. AnnotationArgGBuffer)
	//   - role: the binding role (e.g. AnnotationArgRoleDepth), or ""
	//
	// Returns:
	//   - Binding: the matching binding
	//   - bool: false if no provider annotation matches or its binding was not declared
	BindingForRole(identity, role AnnotationArg) (Binding, bool)

	// EntryPoint retrieves the compute entry point function name.
	//
	// Returns:
	//   - string: the entry point name
	EntryPoint() string

	// WorkgroupSize retrieves the @workgroup_size dimensions of the entry point.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Module retrieves the shader module descriptor used to create the GPU module.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the module descriptor
	Module() *wgpu.ShaderModuleDescriptor

	// Declarations retrieves the group and provider annotations collected while pre-processing.
	//
	// Returns:
	//   - []Annotation: the declarations in source order
	Declarations() []Annotation
}

var _ Shader = &shader{}

// NewShader pre-processes and parses one variant of a WGSL compute kernel.
//
// Parameters:
//   - key: the kernel's base key (e.g. "ssgi_raymarch")
//   - source: the raw WGSL kernel source containing @ssgi: annotations
//   - defines: the variant's compile-time switches
//
// Returns:
//   - Shader: the parsed variant
//   - error: an error if pre-processing or parsing fails
func NewShader(key, source string, defines Defines) (Shader, error) {
	pp := NewPreProcessor()
	processed, err := pp.Process(source, defines)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}

	entry := parseEntryPoint(processed)
	if entry == "" {
		return nil, fmt.Errorf("shader %s: %w", key, ErrNoEntryPoint)
	}

	bindings, err := parseBindings(processed)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}

	variantKey := VariantKey(key, defines)
	s := &shader{
		key:             variantKey,
		baseKey:         key,
		source:          processed,
		defines:         defines.Clone(),
		bindings:        bindings,
		bindingVarNames: make(map[int]map[int]string),
		workGroupSize:   parseWorkgroupSize(processed),
		entryPoint:      entry,
		declarations:    append([]Annotation(nil), pp.Declarations()...),
		module: &wgpu.ShaderModuleDescriptor{
			Label: variantKey,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
				Code: processed,
			},
		},
	}
	for _, b := range bindings {
		if s.bindingVarNames[b.Group] == nil {
			s.bindingVarNames[b.Group] = make(map[int]string)
		}
		s.bindingVarNames[b.Group][b.Binding] = b.Name
	}
	s.bindGroupLayoutDescriptors = bindGroupLayouts(variantKey, bindings, wgpu.ShaderStageCompute)
	return s, nil
}

// LoadShader reads a kernel source from disk and builds one variant of it.
//
// Parameters:
//   - key: the kernel's base key
//   - path: the path of the .wgsl file
//   - defines: the variant's compile-time switches
//
// Returns:
//   - Shader: the parsed variant
//   - error: an error if the file cannot be read or the source fails to parse
func LoadShader(key, path string, defines Defines) (Shader, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}
	return NewShader(key, string(src), defines)
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) BaseKey() string {
	return s.baseKey
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) Defines() Defines {
	return s.defines.Clone()
}

func (s *shader) Bindings() []Binding {
	return s.bindings
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors[group]
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors
}

func (s *shader) BindGroupVarName(group, binding int) string {
	if names, ok := s.bindingVarNames[group]; ok {
		return names[binding]
	}
	return ""
}

func (s *shader) BindGroupFromVarName(group int, varName string) (int, bool) {
	for binding, name := range s.bindingVarNames[group] {
		if name == varName {
			return binding, true
		}
	}
	return 0, false
}

func (s *shader) BindGroupVarNames() map[int]map[int]string {
	return s.bindingVarNames
}

func (s *shader) BindingForRole(identity, role AnnotationArg) (Binding, bool) {
	for _, d := range s.declarations {
		if d.Identity() != identity || d.Role() != role {
			continue
		}
		for _, b := range s.bindings {
			if b.Group == *d.Group && b.Binding == *d.Binding {
				return b, true
			}
		}
	}
	return Binding{}, false
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}

func (s *shader) Declarations() []Annotation {
	return s.declarations
}
