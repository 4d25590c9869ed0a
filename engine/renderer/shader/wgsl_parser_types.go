package shader

// Access is the address space and access mode of a buffer binding.
type Access int

const (
	// AccessUniform is a var<uniform> binding.
	AccessUniform Access = iota

	// AccessRead is a var<storage, read> binding.
	AccessRead

	// AccessReadWrite is a var<storage, read_write> binding. Kernels only write through these.
	AccessReadWrite
)

func (a Access) String() string {
	switch a {
	case AccessUniform:
		return "uniform"
	case AccessRead:
		return "storage, read"
	case AccessReadWrite:
		return "storage, read_write"
	default:
		return "unknown"
	}
}

// Binding describes one buffer resource declared by a kernel source.
type Binding struct {
	// Group is the @group index.
	Group int

	// Binding is the @binding index.
	Binding int

	// Name is the WGSL variable name.
	Name string

	// Type is the WGSL type as written in the declaration (e.g. "array<vec4<f32>>").
	Type string

	// Access is the binding's address space and access mode.
	Access Access

	// MinSize is the minimum binding size in bytes: the struct size for uniforms and the
	// element stride for runtime-sized arrays.
	MinSize uint64

	// RuntimeSized reports whether the binding is a runtime-sized array.
	RuntimeSized bool
}

// wgslTypeLayout holds the byte size and alignment for a WGSL type per the WGSL specification.
// Used to compute MinBindingSize for buffer bindings.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name     string
	typeName string
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}
