package shader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// scalarLayouts holds the host-shareable scalar types. bool is only legal in uniforms through
// the define path, where it is emitted as a constant, so it never reaches a buffer layout.
var scalarLayouts = map[string]wgslTypeLayout{
	"f32": {4, 4},
	"i32": {4, 4},
	"u32": {4, 4},
	"f16": {2, 2},
}

// vectorSuffixes maps the shorthand vector suffixes (vec3f, vec2u, ...) to scalar names.
var vectorSuffixes = map[byte]string{'f': "f32", 'i': "i32", 'u': "u32", 'h': "f16"}

// roundUpAlign rounds value up to the next multiple of a power-of-two alignment.
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// vectorLayout returns the layout of an n-component vector of the given scalar. Three-component
// vectors take the alignment of four.
func vectorLayout(n int, scalar wgslTypeLayout) wgslTypeLayout {
	alignN := uint64(n)
	if n == 3 {
		alignN = 4
	}
	return wgslTypeLayout{size: uint64(n) * scalar.size, align: alignN * scalar.align}
}

// primitiveLayout resolves scalars, vectors (vecN<T> and vecNT), matrices (matCxR<T> and
// matCxRT), and atomics.
func primitiveLayout(typeName string) (wgslTypeLayout, bool) {
	if l, ok := scalarLayouts[typeName]; ok {
		return l, true
	}
	if inner, ok := strings.CutPrefix(typeName, "atomic<"); ok {
		return primitiveLayout(strings.TrimSuffix(inner, ">"))
	}

	var dims, elem string
	isMatrix := false
	switch {
	case strings.HasPrefix(typeName, "vec"):
		dims = typeName[3:]
	case strings.HasPrefix(typeName, "mat"):
		dims = typeName[3:]
		isMatrix = true
	default:
		return wgslTypeLayout{}, false
	}
	if head, param, ok := strings.Cut(dims, "<"); ok {
		dims, elem = head, strings.TrimSuffix(param, ">")
	} else if n := len(dims); n > 0 {
		if e, ok := vectorSuffixes[dims[n-1]]; ok {
			dims, elem = dims[:n-1], e
		}
	}
	scalar, ok := scalarLayouts[elem]
	if !ok {
		return wgslTypeLayout{}, false
	}

	if !isMatrix {
		n, err := strconv.Atoi(dims)
		if err != nil || n < 2 || n > 4 {
			return wgslTypeLayout{}, false
		}
		return vectorLayout(n, scalar), true
	}

	cols, rows, ok := strings.Cut(dims, "x")
	c, errC := strconv.Atoi(cols)
	r, errR := strconv.Atoi(rows)
	if !ok || errC != nil || errR != nil || c < 2 || c > 4 || r < 2 || r > 4 {
		return wgslTypeLayout{}, false
	}
	// A matCxR is C columns of vecR, each padded to the vector's alignment.
	column := vectorLayout(r, scalar)
	stride := roundUpAlign(column.align, column.size)
	return wgslTypeLayout{size: uint64(c) * stride, align: column.align}, true
}

// resolveTypeLayout resolves a WGSL type name to its size and alignment from primitives, the
// structs resolved so far, and arrays of either. A runtime-sized array resolves to one element
// stride, which is its minimum binding size.
//
// Parameters:
//   - typeName: the WGSL type name to resolve, e.g. "f32", "CameraUniform", "array<EnvLevel, 16>"
//   - knownTypes: already-resolved struct layouts
//
// Returns:
//   - wgslTypeLayout: the resolved layout
//   - bool: false for unknown types
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if l, ok := primitiveLayout(typeName); ok {
		return l, true
	}
	if l, ok := knownTypes[typeName]; ok {
		return l, true
	}

	inner, ok := strings.CutPrefix(typeName, "array<")
	if !ok || !strings.HasSuffix(inner, ">") {
		return wgslTypeLayout{}, false
	}
	elemName, countText, fixed := strings.Cut(inner[:len(inner)-1], ",")
	elem, ok := resolveTypeLayout(strings.TrimSpace(elemName), knownTypes)
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := roundUpAlign(elem.align, elem.size)
	if !fixed {
		return wgslTypeLayout{size: stride, align: elem.align}, true
	}
	count, err := strconv.ParseUint(strings.TrimSpace(countText), 10, 64)
	if err != nil {
		return wgslTypeLayout{}, false
	}
	return wgslTypeLayout{size: count * stride, align: elem.align}, true
}

// isRuntimeArray reports whether typeName is array<T> with no element count.
func isRuntimeArray(typeName string) bool {
	return strings.HasPrefix(typeName, "array<") && !strings.Contains(typeName, ",")
}

// computeStructLayout lays out the fields of one struct in order, each at its aligned offset,
// and rounds the total up to the largest field alignment. A trailing runtime-sized array
// contributes its alignment and at least one element to the size.
//
// Parameters:
//   - ps: the parsed struct
//   - knownTypes: already-resolved struct layouts
//
// Returns:
//   - wgslTypeLayout: the computed layout
//   - bool: false while any field type is still unresolved
func computeStructLayout(ps parsedStruct, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	var offset uint64
	align := uint64(1)
	for _, f := range ps.fields {
		l, ok := resolveTypeLayout(f.typeName, knownTypes)
		if !ok {
			return wgslTypeLayout{}, false
		}
		align = max(align, l.align)
		offset = roundUpAlign(l.align, offset)
		if isRuntimeArray(f.typeName) && offset > 0 {
			// Only the fixed prefix counts toward the binding size.
			break
		}
		offset += l.size
	}
	return wgslTypeLayout{size: roundUpAlign(align, offset), align: align}, true
}

// computeStructSizes resolves every parsed struct, repeating passes until no struct that
// depends on another unresolved struct can make progress.
//
// Parameters:
//   - structs: all parsed struct blocks from the WGSL source
//
// Returns:
//   - map[string]wgslTypeLayout: layouts keyed by struct name
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	pending := append([]parsedStruct(nil), structs...)
	for len(pending) > 0 {
		var blocked []parsedStruct
		for _, ps := range pending {
			if l, ok := computeStructLayout(ps, resolved); ok {
				resolved[ps.name] = l
			} else {
				blocked = append(blocked, ps)
			}
		}
		if len(blocked) == len(pending) {
			break
		}
		pending = blocked
	}
	return resolved
}

// classifyAccess maps a WGSL address space qualifier to an Access value. Handle types
// (an empty qualifier) are rejected.
//
// Parameters:
//   - addressSpace: the address space qualifier (e.g. "uniform", "storage, read_write")
//
// Returns:
//   - Access: the binding's access mode
//   - error: an error for handle types or unknown qualifiers
func classifyAccess(addressSpace string) (Access, error) {
	switch {
	case addressSpace == "":
		return 0, errors.New("texture and sampler bindings are not supported; bind textures as array<vec4<f32>>")
	case addressSpace == "uniform":
		return AccessUniform, nil
	case strings.HasPrefix(addressSpace, "storage"):
		if strings.Contains(addressSpace, "read_write") {
			return AccessReadWrite, nil
		}
		return AccessRead, nil
	default:
		return 0, fmt.Errorf("unknown address space %q", addressSpace)
	}
}

// classifyResource creates a wgpu.BindGroupLayoutEntry for a parsed buffer binding.
//
// Parameters:
//   - b: the parsed binding
//   - visibility: the shader stage visibility flag
//
// Returns:
//   - wgpu.BindGroupLayoutEntry: a fully populated layout entry for the resource
func classifyResource(b Binding, visibility wgpu.ShaderStage) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    uint32(b.Binding),
		Visibility: visibility,
	}
	switch b.Access {
	case AccessUniform:
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
	case AccessReadWrite:
		entry.Buffer.Type = wgpu.BufferBindingTypeStorage
	default:
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
	}
	entry.Buffer.MinBindingSize = b.MinSize
	return entry
}

// stripComments removes line (//) and block (/* */) comments from WGSL source in one pass.
// Block comments nest. Newlines are kept so line structure survives.
//
// Parameters:
//   - source: raw WGSL source string
//
// Returns:
//   - string: source with all comments removed
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		c := source[i]
		next := byte(0)
		if i+1 < len(source) {
			next = source[i+1]
		}
		switch {
		case c == '/' && next == '*':
			depth++
			i++
		case c == '*' && next == '/' && depth > 0:
			depth--
			i++
		case depth > 0:
			if c == '\n' {
				sb.WriteByte(c)
			}
		case c == '/' && next == '/':
			for i < len(source) && source[i] != '\n' {
				i++
			}
			if i < len(source) {
				sb.WriteByte('\n')
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// splitAtTopLevelCommas splits a struct body at commas outside angle brackets, so types such
// as array<EnvLevel, 16> stay whole.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '<':
			depth++
		case '>':
			depth = max(depth-1, 0)
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
