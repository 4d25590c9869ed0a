// pre_processor.go implements the SSGI WGSL kernel pre-processor. It scans kernel
// source code for @ssgi: annotations, replaces them with generated WGSL declarations
// or injected struct and library source, resolves compile-time variant blocks against a
// Defines set, and collects a declarations list that the effect stages use to bind
// texture handles to bindings.
//
// The pre-processor maintains two registries:
//   - structRegistry: maps AnnotationArg keys to embedded WGSL sources and their
//     resolved type names. Used by @ssgi:include (to inject the source) and
//     @ssgi:group (to resolve the WGSL type name in the generated declaration).
//   - addressSpaceRegistry: maps address space argument keys to WGSL var<> syntax strings.
package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-ssgi/engine/camera"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
)

// registryEntry pairs a WGSL source string (embedded from a .wgsl asset file)
// with the resolved WGSL type name used in generated @group/@binding declarations.
type registryEntry struct {
	// Source is the raw WGSL text injected by @ssgi:include.
	Source string

	// Type is the WGSL type name emitted in @ssgi:group declarations (e.g. "CameraUniform").
	// Empty for function libraries.
	Type string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// structRegistry maps struct type argument keys to their embedded WGSL source and type name.
	structRegistry map[AnnotationArg]registryEntry

	// addressSpaceRegistry maps address space argument keys to WGSL var<> syntax strings.
	addressSpaceRegistry map[AnnotationArg]string

	// declarations accumulates annotations of type AnnotationTypeBindingGroup and
	// AnnotationTypeProvider during a Process call. Reset at the start of each Process invocation.
	declarations []Annotation
}

// PreProcessor processes raw WGSL kernel source code containing @ssgi: annotations.
type PreProcessor interface {
	// Process takes raw WGSL kernel source and pre-processes it for one variant.
	// @ssgi:include annotations are replaced with embedded source text, @ssgi:group
	// annotations with generated @group/@binding declarations, @ssgi:define annotations with
	// WGSL constants, and @ssgi:if/else/endif blocks are kept or dropped according to
	// defines. Annotations inside dropped blocks produce nothing.
	//
	// The declarations list is reset at the start of each call and can be retrieved
	// via Declarations() after Process returns.
	//
	// Parameters:
	//   - source: the raw WGSL kernel source code
	//   - defines: the variant's compile-time switches
	//
	// Returns:
	//   - string: the processed WGSL source
	//   - error: an error if any annotation is malformed, a define is missing, or a block is unbalanced
	Process(source string, defines Defines) (string, error)

	// Declarations returns the group and provider annotations collected during the most
	// recent call to Process, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a new PreProcessor with all registered struct types, libraries, and
// address space mappings pre-populated.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			AnnotationArgCamera:         {Source: camera.GPUCameraUniformSource, Type: "CameraUniform"},
			AnnotationArgFrame:          {Source: uniforms.GPUFrameUniformSource, Type: "FrameUniform"},
			AnnotationArgRaymarchParams: {Source: uniforms.GPURaymarchParamsSource, Type: "RaymarchParams"},
			AnnotationArgTemporalParams: {Source: uniforms.GPUTemporalParamsSource, Type: "TemporalParams"},
			AnnotationArgDenoiseParams:  {Source: uniforms.GPUDenoiseParamsSource, Type: "DenoiseParams"},
			AnnotationArgComposeParams:  {Source: uniforms.GPUComposeParamsSource, Type: "ComposeParams"},
			AnnotationArgEnvLevel:       {Source: uniforms.GPUEnvLevelSource, Type: "EnvLevel"},
			AnnotationArgTexel:          {Type: "vec4<f32>"},
			annotationArgUtils:          {Source: uniforms.UtilsSource},
			annotationArgComposeLib:     {Source: uniforms.ComposeSource},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
}

// condFrame is one open @ssgi:if block.
type condFrame struct {
	parentActive bool
	taken        bool
	seenElse     bool
	line         int
}

func (p *preProcessor) Process(source string, defines Defines) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	included := make(map[AnnotationArg]bool)

	var stack []condFrame
	active := true

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			if active {
				out = append(out, line)
			}
			continue
		}

		switch a.Type {
		case annotationTypeIf:
			name := string(a.Args[0])
			negate := strings.HasPrefix(name, "!")
			taken := defines.Has(strings.TrimPrefix(name, "!")) != negate
			stack = append(stack, condFrame{parentActive: active, taken: taken, line: i + 1})
			active = active && taken
			continue
		case annotationTypeElse:
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: @ssgi else without matching if", i+1)
			}
			top := &stack[len(stack)-1]
			if top.seenElse {
				return "", fmt.Errorf("line %d: duplicate @ssgi else for if on line %d", i+1, top.line)
			}
			top.seenElse = true
			active = top.parentActive && !top.taken
			continue
		case annotationTypeEndif:
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: @ssgi endif without matching if", i+1)
			}
			active = stack[len(stack)-1].parentActive
			stack = stack[:len(stack)-1]
			continue
		}

		if !active {
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @ssgi:include argument %q", i+1, a.Args[0])
			}
			// Including the same source twice would redeclare its structs.
			if included[a.Args[0]] || entry.Source == "" {
				continue
			}
			included[a.Args[0]] = true
			out = append(out, entry.Source)
		case AnnotationTypeBindingGroup:
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			varName := string(a.Args[1])
			var wgslType string
			if inner, ok := strings.CutPrefix(string(a.Args[2]), "array<"); ok {
				inner = strings.TrimSuffix(inner, ">")
				wgslType = fmt.Sprintf("array<%s>", p.structRegistry[AnnotationArg(inner)].Type)
			} else {
				wgslType = p.structRegistry[a.Args[2]].Type
			}

			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, varName, wgslType))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeProvider:
			p.declarations = append(p.declarations, *a)
		case annotationTypeDefine:
			name, typ := string(a.Args[0]), string(a.Args[1])
			value, ok := defines[name]
			if !ok {
				return "", fmt.Errorf("line %d: define %s is not set for this variant", i+1, name)
			}
			literal, err := defineLiteral(value, typ)
			if err != nil {
				return "", fmt.Errorf("line %d: define %s: %w", i+1, name, err)
			}
			out = append(out, fmt.Sprintf("const %s: %s = %s;", name, typ, literal))
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}

	if len(stack) > 0 {
		return "", fmt.Errorf("line %d: unterminated @ssgi if", stack[len(stack)-1].line)
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}

// defineLiteral converts a define value into a typed WGSL literal.
func defineLiteral(value, typ string) (string, error) {
	switch typ {
	case "u32":
		n, err := strconv.ParseUint(strings.TrimSuffix(value, "u"), 10, 32)
		if err != nil {
			return "", fmt.Errorf("%q is not a u32", value)
		}
		return strconv.FormatUint(n, 10) + "u", nil
	case "i32":
		n, err := strconv.ParseInt(strings.TrimSuffix(value, "i"), 10, 32)
		if err != nil {
			return "", fmt.Errorf("%q is not an i32", value)
		}
		return strconv.FormatInt(n, 10) + "i", nil
	case "f32":
		f, err := strconv.ParseFloat(strings.TrimSuffix(value, "f"), 32)
		if err != nil {
			return "", fmt.Errorf("%q is not an f32", value)
		}
		s := strconv.FormatFloat(f, 'f', -1, 32)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s, nil
	case "bool":
		if value == "" {
			return "true", nil
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", fmt.Errorf("%q is not a bool", value)
		}
		return strconv.FormatBool(b), nil
	default:
		return "", fmt.Errorf("unsupported type %q", typ)
	}
}
