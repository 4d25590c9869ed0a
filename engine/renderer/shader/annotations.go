// annotations.go defines the annotation types, argument constants, and parser for the
// SSGI WGSL kernel pre-processor. Annotations are single-line WGSL comments prefixed
// with @ssgi: that drive struct and library injection, storage binding declaration,
// resource role registration, and compile-time variant selection. The parsed results are
// stored as Annotation values and consumed by the PreProcessor and the effect stages to
// bind textures to kernels without variable-name string matching.
package shader

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an annotation within a WGSL comment line.
// Every annotation must appear on a line beginning with "//" followed by this prefix.
const annotationPrefix = "@ssgi:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects a registered WGSL struct or function library at the
	// annotation site. It does not produce a declaration.
	//
	// Syntax: //@ssgi:include <struct_type>
	//
	// Example: //@ssgi:include camera
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a WGSL @group/@binding variable declaration
	// and appends an Annotation to the PreProcessor's declarations list.
	//
	// Syntax: //@ssgi:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@ssgi:group 0 3 storage_read depth_in array<texel>
	AnnotationTypeBindingGroup AnnotationType = "group"

	// AnnotationTypeProvider attaches a resource identity and an optional binding role to a
	// group and binding without generating any WGSL output. Stages use these declarations to
	// decide which texture handle belongs in each binding.
	//
	// Syntax:
	//   //@ssgi:provider <group> <binding> <provider_identity>
	//   //@ssgi:provider <group> <binding> <provider_identity> <binding_role>
	//
	// Examples:
	//   //@ssgi:provider 0 3 gbuffer depth
	//   //@ssgi:provider 0 9 environment
	AnnotationTypeProvider AnnotationType = "provider"

	// annotationTypeDefine emits a WGSL constant whose value comes from the variant's defines.
	// A missing define is an error so that every variant is fully specified.
	//
	// Syntax: //@ssgi:define <NAME> <wgsl_scalar_type>
	//
	// Example: //@ssgi:define STEPS u32
	annotationTypeDefine AnnotationType = "define"

	// annotationTypeIf starts a block that is kept only when the named define is present.
	// A leading "!" inverts the test. Blocks may nest.
	//
	// Syntax: //@ssgi:if <NAME> | //@ssgi:if !<NAME>
	annotationTypeIf AnnotationType = "if"

	// annotationTypeElse flips the innermost open if block.
	annotationTypeElse AnnotationType = "else"

	// annotationTypeEndif closes the innermost open if block.
	annotationTypeEndif AnnotationType = "endif"
)

// Annotation represents a single parsed @ssgi: annotation from a WGSL shader source line.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include:  [0] = struct type key (e.g. "camera")
	//   - group:    [0] = address space, [1] = var name, [2] = WGSL type key
	//   - provider: [0] = provider identity (e.g. "gbuffer"), [1] = binding role (optional, e.g. "depth")
	//   - define:   [0] = define name, [1] = WGSL scalar type
	//   - if:       [0] = define name, prefixed with "!" when negated
	Args []AnnotationArg

	// Line is the 1-based line number in the original WGSL source where this annotation
	// was found. Used for error reporting.
	Line int

	// Group is the @group index for group and provider annotations. Nil otherwise.
	Group *int

	// Binding is the @binding index for group and provider annotations. Nil otherwise.
	Binding *int
}

// Identity returns the provider identity of a provider annotation, or "" for any other type.
//
// Returns:
//   - AnnotationArg: the provider identity
func (a Annotation) Identity() AnnotationArg {
	if a.Type != AnnotationTypeProvider || len(a.Args) == 0 {
		return ""
	}
	return a.Args[0]
}

// Role returns the binding role of a provider annotation, or "" when none was given.
//
// Returns:
//   - AnnotationArg: the binding role
func (a Annotation) Role() AnnotationArg {
	if a.Type != AnnotationTypeProvider || len(a.Args) < 2 {
		return ""
	}
	return a.Args[1]
}

// AnnotationArg is a typed string constant used as an argument in annotations.
type AnnotationArg string

// ── Struct type arguments ──────────────────────────────────────────────────────
// These identify registered WGSL structs and libraries. Struct types can appear in
// @ssgi:include annotations and in @ssgi:group annotations (optionally wrapped in array<>).

const (
	// AnnotationArgCamera identifies the CameraUniform struct.
	// Source: engine/camera/assets/camera_uniform.wgsl
	AnnotationArgCamera AnnotationArg = "camera"

	// AnnotationArgFrame identifies the FrameUniform struct (resolutions + frame index).
	// Source: engine/ssgi/uniforms/assets/frame.wgsl
	AnnotationArgFrame AnnotationArg = "frame"

	// AnnotationArgRaymarchParams identifies the RaymarchParams struct.
	// Source: engine/ssgi/uniforms/assets/raymarch_params.wgsl
	AnnotationArgRaymarchParams AnnotationArg = "raymarch_params"

	// AnnotationArgTemporalParams identifies the TemporalParams struct.
	// Source: engine/ssgi/uniforms/assets/temporal_params.wgsl
	AnnotationArgTemporalParams AnnotationArg = "temporal_params"

	// AnnotationArgDenoiseParams identifies the DenoiseParams struct.
	// Source: engine/ssgi/uniforms/assets/denoise_params.wgsl
	AnnotationArgDenoiseParams AnnotationArg = "denoise_params"

	// AnnotationArgComposeParams identifies the ComposeParams struct.
	// Source: engine/ssgi/uniforms/assets/compose_params.wgsl
	AnnotationArgComposeParams AnnotationArg = "compose_params"

	// AnnotationArgEnvLevel identifies the EnvLevel struct describing one packed mip level.
	// Source: engine/ssgi/uniforms/assets/env_level.wgsl
	AnnotationArgEnvLevel AnnotationArg = "env_level"

	// AnnotationArgTexel identifies a single RGBA32F texel. It has no struct source and
	// resolves to vec4<f32>, so array<texel> is a texture stored as a flat storage buffer.
	AnnotationArgTexel AnnotationArg = "texel"

	// annotationArgUtils identifies the shared WGSL helper library (luminance, depth
	// linearization, view position reconstruction, hashing).
	// Source: engine/ssgi/uniforms/assets/utils.wgsl
	annotationArgUtils AnnotationArg = "utils"

	// annotationArgComposeLib identifies the WGSL composition function shared by the last
	// denoise iteration and the standalone compose kernel.
	// Source: engine/ssgi/uniforms/assets/compose.wgsl
	annotationArgComposeLib AnnotationArg = "compose"
)

// ── Address space arguments ────────────────────────────────────────────────────

const (
	// annotationArgStorageTypeUniform maps to var<uniform> in WGSL.
	annotationArgStorageTypeUniform AnnotationArg = "storage_uniform"

	// annotationArgStorageTypeRead maps to var<storage, read> in WGSL.
	annotationArgStorageTypeRead AnnotationArg = "storage_read"

	// annotationArgStorageTypeReadWrite maps to var<storage, read_write> in WGSL.
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

// ── Provider identity arguments ────────────────────────────────────────────────
// These identify which owner supplies the texture or uniform bound at a binding.

const (
	// AnnotationArgSurface identifies the host frame buffer set (read-only inputs).
	AnnotationArgSurface AnnotationArg = "surface"

	// AnnotationArgGBuffer identifies the pipeline-owned G-buffer written once per frame.
	AnnotationArgGBuffer AnnotationArg = "gbuffer"

	// AnnotationArgDirectLight identifies the host-supplied direct-light buffer.
	AnnotationArgDirectLight AnnotationArg = "direct_light"

	// AnnotationArgRadiance identifies the per-frame indirect radiance buffer.
	AnnotationArgRadiance AnnotationArg = "radiance"

	// AnnotationArgHistory identifies temporal history buffers.
	AnnotationArgHistory AnnotationArg = "history"

	// AnnotationArgReprojection identifies the depth/velocity pair used to reproject history.
	AnnotationArgReprojection AnnotationArg = "reprojection"

	// AnnotationArgEnvironment identifies the packed environment mip atlas and its level table.
	AnnotationArgEnvironment AnnotationArg = "environment"

	// AnnotationArgStageInput identifies the color input of a filtering stage.
	AnnotationArgStageInput AnnotationArg = "stage_input"

	// AnnotationArgStageOutput identifies the color output of a stage.
	AnnotationArgStageOutput AnnotationArg = "stage_output"

	// AnnotationArgParams identifies a uniform owned by the stage itself.
	AnnotationArgParams AnnotationArg = "params"
)

// ── Binding role arguments ─────────────────────────────────────────────────────
// These qualify individual bindings within a provider identity.

const (
	AnnotationArgRoleDepth    AnnotationArg = "depth"
	AnnotationArgRoleNormal   AnnotationArg = "normal"
	AnnotationArgRoleVelocity AnnotationArg = "velocity"
	AnnotationArgRoleDiffuse  AnnotationArg = "diffuse"

	// History roles; "_in" bindings read the previous frame, "_out" bindings write the current one.
	AnnotationArgRoleAccumIn     AnnotationArg = "accum_in"
	AnnotationArgRoleAccumOut    AnnotationArg = "accum_out"
	AnnotationArgRoleMomentsIn   AnnotationArg = "moments_in"
	AnnotationArgRoleMomentsOut  AnnotationArg = "moments_out"
	AnnotationArgRoleGeometryIn  AnnotationArg = "geometry_in"
	AnnotationArgRoleGeometryOut AnnotationArg = "geometry_out"

	// Environment roles.
	AnnotationArgRolePixels AnnotationArg = "pixels"
	AnnotationArgRoleLevels AnnotationArg = "levels"

	// Uniform roles.
	AnnotationArgRoleCamera  AnnotationArg = "camera"
	AnnotationArgRoleFrame   AnnotationArg = "frame"
	AnnotationArgRoleStage   AnnotationArg = "stage"
	AnnotationArgRoleCompose AnnotationArg = "compose"
)

// validStructTypes lists all AnnotationArg values accepted in @ssgi:include and as the
// type of an @ssgi:group annotation. Library entries are only valid for include.
var validStructTypes = []AnnotationArg{
	AnnotationArgCamera,
	AnnotationArgFrame,
	AnnotationArgRaymarchParams,
	AnnotationArgTemporalParams,
	AnnotationArgDenoiseParams,
	AnnotationArgComposeParams,
	AnnotationArgEnvLevel,
	AnnotationArgTexel,
}

var validLibraries = []AnnotationArg{
	annotationArgUtils,
	annotationArgComposeLib,
}

// validAddressSpaces lists all AnnotationArg values that are accepted as address
// space arguments in @ssgi:group annotations.
var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
}

// validProviderIdentities lists all AnnotationArg values that are accepted as
// provider identity arguments in @ssgi:provider annotations.
var validProviderIdentities = []AnnotationArg{
	AnnotationArgSurface,
	AnnotationArgGBuffer,
	AnnotationArgDirectLight,
	AnnotationArgRadiance,
	AnnotationArgHistory,
	AnnotationArgReprojection,
	AnnotationArgEnvironment,
	AnnotationArgStageInput,
	AnnotationArgStageOutput,
	AnnotationArgParams,
}

// validBindingRoles lists all AnnotationArg values that are accepted as binding
// role qualifiers in @ssgi:provider annotations.
var validBindingRoles = []AnnotationArg{
	AnnotationArgRoleDepth,
	AnnotationArgRoleNormal,
	AnnotationArgRoleVelocity,
	AnnotationArgRoleDiffuse,
	AnnotationArgRoleAccumIn,
	AnnotationArgRoleAccumOut,
	AnnotationArgRoleMomentsIn,
	AnnotationArgRoleMomentsOut,
	AnnotationArgRoleGeometryIn,
	AnnotationArgRoleGeometryOut,
	AnnotationArgRolePixels,
	AnnotationArgRoleLevels,
	AnnotationArgRoleCamera,
	AnnotationArgRoleFrame,
	AnnotationArgRoleStage,
	AnnotationArgRoleCompose,
}

// validDefineTypes lists the WGSL scalar types a define may be emitted as.
var validDefineTypes = []string{"u32", "i32", "f32", "bool"}

// defineNameRegex restricts define names to WGSL identifiers in upper snake case.
var defineNameRegex = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// parseAnnotation attempts to parse a single line of WGSL source as an @ssgi: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix. Returns
// a populated Annotation for valid annotations, or an error describing the problem for
// malformed annotations with correct prefix but invalid syntax or unknown arguments.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @ssgi annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case annotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @ssgi include annotation requires exactly one argument", lineNum)
		}
		arg := AnnotationArg(args[1])
		if !slices.Contains(validStructTypes, arg) && !slices.Contains(validLibraries, arg) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @ssgi include annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{arg},
			Line: lineNum,
		}, nil
	case AnnotationTypeBindingGroup:
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @ssgi group annotation requires exactly five arguments (group number, binding number, address space, var name, type)", lineNum)
		}
		groupInt, bindingInt, err := parseGroupBinding(args[1], args[2], lineNum, "group")
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @ssgi group annotation", lineNum, args[3])
		}
		typeArg := args[5]
		inner, isArray := strings.CutPrefix(typeArg, "array<")
		if isArray {
			inner = strings.TrimSuffix(inner, ">")
			if !slices.Contains(validStructTypes, AnnotationArg(inner)) {
				return nil, fmt.Errorf("line %d: unknown array element type %q in @ssgi group annotation", lineNum, inner)
			}
			if AnnotationArg(args[3]) == annotationArgStorageTypeUniform {
				return nil, fmt.Errorf("line %d: runtime-sized array %q cannot live in the uniform address space", lineNum, typeArg)
			}
		} else if !slices.Contains(validStructTypes, AnnotationArg(typeArg)) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @ssgi group annotation", lineNum, typeArg)
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &groupInt,
			Binding: &bindingInt,
		}, nil
	case AnnotationTypeProvider:
		if len(args) < 4 || len(args) > 5 {
			return nil, fmt.Errorf("line %d: @ssgi provider annotation requires three or four arguments (group, binding, provider identity[, binding role])", lineNum)
		}
		groupInt, bindingInt, err := parseGroupBinding(args[1], args[2], lineNum, "provider")
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validProviderIdentities, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown provider identity %q in @ssgi provider annotation", lineNum, args[3])
		}
		providerArgs := []AnnotationArg{AnnotationArg(args[3])}
		if len(args) == 5 {
			if !slices.Contains(validBindingRoles, AnnotationArg(args[4])) {
				return nil, fmt.Errorf("line %d: unknown binding role %q in @ssgi provider annotation", lineNum, args[4])
			}
			providerArgs = append(providerArgs, AnnotationArg(args[4]))
		}
		return &Annotation{
			Type:    AnnotationTypeProvider,
			Args:    providerArgs,
			Line:    lineNum,
			Group:   &groupInt,
			Binding: &bindingInt,
		}, nil
	case annotationTypeDefine:
		if len(args) != 3 {
			return nil, fmt.Errorf("line %d: @ssgi define annotation requires a name and a type", lineNum)
		}
		if !defineNameRegex.MatchString(args[1]) {
			return nil, fmt.Errorf("line %d: invalid define name %q", lineNum, args[1])
		}
		if !slices.Contains(validDefineTypes, args[2]) {
			return nil, fmt.Errorf("line %d: unsupported define type %q", lineNum, args[2])
		}
		return &Annotation{
			Type: annotationTypeDefine,
			Args: []AnnotationArg{AnnotationArg(args[1]), AnnotationArg(args[2])},
			Line: lineNum,
		}, nil
	case annotationTypeIf:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @ssgi if annotation requires exactly one define name", lineNum)
		}
		if !defineNameRegex.MatchString(strings.TrimPrefix(args[1], "!")) {
			return nil, fmt.Errorf("line %d: invalid define name %q in @ssgi if annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: annotationTypeIf,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case annotationTypeElse, annotationTypeEndif:
		if len(args) != 1 {
			return nil, fmt.Errorf("line %d: @ssgi %s annotation takes no arguments", lineNum, args[0])
		}
		return &Annotation{
			Type: AnnotationType(args[0]),
			Line: lineNum,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @ssgi annotation type %q", lineNum, args[0])
	}
}

func parseGroupBinding(group, binding string, lineNum int, kind string) (int, int, error) {
	groupInt, err := strconv.Atoi(group)
	if err != nil || groupInt < 0 {
		return 0, 0, fmt.Errorf("line %d: invalid group number %q in @ssgi %s annotation", lineNum, group, kind)
	}
	bindingInt, err := strconv.Atoi(binding)
	if err != nil || bindingInt < 0 {
		return 0, 0, fmt.Errorf("line %d: invalid binding number %q in @ssgi %s annotation", lineNum, binding, kind)
	}
	return groupInt, bindingInt, nil
}
