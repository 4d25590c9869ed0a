package shader

import (
	"errors"
	"strings"
	"testing"
)

const testKernel = `//@ssgi:include frame
//@ssgi:group 0 0 storage_uniform frame frame
//@ssgi:provider 0 0 params frame
//@ssgi:group 0 1 storage_read input_px array<texel>
//@ssgi:provider 0 1 stage_input
//@ssgi:group 0 2 storage_read_write output_px array<texel>
//@ssgi:provider 0 2 stage_output
//@ssgi:define SCALE f32

@compute @workgroup_size(8, 8)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.y * u32(frame.resolution.x) + id.x;
    output_px[i] = input_px[i] * SCALE;
}
`

func TestNewShader(t *testing.T) {
	defines := Defines{"SCALE": "2"}
	s, err := NewShader("scale", testKernel, defines)
	if err != nil {
		t.Fatalf("failed to build shader: %v", err)
	}

	if s.BaseKey() != "scale" || s.Key() != VariantKey("scale", defines) {
		t.Errorf("unexpected keys %q / %q", s.BaseKey(), s.Key())
	}
	if s.EntryPoint() != "main" {
		t.Errorf("expected entry point main, got %q", s.EntryPoint())
	}
	if s.WorkgroupSize() != [3]uint32{8, 8, 1} {
		t.Errorf("unexpected workgroup size %v", s.WorkgroupSize())
	}
	if !strings.Contains(s.Source(), "const SCALE: f32 = 2.0;") {
		t.Errorf("expected the define to be emitted:\n%s", s.Source())
	}

	bindings := s.Bindings()
	if len(bindings) != 3 {
		t.Fatalf("expected 3 bindings, got %d", len(bindings))
	}
	cases := []struct {
		name    string
		access  Access
		minSize uint64
		runtime bool
	}{
		{"frame", AccessUniform, 32, false},
		{"input_px", AccessRead, 16, true},
		{"output_px", AccessReadWrite, 16, true},
	}
	for i, c := range cases {
		b := bindings[i]
		if b.Name != c.name || b.Access != c.access || b.MinSize != c.minSize || b.RuntimeSized != c.runtime {
			t.Errorf("[case %d] unexpected binding %+v", i, b)
		}
	}

	if b, ok := s.BindGroupFromVarName(0, "output_px"); !ok || b != 2 {
		t.Errorf("expected output_px at binding 2, got %d (%v)", b, ok)
	}
	if b, ok := s.BindingForRole(AnnotationArgParams, AnnotationArgRoleFrame); !ok || b.Name != "frame" {
		t.Errorf("expected the frame role to resolve to the frame binding, got %+v (%v)", b, ok)
	}
	if _, ok := s.BindingForRole(AnnotationArgGBuffer, AnnotationArgRoleDepth); ok {
		t.Errorf("expected no gbuffer depth binding")
	}

	mutated := s.Defines()
	mutated["SCALE"] = "9"
	if s.Defines()["SCALE"] != "2" {
		t.Errorf("expected Defines to return a copy")
	}
}

func TestNewShaderErrors(t *testing.T) {
	if _, err := NewShader("empty", "fn helper() {}", Defines{}); !errors.Is(err, ErrNoEntryPoint) {
		t.Errorf("expected ErrNoEntryPoint, got %v", err)
	}
	if _, err := NewShader("scale", testKernel, Defines{}); err == nil || !strings.Contains(err.Error(), "SCALE") {
		t.Errorf("expected a missing define error, got %v", err)
	}
}
