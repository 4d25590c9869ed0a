package shader

import (
	"strings"
	"testing"
)

func TestProcessConditionals(t *testing.T) {
	src := strings.Join([]string{
		"//@ssgi:if ENV",
		"let a = 1;",
		"//@ssgi:if !MISSED",
		"let b = 2;",
		"//@ssgi:else",
		"let c = 3;",
		"//@ssgi:endif",
		"//@ssgi:else",
		"let d = 4;",
		"//@ssgi:endif",
	}, "\n")

	cases := []struct {
		defines Defines
		want    []string
		absent  []string
	}{
		{Defines{}, []string{"let d"}, []string{"let a", "let b", "let c"}},
		{Defines{"ENV": ""}, []string{"let a", "let b"}, []string{"let c", "let d"}},
		{Defines{"ENV": "", "MISSED": ""}, []string{"let a", "let c"}, []string{"let b", "let d"}},
		{Defines{"MISSED": ""}, []string{"let d"}, []string{"let a", "let b", "let c"}},
	}
	for i, c := range cases {
		out, err := NewPreProcessor().Process(src, c.defines)
		if err != nil {
			t.Fatalf("[case %d] unexpected error: %v", i, err)
		}
		for _, w := range c.want {
			if !strings.Contains(out, w) {
				t.Errorf("[case %d] expected %q in output:\n%s", i, w, out)
			}
		}
		for _, a := range c.absent {
			if strings.Contains(out, a) {
				t.Errorf("[case %d] expected %q to be dropped:\n%s", i, a, out)
			}
		}
		if strings.Contains(out, "@ssgi") {
			t.Errorf("[case %d] expected annotations to be consumed:\n%s", i, out)
		}
	}
}

func TestProcessErrors(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"//@ssgi:else", "without matching if"},
		{"//@ssgi:endif", "without matching if"},
		{"//@ssgi:if A\n//@ssgi:else\n//@ssgi:else\n//@ssgi:endif", "duplicate"},
		{"//@ssgi:if A\nlet x = 1;", "unterminated"},
		{"//@ssgi:define STEPS u32", "not set"},
		{"//@ssgi:include nonsense", "unknown struct type"},
		{"//@ssgi:group 0 0 storage_uniform frame array<texel>", "uniform address space"},
		{"//@ssgi:provider 0 0 nobody", "unknown provider identity"},
		{"//@ssgi:", "empty"},
	}
	for i, c := range cases {
		_, err := NewPreProcessor().Process(c.src, Defines{})
		if err == nil {
			t.Fatalf("[case %d] expected an error for %q", i, c.src)
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("[case %d] expected the error to mention %q, got %v", i, c.want, err)
		}
	}
}

func TestProcessDefineLiterals(t *testing.T) {
	defines := Defines{"STEPS": "20", "OFFSET": "-5", "SCALE": "1", "ENV": ""}
	src := strings.Join([]string{
		"//@ssgi:define STEPS u32",
		"//@ssgi:define OFFSET i32",
		"//@ssgi:define SCALE f32",
		"//@ssgi:define ENV bool",
	}, "\n")

	out, err := NewPreProcessor().Process(src, defines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, want := range []string{
		"const STEPS: u32 = 20u;",
		"const OFFSET: i32 = -5i;",
		"const SCALE: f32 = 1.0;",
		"const ENV: bool = true;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("[case %d] expected %q in output:\n%s", i, want, out)
		}
	}

	if _, err := NewPreProcessor().Process("//@ssgi:define STEPS u32", Defines{"STEPS": "-1"}); err == nil {
		t.Errorf("expected a negative u32 define to be rejected")
	}
}

func TestProcessIncludeOnce(t *testing.T) {
	src := "//@ssgi:include frame\n//@ssgi:include frame"
	out, err := NewPreProcessor().Process(src, Defines{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(out, "struct FrameUniform"); n != 1 {
		t.Errorf("expected the frame struct once, got %d copies", n)
	}
}

func TestProcessDeclarations(t *testing.T) {
	src := strings.Join([]string{
		"//@ssgi:include frame",
		"//@ssgi:group 0 0 storage_uniform frame frame",
		"//@ssgi:provider 0 0 params frame",
		"//@ssgi:group 0 1 storage_read depth_in array<texel>",
		"//@ssgi:provider 0 1 gbuffer depth",
		"//@ssgi:if ENV",
		"//@ssgi:group 0 2 storage_read env_in array<texel>",
		"//@ssgi:provider 0 2 environment pixels",
		"//@ssgi:endif",
	}, "\n")

	pp := NewPreProcessor()
	out, err := pp.Process(src, Defines{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, want := range []string{
		"@group(0) @binding(0) var<uniform> frame: FrameUniform;",
		"@group(0) @binding(1) var<storage, read> depth_in: array<vec4<f32>>;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("[case %d] expected %q in output:\n%s", i, want, out)
		}
	}
	if strings.Contains(out, "env_in") {
		t.Errorf("expected the environment binding to be dropped")
	}

	decls := pp.Declarations()
	if len(decls) != 4 {
		t.Fatalf("expected 4 declarations, got %d", len(decls))
	}
	if decls[3].Identity() != AnnotationArgGBuffer || decls[3].Role() != AnnotationArgRoleDepth || *decls[3].Binding != 1 {
		t.Errorf("unexpected provider declaration %+v", decls[3])
	}
	if decls[0].Identity() != "" {
		t.Errorf("expected group declarations to carry no identity")
	}

	if _, err := pp.Process("let x = 1;", Defines{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pp.Declarations()) != 0 {
		t.Errorf("expected declarations to reset between calls")
	}
}
