package bind_group_provider

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
)

func TestPendingWritesDrainInBindingOrder(t *testing.T) {
	frame := &uniforms.GPUFrameUniform{Frame: 3}
	params := &uniforms.GPUComposeParams{F0: 0.04}
	p := NewBindGroupProvider("test", WithUniform(5, params), WithUniform(1, frame))

	writes := p.PendingWrites()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(writes))
	}
	want := []struct {
		binding int
		size    int
	}{
		{1, 32},
		{5, 16},
	}
	for i, w := range want {
		if writes[i].Binding != w.binding || len(writes[i].Data) != w.size {
			t.Fatalf("[case %d] expected binding %d with %d bytes, got binding %d with %d bytes",
				i, w.binding, w.size, writes[i].Binding, len(writes[i].Data))
		}
		if writes[i].End() != uint64(w.size) {
			t.Fatalf("[case %d] expected end %d, got %d", i, w.size, writes[i].End())
		}
	}
	if again := p.PendingWrites(); len(again) != 0 {
		t.Fatalf("expected no pending writes after drain, got %d", len(again))
	}

	p.SetUniform(1, frame)
	if again := p.PendingWrites(); len(again) != 1 || again[0].Binding != 1 {
		t.Fatalf("expected one write for binding 1 after SetUniform, got %+v", again)
	}
}

func TestTexturesAndRelease(t *testing.T) {
	tex, _ := texture.New("t", common.Size{Width: 2, Height: 2})
	p := NewBindGroupProvider("test", WithTexture(0, tex))
	if p.Texture(0) != tex {
		t.Fatal("expected the bound texture at binding 0")
	}
	p.SetTexture(0, nil)
	if p.Texture(0) != nil || len(p.Textures()) != 0 {
		t.Fatal("expected nil to remove the binding")
	}

	p.SetTexture(2, tex)
	p.SetUniform(3, &uniforms.GPUFrameUniform{})
	p.Release()
	if len(p.Textures()) != 0 || len(p.Uniforms()) != 0 || len(p.PendingWrites()) != 0 {
		t.Fatal("expected Release to drop every binding")
	}
	p.Release()
}
