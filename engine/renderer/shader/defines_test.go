package shader

import (
	"strings"
	"testing"
)

func TestDefinesSetDoesNotMutate(t *testing.T) {
	base := Defines{"STEPS": "20"}
	next := base.SetInt("SPP", 2).SetFlag("MISSED_RAYS", true)

	if base.Has("SPP") || base.Has("MISSED_RAYS") {
		t.Fatalf("expected the base defines to be unchanged, got %v", base)
	}
	if !next.Has("MISSED_RAYS") || next["MISSED_RAYS"] != "" {
		t.Errorf("expected MISSED_RAYS to be a bare flag, got %q", next["MISSED_RAYS"])
	}
	if off := next.SetFlag("MISSED_RAYS", false); off.Has("MISSED_RAYS") {
		t.Errorf("expected SetFlag(false) to remove the flag")
	}
}

func TestDefinesInt(t *testing.T) {
	d := Defines{"A": "12", "B": "7u", "C": "-3i", "D": "x", "E": ""}
	cases := []struct {
		name string
		want int
	}{
		{"A", 12},
		{"B", 7},
		{"C", -3},
		{"D", 99},
		{"E", 99},
		{"MISSING", 99},
	}
	for i, c := range cases {
		if got := d.Int(c.name, 99); got != c.want {
			t.Errorf("[case %d] expected %d for %s, got %d", i, c.want, c.name, got)
		}
	}
}

func TestDefinesStringAndHash(t *testing.T) {
	a := Defines{}.SetInt("STEPS", 20).SetInt("SPP", 1).SetFlag("MISSED_RAYS", true)
	b := Defines{}.SetFlag("MISSED_RAYS", true).SetInt("SPP", 1).SetInt("STEPS", 20)

	if got := a.String(); got != "MISSED_RAYS;SPP=1;STEPS=20" {
		t.Errorf("unexpected string %q", got)
	}
	if a.Hash() != b.Hash() || !a.Equal(b) {
		t.Errorf("expected insertion order not to matter")
	}
	if a.Hash() == a.SetInt("SPP", 2).Hash() {
		t.Errorf("expected different values to hash differently")
	}
	if (Defines)(nil).String() != "" {
		t.Errorf("expected nil defines to render empty")
	}
}

func TestVariantKey(t *testing.T) {
	d := Defines{"SPP": "1"}
	key := VariantKey("ssgi_raymarch", d)
	prefix, hash, ok := strings.Cut(key, "#")
	if !ok || prefix != "ssgi_raymarch" || len(hash) != 16 {
		t.Fatalf("unexpected variant key %q", key)
	}
	if VariantKey("ssgi_raymarch", d.Clone()) != key {
		t.Errorf("expected equal defines to produce the same key")
	}
	if VariantKey("ssgi_temporal", d) == key {
		t.Errorf("expected the base key to be part of the variant key")
	}
}
