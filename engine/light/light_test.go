package light

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestDirectionalIncident(t *testing.T) {
	l := NewLight(LightTypeDirectional, WithDirection(mgl32.Vec3{0, -2, 0}), WithIntensity(3))
	toLight, radiance, dist := l.Incident(mgl32.Vec3{5, 5, 5})
	if !toLight.ApproxEqual(mgl32.Vec3{0, 1, 0}) {
		t.Fatalf("expected light above, got %v", toLight)
	}
	if !radiance.ApproxEqual(mgl32.Vec3{3, 3, 3}) {
		t.Fatalf("expected unattenuated radiance, got %v", radiance)
	}
	if !math.IsInf(float64(dist), 1) {
		t.Fatalf("expected infinite distance, got %f", dist)
	}
}

func TestPointIncidentAttenuation(t *testing.T) {
	l := NewLight(LightTypePoint, WithPosition(mgl32.Vec3{0, 2, 0}), WithRange(100))
	_, near, _ := l.Incident(mgl32.Vec3{0, 1, 0})
	_, far, _ := l.Incident(mgl32.Vec3{0, -2, 0})
	if near[0] <= far[0] {
		t.Fatalf("expected closer point to receive more light: near %f far %f", near[0], far[0])
	}
	_, out, _ := l.Incident(mgl32.Vec3{0, 200, 0})
	if out != (mgl32.Vec3{}) {
		t.Fatalf("expected zero radiance out of range, got %v", out)
	}
}

func TestSpotIncidentCone(t *testing.T) {
	l := NewLight(LightTypeSpot,
		WithPosition(mgl32.Vec3{0, 5, 0}),
		WithDirection(mgl32.Vec3{0, -1, 0}),
		WithSpotCone(10, 20),
		WithRange(50),
	)
	_, inside, _ := l.Incident(mgl32.Vec3{0, 0, 0})
	_, outside, _ := l.Incident(mgl32.Vec3{5, 0, 0})
	if inside[0] <= 0 {
		t.Fatalf("expected light on the cone axis, got %v", inside)
	}
	if outside != (mgl32.Vec3{}) {
		t.Fatalf("expected no light outside the cone, got %v", outside)
	}
}
