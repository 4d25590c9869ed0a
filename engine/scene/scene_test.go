package scene

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/environment"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

func TestSceneEnvironmentSwap(t *testing.T) {
	env, _ := environment.NewUniform("env", common.Size{Width: 4, Height: 2}, mgl32.Vec3{1, 1, 1})
	s := NewScene(WithName("test"), WithEnvironment(env))
	if s.Name() != "test" {
		t.Fatalf("expected name test, got %s", s.Name())
	}
	if s.Environment() != env {
		t.Fatal("expected the initial environment")
	}
	s.SetEnvironment(nil)
	if s.Environment() != nil {
		t.Fatal("expected the environment to be removed")
	}
}

func TestSceneLightsSnapshot(t *testing.T) {
	s := NewScene(WithLights(light.NewLight(light.LightTypeDirectional)))
	s.AddLight(light.NewLight(light.LightTypePoint))

	lights := s.Lights()
	if len(lights) != 2 {
		t.Fatalf("expected 2 lights, got %d", len(lights))
	}
	lights[0] = nil
	if s.Lights()[0] == nil {
		t.Fatal("expected Lights to return a copy")
	}
}
