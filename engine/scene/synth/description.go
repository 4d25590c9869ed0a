package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-ssgi/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrUnknownMaterial is returned when an object references a material id that is not declared.
var ErrUnknownMaterial = errors.New("synth: unknown material")

// ObjectType enumerates supported geometric primitives.
type ObjectType string

const (
	ObjectSphere ObjectType = "sphere"
	ObjectPlane  ObjectType = "plane"
	ObjectBox    ObjectType = "box"
)

// Material describes the surface properties written into the surface buffers.
type Material struct {
	ID        string     `json:"id"`
	Albedo    mgl32.Vec3 `json:"albedo"`
	Roughness float32    `json:"roughness"`
	Metalness float32    `json:"metalness"`
	Emissive  mgl32.Vec3 `json:"emissive"`
}

// Object is a single primitive in the scene.
type Object struct {
	Type       ObjectType `json:"type"`
	Position   mgl32.Vec3 `json:"position"`
	// Size holds the radius in X for spheres, the full extents for boxes, and the normal for planes.
	Size       mgl32.Vec3 `json:"size"`
	MaterialID string     `json:"material_id"`
}

// LightDesc describes one analytic light.
type LightDesc struct {
	Type      string     `json:"type"` // "directional", "point" or "spot"
	Position  mgl32.Vec3 `json:"position"`
	Direction mgl32.Vec3 `json:"direction"`
	Color     mgl32.Vec3 `json:"color"`
	Intensity float32    `json:"intensity"`
	Range     float32    `json:"range"`
	InnerDeg  float32    `json:"inner_deg"`
	OuterDeg  float32    `json:"outer_deg"`
}

// Description is the serializable form of a synthetic scene.
type Description struct {
	Name      string      `json:"name"`
	Materials []Material  `json:"materials"`
	Objects   []Object    `json:"objects"`
	Lights    []LightDesc `json:"lights"`
	// Sky is the radiance of the uniform environment, zero for none.
	Sky mgl32.Vec3 `json:"sky"`
}

// Load reads a Description from a JSON file.
func Load(path string) (*Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scene: %w", err)
	}
	defer f.Close()

	var d Description
	if err := json.NewDecoder(f).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode scene: %w", err)
	}
	return &d, nil
}

// Save writes a Description to a JSON file.
func Save(path string, d *Description) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create scene: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode scene: %w", err)
	}
	return nil
}

// CornellBox returns a box room with a red and a green wall, two blocks, a glossy sphere and a ceiling light.
func CornellBox() *Description {
	return &Description{
		Name: "cornell",
		Materials: []Material{
			{ID: "white", Albedo: mgl32.Vec3{0.73, 0.73, 0.73}, Roughness: 1},
			{ID: "red", Albedo: mgl32.Vec3{0.65, 0.05, 0.05}, Roughness: 1},
			{ID: "green", Albedo: mgl32.Vec3{0.12, 0.45, 0.15}, Roughness: 1},
			{ID: "gloss", Albedo: mgl32.Vec3{0.9, 0.9, 0.9}, Roughness: 0.15, Metalness: 1},
			{ID: "lamp", Albedo: mgl32.Vec3{1, 1, 1}, Roughness: 1, Emissive: mgl32.Vec3{4, 4, 4}},
		},
		Objects: []Object{
			{Type: ObjectPlane, Position: mgl32.Vec3{0, -1, 0}, Size: mgl32.Vec3{0, 1, 0}, MaterialID: "white"},
			{Type: ObjectPlane, Position: mgl32.Vec3{0, 1, 0}, Size: mgl32.Vec3{0, -1, 0}, MaterialID: "white"},
			{Type: ObjectPlane, Position: mgl32.Vec3{0, 0, -1}, Size: mgl32.Vec3{0, 0, 1}, MaterialID: "white"},
			{Type: ObjectPlane, Position: mgl32.Vec3{-1, 0, 0}, Size: mgl32.Vec3{1, 0, 0}, MaterialID: "red"},
			{Type: ObjectPlane, Position: mgl32.Vec3{1, 0, 0}, Size: mgl32.Vec3{-1, 0, 0}, MaterialID: "green"},
			{Type: ObjectBox, Position: mgl32.Vec3{-0.35, -0.4, -0.3}, Size: mgl32.Vec3{0.5, 1.2, 0.5}, MaterialID: "white"},
			{Type: ObjectBox, Position: mgl32.Vec3{0.35, -0.7, 0.25}, Size: mgl32.Vec3{0.55, 0.6, 0.55}, MaterialID: "white"},
			{Type: ObjectSphere, Position: mgl32.Vec3{0.35, -0.15, 0.25}, Size: mgl32.Vec3{0.25, 0, 0}, MaterialID: "gloss"},
			{Type: ObjectBox, Position: mgl32.Vec3{0, 0.99, 0}, Size: mgl32.Vec3{0.5, 0.02, 0.5}, MaterialID: "lamp"},
		},
		Lights: []LightDesc{
			{Type: "point", Position: mgl32.Vec3{0, 0.9, 0}, Color: mgl32.Vec3{1, 0.95, 0.88}, Intensity: 6, Range: 6},
		},
		Sky: mgl32.Vec3{0.05, 0.06, 0.08},
	}
}

func (d *Description) build() (world, []light.Light, error) {
	materials := make(map[string]Material, len(d.Materials))
	for _, m := range d.Materials {
		materials[m.ID] = m
	}

	w := make(world, 0, len(d.Objects))
	for i, o := range d.Objects {
		mat, ok := materials[o.MaterialID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: object %d references %q", ErrUnknownMaterial, i, o.MaterialID)
		}
		switch o.Type {
		case ObjectSphere:
			w = append(w, sphere{center: o.Position, radius: o.Size[0], mat: mat})
		case ObjectPlane:
			n := o.Size
			if n.Len() == 0 {
				n = mgl32.Vec3{0, 1, 0}
			}
			w = append(w, plane{point: o.Position, normal: n.Normalize(), mat: mat})
		case ObjectBox:
			half := o.Size.Mul(0.5)
			w = append(w, box{min: o.Position.Sub(half), max: o.Position.Add(half), mat: mat})
		default:
			return nil, nil, fmt.Errorf("synth: object %d has unknown type %q", i, o.Type)
		}
	}

	lights := make([]light.Light, 0, len(d.Lights))
	for _, ld := range d.Lights {
		opts := []light.LightBuilderOption{
			light.WithPosition(ld.Position),
			light.WithColor(ld.Color),
			light.WithIntensity(ld.Intensity),
		}
		if ld.Direction.Len() > 0 {
			opts = append(opts, light.WithDirection(ld.Direction))
		}
		if ld.Range > 0 {
			opts = append(opts, light.WithRange(ld.Range))
		}
		if ld.OuterDeg > 0 {
			opts = append(opts, light.WithSpotCone(ld.InnerDeg, ld.OuterDeg))
		}
		var lt light.LightType
		switch ld.Type {
		case "directional":
			lt = light.LightTypeDirectional
		case "point", "":
			lt = light.LightTypePoint
		case "spot":
			lt = light.LightTypeSpot
		default:
			return nil, nil, fmt.Errorf("synth: unknown light type %q", ld.Type)
		}
		lights = append(lights, light.NewLight(lt, opts...))
	}
	return w, lights, nil
}
