package ssgi

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Options is the full set of tunable parameters of the effect. It is a value type: the effect
// keeps its own copy and changes are applied through SetOptions.
type Options struct {
	// Width and Height give the initial host resolution. Zero leaves the effect unsized until the
	// first SetSize or Update.
	Width  int `json:"width"`
	Height int `json:"height"`

	// ResolutionScale multiplies the host resolution to get the internal resolution.
	ResolutionScale float64 `json:"resolutionScale"`

	// Ray-march variant switches.
	Steps       int  `json:"steps"`
	RefineSteps int  `json:"refineSteps"`
	SPP         int  `json:"spp"`
	MissedRays  bool `json:"missedRays"`

	// Distance is the unattenuated ray length in view units; rays march up to twice as far.
	Distance float32 `json:"distance"`

	// Thickness is the depth-test epsilon in view units: a ray hits when it is behind the
	// surface by less than Thickness.
	Thickness float32 `json:"thickness"`

	DenoiseIterations int `json:"denoiseIterations"`
	DenoiseKernel     int `json:"denoiseKernel"`

	LumaPhi float32 `json:"lumaPhi"`
	// DepthPhi is the depth tolerance of the spatial filter in percent of the view depth.
	DepthPhi     float32 `json:"depthPhi"`
	NormalPhi    float32 `json:"normalPhi"`
	RoughnessPhi float32 `json:"roughnessPhi"`
	CurvaturePhi float32 `json:"curvaturePhi"`

	Blend      float32 `json:"blend"`
	Correction float32 `json:"correction"`
	// CorrectionRadius is rounded to the nearest integer before it reaches the kernel.
	CorrectionRadius float32 `json:"correctionRadius"`

	Jitter          float32 `json:"jitter"`
	JitterRoughness float32 `json:"jitterRoughness"`

	ReflectionsOnly bool `json:"reflectionsOnly"`
	Antialias       bool `json:"antialias"`
}

// DefaultOptions returns the options an effect is created with when none are given.
func DefaultOptions() Options {
	return Options{
		ResolutionScale:   1,
		Steps:             20,
		RefineSteps:       5,
		SPP:               1,
		MissedRays:        true,
		Distance:          10,
		Thickness:         0.5,
		DenoiseIterations: 3,
		DenoiseKernel:     2,
		LumaPhi:           10,
		DepthPhi:          2,
		NormalPhi:         50,
		RoughnessPhi:      1,
		CurvaturePhi:      1,
		Blend:             0.9,
		Correction:        1,
		CorrectionRadius:  1,
		Jitter:            0,
		JitterRoughness:   1,
	}
}

const (
	maxSteps          = 256
	maxRefineSteps    = 64
	maxSPP            = 64
	maxIterations     = 16
	maxKernelRadius   = 8
	maxCorrection     = 8
	maxResolutionRate = 2
)

// Validate checks every field against its supported range.
//
// Returns:
//   - error: ErrInvalidOptions wrapped with the first offending field, or nil
func (o Options) Validate() error {
	checks := []struct {
		field string
		ok    bool
	}{
		{"width", o.Width >= 0},
		{"height", o.Height >= 0},
		{"resolutionScale", o.ResolutionScale > 0 && o.ResolutionScale <= maxResolutionRate},
		{"steps", o.Steps >= 1 && o.Steps <= maxSteps},
		{"refineSteps", o.RefineSteps >= 0 && o.RefineSteps <= maxRefineSteps},
		{"spp", o.SPP >= 1 && o.SPP <= maxSPP},
		{"distance", o.Distance > 0},
		{"thickness", o.Thickness > 0},
		{"denoiseIterations", o.DenoiseIterations >= 0 && o.DenoiseIterations <= maxIterations},
		{"denoiseKernel", o.DenoiseKernel >= 0 && o.DenoiseKernel <= maxKernelRadius},
		{"lumaPhi", o.LumaPhi >= 0},
		{"depthPhi", o.DepthPhi >= 0},
		{"normalPhi", o.NormalPhi >= 0},
		{"roughnessPhi", o.RoughnessPhi >= 0},
		{"curvaturePhi", o.CurvaturePhi >= 0},
		{"blend", o.Blend >= 0 && o.Blend <= 1},
		{"correction", o.Correction >= 0 && o.Correction <= 1},
		{"correctionRadius", o.CorrectionRadius >= 0 && o.CorrectionRadius <= maxCorrection},
		{"jitter", o.Jitter >= 0},
		{"jitterRoughness", o.JitterRoughness >= 0},
	}
	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("%w: %s", ErrInvalidOptions, c.field)
		}
	}
	return nil
}

// correctionRadius returns the rounded search radius used as the temporal compile switch.
func (o Options) correctionRadius() int {
	return int(math.Round(float64(o.CorrectionRadius)))
}

// LoadOptions reads options from a JSON file. Fields missing from the file keep their
// DefaultOptions value.
//
// Parameters:
//   - path: the JSON file
//
// Returns:
//   - Options: the loaded options
//   - error: a read, decode, or validation error
func LoadOptions(path string) (Options, error) {
	o := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("read options: %w", err)
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("decode options %s: %w", path, err)
	}
	if err := o.Validate(); err != nil {
		return o, fmt.Errorf("options %s: %w", path, err)
	}
	return o, nil
}

// Save writes the options to a JSON file.
//
// Parameters:
//   - path: the destination file
//
// Returns:
//   - error: an encode or write error
func (o Options) Save(path string) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write options: %w", err)
	}
	return nil
}
