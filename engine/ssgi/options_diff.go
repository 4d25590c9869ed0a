package ssgi

import "strings"

// change is the set of stage updates an options change requires.
type change uint32

const (
	changeResolution change = 1 << iota
	changeRaymarchVariant
	changeRaymarchParams
	changeTemporalVariant
	changeTemporalParams
	changeDenoiseParams
	changeIterations
	changeReprojection
)

var changeNames = []struct {
	c    change
	name string
}{
	{changeResolution, "resolution"},
	{changeRaymarchVariant, "raymarch variant"},
	{changeRaymarchParams, "raymarch params"},
	{changeTemporalVariant, "temporal variant"},
	{changeTemporalParams, "temporal params"},
	{changeDenoiseParams, "denoise params"},
	{changeIterations, "denoise iterations"},
	{changeReprojection, "reprojection source"},
}

func (c change) has(flag change) bool {
	return c&flag != 0
}

func (c change) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for _, n := range changeNames {
		if c.has(n.c) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ", ")
}

// diffOptions maps every field that differs between prev and next to the stage that owns it.
// Width and Height only seed the initial size and never produce a change.
func diffOptions(prev, next Options) change {
	var c change
	if prev.ResolutionScale != next.ResolutionScale {
		c |= changeResolution
	}
	if prev.Steps != next.Steps || prev.RefineSteps != next.RefineSteps ||
		prev.SPP != next.SPP || prev.MissedRays != next.MissedRays {
		c |= changeRaymarchVariant
	}
	if prev.Distance != next.Distance || prev.Thickness != next.Thickness {
		c |= changeRaymarchParams
	}
	if prev.correctionRadius() != next.correctionRadius() || prev.ReflectionsOnly != next.ReflectionsOnly {
		c |= changeTemporalVariant
	}
	if prev.Blend != next.Blend || prev.Correction != next.Correction {
		c |= changeTemporalParams
	}
	if prev.DenoiseKernel != next.DenoiseKernel || prev.LumaPhi != next.LumaPhi ||
		prev.DepthPhi != next.DepthPhi || prev.NormalPhi != next.NormalPhi ||
		prev.RoughnessPhi != next.RoughnessPhi || prev.CurvaturePhi != next.CurvaturePhi {
		c |= changeDenoiseParams
	}
	// jitter feeds both the ray-march and the spatial stage
	if prev.Jitter != next.Jitter || prev.JitterRoughness != next.JitterRoughness {
		c |= changeRaymarchParams | changeDenoiseParams
	}
	if prev.DenoiseIterations != next.DenoiseIterations {
		c |= changeIterations
	}
	if prev.Antialias != next.Antialias {
		c |= changeReprojection
	}
	return c
}
