package ssgi

import (
	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/kernel"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
)

// defaultResetVariance is the variance reported for pixels without valid history, so the
// spatial filter treats them as maximally noisy.
const defaultResetVariance = 1

// DefaultComposeParams returns the composition coefficients used unless WithCompositionParams
// overrides them.
func DefaultComposeParams() uniforms.GPUComposeParams {
	return uniforms.GPUComposeParams{
		F0:              0.04,
		SaturationBoost: 0.5,
		LumaWeight:      0.5,
	}
}

func raymarchDefines(o Options, useEnv bool) shader.Defines {
	return shader.Defines{}.
		SetInt(kernel.DefineSteps, o.Steps).
		SetInt(kernel.DefineRefineSteps, o.RefineSteps).
		SetInt(kernel.DefineSPP, o.SPP).
		SetFlag(kernel.DefineMissedRays, o.MissedRays).
		SetFlag(kernel.DefineUseEnvMap, useEnv)
}

func temporalDefines(o Options) shader.Defines {
	return shader.Defines{}.
		SetInt(kernel.DefineCorrectionRadius, o.correctionRadius()).
		SetFlag(kernel.DefineReflectionsOnly, o.ReflectionsOnly)
}

func denoiseDefines(last bool) shader.Defines {
	return shader.Defines{}.SetFlag(kernel.DefineCompose, last)
}

func raymarchParams(o Options, maxEnvMip int) uniforms.GPURaymarchParams {
	return uniforms.GPURaymarchParams{
		RayDistance:     o.Distance,
		Thickness:       o.Thickness,
		Jitter:          o.Jitter,
		JitterRoughness: o.JitterRoughness,
		MaxEnvMipLevel:  float32(maxEnvMip),
	}
}

func temporalParams(o Options, resetVariance float32, reprojection common.Size) uniforms.GPUTemporalParams {
	return uniforms.GPUTemporalParams{
		Blend:                  o.Blend,
		Correction:             o.Correction,
		ResetVariance:          resetVariance,
		ReprojectionResolution: [2]float32{float32(reprojection.Width), float32(reprojection.Height)},
	}
}

// denoiseParams returns the uniform block of one à-trous iteration; the tap spacing doubles
// every iteration.
func denoiseParams(o Options, iteration int) uniforms.GPUDenoiseParams {
	return uniforms.GPUDenoiseParams{
		LumaPhi:         o.LumaPhi,
		DepthPhi:        o.DepthPhi,
		NormalPhi:       o.NormalPhi,
		RoughnessPhi:    o.RoughnessPhi,
		CurvaturePhi:    o.CurvaturePhi,
		Jitter:          o.Jitter,
		JitterRoughness: o.JitterRoughness,
		KernelRadius:    uint32(o.DenoiseKernel),
		StepSize:        1 << uint(iteration),
		Iteration:       uint32(iteration),
	}
}

// KernelVariant is one compiled kernel configuration.
type KernelVariant struct {
	Name    kernel.Name
	Defines shader.Defines
}

// KernelVariants lists every kernel variant an effect running with o can select, with and
// without an environment map.
func KernelVariants(o Options) []KernelVariant {
	return []KernelVariant{
		{kernel.GBuffer, shader.Defines{}},
		{kernel.Raymarch, raymarchDefines(o, false)},
		{kernel.Raymarch, raymarchDefines(o, true)},
		{kernel.Temporal, temporalDefines(o)},
		{kernel.Denoise, denoiseDefines(false)},
		{kernel.Denoise, denoiseDefines(true)},
		{kernel.Compose, shader.Defines{}},
	}
}
