package ssgi

import (
	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/log"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/profiler"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
)

type EffectBuilderOption func(*effect)

// WithOptions replaces the default options. They are validated by NewEffect.
//
// Parameters:
//   - o: the effect options
//
// Returns:
//   - EffectBuilderOption: a function that sets the options
func WithOptions(o Options) EffectBuilderOption {
	return func(e *effect) {
		e.options = o
	}
}

// WithSize sets the output resolution before the first frame, overriding Options.Width and
// Options.Height regardless of where WithOptions appears. Without a size the effect sizes
// itself from the first frame's surfaces.
//
// Parameters:
//   - width, height: the output resolution in pixels
//
// Returns:
//   - EffectBuilderOption: a function that sets the initial size
func WithSize(width, height int) EffectBuilderOption {
	return func(e *effect) {
		e.initialSize = &common.Size{Width: width, Height: height}
	}
}

// WithCompositionParams overrides the coefficients used to mix the denoised indirect light
// with the direct light.
func WithCompositionParams(p uniforms.GPUComposeParams) EffectBuilderOption {
	return func(e *effect) {
		e.compose.params = p
	}
}

// WithTemporalParams sets the variance written for pixels whose history was rejected.
func WithTemporalParams(resetVariance float32) EffectBuilderOption {
	return func(e *effect) {
		e.temporal.resetVariance = resetVariance
	}
}

// WithLogger replaces the package logger.
func WithLogger(l log.Logger) EffectBuilderOption {
	return func(e *effect) {
		e.ctx.logger = l
	}
}

// WithProfiler records per-stage timings and frame statistics into p.
func WithProfiler(p *profiler.Profiler) EffectBuilderOption {
	return func(e *effect) {
		e.profiler = p
	}
}

// WithVariantCache shares a shader variant cache between effects.
func WithVariantCache(c *shader.VariantCache) EffectBuilderOption {
	return func(e *effect) {
		e.ctx.cache = c
	}
}
