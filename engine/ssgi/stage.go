package ssgi

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/camera"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/log"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/kernel"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/uniforms"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
)

// sharedUniforms are rewritten once per frame and bound read-only by every stage.
type sharedUniforms struct {
	camera camera.GPUCameraUniform
	frame  uniforms.GPUFrameUniform
}

// stageContext is what every stage needs to build variants, allocate buffers and dispatch.
type stageContext struct {
	r      renderer.Renderer
	cache  *shader.VariantCache
	logger log.Logger
	shared *sharedUniforms
}

// allocate creates a stage-owned texture. Allocation failures are fatal for the frame.
func (ctx *stageContext) allocate(label string, size common.Size) (*texture.Texture, error) {
	t, err := ctx.r.AllocateTexture(label, size)
	if err != nil {
		return nil, fmt.Errorf("allocate %s: %w", label, err)
	}
	ctx.logger.Debugf("allocated %s (%dx%d)", label, size.Width, size.Height)
	return t, nil
}

// allocateAll fills every target and joins the failures. Targets that did allocate are left
// set so the caller can release them.
func (ctx *stageContext) allocateAll(size common.Size, targets map[string]**texture.Texture) error {
	var errs []error
	for label, dst := range targets {
		t, err := ctx.allocate(label, size)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*dst = t
	}
	return errors.Join(errs...)
}

// release frees stage-owned textures and clears the references.
func (ctx *stageContext) release(textures ...**texture.Texture) {
	for _, t := range textures {
		if *t == nil {
			continue
		}
		ctx.r.ReleaseTexture(*t)
		*t = nil
	}
}

func (ctx *stageContext) sharedResources() []resource {
	return []resource{
		uniformAt(shader.AnnotationArgParams, shader.AnnotationArgRoleCamera, &ctx.shared.camera),
		uniformAt(shader.AnnotationArgParams, shader.AnnotationArgRoleFrame, &ctx.shared.frame),
	}
}

// resource is the texture or uniform a stage supplies for one provider identity and role.
type resource struct {
	identity shader.AnnotationArg
	role     shader.AnnotationArg
	texture  texture.View
	uniform  bind_group_provider.Uniform
}

func textureAt(identity, role shader.AnnotationArg, t texture.View) resource {
	return resource{identity: identity, role: role, texture: t}
}

func uniformAt(identity, role shader.AnnotationArg, u bind_group_provider.Uniform) resource {
	return resource{identity: identity, role: role, uniform: u}
}

// variant tracks the kernel variant a stage currently dispatches.
type variant struct {
	name     kernel.Name
	defines  shader.Defines
	pipeline pipeline.Pipeline
}

// selectDefines switches the variant to the one compiled with defines, registering it with
// the renderer on first use.
//
// Parameters:
//   - ctx: the stage context
//   - defines: the requested compile-time switches
//
// Returns:
//   - bool: true when the variant changed and providers must be rebound
//   - error: a build or registration error
func (v *variant) selectDefines(ctx *stageContext, defines shader.Defines) (bool, error) {
	if v.pipeline != nil && v.defines.Equal(defines) {
		return false, nil
	}
	p, err := kernel.Build(ctx.cache, v.name, defines)
	if err != nil {
		return false, err
	}
	if err := ctx.r.RegisterPipelines(p); err != nil {
		return false, err
	}
	if v.pipeline != nil {
		ctx.logger.Infof("%s switched to variant [%s]", v.name, defines)
	}
	// the renderer keeps the first pipeline registered under a key
	v.pipeline = ctx.r.Pipeline(p.PipelineKey())
	v.defines = defines.Clone()
	return true, nil
}

// bind creates a provider holding every resource the variant declares. Resources for
// bindings the variant compiled out are skipped.
//
// Parameters:
//   - ctx: the stage context
//   - label: the provider's debug label
//   - resources: the candidate resources
//
// Returns:
//   - bind_group_provider.BindGroupProvider: the validated provider
//   - error: a binding error when a declared binding has no resource
func (v *variant) bind(ctx *stageContext, label string, resources []resource) (bind_group_provider.BindGroupProvider, error) {
	s := v.pipeline.Shader()
	provider := bind_group_provider.NewBindGroupProvider(label)
	for _, res := range resources {
		b, ok := s.BindingForRole(res.identity, res.role)
		if !ok {
			continue
		}
		if res.uniform != nil {
			provider.SetUniform(b.Binding, res.uniform)
			continue
		}
		provider.SetTexture(b.Binding, res.texture)
	}
	if err := ctx.r.InitBindGroup(v.pipeline.PipelineKey(), provider); err != nil {
		provider.Release()
		return nil, fmt.Errorf("bind %s: %w", label, err)
	}
	return provider, nil
}

// dispatch marks the per-frame uniforms for upload and records the variant over size.
func (v *variant) dispatch(ctx *stageContext, provider bind_group_provider.BindGroupProvider, size common.Size) error {
	s := v.pipeline.Shader()
	for _, role := range []shader.AnnotationArg{shader.AnnotationArgRoleCamera, shader.AnnotationArgRoleFrame} {
		if b, ok := s.BindingForRole(shader.AnnotationArgParams, role); ok {
			provider.SetUniform(b.Binding, provider.Uniform(b.Binding))
		}
	}
	ctx.r.WriteBuffers(provider.PendingWrites())
	if err := ctx.r.DispatchCompute(v.pipeline.PipelineKey(), provider, size); err != nil {
		return fmt.Errorf("dispatch %s: %w", provider.Label(), err)
	}
	return nil
}

// touch marks the stage uniform bound under role for upload after its value changed.
func (v *variant) touch(provider bind_group_provider.BindGroupProvider, role shader.AnnotationArg) {
	if provider == nil || v.pipeline == nil {
		return
	}
	if b, ok := v.pipeline.Shader().BindingForRole(shader.AnnotationArgParams, role); ok {
		if u := provider.Uniform(b.Binding); u != nil {
			provider.SetUniform(b.Binding, u)
		}
	}
}

func releaseProvider(p *bind_group_provider.BindGroupProvider) {
	if *p == nil {
		return
	}
	(*p).Release()
	*p = nil
}

// viewOf converts an owned texture to a View without producing a non-nil interface around a nil pointer.
func viewOf(t *texture.Texture) texture.View {
	if t == nil {
		return nil
	}
	return t
}
