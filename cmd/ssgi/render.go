package main

import (
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/camera"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/environment"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/profiler"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/scene/synth"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/tonemap"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/urfave/cli"
)

const (
	// Orbit camera framing the unit room of the built-in scenes.
	cameraRadius float32 = 3.2
	cameraFov    float32 = 50
)

// Render frames of a synthetic scene through the pipeline.
func renderFrames(ctx *cli.Context) error {
	setupLogging(ctx)

	size := common.Size{Width: ctx.Int("width"), Height: ctx.Int("height")}
	if size.Width <= 0 || size.Height <= 0 {
		return fmt.Errorf("invalid output size %dx%d", size.Width, size.Height)
	}
	opts, err := loadOptions(ctx.String("options"))
	if err != nil {
		return err
	}
	opts.ResolutionScale = common.Coalesce(ctx.Float64("scale"), opts.ResolutionScale)
	desc := synth.CornellBox()
	if path := ctx.String("scene"); path != "" {
		if desc, err = synth.Load(path); err != nil {
			return err
		}
	}
	backend, err := renderer.ParseBackendType(ctx.String("backend"))
	if err != nil {
		return err
	}
	mode, err := tonemap.Parse(ctx.String("tonemap"))
	if err != nil {
		return err
	}

	rendererOpts := []renderer.RendererBuilderOption{renderer.WithToneMapping(mode)}
	if workers := ctx.Int("workers"); workers > 0 {
		rendererOpts = append(rendererOpts, renderer.WithWorkers(workers))
	}
	r, err := renderer.NewRenderer(backend, rendererOpts...)
	if err != nil {
		return err
	}
	defer r.Release()

	ctrl := camera.NewOrbitController(camera.WithRadius(cameraRadius), camera.WithElevation(0))
	cam := camera.NewCamera(
		camera.WithController(ctrl),
		camera.WithFov(mgl32.DegToRad(cameraFov)),
		camera.WithAspect(float32(size.Width)/float32(size.Height)),
	)
	cam.Update()

	sc, err := synth.New(desc, cam, size)
	if err != nil {
		return err
	}
	if path := ctx.String("sky"); path != "" {
		env, err := loadSky(path, float32(ctx.Float64("sky-intensity")))
		if err != nil {
			return err
		}
		sc.SetEnvironment(env)
	}

	prof := profiler.NewProfiler()
	effect, err := ssgi.NewEffect(r, sc, cam,
		ssgi.WithOptions(opts),
		ssgi.WithSize(size.Width, size.Height),
		ssgi.WithProfiler(prof),
	)
	if err != nil {
		return err
	}
	defer effect.Dispose()

	frames := max(ctx.Int("frames"), 1)
	orbit := mgl32.DegToRad(float32(ctx.Float64("orbit")))
	logger.Infof("rendering %d frames of %q at %dx%d (internal %v) on %v", frames, desc.Name, size.Width, size.Height, effect.Size(), backend)
	start := time.Now()
	for i := 0; i < frames; i++ {
		if i > 0 && orbit != 0 {
			ctrl.Orbit(orbit, 0)
		}
		cam.Update()
		prof.Measure("synth", sc.Render)
		if err := effect.Update(sc.DirectLight()); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	elapsed := time.Since(start)

	exposure := float32(ctx.Float64("exposure"))
	out := ctx.String("out")
	img := scaleTo(toneMapped(effect.Output(), effect.ToneMapping(), exposure), size)
	if err := writePNG(out, img); err != nil {
		return err
	}
	if dir := ctx.String("debug-dir"); dir != "" {
		if err := writeDebugViews(effect, dir); err != nil {
			return err
		}
	}

	texels, live := r.TexelsInUse()
	logger.Noticef("wrote %s after %d frames in %s (%d textures, %d texels)\n%s", out, frames, elapsed, live, texels, prof.Report())
	return nil
}

func loadOptions(path string) (ssgi.Options, error) {
	if path == "" {
		return ssgi.DefaultOptions(), nil
	}
	return ssgi.LoadOptions(path)
}

func loadSky(path string, intensity float32) (*environment.Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode sky %s: %w", path, err)
	}
	return environment.FromImage(filepath.Base(path), img, intensity)
}

func writeDebugViews(effect ssgi.Effect, dir string) error {
	views, err := effect.ReadDebugViews()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	buffers := []struct {
		name   string
		view   texture.View
		encode debugEncoding
	}{
		{"depth", views.Depth, encodeDepth},
		{"normal", views.Normal, encodeNormal},
		{"velocity", views.Velocity, encodeVelocity},
		{"diffuse", views.Diffuse, encodeColor},
		{"radiance", views.Radiance, encodeColor},
		{"temporal", views.Temporal, encodeColor},
		{"output", views.Output, encodeColor},
	}
	var errs []error
	for _, b := range buffers {
		if b.view == nil {
			continue
		}
		errs = append(errs, writePNG(filepath.Join(dir, b.name+".png"), debugImage(b.view, b.encode)))
	}
	logger.Infof("wrote %d debug views to %s", len(buffers), dir)
	return errors.Join(errs...)
}
