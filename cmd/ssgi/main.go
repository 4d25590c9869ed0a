package main

import (
	"os"

	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "ssgi"
	app.Usage = "run the screen-space global illumination pipeline on a synthetic scene"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render frames of a synthetic scene and write the last one as a PNG",
			Description: `
Rasterize a synthetic scene on the CPU, run the GI pipeline for a number of frames while
orbiting the camera, and write the tone-mapped result of the last frame. Without --scene the
built-in Cornell box is used.`,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 320,
					Usage: "output width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 240,
					Usage: "output height",
				},
				cli.IntFlag{
					Name:  "frames, n",
					Value: 16,
					Usage: "frames to accumulate before writing the output",
				},
				cli.Float64Flag{
					Name:  "orbit",
					Value: 0,
					Usage: "camera orbit per frame in degrees",
				},
				cli.StringFlag{
					Name:  "scene, s",
					Usage: "scene description JSON file",
				},
				cli.StringFlag{
					Name:  "sky",
					Usage: "equirectangular PNG used as the environment map",
				},
				cli.Float64Flag{
					Name:  "sky-intensity",
					Value: 1,
					Usage: "linear multiplier applied to the sky image",
				},
				cli.StringFlag{
					Name:  "options",
					Usage: "effect options JSON file",
				},
				cli.Float64Flag{
					Name:  "scale",
					Value: 0,
					Usage: "override the options' resolution scale",
				},
				cli.StringFlag{
					Name:  "backend, b",
					Value: "cpu",
					Usage: "compute backend: cpu or wgpu",
				},
				cli.IntFlag{
					Name:  "workers",
					Value: 0,
					Usage: "CPU backend workers, 0 for one per core",
				},
				cli.StringFlag{
					Name:  "tonemap",
					Value: "aces",
					Usage: "tone mapping operator: none, linear, reinhard or aces",
				},
				cli.Float64Flag{
					Name:  "exposure",
					Value: 1.0,
					Usage: "exposure applied before tone mapping",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image filename for the rendered frame",
				},
				cli.StringFlag{
					Name:  "debug-dir",
					Usage: "also write every intermediate buffer as a PNG into this directory",
				},
			},
			Action: renderFrames,
		},
		{
			Name:  "validate",
			Usage: "compile every kernel variant to SPIR-V",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "options",
					Usage: "effect options JSON file selecting the variants",
				},
			},
			Action: validateKernels,
		},
		{
			Name:      "options",
			Usage:     "write the default effect options as JSON",
			ArgsUsage: "file.json",
			Action:    writeDefaultOptions,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
