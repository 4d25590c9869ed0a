package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-ssgi/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/ssgi/kernel"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Compile every kernel variant the options select and print a summary table.
func validateKernels(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := loadOptions(ctx.String("options"))
	if err != nil {
		return err
	}

	cache := shader.NewVariantCache(0)
	variants := ssgi.KernelVariants(opts)
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Kernel", "Variant", "SPIR-V words", "Status"})
	failed := 0
	for _, v := range variants {
		p, err := kernel.Build(cache, v.Name, v.Defines)
		if err != nil {
			return err
		}
		words, err := shader.Compile(p.Shader())
		status := "ok"
		if err != nil {
			status = err.Error()
			failed++
		}
		table.Append([]string{string(v.Name), v.Defines.String(), fmt.Sprintf("%d", len(words)), status})
	}
	table.SetFooter([]string{"", "", "FAILED", fmt.Sprintf("%d / %d", failed, len(variants))})
	table.Render()
	logger.Noticef("kernel variants\n%s", buf.String())

	if failed > 0 {
		return fmt.Errorf("%d of %d kernel variants failed to compile", failed, len(variants))
	}
	return nil
}

// Write the default effect options to the file named by the first argument.
func writeDefaultOptions(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing options file argument")
	}
	path := ctx.Args().First()
	if err := ssgi.DefaultOptions().Save(path); err != nil {
		return err
	}
	logger.Noticef("wrote default options to %s", path)
	return nil
}
