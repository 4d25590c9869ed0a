package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/tonemap"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
	xdraw "golang.org/x/image/draw"
)

// debugEncoding maps a raw texel to a displayable linear color.
type debugEncoding func(v mgl32.Vec4) mgl32.Vec3

func encodeColor(v mgl32.Vec4) mgl32.Vec3 {
	return tonemap.ACES.Apply(v.Vec3(), 1)
}

// encodeDepth shows linear view depth, stored in G, with near surfaces bright.
func encodeDepth(v mgl32.Vec4) mgl32.Vec3 {
	if v[0] >= 1 {
		return mgl32.Vec3{}
	}
	g := 1 / (1 + v[1])
	return mgl32.Vec3{g, g, g}
}

func encodeNormal(v mgl32.Vec4) mgl32.Vec3 {
	return v.Vec3().Mul(0.5).Add(mgl32.Vec3{0.5, 0.5, 0.5})
}

// encodeVelocity amplifies UV motion so sub-pixel movement is visible.
func encodeVelocity(v mgl32.Vec4) mgl32.Vec3 {
	return mgl32.Vec3{0.5 + 50*v[0], 0.5 + 50*v[1], 0.5}
}

// srgb encodes linear color in [0, 1] to an 8-bit sRGB pixel.
func srgb(c mgl32.Vec3) color.RGBA {
	r, g, b := colorful.LinearRgb(float64(c[0]), float64(c[1]), float64(c[2])).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func debugImage(v texture.View, encode debugEncoding) *image.RGBA {
	s := v.Size()
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			img.SetRGBA(x, y, srgb(encode(v.At(x, y))))
		}
	}
	return img
}

// toneMapped applies the host tone-mapping operator to the effect output.
func toneMapped(v texture.View, mode tonemap.Mode, exposure float32) *image.RGBA {
	return debugImage(v, func(c mgl32.Vec4) mgl32.Vec3 {
		return mode.Apply(c.Vec3(), exposure)
	})
}

// scaleTo resamples img to size with a Catmull-Rom filter, as when the effect runs below the
// output resolution.
func scaleTo(img *image.RGBA, size common.Size) *image.RGBA {
	if b := img.Bounds(); b.Dx() == size.Width && b.Dy() == size.Height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
