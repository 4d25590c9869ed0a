// Package uniforms holds the GPU-aligned uniform structs shared by the SSGI kernels, their
// canonical WGSL sources, and the WGSL helper libraries the kernels include.
package uniforms

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUFrameUniformSource is the canonical WGSL definition of the FrameUniform struct (32 bytes).
//
//go:embed assets/frame.wgsl
var GPUFrameUniformSource string

// GPURaymarchParamsSource is the canonical WGSL definition of the RaymarchParams struct (32 bytes).
//
//go:embed assets/raymarch_params.wgsl
var GPURaymarchParamsSource string

// GPUTemporalParamsSource is the canonical WGSL definition of the TemporalParams struct (32 bytes).
//
//go:embed assets/temporal_params.wgsl
var GPUTemporalParamsSource string

// GPUDenoiseParamsSource is the canonical WGSL definition of the DenoiseParams struct (48 bytes).
//
//go:embed assets/denoise_params.wgsl
var GPUDenoiseParamsSource string

// GPUComposeParamsSource is the canonical WGSL definition of the ComposeParams struct (16 bytes).
//
//go:embed assets/compose_params.wgsl
var GPUComposeParamsSource string

// GPUEnvLevelSource is the canonical WGSL definition of the EnvLevel struct (16 bytes).
//
//go:embed assets/env_level.wgsl
var GPUEnvLevelSource string

// UtilsSource is the WGSL helper library: luminance, depth linearization, view-space
// reconstruction, pixel indexing, bilinear taps, PCG hashing, hemisphere sampling.
//
//go:embed assets/utils.wgsl
var UtilsSource string

// ComposeSource is the WGSL composition function. It requires ComposeParams and UtilsSource.
//
//go:embed assets/compose.wgsl
var ComposeSource string

func putF32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
}

func putU32(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:], v)
}

// GPUFrameUniform carries per-frame values shared by every kernel.
type GPUFrameUniform struct {
	Resolution      [2]float32 // offset  0: internal (scaled) resolution
	InputResolution [2]float32 // offset  8: host surface / direct light resolution
	Frame           uint32     // offset 16: frame index, seeds the per-pixel RNG
	_               [3]uint32
}

// Size returns the size of the struct in bytes (32).
func (g *GPUFrameUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the struct into a byte buffer suitable for GPU upload.
func (g *GPUFrameUniform) Marshal() []byte {
	buf := make([]byte, g.Size())
	putF32(buf, 0, g.Resolution[0])
	putF32(buf, 4, g.Resolution[1])
	putF32(buf, 8, g.InputResolution[0])
	putF32(buf, 12, g.InputResolution[1])
	putU32(buf, 16, g.Frame)
	return buf
}

// GPURaymarchParams is the uniform block of the ray-march kernel. Step counts and sample
// counts are compile-time defines, not uniforms.
type GPURaymarchParams struct {
	RayDistance     float32 // offset  0
	Thickness       float32 // offset  4
	Jitter          float32 // offset  8
	JitterRoughness float32 // offset 12
	MaxEnvMipLevel  float32 // offset 16
	_               [3]float32
}

// Size returns the size of the struct in bytes (32).
func (g *GPURaymarchParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the struct into a byte buffer suitable for GPU upload.
func (g *GPURaymarchParams) Marshal() []byte {
	buf := make([]byte, g.Size())
	putF32(buf, 0, g.RayDistance)
	putF32(buf, 4, g.Thickness)
	putF32(buf, 8, g.Jitter)
	putF32(buf, 12, g.JitterRoughness)
	putF32(buf, 16, g.MaxEnvMipLevel)
	return buf
}

// GPUTemporalParams is the uniform block of the temporal reprojection kernel.
type GPUTemporalParams struct {
	Blend                  float32    // offset  0
	Correction             float32    // offset  4
	ResetVariance          float32    // offset  8: variance written when history is rejected
	_                      float32    // offset 12
	ReprojectionResolution [2]float32 // offset 16: size of the depth/velocity pair used to reproject
	_                      [2]float32
}

// Size returns the size of the struct in bytes (32).
func (g *GPUTemporalParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the struct into a byte buffer suitable for GPU upload.
func (g *GPUTemporalParams) Marshal() []byte {
	buf := make([]byte, g.Size())
	putF32(buf, 0, g.Blend)
	putF32(buf, 4, g.Correction)
	putF32(buf, 8, g.ResetVariance)
	putF32(buf, 16, g.ReprojectionResolution[0])
	putF32(buf, 20, g.ReprojectionResolution[1])
	return buf
}

// GPUDenoiseParams is the uniform block of one à-trous iteration.
type GPUDenoiseParams struct {
	LumaPhi         float32 // offset  0
	DepthPhi        float32 // offset  4
	NormalPhi       float32 // offset  8
	RoughnessPhi    float32 // offset 12
	CurvaturePhi    float32 // offset 16
	Jitter          float32 // offset 20
	JitterRoughness float32 // offset 24
	KernelRadius    uint32  // offset 28
	StepSize        uint32  // offset 32: tap spacing, 2^iteration
	Iteration       uint32  // offset 36
	_               [2]uint32
}

// Size returns the size of the struct in bytes (48).
func (g *GPUDenoiseParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the struct into a byte buffer suitable for GPU upload.
func (g *GPUDenoiseParams) Marshal() []byte {
	buf := make([]byte, g.Size())
	putF32(buf, 0, g.LumaPhi)
	putF32(buf, 4, g.DepthPhi)
	putF32(buf, 8, g.NormalPhi)
	putF32(buf, 12, g.RoughnessPhi)
	putF32(buf, 16, g.CurvaturePhi)
	putF32(buf, 20, g.Jitter)
	putF32(buf, 24, g.JitterRoughness)
	putU32(buf, 28, g.KernelRadius)
	putU32(buf, 32, g.StepSize)
	putU32(buf, 36, g.Iteration)
	return buf
}

// GPUComposeParams is the uniform block of the composition step.
type GPUComposeParams struct {
	F0              float32 // offset 0: dielectric reflectance at normal incidence
	SaturationBoost float32 // offset 4
	LumaWeight      float32 // offset 8
	_               float32
}

// Size returns the size of the struct in bytes (16).
func (g *GPUComposeParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the struct into a byte buffer suitable for GPU upload.
func (g *GPUComposeParams) Marshal() []byte {
	buf := make([]byte, g.Size())
	putF32(buf, 0, g.F0)
	putF32(buf, 4, g.SaturationBoost)
	putF32(buf, 8, g.LumaWeight)
	return buf
}

// GPUEnvLevel locates one mip level inside the packed environment atlas.
type GPUEnvLevel struct {
	Offset uint32 // offset 0: first texel of the level
	Width  uint32 // offset 4
	Height uint32 // offset 8
	_      uint32
}

// GPUEnvLevels is the level table of a packed environment map, uploaded as array<EnvLevel>.
type GPUEnvLevels []GPUEnvLevel

// Size returns the size of the table in bytes; an empty table still occupies one entry
// because zero-sized storage bindings are invalid.
func (g GPUEnvLevels) Size() int {
	return max(len(g), 1) * int(unsafe.Sizeof(GPUEnvLevel{}))
}

// Marshal serializes the table into a byte buffer suitable for GPU upload.
func (g GPUEnvLevels) Marshal() []byte {
	buf := make([]byte, g.Size())
	for i, l := range g {
		putU32(buf, i*16, l.Offset)
		putU32(buf, i*16+4, l.Width)
		putU32(buf, i*16+8, l.Height)
	}
	return buf
}
