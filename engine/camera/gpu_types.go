package camera

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUCameraUniformSource is the canonical WGSL definition of the CameraUniform struct.
// Matches GPUCameraUniform layout exactly (272 bytes, std430 aligned).
//
//go:embed assets/camera_uniform.wgsl
var GPUCameraUniformSource string

// GPUCameraUniform is the GPU-aligned representation of the camera uniform buffer.
// Matches the WGSL CameraUniform struct layout exactly (see GPUCameraUniformSource).
// Size: 272 bytes (std430 / WGSL aligned).
type GPUCameraUniform struct {
	Projection        [16]float32 // offset   0: proj (mat4x4<f32>)
	InverseProjection [16]float32 // offset  64: inv_proj (mat4x4<f32>)
	View              [16]float32 // offset 128: world-to-view (mat4x4<f32>)
	InverseView       [16]float32 // offset 192: view-to-world (mat4x4<f32>)
	Resolution        [2]float32  // offset 256: render target size in pixels (vec2<f32>)
	Near              float32     // offset 264
	Far               float32     // offset 268
}

// Size returns the size of the GPUCameraUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (272)
func (g *GPUCameraUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCameraUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCameraUniform) Marshal() []byte {
	buf := make([]byte, g.Size())
	for m, mat := range [4]*[16]float32{&g.Projection, &g.InverseProjection, &g.View, &g.InverseView} {
		for i := range 16 {
			binary.LittleEndian.PutUint32(buf[m*64+i*4:], math.Float32bits(mat[i]))
		}
	}
	binary.LittleEndian.PutUint32(buf[256:], math.Float32bits(g.Resolution[0]))
	binary.LittleEndian.PutUint32(buf[260:], math.Float32bits(g.Resolution[1]))
	binary.LittleEndian.PutUint32(buf[264:], math.Float32bits(g.Near))
	binary.LittleEndian.PutUint32(buf[268:], math.Float32bits(g.Far))
	return buf
}
