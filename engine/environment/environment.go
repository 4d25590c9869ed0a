// Package environment holds the scene environment map sampled by rays that leave the screen.
package environment

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/Carmen-Shannon/oxy-ssgi/engine/texture"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
)

// ErrEmptyImage is returned when an environment is built from an image with no pixels.
var ErrEmptyImage = errors.New("environment: empty image")

// Mapping describes how a direction is projected onto the map.
type Mapping int

const (
	// MappingUV is a plain 2D texture with no directional meaning. It is never sampled by rays.
	MappingUV Mapping = iota

	// MappingEquirectangular projects directions with a longitude/latitude layout.
	MappingEquirectangular

	// MappingCube is a six-face cube layout. Only equirectangular maps are sampled by rays.
	MappingCube
)

func (m Mapping) String() string {
	switch m {
	case MappingUV:
		return "uv"
	case MappingEquirectangular:
		return "equirectangular"
	case MappingCube:
		return "cube"
	default:
		return fmt.Sprintf("Mapping(%d)", int(m))
	}
}

// Filter is the texture filter used when sampling the map.
type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
	FilterLinearMipmapLinear
)

// Level describes one mip level inside the packed pixel slice returned by Packed.
type Level struct {
	// Offset is the index of the first float of the level.
	Offset int
	Size   common.Size
}

// Map is an environment texture with an optional mip chain.
//
// Setting GenerateMipmaps or changing the filters marks the map as needing an update; the mip
// chain is rebuilt lazily on the next Sample or Packed call.
type Map struct {
	mu              sync.RWMutex
	label           string
	mapping         Mapping
	base            *texture.Texture
	generateMipmaps bool
	minFilter       Filter
	magFilter       Filter
	needsUpdate     bool
	levels          []*texture.Texture
	version         uint64
}

// New wraps base as an environment map. The map takes ownership of base.
//
// Parameters:
//   - label: debug label
//   - mapping: projection of the map
//   - base: level 0 of the map
//
// Returns:
//   - *Map: the environment map, without mipmaps and with linear filtering
func New(label string, mapping Mapping, base *texture.Texture) *Map {
	return &Map{
		label:     label,
		mapping:   mapping,
		base:      base,
		minFilter: FilterLinear,
		magFilter: FilterLinear,
		levels:    []*texture.Texture{base},
	}
}

// NewUniform creates an equirectangular map filled with a single radiance value.
func NewUniform(label string, size common.Size, radiance mgl32.Vec3) (*Map, error) {
	base, err := texture.New(label, size)
	if err != nil {
		return nil, err
	}
	base.Fill(radiance.Vec4(1))
	return New(label, MappingEquirectangular, base), nil
}

// FromImage builds an equirectangular map from an sRGB encoded image, converting it to linear radiance.
//
// Parameters:
//   - label: debug label
//   - img: the decoded image
//   - intensity: linear multiplier applied to every texel
//
// Returns:
//   - *Map: the environment map
//   - error: ErrEmptyImage or a texture allocation error
func FromImage(label string, img image.Image, intensity float32) (*Map, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: %q", ErrEmptyImage, label)
	}
	base, err := texture.New(label, common.Size{Width: b.Dx(), Height: b.Dy()})
	if err != nil {
		return nil, err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				continue
			}
			r, g, bl := c.LinearRgb()
			base.Set(x-b.Min.X, y-b.Min.Y, mgl32.Vec4{float32(r) * intensity, float32(g) * intensity, float32(bl) * intensity, 1})
		}
	}
	base.Touch()
	return New(label, MappingEquirectangular, base), nil
}

func (m *Map) Label() string {
	return m.label
}

func (m *Map) Mapping() Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mapping
}

// SetMapping changes the projection of the map.
func (m *Map) SetMapping(mapping Mapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mapping = mapping
}

func (m *Map) Size() common.Size {
	return m.base.Size()
}

func (m *Map) GenerateMipmaps() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generateMipmaps
}

// SetGenerateMipmaps enables or disables the mip chain.
func (m *Map) SetGenerateMipmaps(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateMipmaps = enabled
}

// Filters returns the minification and magnification filters.
func (m *Map) Filters() (minFilter, magFilter Filter) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minFilter, m.magFilter
}

// SetFilters changes the minification and magnification filters.
func (m *Map) SetFilters(minFilter, magFilter Filter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.minFilter, m.magFilter = minFilter, magFilter
}

func (m *Map) NeedsUpdate() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.needsUpdate
}

// MarkNeedsUpdate schedules a rebuild of the mip chain.
func (m *Map) MarkNeedsUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.needsUpdate = true
}

// Version returns a counter bumped every time the mip chain is rebuilt.
func (m *Map) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// MaxMipLevel returns floor(log2(max(width, height))), the index of the 1x1 level of a full chain.
func (m *Map) MaxMipLevel() int {
	return MaxMipLevel(m.base.Size())
}

// MaxMipLevel returns floor(log2(max(width, height))) for size.
func MaxMipLevel(size common.Size) int {
	largest := max(size.Width, size.Height)
	if largest <= 1 {
		return 0
	}
	return int(math.Floor(math.Log2(float64(largest))))
}

// Levels returns the number of levels that Sample reads from.
func (m *Map) Levels() int {
	m.refresh()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.levels)
}

func (m *Map) refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.needsUpdate {
		return
	}
	m.needsUpdate = false
	m.version++
	m.levels = m.levels[:1]
	if !m.generateMipmaps {
		return
	}
	for prev := m.base; prev.Size().Width > 1 || prev.Size().Height > 1; {
		next, err := downsample(prev)
		if err != nil {
			return
		}
		m.levels = append(m.levels, next)
		prev = next
	}
}

func downsample(src *texture.Texture) (*texture.Texture, error) {
	s := src.Size()
	size := common.Size{Width: max(s.Width/2, 1), Height: max(s.Height/2, 1)}
	dst, err := texture.New(src.Label(), size)
	if err != nil {
		return nil, err
	}
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			sum := src.At(2*x, 2*y).Add(src.At(2*x+1, 2*y)).Add(src.At(2*x, 2*y+1)).Add(src.At(2*x+1, 2*y+1))
			dst.Set(x, y, sum.Mul(0.25))
		}
	}
	dst.Touch()
	return dst, nil
}

// DirectionToUV projects a world-space direction onto equirectangular coordinates.
// +Y maps to the top row and the -Z direction maps to the horizontal center.
func DirectionToUV(dir mgl32.Vec3) (u, v float32) {
	dir = dir.Normalize()
	u = 0.5
	if dir[0] != 0 || dir[2] != 0 {
		u = float32(math.Atan2(float64(dir[0]), float64(-dir[2])))/(2*math.Pi) + 0.5
	}
	v = 0.5 - float32(math.Asin(float64(mgl32.Clamp(dir[1], -1, 1))))/math.Pi
	return u, v
}

// Sample returns the radiance seen in world direction dir at mip level lod.
// Without a mip chain every lod reads level 0. The result is never negative.
//
// Parameters:
//   - dir: world-space direction, need not be normalized
//   - lod: fractional mip level, clamped to the available chain
//
// Returns:
//   - mgl32.Vec3: the filtered radiance
func (m *Map) Sample(dir mgl32.Vec3, lod float32) mgl32.Vec3 {
	if dir.Len() == 0 {
		return mgl32.Vec3{}
	}
	m.refresh()
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, v := DirectionToUV(dir)
	top := float32(len(m.levels) - 1)
	lod = mgl32.Clamp(lod, 0, top)
	lo := int(lod)
	hi := min(lo+1, len(m.levels)-1)
	t := lod - float32(lo)

	a := sampleWrapped(m.levels[lo], u, v, m.magFilter == FilterNearest)
	if t == 0 || lo == hi {
		return clampPositive(a)
	}
	b := sampleWrapped(m.levels[hi], u, v, m.minFilter == FilterNearest)
	return clampPositive(a.Mul(1 - t).Add(b.Mul(t)))
}

// sampleWrapped filters bilinearly with horizontal wrap and vertical clamp.
func sampleWrapped(tex *texture.Texture, u, v float32, nearest bool) mgl32.Vec3 {
	size := tex.Size()
	fx := u*float32(size.Width) - 0.5
	fy := v*float32(size.Height) - 0.5
	if nearest {
		x := wrap(int(math.Floor(float64(fx+0.5))), size.Width)
		return tex.At(x, int(math.Floor(float64(fy+0.5)))).Vec3()
	}
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)
	xa, xb := wrap(x0, size.Width), wrap(x0+1, size.Width)

	row0 := tex.At(xa, y0).Vec3().Mul(1 - tx).Add(tex.At(xb, y0).Vec3().Mul(tx))
	row1 := tex.At(xa, y0+1).Vec3().Mul(1 - tx).Add(tex.At(xb, y0+1).Vec3().Mul(tx))
	return row0.Mul(1 - ty).Add(row1.Mul(ty))
}

func wrap(x, n int) int {
	x %= n
	if x < 0 {
		x += n
	}
	return x
}

func clampPositive(c mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(c[0], 0), max(c[1], 0), max(c[2], 0)}
}

// Packed returns every level concatenated into one RGBA slice, level 0 first, with the layout of
// each level. GPU backends upload it as a single storage buffer.
func (m *Map) Packed() ([]float32, []Level) {
	m.refresh()
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, l := range m.levels {
		total += len(l.Pixels())
	}
	pix := make([]float32, 0, total)
	levels := make([]Level, 0, len(m.levels))
	for _, l := range m.levels {
		levels = append(levels, Level{Offset: len(pix), Size: l.Size()})
		pix = append(pix, l.Pixels()...)
	}
	return pix, levels
}
