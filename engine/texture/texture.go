// Package texture holds the per-pixel RGBA32F buffers passed between pipeline stages.
//
// A Texture is owned by exactly one stage, which writes it. Every other consumer receives it
// as a View. Each allocation gets a unique generation number, so callers can detect
// reallocation by comparing generations instead of pointers.
package texture

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
	"github.com/go-gl/mathgl/mgl32"
)

// Channels is the number of float32 values stored per texel.
const Channels = 4

var generationCounter atomic.Uint64

// View is the read-only handle to a Texture given to stages that consume it.
type View interface {
	// Label returns the debug label assigned at allocation.
	Label() string

	// Size returns the texture extent in texels.
	Size() common.Size

	// Generation returns the allocation identity of the texture.
	Generation() uint64

	// Version returns a counter bumped every time the owner rewrites the contents.
	Version() uint64

	// At returns the texel at (x, y) with coordinates clamped to the edge.
	At(x, y int) mgl32.Vec4

	// Sample returns a bilinearly filtered value at normalized coordinates (u, v), clamped to edge.
	// (0, 0) is the top-left corner of the first texel, (1, 1) the bottom-right corner of the last.
	Sample(u, v float32) mgl32.Vec4

	// Pixels exposes the backing RGBA slice for upload. Callers must not modify it.
	Pixels() []float32
}

// Texture is a 2D RGBA32F buffer.
type Texture struct {
	label      string
	size       common.Size
	pix        []float32
	generation uint64
	version    atomic.Uint64
}

var _ View = &Texture{}

// New allocates a zero-filled texture.
//
// Parameters:
//   - label: debug label
//   - size: extent in texels, both dimensions must be positive
//
// Returns:
//   - *Texture: the allocated texture
//   - error: ErrAllocation if the size is invalid
func New(label string, size common.Size) (*Texture, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("%w: %q has invalid size %dx%d", ErrAllocation, label, size.Width, size.Height)
	}
	if size.Width > math.MaxInt32/size.Height/Channels {
		return nil, fmt.Errorf("%w: %q size %dx%d overflows", ErrAllocation, label, size.Width, size.Height)
	}
	return &Texture{
		label:      label,
		size:       size,
		pix:        make([]float32, size.Texels()*Channels),
		generation: generationCounter.Add(1),
	}, nil
}

func (t *Texture) Label() string {
	return t.label
}

func (t *Texture) Size() common.Size {
	return t.size
}

func (t *Texture) Generation() uint64 {
	return t.generation
}

func (t *Texture) Version() uint64 {
	return t.version.Load()
}

// Touch marks the contents as rewritten. Stages call it once after each dispatch that wrote the texture.
func (t *Texture) Touch() {
	t.version.Add(1)
}

func (t *Texture) Pixels() []float32 {
	return t.pix
}

func (t *Texture) index(x, y int) int {
	x = min(max(x, 0), t.size.Width-1)
	y = min(max(y, 0), t.size.Height-1)
	return (y*t.size.Width + x) * Channels
}

func (t *Texture) At(x, y int) mgl32.Vec4 {
	i := t.index(x, y)
	return mgl32.Vec4{t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3]}
}

// Set writes the texel at (x, y). Out-of-range coordinates are ignored.
func (t *Texture) Set(x, y int, v mgl32.Vec4) {
	if x < 0 || y < 0 || x >= t.size.Width || y >= t.size.Height {
		return
	}
	i := (y*t.size.Width + x) * Channels
	t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3] = v[0], v[1], v[2], v[3]
}

func (t *Texture) Sample(u, v float32) mgl32.Vec4 {
	fx := u*float32(t.size.Width) - 0.5
	fy := v*float32(t.size.Height) - 0.5
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	a := t.At(x0, y0)
	b := t.At(x0+1, y0)
	c := t.At(x0, y0+1)
	d := t.At(x0+1, y0+1)

	top := a.Mul(1 - tx).Add(b.Mul(tx))
	bottom := c.Mul(1 - tx).Add(d.Mul(tx))
	return top.Mul(1 - ty).Add(bottom.Mul(ty))
}

// Fill sets every texel to v.
func (t *Texture) Fill(v mgl32.Vec4) {
	for i := 0; i < len(t.pix); i += Channels {
		t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3] = v[0], v[1], v[2], v[3]
	}
	t.Touch()
}

// Clear zeroes the texture.
func (t *Texture) Clear() {
	clear(t.pix)
	t.Touch()
}

// CopyFrom copies the contents of src, which must have the same size.
func (t *Texture) CopyFrom(src View) error {
	if src.Size() != t.size {
		return fmt.Errorf("%w: copy %q (%v) into %q (%v)", ErrSizeMismatch, src.Label(), src.Size(), t.label, t.size)
	}
	copy(t.pix, src.Pixels())
	t.Touch()
	return nil
}
