package texture

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-ssgi/common"
)

// Allocator creates and releases stage-owned textures. Renderers implement it so that
// backend resources can be attached to each allocation.
type Allocator interface {
	// Allocate creates a zero-filled texture.
	//
	// Parameters:
	//   - label: debug label
	//   - size: extent in texels
	//
	// Returns:
	//   - *Texture: the allocated texture
	//   - error: an error wrapping ErrAllocation when the texture cannot be created
	Allocate(label string, size common.Size) (*Texture, error)

	// Release frees the resources attached to t. Releasing nil or an already released texture is a no-op.
	Release(t *Texture)
}

// BudgetAllocator is a host-memory Allocator that refuses allocations once the live texel
// count would exceed a fixed budget. A budget of 0 means unlimited.
type BudgetAllocator struct {
	mu        sync.Mutex
	maxTexels int
	live      map[*Texture]int
	used      int
}

var _ Allocator = &BudgetAllocator{}

// NewBudgetAllocator creates an allocator limited to maxTexels live texels.
func NewBudgetAllocator(maxTexels int) *BudgetAllocator {
	return &BudgetAllocator{
		maxTexels: maxTexels,
		live:      make(map[*Texture]int),
	}
}

func (a *BudgetAllocator) Allocate(label string, size common.Size) (*Texture, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.maxTexels > 0 && a.used+size.Texels() > a.maxTexels {
		return nil, fmt.Errorf("%w: %q needs %d texels, %d of %d in use", ErrAllocation, label, size.Texels(), a.used, a.maxTexels)
	}
	t, err := New(label, size)
	if err != nil {
		return nil, err
	}
	a.live[t] = size.Texels()
	a.used += size.Texels()
	return t, nil
}

func (a *BudgetAllocator) Release(t *Texture) {
	if t == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if n, ok := a.live[t]; ok {
		a.used -= n
		delete(a.live, t)
	}
}

// Used returns the number of live texels.
func (a *BudgetAllocator) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Live returns the number of live textures.
func (a *BudgetAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}
