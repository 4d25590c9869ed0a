package shader

import (
	"github.com/gogpu/gg/cache"
)

// defaultVariantCapacity bounds the number of variants kept per cache shard set.
const defaultVariantCapacity = 256

// variantResult is what the cache stores for a variant: the parsed shader or the error
// that building it produced, so a broken variant is not re-parsed every frame.
type variantResult struct {
	shader Shader
	err    error
}

// VariantCache builds and memoizes kernel variants keyed by base key and defines.
// It is safe for concurrent use.
type VariantCache struct {
	entries *cache.ShardedCache[string, variantResult]
}

// NewVariantCache creates an empty variant cache.
//
// Parameters:
//   - capacity: the maximum number of cached variants, or 0 for the default
//
// Returns:
//   - *VariantCache: the cache
func NewVariantCache(capacity int) *VariantCache {
	if capacity <= 0 {
		capacity = defaultVariantCapacity
	}
	return &VariantCache{
		entries: cache.NewSharded[string, variantResult](capacity, cache.StringHasher),
	}
}

// Get returns the variant of source selected by defines, building it on first use.
//
// Parameters:
//   - key: the kernel's base key
//   - source: the raw WGSL kernel source
//   - defines: the variant's compile-time switches
//
// Returns:
//   - Shader: the parsed variant
//   - error: the error produced when the variant was built, if any
func (c *VariantCache) Get(key, source string, defines Defines) (Shader, error) {
	res := c.entries.GetOrCreate(VariantKey(key, defines), func() variantResult {
		s, err := NewShader(key, source, defines)
		return variantResult{shader: s, err: err}
	})
	return res.shader, res.err
}

// Builds returns how many variants have been compiled since the cache was created. Every
// cache miss builds exactly one variant, and Clear keeps the count.
func (c *VariantCache) Builds() int {
	return int(c.entries.Stats().Misses)
}

// Len returns the number of cached variants.
func (c *VariantCache) Len() int {
	return c.entries.Len()
}

// Clear drops every cached variant.
func (c *VariantCache) Clear() {
	c.entries.Clear()
}
