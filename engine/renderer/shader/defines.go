package shader

import (
	"fmt"
	"hash/fnv"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Defines holds the compile-time switches of a kernel variant. A key that is present acts as
// a flag for @ssgi:if blocks; its value is emitted by @ssgi:define when one is requested.
type Defines map[string]string

// Set returns a copy of d with name set to value.
//
// Parameters:
//   - name: the define name
//   - value: the WGSL literal for the define, or "" for a pure flag
//
// Returns:
//   - Defines: the updated copy
func (d Defines) Set(name, value string) Defines {
	out := d.Clone()
	out[name] = value
	return out
}

// SetInt returns a copy of d with name set to the integer value.
func (d Defines) SetInt(name string, value int) Defines {
	return d.Set(name, strconv.Itoa(value))
}

// SetFlag returns a copy of d with name present when on and absent otherwise.
func (d Defines) SetFlag(name string, on bool) Defines {
	out := d.Clone()
	if on {
		out[name] = ""
	} else {
		delete(out, name)
	}
	return out
}

// Has reports whether name is present.
func (d Defines) Has(name string) bool {
	_, ok := d[name]
	return ok
}

// Int returns the integer value of name, or fallback when it is absent or not an integer.
//
// Parameters:
//   - name: the define name
//   - fallback: the value returned when the define is absent or malformed
//
// Returns:
//   - int: the parsed value
func (d Defines) Int(name string, fallback int) int {
	v, ok := d[name]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSuffix(v, "u"), "i"))
	if err != nil {
		return fallback
	}
	return n
}

// Clone returns an independent copy of d. Cloning a nil Defines returns an empty map.
func (d Defines) Clone() Defines {
	out := make(Defines, len(d))
	maps.Copy(out, d)
	return out
}

// Equal reports whether d and other hold the same names and values.
func (d Defines) Equal(other Defines) bool {
	return maps.Equal(d, other)
}

// String renders the defines sorted by name, e.g. "MISSED_RAYS;SPP=1;STEPS=20".
func (d Defines) String() string {
	names := slices.Sorted(maps.Keys(d))
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if d[n] == "" {
			parts = append(parts, n)
			continue
		}
		parts = append(parts, n+"="+d[n])
	}
	return strings.Join(parts, ";")
}

// Hash returns a deterministic 64-bit hash of the defines, independent of map order.
func (d Defines) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(d.String()))
	return h.Sum64()
}

// VariantKey builds the cache key of a kernel variant from its base key and defines.
//
// Parameters:
//   - key: the kernel's base key (e.g. "ssgi_raymarch")
//   - defines: the variant's defines
//
// Returns:
//   - string: the variant key, e.g. "ssgi_raymarch#9c1f0e2d4a6b8c10"
func VariantKey(key string, defines Defines) string {
	return fmt.Sprintf("%s#%016x", key, defines.Hash())
}
