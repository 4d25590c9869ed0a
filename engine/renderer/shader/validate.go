package shader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// ErrInvalidSPIRV is returned when the compiler output is not a SPIR-V module.
var ErrInvalidSPIRV = errors.New("shader: compiler output is not SPIR-V")

// Compile translates a variant's processed WGSL into SPIR-V words.
//
// Parameters:
//   - s: the variant to compile
//
// Returns:
//   - []uint32: the SPIR-V module as little-endian words
//   - error: the compiler error, or ErrInvalidSPIRV for malformed output
func Compile(s Shader) ([]uint32, error) {
	spirvBytes, err := naga.Compile(s.Source())
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", s.Key(), err)
	}
	if len(spirvBytes) < 20 || len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("shader %s: %w (%d bytes)", s.Key(), ErrInvalidSPIRV, len(spirvBytes))
	}

	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("shader %s: %w (magic %#08x)", s.Key(), ErrInvalidSPIRV, words[0])
	}
	return words, nil
}

// Validate reports whether a variant compiles.
//
// Parameters:
//   - s: the variant to validate
//
// Returns:
//   - error: nil if the variant compiles to SPIR-V
func Validate(s Shader) error {
	_, err := Compile(s)
	return err
}
