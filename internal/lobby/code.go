package lobby

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// DefaultCodeBytes yields 8 character room codes
const DefaultCodeBytes = 4

// RandSource interface for dependency injection of randomness. *rand.Rand
// from math/rand/v2 satisfies it.
type RandSource interface {
	IntN(n int) int
}

// CodeGenerator produces short lowercase hex room codes
type CodeGenerator struct {
	randSource RandSource
	size       int
}

// NewCodeGenerator creates a generator for codes of size random bytes. A nil
// randSource uses crypto/rand.
func NewCodeGenerator(size int, randSource RandSource) *CodeGenerator {
	if size <= 0 {
		size = DefaultCodeBytes
	}
	return &CodeGenerator{randSource: randSource, size: size}
}

// Size returns the number of random bytes in each code
func (g *CodeGenerator) Size() int {
	return g.size
}

// Generate returns a new code of 2*Size() hex characters
func (g *CodeGenerator) Generate() string {
	buf := make([]byte, g.size)
	if g.randSource != nil {
		for i := range buf {
			buf[i] = byte(g.randSource.IntN(256))
		}
	} else if _, err := rand.Read(buf); err != nil {
		panic("failed to generate random bytes: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// ValidateCode checks that code could have been produced by a generator of
// the given size
func ValidateCode(code string, size int) error {
	if len(code) != size*2 {
		return fmt.Errorf("room code must be exactly %d characters, got %d", size*2, len(code))
	}
	for i, c := range code {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("invalid character %c at position %d", c, i)
		}
	}
	return nil
}
