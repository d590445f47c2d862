package canonical

import (
	"fmt"
	"hash/fnv"
)

// Checksum32 returns the 32-bit FNV-1a hash of text as 8 lowercase hex
// digits (offset basis 2166136261, prime 16777619, one round per byte).
// It detects accidental corruption; it is not a security primitive.
func Checksum32(text string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%08x", h.Sum32())
}
