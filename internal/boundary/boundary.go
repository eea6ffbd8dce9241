// Package boundary implements the boundary predicate that gives a prolly
// tree its deterministic, content-defined shape.
//
// isBoundary(average, level) hashes (level, key) and treats the entry as
// ending a bucket when the top 32 bits of the digest fall below
// 2^32/average. Because level is mixed into the hash, the same key does
// not sit on a boundary at every level, which prevents degenerate towers.
// Because val is never mixed in, changing an entry's value without
// changing its key never reshapes the tree.
package boundary

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// MaxAverage is the largest accepted average bucket size (2^32 - 1).
const MaxAverage = math.MaxUint32

// Predicate reports whether the entry identified by key terminates a
// bucket at the level the predicate was built for.
type Predicate func(key []byte) bool

// New returns the boundary predicate for the given average bucket size and
// tree level. average must be a positive integer in [1, 2^32-1].
func New(average, level uint32) (Predicate, error) {
	if average == 0 {
		return nil, fmt.Errorf("boundary: average must be >= 1, got %d", average)
	}

	// threshold is computed in 64 bits: at average=1, (2^32)/1 = 2^32,
	// which must compare true against every possible 32-bit hash, not
	// truncate to 0.
	threshold := (uint64(math.MaxUint32) + 1) / uint64(average)

	return func(key []byte) bool {
		return uint64(Hash32(level, key)) < threshold
	}, nil
}

// Hash32 computes SHA-256(level || key) and returns the first four bytes
// interpreted as a big-endian uint32.
func Hash32(level uint32, key []byte) uint32 {
	h := sha256.New()

	var lvl [1]byte
	lvl[0] = byte(level)
	h.Write(lvl[:])
	h.Write(key)

	var sum [sha256.Size]byte
	h.Sum(sum[:0])

	return binary.BigEndian.Uint32(sum[:4])
}
