package prollipop

import (
	"encoding/hex"
	"fmt"

	"github.com/tabcat/prollipop/internal/boundary"
)

// Digest identifies a bucket by the SHA-256 of its encoded bytes.
type Digest [32]byte

// String renders the digest as lowercase hex, for logs and debug output.
func (d Digest) String() string {
	const hexDigits = "0123456789abcdef"

	buf := make([]byte, len(d)*2)
	for i, b := range d {
		buf[i*2] = hexDigits[b>>4]
		buf[i*2+1] = hexDigits[b&0x0f]
	}

	return string(buf)
}

// IsZero reports whether d is the zero digest (never a real bucket's
// digest, since SHA-256 of anything is vanishingly unlikely to be zero;
// used as a "no digest yet" sentinel).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest parses the hex form String returns back into a Digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("prollipop: parse digest: %w", err)
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("prollipop: parse digest: want %d bytes, got %d", len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Prefix is the (average, level) pair shared by every bucket on one level
// of a tree.
type Prefix struct {
	Average uint32
	Level   uint32
}

func validatePrefix(p Prefix) error {
	if p.Average < 1 {
		return fmt.Errorf("%w: average must be >= 1, got %d", ErrInvalidBucket, p.Average)
	}
	if p.Level > MaxLevel {
		return fmt.Errorf("%w: level %d exceeds MaxLevel %d", ErrInvalidBucket, p.Level, MaxLevel)
	}
	return nil
}

// Bucket is an ordered, duplicate-free sequence of entries sharing a
// prefix. Bucket values are immutable and content-addressed: their bytes
// and digest are computed once, at construction, and never recomputed.
//
// Context (isTail/isHead) is deliberately not part of Bucket — it is a
// property of where a bucket sits during a particular traversal, not of
// the bucket's content, and must never influence the digest.
type Bucket struct {
	prefix  Prefix
	entries []Entry
	bytes   []byte
	digest  Digest
}

// Prefix returns the bucket's (average, level) pair.
func (b Bucket) Prefix() Prefix { return b.prefix }

// Average returns the bucket's target bucket size.
func (b Bucket) Average() uint32 { return b.prefix.Average }

// Level returns the bucket's level; 0 is user data, >0 is pointers.
func (b Bucket) Level() uint32 { return b.prefix.Level }

// Entries returns the bucket's entries. The caller must not mutate the
// returned slice.
func (b Bucket) Entries() []Entry { return b.entries }

// Empty reports whether the bucket has no entries.
func (b Bucket) Empty() bool { return len(b.entries) == 0 }

// Digest returns the bucket's content digest.
func (b Bucket) Digest() Digest { return b.digest }

// Bytes returns the bucket's encoded bytes.
func (b Bucket) Bytes() []byte { return b.bytes }

// first returns the bucket's first entry.
func (b Bucket) first() (Entry, bool) {
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	return b.entries[0], true
}

// last returns the bucket's last entry.
func (b Bucket) last() (Entry, bool) {
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	return b.entries[len(b.entries)-1], true
}

// boundaryKey returns the tuple of the bucket's last entry, the key a
// parent entry references this bucket by. Only meaningful for non-empty
// buckets.
func (b Bucket) boundaryKey() Tuple {
	e, _ := b.last()
	return e.tuple()
}

// isBoundaryAt reports whether the entry at idx is a boundary under this
// bucket's own (average, level) prefix, counting the last entry of a head
// bucket as one. The codec and mutation engine do not call it; they check
// boundaries through validateEntryInvariants and packLevel.
func (b Bucket) isBoundaryAt(idx int, isHead bool) (bool, error) {
	if idx == len(b.entries)-1 {
		// last entry: boundary OR bucket is a level head.
		if isHead {
			return true, nil
		}
	}
	pred, err := boundary.New(b.prefix.Average, b.prefix.Level)
	if err != nil {
		return false, err
	}
	e := b.entries[idx]
	return pred(e.Key), nil
}

// newBucket validates entries against the invariants in spec.md §3 and
// eagerly encodes+digests the bucket. isRoot/isHead describe the bucket's
// position for the length/boundary checks that depend on it; they are not
// retained on the returned Bucket.
func newBucket(prefix Prefix, entries []Entry, isRoot, isHead bool) (Bucket, error) {
	if err := validatePrefix(prefix); err != nil {
		return Bucket{}, err
	}

	if err := validateEntryInvariants(prefix, entries, isRoot, isHead); err != nil {
		return Bucket{}, err
	}

	data, digest, err := encodeBucket(prefix, entries)
	if err != nil {
		return Bucket{}, err
	}

	return Bucket{prefix: prefix, entries: entries, bytes: data, digest: digest}, nil
}

// validateEntryInvariants checks strict ordering, the single boundary-at-
// the-end rule, and the non-root/root minimum-length rules.
func validateEntryInvariants(prefix Prefix, entries []Entry, isRoot, isHead bool) error {
	for i := 1; i < len(entries); i++ {
		if compareEntries(entries[i-1], entries[i]) >= 0 {
			return fmt.Errorf("%w: entries not strictly increasing at index %d", ErrInvalidBucket, i)
		}
	}

	pred, err := boundary.New(prefix.Average, prefix.Level)
	if err != nil {
		return err
	}

	for i, e := range entries {
		isLast := i == len(entries)-1
		isB := pred(e.Key)
		if !isLast && isB {
			// non-last entries must NOT be boundaries.
			return fmt.Errorf("%w: non-last entry %d is a boundary", ErrInvalidBucket, i)
		}
		if isLast && !isB && !isHead {
			return fmt.Errorf("%w: last entry is not a boundary and bucket is not a head", ErrInvalidBucket)
		}
	}

	if isRoot {
		if prefix.Level > 0 && len(entries) < 2 {
			return fmt.Errorf("%w: root bucket at level %d must have >= 2 entries, got %d", ErrInvalidBucket, prefix.Level, len(entries))
		}
		if prefix.Level == 0 && len(entries) == 0 {
			return nil // the only permitted empty bucket: root of an empty tree
		}
	} else if len(entries) < 1 {
		return fmt.Errorf("%w: non-root bucket must have >= 1 entry", ErrInvalidBucket)
	}

	return nil
}
