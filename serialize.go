package prollipop

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// On-disk bucket shape, encoded as a CBOR array for compactness and byte-
// level determinism:
//
//	Bucket := [average, level, entries]
//	Entry  := [key, val]
//
// spec.md's wire format additionally supports a seq field, delta-encoded
// against a base, for deployments using (seq, key) tuple ordering. This
// library is frozen to key-only ordering (DESIGN.md), so that field is
// omitted entirely rather than always written as zero.
type wireBucket struct {
	_       struct{} `cbor:",toarray"`
	Average uint32
	Level   uint32
	Entries []wireEntry
}

type wireEntry struct {
	_   struct{} `cbor:",toarray"`
	Key []byte
	Val []byte
}

var encMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err) // fixed, valid options; cannot fail
	}
	return mode
}()

// encodeBucket serializes prefix+entries to canonical CBOR bytes and
// returns the SHA-256 digest of those bytes.
func encodeBucket(prefix Prefix, entries []Entry) ([]byte, Digest, error) {
	wireEntries := make([]wireEntry, len(entries))
	for i, e := range entries {
		wireEntries[i] = wireEntry{Key: e.Key, Val: e.Val}
	}

	wb := wireBucket{Average: prefix.Average, Level: prefix.Level, Entries: wireEntries}

	data, err := encMode.Marshal(wb)
	if err != nil {
		return nil, Digest{}, fmt.Errorf("prollipop: encode bucket: %w", err)
	}

	return data, Digest(sha256.Sum256(data)), nil
}

// decodeOptions carries the optional structural checks a caller performing
// a validated load (cursor descent, diff engine, sync) wants enforced
// against the decoded bucket's (average, level) and key range. A nil
// minExcl means MIN (no lower bound). maxIncl has no "unbounded" value:
// when hasRange is set and the bucket is not a head, its last entry must
// equal maxIncl.
type decodeOptions struct {
	expectedPrefix *Prefix
	hasRange       bool
	minExcl        Tuple // nil means MIN
	maxIncl        Tuple
	isHead         bool
	isRoot         bool
}

// decodeBucket parses CBOR bytes into a validated Bucket, applying every
// check from spec.md §4.2: shape, entry shape, strict ordering, the
// single-boundary-at-the-end rule, root/non-root length minimums, and the
// optional prefix/range checks a caller loading a referenced child
// supplies.
func decodeBucket(data []byte, opts decodeOptions) (Bucket, error) {
	var wb wireBucket
	if err := cbor.Unmarshal(data, &wb); err != nil {
		return Bucket{}, fmt.Errorf("%w: cbor decode: %v", ErrInvalidBucket, err)
	}

	prefix := Prefix{Average: wb.Average, Level: wb.Level}
	if err := validatePrefix(prefix); err != nil {
		return Bucket{}, err
	}

	entries := make([]Entry, len(wb.Entries))
	for i, we := range wb.Entries {
		entries[i] = Entry{Key: we.Key, Val: we.Val}
	}

	if err := validateEntryInvariants(prefix, entries, opts.isRoot, opts.isHead); err != nil {
		return Bucket{}, err
	}

	if opts.expectedPrefix != nil && *opts.expectedPrefix != prefix {
		return Bucket{}, fmt.Errorf("%w: expected %+v, got %+v", ErrPrefixMismatch, *opts.expectedPrefix, prefix)
	}

	if err := checkRange(entries, opts); err != nil {
		return Bucket{}, err
	}

	return Bucket{prefix: prefix, entries: entries, bytes: data, digest: sha256.Sum256(data)}, nil
}

func checkRange(entries []Entry, opts decodeOptions) error {
	if !opts.hasRange || len(entries) == 0 {
		return nil
	}
	if compareTuple(entries[0].tuple(), opts.minExcl) <= 0 {
		return fmt.Errorf("%w: first entry does not exceed exclusive lower bound", ErrRangeMismatch)
	}
	if !opts.isHead {
		last := entries[len(entries)-1]
		if compareTuple(last.tuple(), opts.maxIncl) != 0 {
			return fmt.Errorf("%w: last entry does not equal inclusive upper bound", ErrRangeMismatch)
		}
	}
	return nil
}
