package prollipop

import "bytes"

// Entry is an immutable key-value record. On level 0 Val is the user's
// payload; on level > 0 Val is the digest of the child bucket whose last
// entry has this Key.
//
// The tree is frozen to key-only ordering (see DESIGN.md): the source
// this library ports also supports a (seq, key) tuple order, but spec.md
// itself never defines where an inserted entry's seq would come from —
// Update only ever carries a key — so Entry has no Seq field and Key
// alone is the sort/boundary key throughout.
type Entry struct {
	Key []byte
	Val []byte
}

// tuple returns the entry's sort key.
func (e Entry) tuple() Tuple { return e.Key }

// Tuple is the sort key of an entry. It is an alias for []byte rather
// than a distinct struct so that a nil Tuple can double as the "no bound"
// / MIN sentinel used throughout the cursor and codec range checks.
type Tuple = []byte

// compareTuple orders two tuples lexicographically. A nil tuple sorts
// before everything (it stands in for MIN).
func compareTuple(a, b Tuple) int {
	return bytes.Compare(a, b)
}

// compareEntries orders two entries by tuple order.
func compareEntries(a, b Entry) int {
	return compareTuple(a.tuple(), b.tuple())
}
