package prollipop

// EntryDiffKind tags which side(s) of an EntryDiff are populated.
type EntryDiffKind int

const (
	EntryAdded EntryDiffKind = iota
	EntryRemoved
	EntryChanged
)

// EntryDiff describes one entry-level change between two trees (or
// between a tree's old and new state during mutation). This replaces the
// source's null-sentinel (old, new) tuple with an explicit tagged sum, per
// the design notes: at least one of Old/New is always populated, and
// EntryChanged is the only variant with both.
type EntryDiff struct {
	Kind EntryDiffKind
	Old  Entry // valid for EntryRemoved, EntryChanged
	New  Entry // valid for EntryAdded, EntryChanged
}

// BucketDiffKind tags whether a BucketDiff is an addition or removal. A
// bucket is never "changed" — content addressing means any change to a
// bucket's contents produces a different bucket entirely.
type BucketDiffKind int

const (
	BucketAdded BucketDiffKind = iota
	BucketRemoved
)

// BucketDiff describes one bucket being added to or removed from a tree.
type BucketDiff struct {
	Kind   BucketDiffKind
	Bucket Bucket
}

// TreeDiff is one batch of entry and bucket differences, the unit mutate
// and diff stream to their callers.
type TreeDiff struct {
	Entries []EntryDiff
	Buckets []BucketDiff
}

// Empty reports whether the diff carries no changes.
func (d TreeDiff) Empty() bool { return len(d.Entries) == 0 && len(d.Buckets) == 0 }
