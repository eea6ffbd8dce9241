package prollipop

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tabcat/prollipop/internal/boundary"
	"github.com/tabcat/prollipop/internal/plog"
)

// MutateResult carries the outcome of a Mutate call: the tree rebuilt from
// the applied updates, or the error that stopped the rebuild.
type MutateResult struct {
	Tree *Tree
	Err  error
}

// Mutate applies a stream of sorted update batches to tree and rebuilds it
// level by level, per spec.md §4.4. Each batch on updates must itself be
// sorted by key with no duplicate keys, and must begin strictly after the
// previous batch's last key; a violation fails the whole call with
// ErrUnsortedUpdates.
//
// Mutate returns immediately. The diffs channel streams one TreeDiff batch
// per rebuilt level whose entries or buckets changed; levels with no
// change send nothing. It is unbuffered and closed when rebuilding
// finishes or fails. The result channel receives exactly one MutateResult
// once the new root has been computed and written to store, which happens
// only after every batch has been received from diffs.
func Mutate(ctx context.Context, store BlockStore, tree *Tree, updates <-chan []Update) (<-chan TreeDiff, <-chan MutateResult) {
	diffs := make(chan TreeDiff)
	result := make(chan MutateResult, 1)

	go func() {
		defer close(diffs)
		defer close(result)

		newTree, err := mutate(ctx, store, tree, updates, diffs)
		result <- MutateResult{Tree: newTree, Err: err}
	}()

	return diffs, result
}

func mutate(ctx context.Context, store BlockStore, tree *Tree, updates <-chan []Update, diffs chan<- TreeDiff) (*Tree, error) {
	sorted, err := drainUpdates(ctx, updates)
	if err != nil {
		return nil, err
	}

	maxLevel := tree.maxLevel
	if maxLevel == 0 {
		maxLevel = MaxLevel
	}
	average := tree.root.Average()

	oldLeaves, err := levelBuckets(ctx, store, tree, 0)
	if err != nil {
		return nil, fmt.Errorf("prollipop: mutate: read level 0: %w", err)
	}

	newLevel, entryDiffs, err := mergeLeafLevel(average, oldLeaves, sorted)
	if err != nil {
		return nil, err
	}

	bucketDiffs, err := publishLevel(ctx, store, oldLeaves, newLevel)
	if err != nil {
		return nil, err
	}

	if err := sendDiff(ctx, diffs, TreeDiff{Entries: entryDiffs, Buckets: bucketDiffs}); err != nil {
		return nil, err
	}

	// currentNew is the freshly rebuilt bucket sequence at `level`; oldAtLevel
	// is what the old tree already has at that same level (nil above the old
	// root). The two are compared level by level: a match means the old
	// tree's structure from here upward is still the canonical packing of
	// currentNew's content (content-addressing is history-independent), so
	// the old root can be reused wholesale without rebuilding further.
	level := uint32(0)
	currentNew := newLevel
	oldAtLevel := oldLeaves

	for {
		if sameBucketSequence(currentNew, oldAtLevel) {
			plog.Log.WithFields(plog.Fields{"level": level}).Debug("mutate: unchanged from this level up, reusing old root")
			return &Tree{root: tree.root, maxLevel: tree.maxLevel}, nil
		}

		if len(currentNew) == 1 {
			if err := validateEntryInvariants(currentNew[0].Prefix(), currentNew[0].Entries(), true, true); err != nil {
				return nil, err
			}
			plog.Log.WithFields(plog.Fields{"digest": currentNew[0].Digest().String(), "level": level}).Debug("mutate: new root")
			return &Tree{root: currentNew[0], maxLevel: tree.maxLevel}, nil
		}

		level++
		if level > maxLevel {
			return nil, fmt.Errorf("%w: %d", ErrMaxLevelExceeded, maxLevel)
		}

		pointers := pointerEntries(currentNew)
		nextLevel, err := packLevel(average, level, pointers)
		if err != nil {
			return nil, err
		}

		oldAtLevel, err = levelBuckets(ctx, store, tree, level)
		if err != nil {
			return nil, fmt.Errorf("prollipop: mutate: read level %d: %w", level, err)
		}

		bucketDiffs, err := publishLevel(ctx, store, oldAtLevel, nextLevel)
		if err != nil {
			return nil, err
		}
		if err := sendDiff(ctx, diffs, TreeDiff{Buckets: bucketDiffs}); err != nil {
			return nil, err
		}

		currentNew = nextLevel
	}
}

func sendDiff(ctx context.Context, diffs chan<- TreeDiff, d TreeDiff) error {
	if d.Empty() {
		return nil
	}
	select {
	case diffs <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drainUpdates reads every batch off updates, validating that each batch is
// itself strictly increasing and that successive batches don't overlap.
func drainUpdates(ctx context.Context, updates <-chan []Update) ([]Update, error) {
	var all []Update
	var havePrev bool
	var prevKey Tuple

	for {
		select {
		case batch, ok := <-updates:
			if !ok {
				return all, nil
			}
			for i, u := range batch {
				if i > 0 && compareTuple(batch[i-1].Key, u.Key) >= 0 {
					return nil, fmt.Errorf("%w: batch not strictly increasing at index %d", ErrUnsortedUpdates, i)
				}
				if havePrev && compareTuple(prevKey, u.Key) >= 0 {
					return nil, fmt.Errorf("%w: batch does not begin after previous batch", ErrUnsortedUpdates)
				}
			}
			if len(batch) > 0 {
				all = append(all, batch...)
				prevKey = batch[len(batch)-1].Key
				havePrev = true
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// mergeLeafLevel merges oldLeaves' flattened entries with sorted updates,
// producing the new level-0 entry sequence packed into buckets, plus the
// entry-level diff.
func mergeLeafLevel(average uint32, oldLeaves []Bucket, sorted []Update) ([]Bucket, []EntryDiff, error) {
	var oldEntries []Entry
	for _, b := range oldLeaves {
		oldEntries = append(oldEntries, b.Entries()...)
	}

	var newEntries []Entry
	var diffs []EntryDiff

	i, j := 0, 0
	for i < len(oldEntries) || j < len(sorted) {
		switch {
		case j >= len(sorted) || (i < len(oldEntries) && compareTuple(oldEntries[i].Key, sorted[j].Key) < 0):
			newEntries = append(newEntries, oldEntries[i])
			i++

		case i >= len(oldEntries) || compareTuple(oldEntries[i].Key, sorted[j].Key) > 0:
			u := sorted[j]
			if u.Kind == UpdateInsert {
				e := Entry{Key: u.Key, Val: u.Val}
				newEntries = append(newEntries, e)
				diffs = append(diffs, EntryDiff{Kind: EntryAdded, New: e})
			}
			j++

		default:
			old := oldEntries[i]
			u := sorted[j]
			switch u.Kind {
			case UpdateInsert:
				newE := Entry{Key: u.Key, Val: u.Val}
				if !bytes.Equal(old.Val, newE.Val) {
					newEntries = append(newEntries, newE)
					diffs = append(diffs, EntryDiff{Kind: EntryChanged, Old: old, New: newE})
				} else {
					newEntries = append(newEntries, old)
				}
			case UpdateRemove:
				diffs = append(diffs, EntryDiff{Kind: EntryRemoved, Old: old})
			case UpdateStrictRemove:
				if bytes.Equal(old.Val, u.Val) {
					diffs = append(diffs, EntryDiff{Kind: EntryRemoved, Old: old})
				} else {
					newEntries = append(newEntries, old)
				}
			default:
				return nil, nil, fmt.Errorf("prollipop: unknown update kind %d", u.Kind)
			}
			i++
			j++
		}
	}

	buckets, err := packLevel(average, 0, newEntries)
	if err != nil {
		return nil, nil, err
	}
	if len(buckets) == 0 {
		root, err := newBucket(Prefix{Average: average, Level: 0}, nil, true, true)
		if err != nil {
			return nil, nil, err
		}
		buckets = []Bucket{root}
	}

	return buckets, diffs, nil
}

// packLevel packs entries into the fewest buckets the boundary predicate
// for (average, level) allows, always closing the final bucket regardless
// of whether its last entry is itself a boundary.
func packLevel(average, level uint32, entries []Entry) ([]Bucket, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	pred, err := boundary.New(average, level)
	if err != nil {
		return nil, err
	}

	var buckets []Bucket
	var cur []Entry
	for idx, e := range entries {
		cur = append(cur, e)
		isLast := idx == len(entries)-1
		if isLast || pred(e.Key) {
			b, err := newBucket(Prefix{Average: average, Level: level}, cur, false, isLast)
			if err != nil {
				return nil, err
			}
			buckets = append(buckets, b)
			cur = nil
		}
	}
	return buckets, nil
}

// pointerEntries builds the entries a parent level uses to reference
// buckets: each bucket's boundary key paired with its digest.
func pointerEntries(buckets []Bucket) []Entry {
	entries := make([]Entry, len(buckets))
	for i, b := range buckets {
		digest := b.Digest()
		entries[i] = Entry{Key: b.boundaryKey(), Val: digest[:]}
	}
	return entries
}

// levelBuckets returns, in order, the buckets forming level of tree. It
// returns nil if tree has no such level (level above the root).
func levelBuckets(ctx context.Context, store BlockStore, tree *Tree, level uint32) ([]Bucket, error) {
	if level > tree.root.Level() {
		return nil, nil
	}

	c := NewCursor(store, tree)
	if err := c.JumpTo(ctx, nil, level); err != nil {
		return nil, err
	}

	var buckets []Bucket
	first := true
	var last Digest
	for {
		b := c.CurrentBucket()
		if first || b.Digest() != last {
			buckets = append(buckets, b)
			last = b.Digest()
			first = false
		}
		if c.Done() {
			break
		}
		if err := c.NextBucket(ctx, level); err != nil {
			return nil, err
		}
	}
	return buckets, nil
}

// publishLevel compares oldLevel and newLevel by digest, writes every
// newly-appearing bucket to store, and returns the resulting BucketDiffs.
// Buckets common to both (unchanged subtrees) are neither written nor
// reported.
func publishLevel(ctx context.Context, store BlockStore, oldLevel, newLevel []Bucket) ([]BucketDiff, error) {
	oldSet := make(map[Digest]bool, len(oldLevel))
	for _, b := range oldLevel {
		oldSet[b.Digest()] = true
	}
	newSet := make(map[Digest]bool, len(newLevel))
	for _, b := range newLevel {
		newSet[b.Digest()] = true
	}

	var diffs []BucketDiff
	for _, b := range newLevel {
		if oldSet[b.Digest()] {
			continue
		}
		if err := store.Put(ctx, b.Digest(), b.Bytes()); err != nil {
			return nil, fmt.Errorf("prollipop: publish bucket %s: %w", b.Digest(), err)
		}
		diffs = append(diffs, BucketDiff{Kind: BucketAdded, Bucket: b})
	}
	for _, b := range oldLevel {
		if newSet[b.Digest()] {
			continue
		}
		diffs = append(diffs, BucketDiff{Kind: BucketRemoved, Bucket: b})
	}
	return diffs, nil
}

// sameBucketSequence reports whether a and b are the same buckets in the
// same order.
func sameBucketSequence(a, b []Bucket) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Digest() != b[i].Digest() {
			return false
		}
	}
	return true
}
