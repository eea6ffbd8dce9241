package prollipop

import (
	"bytes"
	"context"
	"fmt"
)

// Search looks up key in tree and returns its value. It returns an error
// wrapping ErrNotFound if key is absent.
func Search(ctx context.Context, store BlockStore, tree *Tree, key []byte) ([]byte, error) {
	c := NewCursor(store, tree)
	if err := c.JumpTo(ctx, key, 0); err != nil {
		return nil, fmt.Errorf("prollipop: search: %w", err)
	}
	if c.Done() {
		return nil, fmt.Errorf("%w: key %x", ErrNotFound, key)
	}

	e, err := c.CurrentEntry()
	if err != nil {
		return nil, fmt.Errorf("prollipop: search: %w", err)
	}
	if !bytes.Equal(e.Key, key) {
		return nil, fmt.Errorf("%w: key %x", ErrNotFound, key)
	}
	return e.Val, nil
}

// Range streams every entry with minExcl < key <= maxIncl, in order. A nil
// minExcl means "from the start"; a nil maxIncl means "to the end". yield
// returning false stops the walk early.
func Range(ctx context.Context, store BlockStore, tree *Tree, minExcl, maxIncl Tuple, yield func(Entry) bool) error {
	c := NewCursor(store, tree)

	if err := c.JumpTo(ctx, minExcl, 0); err != nil {
		return fmt.Errorf("prollipop: range: %w", err)
	}
	if minExcl != nil && !c.Done() {
		// JumpTo lands on the first key >= minExcl, or on the last entry
		// when every key is below minExcl; skip either if it is not above.
		e, err := c.CurrentEntry()
		if err == nil && compareTuple(e.Key, minExcl) <= 0 {
			if err := c.Next(ctx, 0); err != nil {
				return fmt.Errorf("prollipop: range: %w", err)
			}
		}
	}

	for !c.Done() {
		e, err := c.CurrentEntry()
		if err != nil {
			return fmt.Errorf("prollipop: range: %w", err)
		}
		if maxIncl != nil && compareTuple(e.Key, maxIncl) > 0 {
			return nil
		}
		if !yield(e) {
			return nil
		}
		if err := c.Next(ctx, 0); err != nil {
			return fmt.Errorf("prollipop: range: %w", err)
		}
	}
	return nil
}

// Merge applies b's entries onto a as a batch of inserts, resolving a
// symmetric difference into an update stream for Mutate. Entries unique to
// b are inserted into a; entries unique to a are left untouched (Merge is a
// union, not a symmetric overwrite); entries present in both with
// differing values take b's value (b wins).
func Merge(ctx context.Context, store BlockStore, a, b *Tree) (*Tree, error) {
	diffs, result := Diff(ctx, store, a, b)

	var updates []Update
	for d := range diffs {
		for _, ed := range d.Entries {
			switch ed.Kind {
			case EntryAdded, EntryChanged:
				updates = append(updates, Insert(ed.New.Key, ed.New.Val))
			case EntryRemoved:
				// present only in a: keep a's value, nothing to do.
			}
		}
	}
	if res := <-result; res.Err != nil {
		return nil, fmt.Errorf("prollipop: merge: %w", res.Err)
	}

	updatesCh := make(chan []Update, 1)
	updatesCh <- updates
	close(updatesCh)

	mutateDiffs, mutateResult := Mutate(ctx, store, a, updatesCh)
	for range mutateDiffs {
	}
	res := <-mutateResult
	if res.Err != nil {
		return nil, fmt.Errorf("prollipop: merge: %w", res.Err)
	}
	return res.Tree, nil
}

// SyncResult carries the outcome of a Sync call.
type SyncResult struct {
	Err error
}

// Sync brings target up to date with remote, per spec.md's
// sync(localBlockstore, target, remote, remoteBlockstore) contract: it
// reads remote's buckets through remoteStore, copies every bucket target
// is missing into localStore, and only once every level has been copied
// successfully does it swap target's root to remote's. A consumer that
// stops draining digests, or any error along the way, leaves target
// unchanged — target.root is never assigned until the walk finishes.
//
// Sync returns immediately. The digests channel streams, one batch per
// level that had buckets to copy, the digests just copied into localStore
// (levels with nothing to copy send no batch; the channel is closed when the walk
// finishes or fails); the result channel receives exactly one SyncResult.
func Sync(ctx context.Context, localStore BlockStore, target, remote *Tree, remoteStore BlockStore) (<-chan []Digest, <-chan SyncResult) {
	digests := make(chan []Digest)
	result := make(chan SyncResult, 1)

	go func() {
		defer close(digests)
		defer close(result)

		err := syncTrees(ctx, localStore, target, remote, remoteStore, digests)
		result <- SyncResult{Err: err}
	}()

	return digests, result
}

func syncTrees(ctx context.Context, localStore BlockStore, target, remote *Tree, remoteStore BlockStore, digests chan<- []Digest) error {
	if target.root.Digest() == remote.root.Digest() {
		return nil
	}

	for level := uint32(0); level <= remote.root.Level(); level++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		localLevel, err := levelBuckets(ctx, localStore, target, level)
		if err != nil {
			return fmt.Errorf("prollipop: sync: read local level %d: %w", level, err)
		}
		remoteLevel, err := levelBuckets(ctx, remoteStore, remote, level)
		if err != nil {
			return fmt.Errorf("prollipop: sync: read remote level %d: %w", level, err)
		}

		have := make(map[Digest]bool, len(localLevel))
		for _, b := range localLevel {
			have[b.Digest()] = true
		}

		var copied []Digest
		for _, b := range remoteLevel {
			if have[b.Digest()] {
				continue
			}
			if err := localStore.Put(ctx, b.Digest(), b.Bytes()); err != nil {
				return fmt.Errorf("prollipop: sync: store bucket %s: %w", b.Digest(), err)
			}
			copied = append(copied, b.Digest())
		}

		if len(copied) > 0 {
			select {
			case digests <- copied:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// Only reached once every level copied without error: the new root
	// becomes live atomically, never partway through the walk.
	target.root = remote.root
	target.maxLevel = remote.maxLevel
	return nil
}
