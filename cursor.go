package prollipop

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/tabcat/prollipop/internal/plog"
)

// pathEntry is one step on a cursor's path from root to current bucket.
type pathEntry struct {
	bucket Bucket
	index  int
	isTail bool // leftmost bucket on its level within the enclosing subtree
	isHead bool // rightmost bucket on its level within the enclosing subtree
}

// Cursor is a stateful, ordered traversal object over one tree. It holds
// the path from root to the current bucket and an index within the
// deepest bucket. Right-moving operations (Next, NextBucket, NextKey) are
// monotone; only JumpTo may move the cursor backward.
//
// A Cursor is not safe for concurrent use: a mutating operation holds an
// exclusive, non-reentrant lock for its duration, and a concurrent call
// fails with ErrCursorLocked rather than corrupting state.
type Cursor struct {
	store  BlockStore
	path   []pathEntry
	done   bool
	locked atomic.Bool
}

// NewCursor returns a cursor positioned at the first entry of tree's root.
func NewCursor(store BlockStore, tree *Tree) *Cursor {
	root := tree.root
	c := &Cursor{
		store: store,
		path:  []pathEntry{{bucket: root, index: 0, isTail: true, isHead: true}},
	}
	c.done = root.Empty()
	return c
}

func (c *Cursor) acquire() error {
	if !c.locked.CompareAndSwap(false, true) {
		return ErrCursorLocked
	}
	return nil
}

func (c *Cursor) release() { c.locked.Store(false) }

// Level returns the level of the deepest bucket in the cursor's path.
func (c *Cursor) Level() uint32 { return c.path[len(c.path)-1].bucket.Level() }

// RootLevel returns the level of the tree's root.
func (c *Cursor) RootLevel() uint32 { return c.path[0].bucket.Level() }

// CurrentBucket returns the deepest bucket in the cursor's path.
func (c *Cursor) CurrentBucket() Bucket { return c.path[len(c.path)-1].bucket }

// CurrentEntry returns the entry the cursor is positioned at. It fails if
// the current bucket is empty (only possible for the root of an empty
// tree).
func (c *Cursor) CurrentEntry() (Entry, error) {
	pe := c.path[len(c.path)-1]
	entries := pe.bucket.Entries()
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("prollipop: cursor has no current entry: bucket is empty")
	}
	return entries[pe.index], nil
}

// Buckets returns the path from root to current bucket, inclusive.
func (c *Cursor) Buckets() []Bucket {
	out := make([]Bucket, len(c.path))
	for i, pe := range c.path {
		out[i] = pe.bucket
	}
	return out
}

// Done reports whether the cursor has advanced past the last entry of the
// tree.
func (c *Cursor) Done() bool { return c.done }

// Locked reports whether a mutating operation is currently in flight.
func (c *Cursor) Locked() bool { return c.locked.Load() }

// IsAtTail reports whether the current path is the leftmost to the root at
// every level.
func (c *Cursor) IsAtTail() bool {
	for _, pe := range c.path {
		if !pe.isTail {
			return false
		}
	}
	return true
}

// IsAtHead reports whether the current path is the rightmost to the root
// at every level.
func (c *Cursor) IsAtHead() bool {
	for _, pe := range c.path {
		if !pe.isHead {
			return false
		}
	}
	return true
}

// KeyRange returns the range covering all descendants of the current
// path: the preceding sibling's tuple (nil meaning MIN) and the current
// entry's tuple, inclusive.
func (c *Cursor) KeyRange() (minExcl, maxIncl Tuple) {
	return rangeAt(c.path[len(c.path)-1])
}

type guideFunc func(entries []Entry) int

func guideFirst(_ []Entry) int { return 0 }

func guideSeek(target Tuple) guideFunc {
	return func(entries []Entry) int {
		idx := seekIndex(entries, target)
		if idx == len(entries) {
			idx = len(entries) - 1
		}
		return idx
	}
}

// seekIndex returns the index of the first entry whose tuple is >= target,
// or len(entries) if none qualifies.
func seekIndex(entries []Entry, target Tuple) int {
	return sort.Search(len(entries), func(i int) bool {
		return compareTuple(entries[i].tuple(), target) >= 0
	})
}

// Next advances one entry at level (defaulting to the current level),
// ascending and descending as needed.
func (c *Cursor) Next(ctx context.Context, level ...uint32) error {
	lvl := c.optLevel(level)
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	return c.next(ctx, lvl)
}

// NextBucket advances to the first entry of the next bucket at level.
func (c *Cursor) NextBucket(ctx context.Context, level ...uint32) error {
	lvl := c.optLevel(level)
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	return c.nextBucket(ctx, lvl)
}

// NextKey advances to the first entry >= k at level.
func (c *Cursor) NextKey(ctx context.Context, k Tuple, level ...uint32) error {
	lvl := c.optLevel(level)
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	return c.nextKey(ctx, k, lvl)
}

// JumpTo resets the cursor's path from root and descends to the entry
// covering k at level. It is the only operation that may move the cursor
// backward.
func (c *Cursor) JumpTo(ctx context.Context, k Tuple, level uint32) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	return c.jumpTo(ctx, k, level)
}

func (c *Cursor) optLevel(level []uint32) uint32 {
	if len(level) > 0 {
		return level[0]
	}
	return c.Level()
}

// ensureLevel moves the path to be positioned exactly at level, ascending
// (truncate + guide) or descending (follow digests + guide) as needed.
func (c *Cursor) ensureLevel(ctx context.Context, level uint32, descendGuide guideFunc) error {
	cur := c.Level()
	switch {
	case level == cur:
		return nil
	case level > c.RootLevel():
		return fmt.Errorf("%w: level %d out of [0, %d]", ErrLevelOutOfRange, level, c.RootLevel())
	case level > cur:
		return c.ascendTo(level)
	default:
		return c.descendTo(ctx, level, descendGuide, nil)
	}
}

// ascendTo truncates the path to the ancestor at level, repositioning its
// index at the first entry >= the tuple the cursor was at, or the last
// entry if none qualifies.
func (c *Cursor) ascendTo(level uint32) error {
	priorEntry, err := c.CurrentEntry()
	if err != nil {
		return err
	}
	prior := priorEntry.tuple()

	for i, pe := range c.path {
		if pe.bucket.Level() == level {
			c.path = c.path[:i+1]
			entries := c.path[i].bucket.Entries()
			idx := seekIndex(entries, prior)
			if idx == len(entries) {
				idx = len(entries) - 1
			}
			c.path[i].index = idx
			return nil
		}
	}
	return fmt.Errorf("%w: no ancestor at level %d", ErrLevelOutOfRange, level)
}

// descendTo follows digests from the current deepest path entry down to
// level, appending freshly loaded (or reused) buckets. reuse, if non-nil,
// is an older path the cursor can pull cached buckets from when a child's
// digest hasn't changed (the jumpTo fast path).
func (c *Cursor) descendTo(ctx context.Context, level uint32, guide guideFunc, reuse []pathEntry) error {
	for {
		depth := len(c.path) - 1
		cur := c.path[depth]
		curLevel := cur.bucket.Level()
		if curLevel == level {
			return nil
		}
		if curLevel < level {
			return fmt.Errorf("%w: cannot descend from level %d to %d", ErrLevelOutOfRange, curLevel, level)
		}

		entries := cur.bucket.Entries()
		entry := entries[cur.index]

		var digest Digest
		if len(entry.Val) < len(digest) {
			return fmt.Errorf("%w: child digest too short: %d bytes", ErrInsufficientHash, len(entry.Val))
		}
		copy(digest[:], entry.Val)

		minExcl, maxIncl := rangeAt(cur)
		isTail := cur.isTail && cur.index == 0
		isHead := cur.isHead && cur.index == len(entries)-1
		childPrefix := Prefix{Average: cur.bucket.Average(), Level: curLevel - 1}

		child, err := c.loadChild(ctx, digest, childPrefix, minExcl, maxIncl, isHead, depth+1, reuse)
		if err != nil {
			return err
		}

		plog.Log.WithFields(plog.Fields{
			"level":  childPrefix.Level,
			"digest": digest.String(),
		}).Debug("cursor: descended to child bucket")

		c.path = append(c.path, pathEntry{
			bucket: child,
			index:  guide(child.Entries()),
			isTail: isTail,
			isHead: isHead,
		})
	}
}

// rangeAt computes the exclusive-lower/inclusive-upper bound that a child
// referenced from cur's current entry must satisfy. A nil minExcl means
// MIN (no lower bound).
func rangeAt(cur pathEntry) (minExcl, maxIncl Tuple) {
	entries := cur.bucket.Entries()
	maxIncl = entries[cur.index].tuple()
	if cur.index > 0 {
		minExcl = entries[cur.index-1].tuple()
	}
	return minExcl, maxIncl
}

func (c *Cursor) loadChild(ctx context.Context, digest Digest, prefix Prefix, minExcl, maxIncl Tuple, isHead bool, depth int, reuse []pathEntry) (Bucket, error) {
	if reuse != nil && depth < len(reuse) && reuse[depth].bucket.Digest() == digest {
		return reuse[depth].bucket, nil
	}

	data, err := c.store.Get(ctx, digest)
	if err != nil {
		return Bucket{}, fmt.Errorf("prollipop: load bucket %s: %w", digest, err)
	}

	bucket, err := decodeBucket(data, decodeOptions{
		expectedPrefix: &prefix,
		hasRange:       true,
		minExcl:        minExcl,
		maxIncl:        maxIncl,
		isHead:         isHead,
		isRoot:         false,
	})
	if err != nil {
		return Bucket{}, fmt.Errorf("prollipop: load bucket %s: %w", digest, err)
	}
	return bucket, nil
}

// ascendCarry walks from startIdx toward the root, incrementing the first
// index that isn't already at its bucket's last entry. It returns the path
// index where the increment happened, or ok=false if the root overflowed.
func (c *Cursor) ascendCarry(startIdx int) (landed int, ok bool) {
	for idx := startIdx; idx >= 0; idx-- {
		pe := &c.path[idx]
		if pe.index+1 < len(pe.bucket.Entries()) {
			pe.index++
			return idx, true
		}
	}
	return 0, false
}

func (c *Cursor) next(ctx context.Context, level uint32) error {
	if c.done {
		return nil
	}
	if err := c.ensureLevel(ctx, level, guideFirst); err != nil {
		return err
	}

	landed, ok := c.ascendCarry(len(c.path) - 1)
	if !ok {
		c.done = true
		return nil
	}
	c.path = c.path[:landed+1]
	return c.descendTo(ctx, level, guideFirst, nil)
}

func (c *Cursor) nextBucket(ctx context.Context, level uint32) error {
	if c.done {
		return nil
	}
	if err := c.ensureLevel(ctx, level, guideFirst); err != nil {
		return err
	}

	parentIdx := len(c.path) - 2
	landed, ok := c.ascendCarry(parentIdx)
	if !ok {
		c.done = true
		return nil
	}
	c.path = c.path[:landed+1]
	return c.descendTo(ctx, level, guideFirst, nil)
}

func (c *Cursor) nextKey(ctx context.Context, target Tuple, level uint32) error {
	if c.done {
		return nil
	}
	if err := c.ensureLevel(ctx, level, guideSeek(target)); err != nil {
		return err
	}

	idx := len(c.path) - 1
	for {
		pe := c.path[idx]
		entries := pe.bucket.Entries()
		last := entries[len(entries)-1]
		if compareTuple(last.tuple(), target) >= 0 {
			break
		}
		if idx == 0 {
			c.done = true
			return nil
		}
		idx--
	}

	pe := &c.path[idx]
	seek := seekIndex(pe.bucket.Entries(), target)
	if seek == len(pe.bucket.Entries()) {
		seek = len(pe.bucket.Entries()) - 1
	}
	if seek < pe.index {
		// target is behind the cursor: stay put rather than move backward.
		return nil
	}
	pe.index = seek
	c.path = c.path[:idx+1]
	return c.descendTo(ctx, level, guideSeek(target), nil)
}

func (c *Cursor) jumpTo(ctx context.Context, target Tuple, level uint32) error {
	old := c.path
	root := old[0].bucket
	entries := root.Entries()

	if len(entries) == 0 {
		c.path = []pathEntry{{bucket: root, index: 0, isTail: true, isHead: true}}
		c.done = true
		return nil
	}

	idx := seekIndex(entries, target)
	if idx == len(entries) {
		idx = len(entries) - 1
	}

	c.path = []pathEntry{{bucket: root, index: idx, isTail: true, isHead: true}}
	c.done = false

	if root.Level() == level {
		return nil
	}
	return c.descendTo(ctx, level, guideSeek(target), old)
}
