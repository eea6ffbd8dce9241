package prollipop

import (
	"context"
	"fmt"
)

// Tree is a handle onto a prolly tree: an ordered, content-addressed DAG
// of buckets. Root is the tree's only mutable field; every bucket it
// transitively references is immutable.
type Tree struct {
	root     Bucket
	maxLevel uint32
}

// Root returns the tree's current root bucket.
func (t *Tree) Root() Bucket { return t.root }

// TreeOption configures CreateEmptyTree.
type TreeOption func(*treeConfig)

type treeConfig struct {
	average  uint32
	maxLevel uint32
}

// WithAverage sets the expected bucket size for a newly created empty
// tree. The default is DefaultAverage.
func WithAverage(average uint32) TreeOption {
	return func(c *treeConfig) { c.average = average }
}

// WithMaxLevel overrides the tree's level ceiling. The default is
// MaxLevel; callers should rarely need this.
func WithMaxLevel(maxLevel uint32) TreeOption {
	return func(c *treeConfig) { c.maxLevel = maxLevel }
}

// CreateEmptyTree returns a new tree whose root is the canonical empty
// bucket {average, level: 0, entries: []}. Re-creating a tree with the
// same average always yields byte-identical root bytes.
func CreateEmptyTree(opts ...TreeOption) (*Tree, error) {
	cfg := treeConfig{average: DefaultAverage, maxLevel: MaxLevel}
	for _, opt := range opts {
		opt(&cfg)
	}

	root, err := newBucket(Prefix{Average: cfg.average, Level: 0}, nil, true, true)
	if err != nil {
		return nil, fmt.Errorf("prollipop: create empty tree: %w", err)
	}

	return &Tree{root: root, maxLevel: cfg.maxLevel}, nil
}

// CloneTree returns a shallow copy of t: the root bucket is immutable and
// shared between the two handles, so cloning is O(1) and safe — mutating
// the clone's root (via Mutate/Merge/Sync) never affects t, since those
// operations replace the root rather than editing it in place.
func CloneTree(t *Tree) *Tree {
	return &Tree{root: t.root, maxLevel: t.maxLevel}
}

// LoadTree fetches and decodes the bucket at rootDigest from store and
// returns a Tree rooted there. The bucket is validated as a root: an
// empty bucket is only accepted at level 0, and a level > 0 root must
// have at least 2 entries.
func LoadTree(ctx context.Context, store BlockStore, rootDigest Digest) (*Tree, error) {
	data, err := store.Get(ctx, rootDigest)
	if err != nil {
		return nil, fmt.Errorf("prollipop: load tree root %s: %w", rootDigest, err)
	}

	root, err := decodeBucket(data, decodeOptions{isRoot: true, isHead: true})
	if err != nil {
		return nil, fmt.Errorf("prollipop: load tree root %s: %w", rootDigest, err)
	}

	return &Tree{root: root, maxLevel: MaxLevel}, nil
}
