package prollipop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// BlockStore is the content-addressed block storage abstraction the tree
// is built on. It is deliberately minimal: the hash function, encoding,
// and any transport are the caller's concern, not the library's.
type BlockStore interface {
	// Get fetches the bytes stored under digest. It returns an error
	// wrapping ErrNotFound when no block exists for digest.
	Get(ctx context.Context, digest Digest) ([]byte, error)

	// Put stores bytes under digest. Writes are idempotent: buckets are
	// content-addressed, so re-putting the same digest is always a no-op
	// from the caller's point of view, and callers may tolerate last-
	// writer-wins without synchronizing concurrent Put calls.
	Put(ctx context.Context, digest Digest, data []byte) error
}

// MemoryBlockStore is an in-memory BlockStore, primarily useful for tests
// and for the CLI's scratch workspace. It is safe for concurrent use.
type MemoryBlockStore struct {
	mu   sync.RWMutex
	data map[Digest][]byte
}

// NewMemoryBlockStore returns an empty in-memory block store.
func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{data: make(map[Digest][]byte)}
}

func (s *MemoryBlockStore) Get(_ context.Context, digest Digest) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[digest]
	if !ok {
		return nil, fmt.Errorf("%w: digest %s", ErrNotFound, digest)
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryBlockStore) Put(_ context.Context, digest Digest, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[digest]; ok {
		return nil // idempotent
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[digest] = cp
	return nil
}

// Len reports how many blocks are currently stored.
func (s *MemoryBlockStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// LRUBlockStore decorates a backing BlockStore with an in-memory LRU cache
// of recently fetched buckets, the same role golang-lru plays fronting a
// disk-backed store in the source lineage this library draws its ambient
// stack from. Writes are always forwarded to the backing store, and both
// fetched and written buckets are added to the cache; buckets are
// immutable and content-addressed, so a cached entry can never go stale.
type LRUBlockStore struct {
	backing BlockStore
	cache   *lru.Cache[Digest, []byte]
}

// NewLRUBlockStore wraps backing with an LRU read cache holding up to size
// entries.
func NewLRUBlockStore(backing BlockStore, size int) (*LRUBlockStore, error) {
	cache, err := lru.New[Digest, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("prollipop: new LRU block store: %w", err)
	}
	return &LRUBlockStore{backing: backing, cache: cache}, nil
}

func (s *LRUBlockStore) Get(ctx context.Context, digest Digest) ([]byte, error) {
	if data, ok := s.cache.Get(digest); ok {
		return data, nil
	}

	data, err := s.backing.Get(ctx, digest)
	if err != nil {
		return nil, err
	}

	s.cache.Add(digest, data)
	return data, nil
}

func (s *LRUBlockStore) Put(ctx context.Context, digest Digest, data []byte) error {
	if err := s.backing.Put(ctx, digest, data); err != nil {
		return err
	}
	s.cache.Add(digest, data)
	return nil
}

// FileBlockStore is a BlockStore backed by one file per bucket in a
// directory, named by the bucket's hex digest. It is the store the CLI
// points at a --store-dir.
type FileBlockStore struct {
	dir string
}

// NewFileBlockStore returns a FileBlockStore rooted at dir. dir must
// already exist.
func NewFileBlockStore(dir string) *FileBlockStore {
	return &FileBlockStore{dir: dir}
}

func (s *FileBlockStore) path(digest Digest) string {
	return filepath.Join(s.dir, digest.String())
}

func (s *FileBlockStore) Get(_ context.Context, digest Digest) ([]byte, error) {
	data, err := os.ReadFile(s.path(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: digest %s", ErrNotFound, digest)
		}
		return nil, fmt.Errorf("prollipop: read bucket %s: %w", digest, err)
	}
	return data, nil
}

func (s *FileBlockStore) Put(_ context.Context, digest Digest, data []byte) error {
	path := s.path(digest)
	if _, err := os.Stat(path); err == nil {
		return nil // idempotent
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("prollipop: write bucket %s: %w", digest, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("prollipop: commit bucket %s: %w", digest, err)
	}
	return nil
}
