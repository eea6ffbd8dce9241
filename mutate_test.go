package prollipop

import (
	"context"
	"fmt"
	"sort"
	"testing"
)

// buildTree inserts key->val (derived from key) pairs into a fresh empty
// tree with the given average, draining the diff channel, and returns the
// resulting tree. keys need not be pre-sorted.
func buildTree(t *testing.T, store BlockStore, average uint32, keys []string) *Tree {
	t.Helper()

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var updates []Update
	for _, k := range sorted {
		updates = append(updates, Insert([]byte(k), []byte("v-"+k)))
	}

	tree, err := CreateEmptyTree(WithAverage(average))
	if err != nil {
		t.Fatal(err)
	}

	ch := make(chan []Update, 1)
	ch <- updates
	close(ch)

	diffs, result := Mutate(context.Background(), store, tree, ch)
	for range diffs {
	}
	res := <-result
	if res.Err != nil {
		t.Fatalf("Mutate: %v", res.Err)
	}
	return res.Tree
}

func testKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%05d", i)
	}
	return keys
}

func TestMutateBuildsSearchableTree(t *testing.T) {
	store := NewMemoryBlockStore()
	keys := testKeys(500)
	tree := buildTree(t, store, 8, keys)

	for _, k := range keys {
		val, err := Search(context.Background(), store, tree, []byte(k))
		if err != nil {
			t.Fatalf("Search(%q): %v", k, err)
		}
		if string(val) != "v-"+k {
			t.Fatalf("Search(%q) = %q, want %q", k, val, "v-"+k)
		}
	}
}

func TestMutateGrowsAboveLeafLevel(t *testing.T) {
	store := NewMemoryBlockStore()
	tree := buildTree(t, store, 4, testKeys(2000))
	if tree.Root().Level() == 0 {
		t.Fatal("want a multi-level tree for 2000 entries at average 4, got a single leaf bucket")
	}
}

func TestMutateIsIdempotentWhenUnchanged(t *testing.T) {
	store := NewMemoryBlockStore()
	tree := buildTree(t, store, 8, testKeys(100))

	ch := make(chan []Update, 1)
	ch <- nil
	close(ch)

	diffs, result := Mutate(context.Background(), store, tree, ch)
	var gotDiffs int
	for range diffs {
		gotDiffs++
	}
	res := <-result
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Tree.Root().Digest() != tree.Root().Digest() {
		t.Fatal("mutating with no updates changed the root digest")
	}
	if gotDiffs != 0 {
		t.Fatalf("got %d diff batches for a no-op mutation, want 0", gotDiffs)
	}
}

func TestMutateRebuildIsDeterministic(t *testing.T) {
	keys := testKeys(300)

	storeA := NewMemoryBlockStore()
	treeA := buildTree(t, storeA, 8, keys)

	// treeB gets the same keys one Mutate call at a time, in reverse order.
	reversed := append([]string(nil), keys...)
	sort.Sort(sort.Reverse(sort.StringSlice(reversed)))
	storeB := NewMemoryBlockStore()
	treeB, err := CreateEmptyTree(WithAverage(8))
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range reversed {
		ch := make(chan []Update, 1)
		ch <- []Update{Insert([]byte(k), []byte("v-"+k))}
		close(ch)
		diffs, result := Mutate(context.Background(), storeB, treeB, ch)
		for range diffs {
		}
		res := <-result
		if res.Err != nil {
			t.Fatal(res.Err)
		}
		treeB = res.Tree
	}

	if treeA.Root().Digest() != treeB.Root().Digest() {
		t.Fatal("building the same key set in different insertion order produced different root digests")
	}
}

func TestMutateRemoveDeletesEntry(t *testing.T) {
	store := NewMemoryBlockStore()
	tree := buildTree(t, store, 8, testKeys(50))

	ch := make(chan []Update, 1)
	ch <- []Update{Remove([]byte("key-00010"))}
	close(ch)

	diffs, result := Mutate(context.Background(), store, tree, ch)
	for range diffs {
	}
	res := <-result
	if res.Err != nil {
		t.Fatal(res.Err)
	}

	if _, err := Search(context.Background(), store, res.Tree, []byte("key-00010")); err == nil {
		t.Fatal("want ErrNotFound after removing key-00010, got nil error")
	}
	if val, err := Search(context.Background(), store, res.Tree, []byte("key-00011")); err != nil || string(val) != "v-key-00011" {
		t.Fatalf("unrelated key-00011 should survive removal, got val=%q err=%v", val, err)
	}
}

func TestMutateStrictRemoveRequiresMatchingValue(t *testing.T) {
	store := NewMemoryBlockStore()
	tree := buildTree(t, store, 8, testKeys(10))

	ch := make(chan []Update, 1)
	ch <- []Update{StrictRemove([]byte("key-00003"), []byte("wrong-value"))}
	close(ch)

	_, result := Mutate(context.Background(), store, tree, ch)
	res := <-result
	if res.Err != nil {
		t.Fatal(res.Err)
	}

	val, err := Search(context.Background(), store, res.Tree, []byte("key-00003"))
	if err != nil {
		t.Fatalf("strict remove with a mismatched value must not delete the entry: %v", err)
	}
	if string(val) != "v-key-00003" {
		t.Fatalf("entry value changed despite a mismatched strict remove: %q", val)
	}
}

func TestMutateRejectsUnsortedBatch(t *testing.T) {
	store := NewMemoryBlockStore()
	tree, err := CreateEmptyTree(WithAverage(8))
	if err != nil {
		t.Fatal(err)
	}

	ch := make(chan []Update, 1)
	ch <- []Update{Insert([]byte("b"), []byte("1")), Insert([]byte("a"), []byte("2"))}
	close(ch)

	_, result := Mutate(context.Background(), store, tree, ch)
	res := <-result
	if res.Err == nil {
		t.Fatal("want error for unsorted update batch, got nil")
	}
}

func TestMutateEmptyingTreeYieldsCanonicalEmptyRoot(t *testing.T) {
	store := NewMemoryBlockStore()
	tree := buildTree(t, store, 8, []string{"only-key"})

	ch := make(chan []Update, 1)
	ch <- []Update{Remove([]byte("only-key"))}
	close(ch)

	diffs, result := Mutate(context.Background(), store, tree, ch)
	for range diffs {
	}
	res := <-result
	if res.Err != nil {
		t.Fatal(res.Err)
	}

	want, err := CreateEmptyTree(WithAverage(8))
	if err != nil {
		t.Fatal(err)
	}
	if res.Tree.Root().Digest() != want.Root().Digest() {
		t.Fatal("emptying a tree did not converge to the canonical empty root")
	}
}
