package prollipop

import (
	"context"
	"testing"
)

func collectTreeDiff(t *testing.T, diffs <-chan TreeDiff, result <-chan DiffResult) TreeDiff {
	t.Helper()
	var merged TreeDiff
	for d := range diffs {
		merged.Entries = append(merged.Entries, d.Entries...)
		merged.Buckets = append(merged.Buckets, d.Buckets...)
	}
	if res := <-result; res.Err != nil {
		t.Fatal(res.Err)
	}
	return merged
}

func TestDiffIdenticalTreesIsEmpty(t *testing.T) {
	store := NewMemoryBlockStore()
	tree := buildTree(t, store, 8, testKeys(100))

	diffs, result := Diff(context.Background(), store, tree, tree)
	d := collectTreeDiff(t, diffs, result)
	if len(d.Entries) != 0 {
		t.Fatalf("diffing a tree against itself produced %d entry diffs, want 0", len(d.Entries))
	}
}

func TestDiffFindsAddedAndRemovedEntries(t *testing.T) {
	store := NewMemoryBlockStore()
	base := testKeys(100)
	a := buildTree(t, store, 8, base)

	// b: drop key-00010, add a brand new key.
	withChanges := append([]string(nil), base...)
	for i, k := range withChanges {
		if k == "key-00010" {
			withChanges = append(withChanges[:i], withChanges[i+1:]...)
			break
		}
	}
	withChanges = append(withChanges, "key-99999")
	b := buildTree(t, store, 8, withChanges)

	diffs, result := Diff(context.Background(), store, a, b)
	d := collectTreeDiff(t, diffs, result)

	var added, removed int
	for _, e := range d.Entries {
		switch e.Kind {
		case EntryAdded:
			added++
			if string(e.New.Key) != "key-99999" {
				t.Fatalf("unexpected added key %q", e.New.Key)
			}
		case EntryRemoved:
			removed++
			if string(e.Old.Key) != "key-00010" {
				t.Fatalf("unexpected removed key %q", e.Old.Key)
			}
		case EntryChanged:
			t.Fatalf("unexpected EntryChanged for %q", e.New.Key)
		}
	}
	if added != 1 || removed != 1 {
		t.Fatalf("got added=%d removed=%d, want 1 and 1", added, removed)
	}
	if len(d.Buckets) == 0 {
		t.Fatal("changing one entry produced 0 bucket diffs, want at least one added and one removed bucket")
	}

	var bucketsAdded, bucketsRemoved int
	for _, bd := range d.Buckets {
		switch bd.Kind {
		case BucketAdded:
			bucketsAdded++
		case BucketRemoved:
			bucketsRemoved++
		}
	}
	if bucketsAdded == 0 || bucketsRemoved == 0 {
		t.Fatalf("got bucketsAdded=%d bucketsRemoved=%d, want both > 0", bucketsAdded, bucketsRemoved)
	}
}

func TestDiffBucketSetMatchesSupersetSubsetDifference(t *testing.T) {
	store := NewMemoryBlockStore()
	sub := testKeys(40)
	super := testKeys(400) // a strict superset of sub's keys, same numbering scheme

	a := buildTree(t, store, 8, sub)
	b := buildTree(t, store, 8, super)

	diffs, result := Diff(context.Background(), store, a, b)
	d := collectTreeDiff(t, diffs, result)

	// Each tree's bucket collection spans every level, not just the leaves.
	aSet := make(map[Digest]bool)
	for level := uint32(0); level <= a.Root().Level(); level++ {
		aBuckets, err := levelBuckets(context.Background(), store, a, level)
		if err != nil {
			t.Fatal(err)
		}
		for _, bkt := range aBuckets {
			aSet[bkt.Digest()] = true
		}
	}
	bSet := make(map[Digest]bool)
	for level := uint32(0); level <= b.Root().Level(); level++ {
		bBuckets, err := levelBuckets(context.Background(), store, b, level)
		if err != nil {
			t.Fatal(err)
		}
		for _, bkt := range bBuckets {
			bSet[bkt.Digest()] = true
		}
	}

	wantRemoved := make(map[Digest]bool)
	for d := range aSet {
		if !bSet[d] {
			wantRemoved[d] = true
		}
	}
	wantAdded := make(map[Digest]bool)
	for d := range bSet {
		if !aSet[d] {
			wantAdded[d] = true
		}
	}

	gotRemoved := make(map[Digest]bool)
	gotAdded := make(map[Digest]bool)
	for _, bd := range d.Buckets {
		switch bd.Kind {
		case BucketRemoved:
			gotRemoved[bd.Bucket.Digest()] = true
		case BucketAdded:
			gotAdded[bd.Bucket.Digest()] = true
		}
	}

	if len(gotRemoved) != len(wantRemoved) {
		t.Fatalf("got %d removed buckets, want %d", len(gotRemoved), len(wantRemoved))
	}
	for dg := range wantRemoved {
		if !gotRemoved[dg] {
			t.Fatalf("missing expected removed bucket %s", dg)
		}
	}
	if len(gotAdded) != len(wantAdded) {
		t.Fatalf("got %d added buckets, want %d", len(gotAdded), len(wantAdded))
	}
	for dg := range wantAdded {
		if !gotAdded[dg] {
			t.Fatalf("missing expected added bucket %s", dg)
		}
	}
}

func TestDiffFindsChangedValue(t *testing.T) {
	store := NewMemoryBlockStore()
	a := buildTree(t, store, 8, testKeys(20))

	tree, err := CreateEmptyTree(WithAverage(8))
	if err != nil {
		t.Fatal(err)
	}
	var updates []Update
	for _, k := range testKeys(20) {
		val := "v-" + k
		if k == "key-00003" {
			val = "changed"
		}
		updates = append(updates, Insert([]byte(k), []byte(val)))
	}

	ch := make(chan []Update, 1)
	ch <- updates
	close(ch)
	mutateDiffs, result := Mutate(context.Background(), store, tree, ch)
	for range mutateDiffs {
	}
	res := <-result
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	b := res.Tree

	diffs, diffResult := Diff(context.Background(), store, a, b)
	d := collectTreeDiff(t, diffs, diffResult)

	var changed int
	for _, e := range d.Entries {
		if e.Kind == EntryChanged {
			changed++
			if string(e.New.Val) != "changed" {
				t.Fatalf("EntryChanged.New.Val = %q, want %q", e.New.Val, "changed")
			}
		}
	}
	if changed != 1 {
		t.Fatalf("got %d EntryChanged diffs, want 1", changed)
	}
}
