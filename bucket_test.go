package prollipop

import "testing"

func TestDigestStringParseDigestRoundTrip(t *testing.T) {
	b, err := newBucket(Prefix{Average: 4, Level: 0}, []Entry{{Key: []byte("a"), Val: []byte("1")}}, true, true)
	if err != nil {
		t.Fatal(err)
	}

	s := b.Digest().String()
	got, err := ParseDigest(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != b.Digest() {
		t.Fatalf("ParseDigest(%q) = %x, want %x", s, got, b.Digest())
	}
}

func TestParseDigestRejectsBadInput(t *testing.T) {
	cases := []string{"", "not-hex", "abcd", string(make([]byte, 65))}
	for _, s := range cases {
		if _, err := ParseDigest(s); err == nil {
			t.Errorf("ParseDigest(%q): want error, got nil", s)
		}
	}
}

func TestNewBucketRejectsUnsortedEntries(t *testing.T) {
	_, err := newBucket(Prefix{Average: 4, Level: 0}, []Entry{
		{Key: []byte("b"), Val: []byte("1")},
		{Key: []byte("a"), Val: []byte("2")},
	}, true, true)
	if err == nil {
		t.Fatal("want error for unsorted entries, got nil")
	}
}

func TestNewBucketRejectsDuplicateKeys(t *testing.T) {
	_, err := newBucket(Prefix{Average: 4, Level: 0}, []Entry{
		{Key: []byte("a"), Val: []byte("1")},
		{Key: []byte("a"), Val: []byte("2")},
	}, true, true)
	if err == nil {
		t.Fatal("want error for duplicate keys, got nil")
	}
}

func TestNewBucketRejectsNonRootEmpty(t *testing.T) {
	_, err := newBucket(Prefix{Average: 4, Level: 0}, nil, false, true)
	if err == nil {
		t.Fatal("want error for empty non-root bucket, got nil")
	}
}

func TestNewBucketAllowsEmptyRootAtLevelZero(t *testing.T) {
	b, err := newBucket(Prefix{Average: 4, Level: 0}, nil, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if !b.Empty() {
		t.Fatal("want empty bucket")
	}
}

func TestNewBucketRejectsShortRootAboveLevelZero(t *testing.T) {
	_, err := newBucket(Prefix{Average: 4, Level: 1}, []Entry{
		{Key: []byte("a"), Val: make([]byte, 32)},
	}, true, true)
	if err == nil {
		t.Fatal("want error for single-entry root above level 0, got nil")
	}
}

func TestNewBucketRejectsEmptyRootAboveLevelZero(t *testing.T) {
	_, err := newBucket(Prefix{Average: 4, Level: 1}, nil, true, true)
	if err == nil {
		t.Fatal("want error for empty root above level 0, got nil")
	}
}

func TestBucketBoundaryKeyIsLastEntry(t *testing.T) {
	entries := []Entry{
		{Key: []byte("a"), Val: []byte("1")},
		{Key: []byte("b"), Val: []byte("2")},
	}
	b, err := newBucket(Prefix{Average: 1_000_000, Level: 0}, entries, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(b.boundaryKey()) != "b" {
		t.Fatalf("boundaryKey() = %q, want %q", b.boundaryKey(), "b")
	}
}
