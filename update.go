package prollipop

// UpdateKind tags the variant of an Update.
type UpdateKind int

const (
	// UpdateInsert inserts or overwrites Key with Val.
	UpdateInsert UpdateKind = iota
	// UpdateRemove unconditionally removes Key.
	UpdateRemove
	// UpdateStrictRemove removes Key only if the stored value equals Val.
	UpdateStrictRemove
)

// Update is one mutation to apply to a tree: an insert/overwrite, an
// unconditional remove, or a conditional ("strict") remove. This is the
// tagged-sum replacement for the source's duck-typed
// Tuple | Entry | StrictEntry update shapes.
type Update struct {
	Kind UpdateKind
	Key  []byte
	Val  []byte // unused for UpdateRemove
}

// Insert builds an insert/overwrite update.
func Insert(key, val []byte) Update {
	return Update{Kind: UpdateInsert, Key: key, Val: val}
}

// Remove builds an unconditional remove update.
func Remove(key []byte) Update {
	return Update{Kind: UpdateRemove, Key: key}
}

// StrictRemove builds a conditional remove update: it is a no-op unless
// the tree's stored value for Key equals val.
func StrictRemove(key, val []byte) Update {
	return Update{Kind: UpdateStrictRemove, Key: key, Val: val}
}
