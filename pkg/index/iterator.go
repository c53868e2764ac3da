package index

import (
	"github.com/nainya/storagecore/pkg/common"
)

// Iterator walks a tree's leaves in ascending key order. It holds only a
// page id and a slot index between steps, never a pin, mirroring the
// table heap's iterator.
type Iterator struct {
	tree   *Tree
	pageID common.PageID
	idx    int
	atEnd  bool
}

// Begin returns an iterator positioned at the tree's smallest key.
func (t *Tree) Begin() (*Iterator, error) {
	if t.IsEmpty() {
		return &Iterator{tree: t, atEnd: true}, nil
	}
	leafID, err := t.findLeafPage(nil, true)
	if err != nil {
		return nil, err
	}
	return &Iterator{tree: t, pageID: leafID, idx: 0}, nil
}

// BeginAt returns an iterator positioned at the first entry whose key is
// >= key (or End if every key in the tree is smaller).
func (t *Tree) BeginAt(key []byte) (*Iterator, error) {
	if t.IsEmpty() {
		return &Iterator{tree: t, atEnd: true}, nil
	}
	leafID, err := t.findLeafPage(key, false)
	if err != nil {
		return nil, err
	}
	f, err := t.pool.FetchPage(leafID)
	if err != nil {
		return nil, err
	}
	leaf := newLeafPage(f.Data[:])
	idx := leaf.keyIndex(key, t.km)
	next := leaf.nextPageID()
	size := leaf.size()
	t.pool.UnpinPage(leafID, false)

	it := &Iterator{tree: t, pageID: leafID, idx: idx}
	if idx >= size {
		if err := it.advancePage(next); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// End returns an iterator already past the tree's largest key.
func (t *Tree) End() *Iterator {
	return &Iterator{tree: t, atEnd: true}
}

// Done reports whether the iterator has no more entries.
func (it *Iterator) Done() bool { return it.atEnd }

// Key returns the current entry's key. Callers must not retain the slice
// past the next iterator call.
func (it *Iterator) Key() ([]byte, error) {
	leaf, unpin, err := it.currentLeaf()
	if err != nil {
		return nil, err
	}
	defer unpin()
	return append([]byte(nil), leaf.keyAt(it.idx)...), nil
}

// Value returns the current entry's RowId.
func (it *Iterator) Value() (common.RowID, error) {
	leaf, unpin, err := it.currentLeaf()
	if err != nil {
		return common.RowID{}, err
	}
	defer unpin()
	return leaf.valueAt(it.idx), nil
}

func (it *Iterator) currentLeaf() (*leafPage, func(), error) {
	f, err := it.tree.pool.FetchPage(it.pageID)
	if err != nil {
		return nil, nil, err
	}
	leaf := newLeafPage(f.Data[:])
	return leaf, func() { it.tree.pool.UnpinPage(it.pageID, false) }, nil
}

// Next advances to the next entry, following the leaf chain when the
// current leaf is exhausted. Becomes Done at the tree's end.
func (it *Iterator) Next() error {
	if it.atEnd {
		return nil
	}
	f, err := it.tree.pool.FetchPage(it.pageID)
	if err != nil {
		return err
	}
	leaf := newLeafPage(f.Data[:])
	next := leaf.nextPageID()
	size := leaf.size()
	it.tree.pool.UnpinPage(it.pageID, false)

	it.idx++
	if it.idx < size {
		return nil
	}
	return it.advancePage(next)
}

// advancePage follows the leaf chain to the next non-empty leaf, or
// marks the iterator Done when the chain runs out.
func (it *Iterator) advancePage(pageID common.PageID) error {
	for pageID != common.InvalidPageID {
		f, err := it.tree.pool.FetchPage(pageID)
		if err != nil {
			return err
		}
		leaf := newLeafPage(f.Data[:])
		size := leaf.size()
		next := leaf.nextPageID()
		it.tree.pool.UnpinPage(pageID, false)

		if size > 0 {
			it.pageID = pageID
			it.idx = 0
			return nil
		}
		pageID = next
	}
	it.atEnd = true
	return nil
}
