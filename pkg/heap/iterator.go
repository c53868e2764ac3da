package heap

import (
	"github.com/nainya/storagecore/pkg/common"
	"github.com/nainya/storagecore/pkg/record"
)

// Iterator walks live tuples of a Heap in page/slot order. It stores only
// the current RowId and re-fetches pages on demand, so it survives
// eviction between steps.
type Iterator struct {
	heap *Heap
	rid  common.RowID
}

// Begin returns an iterator positioned at the first live tuple, or at End
// if the heap is empty.
func (h *Heap) Begin() (*Iterator, error) {
	f, err := h.pool.FetchPage(h.FirstPageID)
	if err != nil {
		return nil, err
	}
	tp := newTablePage(f.Data[:])
	slot, ok := tp.firstTupleSlot()
	h.pool.UnpinPage(h.FirstPageID, false)
	if !ok {
		// No live tuple on the first page: let Next follow the page chain.
		it := &Iterator{heap: h, rid: common.RowID{PageID: h.FirstPageID, Slot: 0}}
		if err := it.Next(); err != nil {
			return nil, err
		}
		return it, nil
	}
	return &Iterator{heap: h, rid: common.RowID{PageID: h.FirstPageID, Slot: slot}}, nil
}

// End returns the sentinel iterator.
func (h *Heap) End() *Iterator {
	return &Iterator{heap: h, rid: common.InvalidRowID}
}

// Done reports whether the iterator has run off the end.
func (it *Iterator) Done() bool {
	return !it.rid.Valid()
}

// RowID returns the iterator's current position.
func (it *Iterator) RowID() common.RowID {
	return it.rid
}

// Row fetches the current tuple.
func (it *Iterator) Row() (*record.Row, error) {
	if it.Done() {
		return nil, nil
	}
	row := &record.Row{RowID: it.rid}
	ok, err := it.heap.GetTuple(row)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return row, nil
}

// Next advances to the next live tuple, following next_page_id links as
// each page is exhausted.
func (it *Iterator) Next() error {
	if it.Done() {
		return nil
	}

	curID := it.rid.PageID
	f, err := it.heap.pool.FetchPage(curID)
	if err != nil {
		return err
	}
	tp := newTablePage(f.Data[:])
	if slot, ok := tp.nextTupleSlot(it.rid.Slot); ok {
		it.heap.pool.UnpinPage(curID, false)
		it.rid = common.RowID{PageID: curID, Slot: slot}
		return nil
	}
	nextID := tp.nextPageID()
	it.heap.pool.UnpinPage(curID, false)

	for nextID != common.InvalidPageID {
		pageID := nextID
		f, err := it.heap.pool.FetchPage(pageID)
		if err != nil {
			return err
		}
		tp := newTablePage(f.Data[:])
		if slot, ok := tp.firstTupleSlot(); ok {
			it.heap.pool.UnpinPage(pageID, false)
			it.rid = common.RowID{PageID: pageID, Slot: slot}
			return nil
		}
		nextID = tp.nextPageID()
		it.heap.pool.UnpinPage(pageID, false)
	}

	it.rid = common.InvalidRowID
	return nil
}
