package heap

import (
	"fmt"

	"github.com/nainya/storagecore/pkg/buffer"
	"github.com/nainya/storagecore/pkg/common"
	"github.com/nainya/storagecore/pkg/record"
	"github.com/nainya/storagecore/pkg/txnlog"
)

// pool is the slice of the buffer pool the table heap depends on.
type pool interface {
	FetchPage(id common.PageID) (*buffer.Frame, error)
	NewPage() (*buffer.Frame, common.PageID, error)
	UnpinPage(id common.PageID, isDirty bool) bool
}

// Heap is a relation stored as a linked list of slotted pages rooted at
// FirstPageID.
type Heap struct {
	pool        pool
	schema      *record.Schema
	FirstPageID common.PageID
	log         *txnlog.Manager
}

// SetLog attaches a write-ahead log; every subsequent insert, tombstone
// delete (MarkDelete) and in-place update is appended to it before the
// call returns. ApplyDelete, RollbackDelete and the removal of the old slot
// when an update relocates a tuple are not logged. A nil log (the default)
// disables logging.
func (h *Heap) SetLog(log *txnlog.Manager) {
	h.log = log
}

// slotHeaderOverhead bounds how much of a page a single tuple may occupy,
// leaving room for the page header and that tuple's own slot entry.
const slotHeaderOverhead = tablePageHeaderSize + slotEntrySize + 16

// New wraps an existing heap rooted at firstPageID.
func New(p pool, schema *record.Schema, firstPageID common.PageID) *Heap {
	return &Heap{pool: p, schema: schema, FirstPageID: firstPageID}
}

// Create allocates a fresh, empty first page and returns the new heap.
func Create(p pool, schema *record.Schema) (*Heap, error) {
	f, id, err := p.NewPage()
	if err != nil {
		return nil, fmt.Errorf("heap: create: %w", err)
	}
	newTablePage(f.Data[:]).init(id)
	p.UnpinPage(id, true)
	return New(p, schema, id), nil
}

// InsertTuple places row's serialized bytes on the first page with room,
// walking next_page_id links and appending a new page at the tail if
// needed. On success row.RowID is set.
func (h *Heap) InsertTuple(row *record.Row) (bool, error) {
	size, err := row.SerializedSize(h.schema)
	if err != nil {
		return false, err
	}
	if int(size)+slotHeaderOverhead > common.PageSize {
		return false, fmt.Errorf("heap: insert: %w", common.ErrTupleTooLarge)
	}
	data := make([]byte, size)
	if _, err := row.SerializeTo(data, h.schema); err != nil {
		return false, err
	}

	curID := h.FirstPageID
	for {
		f, err := h.pool.FetchPage(curID)
		if err != nil {
			return false, err
		}
		tp := newTablePage(f.Data[:])

		if slot, ok := tp.insertTuple(data); ok {
			row.RowID = common.RowID{PageID: curID, Slot: slot}
			h.pool.UnpinPage(curID, true)
			if h.log != nil {
				if err := h.log.AppendInsert(0, row.RowID, data); err != nil {
					return false, err
				}
			}
			return true, nil
		}

		nextID := tp.nextPageID()
		if nextID != common.InvalidPageID {
			h.pool.UnpinPage(curID, false)
			curID = nextID
			continue
		}

		newF, newID, err := h.pool.NewPage()
		if err != nil {
			h.pool.UnpinPage(curID, false)
			return false, err
		}
		newTablePage(newF.Data[:]).init(newID)
		tp.setNextPageID(newID)
		h.pool.UnpinPage(curID, true)
		h.pool.UnpinPage(newID, true)
		curID = newID
	}
}

// MarkDelete tombstones rid's slot; reversible via RollbackDelete.
func (h *Heap) MarkDelete(rid common.RowID) (bool, error) {
	f, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return false, err
	}
	tp := newTablePage(f.Data[:])
	if !tp.isLive(rid.Slot) {
		h.pool.UnpinPage(rid.PageID, false)
		return false, nil
	}
	tp.markDelete(rid.Slot)
	h.pool.UnpinPage(rid.PageID, true)
	if h.log != nil {
		if err := h.log.AppendDelete(0, rid); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RollbackDelete undoes a prior MarkDelete.
func (h *Heap) RollbackDelete(rid common.RowID) error {
	f, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	newTablePage(f.Data[:]).rollbackDelete(rid.Slot)
	h.pool.UnpinPage(rid.PageID, true)
	return nil
}

// ApplyDelete physically removes rid's slot, whether or not it was
// previously tombstoned.
func (h *Heap) ApplyDelete(rid common.RowID) error {
	f, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	newTablePage(f.Data[:]).applyDelete(rid.Slot)
	h.pool.UnpinPage(rid.PageID, true)
	return nil
}

// UpdateTuple overwrites rid in place when the new row is the same
// serialized size; otherwise it apply-deletes the old slot and inserts
// the new row, which may assign it a different RowId.
func (h *Heap) UpdateTuple(row *record.Row, rid common.RowID) (bool, error) {
	size, err := row.SerializedSize(h.schema)
	if err != nil {
		return false, err
	}
	data := make([]byte, size)
	if _, err := row.SerializeTo(data, h.schema); err != nil {
		return false, err
	}

	f, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return false, err
	}
	tp := newTablePage(f.Data[:])
	if !tp.isLive(rid.Slot) {
		h.pool.UnpinPage(rid.PageID, false)
		return false, nil
	}

	if tp.updateInPlace(rid.Slot, data) {
		row.RowID = rid
		h.pool.UnpinPage(rid.PageID, true)
		if h.log != nil {
			if err := h.log.AppendUpdate(0, rid, data); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	tp.applyDelete(rid.Slot)
	h.pool.UnpinPage(rid.PageID, true)
	return h.InsertTuple(row)
}

// GetTuple populates row from the slot named by row.RowID.
func (h *Heap) GetTuple(row *record.Row) (bool, error) {
	f, err := h.pool.FetchPage(row.RowID.PageID)
	if err != nil {
		return false, err
	}
	tp := newTablePage(f.Data[:])
	if !tp.isLive(row.RowID.Slot) {
		h.pool.UnpinPage(row.RowID.PageID, false)
		return false, nil
	}
	got, _, err := record.DeserializeRow(tp.tupleBytes(row.RowID.Slot), h.schema)
	h.pool.UnpinPage(row.RowID.PageID, false)
	if err != nil {
		return false, err
	}
	got.RowID = row.RowID
	*row = *got
	return true, nil
}
