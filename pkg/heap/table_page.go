// Package heap implements the table heap (C4): a singly-linked list of
// slotted pages storing variable-length tuples.
package heap

import (
	"encoding/binary"

	"github.com/nainya/storagecore/pkg/common"
)

// tablePageHeaderSize accounts for page_id, next_page_id, num_tuples and
// free_space_pointer, each a 4-byte field.
const tablePageHeaderSize = 16

// slotEntrySize is the size of one slot directory entry: a 4-byte tuple
// offset followed by a 4-byte signed size (negative marks a tombstone,
// zero marks a physically-removed slot).
const slotEntrySize = 4 + 4

// tablePage is a byte-accessor view over a raw page buffer. Tuple bytes
// grow downward from the end of the page; the slot directory grows
// upward from the header, mirroring the classic slotted-page layout.
type tablePage struct {
	buf []byte
}

func newTablePage(buf []byte) *tablePage {
	return &tablePage{buf: buf}
}

// init resets the page to empty under pageID with no next page (the caller
// is responsible for setting the previous page's next_page_id to this page).
func (p *tablePage) init(pageID common.PageID) {
	p.setPageID(pageID)
	p.setNextPageID(common.InvalidPageID)
	p.setNumTuples(0)
	p.setFreeSpacePointer(uint32(common.PageSize))
}

func (p *tablePage) pageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(p.buf[0:])))
}

func (p *tablePage) setPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(p.buf[0:], uint32(int32(id)))
}

func (p *tablePage) nextPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(p.buf[4:])))
}

func (p *tablePage) setNextPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(p.buf[4:], uint32(int32(id)))
}

func (p *tablePage) numTuples() uint32 {
	return binary.LittleEndian.Uint32(p.buf[8:])
}

func (p *tablePage) setNumTuples(n uint32) {
	binary.LittleEndian.PutUint32(p.buf[8:], n)
}

func (p *tablePage) freeSpacePointer() uint32 {
	return binary.LittleEndian.Uint32(p.buf[12:])
}

func (p *tablePage) setFreeSpacePointer(v uint32) {
	binary.LittleEndian.PutUint32(p.buf[12:], v)
}

func (p *tablePage) slotOffset(slot uint32) int {
	return tablePageHeaderSize + int(slot)*slotEntrySize
}

func (p *tablePage) rawOffset(slot uint32) uint32 {
	return binary.LittleEndian.Uint32(p.buf[p.slotOffset(slot):])
}

func (p *tablePage) rawSize(slot uint32) int32 {
	return int32(binary.LittleEndian.Uint32(p.buf[p.slotOffset(slot)+4:]))
}

func (p *tablePage) setSlot(slot uint32, offset uint32, size int32) {
	o := p.slotOffset(slot)
	binary.LittleEndian.PutUint32(p.buf[o:], offset)
	binary.LittleEndian.PutUint32(p.buf[o+4:], uint32(size))
}

// isLive reports whether slot holds an undeleted tuple.
func (p *tablePage) isLive(slot uint32) bool {
	return slot < p.numTuples() && p.rawSize(slot) > 0
}

// isTombstoned reports whether slot was mark-deleted but not yet applied.
func (p *tablePage) isTombstoned(slot uint32) bool {
	return slot < p.numTuples() && p.rawSize(slot) < 0
}

// freeBytes returns how much room remains for one more tuple plus its slot
// directory entry.
func (p *tablePage) freeBytes() int {
	dirEnd := tablePageHeaderSize + int(p.numTuples()+1)*slotEntrySize
	return int(p.freeSpacePointer()) - dirEnd
}

// insertTuple appends data as a new slot if there is room.
func (p *tablePage) insertTuple(data []byte) (uint32, bool) {
	if p.freeBytes() < len(data) {
		return 0, false
	}
	newFree := p.freeSpacePointer() - uint32(len(data))
	copy(p.buf[newFree:], data)
	slot := p.numTuples()
	p.setSlot(slot, newFree, int32(len(data)))
	p.setFreeSpacePointer(newFree)
	p.setNumTuples(slot + 1)
	return slot, true
}

// tupleBytes returns the raw bytes stored at slot. Caller must check
// isLive first.
func (p *tablePage) tupleBytes(slot uint32) []byte {
	size := p.rawSize(slot)
	if size < 0 {
		size = -size
	}
	off := p.rawOffset(slot)
	return p.buf[off : off+uint32(size)]
}

// markDelete tombstones a live slot.
func (p *tablePage) markDelete(slot uint32) {
	if !p.isLive(slot) {
		return
	}
	p.setSlot(slot, p.rawOffset(slot), -p.rawSize(slot))
}

// rollbackDelete reverts a tombstoned slot back to live.
func (p *tablePage) rollbackDelete(slot uint32) {
	if !p.isTombstoned(slot) {
		return
	}
	p.setSlot(slot, p.rawOffset(slot), -p.rawSize(slot))
}

// applyDelete physically removes a slot's tuple data; the slot index is
// retained (so later RowIds don't shift) but marked permanently empty.
func (p *tablePage) applyDelete(slot uint32) {
	if slot >= p.numTuples() {
		return
	}
	p.setSlot(slot, 0, 0)
}

// updateInPlace overwrites a live slot's bytes when the new tuple is the
// same size. Returns false if the slot is missing, tombstoned, or the
// size differs (caller must fall back to delete+insert).
func (p *tablePage) updateInPlace(slot uint32, data []byte) bool {
	if !p.isLive(slot) {
		return false
	}
	if int(p.rawSize(slot)) != len(data) {
		return false
	}
	copy(p.tupleBytes(slot), data)
	return true
}

// firstTupleSlot returns the first live slot, if any.
func (p *tablePage) firstTupleSlot() (uint32, bool) {
	for s := uint32(0); s < p.numTuples(); s++ {
		if p.isLive(s) {
			return s, true
		}
	}
	return 0, false
}

// nextTupleSlot returns the next live slot after slot, if any.
func (p *tablePage) nextTupleSlot(slot uint32) (uint32, bool) {
	for s := slot + 1; s < p.numTuples(); s++ {
		if p.isLive(s) {
			return s, true
		}
	}
	return 0, false
}
