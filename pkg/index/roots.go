package index

import (
	"encoding/binary"

	"github.com/nainya/storagecore/pkg/common"
)

// rootsEntrySize is index_id (4) + root_page_id (4).
const rootsEntrySize = 8

// rootsHeaderSize holds the entry count.
const rootsHeaderSize = 4

// indexRootsPage is the byte-accessor view of common.IndexRootsPageID: an
// array of (index_id, root_page_id) pairs.
type indexRootsPage struct {
	buf []byte
}

func newIndexRootsPage(buf []byte) *indexRootsPage {
	return &indexRootsPage{buf}
}

func (p *indexRootsPage) count() int {
	return int(binary.LittleEndian.Uint32(p.buf[0:]))
}

func (p *indexRootsPage) setCount(n int) {
	binary.LittleEndian.PutUint32(p.buf[0:], uint32(n))
}

func (p *indexRootsPage) entryAt(i int) (indexID uint32, rootID common.PageID) {
	off := rootsHeaderSize + i*rootsEntrySize
	indexID = binary.LittleEndian.Uint32(p.buf[off:])
	rootID = common.PageID(int32(binary.LittleEndian.Uint32(p.buf[off+4:])))
	return
}

func (p *indexRootsPage) setEntryAt(i int, indexID uint32, rootID common.PageID) {
	off := rootsHeaderSize + i*rootsEntrySize
	binary.LittleEndian.PutUint32(p.buf[off:], indexID)
	binary.LittleEndian.PutUint32(p.buf[off+4:], uint32(int32(rootID)))
}

// getRootID looks up indexID's current root page id.
func (p *indexRootsPage) getRootID(indexID uint32) (common.PageID, bool) {
	for i := 0; i < p.count(); i++ {
		id, root := p.entryAt(i)
		if id == indexID {
			return root, true
		}
	}
	return common.InvalidPageID, false
}

// insert adds a new (indexID, rootID) record; returns false if indexID is
// already present or the page is full.
func (p *indexRootsPage) insert(indexID uint32, rootID common.PageID) bool {
	if _, ok := p.getRootID(indexID); ok {
		return false
	}
	maxEntries := (common.PageSize - rootsHeaderSize) / rootsEntrySize
	if p.count() >= maxEntries {
		return false
	}
	p.setEntryAt(p.count(), indexID, rootID)
	p.setCount(p.count() + 1)
	return true
}

// update overwrites indexID's root id; returns false if indexID is absent.
func (p *indexRootsPage) update(indexID uint32, rootID common.PageID) bool {
	for i := 0; i < p.count(); i++ {
		id, _ := p.entryAt(i)
		if id == indexID {
			p.setEntryAt(i, indexID, rootID)
			return true
		}
	}
	return false
}
