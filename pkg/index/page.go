// Package index implements the B+ tree index (C5): a disk-resident
// ordered map from serialized key to RowId.
package index

import (
	"encoding/binary"

	"github.com/nainya/storagecore/pkg/common"
)

// pageKind distinguishes a leaf page from an internal page.
type pageKind uint32

const (
	leafKind     pageKind = 1
	internalKind pageKind = 2
)

// treeHeaderSize covers kind, key_size, size, max_size, parent_page_id and
// next_page_id (the last field is unused on internal pages, kept so both
// page kinds share one header shape).
const treeHeaderSize = 24

// rowIDSize is the on-disk width of a leaf value: page_id (4) + slot (4).
const rowIDSize = 8

// treeHeader is the byte-accessor view shared by leaf and internal pages:
// accessor methods over a raw buffer, not aliased pointers.
type treeHeader struct {
	buf []byte
}

func (h treeHeader) kind() pageKind {
	return pageKind(binary.LittleEndian.Uint32(h.buf[0:]))
}

func (h treeHeader) setKind(k pageKind) {
	binary.LittleEndian.PutUint32(h.buf[0:], uint32(k))
}

func (h treeHeader) isLeaf() bool { return h.kind() == leafKind }

func (h treeHeader) keySize() uint32 {
	return binary.LittleEndian.Uint32(h.buf[4:])
}

func (h treeHeader) setKeySize(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[4:], v)
}

func (h treeHeader) size() int {
	return int(int32(binary.LittleEndian.Uint32(h.buf[8:])))
}

func (h treeHeader) setSize(v int) {
	binary.LittleEndian.PutUint32(h.buf[8:], uint32(int32(v)))
}

func (h treeHeader) maxSize() int {
	return int(int32(binary.LittleEndian.Uint32(h.buf[12:])))
}

func (h treeHeader) setMaxSize(v int) {
	binary.LittleEndian.PutUint32(h.buf[12:], uint32(int32(v)))
}

func (h treeHeader) parentPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(h.buf[16:])))
}

func (h treeHeader) setParentPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(h.buf[16:], uint32(int32(id)))
}

func (h treeHeader) nextPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(h.buf[20:])))
}

func (h treeHeader) setNextPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(h.buf[20:], uint32(int32(id)))
}

// minSize implements ceil(max_size/2), used by both node kinds.
func (h treeHeader) minSize() int {
	return (h.maxSize() + 1) / 2
}

// isRootByParent reports whether this node's size may legally fall below minSize
// (callers combine this with tree-level root tracking; the header alone
// can't know, so it's decided by the Tree via parentPageID == Invalid).
func (h treeHeader) isRootByParent() bool {
	return h.parentPageID() == common.InvalidPageID
}

// ---- leaf page ----

type leafPage struct {
	treeHeader
}

func newLeafPage(buf []byte) *leafPage {
	return &leafPage{treeHeader{buf}}
}

func (p *leafPage) init(parentID common.PageID, keySize uint32, maxSize int) {
	p.setKind(leafKind)
	p.setKeySize(keySize)
	p.setMaxSize(maxSize)
	p.setSize(0)
	p.setParentPageID(parentID)
	p.setNextPageID(common.InvalidPageID)
}

func (p *leafPage) pairSize() int {
	return int(p.keySize()) + rowIDSize
}

func (p *leafPage) entryOffset(i int) int {
	return treeHeaderSize + i*p.pairSize()
}

func (p *leafPage) keyAt(i int) []byte {
	off := p.entryOffset(i)
	return p.buf[off : off+int(p.keySize())]
}

func (p *leafPage) setKeyAt(i int, key []byte) {
	copy(p.keyAt(i), key)
}

func (p *leafPage) valueAt(i int) common.RowID {
	off := p.entryOffset(i) + int(p.keySize())
	return common.RowID{
		PageID: common.PageID(int32(binary.LittleEndian.Uint32(p.buf[off:]))),
		Slot:   binary.LittleEndian.Uint32(p.buf[off+4:]),
	}
}

func (p *leafPage) setValueAt(i int, v common.RowID) {
	off := p.entryOffset(i) + int(p.keySize())
	binary.LittleEndian.PutUint32(p.buf[off:], uint32(int32(v.PageID)))
	binary.LittleEndian.PutUint32(p.buf[off+4:], v.Slot)
}

// keyIndex returns the first index i with keyAt(i) >= key (binary search).
func (p *leafPage) keyIndex(key []byte, km KeyManager) int {
	i, j := 0, p.size()-1
	for i <= j {
		mid := (i + j) / 2
		cmp := km.Compare(p.keyAt(mid), key)
		if cmp > 0 {
			j = mid - 1
		} else if cmp < 0 {
			i = mid + 1
		} else {
			return mid
		}
	}
	return j + 1
}

func (p *leafPage) lookup(key []byte, km KeyManager) (common.RowID, bool) {
	idx := p.keyIndex(key, km)
	if idx < p.size() && km.Compare(p.keyAt(idx), key) == 0 {
		return p.valueAt(idx), true
	}
	return common.RowID{}, false
}

// insert places (key, value) in sorted order; returns false on a duplicate
// key (the tree is unique-key only).
func (p *leafPage) insert(key []byte, value common.RowID, km KeyManager) bool {
	idx := p.keyIndex(key, km)
	if idx < p.size() && km.Compare(p.keyAt(idx), key) == 0 {
		return false
	}
	for i := p.size(); i > idx; i-- {
		p.setKeyAt(i, p.keyAt(i-1))
		p.setValueAt(i, p.valueAt(i-1))
	}
	p.setKeyAt(idx, key)
	p.setValueAt(idx, value)
	p.setSize(p.size() + 1)
	return true
}

// removeAndDelete removes key if present; returns false if it wasn't found.
func (p *leafPage) removeAndDelete(key []byte, km KeyManager) bool {
	idx := p.keyIndex(key, km)
	if idx >= p.size() || km.Compare(p.keyAt(idx), key) != 0 {
		return false
	}
	for i := idx + 1; i < p.size(); i++ {
		p.setKeyAt(i-1, p.keyAt(i))
		p.setValueAt(i-1, p.valueAt(i))
	}
	p.setSize(p.size() - 1)
	return true
}

// moveHalfTo moves the upper half of entries into recipient, which becomes
// the new right sibling in the leaf chain.
func (p *leafPage) moveHalfTo(recipient *leafPage) {
	size := p.size()
	half := size / 2
	start := size - half
	for i := 0; i < half; i++ {
		recipient.setKeyAt(i, p.keyAt(start+i))
		recipient.setValueAt(i, p.valueAt(start+i))
	}
	recipient.setSize(half)
	p.setSize(start)
	recipient.setNextPageID(p.nextPageID())
}

// moveAllTo appends every entry of p onto the end of recipient and empties p.
func (p *leafPage) moveAllTo(recipient *leafPage) {
	start := recipient.size()
	for i := 0; i < p.size(); i++ {
		recipient.setKeyAt(start+i, p.keyAt(i))
		recipient.setValueAt(start+i, p.valueAt(i))
	}
	recipient.setSize(start + p.size())
	recipient.setNextPageID(p.nextPageID())
	p.setNextPageID(common.InvalidPageID)
	p.setSize(0)
}

// moveFirstToEndOf relocates p's first entry onto the end of recipient.
func (p *leafPage) moveFirstToEndOf(recipient *leafPage) {
	recipient.setKeyAt(recipient.size(), p.keyAt(0))
	recipient.setValueAt(recipient.size(), p.valueAt(0))
	recipient.setSize(recipient.size() + 1)
	for i := 1; i < p.size(); i++ {
		p.setKeyAt(i-1, p.keyAt(i))
		p.setValueAt(i-1, p.valueAt(i))
	}
	p.setSize(p.size() - 1)
}

// moveLastToFrontOf relocates p's last entry onto the front of recipient.
func (p *leafPage) moveLastToFrontOf(recipient *leafPage) {
	last := p.size() - 1
	key := append([]byte(nil), p.keyAt(last)...)
	val := p.valueAt(last)
	p.setSize(last)
	for i := recipient.size(); i >= 1; i-- {
		recipient.setKeyAt(i, recipient.keyAt(i-1))
		recipient.setValueAt(i, recipient.valueAt(i-1))
	}
	recipient.setKeyAt(0, key)
	recipient.setValueAt(0, val)
	recipient.setSize(recipient.size() + 1)
}

// ---- internal page ----

type internalPage struct {
	treeHeader
}

func newInternalPage(buf []byte) *internalPage {
	return &internalPage{treeHeader{buf}}
}

func (p *internalPage) init(parentID common.PageID, keySize uint32, maxSize int) {
	p.setKind(internalKind)
	p.setKeySize(keySize)
	p.setMaxSize(maxSize)
	p.setSize(0)
	p.setParentPageID(parentID)
}

func (p *internalPage) pairSize() int {
	return int(p.keySize()) + 4
}

func (p *internalPage) entryOffset(i int) int {
	return treeHeaderSize + i*p.pairSize()
}

// keyAt(0) is never meaningful (standard B+ tree convention: entry 0 has
// no separator key, only a child pointer).
func (p *internalPage) keyAt(i int) []byte {
	off := p.entryOffset(i)
	return p.buf[off : off+int(p.keySize())]
}

func (p *internalPage) setKeyAt(i int, key []byte) {
	copy(p.keyAt(i), key)
}

func (p *internalPage) valueAt(i int) common.PageID {
	off := p.entryOffset(i) + int(p.keySize())
	return common.PageID(int32(binary.LittleEndian.Uint32(p.buf[off:])))
}

func (p *internalPage) setValueAt(i int, v common.PageID) {
	off := p.entryOffset(i) + int(p.keySize())
	binary.LittleEndian.PutUint32(p.buf[off:], uint32(int32(v)))
}

// valueIndex returns the position of child pageID among this node's
// children, or -1 if absent.
func (p *internalPage) valueIndex(pageID common.PageID) int {
	for i := 0; i < p.size(); i++ {
		if p.valueAt(i) == pageID {
			return i
		}
	}
	return -1
}

// lookup descends to the child responsible for key: the last entry i with
// key[i] <= key (entry 0's key is -infinity).
func (p *internalPage) lookup(key []byte, km KeyManager) common.PageID {
	i := 1
	for i < p.size() && km.Compare(p.keyAt(i), key) <= 0 {
		i++
	}
	return p.valueAt(i - 1)
}

// populateNewRoot sets up a freshly allocated root with exactly two
// children: left under the ignored entry 0, right under key.
func (p *internalPage) populateNewRoot(left common.PageID, key []byte, right common.PageID) {
	p.setValueAt(0, left)
	p.setKeyAt(1, key)
	p.setValueAt(1, right)
	p.setSize(2)
}

// insertNodeAfter inserts (key, newChild) immediately after the entry
// pointing to oldChild; returns the new size.
func (p *internalPage) insertNodeAfter(oldChild common.PageID, key []byte, newChild common.PageID) int {
	idx := p.valueIndex(oldChild) + 1
	for i := p.size(); i > idx; i-- {
		p.setKeyAt(i, p.keyAt(i-1))
		p.setValueAt(i, p.valueAt(i-1))
	}
	p.setKeyAt(idx, key)
	p.setValueAt(idx, newChild)
	p.setSize(p.size() + 1)
	return p.size()
}

// remove deletes the entry at index.
func (p *internalPage) remove(index int) {
	for i := index + 1; i < p.size(); i++ {
		p.setKeyAt(i-1, p.keyAt(i))
		p.setValueAt(i-1, p.valueAt(i))
	}
	p.setSize(p.size() - 1)
}

// removeAndReturnOnlyChild is used by AdjustRoot when an internal root is
// reduced to a single child.
func (p *internalPage) removeAndReturnOnlyChild() common.PageID {
	child := p.valueAt(0)
	p.setSize(0)
	return child
}

// moveHalfTo moves the upper half of entries (including child pointers)
// into recipient. Caller is responsible for re-parenting the moved
// children (internalPage has no pool access).
func (p *internalPage) moveHalfTo(recipient *internalPage) {
	size := p.size()
	half := size / 2
	start := size - half
	for i := 0; i < half; i++ {
		recipient.setKeyAt(i, p.keyAt(start+i))
		recipient.setValueAt(i, p.valueAt(start+i))
	}
	recipient.setSize(half)
	p.setSize(start)
}

// moveAllTo appends every entry of p onto recipient, with middleKey
// filling the gap at the join point (the separator the parent held for
// this pair of siblings), and empties p.
func (p *internalPage) moveAllTo(recipient *internalPage, middleKey []byte) {
	start := recipient.size()
	recipient.setKeyAt(start, middleKey)
	recipient.setValueAt(start, p.valueAt(0))
	for i := 1; i < p.size(); i++ {
		recipient.setKeyAt(start+i, p.keyAt(i))
		recipient.setValueAt(start+i, p.valueAt(i))
	}
	recipient.setSize(start + p.size())
	p.setSize(0)
}

// moveFirstToEndOf relocates p's first entry onto the end of recipient.
// middleKey becomes the key for the relocated entry in recipient (the
// separator the parent previously used for p); p's new first key is left
// for the caller to fix via the parent update.
func (p *internalPage) moveFirstToEndOf(recipient *internalPage, middleKey []byte) {
	recipient.setKeyAt(recipient.size(), middleKey)
	recipient.setValueAt(recipient.size(), p.valueAt(0))
	recipient.setSize(recipient.size() + 1)
	for i := 1; i < p.size(); i++ {
		p.setKeyAt(i-1, p.keyAt(i))
		p.setValueAt(i-1, p.valueAt(i))
	}
	p.setSize(p.size() - 1)
}

// moveLastToFrontOf relocates p's last entry onto the front of recipient.
// middleKey is the separator that becomes recipient's new entry-1 key.
func (p *internalPage) moveLastToFrontOf(recipient *internalPage, middleKey []byte) {
	last := p.size() - 1
	lastChild := p.valueAt(last)
	p.setSize(last)
	for i := recipient.size(); i >= 1; i-- {
		recipient.setKeyAt(i, recipient.keyAt(i-1))
		recipient.setValueAt(i, recipient.valueAt(i-1))
	}
	recipient.setValueAt(0, lastChild)
	recipient.setKeyAt(1, middleKey)
	recipient.setSize(recipient.size() + 1)
}
