// ABOUTME: File meta-page view (physical page 0): allocation counters and per-extent used counts
// ABOUTME: Layout: num_allocated_pages, num_extents, then one used-count per extent

package disk

import (
	"encoding/binary"

	"github.com/nainya/storagecore/pkg/common"
)

// metaHeaderSize is the width of the two leading u32 counters.
const metaHeaderSize = 8

// maxExtents is how many per-extent used-counts fit after the header.
const maxExtents = (common.PageSize / 4) - 2

// metaPage is a PAGE_SIZE byte buffer reinterpreted as the file meta page.
type metaPage []byte

func newMetaPage(buf []byte) metaPage {
	return metaPage(buf)
}

func (m metaPage) numAllocatedPages() uint32 {
	return binary.LittleEndian.Uint32(m[0:4])
}

func (m metaPage) setNumAllocatedPages(n uint32) {
	binary.LittleEndian.PutUint32(m[0:4], n)
}

func (m metaPage) numExtents() uint32 {
	return binary.LittleEndian.Uint32(m[4:8])
}

func (m metaPage) setNumExtents(n uint32) {
	binary.LittleEndian.PutUint32(m[4:8], n)
}

func (m metaPage) extentUsed(i uint32) uint32 {
	off := metaHeaderSize + i*4
	return binary.LittleEndian.Uint32(m[off : off+4])
}

func (m metaPage) setExtentUsed(i uint32, n uint32) {
	off := metaHeaderSize + i*4
	binary.LittleEndian.PutUint32(m[off:off+4], n)
}
