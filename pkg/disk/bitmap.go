// ABOUTME: Bitmap page view used by the disk manager for free-page tracking
// ABOUTME: First 4 bytes hold the allocated count, the rest is an LSB-first bit array

package disk

import (
	"encoding/binary"

	"github.com/nainya/storagecore/pkg/common"
)

// bitmapHeaderSize is the width of the page_allocated counter at the front
// of every bitmap page.
const bitmapHeaderSize = 4

// BitmapSize is the number of logical pages one bitmap page can track.
const BitmapSize = (common.PageSize - bitmapHeaderSize) * 8

// bitmapPage is a PAGE_SIZE byte buffer reinterpreted as a bitmap.
type bitmapPage []byte

func newBitmapPage(buf []byte) bitmapPage {
	return bitmapPage(buf)
}

func (b bitmapPage) allocatedCount() uint32 {
	return binary.LittleEndian.Uint32(b[0:4])
}

func (b bitmapPage) setAllocatedCount(n uint32) {
	binary.LittleEndian.PutUint32(b[0:4], n)
}

func (b bitmapPage) isFree(offset uint32) bool {
	byteIdx := bitmapHeaderSize + offset/8
	bitIdx := offset % 8
	return (b[byteIdx]>>bitIdx)&1 == 0
}

// allocate sets the first free bit and returns its offset: a full scan
// for the lowest free bit (tie-break: lowest index first).
func (b bitmapPage) allocate() (uint32, bool) {
	for i := uint32(0); i < BitmapSize; i++ {
		if b.isFree(i) {
			byteIdx := bitmapHeaderSize + i/8
			bitIdx := i % 8
			b[byteIdx] |= 1 << bitIdx
			b.setAllocatedCount(b.allocatedCount() + 1)
			return i, true
		}
	}
	return 0, false
}

// deallocate clears the bit for offset. A no-op (returns false) if the bit
// was already clear, so deallocating twice never corrupts counters.
func (b bitmapPage) deallocate(offset uint32) bool {
	byteIdx := bitmapHeaderSize + offset/8
	bitIdx := offset % 8
	if (b[byteIdx]>>bitIdx)&1 == 0 {
		return false
	}
	b[byteIdx] &^= 1 << bitIdx
	b.setAllocatedCount(b.allocatedCount() - 1)
	return true
}
