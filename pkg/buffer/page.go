// ABOUTME: Page frame: a fixed-size byte buffer plus pin/dirty metadata and a latch
// ABOUTME: Exclusively owned by the buffer pool for its lifetime

package buffer

import (
	"sync"

	"github.com/nainya/storagecore/pkg/common"
)

// Frame is one slot of the buffer pool's in-memory page array. Latch is a
// per-frame reader/writer latch; the pool never takes it, and the heap and
// index packages do not acquire it around reads or in-place mutation of
// Data, so concurrent access to one page's contents is not serialized.
type Frame struct {
	Data     [common.PageSize]byte
	PageID   common.PageID
	PinCount int
	IsDirty  bool
	Latch    sync.RWMutex
}

func (f *Frame) reset() {
	f.Data = [common.PageSize]byte{}
	f.PageID = common.InvalidPageID
	f.PinCount = 0
	f.IsDirty = false
}
