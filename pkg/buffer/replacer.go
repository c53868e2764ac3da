// ABOUTME: LRU replacer (C3): tracks unpinned frames in recency order
// ABOUTME: Doubly-linked list plus a frame->node map gives O(1) victim/pin/unpin

package buffer

import (
	"container/list"

	"github.com/nainya/storagecore/pkg/common"
)

// lruReplacer holds the set of unpinned frames, ordered from most- to
// least-recently-unpinned. It does not evict eagerly on Unpin: pin
// accounting in the buffer pool already enforces the pool-size invariant,
// so the replacer itself never needs to evict.
type lruReplacer struct {
	entries map[common.FrameID]*list.Element
	order   *list.List // front = most recently unpinned, back = victim
}

func newLRUReplacer(poolSize int) *lruReplacer {
	return &lruReplacer{
		entries: make(map[common.FrameID]*list.Element, poolSize),
		order:   list.New(),
	}
}

// victim removes and returns the least-recently-unpinned frame.
func (r *lruReplacer) victim() (common.FrameID, bool) {
	back := r.order.Back()
	if back == nil {
		return 0, false
	}
	frame := back.Value.(common.FrameID)
	r.order.Remove(back)
	delete(r.entries, frame)
	return frame, true
}

// pin removes frame from the replacer; a no-op if it isn't present.
func (r *lruReplacer) pin(frame common.FrameID) {
	if elem, ok := r.entries[frame]; ok {
		r.order.Remove(elem)
		delete(r.entries, frame)
	}
}

// unpin inserts frame at the most-recently-used end; a no-op if it is
// already present.
func (r *lruReplacer) unpin(frame common.FrameID) {
	if _, ok := r.entries[frame]; ok {
		return
	}
	r.entries[frame] = r.order.PushFront(frame)
}

// size returns the count of unpinned frames.
func (r *lruReplacer) size() int {
	return r.order.Len()
}
