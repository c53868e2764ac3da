// ABOUTME: Buffer pool manager (C2): fixed-size page cache with LRU eviction and write-back
// ABOUTME: Pin discipline is tightened on delete: a pinned page blocks the on-disk deallocation

package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/nainya/storagecore/internal/logger"
	"github.com/nainya/storagecore/pkg/common"
)

// diskIO is the slice of the disk manager the buffer pool depends on. A
// borrowed handle, not owned.
type diskIO interface {
	ReadPage(id common.PageID, out []byte) error
	WritePage(id common.PageID, in []byte) error
	AllocatePage() (common.PageID, error)
	DeallocatePage(id common.PageID) error
}

// Pool caches a bounded set of pages in RAM and serves fetch/new/delete/
// flush/unpin. Every public method is one critical section guarded by mu.
type Pool struct {
	mu        sync.Mutex
	frames    []*Frame
	pageTable map[common.PageID]common.FrameID
	freeList  []common.FrameID // FIFO: preferred over the replacer
	replacer  *lruReplacer
	disk      diskIO
	log       *logger.Logger

	hits   uint64
	misses uint64
}

// NewPool allocates poolSize frames backed by disk.
func NewPool(poolSize int, disk diskIO, log *logger.Logger) *Pool {
	p := &Pool{
		frames:    make([]*Frame, poolSize),
		pageTable: make(map[common.PageID]common.FrameID, poolSize),
		freeList:  make([]common.FrameID, poolSize),
		replacer:  newLRUReplacer(poolSize),
		disk:      disk,
		log:       log,
	}
	for i := 0; i < poolSize; i++ {
		p.frames[i] = &Frame{PageID: common.InvalidPageID}
		p.freeList[i] = common.FrameID(i)
	}
	return p
}

// Size returns the number of frames in the pool.
func (p *Pool) Size() int { return len(p.frames) }

// HitRate returns the fraction of FetchPage calls served without a disk
// read, for the admin metrics surface.
func (p *Pool) HitRate() float64 {
	h := atomic.LoadUint64(&p.hits)
	m := atomic.LoadUint64(&p.misses)
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}

// FetchPage pins and returns the frame holding id, reading it from disk on
// a cache miss. Returns common.ErrPoolExhausted if every frame is pinned.
func (p *Pool) FetchPage(id common.PageID) (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if frameID, ok := p.pageTable[id]; ok {
		f := p.frames[frameID]
		f.PinCount++
		p.replacer.pin(frameID)
		atomic.AddUint64(&p.hits, 1)
		return f, nil
	}
	atomic.AddUint64(&p.misses, 1)

	frameID, ok := p.victim()
	if !ok {
		return nil, common.ErrPoolExhausted
	}
	f := p.frames[frameID]

	if err := p.writeBackIfDirty(f); err != nil {
		// The frame was pulled out of the free list/replacer by victim();
		// give it back so it isn't stranded outside all bookkeeping.
		p.freeList = append(p.freeList, frameID)
		return nil, err
	}

	oldID := f.PageID
	if err := p.disk.ReadPage(id, f.Data[:]); err != nil {
		// Do not touch pageTable on this path: f.PageID/f.Data still
		// describe the evicted page, and the frame must not be left
		// claiming to hold id when the read never landed.
		p.freeList = append(p.freeList, frameID)
		return nil, err
	}
	delete(p.pageTable, oldID)
	p.pageTable[id] = frameID
	f.PageID = id
	f.PinCount = 1
	f.IsDirty = false
	p.replacer.pin(frameID)
	return f, nil
}

// NewPage allocates a fresh page on disk, pins its frame and returns it.
func (p *Pool) NewPage() (*Frame, common.PageID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.allPinned() {
		return nil, common.InvalidPageID, common.ErrPoolExhausted
	}

	frameID, ok := p.victim()
	if !ok {
		return nil, common.InvalidPageID, common.ErrPoolExhausted
	}
	f := p.frames[frameID]

	id, err := p.disk.AllocatePage()
	if err != nil {
		// Nothing was mutated yet: return the frame to the free list.
		p.freeList = append(p.freeList, frameID)
		return nil, common.InvalidPageID, err
	}

	if err := p.writeBackIfDirty(f); err != nil {
		// The page was already allocated on disk; undo that so it isn't
		// leaked, and give the frame back to the free list.
		if derr := p.disk.DeallocatePage(id); derr != nil && p.log != nil {
			p.log.Error("failed to roll back page allocation after write-back failure").
				Int32("page_id", int32(id)).Err(derr).Send()
		}
		p.freeList = append(p.freeList, frameID)
		return nil, common.InvalidPageID, err
	}

	oldID := f.PageID
	f.reset()
	delete(p.pageTable, oldID)
	p.pageTable[id] = frameID
	f.PageID = id
	f.PinCount = 1
	f.IsDirty = false
	p.replacer.pin(frameID)
	return f, id, nil
}

// DeletePage deallocates id on disk and frees its frame. A still-pinned
// cached page blocks the on-disk deallocation entirely, rather than
// deallocating underneath an active pin.
func (p *Pool) DeletePage(id common.PageID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, cached := p.pageTable[id]
	if cached && p.frames[frameID].PinCount > 0 {
		return false, nil
	}

	if err := p.disk.DeallocatePage(id); err != nil {
		return false, err
	}
	if !cached {
		return true, nil
	}

	f := p.frames[frameID]
	delete(p.pageTable, id)
	f.reset()
	p.freeList = append(p.freeList, frameID)
	return true, nil
}

// UnpinPage decrements id's pin count, ORing in isDirty. Returns false if
// the page was already unpinned (over-unpin).
func (p *Pool) UnpinPage(id common.PageID, isDirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable[id]
	if !ok {
		return true
	}
	f := p.frames[frameID]
	f.IsDirty = f.IsDirty || isDirty
	if f.PinCount == 0 {
		return false
	}
	f.PinCount--
	if f.PinCount == 0 {
		p.replacer.unpin(frameID)
	}
	return true
}

// FlushPage writes id to disk unconditionally and clears its dirty flag.
func (p *Pool) FlushPage(id common.PageID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable[id]
	if !ok {
		return false, nil
	}
	f := p.frames[frameID]
	f.IsDirty = false
	if err := p.disk.WritePage(id, f.Data[:]); err != nil {
		return false, err
	}
	return true, nil
}

// Close flushes every cached page. The disk manager itself is borrowed and
// is not closed here.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, frameID := range p.pageTable {
		f := p.frames[frameID]
		if err := p.disk.WritePage(id, f.Data[:]); err != nil {
			return err
		}
		f.IsDirty = false
	}
	return nil
}

// AllUnpinned reports whether every frame currently has a zero pin count;
// used by tests and the admin health check to assert no pin leaks.
func (p *Pool) AllUnpinned() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.frames {
		if f.PinCount != 0 {
			if p.log != nil {
				p.log.Error("page pin leak").Int32("page_id", int32(f.PageID)).Int("pin_count", f.PinCount).Send()
			}
			return false
		}
	}
	return true
}

// victim picks a frame to reuse: the free list first (FIFO), then the LRU
// replacer's least-recently-unpinned frame.
func (p *Pool) victim() (common.FrameID, bool) {
	if len(p.freeList) > 0 {
		frameID := p.freeList[0]
		p.freeList = p.freeList[1:]
		return frameID, true
	}
	return p.replacer.victim()
}

func (p *Pool) allPinned() bool {
	return len(p.freeList) == 0 && p.replacer.size() == 0
}

func (p *Pool) writeBackIfDirty(f *Frame) error {
	if !f.IsDirty {
		return nil
	}
	if err := p.disk.WritePage(f.PageID, f.Data[:]); err != nil {
		return err
	}
	f.IsDirty = false
	return nil
}
