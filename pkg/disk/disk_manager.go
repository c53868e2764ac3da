// ABOUTME: Disk manager (C1): maps the logical page space onto a physical file
// ABOUTME: Owns the file handle; tracks free pages with one bitmap page per extent

package disk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/nainya/storagecore/internal/logger"
	"github.com/nainya/storagecore/pkg/common"
)

// Manager owns a single database file and serves read_page/write_page/
// allocate_page/deallocate_page. A single mutex serializes file access;
// it only ever needs to be held by the public methods since they call
// into already-locked private helpers, never back into each other.
type Manager struct {
	mu     sync.Mutex
	path   string
	fd     *os.File
	closed bool
	log    *logger.Logger
}

// Open creates the database file if missing and primes it with a zeroed
// meta page, or opens it as-is if it already exists.
func Open(path string, log *logger.Logger) (*Manager, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("disk: create dir: %w", err)
		}
	}

	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}

	dm := &Manager{path: path, fd: fd, log: log}

	fi, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("disk: stat %s: %w", path, err)
	}
	if fi.Size() == 0 {
		buf := make([]byte, common.PageSize)
		if err := dm.writePhysical(0, buf); err != nil {
			fd.Close()
			return nil, err
		}
		// Reserve logical pages 0, 1 and 2 up front so
		// common.IndexRootsPageID and common.CatalogMetaPageID are always
		// valid addresses, never handed out by a later AllocatePage call.
		for i := 0; i < 3; i++ {
			if _, err := dm.AllocatePage(); err != nil {
				fd.Close()
				return nil, err
			}
		}
	}
	return dm, nil
}

// ReadPage copies PAGE_SIZE bytes from logical page id into out. Reads past
// EOF are zero-filled.
func (dm *Manager) ReadPage(id common.PageID, out []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.readPhysical(physicalOf(id), out)
}

// WritePage writes PAGE_SIZE bytes to logical page id and flushes.
func (dm *Manager) WritePage(id common.PageID, in []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.writePhysical(physicalOf(id), in)
}

// AllocatePage reserves a new logical page and flips its bitmap bit.
// Scans extents in order (first extent with a free slot wins), appending a
// new extent when none has room. Returns common.InvalidPageID when the
// meta page's extent array is full.
func (dm *Manager) AllocatePage() (common.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	metaBuf := make([]byte, common.PageSize)
	if err := dm.readPhysical(0, metaBuf); err != nil {
		return common.InvalidPageID, err
	}
	meta := newMetaPage(metaBuf)

	extent := meta.numExtents()
	for i := uint32(0); i < meta.numExtents(); i++ {
		if meta.extentUsed(i) < BitmapSize {
			extent = i
			break
		}
	}
	if extent == meta.numExtents() {
		if extent >= maxExtents {
			return common.InvalidPageID, common.ErrOutOfPages
		}
		meta.setNumExtents(extent + 1)
		meta.setExtentUsed(extent, 0)
	}

	bitmapPhys := bitmapPhysicalOf(extent)
	bitmapBuf := make([]byte, common.PageSize)
	if err := dm.readPhysical(bitmapPhys, bitmapBuf); err != nil {
		return common.InvalidPageID, err
	}
	bm := newBitmapPage(bitmapBuf)

	offset, ok := bm.allocate()
	if !ok {
		return common.InvalidPageID, common.ErrOutOfPages
	}
	meta.setExtentUsed(extent, meta.extentUsed(extent)+1)
	meta.setNumAllocatedPages(meta.numAllocatedPages() + 1)

	if err := dm.writePhysical(bitmapPhys, bitmapBuf); err != nil {
		return common.InvalidPageID, err
	}
	if err := dm.writePhysical(0, metaBuf); err != nil {
		return common.InvalidPageID, err
	}

	return common.PageID(extent*BitmapSize + offset), nil
}

// DeallocatePage clears the page's bitmap bit. Idempotent: deallocating an
// already-free page is a no-op.
func (dm *Manager) DeallocatePage(id common.PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	extent := uint32(id) / BitmapSize
	offset := uint32(id) % BitmapSize

	bitmapPhys := bitmapPhysicalOf(extent)
	bitmapBuf := make([]byte, common.PageSize)
	if err := dm.readPhysical(bitmapPhys, bitmapBuf); err != nil {
		return err
	}
	bm := newBitmapPage(bitmapBuf)
	if !bm.deallocate(offset) {
		return nil
	}
	if err := dm.writePhysical(bitmapPhys, bitmapBuf); err != nil {
		return err
	}

	metaBuf := make([]byte, common.PageSize)
	if err := dm.readPhysical(0, metaBuf); err != nil {
		return err
	}
	meta := newMetaPage(metaBuf)
	meta.setExtentUsed(extent, meta.extentUsed(extent)-1)
	meta.setNumAllocatedPages(meta.numAllocatedPages() - 1)
	return dm.writePhysical(0, metaBuf)
}

// IsPageFree reports whether the logical page's bitmap bit is clear.
func (dm *Manager) IsPageFree(id common.PageID) (bool, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	extent := uint32(id) / BitmapSize
	offset := uint32(id) % BitmapSize

	bitmapBuf := make([]byte, common.PageSize)
	if err := dm.readPhysical(bitmapPhysicalOf(extent), bitmapBuf); err != nil {
		return false, err
	}
	return newBitmapPage(bitmapBuf).isFree(offset), nil
}

// Close flushes and closes the file exactly once.
func (dm *Manager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return nil
	}
	dm.closed = true
	if err := dm.fd.Sync(); err != nil {
		return err
	}
	return dm.fd.Close()
}

// IsOpen reports whether the underlying file is still open, for use by
// health checks.
func (dm *Manager) IsOpen() bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return !dm.closed
}

// physicalOf maps a logical page id to its physical page number: the
// meta page plus one bitmap page per extent ahead of it.
func physicalOf(id common.PageID) int64 {
	return int64(id) + int64(id)/int64(BitmapSize) + 2
}

func bitmapPhysicalOf(extent uint32) int64 {
	return 1 + int64(extent)*(int64(BitmapSize)+1)
}

func (dm *Manager) readPhysical(physical int64, out []byte) error {
	offset := physical * common.PageSize
	n, err := dm.fd.ReadAt(out, offset)
	if err != nil && err != io.EOF {
		if dm.log != nil {
			dm.log.Error("disk read failed").Int64("physical_page", physical).Err(err).Send()
		}
		return fmt.Errorf("disk: read physical page %d: %w", physical, err)
	}
	// Read wholly or partly past EOF: zero-fill the missing bytes.
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return nil
}

func (dm *Manager) writePhysical(physical int64, in []byte) error {
	offset := physical * common.PageSize
	if _, err := dm.fd.WriteAt(in, offset); err != nil {
		if dm.log != nil {
			dm.log.Error("disk write failed").Int64("physical_page", physical).Err(err).Send()
		}
		return fmt.Errorf("disk: write physical page %d: %w", physical, err)
	}
	return dm.fd.Sync()
}
