package disk

import (
	"path/filepath"
	"testing"

	"github.com/nainya/storagecore/pkg/common"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	return dm
}

// Open reserves logical pages 0, 1, 2 up front (meta, index-roots,
// catalog-meta), so the first caller-visible allocation starts at 3.
func TestOpenReservesBootstrapPages(t *testing.T) {
	dm := openTestManager(t)

	for _, id := range []common.PageID{0, 1, 2} {
		free, err := dm.IsPageFree(id)
		if err != nil {
			t.Fatalf("IsPageFree(%d): %v", id, err)
		}
		if free {
			t.Errorf("page %d should be reserved, got free", id)
		}
	}

	free, err := dm.IsPageFree(3)
	if err != nil {
		t.Fatalf("IsPageFree(3): %v", err)
	}
	if !free {
		t.Errorf("page 3 should be free after bootstrap")
	}
}

// Scenario 1 from spec.md §8: allocate three pages, deallocate the middle
// one, then allocate once more and expect the lowest-free-bit to come back.
func TestAllocateLowestFreeBit(t *testing.T) {
	dm := openTestManager(t)

	var ids []common.PageID
	for i := 0; i < 3; i++ {
		id, err := dm.AllocatePage()
		if err != nil {
			t.Fatalf("AllocatePage: %v", err)
		}
		ids = append(ids, id)
	}
	// ids[0] < ids[1] < ids[2] and densely packed after the 3 reserved pages.
	for i := 1; i < len(ids); i++ {
		if ids[i] != ids[i-1]+1 {
			t.Fatalf("expected dense allocation, got %v", ids)
		}
	}

	if err := dm.DeallocatePage(ids[1]); err != nil {
		t.Fatalf("DeallocatePage: %v", err)
	}
	free, err := dm.IsPageFree(ids[1])
	if err != nil || !free {
		t.Fatalf("expected page %d free after deallocate, err=%v", ids[1], err)
	}

	reallocated, err := dm.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if reallocated != ids[1] {
		t.Fatalf("expected reallocated id %d (lowest free bit), got %d", ids[1], reallocated)
	}
}

func TestDeallocateIsIdempotent(t *testing.T) {
	dm := openTestManager(t)

	id, err := dm.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if err := dm.DeallocatePage(id); err != nil {
		t.Fatalf("first DeallocatePage: %v", err)
	}
	if err := dm.DeallocatePage(id); err != nil {
		t.Fatalf("second DeallocatePage (idempotent) should not error: %v", err)
	}
	free, err := dm.IsPageFree(id)
	if err != nil || !free {
		t.Fatalf("expected page still free, err=%v", err)
	}

	// Counters must not have been double-decremented: the next allocation
	// must still land on the freed id, not skip past it.
	next, err := dm.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if next != id {
		t.Fatalf("expected reallocation of %d, got %d", id, next)
	}
}

func TestReadWritePageRoundTrip(t *testing.T) {
	dm := openTestManager(t)

	id, err := dm.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}

	want := make([]byte, common.PageSize)
	for i := range want {
		want[i] = byte(i % 251)
	}
	if err := dm.WritePage(id, want); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got := make([]byte, common.PageSize)
	if err := dm.ReadPage(id, got); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d mismatch: want %d got %d", i, want[i], got[i])
		}
	}
}

func TestReadPastEOFIsZeroFilled(t *testing.T) {
	dm := openTestManager(t)

	// A freshly allocated page beyond what was ever written should read
	// back as all zero bytes rather than erroring.
	id, err := dm.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	buf := make([]byte, common.PageSize)
	// fill with non-zero so we can tell ReadPage actually overwrote it
	for i := range buf {
		buf[i] = 0xFF
	}
	if err := dm.ReadPage(id, buf); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("expected zero-filled byte at %d, got %d", i, b)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dm := openTestManager(t)
	if err := dm.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := dm.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
	if dm.IsOpen() {
		t.Fatalf("IsOpen should be false after Close")
	}
}
