package catalog

import (
	"path/filepath"
	"testing"

	"github.com/nainya/storagecore/pkg/buffer"
	"github.com/nainya/storagecore/pkg/common"
	"github.com/nainya/storagecore/pkg/disk"
)

func newTestManager(t *testing.T) (*Manager, *buffer.Pool) {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "catalog.db"), nil)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	t.Cleanup(func() { dm.Close() })

	pool := buffer.NewPool(16, dm, nil)
	m, err := Open(pool)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return m, pool
}

func TestCreateAndGetTable(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.CreateTable("widgets", common.PageID(10)); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	id, ok := m.GetTable("widgets")
	if !ok || id != common.PageID(10) {
		t.Fatalf("GetTable: id=%v ok=%v", id, ok)
	}
	if err := m.CreateTable("widgets", common.PageID(20)); err == nil {
		t.Fatal("expected duplicate table error")
	}
}

func TestCreateIndexRequiresTable(t *testing.T) {
	m, _ := newTestManager(t)

	if _, err := m.CreateIndex("widgets", "by_sku"); err == nil {
		t.Fatal("expected error creating index on unknown table")
	}

	if err := m.CreateTable("widgets", common.PageID(10)); err != nil {
		t.Fatal(err)
	}
	id1, err := m.CreateIndex("widgets", "by_sku")
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	id2, err := m.CreateIndex("widgets", "by_name")
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected distinct index ids, got %d and %d", id1, id2)
	}

	table, indexID, ok := m.GetIndex("by_sku")
	if !ok || table != "widgets" || indexID != id1 {
		t.Fatalf("GetIndex: table=%q indexID=%d ok=%v", table, indexID, ok)
	}
}

func TestDropTableDropsItsIndexes(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.CreateTable("widgets", common.PageID(10)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateIndex("widgets", "by_sku"); err != nil {
		t.Fatal(err)
	}
	if err := m.DropTable("widgets"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if _, ok := m.GetTable("widgets"); ok {
		t.Fatal("table should be gone")
	}
	if _, _, ok := m.GetIndex("by_sku"); ok {
		t.Fatal("index should be gone along with its table")
	}
}

func TestCatalogSurvivesReopen(t *testing.T) {
	m, pool := newTestManager(t)
	if err := m.CreateTable("widgets", common.PageID(42)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateIndex("widgets", "by_sku"); err != nil {
		t.Fatal(err)
	}

	m2, err := Open(pool)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	id, ok := m2.GetTable("widgets")
	if !ok || id != common.PageID(42) {
		t.Fatalf("reopened GetTable: id=%v ok=%v", id, ok)
	}
	table, _, ok := m2.GetIndex("by_sku")
	if !ok || table != "widgets" {
		t.Fatalf("reopened GetIndex: table=%q ok=%v", table, ok)
	}
}
