package index

import (
	"path/filepath"
	"testing"

	"github.com/nainya/storagecore/pkg/buffer"
	"github.com/nainya/storagecore/pkg/common"
	"github.com/nainya/storagecore/pkg/disk"
)

func newTestTree(t *testing.T, leafMaxSize, internalMaxSize int) (*Tree, *buffer.Pool) {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "index.db"), nil)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	t.Cleanup(func() { dm.Close() })

	pool := buffer.NewPool(16, dm, nil)
	tree, err := Open(pool, Int32KeyManager{}, 1, leafMaxSize, internalMaxSize)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tree, pool
}

func rowFor(k int32) common.RowID {
	return common.RowID{PageID: common.PageID(k), Slot: uint32(k)}
}

// height walks down the leftmost child chain and counts levels (leaf = 1).
func height(t *testing.T, tree *Tree, pool *buffer.Pool) int {
	t.Helper()
	if tree.IsEmpty() {
		return 0
	}
	levels := 1
	pageID := tree.rootPageID
	for {
		f, err := pool.FetchPage(pageID)
		if err != nil {
			t.Fatal(err)
		}
		hdr := treeHeader{f.Data[:]}
		if hdr.isLeaf() {
			pool.UnpinPage(pageID, false)
			return levels
		}
		internal := newInternalPage(f.Data[:])
		next := internal.valueAt(0)
		pool.UnpinPage(pageID, false)
		pageID = next
		levels++
	}
}

func TestTreeBasicInsertAndIterate(t *testing.T) {
	tree, _ := newTestTree(t, 4, 4)

	for i := int32(1); i <= 20; i++ {
		ok, err := tree.Insert(EncodeInt32Key(i), rowFor(i))
		if err != nil || !ok {
			t.Fatalf("Insert(%d): ok=%v err=%v", i, ok, err)
		}
	}

	for i := int32(1); i <= 20; i++ {
		v, ok, err := tree.GetValue(EncodeInt32Key(i))
		if err != nil || !ok {
			t.Fatalf("GetValue(%d): ok=%v err=%v", i, ok, err)
		}
		if v != rowFor(i) {
			t.Fatalf("GetValue(%d) = %+v, want %+v", i, v, rowFor(i))
		}
	}

	it, err := tree.Begin()
	if err != nil {
		t.Fatal(err)
	}
	var got []int32
	for !it.Done() {
		k, err := it.Key()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, DecodeInt32Key(k))
		if err := it.Next(); err != nil {
			t.Fatal(err)
		}
	}
	if len(got) != 20 {
		t.Fatalf("iterated %d keys, want 20", len(got))
	}
	for i, k := range got {
		if k != int32(i+1) {
			t.Fatalf("position %d: got key %d, want %d", i, k, i+1)
		}
	}
}

func TestTreeSplitAndMergeKeepsInvariants(t *testing.T) {
	tree, pool := newTestTree(t, 4, 4)

	for i := int32(1); i <= 20; i++ {
		if _, err := tree.Insert(EncodeInt32Key(i), rowFor(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := int32(1); i <= 15; i++ {
		if err := tree.Remove(EncodeInt32Key(i)); err != nil {
			t.Fatalf("Remove(%d): %v", i, err)
		}
		if h := height(t, tree, pool); h > 3 {
			t.Fatalf("after deleting %d, height = %d, want <= 3", i, h)
		}
		if _, ok, err := tree.GetValue(EncodeInt32Key(i)); err != nil || ok {
			t.Fatalf("GetValue(%d) should be gone after removal: ok=%v err=%v", i, ok, err)
		}
	}

	for i := int32(16); i <= 20; i++ {
		v, ok, err := tree.GetValue(EncodeInt32Key(i))
		if err != nil || !ok {
			t.Fatalf("GetValue(%d) should survive: ok=%v err=%v", i, ok, err)
		}
		if v != rowFor(i) {
			t.Fatalf("GetValue(%d) = %+v, want %+v", i, v, rowFor(i))
		}
	}

	for i := int32(16); i <= 20; i++ {
		if err := tree.Remove(EncodeInt32Key(i)); err != nil {
			t.Fatalf("Remove(%d): %v", i, err)
		}
	}

	if !tree.IsEmpty() {
		t.Fatal("tree should be empty after deleting all keys")
	}
	if tree.RootPageID() != common.InvalidPageID {
		t.Fatalf("root_page_id = %v, want InvalidPageID", tree.RootPageID())
	}
}

func TestTreeScanKeyOperators(t *testing.T) {
	tree, _ := newTestTree(t, 4, 4)
	for i := int32(1); i <= 10; i++ {
		if _, err := tree.Insert(EncodeInt32Key(i), rowFor(i)); err != nil {
			t.Fatal(err)
		}
	}

	var results []common.RowID
	if err := tree.ScanKey(EncodeInt32Key(5), OpGreaterEqual, &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 6 {
		t.Fatalf(">= 5: got %d results, want 6", len(results))
	}

	results = nil
	if err := tree.ScanKey(EncodeInt32Key(5), OpLess, &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Fatalf("< 5: got %d results, want 4", len(results))
	}

	results = nil
	if err := tree.ScanKey(EncodeInt32Key(5), OpNotEqual, &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 9 {
		t.Fatalf("!= 5: got %d results, want 9", len(results))
	}
}

func TestTreeDuplicateInsertRejected(t *testing.T) {
	tree, _ := newTestTree(t, 4, 4)
	if ok, err := tree.Insert(EncodeInt32Key(1), rowFor(1)); err != nil || !ok {
		t.Fatalf("first insert: ok=%v err=%v", ok, err)
	}
	if ok, err := tree.Insert(EncodeInt32Key(1), rowFor(2)); err != nil || ok {
		t.Fatalf("duplicate insert should fail: ok=%v err=%v", ok, err)
	}
}
