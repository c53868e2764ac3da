package index

import (
	"fmt"

	"github.com/nainya/storagecore/pkg/buffer"
	"github.com/nainya/storagecore/pkg/common"
)

// pool is the slice of the buffer pool the tree depends on.
type pool interface {
	FetchPage(id common.PageID) (*buffer.Frame, error)
	NewPage() (*buffer.Frame, common.PageID, error)
	UnpinPage(id common.PageID, isDirty bool) bool
	DeletePage(id common.PageID) (bool, error)
}

// Tree is a disk-resident B+ tree index over RowId values, identified by
// IndexID and rooted via the shared index-roots page.
type Tree struct {
	pool            pool
	km              KeyManager
	indexID         uint32
	leafMaxSize     int
	internalMaxSize int
	rootPageID      common.PageID
}

// Open loads (or lazily creates) the tree identified by indexID, reading
// its current root from common.IndexRootsPageID.
func Open(p pool, km KeyManager, indexID uint32, leafMaxSize, internalMaxSize int) (*Tree, error) {
	f, err := p.FetchPage(common.IndexRootsPageID)
	if err != nil {
		return nil, err
	}
	root, ok := newIndexRootsPage(f.Data[:]).getRootID(indexID)
	p.UnpinPage(common.IndexRootsPageID, false)
	if !ok {
		root = common.InvalidPageID
	}
	return &Tree{
		pool:            p,
		km:              km,
		indexID:         indexID,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageID:      root,
	}, nil
}

// IsEmpty reports whether the tree currently has no root.
func (t *Tree) IsEmpty() bool { return t.rootPageID == common.InvalidPageID }

// RootPageID returns the current root, or common.InvalidPageID if empty.
func (t *Tree) RootPageID() common.PageID { return t.rootPageID }

// Destroy tears down every page of the tree, leaf-first, and clears the
// root.
func (t *Tree) Destroy() error {
	if t.IsEmpty() {
		return nil
	}
	if err := t.destroy(t.rootPageID); err != nil {
		return err
	}
	t.rootPageID = common.InvalidPageID
	return t.updateRootPageID(false)
}

func (t *Tree) destroy(pageID common.PageID) error {
	f, err := t.pool.FetchPage(pageID)
	if err != nil {
		return err
	}
	hdr := treeHeader{f.Data[:]}
	if hdr.isLeaf() {
		t.pool.UnpinPage(pageID, false)
		_, err := t.pool.DeletePage(pageID)
		return err
	}
	internal := newInternalPage(f.Data[:])
	children := make([]common.PageID, internal.size())
	for i := range children {
		children[i] = internal.valueAt(i)
	}
	t.pool.UnpinPage(pageID, false)
	for _, child := range children {
		if err := t.destroy(child); err != nil {
			return err
		}
	}
	_, err = t.pool.DeletePage(pageID)
	return err
}

// GetValue runs a point lookup, pinning one page at a time.
func (t *Tree) GetValue(key []byte) (common.RowID, bool, error) {
	if t.IsEmpty() {
		return common.RowID{}, false, nil
	}
	leafID, err := t.findLeafPage(key, false)
	if err != nil {
		return common.RowID{}, false, err
	}
	f, err := t.pool.FetchPage(leafID)
	if err != nil {
		return common.RowID{}, false, err
	}
	value, found := newLeafPage(f.Data[:]).lookup(key, t.km)
	t.pool.UnpinPage(leafID, false)
	return value, found, nil
}

// Insert adds (key, value); returns false with a nil error if key is
// already present, since the tree enforces unique keys.
func (t *Tree) Insert(key []byte, value common.RowID) (bool, error) {
	if t.IsEmpty() {
		return true, t.startNewTree(key, value)
	}
	return t.insertIntoLeaf(key, value)
}

func (t *Tree) startNewTree(key []byte, value common.RowID) error {
	f, id, err := t.pool.NewPage()
	if err != nil {
		return fmt.Errorf("index: start new tree: %w", err)
	}
	leaf := newLeafPage(f.Data[:])
	leaf.init(common.InvalidPageID, t.km.KeySize(), t.leafMaxSize)
	leaf.insert(key, value, t.km)
	t.rootPageID = id
	t.pool.UnpinPage(id, true)
	return t.updateRootPageID(true)
}

func (t *Tree) insertIntoLeaf(key []byte, value common.RowID) (bool, error) {
	leafID, err := t.findLeafPage(key, false)
	if err != nil {
		return false, err
	}
	f, err := t.pool.FetchPage(leafID)
	if err != nil {
		return false, err
	}
	leaf := newLeafPage(f.Data[:])
	if !leaf.insert(key, value, t.km) {
		t.pool.UnpinPage(leafID, false)
		return false, nil
	}

	if leaf.size() > t.leafMaxSize {
		siblingID, err := t.splitLeaf(leaf)
		if err != nil {
			t.pool.UnpinPage(leafID, true)
			return false, err
		}
		sf, err := t.pool.FetchPage(siblingID)
		if err != nil {
			t.pool.UnpinPage(leafID, true)
			return false, err
		}
		sibling := newLeafPage(sf.Data[:])
		separator := append([]byte(nil), sibling.keyAt(0)...)
		t.pool.UnpinPage(siblingID, true)

		if err := t.insertIntoParent(leafID, separator, siblingID); err != nil {
			t.pool.UnpinPage(leafID, true)
			return false, err
		}
	}
	t.pool.UnpinPage(leafID, true)
	return true, nil
}

// splitLeaf allocates a new right sibling for leaf and moves the upper
// half of its entries there, splicing it into the leaf chain.
func (t *Tree) splitLeaf(leaf *leafPage) (common.PageID, error) {
	f, id, err := t.pool.NewPage()
	if err != nil {
		return common.InvalidPageID, err
	}
	sibling := newLeafPage(f.Data[:])
	sibling.init(leaf.parentPageID(), t.km.KeySize(), t.leafMaxSize)
	leaf.moveHalfTo(sibling)
	sibling.setNextPageID(leaf.nextPageID())
	leaf.setNextPageID(id)
	t.pool.UnpinPage(id, true)
	return id, nil
}

// splitInternal allocates a new right sibling and moves the upper half of
// node's entries there, re-parenting the moved children.
func (t *Tree) splitInternal(node *internalPage) (common.PageID, error) {
	f, id, err := t.pool.NewPage()
	if err != nil {
		return common.InvalidPageID, err
	}
	sibling := newInternalPage(f.Data[:])
	sibling.init(node.parentPageID(), t.km.KeySize(), t.internalMaxSize)
	node.moveHalfTo(sibling)
	if err := t.reparentChildren(sibling, id); err != nil {
		t.pool.UnpinPage(id, true)
		return common.InvalidPageID, err
	}
	t.pool.UnpinPage(id, true)
	return id, nil
}

func (t *Tree) reparentChildren(node *internalPage, newParent common.PageID) error {
	for i := 0; i < node.size(); i++ {
		child := node.valueAt(i)
		f, err := t.pool.FetchPage(child)
		if err != nil {
			return err
		}
		treeHeader{f.Data[:]}.setParentPageID(newParent)
		t.pool.UnpinPage(child, true)
	}
	return nil
}

// insertIntoParent wires (separator, rightID) into leftID's parent,
// creating a new root if leftID had none, splitting the parent
// recursively if it overflows.
func (t *Tree) insertIntoParent(leftID common.PageID, separator []byte, rightID common.PageID) error {
	lf, err := t.pool.FetchPage(leftID)
	if err != nil {
		return err
	}
	parentID := treeHeader{lf.Data[:]}.parentPageID()
	t.pool.UnpinPage(leftID, false)

	if parentID == common.InvalidPageID {
		f, newRootID, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		root := newInternalPage(f.Data[:])
		root.init(common.InvalidPageID, t.km.KeySize(), t.internalMaxSize)
		root.populateNewRoot(leftID, separator, rightID)
		t.pool.UnpinPage(newRootID, true)

		if err := t.setParentPageID(leftID, newRootID); err != nil {
			return err
		}
		if err := t.setParentPageID(rightID, newRootID); err != nil {
			return err
		}
		t.rootPageID = newRootID
		return t.updateRootPageID(false)
	}

	pf, err := t.pool.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := newInternalPage(pf.Data[:])
	newSize := parent.insertNodeAfter(leftID, separator, rightID)

	if newSize >= t.internalMaxSize {
		siblingID, err := t.splitInternal(parent)
		if err != nil {
			t.pool.UnpinPage(parentID, true)
			return err
		}
		sf, err := t.pool.FetchPage(siblingID)
		if err != nil {
			t.pool.UnpinPage(parentID, true)
			return err
		}
		sibling := newInternalPage(sf.Data[:])
		nextSeparator := append([]byte(nil), sibling.keyAt(0)...)
		t.pool.UnpinPage(siblingID, true)
		t.pool.UnpinPage(parentID, true)
		return t.insertIntoParent(parentID, nextSeparator, siblingID)
	}
	t.pool.UnpinPage(parentID, true)
	return nil
}

func (t *Tree) setParentPageID(pageID, parentID common.PageID) error {
	f, err := t.pool.FetchPage(pageID)
	if err != nil {
		return err
	}
	treeHeader{f.Data[:]}.setParentPageID(parentID)
	t.pool.UnpinPage(pageID, true)
	return nil
}

// Remove deletes key if present, rebalancing the tree as needed.
func (t *Tree) Remove(key []byte) error {
	if t.IsEmpty() {
		return nil
	}
	leafID, err := t.findLeafPage(key, false)
	if err != nil {
		return err
	}
	f, err := t.pool.FetchPage(leafID)
	if err != nil {
		return err
	}
	leaf := newLeafPage(f.Data[:])
	if !leaf.removeAndDelete(key, t.km) {
		t.pool.UnpinPage(leafID, false)
		return nil
	}
	t.pool.UnpinPage(leafID, true)
	return t.coalesceOrRedistributeLeaf(leafID)
}

func (t *Tree) coalesceOrRedistributeLeaf(nodeID common.PageID) error {
	f, err := t.pool.FetchPage(nodeID)
	if err != nil {
		return err
	}
	node := newLeafPage(f.Data[:])

	if nodeID == t.rootPageID {
		t.pool.UnpinPage(nodeID, false)
		return t.adjustRootLeaf(nodeID)
	}
	if node.size() >= node.minSize() {
		t.pool.UnpinPage(nodeID, false)
		return nil
	}
	parentID := node.parentPageID()
	t.pool.UnpinPage(nodeID, false)

	pf, err := t.pool.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := newInternalPage(pf.Data[:])
	index := parent.valueIndex(nodeID)
	siblingIndex := 1
	if index != 0 {
		siblingIndex = index - 1
	}
	siblingID := parent.valueAt(siblingIndex)

	nf, err := t.pool.FetchPage(nodeID)
	if err != nil {
		t.pool.UnpinPage(parentID, false)
		return err
	}
	node = newLeafPage(nf.Data[:])
	sf, err := t.pool.FetchPage(siblingID)
	if err != nil {
		t.pool.UnpinPage(parentID, false)
		t.pool.UnpinPage(nodeID, false)
		return err
	}
	sibling := newLeafPage(sf.Data[:])

	if sibling.size()+node.size() >= node.maxSize() {
		t.redistributeLeaf(sibling, node, parent, index)
		t.pool.UnpinPage(parentID, true)
		t.pool.UnpinPage(siblingID, true)
		t.pool.UnpinPage(nodeID, true)
		return nil
	}

	deletedID := t.coalesceLeaf(sibling, siblingID, node, nodeID, parent, index)
	t.pool.UnpinPage(siblingID, true)
	t.pool.UnpinPage(parentID, true)
	t.pool.UnpinPage(nodeID, true)
	if _, err := t.pool.DeletePage(deletedID); err != nil {
		return err
	}
	return t.coalesceOrRedistributeInternal(parentID)
}

// redistributeLeaf borrows one entry from sibling into node (index==0:
// sibling is to node's right, so borrow its first entry; otherwise
// sibling is to node's left, borrow its last) and fixes the parent's
// separator key.
func (t *Tree) redistributeLeaf(sibling, node *leafPage, parent *internalPage, index int) {
	if index == 0 {
		sibling.moveFirstToEndOf(node)
		parent.setKeyAt(1, sibling.keyAt(0))
	} else {
		sibling.moveLastToFrontOf(node)
		parent.setKeyAt(index, node.keyAt(0))
	}
}

// coalesceLeaf merges sibling and node into whichever of the two is the
// left page in key order, so the survivor's key order and next_page_id
// chain stay correct, and removes the parent's entry for the discarded
// page. It returns the discarded page's id; the caller deletes it.
func (t *Tree) coalesceLeaf(sibling *leafPage, siblingID common.PageID, node *leafPage, nodeID common.PageID, parent *internalPage, index int) common.PageID {
	if index == 0 {
		// sibling sits at parent entry 1, to node's right: node is the
		// left page and survives; sibling's entries are appended to it.
		sibling.moveAllTo(node)
		parent.remove(1)
		return siblingID
	}
	// sibling sits to node's left: sibling survives, node's entries are
	// appended to it.
	node.moveAllTo(sibling)
	parent.remove(index)
	return nodeID
}

func (t *Tree) adjustRootLeaf(rootID common.PageID) error {
	f, err := t.pool.FetchPage(rootID)
	if err != nil {
		return err
	}
	root := newLeafPage(f.Data[:])
	if root.size() == 0 {
		t.rootPageID = common.InvalidPageID
		t.pool.UnpinPage(rootID, true)
		if err := t.updateRootPageID(false); err != nil {
			return err
		}
		_, err := t.pool.DeletePage(rootID)
		return err
	}
	t.pool.UnpinPage(rootID, false)
	return nil
}

func (t *Tree) coalesceOrRedistributeInternal(nodeID common.PageID) error {
	if nodeID == common.InvalidPageID {
		return nil
	}
	f, err := t.pool.FetchPage(nodeID)
	if err != nil {
		return err
	}
	node := newInternalPage(f.Data[:])

	if nodeID == t.rootPageID {
		t.pool.UnpinPage(nodeID, true)
		return t.adjustRootInternal(nodeID)
	}
	if node.size() >= node.minSize() {
		t.pool.UnpinPage(nodeID, true)
		return nil
	}
	parentID := node.parentPageID()
	t.pool.UnpinPage(nodeID, true)

	pf, err := t.pool.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := newInternalPage(pf.Data[:])
	index := parent.valueIndex(nodeID)
	siblingIndex := 1
	if index != 0 {
		siblingIndex = index - 1
	}
	siblingID := parent.valueAt(siblingIndex)

	nf, err := t.pool.FetchPage(nodeID)
	if err != nil {
		t.pool.UnpinPage(parentID, false)
		return err
	}
	node = newInternalPage(nf.Data[:])
	sf, err := t.pool.FetchPage(siblingID)
	if err != nil {
		t.pool.UnpinPage(parentID, false)
		t.pool.UnpinPage(nodeID, false)
		return err
	}
	sibling := newInternalPage(sf.Data[:])

	if sibling.size()+node.size() >= node.maxSize() {
		if err := t.redistributeInternal(sibling, node, parent, index, siblingID, nodeID); err != nil {
			t.pool.UnpinPage(parentID, true)
			t.pool.UnpinPage(siblingID, true)
			t.pool.UnpinPage(nodeID, true)
			return err
		}
		t.pool.UnpinPage(parentID, true)
		t.pool.UnpinPage(siblingID, true)
		t.pool.UnpinPage(nodeID, true)
		return nil
	}

	deletedID, err := t.coalesceInternal(sibling, siblingID, node, nodeID, parent, index)
	if err != nil {
		t.pool.UnpinPage(siblingID, true)
		t.pool.UnpinPage(parentID, true)
		t.pool.UnpinPage(nodeID, true)
		return err
	}
	t.pool.UnpinPage(siblingID, true)
	t.pool.UnpinPage(parentID, true)
	t.pool.UnpinPage(nodeID, true)
	if _, err := t.pool.DeletePage(deletedID); err != nil {
		return err
	}
	return t.coalesceOrRedistributeInternal(parentID)
}

func (t *Tree) redistributeInternal(sibling, node *internalPage, parent *internalPage, index int, siblingID, nodeID common.PageID) error {
	if index == 0 {
		middle := append([]byte(nil), parent.keyAt(1)...)
		sibling.moveFirstToEndOf(node, middle)
		if err := t.setParentPageID(node.valueAt(node.size()-1), nodeID); err != nil {
			return err
		}
		parent.setKeyAt(1, sibling.keyAt(0))
	} else {
		middle := append([]byte(nil), parent.keyAt(index)...)
		separator := append([]byte(nil), sibling.keyAt(sibling.size()-1)...)
		sibling.moveLastToFrontOf(node, middle)
		if err := t.setParentPageID(node.valueAt(0), nodeID); err != nil {
			return err
		}
		parent.setKeyAt(index, separator)
	}
	return nil
}

// coalesceInternal mirrors coalesceLeaf: whichever page is to the left in
// key order survives and absorbs the other's entries (plus the middle
// separator pulled down from parent), and its absorbed children are
// re-parented to the survivor. Returns the discarded page's id.
func (t *Tree) coalesceInternal(sibling *internalPage, siblingID common.PageID, node *internalPage, nodeID common.PageID, parent *internalPage, index int) (common.PageID, error) {
	if index == 0 {
		middle := append([]byte(nil), parent.keyAt(1)...)
		sibling.moveAllTo(node, middle)
		parent.remove(1)
		if err := t.reparentChildren(node, nodeID); err != nil {
			return common.InvalidPageID, err
		}
		return siblingID, nil
	}
	middle := append([]byte(nil), parent.keyAt(index)...)
	node.moveAllTo(sibling, middle)
	parent.remove(index)
	if err := t.reparentChildren(sibling, siblingID); err != nil {
		return common.InvalidPageID, err
	}
	return nodeID, nil
}

func (t *Tree) adjustRootInternal(rootID common.PageID) error {
	f, err := t.pool.FetchPage(rootID)
	if err != nil {
		return err
	}
	root := newInternalPage(f.Data[:])
	if root.size() != 1 {
		t.pool.UnpinPage(rootID, false)
		return nil
	}
	child := root.removeAndReturnOnlyChild()
	t.pool.UnpinPage(rootID, true)
	t.rootPageID = child
	if err := t.setParentPageID(child, common.InvalidPageID); err != nil {
		return err
	}
	if err := t.updateRootPageID(false); err != nil {
		return err
	}
	_, err = t.pool.DeletePage(rootID)
	return err
}

// findLeafPage descends from the root to the leaf that would contain
// key, or the leftmost leaf if leftMost is true. Exactly one page is
// pinned at a time.
func (t *Tree) findLeafPage(key []byte, leftMost bool) (common.PageID, error) {
	pageID := t.rootPageID
	for {
		f, err := t.pool.FetchPage(pageID)
		if err != nil {
			return common.InvalidPageID, err
		}
		hdr := treeHeader{f.Data[:]}
		if hdr.isLeaf() {
			t.pool.UnpinPage(pageID, false)
			return pageID, nil
		}
		internal := newInternalPage(f.Data[:])
		var next common.PageID
		if leftMost {
			next = internal.valueAt(0)
		} else {
			next = internal.lookup(key, t.km)
		}
		t.pool.UnpinPage(pageID, false)
		pageID = next
	}
}

// updateRootPageID persists rootPageID into the shared index-roots page.
// insertRecord selects Insert (first publication) vs Update (only called
// when the root itself actually changes, not on every leaf-level mutation).
func (t *Tree) updateRootPageID(insertRecord bool) error {
	f, err := t.pool.FetchPage(common.IndexRootsPageID)
	if err != nil {
		return err
	}
	roots := newIndexRootsPage(f.Data[:])
	if !insertRecord || !roots.insert(t.indexID, t.rootPageID) {
		roots.update(t.indexID, t.rootPageID)
	}
	t.pool.UnpinPage(common.IndexRootsPageID, true)
	return nil
}
