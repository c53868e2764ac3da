// Package catalog is the name registry a storage-core process consults
// to turn a table or index name into the page ids pkg/heap and pkg/index
// need to open it, persisted on common.CatalogMetaPageID.
package catalog

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/nainya/storagecore/pkg/buffer"
	"github.com/nainya/storagecore/pkg/common"
)

// pool is the slice of the buffer pool the catalog depends on.
type pool interface {
	FetchPage(id common.PageID) (*buffer.Frame, error)
	NewPage() (*buffer.Frame, common.PageID, error)
	UnpinPage(id common.PageID, isDirty bool) bool
}

// Manager tracks every table's first heap page and every index's
// IndexID, keyed by name, and keeps that directory flushed to
// common.CatalogMetaPageID. One Manager is shared across a process; all
// methods hold an internal lock.
type Manager struct {
	mu sync.Mutex
	p  pool

	tables      map[string]common.PageID
	indexes     map[string]indexEntry
	nextIndexID uint32
}

// Open loads the catalog from CatalogMetaPageID. Open must be called
// after disk.Manager.Open has bootstrapped the reserved pages.
func Open(p pool) (*Manager, error) {
	m := &Manager{p: p, tables: map[string]common.PageID{}, indexes: map[string]indexEntry{}}

	f, err := p.FetchPage(common.CatalogMetaPageID)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	mp := newMetaPage(f.Data[:])

	if binary.LittleEndian.Uint32(f.Data[:4]) != catalogMetaMagic {
		mp.init()
		p.UnpinPage(common.CatalogMetaPageID, true)
		return m, nil
	}

	tables, indexes, err := mp.decode()
	p.UnpinPage(common.CatalogMetaPageID, false)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	for _, t := range tables {
		m.tables[t.Name] = t.FirstPageID
	}
	for _, idx := range indexes {
		m.indexes[idx.Name] = idx
		if idx.IndexID >= m.nextIndexID {
			m.nextIndexID = idx.IndexID + 1
		}
	}
	return m, nil
}

// CreateTable registers name's heap root and persists the directory.
// Returns common.ErrDuplicateKey if name is already registered.
func (m *Manager) CreateTable(name string, firstPageID common.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[name]; ok {
		return fmt.Errorf("catalog: create table %q: %w", name, common.ErrDuplicateKey)
	}
	m.tables[name] = firstPageID
	return m.flush()
}

// GetTable looks up name's heap root.
func (m *Manager) GetTable(name string) (common.PageID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tables[name]
	return id, ok
}

// DropTable removes name from the directory and persists the change.
// The caller is responsible for reclaiming the heap's pages.
func (m *Manager) DropTable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[name]; !ok {
		return fmt.Errorf("catalog: drop table %q: %w", name, common.ErrNotFound)
	}
	delete(m.tables, name)
	for idxName, idx := range m.indexes {
		if idx.Table == name {
			delete(m.indexes, idxName)
		}
	}
	return m.flush()
}

// CreateIndex allocates the next IndexID for (table, name) and persists
// the directory. The caller opens the actual index.Tree with the
// returned IndexID.
func (m *Manager) CreateIndex(table, name string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		return 0, fmt.Errorf("catalog: create index %q on %q: %w", name, table, common.ErrNotFound)
	}
	if _, ok := m.indexes[name]; ok {
		return 0, fmt.Errorf("catalog: create index %q: %w", name, common.ErrDuplicateKey)
	}
	id := m.nextIndexID
	m.nextIndexID++
	m.indexes[name] = indexEntry{Name: name, Table: table, IndexID: id}
	if err := m.flush(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetIndex looks up name's IndexID and owning table.
func (m *Manager) GetIndex(name string) (table string, indexID uint32, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[name]
	if !ok {
		return "", 0, false
	}
	return idx.Table, idx.IndexID, true
}

// DropIndex removes name from the directory and persists the change.
func (m *Manager) DropIndex(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[name]; !ok {
		return fmt.Errorf("catalog: drop index %q: %w", name, common.ErrNotFound)
	}
	delete(m.indexes, name)
	return m.flush()
}

// TableNames returns every registered table name.
func (m *Manager) TableNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	return names
}

// flush re-serializes the full directory onto CatalogMetaPageID. Caller
// must hold m.mu.
func (m *Manager) flush() error {
	tables := make([]tableEntry, 0, len(m.tables))
	for name, id := range m.tables {
		tables = append(tables, tableEntry{Name: name, FirstPageID: id})
	}
	indexes := make([]indexEntry, 0, len(m.indexes))
	for _, idx := range m.indexes {
		indexes = append(indexes, idx)
	}

	f, err := m.p.FetchPage(common.CatalogMetaPageID)
	if err != nil {
		return fmt.Errorf("catalog: flush: %w", err)
	}
	err = newMetaPage(f.Data[:]).encode(tables, indexes)
	m.p.UnpinPage(common.CatalogMetaPageID, err == nil)
	if err != nil {
		return fmt.Errorf("catalog: flush: %w", err)
	}
	return nil
}
