package catalog

import (
	"encoding/binary"

	"github.com/nainya/storagecore/pkg/common"
)

// catalogMetaMagic tags a serialized catalog-meta page, matching the
// column/schema convention of a magic number as every record's first
// four bytes.
const catalogMetaMagic = 0x4341544d // "CATM"

// metaPage is the byte-accessor view of common.CatalogMetaPageID: two
// flat lists, tables then indexes, each a (name, ids...) record packed
// back to back. Entries are keyed by name rather than a numeric
// table/index id, since the core has no separate id namespace of its own.
type metaPage struct {
	buf []byte
}

func newMetaPage(buf []byte) *metaPage { return &metaPage{buf} }

func (p *metaPage) init() {
	binary.LittleEndian.PutUint32(p.buf[0:], catalogMetaMagic)
	binary.LittleEndian.PutUint32(p.buf[4:], 0) // table count
	binary.LittleEndian.PutUint32(p.buf[8:], 0) // index count
}

// tableEntry is one row of the table directory: its name and the first
// page id of its heap.
type tableEntry struct {
	Name        string
	FirstPageID common.PageID
}

// indexEntry is one row of the index directory: its name, the table it
// indexes, and its IndexID in the shared index-roots page.
type indexEntry struct {
	Name    string
	Table   string
	IndexID uint32
}

// encode serializes the full catalog onto the page. Returns
// common.ErrTupleTooLarge if the directory no longer fits one page.
func (p *metaPage) encode(tables []tableEntry, indexes []indexEntry) error {
	size := 12
	for _, e := range tables {
		size += 4 + len(e.Name) + 4
	}
	for _, e := range indexes {
		size += 4 + len(e.Name) + 4 + len(e.Table) + 4
	}
	if size > len(p.buf) {
		return common.ErrTupleTooLarge
	}
	off := 12
	off, err := putEntries(p.buf, off, tables, func(buf []byte, o int, e tableEntry) int {
		o = putString(buf, o, e.Name)
		binary.LittleEndian.PutUint32(buf[o:], uint32(int32(e.FirstPageID)))
		return o + 4
	})
	if err != nil {
		return err
	}
	off, err = putEntries(p.buf, off, indexes, func(buf []byte, o int, e indexEntry) int {
		o = putString(buf, o, e.Name)
		o = putString(buf, o, e.Table)
		binary.LittleEndian.PutUint32(buf[o:], e.IndexID)
		return o + 4
	})
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(p.buf[0:], catalogMetaMagic)
	binary.LittleEndian.PutUint32(p.buf[4:], uint32(len(tables)))
	binary.LittleEndian.PutUint32(p.buf[8:], uint32(len(indexes)))
	return nil
}

// decode reads the full catalog back from the page. Returns
// common.ErrCorruption on a magic-number mismatch.
func (p *metaPage) decode() (tables []tableEntry, indexes []indexEntry, err error) {
	if binary.LittleEndian.Uint32(p.buf[0:]) != catalogMetaMagic {
		return nil, nil, common.ErrCorruption
	}
	tableCount := int(binary.LittleEndian.Uint32(p.buf[4:]))
	indexCount := int(binary.LittleEndian.Uint32(p.buf[8:]))

	off := 12
	tables = make([]tableEntry, tableCount)
	for i := range tables {
		var name string
		name, off = getString(p.buf, off)
		firstPageID := common.PageID(int32(binary.LittleEndian.Uint32(p.buf[off:])))
		off += 4
		tables[i] = tableEntry{Name: name, FirstPageID: firstPageID}
	}
	indexes = make([]indexEntry, indexCount)
	for i := range indexes {
		var name, table string
		name, off = getString(p.buf, off)
		table, off = getString(p.buf, off)
		indexID := binary.LittleEndian.Uint32(p.buf[off:])
		off += 4
		indexes[i] = indexEntry{Name: name, Table: table, IndexID: indexID}
	}
	return tables, indexes, nil
}

func putString(buf []byte, off int, s string) int {
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s)))
	off += 4
	copy(buf[off:], s)
	return off + len(s)
}

func getString(buf []byte, off int) (string, int) {
	n := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	s := string(buf[off : off+n])
	return s, off + n
}

func putEntries[T any](buf []byte, off int, entries []T, write func([]byte, int, T) int) (int, error) {
	for _, e := range entries {
		if off >= len(buf) {
			return 0, common.ErrTupleTooLarge
		}
		off = write(buf, off, e)
	}
	if off > len(buf) {
		return 0, common.ErrTupleTooLarge
	}
	return off, nil
}
