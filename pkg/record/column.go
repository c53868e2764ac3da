// ABOUTME: Column and Schema: typed column metadata with magic-number-prefixed serialization
// ABOUTME: Each column descriptor and the owning schema are self-describing on disk

package record

import (
	"encoding/binary"
	"fmt"

	"github.com/nainya/storagecore/pkg/common"
)

// TypeID names a field's storage type: integer, float, or fixed-length
// character.
type TypeID uint32

const (
	TypeInt TypeID = iota + 1
	TypeFloat
	TypeChar
)

// Magic numbers distinguish serialized kinds on disk.
const (
	columnMagic uint32 = 0x434F4C31 // "COL1"
	schemaMagic uint32 = 0x5343484D // "SCHM"
	rowMagic    uint32 = 0x524F5731 // "ROW1"
)

// Column describes one field of a Schema.
type Column struct {
	Name       string
	Type       TypeID
	Len        uint32 // byte width: 4 for int/float, fixed length for char
	TableIndex uint32
	Nullable   bool
	Unique     bool
}

// NewIntColumn creates a fixed-width int32 column.
func NewIntColumn(name string, idx uint32, nullable, unique bool) *Column {
	return &Column{Name: name, Type: TypeInt, Len: 4, TableIndex: idx, Nullable: nullable, Unique: unique}
}

// NewFloatColumn creates a fixed-width float32 column.
func NewFloatColumn(name string, idx uint32, nullable, unique bool) *Column {
	return &Column{Name: name, Type: TypeFloat, Len: 4, TableIndex: idx, Nullable: nullable, Unique: unique}
}

// NewCharColumn creates a fixed-length character column of the given width.
func NewCharColumn(name string, length, idx uint32, nullable, unique bool) *Column {
	return &Column{Name: name, Type: TypeChar, Len: length, TableIndex: idx, Nullable: nullable, Unique: unique}
}

// SerializedSize returns the on-disk size of the column descriptor.
func (c *Column) SerializedSize() uint32 {
	// magic + name_len + name + type + len + table_ind + nullable + unique
	return 4 + 4 + uint32(len(c.Name)) + 4 + 4 + 4 + 1 + 1
}

// SerializeTo writes the column descriptor and returns the byte count
// consumed.
func (c *Column) SerializeTo(buf []byte) uint32 {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], columnMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(c.Name)))
	off += 4
	off += copy(buf[off:], c.Name)
	binary.LittleEndian.PutUint32(buf[off:], uint32(c.Type))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], c.Len)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], c.TableIndex)
	off += 4
	buf[off] = boolByte(c.Nullable)
	off++
	buf[off] = boolByte(c.Unique)
	off++
	return uint32(off)
}

// DeserializeColumn reads a column descriptor and returns it plus the byte
// count consumed. Returns common.ErrCorruption on a magic-number mismatch.
func DeserializeColumn(buf []byte) (*Column, uint32, error) {
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != columnMagic {
		return nil, 0, fmt.Errorf("record: column: %w", common.ErrCorruption)
	}
	nameLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	name := string(buf[off : off+int(nameLen)])
	off += int(nameLen)
	typeID := TypeID(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	length := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	tableIdx := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	nullable := buf[off] != 0
	off++
	unique := buf[off] != 0
	off++

	return &Column{
		Name:       name,
		Type:       typeID,
		Len:        length,
		TableIndex: tableIdx,
		Nullable:   nullable,
		Unique:     unique,
	}, uint32(off), nil
}

// Schema is an ordered list of columns.
type Schema struct {
	Columns  []*Column
	IsManage bool
}

// NewSchema builds a schema from columns.
func NewSchema(columns []*Column, isManage bool) *Schema {
	return &Schema{Columns: columns, IsManage: isManage}
}

// ColumnIndex returns the index of the named column.
func (s *Schema) ColumnIndex(name string) (uint32, bool) {
	for i, c := range s.Columns {
		if c.Name == name {
			return uint32(i), true
		}
	}
	return 0, false
}

// SerializedSize returns the on-disk size of the schema.
func (s *Schema) SerializedSize() uint32 {
	size := uint32(4 + 4 + 1)
	for _, c := range s.Columns {
		size += c.SerializedSize()
	}
	return size
}

// SerializeTo writes the schema and returns the byte count consumed.
func (s *Schema) SerializeTo(buf []byte) uint32 {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], schemaMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s.Columns)))
	off += 4
	for _, c := range s.Columns {
		off += int(c.SerializeTo(buf[off:]))
	}
	buf[off] = boolByte(s.IsManage)
	off++
	return uint32(off)
}

// DeserializeSchema reads a schema and returns it plus the byte count
// consumed.
func DeserializeSchema(buf []byte) (*Schema, uint32, error) {
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != schemaMagic {
		return nil, 0, fmt.Errorf("record: schema: %w", common.ErrCorruption)
	}
	colCount := binary.LittleEndian.Uint32(buf[off:])
	off += 4

	columns := make([]*Column, colCount)
	for i := range columns {
		col, n, err := DeserializeColumn(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		columns[i] = col
		off += int(n)
	}
	isManage := buf[off] != 0
	off++

	return &Schema{Columns: columns, IsManage: isManage}, uint32(off), nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
