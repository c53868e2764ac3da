package record

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nainya/storagecore/pkg/common"
)

// Field holds one tuple value. Exactly one of Int32Val/Float32Val/CharVal
// is meaningful, selected by the owning Column's Type, unless IsNull.
type Field struct {
	IsNull    bool
	Int32Val  int32
	Float32Val float32
	CharVal   []byte
}

// NewIntField builds a non-null integer field.
func NewIntField(v int32) Field { return Field{Int32Val: v} }

// NewFloatField builds a non-null float field.
func NewFloatField(v float32) Field { return Field{Float32Val: v} }

// NewCharField builds a non-null character field.
func NewCharField(v []byte) Field { return Field{CharVal: v} }

// NullField builds a null field.
func NullField() Field { return Field{IsNull: true} }

// Row is one tuple: a row id plus its fields, in schema column order.
type Row struct {
	RowID  common.RowID
	Fields []Field
}

// NewRow builds a row not yet assigned a RowID (common.InvalidRowID).
func NewRow(fields []Field) *Row {
	return &Row{RowID: common.InvalidRowID, Fields: fields}
}

// SerializedSize returns the on-disk size of the row under schema.
func (r *Row) SerializedSize(schema *Schema) (uint32, error) {
	if len(r.Fields) != len(schema.Columns) {
		return 0, fmt.Errorf("record: row has %d fields, schema has %d columns", len(r.Fields), len(schema.Columns))
	}
	size := uint32(4 + 4 + 4 + 4) // magic + page_id + slot + field_count
	for i, col := range schema.Columns {
		f := r.Fields[i]
		size += 1 // is_null
		if f.IsNull {
			continue
		}
		switch col.Type {
		case TypeInt, TypeFloat:
			size += 4
		case TypeChar:
			size += 4 + uint32(len(f.CharVal))
		}
	}
	return size, nil
}

// SerializeTo writes the row under schema and returns the byte count
// consumed.
func (r *Row) SerializeTo(buf []byte, schema *Schema) (uint32, error) {
	if len(r.Fields) != len(schema.Columns) {
		return 0, fmt.Errorf("record: row has %d fields, schema has %d columns", len(r.Fields), len(schema.Columns))
	}
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], rowMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(int32(r.RowID.PageID)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], r.RowID.Slot)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Fields)))
	off += 4

	for i, col := range schema.Columns {
		f := r.Fields[i]
		buf[off] = boolByte(f.IsNull)
		off++
		if f.IsNull {
			continue
		}
		switch col.Type {
		case TypeInt:
			binary.LittleEndian.PutUint32(buf[off:], uint32(f.Int32Val))
			off += 4
		case TypeFloat:
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f.Float32Val))
			off += 4
		case TypeChar:
			binary.LittleEndian.PutUint32(buf[off:], uint32(len(f.CharVal)))
			off += 4
			off += copy(buf[off:], f.CharVal)
		}
	}
	return uint32(off), nil
}

// DeserializeRow reads a row under schema and returns it plus the byte
// count consumed.
func DeserializeRow(buf []byte, schema *Schema) (*Row, uint32, error) {
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != rowMagic {
		return nil, 0, fmt.Errorf("record: row: %w", common.ErrCorruption)
	}
	pageID := common.PageID(int32(binary.LittleEndian.Uint32(buf[off:])))
	off += 4
	slot := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	fieldCount := binary.LittleEndian.Uint32(buf[off:])
	off += 4

	if int(fieldCount) != len(schema.Columns) {
		return nil, 0, fmt.Errorf("record: row field count %d does not match schema (%d): %w", fieldCount, len(schema.Columns), common.ErrCorruption)
	}

	fields := make([]Field, fieldCount)
	for i, col := range schema.Columns {
		isNull := buf[off] != 0
		off++
		if isNull {
			fields[i] = Field{IsNull: true}
			continue
		}
		switch col.Type {
		case TypeInt:
			fields[i] = Field{Int32Val: int32(binary.LittleEndian.Uint32(buf[off:]))}
			off += 4
		case TypeFloat:
			fields[i] = Field{Float32Val: math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))}
			off += 4
		case TypeChar:
			n := binary.LittleEndian.Uint32(buf[off:])
			off += 4
			v := make([]byte, n)
			copy(v, buf[off:off+int(n)])
			off += int(n)
			fields[i] = Field{CharVal: v}
		}
	}

	return &Row{
		RowID:  common.RowID{PageID: pageID, Slot: slot},
		Fields: fields,
	}, uint32(off), nil
}
