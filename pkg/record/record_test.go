package record

import (
	"bytes"
	"testing"

	"github.com/nainya/storagecore/pkg/common"
)

func testSchema() *Schema {
	return NewSchema([]*Column{
		NewIntColumn("id", 0, false, true),
		NewCharColumn("name", 16, 1, true, false),
		NewFloatColumn("score", 2, true, false),
	}, false)
}

func TestColumnRoundTrip(t *testing.T) {
	col := NewCharColumn("email", 32, 3, true, true)
	buf := make([]byte, col.SerializedSize())
	n := col.SerializeTo(buf)
	if n != col.SerializedSize() {
		t.Fatalf("serialized %d bytes, want %d", n, col.SerializedSize())
	}

	got, consumed, err := DeserializeColumn(buf)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if consumed != n {
		t.Fatalf("consumed %d bytes, want %d", consumed, n)
	}
	if got.Name != col.Name || got.Type != col.Type || got.Len != col.Len ||
		got.TableIndex != col.TableIndex || got.Nullable != col.Nullable || got.Unique != col.Unique {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, col)
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	schema := testSchema()
	buf := make([]byte, schema.SerializedSize())
	n := schema.SerializeTo(buf)

	got, consumed, err := DeserializeSchema(buf)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if consumed != n {
		t.Fatalf("consumed %d, want %d", consumed, n)
	}
	if len(got.Columns) != len(schema.Columns) {
		t.Fatalf("got %d columns, want %d", len(got.Columns), len(schema.Columns))
	}
	for i, c := range got.Columns {
		if c.Name != schema.Columns[i].Name || c.Type != schema.Columns[i].Type {
			t.Fatalf("column %d mismatch: got %+v, want %+v", i, c, schema.Columns[i])
		}
	}
}

func TestSchemaColumnIndex(t *testing.T) {
	schema := testSchema()
	idx, ok := schema.ColumnIndex("name")
	if !ok || idx != 1 {
		t.Fatalf("ColumnIndex(name) = %d, %v; want 1, true", idx, ok)
	}
	if _, ok := schema.ColumnIndex("missing"); ok {
		t.Fatal("ColumnIndex(missing) should not be found")
	}
}

func TestRowRoundTrip(t *testing.T) {
	schema := testSchema()
	row := NewRow([]Field{
		NewIntField(42),
		NewCharField([]byte("alice")),
		NullField(),
	})
	row.RowID = common.RowID{PageID: 7, Slot: 3}

	size, err := row.SerializedSize(schema)
	if err != nil {
		t.Fatalf("SerializedSize: %v", err)
	}
	buf := make([]byte, size)
	n, err := row.SerializeTo(buf, schema)
	if err != nil {
		t.Fatalf("SerializeTo: %v", err)
	}
	if n != size {
		t.Fatalf("serialized %d bytes, want %d", n, size)
	}

	got, consumed, err := DeserializeRow(buf, schema)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if consumed != n {
		t.Fatalf("consumed %d, want %d", consumed, n)
	}
	if got.RowID != row.RowID {
		t.Fatalf("row id mismatch: got %+v, want %+v", got.RowID, row.RowID)
	}
	if got.Fields[0].Int32Val != 42 {
		t.Fatalf("field 0 = %d, want 42", got.Fields[0].Int32Val)
	}
	if !bytes.Equal(got.Fields[1].CharVal, []byte("alice")) {
		t.Fatalf("field 1 = %q, want alice", got.Fields[1].CharVal)
	}
	if !got.Fields[2].IsNull {
		t.Fatal("field 2 should be null")
	}
}

func TestRowFieldCountMismatch(t *testing.T) {
	schema := testSchema()
	row := NewRow([]Field{NewIntField(1)})
	if _, err := row.SerializedSize(schema); err == nil {
		t.Fatal("expected error for field/column count mismatch")
	}
}

func TestDeserializeColumnBadMagic(t *testing.T) {
	buf := make([]byte, 16)
	if _, _, err := DeserializeColumn(buf); err == nil {
		t.Fatal("expected corruption error on zeroed buffer")
	}
}
