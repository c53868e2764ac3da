package txnlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"time"
)

// OpType names a table-heap mutation recorded in the log.
type OpType byte

const (
	// OpInsert records a tuple insertion: Key is the RowId, Value the tuple.
	OpInsert OpType = 1

	// OpDelete records a tuple deletion: Key is the RowId.
	OpDelete OpType = 2

	// OpCommit marks a transaction as committed.
	OpCommit OpType = 3

	// OpCheckpoint marks a checkpoint boundary.
	OpCheckpoint OpType = 4

	// OpUpdate records a tuple update: Key is the RowId, Value the new tuple.
	OpUpdate OpType = 5
)

// mutates reports whether op is a tuple mutation recovery should replay,
// as opposed to a transaction or checkpoint marker.
func (op OpType) mutates() bool {
	return op == OpInsert || op == OpDelete || op == OpUpdate
}

// EntryHeaderSize is the fixed size of an entry's header, laid out as
// LSN(8) TxnID(8) OpType(1) reserved(7) KeyLen(4) ValLen(4) Timestamp(8).
const EntryHeaderSize = 40

// Entry is a single log record: one table-heap mutation or transaction
// marker, checksummed on encode.
type Entry struct {
	LSN       uint64
	TxnID     uint64
	OpType    OpType
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Encode serializes the entry as [header][key][value][crc32], the
// checksum covering every byte that precedes it.
func (e *Entry) Encode() []byte {
	body := EntryHeaderSize + len(e.Key) + len(e.Value)
	buf := make([]byte, body+4)

	binary.LittleEndian.PutUint64(buf[0:8], e.LSN)
	binary.LittleEndian.PutUint64(buf[8:16], e.TxnID)
	buf[16] = byte(e.OpType)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(e.Key)))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(len(e.Value)))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(e.Timestamp.Unix()))

	n := copy(buf[EntryHeaderSize:], e.Key)
	copy(buf[EntryHeaderSize+n:], e.Value)

	crc := crc32.ChecksumIEEE(buf[:body])
	binary.LittleEndian.PutUint32(buf[body:], crc)
	return buf
}

// DecodeEntry parses a framed entry previously produced by Encode,
// verifying its trailing checksum.
func DecodeEntry(data []byte) (*Entry, error) {
	if len(data) < EntryHeaderSize+4 {
		return nil, ErrTruncated
	}

	body := len(data) - 4
	if crc32.ChecksumIEEE(data[:body]) != binary.LittleEndian.Uint32(data[body:]) {
		return nil, ErrCorrupted
	}

	keyLen := binary.LittleEndian.Uint32(data[24:28])
	valLen := binary.LittleEndian.Uint32(data[28:32])
	if body != EntryHeaderSize+int(keyLen)+int(valLen) {
		return nil, ErrTruncated
	}

	e := &Entry{
		LSN:       binary.LittleEndian.Uint64(data[0:8]),
		TxnID:     binary.LittleEndian.Uint64(data[8:16]),
		OpType:    OpType(data[16]),
		Timestamp: time.Unix(int64(binary.LittleEndian.Uint64(data[32:40])), 0),
	}

	off := EntryHeaderSize
	if keyLen > 0 {
		e.Key = append([]byte(nil), data[off:off+int(keyLen)]...)
		off += int(keyLen)
	}
	if valLen > 0 {
		e.Value = append([]byte(nil), data[off:off+int(valLen)]...)
	}
	return e, nil
}

// Size returns the entry's encoded length.
func (e *Entry) Size() int {
	return EntryHeaderSize + len(e.Key) + len(e.Value) + 4
}

// String returns a human-readable summary of the entry.
func (e *Entry) String() string {
	op := "UNKNOWN"
	switch e.OpType {
	case OpInsert:
		op = "INSERT"
	case OpDelete:
		op = "DELETE"
	case OpCommit:
		op = "COMMIT"
	case OpCheckpoint:
		op = "CHECKPOINT"
	case OpUpdate:
		op = "UPDATE"
	}
	return fmt.Sprintf("entry[lsn=%d txn=%d op=%s keylen=%d vallen=%d]",
		e.LSN, e.TxnID, op, len(e.Key), len(e.Value))
}

// readSizedEntry reads one framed entry from r: a fixed header followed by
// a key/value payload whose length the header carries, plus a trailing
// checksum. Both the segment scan in Manager.Open and Reader.Next share
// this so the framing rule lives in exactly one place.
func readSizedEntry(r io.Reader) (*Entry, error) {
	header := make([]byte, EntryHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	keyLen := binary.LittleEndian.Uint32(header[24:28])
	valLen := binary.LittleEndian.Uint32(header[28:32])

	rest := make([]byte, int(keyLen)+int(valLen)+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}

	return DecodeEntry(append(header, rest...))
}
