package txnlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nainya/storagecore/pkg/common"
)

const (
	// MaxLogFileSize is the size at which a segment is rotated (100MB).
	MaxLogFileSize = 100 << 20

	// MaxLogFiles is how many segments are kept once a checkpoint or
	// rotation has a chance to prune older ones.
	MaxLogFiles = 3
)

// logSegment names one on-disk chunk of a log: index is its position in
// the rotation order, path its file on disk.
type logSegment struct {
	index int
	path  string
}

// Manager is the write-ahead log the table heap appends to
// before a mutating page write is considered durable-ready. A log is a
// sequence of size-capped segment files sharing a path prefix; Manager
// only ever appends to the newest one.
type Manager struct {
	// Path names the database this log belongs to (e.g. "/data/db.db");
	// segment files are written alongside it as "<Path>.<NNN>".
	Path string

	mu           sync.Mutex
	fd           *os.File
	lsn          uint64
	fileSize     int64
	segmentIndex int
	closed       bool
}

// Open opens the newest segment for appending, creating the first one if
// the log has never been written, and primes NextLSN from whatever LSN
// was last recorded.
func (m *Manager) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	segs, err := m.segments()
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if len(segs) == 0 {
		return m.createFirstSegment()
	}
	return m.openNewestSegment(segs)
}

func (m *Manager) createFirstSegment() error {
	path := m.segmentPath(0)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	m.fd = fd
	m.fileSize = 0
	m.segmentIndex = 0
	atomic.StoreUint64(&m.lsn, 0)
	m.closed = false
	return nil
}

func (m *Manager) openNewestSegment(segs []logSegment) error {
	newest := segs[len(segs)-1]
	fd, err := os.OpenFile(newest.path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	stat, err := fd.Stat()
	if err != nil {
		fd.Close()
		return err
	}

	maxLSN, err := m.highestLSN(segs)
	if err != nil {
		fd.Close()
		return err
	}

	m.fd = fd
	m.fileSize = stat.Size()
	m.segmentIndex = newest.index
	atomic.StoreUint64(&m.lsn, maxLSN)
	m.closed = false
	return nil
}

// highestLSN replays every segment through a Reader and returns the
// greatest LSN seen, tolerating the same corruption a normal read would.
func (m *Manager) highestLSN(segs []logSegment) (uint64, error) {
	r := NewReader(segmentPaths(segs))
	if err := r.Open(); err != nil {
		return 0, err
	}
	defer r.Close()

	var max uint64
	for {
		entry, err := r.Next()
		if err == io.EOF {
			return max, nil
		}
		if err != nil {
			return 0, err
		}
		if entry.LSN > max {
			max = entry.LSN
		}
	}
}

// NextLSN returns the next Log Sequence Number.
func (m *Manager) NextLSN() uint64 {
	return atomic.AddUint64(&m.lsn, 1)
}

// Write appends entry to the current segment, rotating first if it
// would push the segment past MaxLogFileSize.
func (m *Manager) Write(entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrLogClosed
	}

	data := entry.Encode()
	if m.fileSize+int64(len(data)) > MaxLogFileSize {
		if err := m.rotate(); err != nil {
			return err
		}
	}

	n, err := m.fd.Write(data)
	if err != nil {
		return err
	}
	m.fileSize += int64(n)
	return nil
}

// Fsync flushes the current segment to stable storage.
func (m *Manager) Fsync() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrLogClosed
	}
	return m.fd.Sync()
}

// Close closes the current segment. Further Write/Fsync calls fail.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	err := m.fd.Close()
	m.closed = true
	return err
}

// rotate fsyncs and closes the current segment, opens the next one, and
// prunes whatever the retention policy now makes stale. Caller holds mu.
func (m *Manager) rotate() error {
	if err := m.fd.Sync(); err != nil {
		return err
	}
	if err := m.fd.Close(); err != nil {
		return err
	}

	m.segmentIndex++
	fd, err := os.OpenFile(m.segmentPath(m.segmentIndex), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	m.fd = fd
	m.fileSize = 0
	return m.pruneSegments()
}

// pruneSegments removes every segment older than the most recent
// MaxLogFiles. Caller holds mu.
func (m *Manager) pruneSegments() error {
	segs, err := m.segments()
	if err != nil {
		return err
	}
	if len(segs) <= MaxLogFiles {
		return nil
	}
	for _, s := range segs[:len(segs)-MaxLogFiles] {
		os.Remove(s.path) // best-effort; a stray old segment is harmless
	}
	return nil
}

// segmentPrefix is the filename prefix every segment of this log shares.
func (m *Manager) segmentPrefix() string {
	return filepath.Base(m.Path)
}

// segmentPath is the path of the segment at the given rotation index.
func (m *Manager) segmentPath(index int) string {
	name := fmt.Sprintf("%s.%03d", m.segmentPrefix(), index)
	return filepath.Join(filepath.Dir(m.Path), name)
}

// segments lists this log's segment files on disk, oldest to newest.
func (m *Manager) segments() ([]logSegment, error) {
	dir := filepath.Dir(m.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	prefix := m.segmentPrefix() + "."
	var segs []logSegment
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil {
			continue
		}
		segs = append(segs, logSegment{index: index, path: filepath.Join(dir, name)})
	}

	sort.Slice(segs, func(i, j int) bool { return segs[i].index < segs[j].index })
	return segs, nil
}

// findLogFiles returns every segment path for this log, oldest to newest.
func (m *Manager) findLogFiles() ([]string, error) {
	segs, err := m.segments()
	if err != nil {
		return nil, err
	}
	return segmentPaths(segs), nil
}

func segmentPaths(segs []logSegment) []string {
	paths := make([]string, len(segs))
	for i, s := range segs {
		paths[i] = s.path
	}
	return paths
}

// encodeRowID packs a RowId into the 8-byte key an entry carries.
func encodeRowID(rid common.RowID) []byte {
	buf := make([]byte, 8)
	buf[0] = byte(rid.PageID)
	buf[1] = byte(rid.PageID >> 8)
	buf[2] = byte(rid.PageID >> 16)
	buf[3] = byte(rid.PageID >> 24)
	buf[4] = byte(rid.Slot)
	buf[5] = byte(rid.Slot >> 8)
	buf[6] = byte(rid.Slot >> 16)
	buf[7] = byte(rid.Slot >> 24)
	return buf
}

// AppendInsert logs a tuple insertion at rid, keyed by txnID, before the
// heap page holding it is considered durable-ready.
func (m *Manager) AppendInsert(txnID uint64, rid common.RowID, tuple []byte) error {
	return m.Write(Entry{LSN: m.NextLSN(), TxnID: txnID, OpType: OpInsert, Key: encodeRowID(rid), Value: tuple})
}

// AppendDelete logs a tuple deletion at rid.
func (m *Manager) AppendDelete(txnID uint64, rid common.RowID) error {
	return m.Write(Entry{LSN: m.NextLSN(), TxnID: txnID, OpType: OpDelete, Key: encodeRowID(rid)})
}

// AppendUpdate logs a tuple update at rid, carrying the new tuple bytes
// so recovery can replay it without re-deriving it from the caller.
func (m *Manager) AppendUpdate(txnID uint64, rid common.RowID, tuple []byte) error {
	return m.Write(Entry{LSN: m.NextLSN(), TxnID: txnID, OpType: OpUpdate, Key: encodeRowID(rid), Value: tuple})
}

// AppendCommit logs a transaction commit marker.
func (m *Manager) AppendCommit(txnID uint64) error {
	return m.Write(Entry{LSN: m.NextLSN(), TxnID: txnID, OpType: OpCommit})
}
