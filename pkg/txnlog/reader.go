package txnlog

import (
	"io"
	"os"
)

// Reader reads log entries across a sequence of segment files, oldest
// first, presenting them as one continuous stream.
type Reader struct {
	paths   []string
	current int
	fd      *os.File
}

// NewReader builds a reader over paths, which must already be ordered
// oldest to newest.
func NewReader(paths []string) *Reader {
	return &Reader{paths: paths}
}

// Open opens the first segment.
func (r *Reader) Open() error {
	if len(r.paths) == 0 {
		return ErrLogNotFound
	}
	fd, err := os.Open(r.paths[0])
	if err != nil {
		return err
	}
	r.fd = fd
	return nil
}

// Next returns the next entry in the stream. On a corrupted record it
// skips ahead and keeps reading rather than failing the whole scan; on
// reaching the end of the last segment it returns io.EOF.
func (r *Reader) Next() (*Entry, error) {
	for {
		if r.fd == nil {
			return nil, io.EOF
		}

		entry, err := readSizedEntry(r.fd)
		switch err {
		case nil:
			return entry, nil
		case io.EOF:
			if err := r.advanceSegment(); err != nil {
				return nil, err
			}
		case ErrCorrupted, ErrTruncated:
			if _, err := r.fd.Seek(1024, io.SeekCurrent); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
}

// advanceSegment closes the current segment and opens the next one in
// sequence, returning io.EOF once every segment has been consumed.
func (r *Reader) advanceSegment() error {
	r.fd.Close()
	r.fd = nil

	r.current++
	if r.current >= len(r.paths) {
		return io.EOF
	}

	fd, err := os.Open(r.paths[r.current])
	if err != nil {
		return err
	}
	r.fd = fd
	return nil
}

// Close releases the current segment's file handle, if any.
func (r *Reader) Close() error {
	if r.fd != nil {
		return r.fd.Close()
	}
	return nil
}

// ReadAll drains every entry across paths in order.
func ReadAll(paths []string) ([]*Entry, error) {
	r := NewReader(paths)
	if err := r.Open(); err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []*Entry
	for {
		entry, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
