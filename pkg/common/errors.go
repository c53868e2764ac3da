package common

import "errors"

// Error kinds surfaced by the storage core. Recoverable failures
// are reported as bool/nil plus one of these; Corruption is the only kind
// that aborts the calling operation outright.
var (
	// ErrPoolExhausted means every frame in the buffer pool is pinned.
	ErrPoolExhausted = errors.New("storagecore: buffer pool exhausted")

	// ErrOutOfPages means the disk manager cannot allocate another page.
	ErrOutOfPages = errors.New("storagecore: disk manager out of pages")

	// ErrTupleTooLarge means a tuple's serialized size exceeds what any
	// page can hold.
	ErrTupleTooLarge = errors.New("storagecore: tuple too large for a page")

	// ErrDuplicateKey means an insert into a unique index collided with
	// an existing key.
	ErrDuplicateKey = errors.New("storagecore: duplicate key")

	// ErrNotFound means a lookup found nothing.
	ErrNotFound = errors.New("storagecore: not found")

	// ErrCorruption means a magic-number mismatch was found while
	// deserializing a page or record. Fatal: the caller must abort.
	ErrCorruption = errors.New("storagecore: corruption detected")
)
