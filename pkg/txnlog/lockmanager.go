package txnlog

import "github.com/nainya/storagecore/pkg/common"

// LockMode names the granularity of a row lock request.
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

// LockManager coordinates concurrent access to rows across transactions.
// No package in the storage core calls through this interface;
// NoopLockManager satisfies it for the single-writer case where the
// caller already serializes access itself.
type LockManager interface {
	LockRow(txnID uint64, rid common.RowID, mode LockMode) error
	UnlockRow(txnID uint64, rid common.RowID) error
}

// NoopLockManager grants every request immediately. It is the default
// LockManager until a real scheduler is wired in.
type NoopLockManager struct{}

func (NoopLockManager) LockRow(txnID uint64, rid common.RowID, mode LockMode) error { return nil }
func (NoopLockManager) UnlockRow(txnID uint64, rid common.RowID) error              { return nil }
