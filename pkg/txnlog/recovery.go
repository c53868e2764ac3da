package txnlog

import (
	"fmt"
	"os"
)

// ReplayFunc is called for each mutation recovery decides to replay.
type ReplayFunc func(op OpType, key, value []byte) error

// Recovery replays committed log entries after a restart.
type Recovery struct {
	log *Manager
}

// NewRecovery builds a recovery pass over log.
func NewRecovery(log *Manager) *Recovery {
	return &Recovery{log: log}
}

// Transaction groups the log entries belonging to one transaction.
type Transaction struct {
	TxnID     uint64
	StartLSN  uint64
	Entries   []*Entry
	Committed bool
}

// RecoveryStats summarizes what a recovery pass found and replayed.
type RecoveryStats struct {
	TotalEntries       int
	CommittedTxns      int
	UncommittedTxns    int
	ReplayedOperations int
	LastCheckpointLSN  uint64
}

// Recover replays every mutation belonging to a committed transaction
// that started after the last checkpoint. Uncommitted transactions and
// anything before the checkpoint boundary are skipped.
func (r *Recovery) Recover(replay ReplayFunc) error {
	_, err := r.RecoverWithStats(replay)
	return err
}

// RecoverWithStats does the same work as Recover but also reports how
// many transactions and operations it saw and replayed.
func (r *Recovery) RecoverWithStats(replay ReplayFunc) (*RecoveryStats, error) {
	stats := &RecoveryStats{}

	files, err := r.log.findLogFiles()
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return nil, err
	}

	entries, err := ReadAll(files)
	if err != nil {
		return nil, fmt.Errorf("txnlog: recover: %w", err)
	}
	stats.TotalEntries = len(entries)

	txns := groupByTransaction(entries)
	checkpoint := lastCheckpoint(entries)
	if checkpoint != nil {
		stats.LastCheckpointLSN = checkpoint.LSN
	}

	for _, txn := range txns {
		if checkpoint != nil && txn.StartLSN < checkpoint.LSN {
			continue
		}
		if !txn.Committed {
			stats.UncommittedTxns++
			continue
		}
		stats.CommittedTxns++

		for _, entry := range txn.Entries {
			if !entry.OpType.mutates() {
				continue
			}
			if err := replay(entry.OpType, entry.Key, entry.Value); err != nil {
				return stats, fmt.Errorf("txnlog: replay lsn %d: %w", entry.LSN, err)
			}
			stats.ReplayedOperations++
		}
	}

	return stats, nil
}

// groupByTransaction buckets entries by TxnID, preserving the order
// transactions were first seen in and each transaction's entry order.
func groupByTransaction(entries []*Entry) []*Transaction {
	byID := make(map[uint64]*Transaction)
	var ordered []*Transaction

	for _, e := range entries {
		if e.OpType == OpCheckpoint {
			continue
		}
		txn, ok := byID[e.TxnID]
		if !ok {
			txn = &Transaction{TxnID: e.TxnID, StartLSN: e.LSN}
			byID[e.TxnID] = txn
			ordered = append(ordered, txn)
		}
		if e.OpType == OpCommit {
			txn.Committed = true
			continue
		}
		txn.Entries = append(txn.Entries, e)
	}

	return ordered
}

// lastCheckpoint returns the most recent checkpoint entry, or nil if none.
func lastCheckpoint(entries []*Entry) *Entry {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].OpType == OpCheckpoint {
			return entries[i]
		}
	}
	return nil
}
