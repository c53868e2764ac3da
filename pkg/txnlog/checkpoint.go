package txnlog

import (
	"fmt"
	"time"
)

// DefaultCheckpointInterval is how often a Checkpointer checkpoints on
// its own, absent a call to SetInterval.
const DefaultCheckpointInterval = 10 * time.Minute

// Checkpointer runs Checkpoint on a timer in the background until Stop
// is called.
type Checkpointer struct {
	log      *Manager
	interval time.Duration
	flushFn  func() error
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCheckpointer builds a checkpointer over log. flushFn is called first
// on every checkpoint, to give the caller a chance to push in-memory
// state (e.g. dirty buffer-pool frames) to disk before the marker is
// written.
func NewCheckpointer(log *Manager, flushFn func() error) *Checkpointer {
	return &Checkpointer{
		log:      log,
		interval: DefaultCheckpointInterval,
		flushFn:  flushFn,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs periodic checkpointing in the background.
func (c *Checkpointer) Start() {
	go c.run()
}

// Stop halts the background loop and waits for it to exit.
func (c *Checkpointer) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Checkpointer) run() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Checkpoint() // best-effort; a failed periodic checkpoint is retried next tick
		case <-c.stopCh:
			return
		}
	}
}

// Checkpoint flushes in-memory state, writes a checkpoint marker to the
// log, and prunes the segments the marker makes obsolete for recovery.
func (c *Checkpointer) Checkpoint() error {
	if err := c.flushFn(); err != nil {
		return fmt.Errorf("txnlog: checkpoint flush: %w", err)
	}

	entry := Entry{LSN: c.log.NextLSN(), OpType: OpCheckpoint, Timestamp: time.Now()}
	if err := c.log.Write(entry); err != nil {
		return fmt.Errorf("txnlog: checkpoint marker: %w", err)
	}
	if err := c.log.Fsync(); err != nil {
		return fmt.Errorf("txnlog: checkpoint fsync: %w", err)
	}

	c.log.mu.Lock()
	defer c.log.mu.Unlock()
	if err := c.log.pruneSegments(); err != nil {
		return fmt.Errorf("txnlog: checkpoint prune: %w", err)
	}
	return nil
}

// SetInterval changes how often Start's background loop checkpoints.
func (c *Checkpointer) SetInterval(interval time.Duration) {
	c.interval = interval
}
