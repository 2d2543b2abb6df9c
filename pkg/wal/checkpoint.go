package wal

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrPendingOperations is returned when a checkpoint would hide unfinished work
var ErrPendingOperations = errors.New("wal: operations still pending")

// Checkpointer compacts the journal once nothing is pending
type Checkpointer struct {
	journal *Journal
}

// NewCheckpointer creates a checkpointer
func NewCheckpointer(journal *Journal) *Checkpointer {
	return &Checkpointer{journal: journal}
}

// Checkpoint starts a fresh journal file holding a single checkpoint record
// and removes every older file. It refuses while any operation is pending,
// whichever process began it. The pending check and the compaction happen
// under one journal lock, so no other process can begin in between.
func (c *Checkpointer) Checkpoint() error {
	j := c.journal
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.fd == nil {
		return ErrLogClosed
	}

	unlock, err := j.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	if err := j.syncNoLock(); err != nil {
		return err
	}

	old, err := j.findLogFiles()
	if err != nil {
		return err
	}
	entries, err := ReadAll(j.Fs, old)
	if err != nil {
		return err
	}

	var checkpoint uint64
	if cp := findLastCheckpoint(entries); cp != nil {
		checkpoint = cp.LSN
	}
	pending := 0
	for _, op := range groupByOperation(entries, checkpoint) {
		if op.Pending() {
			pending++
		}
	}
	if pending > 0 {
		return fmt.Errorf("%w: %d", ErrPendingOperations, pending)
	}

	if err := j.rotateNoLock(); err != nil {
		return err
	}
	if err := j.writeEntry(Entry{OpID: uuid.Nil, OpType: OpCheckpoint}); err != nil {
		return fmt.Errorf("write checkpoint entry failed: %w", err)
	}

	current := j.logFilePath(j.fileIndex)
	for _, file := range old {
		if file == current {
			continue
		}
		if err := j.Fs.Remove(file); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}
	return nil
}
