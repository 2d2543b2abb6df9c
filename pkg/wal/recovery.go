package wal

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation is one engine operation reconstructed from the journal
type Operation struct {
	ID        uuid.UUID
	Asset     string
	Payload   []byte
	StartLSN  uint64
	Started   time.Time
	Committed bool
	Aborted   bool
}

// Pending reports whether the operation never reached commit or abort
func (o *Operation) Pending() bool {
	return !o.Committed && !o.Aborted
}

// UndoFunc cleans up after an operation that never finished. Returning
// ErrOperationActive skips the operation and leaves it pending.
type UndoFunc func(op *Operation) error

// RecoveryStats summarizes a recovery pass
type RecoveryStats struct {
	TotalEntries      int
	CommittedOps      int
	AbortedOps        int
	PendingOps        int
	RecoveredOps      int
	ActiveOps         int // pending but still owned by a running process
	LastCheckpointLSN uint64
}

// Recovery finds and cleans up operations interrupted by a crash
type Recovery struct {
	journal *Journal
}

// NewRecovery creates a recovery manager
func NewRecovery(journal *Journal) *Recovery {
	return &Recovery{journal: journal}
}

// Operations returns every operation begun after the last checkpoint, in start order
func (r *Recovery) Operations() ([]*Operation, *RecoveryStats, error) {
	entries, err := r.journal.Entries()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read journal entries: %w", err)
	}

	stats := &RecoveryStats{TotalEntries: len(entries)}
	if cp := findLastCheckpoint(entries); cp != nil {
		stats.LastCheckpointLSN = cp.LSN
	}

	ops := groupByOperation(entries, stats.LastCheckpointLSN)
	for _, op := range ops {
		switch {
		case op.Committed:
			stats.CommittedOps++
		case op.Aborted:
			stats.AbortedOps++
		default:
			stats.PendingOps++
		}
	}
	return ops, stats, nil
}

// Pending returns operations left unfinished by an earlier process
func (r *Recovery) Pending() ([]*Operation, error) {
	ops, _, err := r.Operations()
	if err != nil {
		return nil, err
	}

	r.journal.mu.Lock()
	defer r.journal.mu.Unlock()

	var pending []*Operation
	for _, op := range ops {
		if _, live := r.journal.open[op.ID]; live {
			continue
		}
		if op.Pending() {
			pending = append(pending, op)
		}
	}
	return pending, nil
}

// Recover calls undo for every unfinished operation, newest first, and
// records an abort for each one undone. Operations undo reports as active
// are skipped. Any other undo failure stops the pass and leaves that
// operation pending.
func (r *Recovery) Recover(undo UndoFunc) (*RecoveryStats, error) {
	_, stats, err := r.Operations()
	if err != nil {
		return nil, err
	}
	pending, err := r.Pending()
	if err != nil {
		return nil, err
	}

	for i := len(pending) - 1; i >= 0; i-- {
		op := pending[i]
		if err := undo(op); err != nil {
			if errors.Is(err, ErrOperationActive) {
				stats.ActiveOps++
				continue
			}
			return stats, fmt.Errorf("undo %s on %s: %w", op.ID, op.Asset, err)
		}
		if err := r.journal.abortRecovered(op.ID, op.Asset); err != nil {
			return stats, err
		}
		stats.RecoveredOps++
	}
	return stats, nil
}

// Finished reports whether an operation has a commit or abort record.
// Unknown ids count as finished.
func (r *Recovery) Finished(id uuid.UUID) (bool, error) {
	ops, _, err := r.Operations()
	if err != nil {
		return false, err
	}
	for _, op := range ops {
		if op.ID == id {
			return !op.Pending(), nil
		}
	}
	return true, nil
}

// groupByOperation folds records into operations, ignoring anything at or
// before the checkpoint LSN
func groupByOperation(entries []*Entry, checkpoint uint64) []*Operation {
	byID := make(map[uuid.UUID]*Operation)
	var ops []*Operation

	for _, entry := range entries {
		if entry.OpType == OpCheckpoint || entry.LSN <= checkpoint {
			continue
		}

		op, exists := byID[entry.OpID]
		if !exists {
			if entry.OpType != OpBegin {
				continue
			}
			op = &Operation{
				ID:       entry.OpID,
				Asset:    entry.Asset,
				Payload:  entry.Payload,
				StartLSN: entry.LSN,
				Started:  entry.Timestamp,
			}
			byID[entry.OpID] = op
			ops = append(ops, op)
			continue
		}

		switch entry.OpType {
		case OpCommit:
			op.Committed = true
		case OpAbort:
			op.Aborted = true
		}
	}

	return ops
}

func findLastCheckpoint(entries []*Entry) *Entry {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].OpType == OpCheckpoint {
			return entries[i]
		}
	}
	return nil
}
