// ABOUTME: Versioning engine: checkout, checkin, discard, rollback and purge
// ABOUTME: Owns every mutation of asset metadata and version directories

package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/nainya/assetstore/internal/logger"
	"github.com/nainya/assetstore/pkg/layout"
	"github.com/nainya/assetstore/pkg/metadata"
)

// Engine runs versioning operations for one workspace
type Engine struct {
	cfg      Config
	fs       afero.Fs
	store    *metadata.Store
	resolver layout.Resolver
	log      *logger.Logger
	jlog     *logger.Logger
}

// NewEngine creates an engine
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.WorkspaceRoot == "" {
		return nil, errors.New("version: workspace root is required")
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Writer == nil {
		cfg.Writer = metadata.AtomicWriter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Engine{
		cfg:      cfg,
		fs:       cfg.Fs,
		store:    metadata.NewStore(cfg.Fs, metadata.WithWriter(cfg.Writer)),
		resolver: layout.NewResolver(cfg.WorkspaceRoot),
		log:      cfg.Logger.EngineLogger(),
		jlog:     cfg.Logger.JournalLogger(),
	}, nil
}

// Store returns the metadata store the engine writes through
func (e *Engine) Store() *metadata.Store {
	return e.store
}

// Resolver returns the engine's workspace resolver
func (e *Engine) Resolver() layout.Resolver {
	return e.resolver
}

// now returns the clock truncated to the precision metadata files keep
func (e *Engine) now() time.Time {
	return e.cfg.Now().Truncate(time.Second)
}

// run wraps one public operation: cancellation check, optional cross-process
// lock on the asset, logging and metrics
func (e *Engine) run(ctx context.Context, op, asset string, fn func(opID uuid.UUID) error) (err error) {
	opID := uuid.New()
	start := time.Now()

	defer func() {
		duration := time.Since(start)
		e.log.LogOperation(op, opID.String(), asset, duration, err)

		var locked *LockedError
		if errors.As(err, &locked) {
			e.log.LogLockConflict(op, asset, locked.Holder, locked.Since)
		}

		if m := e.cfg.Metrics; m != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			m.RecordOperation(op, status, duration)
			if locked != nil {
				m.RecordLockConflict(op)
			}
		}
	}()

	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}

	if e.cfg.Mutex != nil && asset != "" {
		if !e.store.HasNodeInfo(asset) {
			return &metadata.NotAssetError{Path: asset}
		}
		unlock, lerr := e.cfg.Mutex.Lock(ctx, asset)
		if lerr != nil {
			return lerr
		}
		defer func() {
			if uerr := unlock(); uerr != nil && err == nil {
				err = fmt.Errorf("release asset lock: %w", uerr)
			}
		}()
	}

	return fn(opID)
}

// journalRecord is the payload of a begin record
type journalRecord struct {
	Kind    string `json:"kind"`
	Version int    `json:"version"`
	Path    string `json:"path,omitempty"`
	Temp    string `json:"temp,omitempty"` // staging directory of a rollback
}

func (e *Engine) begin(opID uuid.UUID, asset string, rec journalRecord) error {
	if e.cfg.Journal == nil {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := e.cfg.Journal.Begin(opID, asset, payload); err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	return nil
}

// finish commits the journal record when err is nil and aborts it otherwise
func (e *Engine) finish(opID uuid.UUID, err error) error {
	if e.cfg.Journal == nil {
		return err
	}
	if err != nil {
		if aerr := e.cfg.Journal.Abort(opID); aerr != nil {
			e.log.Warn("journal abort failed").Err(aerr).Str("op_id", opID.String()).Send()
		}
		return err
	}
	if cerr := e.cfg.Journal.Commit(opID); cerr != nil {
		return fmt.Errorf("journal commit: %w", cerr)
	}
	return nil
}

// lockedError describes the current lock holder of an asset
func (e *Engine) lockedError(asset string, node *metadata.NodeInfo) *LockedError {
	le := &LockedError{Asset: asset, Holder: node.LastCheckoutUser, Since: node.LastCheckoutTime}
	if e.cfg.Directory != nil {
		if name, ok := e.cfg.Directory.RealName(node.LastCheckoutUser); ok {
			le.HolderName = name
		}
	}
	return le
}

// holdsLock reports whether a working copy made by user holds the asset lock
func holdsLock(node *metadata.NodeInfo, co *metadata.CheckoutInfo, user string) bool {
	return metadata.HoldsLock(node, co) && node.LastCheckoutUser == user
}

// EvaluateCheckin applies the checkin policy: the working copy holds the
// lock, or the asset is unlocked and nothing newer was checked in since the
// working copy was made.
func EvaluateCheckin(node *metadata.NodeInfo, co *metadata.CheckoutInfo, user string, workingCopy string) error {
	if holdsLock(node, co, user) {
		return nil
	}
	if node.Locked {
		return &CheckinRejectedError{
			WorkingCopy: workingCopy,
			Reason:      LockedByOther,
			Base:        co.Version,
			Latest:      node.LatestVersion,
			Holder:      node.LastCheckoutUser,
		}
	}
	if co.Version != node.LatestVersion {
		return &CheckinRejectedError{
			WorkingCopy: workingCopy,
			Reason:      StaleBase,
			Base:        co.Version,
			Latest:      node.LatestVersion,
		}
	}
	return nil
}
