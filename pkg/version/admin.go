package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/nainya/assetstore/pkg/layout"
	"github.com/nainya/assetstore/pkg/metadata"
	"github.com/nainya/assetstore/pkg/wal"
)

// FormatComment renders a version comment as `login: timestamp: "text"`
func FormatComment(login string, at time.Time, text string) string {
	return fmt.Sprintf("%s: %s: \"%s\"", login, metadata.FormatTime(at), text)
}

// Unlock force-clears an asset's lock. The caller's outstanding working copy
// of the latest version, if any, is moved into the workspace quarantine area
// and its new location returned. Nothing is deleted.
func (e *Engine) Unlock(ctx context.Context, user Identity, assetPath string) (string, error) {
	var quarantined string
	err := e.run(ctx, "unlock", assetPath, func(uuid.UUID) error {
		node, err := e.store.Asset(assetPath)
		if err != nil {
			return err
		}

		wc := e.resolver.CheckoutDestination(assetPath, node.LatestVersion)
		if exists(e.fs, wc) {
			if err := e.fs.MkdirAll(e.resolver.QuarantineRoot(), 0755); err != nil {
				return fmt.Errorf("create quarantine: %w", err)
			}
			target := uniquePath(e.fs, e.resolver.QuarantinePath(wc), e.cfg.Now().Unix())
			if err := e.fs.Rename(wc, target); err != nil {
				return fmt.Errorf("quarantine %s: %w", wc, err)
			}
			quarantined = target
			if m := e.cfg.Metrics; m != nil {
				m.QuarantinedTotal.Inc()
			}
		}

		if !node.Locked {
			return nil
		}
		node.Locked = false
		if err := e.store.WriteNodeInfo(assetPath, node); err != nil {
			return err
		}
		e.log.Info("Lock cleared").
			Str("asset", assetPath).
			Str("holder", node.LastCheckoutUser).
			Str("by", user.Login).
			Send()
		return nil
	})
	return quarantined, err
}

// Rollback makes the content of targetVersion the base of the asset's next
// version. The caller's working copy of the latest version is replaced by an
// exclusive checkout holding the old content, so a later Checkin lands as
// latest+1 and no history is lost.
func (e *Engine) Rollback(ctx context.Context, user Identity, assetPath string, targetVersion int) (string, error) {
	var dest string
	err := e.run(ctx, "rollback", assetPath, func(opID uuid.UUID) error {
		var err error
		dest, err = e.rollback(opID, user, assetPath, targetVersion)
		return err
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

func (e *Engine) rollback(opID uuid.UUID, user Identity, assetPath string, target int) (string, error) {
	node, err := e.store.Asset(assetPath)
	if err != nil {
		return "", err
	}
	if target < 0 || target > node.LatestVersion {
		return "", fmt.Errorf("%w: v%03d outside v000..v%03d", ErrInvalidVersion, target, node.LatestVersion)
	}

	dest := e.resolver.CheckoutDestination(assetPath, node.LatestVersion)

	// the caller's own working copy may already hold the lock it is replacing
	var current *metadata.CheckoutInfo
	if exists(e.fs, dest) {
		current, err = e.store.WorkingCopy(dest)
		if errors.Is(err, metadata.ErrNotWorkingCopy) {
			return "", &AlreadyExistsError{Path: dest}
		}
		if err != nil {
			return "", err
		}
	}
	ownLock := current != nil && holdsLock(node, current, user.Login)
	if node.Locked && !ownLock {
		return "", e.lockedError(assetPath, node)
	}

	src := layout.VersionPath(assetPath, target)
	if !isDir(e.fs, src) {
		return "", &VersionMissingError{Asset: assetPath, Version: target}
	}

	// stage the old content next to dest so the current working copy
	// survives a failed copy
	if err := e.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	staging, err := afero.TempDir(e.fs, filepath.Dir(dest), "."+filepath.Base(dest)+".rollback-")
	if err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	rec := journalRecord{Kind: "rollback", Version: target, Path: dest, Temp: staging}
	if err := e.begin(opID, assetPath, rec); err != nil {
		removeTree(e.fs, staging)
		return "", err
	}

	copied, err := copyTree(e.fs, src, staging, func(rel string) bool { return rel == metadata.CheckoutInfoFile })
	if err != nil {
		removeTree(e.fs, staging)
		return "", e.finish(opID, err)
	}

	now := e.now()
	co := &metadata.CheckoutInfo{
		CheckedOutFrom: assetPath,
		CheckoutTime:   now,
		Version:        node.LatestVersion,
		LockedByMe:     true,
		CheckoutUser:   user.Login,
		RestoredFrom:   target,
	}
	if err := e.store.WriteCheckoutInfo(staging, co); err != nil {
		removeTree(e.fs, staging)
		return "", e.finish(opID, err)
	}

	if err := removeTree(e.fs, dest); err != nil {
		removeTree(e.fs, staging)
		return "", e.finish(opID, fmt.Errorf("discard working copy: %w", err))
	}
	if err := e.fs.Rename(staging, dest); err != nil {
		removeTree(e.fs, staging)
		return "", e.finish(opID, fmt.Errorf("move rollback into place: %w", err))
	}

	node.Locked = true
	node.LastCheckoutUser = user.Login
	node.LastCheckoutTime = now
	if err := e.store.WriteNodeInfo(assetPath, node); err != nil {
		removeTree(e.fs, dest)
		return "", e.finish(opID, err)
	}
	if err := e.finish(opID, nil); err != nil {
		return "", err
	}

	if m := e.cfg.Metrics; m != nil {
		m.RecordCopy("checkout", copied)
	}
	return dest, nil
}

// SetVersion resets an asset to version, permanently deleting every later
// version and the caller's working copy. The caller must hold the lock
// through its working copy of the latest version.
func (e *Engine) SetVersion(ctx context.Context, user Identity, assetPath string, version int) error {
	return e.run(ctx, "set_version", assetPath, func(opID uuid.UUID) error {
		node, err := e.store.Asset(assetPath)
		if err != nil {
			return err
		}

		wc := e.resolver.CheckoutDestination(assetPath, node.LatestVersion)
		co, err := e.store.ReadCheckoutInfo(wc)
		if err != nil && !errors.Is(err, metadata.ErrNotFound) {
			return err
		}
		if co == nil || !holdsLock(node, co, user.Login) {
			return &NotLockedError{Asset: assetPath, User: user.Login}
		}

		if version < 0 || version > node.LatestVersion {
			return fmt.Errorf("%w: v%03d outside v000..v%03d", ErrInvalidVersion, version, node.LatestVersion)
		}
		if !isDir(e.fs, layout.VersionPath(assetPath, version)) {
			return &VersionMissingError{Asset: assetPath, Version: version}
		}

		if err := e.begin(opID, assetPath, journalRecord{Kind: "set_version", Version: version, Path: wc}); err != nil {
			return err
		}

		updated := node.Clone()
		updated.LatestVersion = version
		updated.Locked = false
		updated.LastCheckinUser = user.Login
		updated.LastCheckinTime = e.now()
		purge, err := e.dropAbove(assetPath, updated, version)
		if err != nil {
			return e.finish(opID, err)
		}

		// metadata first: it must never point at a deleted directory
		if err := e.store.WriteNodeInfo(assetPath, updated); err != nil {
			return e.finish(opID, err)
		}
		if err := e.finish(opID, nil); err != nil {
			return err
		}

		e.removeVersions(assetPath, purge)
		return removeTree(e.fs, wc)
	})
}

// PurgeUpTo deletes every version below version along with its comment.
// version itself is kept. Returns the removed versions.
func (e *Engine) PurgeUpTo(ctx context.Context, assetPath string, version int) ([]int, error) {
	return e.purge(ctx, "purge_up_to", assetPath, func(node *metadata.NodeInfo) ([]int, error) {
		if version > node.LatestVersion {
			return nil, fmt.Errorf("%w: cannot purge the latest version v%03d", ErrInvalidVersion, node.LatestVersion)
		}
		return e.dropBelow(assetPath, node, version)
	})
}

// PurgeAfter deletes every version above version along with its comment and
// moves latestversion back to version. version itself is kept.
func (e *Engine) PurgeAfter(ctx context.Context, assetPath string, version int) ([]int, error) {
	return e.purge(ctx, "purge_after", assetPath, func(node *metadata.NodeInfo) ([]int, error) {
		if node.Locked {
			return nil, e.lockedError(assetPath, node)
		}
		if version < 0 {
			return nil, fmt.Errorf("%w: v%03d", ErrInvalidVersion, version)
		}
		if !isDir(e.fs, layout.VersionPath(assetPath, version)) {
			return nil, &VersionMissingError{Asset: assetPath, Version: version}
		}
		if version < node.LatestVersion {
			node.LatestVersion = version
		}
		return e.dropAbove(assetPath, node, version)
	})
}

func (e *Engine) purge(ctx context.Context, op, assetPath string, plan func(*metadata.NodeInfo) ([]int, error)) ([]int, error) {
	var purged []int
	err := e.run(ctx, op, assetPath, func(uuid.UUID) error {
		node, err := e.store.Asset(assetPath)
		if err != nil {
			return err
		}
		purged, err = plan(node)
		if err != nil {
			return err
		}
		if err := e.store.WriteNodeInfo(assetPath, node); err != nil {
			return err
		}
		e.removeVersions(assetPath, purged)
		return nil
	})
	return purged, err
}

// dropBelow forgets comments below threshold and returns the stored versions below it
func (e *Engine) dropBelow(assetPath string, node *metadata.NodeInfo, threshold int) ([]int, error) {
	return e.drop(assetPath, node, func(v int) bool { return v < threshold })
}

// dropAbove forgets comments above threshold and returns the stored versions above it
func (e *Engine) dropAbove(assetPath string, node *metadata.NodeInfo, threshold int) ([]int, error) {
	return e.drop(assetPath, node, func(v int) bool { return v > threshold })
}

func (e *Engine) drop(assetPath string, node *metadata.NodeInfo, match func(int) bool) ([]int, error) {
	for _, v := range node.CommentVersions() {
		if match(v) {
			node.DropComment(v)
		}
	}

	stored, err := storedVersions(e.fs, assetPath)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	var out []int
	for _, v := range stored {
		if match(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// removeVersions deletes version directories already dropped from metadata.
// Failures are logged: the metadata no longer references them.
func (e *Engine) removeVersions(assetPath string, versions []int) {
	for _, v := range versions {
		if err := removeTree(e.fs, layout.VersionPath(assetPath, v)); err != nil {
			e.log.Warn("Could not remove purged version").
				Err(err).
				Str("asset", assetPath).
				Int("version", v).
				Send()
			continue
		}
		if m := e.cfg.Metrics; m != nil {
			m.VersionsPurgedTotal.Inc()
		}
	}
}

// NextVersionFolder returns the newest "<prefix>vNNN" folder in dir when it
// is empty, and otherwise creates and returns the next one. An empty
// "<prefix>v000" is reused. When no folder exists the first one created is
// "<prefix>v001".
func (e *Engine) NextVersionFolder(dir, prefix string) (string, error) {
	entries, err := afero.ReadDir(e.fs, dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	latest, found := 0, false
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rest, ok := strings.CutPrefix(entry.Name(), prefix)
		if !ok {
			continue
		}
		if n, ok := layout.ParseVersionFolder(rest); ok && (!found || n > latest) {
			latest, found = n, true
		}
	}

	if found {
		path := filepath.Join(dir, prefix+layout.VersionFolderName(latest))
		empty, err := afero.IsEmpty(e.fs, path)
		if err != nil {
			return "", err
		}
		if empty {
			return path, nil
		}
	}

	path := filepath.Join(dir, prefix+layout.VersionFolderName(latest+1))
	if err := e.fs.MkdirAll(path, 0755); err != nil {
		return "", err
	}
	return path, nil
}

// RecoveryReport summarizes a Recover pass
type RecoveryReport struct {
	Stats   wal.RecoveryStats
	Removed []string // orphaned directories deleted
}

// Recover cleans up after operations interrupted by a crash. Version
// directories that metadata never adopted are removed, as are half-copied
// working copies without checkout info. The journal is then compacted.
//
// Each asset is inspected under its process mutex. An operation whose asset
// mutex cannot be taken, or that finishes while waiting, belongs to a live
// process and is left alone.
func (e *Engine) Recover(ctx context.Context) (*RecoveryReport, error) {
	report := &RecoveryReport{}
	if e.cfg.Journal == nil {
		return report, nil
	}
	if e.cfg.Mutex == nil {
		return report, ErrNoMutex
	}

	err := e.run(ctx, "recover", "", func(uuid.UUID) error {
		stats, err := wal.NewRecovery(e.cfg.Journal).Recover(func(op *wal.Operation) error {
			removed, err := e.undo(ctx, op)
			report.Removed = append(report.Removed, removed...)
			return err
		})
		if stats != nil {
			report.Stats = *stats
		}
		if err != nil {
			return err
		}

		err = wal.NewCheckpointer(e.cfg.Journal).Checkpoint()
		switch {
		case errors.Is(err, wal.ErrPendingOperations):
			e.jlog.Warn("Journal not compacted").Err(err).Send()
		case err != nil:
			return fmt.Errorf("checkpoint: %w", err)
		default:
			e.jlog.Debug("Journal compacted").Int("entries", report.Stats.TotalEntries).Send()
		}
		return nil
	})
	return report, err
}

func (e *Engine) undo(ctx context.Context, op *wal.Operation) ([]string, error) {
	var rec journalRecord
	if err := json.Unmarshal(op.Payload, &rec); err != nil {
		return nil, fmt.Errorf("decode journal payload: %w", err)
	}
	if !isDir(e.fs, op.Asset) {
		// the asset was removed by hand; nothing left to lock or clean
		return nil, nil
	}

	unlock, err := e.cfg.Mutex.Lock(ctx, op.Asset)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.jlog.Info("Operation still running").
			Str("op_id", op.ID.String()).
			Str("asset", op.Asset).
			Err(err).
			Send()
		return nil, fmt.Errorf("%w: %v", wal.ErrOperationActive, err)
	}
	defer unlock()

	// the owner may have finished while we waited for the mutex
	finished, err := wal.NewRecovery(e.cfg.Journal).Finished(op.ID)
	if err != nil {
		return nil, err
	}
	if finished {
		return nil, wal.ErrOperationActive
	}

	var removed []string
	if rec.Kind == "rollback" {
		if rec.Temp != "" && exists(e.fs, rec.Temp) {
			if err := removeTree(e.fs, rec.Temp); err != nil {
				return removed, err
			}
			removed = append(removed, rec.Temp)
		}
		if rec.Path != "" && exists(e.fs, rec.Path) && !e.store.HasCheckoutInfo(rec.Path) {
			if err := removeTree(e.fs, rec.Path); err != nil {
				return removed, err
			}
			removed = append(removed, rec.Path)
		}
	}

	node, err := e.store.Asset(op.Asset)
	if errors.Is(err, metadata.ErrNotAsset) {
		return removed, nil
	}
	if err != nil {
		return removed, err
	}

	stored, err := storedVersions(e.fs, op.Asset)
	if err != nil {
		return removed, err
	}
	for _, v := range stored {
		if v <= node.LatestVersion {
			continue
		}
		path := layout.VersionPath(op.Asset, v)
		if err := removeTree(e.fs, path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}

	e.jlog.Info("Recovered interrupted operation").
		Str("op_id", op.ID.String()).
		Str("kind", rec.Kind).
		Str("asset", op.Asset).
		Int("removed", len(removed)).
		Send()
	return removed, nil
}
