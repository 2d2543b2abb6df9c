package version

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/nainya/assetstore/pkg/layout"
	"github.com/nainya/assetstore/pkg/metadata"
)

// Register creates a new asset at parentDir/name with an empty v000
func (e *Engine) Register(ctx context.Context, user Identity, parentDir, name string) (string, error) {
	assetPath := filepath.Join(parentDir, name)
	err := e.run(ctx, "register", "", func(uuid.UUID) error {
		return e.register(user, assetPath, e.cfg.DefaultVersionsToKeep)
	})
	if err != nil {
		return "", err
	}
	return assetPath, nil
}

// Scaffold creates the project folder parentDir/name holding a versioned
// "model" asset that keeps the last five versions
func (e *Engine) Scaffold(ctx context.Context, user Identity, parentDir, name string) (string, error) {
	folder := filepath.Join(parentDir, name)
	assetPath := filepath.Join(folder, ScaffoldAssetName)

	err := e.run(ctx, "scaffold", "", func(uuid.UUID) error {
		if exists(e.fs, folder) {
			return &AlreadyExistsError{Path: folder}
		}
		if err := e.fs.MkdirAll(folder, 0755); err != nil {
			return fmt.Errorf("create folder: %w", err)
		}
		return e.register(user, assetPath, ScaffoldVersionsToKeep)
	})
	if err != nil {
		return "", err
	}
	return assetPath, nil
}

func (e *Engine) register(user Identity, assetPath string, keep int) error {
	if exists(e.fs, assetPath) {
		return &AlreadyExistsError{Path: assetPath}
	}
	if err := e.fs.MkdirAll(filepath.Dir(assetPath), 0755); err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	if err := e.fs.Mkdir(assetPath, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &AlreadyExistsError{Path: assetPath}
		}
		return fmt.Errorf("create asset: %w", err)
	}

	for _, dir := range []string{layout.VersionPath(assetPath, 0), layout.BackupsPath(assetPath)} {
		if err := e.fs.MkdirAll(dir, 0755); err != nil {
			removeTree(e.fs, assetPath)
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	// the node info file is what makes the directory an asset, so it goes last
	info := metadata.NewNodeInfo(user.Login, keep, e.now())
	if err := e.store.WriteNodeInfo(assetPath, info); err != nil {
		removeTree(e.fs, assetPath)
		return err
	}
	return nil
}

// Checkout copies the latest version of an asset into the workspace and
// returns the working copy path. An exclusive checkout also locks the asset.
func (e *Engine) Checkout(ctx context.Context, user Identity, assetPath string, exclusive bool) (string, error) {
	var dest string
	err := e.run(ctx, "checkout", assetPath, func(uuid.UUID) error {
		var err error
		dest, err = e.checkout(user, assetPath, exclusive)
		return err
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

func (e *Engine) checkout(user Identity, assetPath string, exclusive bool) (string, error) {
	node, err := e.store.Asset(assetPath)
	if err != nil {
		return "", err
	}
	if node.Locked {
		return "", e.lockedError(assetPath, node)
	}

	src := layout.VersionPath(assetPath, node.LatestVersion)
	if !isDir(e.fs, src) {
		return "", &VersionMissingError{Asset: assetPath, Version: node.LatestVersion}
	}

	dest := e.resolver.CheckoutDestination(assetPath, node.LatestVersion)
	if exists(e.fs, dest) {
		return "", &AlreadyExistsError{Path: dest}
	}

	copied, err := copyTree(e.fs, src, dest, nil)
	if err != nil {
		removeTree(e.fs, dest)
		return "", err
	}

	now := e.now()
	co := &metadata.CheckoutInfo{
		CheckedOutFrom: assetPath,
		CheckoutTime:   now,
		Version:        node.LatestVersion,
		LockedByMe:     exclusive,
		CheckoutUser:   user.Login,
		RestoredFrom:   -1,
	}
	if err := e.store.WriteCheckoutInfo(dest, co); err != nil {
		removeTree(e.fs, dest)
		return "", err
	}

	node.LastCheckoutUser = user.Login
	node.LastCheckoutTime = now
	node.Locked = exclusive
	if err := e.store.WriteNodeInfo(assetPath, node); err != nil {
		removeTree(e.fs, dest)
		return "", err
	}

	if m := e.cfg.Metrics; m != nil {
		m.RecordCopy("checkout", copied)
	}
	return dest, nil
}

// Checkin promotes a working copy to the asset's next version, applies the
// retention policy and deletes the working copy. It returns the asset path.
func (e *Engine) Checkin(ctx context.Context, user Identity, workingCopy string) (string, error) {
	co, err := e.store.WorkingCopy(workingCopy)
	if err != nil {
		return "", err
	}
	assetPath := co.CheckedOutFrom

	err = e.run(ctx, "checkin", assetPath, func(opID uuid.UUID) error {
		return e.checkin(opID, user, workingCopy)
	})
	if err != nil {
		return "", err
	}
	return assetPath, nil
}

func (e *Engine) checkin(opID uuid.UUID, user Identity, workingCopy string) error {
	// re-read under the asset lock
	co, err := e.store.WorkingCopy(workingCopy)
	if err != nil {
		return err
	}
	assetPath := co.CheckedOutFrom
	node, err := e.store.Asset(assetPath)
	if err != nil {
		return err
	}
	if err := EvaluateCheckin(node, co, user.Login, workingCopy); err != nil {
		return err
	}

	next := node.LatestVersion + 1
	dest := layout.VersionPath(assetPath, next)
	if exists(e.fs, dest) {
		return &AlreadyExistsError{Path: dest}
	}

	if err := e.begin(opID, assetPath, journalRecord{Kind: "checkin", Version: next, Path: workingCopy}); err != nil {
		return err
	}

	skip := func(rel string) bool { return rel == metadata.CheckoutInfoFile }
	copied, err := copyTree(e.fs, workingCopy, dest, skip)
	if err != nil {
		removeTree(e.fs, dest)
		return e.finish(opID, err)
	}

	now := e.now()
	updated := node.Clone()
	updated.LatestVersion = next
	updated.LastCheckinUser = user.Login
	updated.LastCheckinTime = now
	updated.Locked = false

	var purge []int
	if updated.VersionsToKeep > 0 {
		purge, err = e.dropBelow(assetPath, updated, next-updated.VersionsToKeep+1)
		if err != nil {
			removeTree(e.fs, dest)
			return e.finish(opID, err)
		}
	}

	if err := e.store.WriteNodeInfo(assetPath, updated); err != nil {
		removeTree(e.fs, dest)
		return e.finish(opID, err)
	}
	if err := e.finish(opID, nil); err != nil {
		return err
	}

	e.removeVersions(assetPath, purge)

	if m := e.cfg.Metrics; m != nil {
		m.RecordCopy("checkin", copied)
		m.VersionsCreatedTotal.Inc()
	}

	if err := removeTree(e.fs, workingCopy); err != nil {
		return fmt.Errorf("checked in v%03d but could not remove working copy: %w", next, err)
	}
	return nil
}

// SetComment records the message for the version the working copy would
// create, formatted as `login: timestamp: "text"`
func (e *Engine) SetComment(ctx context.Context, user Identity, workingCopy, text string) error {
	co, err := e.store.WorkingCopy(workingCopy)
	if err != nil {
		return err
	}

	return e.run(ctx, "comment", co.CheckedOutFrom, func(uuid.UUID) error {
		node, err := e.store.Asset(co.CheckedOutFrom)
		if err != nil {
			return err
		}
		if err := EvaluateCheckin(node, co, user.Login, workingCopy); err != nil {
			return err
		}

		node.SetComment(node.LatestVersion+1, FormatComment(user.Login, e.now(), text))
		return e.store.WriteNodeInfo(co.CheckedOutFrom, node)
	})
}

// Discard releases the lock held by a working copy and deletes it.
// A working copy that is already gone is not an error.
func (e *Engine) Discard(ctx context.Context, user Identity, workingCopy string) error {
	if !exists(e.fs, workingCopy) {
		return nil
	}
	co, err := e.store.WorkingCopy(workingCopy)
	if err != nil {
		return err
	}

	return e.run(ctx, "discard", co.CheckedOutFrom, func(uuid.UUID) error {
		return e.discard(user, workingCopy, co)
	})
}

func (e *Engine) discard(user Identity, workingCopy string, co *metadata.CheckoutInfo) error {
	node, err := e.store.Asset(co.CheckedOutFrom)
	if err != nil {
		return err
	}

	if holdsLock(node, co, user.Login) {
		node.Locked = false
		if err := e.store.WriteNodeInfo(co.CheckedOutFrom, node); err != nil {
			return err
		}
	}

	return removeTree(e.fs, workingCopy)
}
