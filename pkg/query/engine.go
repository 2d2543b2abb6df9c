// ABOUTME: Read-only status queries over assets and working copies
// ABOUTME: Soft helpers report absence as false or empty, info calls return NotAssetError

package query

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/nainya/assetstore/pkg/layout"
	"github.com/nainya/assetstore/pkg/metadata"
	"github.com/nainya/assetstore/pkg/version"
)

// installMarker matches the published files inside an asset's stable area
const installMarker = "*stable*"

// Engine answers status questions without mutating anything
type Engine struct {
	fs    afero.Fs
	store *metadata.Store
}

// NewEngine creates a query engine on the given filesystem
func NewEngine(fsys afero.Fs) *Engine {
	return &Engine{fs: fsys, store: metadata.NewStore(fsys)}
}

// IsAsset reports whether path is a versioned asset
func (e *Engine) IsAsset(path string) bool {
	return e.store.HasNodeInfo(path)
}

// IsWorkingCopy reports whether path is a checked out copy
func (e *Engine) IsWorkingCopy(path string) bool {
	return e.store.HasCheckoutInfo(path)
}

// IsLocked reports whether an asset is locked
func (e *Engine) IsLocked(asset string) bool {
	node, err := e.store.ReadNodeInfo(asset)
	return err == nil && node.Locked
}

// LockedByUser reports whether an asset is locked by login
func (e *Engine) LockedByUser(asset, login string) bool {
	node, err := e.store.ReadNodeInfo(asset)
	return err == nil && node.Locked && node.LastCheckoutUser == login
}

// InstallPath returns the first published file in the asset's stable area, or ""
func (e *Engine) InstallPath(asset string) string {
	matches, err := afero.Glob(e.fs, filepath.Join(layout.StablePath(asset), installMarker))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

// IsInstalled reports whether the asset has been published to its stable area
func (e *Engine) IsInstalled(asset string) bool {
	return e.InstallPath(asset) != ""
}

// LatestVersion returns the asset's latest version, or -1 for a non-asset
func (e *Engine) LatestVersion(asset string) int {
	node, err := e.store.ReadNodeInfo(asset)
	if err != nil {
		return -1
	}
	return node.LatestVersion
}

// CommentFor returns the comment of one version, or ""
func (e *Engine) CommentFor(asset string, version int) string {
	node, err := e.store.ReadNodeInfo(asset)
	if err != nil {
		return ""
	}
	c, _ := node.Comment(version)
	return c
}

// CheckoutTime returns when a working copy was made, or the zero time
func (e *Engine) CheckoutTime(workingCopy string) time.Time {
	co, err := e.store.ReadCheckoutInfo(workingCopy)
	if err != nil {
		return time.Time{}
	}
	return co.CheckoutTime
}

// CheckinDestination returns the asset a working copy checks in to, or ""
func (e *Engine) CheckinDestination(workingCopy string) string {
	co, err := e.store.ReadCheckoutInfo(workingCopy)
	if err != nil {
		return ""
	}
	return co.CheckedOutFrom
}

// CanCheckout reports whether an asset is unlocked and its latest version present
func (e *Engine) CanCheckout(asset string) bool {
	node, err := e.store.ReadNodeInfo(asset)
	if err != nil || node.Locked {
		return false
	}
	ok, err := afero.IsDir(e.fs, layout.VersionPath(asset, node.LatestVersion))
	return err == nil && ok
}

// CanCheckin reports whether login may check in a working copy
func (e *Engine) CanCheckin(workingCopy, login string) bool {
	co, err := e.store.ReadCheckoutInfo(workingCopy)
	if err != nil {
		return false
	}
	node, err := e.store.ReadNodeInfo(co.CheckedOutFrom)
	if err != nil {
		return false
	}
	return version.EvaluateCheckin(node, co, login, workingCopy) == nil
}

// Info returns an asset's metadata
func (e *Engine) Info(asset string) (*metadata.NodeInfo, error) {
	return e.store.Asset(asset)
}

// WorkingCopyInfo returns a working copy's metadata
func (e *Engine) WorkingCopyInfo(workingCopy string) (*metadata.CheckoutInfo, error) {
	return e.store.WorkingCopy(workingCopy)
}

// Summary returns the status of an asset
func (e *Engine) Summary(asset string) (*Summary, error) {
	node, err := e.store.Asset(asset)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Asset:           asset,
		Type:            node.Type,
		LatestVersion:   node.LatestVersion,
		VersionsToKeep:  node.VersionsToKeep,
		Locked:          node.Locked,
		LastCheckinUser: node.LastCheckinUser,
		LastCheckinTime: node.LastCheckinTime,
		InstallPath:     e.InstallPath(asset),
	}
	s.Installed = s.InstallPath != ""
	if node.Locked {
		s.LockHolder = node.LastCheckoutUser
		s.LockedSince = node.LastCheckoutTime
	}
	s.LatestComment, _ = node.Comment(node.LatestVersion)
	return s, nil
}

// History lists every version that has a directory or a comment, ascending
func (e *Engine) History(asset string) ([]HistoryEntry, error) {
	node, err := e.store.Asset(asset)
	if err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(e.fs, layout.VersionStorePath(asset))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	present := make(map[int]bool)
	for _, entry := range entries {
		if v, ok := layout.ParseVersionFolder(entry.Name()); ok && entry.IsDir() {
			present[v] = true
		}
	}

	seen := make(map[int]bool)
	var versions []int
	add := func(v int) {
		if !seen[v] && v <= node.LatestVersion {
			seen[v] = true
			versions = append(versions, v)
		}
	}
	for v := range present {
		add(v)
	}
	for _, v := range node.CommentVersions() {
		add(v)
	}
	sort.Ints(versions)

	history := make([]HistoryEntry, 0, len(versions))
	for _, v := range versions {
		comment, hasComment := node.Comment(v)
		history = append(history, HistoryEntry{
			Version:    v,
			Folder:     layout.VersionFolderName(v),
			Comment:    comment,
			HasComment: hasComment,
			Present:    present[v],
		})
	}
	return history, nil
}
