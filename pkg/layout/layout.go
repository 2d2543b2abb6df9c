// ABOUTME: On-disk naming scheme for assets, version folders and working copies
// ABOUTME: Pure path computation, no filesystem access

package layout

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Folder names inside an asset directory
const (
	SourceDir  = "src"
	StableDir  = "stable"
	BackupsDir = "backups"

	// QuarantineDir holds working copies relocated by an administrative unlock
	QuarantineDir = ".unlocked"

	versionPrefix = "v"
)

// VersionFolderName returns the folder name for version n ("v000", "v001", ...)
func VersionFolderName(n int) string {
	return fmt.Sprintf("%s%03d", versionPrefix, n)
}

// ParseVersionFolder extracts the version number from a folder name.
// Names that are not "v" followed by digits are rejected.
func ParseVersionFolder(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, versionPrefix)
	if !ok || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// VersionStorePath returns the directory holding an asset's version snapshots
func VersionStorePath(assetPath string) string {
	return filepath.Join(assetPath, SourceDir)
}

// VersionPath returns the snapshot directory of one version
func VersionPath(assetPath string, n int) string {
	return filepath.Join(VersionStorePath(assetPath), VersionFolderName(n))
}

// StablePath returns the install area of an asset
func StablePath(assetPath string) string {
	return filepath.Join(assetPath, StableDir)
}

// BackupsPath returns the backup area inside the install area
func BackupsPath(assetPath string) string {
	return filepath.Join(StablePath(assetPath), BackupsDir)
}

// Resolver maps assets to locations inside one user's workspace
type Resolver struct {
	WorkspaceRoot string
}

// NewResolver creates a resolver rooted at the given workspace
func NewResolver(workspaceRoot string) Resolver {
	return Resolver{WorkspaceRoot: workspaceRoot}
}

// CheckoutName returns "<parent>_<asset>_<version>" for an asset path.
// The same asset and version always yield the same name.
func CheckoutName(assetPath string, version int) string {
	clean := filepath.Clean(assetPath)
	parent := filepath.Base(filepath.Dir(clean))
	return fmt.Sprintf("%s_%s_%03d", parent, filepath.Base(clean), version)
}

// CheckoutDestination returns the working copy location for an asset version
func (r Resolver) CheckoutDestination(assetPath string, version int) string {
	return filepath.Join(r.WorkspaceRoot, CheckoutName(assetPath, version))
}

// QuarantineRoot returns the directory that receives relocated working copies
func (r Resolver) QuarantineRoot() string {
	return filepath.Join(r.WorkspaceRoot, QuarantineDir)
}

// QuarantinePath returns where a working copy is relocated to on unlock
func (r Resolver) QuarantinePath(workingCopyPath string) string {
	return filepath.Join(r.QuarantineRoot(), filepath.Base(filepath.Clean(workingCopyPath)))
}
