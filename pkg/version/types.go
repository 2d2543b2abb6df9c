// ABOUTME: Versioning engine configuration and collaborator interfaces
// ABOUTME: Everything environment-derived is injected here, nothing is read from the process

package version

import (
	"context"
	"time"

	"github.com/spf13/afero"

	"github.com/nainya/assetstore/internal/logger"
	"github.com/nainya/assetstore/internal/metrics"
	"github.com/nainya/assetstore/pkg/metadata"
	"github.com/nainya/assetstore/pkg/wal"
)

// Identity is the user an operation acts on behalf of
type Identity struct {
	Login    string
	RealName string // optional, used for display only
}

// Directory resolves a login to a human-readable name
type Directory interface {
	RealName(login string) (string, bool)
}

// Mutex serializes read-modify-write sequences on one asset across processes.
// Lock returns the function that releases the lock.
type Mutex interface {
	Lock(ctx context.Context, assetDir string) (func() error, error)
}

// Config configures an Engine
type Config struct {
	// Fs is the filesystem holding assets and workspaces. Defaults to the OS filesystem.
	Fs afero.Fs

	// WorkspaceRoot is the directory receiving this user's working copies
	WorkspaceRoot string

	// DefaultVersionsToKeep is the retention given to newly registered assets.
	// 0 keeps every version.
	DefaultVersionsToKeep int

	// Writer persists metadata files. Defaults to metadata.AtomicWriter.
	Writer metadata.Writer

	// Mutex is optional. Without it the lock flag check is not atomic across processes.
	Mutex Mutex

	// Journal is optional. With it multi-step operations can be cleaned up by Recover.
	Journal *wal.Journal

	Logger    *logger.Logger
	Metrics   *metrics.Metrics
	Directory Directory

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// ScaffoldVersionsToKeep is the retention of the model asset created by Scaffold
const ScaffoldVersionsToKeep = 5

// ScaffoldAssetName is the asset created inside a scaffolded folder
const ScaffoldAssetName = "model"
