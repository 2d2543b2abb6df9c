// Package lockfile serializes read-modify-write sequences on an asset across
// processes with an advisory flock on a file inside the asset directory
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FileName is the lock file created inside each asset directory
const FileName = ".assetlock"

// DefaultRetryDelay is how often a busy lock is retried
const DefaultRetryDelay = 50 * time.Millisecond

// ErrBusy is returned when the lock could not be taken before the deadline
var ErrBusy = errors.New("lockfile: asset busy")

// Locker takes per-asset process locks
type Locker struct {
	RetryDelay time.Duration
	Timeout    time.Duration // 0 waits until ctx is done
}

// New creates a locker
func New(retryDelay, timeout time.Duration) *Locker {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Locker{RetryDelay: retryDelay, Timeout: timeout}
}

// Lock blocks until the asset directory's lock file is held and returns the
// function that releases it
func (l *Locker) Lock(ctx context.Context, assetDir string) (func() error, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	path := filepath.Join(assetDir, FileName)
	fl := flock.New(path)

	ok, err := fl.TryLockContext(ctx, l.RetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s: %v", ErrBusy, assetDir, err)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBusy, assetDir)
	}

	return fl.Unlock, nil
}
