package version

import (
	"errors"
	"fmt"
	"time"

	"github.com/nainya/assetstore/pkg/metadata"
)

var (
	// ErrAlreadyExists indicates a registration or checkout target that is taken
	ErrAlreadyExists = errors.New("already exists")

	// ErrLocked indicates an asset locked by someone else
	ErrLocked = errors.New("asset locked")

	// ErrCheckinRejected indicates a working copy that may not be checked in
	ErrCheckinRejected = errors.New("checkin rejected")

	// ErrVersionMissing indicates metadata referencing a version directory that does not exist
	ErrVersionMissing = errors.New("version missing")

	// ErrNotLocked indicates a privileged operation attempted without holding the lock
	ErrNotLocked = errors.New("lock not held")

	// ErrInvalidVersion indicates a version number outside the asset's history
	ErrInvalidVersion = errors.New("invalid version")

	// ErrNoMutex indicates recovery attempted without a process mutex, which
	// is the only way to tell a crashed operation from a running one
	ErrNoMutex = errors.New("recovery needs a process mutex")
)

// AlreadyExistsError reports a path that already exists
type AlreadyExistsError struct {
	Path string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAlreadyExists, e.Path)
}

func (e *AlreadyExistsError) Is(target error) bool { return target == ErrAlreadyExists }

// LockedError reports the current holder of an asset lock
type LockedError struct {
	Asset      string
	Holder     string
	HolderName string // empty when the directory cannot resolve Holder
	Since      time.Time
}

func (e *LockedError) Error() string {
	who := e.Holder
	if e.HolderName != "" {
		who = fmt.Sprintf("%s (%s)", e.Holder, e.HolderName)
	}
	return fmt.Sprintf("%s: %s is checked out by %s since %s", ErrLocked, e.Asset, who, metadata.FormatTime(e.Since))
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }

// RejectReason explains a refused checkin
type RejectReason int

const (
	// StaleBase means a newer version was checked in after this working copy was made
	StaleBase RejectReason = iota + 1

	// LockedByOther means the asset lock is held by another checkout
	LockedByOther
)

func (r RejectReason) String() string {
	switch r {
	case StaleBase:
		return "stale base version"
	case LockedByOther:
		return "locked by another checkout"
	}
	return "unknown"
}

// CheckinRejectedError reports a working copy that fails the checkin policy
type CheckinRejectedError struct {
	WorkingCopy string
	Reason      RejectReason
	Base        int // version the working copy was made from
	Latest      int // asset's latest version at the time of the check
	Holder      string
}

func (e *CheckinRejectedError) Error() string {
	switch e.Reason {
	case StaleBase:
		return fmt.Sprintf("%s: %s: based on v%03d, asset is at v%03d", ErrCheckinRejected, e.WorkingCopy, e.Base, e.Latest)
	case LockedByOther:
		return fmt.Sprintf("%s: %s: asset locked by %s", ErrCheckinRejected, e.WorkingCopy, e.Holder)
	}
	return fmt.Sprintf("%s: %s", ErrCheckinRejected, e.WorkingCopy)
}

func (e *CheckinRejectedError) Is(target error) bool { return target == ErrCheckinRejected }

// VersionMissingError reports a version directory absent from the version store
type VersionMissingError struct {
	Asset   string
	Version int
}

func (e *VersionMissingError) Error() string {
	return fmt.Sprintf("%s: %s v%03d", ErrVersionMissing, e.Asset, e.Version)
}

func (e *VersionMissingError) Is(target error) bool { return target == ErrVersionMissing }

// NotLockedError reports a caller that does not hold the asset lock
type NotLockedError struct {
	Asset string
	User  string
}

func (e *NotLockedError) Error() string {
	return fmt.Sprintf("%s: %s does not hold the lock on %s", ErrNotLocked, e.User, e.Asset)
}

func (e *NotLockedError) Is(target error) bool { return target == ErrNotLocked }
