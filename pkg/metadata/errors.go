package metadata

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a metadata file that does not exist
	ErrNotFound = errors.New("metadata: not found")

	// ErrMalformed indicates a metadata file that cannot be parsed
	ErrMalformed = errors.New("metadata: malformed")

	// ErrNotAsset indicates a directory without node info
	ErrNotAsset = errors.New("not a versioned asset")

	// ErrNotWorkingCopy indicates a directory without checkout info
	ErrNotWorkingCopy = errors.New("not a working copy")
)

// NotFoundError reports a missing metadata file
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("metadata file not found: %s", e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// MalformedMetadataError reports a metadata file with a missing or
// unparsable section or key
type MalformedMetadataError struct {
	Path    string
	Section string
	Key     string
	Err     error
}

func (e *MalformedMetadataError) Error() string {
	msg := fmt.Sprintf("malformed metadata %s", e.Path)
	switch {
	case e.Section != "" && e.Key != "":
		msg += fmt.Sprintf(": [%s] %s", e.Section, e.Key)
	case e.Section != "":
		msg += fmt.Sprintf(": [%s]", e.Section)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedMetadataError) Unwrap() error { return e.Err }

func (e *MalformedMetadataError) Is(target error) bool { return target == ErrMalformed }

// NotAssetError reports a path that is not a versioned asset
type NotAssetError struct {
	Path string
}

func (e *NotAssetError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotAsset, e.Path)
}

func (e *NotAssetError) Is(target error) bool { return target == ErrNotAsset }

// NotWorkingCopyError reports a path that is not a checked out copy
type NotWorkingCopyError struct {
	Path string
}

func (e *NotWorkingCopyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotWorkingCopy, e.Path)
}

func (e *NotWorkingCopyError) Is(target error) bool { return target == ErrNotWorkingCopy }

var errMissing = errors.New("missing")
