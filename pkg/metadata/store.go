// ABOUTME: Metadata store reading and writing node info and checkout info files
// ABOUTME: Stateless: every call goes to disk, nothing is cached

package metadata

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store gives typed access to the metadata files of assets and working copies
type Store struct {
	fs     afero.Fs
	writer Writer
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithWriter replaces the default atomic writer
func WithWriter(w Writer) StoreOption {
	return func(s *Store) { s.writer = w }
}

// NewStore creates a metadata store on the given filesystem
func NewStore(fsys afero.Fs, opts ...StoreOption) *Store {
	s := &Store{fs: fsys, writer: AtomicWriter{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fs returns the filesystem the store operates on
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// NodeInfoPath returns the node info file of an asset directory
func NodeInfoPath(dir string) string {
	return filepath.Join(dir, NodeInfoFile)
}

// CheckoutInfoPath returns the checkout info file of a working copy directory
func CheckoutInfoPath(dir string) string {
	return filepath.Join(dir, CheckoutInfoFile)
}

// HasNodeInfo reports whether dir is an asset. The node info file is the only test.
func (s *Store) HasNodeInfo(dir string) bool {
	ok, err := afero.Exists(s.fs, NodeInfoPath(dir))
	return err == nil && ok
}

// HasCheckoutInfo reports whether dir is a working copy
func (s *Store) HasCheckoutInfo(dir string) bool {
	ok, err := afero.Exists(s.fs, CheckoutInfoPath(dir))
	return err == nil && ok
}

// ReadNodeInfo reads the node info of an asset directory
func (s *Store) ReadNodeInfo(dir string) (*NodeInfo, error) {
	path := NodeInfoPath(dir)
	data, err := s.readFile(path)
	if err != nil {
		return nil, err
	}
	info, err := ParseNodeInfo(data)
	if err != nil {
		return nil, withPath(err, path)
	}
	return info, nil
}

// WriteNodeInfo replaces the node info of an asset directory
func (s *Store) WriteNodeInfo(dir string, info *NodeInfo) error {
	data, err := info.Marshal()
	if err != nil {
		return fmt.Errorf("encode node info: %w", err)
	}
	if err := s.writer.WriteFile(s.fs, NodeInfoPath(dir), data); err != nil {
		return fmt.Errorf("write node info %s: %w", dir, err)
	}
	return nil
}

// ReadCheckoutInfo reads the checkout info of a working copy
func (s *Store) ReadCheckoutInfo(dir string) (*CheckoutInfo, error) {
	path := CheckoutInfoPath(dir)
	data, err := s.readFile(path)
	if err != nil {
		return nil, err
	}
	info, err := ParseCheckoutInfo(data)
	if err != nil {
		return nil, withPath(err, path)
	}
	return info, nil
}

// WriteCheckoutInfo replaces the checkout info of a working copy
func (s *Store) WriteCheckoutInfo(dir string, info *CheckoutInfo) error {
	data, err := info.Marshal()
	if err != nil {
		return fmt.Errorf("encode checkout info: %w", err)
	}
	if err := s.writer.WriteFile(s.fs, CheckoutInfoPath(dir), data); err != nil {
		return fmt.Errorf("write checkout info %s: %w", dir, err)
	}
	return nil
}

// Asset reads node info, reporting a missing file as NotAssetError
func (s *Store) Asset(dir string) (*NodeInfo, error) {
	info, err := s.ReadNodeInfo(dir)
	if errors.Is(err, ErrNotFound) {
		return nil, &NotAssetError{Path: dir}
	}
	return info, err
}

// WorkingCopy reads checkout info, reporting a missing file as NotWorkingCopyError
func (s *Store) WorkingCopy(dir string) (*CheckoutInfo, error) {
	info, err := s.ReadCheckoutInfo(dir)
	if errors.Is(err, ErrNotFound) {
		return nil, &NotWorkingCopyError{Path: dir}
	}
	return info, err
}

func (s *Store) readFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func withPath(err error, path string) error {
	var malformed *MalformedMetadataError
	if errors.As(err, &malformed) {
		malformed.Path = path
	}
	return err
}
