package metadata

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Writer persists a serialized metadata file
type Writer interface {
	WriteFile(fs afero.Fs, path string, data []byte) error
}

// AtomicWriter writes to a temp file next to the target and renames it over
// the target, so readers never see a half-written file.
type AtomicWriter struct{}

// WriteFile implements Writer
func (AtomicWriter) WriteFile(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fs.Chmod(tmpName, 0644); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// InPlaceWriter truncates and overwrites the target file
type InPlaceWriter struct{}

// WriteFile implements Writer
func (InPlaceWriter) WriteFile(fs afero.Fs, path string, data []byte) error {
	return afero.WriteFile(fs, path, data, 0644)
}
