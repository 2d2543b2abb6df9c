package version

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/afero"

	"github.com/nainya/assetstore/pkg/layout"
)

// copyTree copies the directory src to dst, which must not exist yet.
// Paths for which skip returns true (relative to src) are left out.
// Returns the number of file bytes copied.
func copyTree(fsys afero.Fs, src, dst string, skip func(rel string) bool) (int64, error) {
	var copied int64

	err := afero.Walk(fsys, src, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel != "." && skip != nil && skip(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fsys.MkdirAll(target, info.Mode().Perm()|0700)
		}

		n, err := copyFile(fsys, path, target, info.Mode().Perm())
		copied += n
		return err
	})
	if err != nil {
		return copied, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return copied, nil
}

func copyFile(fsys afero.Fs, src, dst string, perm fs.FileMode) (int64, error) {
	in, err := fsys.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, err
	}
	return n, out.Close()
}

func exists(fsys afero.Fs, path string) bool {
	_, err := fsys.Stat(path)
	return err == nil
}

func isDir(fsys afero.Fs, path string) bool {
	ok, err := afero.IsDir(fsys, path)
	return err == nil && ok
}

// removeTree deletes path and everything below it. A missing path is not an error.
func removeTree(fsys afero.Fs, path string) error {
	err := fsys.RemoveAll(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// storedVersions lists the version numbers present in an asset's version store, ascending
func storedVersions(fsys afero.Fs, assetPath string) ([]int, error) {
	entries, err := afero.ReadDir(fsys, layout.VersionStorePath(assetPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var versions []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if n, ok := layout.ParseVersionFolder(entry.Name()); ok {
			versions = append(versions, n)
		}
	}
	sort.Ints(versions)
	return versions, nil
}

// uniquePath returns path, or path with "-<suffix>" appended when path is taken
func uniquePath(fsys afero.Fs, path string, suffix int64) string {
	if !exists(fsys, path) {
		return path
	}
	candidate := path + "-" + strconv.FormatInt(suffix, 10)
	for i := 1; exists(fsys, candidate); i++ {
		candidate = fmt.Sprintf("%s-%d-%d", path, suffix, i)
	}
	return candidate
}
