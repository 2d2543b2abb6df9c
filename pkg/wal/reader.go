package wal

import (
	"errors"
	"io"

	"github.com/spf13/afero"
)

// Reader reads journal entries from log files in order.
// A damaged record ends its file: everything after a torn or corrupted
// write is ignored and reading continues with the next file.
type Reader struct {
	fs      afero.Fs
	files   []string
	current int
	fd      afero.File
	skipped int
}

// NewReader creates a journal reader for the given log files
func NewReader(fsys afero.Fs, files []string) *Reader {
	return &Reader{fs: fsys, files: files, current: -1}
}

// Next reads the next entry, returning io.EOF after the last file
func (r *Reader) Next() (*Entry, error) {
	for {
		if r.fd == nil {
			if err := r.nextFile(); err != nil {
				return nil, err
			}
		}

		entry, err := r.readEntry()
		if err == nil {
			return entry, nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
			errors.Is(err, ErrCorrupted) || errors.Is(err, ErrTruncated) || errors.Is(err, ErrInvalidEntry) {
			if !errors.Is(err, io.EOF) {
				r.skipped++
			}
			r.fd.Close()
			r.fd = nil
			continue
		}
		return nil, err
	}
}

// Skipped returns how many damaged file tails were ignored
func (r *Reader) Skipped() int {
	return r.skipped
}

func (r *Reader) readEntry() (*Entry, error) {
	header := make([]byte, EntryHeaderSize)
	if _, err := io.ReadFull(r.fd, header); err != nil {
		return nil, err
	}

	n := bodyLen(header)
	if n > MaxLogFileSize {
		return nil, ErrTruncated
	}
	data := make([]byte, EntryHeaderSize+n)
	copy(data, header)
	if _, err := io.ReadFull(r.fd, data[EntryHeaderSize:]); err != nil {
		return nil, err
	}

	return DecodeEntry(data)
}

func (r *Reader) nextFile() error {
	r.current++
	if r.current >= len(r.files) {
		return io.EOF
	}

	fd, err := r.fs.Open(r.files[r.current])
	if err != nil {
		return err
	}
	r.fd = fd
	return nil
}

// Close closes the reader
func (r *Reader) Close() error {
	if r.fd != nil {
		err := r.fd.Close()
		r.fd = nil
		return err
	}
	return nil
}

// ReadAll reads all entries from all files
func ReadAll(fsys afero.Fs, files []string) ([]*Entry, error) {
	reader := NewReader(fsys, files)
	defer reader.Close()

	var entries []*Entry
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// scanFile returns the length of the intact prefix of a journal file, the
// highest LSN in it and how many records it holds
func scanFile(fsys afero.Fs, path string) (int64, uint64, int, error) {
	reader := NewReader(fsys, []string{path})
	defer reader.Close()

	if err := reader.nextFile(); err != nil {
		return 0, 0, 0, err
	}

	var (
		size   int64
		maxLSN uint64
		count  int
	)
	for {
		entry, err := reader.readEntry()
		if err != nil {
			return size, maxLSN, count, nil
		}
		size += int64(entry.Size())
		count++
		if entry.LSN > maxLSN {
			maxLSN = entry.LSN
		}
	}
}
