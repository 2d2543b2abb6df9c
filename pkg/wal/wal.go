package wal

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	// MaxLogFileSize is the size at which the journal rolls to a new file (4MB)
	MaxLogFileSize = 4 << 20

	openFlags  = os.O_RDWR | os.O_APPEND
	osCreate   = os.O_CREATE
	lockSuffix = ".lock"
)

// Journal is an append-only log of engine operations.
// Each record is fsynced before Begin/Commit/Abort return. Several processes
// may share one journal on the OS filesystem: every write happens under an
// exclusive flock on "<Path>.lock".
type Journal struct {
	// Path is the base path for journal files (e.g. "/proj/.assetstore/journal")
	Path string

	// Fs is the filesystem holding the journal; nil means the OS filesystem
	Fs afero.Fs

	// Now stamps records; nil means time.Now
	Now func() time.Time

	fd        afero.File
	mu        sync.Mutex
	lsn       uint64
	fileSize  int64
	fileIndex int
	closed    bool

	// flock is nil when Fs is not the OS filesystem
	flock *flock.Flock

	// open holds operations begun by this process and not yet finished
	open map[uuid.UUID]string
}

// Open opens or creates the journal
func (j *Journal) Open() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.Fs == nil {
		j.Fs = afero.NewOsFs()
	}
	if j.Now == nil {
		j.Now = time.Now
	}
	j.open = make(map[uuid.UUID]string)

	if err := j.Fs.MkdirAll(filepath.Dir(j.Path), 0755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	if _, ok := j.Fs.(*afero.OsFs); ok {
		j.flock = flock.New(j.Path + lockSuffix)
	}

	unlock, err := j.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	if err := j.syncNoLock(); err != nil {
		return err
	}
	j.closed = false
	return nil
}

// lockFile takes the cross-process journal lock
func (j *Journal) lockFile() (func(), error) {
	if j.flock == nil {
		return func() {}, nil
	}
	if err := j.flock.Lock(); err != nil {
		return nil, fmt.Errorf("lock journal: %w", err)
	}
	return func() { j.flock.Unlock() }, nil
}

// syncNoLock catches up with records and files written by other processes
// (caller must hold mu and the journal lock). The newest file is reopened
// after a rotation or checkpoint elsewhere, and a tail torn by a crashed
// writer is cut off so new records stay readable.
func (j *Journal) syncNoLock() error {
	files, err := j.findLogFiles()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		if j.fd != nil {
			j.fd.Close()
		}
		fd, err := j.Fs.OpenFile(j.logFilePath(0), openFlags|osCreate, 0644)
		if err != nil {
			return err
		}
		j.fd, j.fileIndex, j.fileSize = fd, 0, 0
		return nil
	}

	latest := files[len(files)-1]
	index := j.indexOf(filepath.Base(latest))
	if j.fd == nil || index != j.fileIndex {
		if j.fd != nil {
			j.fd.Close()
		}
		fd, err := j.Fs.OpenFile(latest, openFlags, 0644)
		if err != nil {
			return err
		}
		j.fd, j.fileIndex, j.fileSize = fd, index, -1
	}

	stat, err := j.fd.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == j.fileSize {
		return nil
	}

	valid, maxLSN, count, err := scanFile(j.Fs, latest)
	if err != nil {
		return err
	}
	if valid < stat.Size() {
		if err := j.fd.Truncate(valid); err != nil {
			return err
		}
	}
	j.fileSize = valid

	if count == 0 && len(files) > 1 {
		entries, err := ReadAll(j.Fs, files)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.LSN > maxLSN {
				maxLSN = e.LSN
			}
		}
	}
	if maxLSN > j.lsn {
		j.lsn = maxLSN
	}
	return nil
}

// Begin records the start of an operation on an asset
func (j *Journal) Begin(id uuid.UUID, asset string, payload []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.appendNoLock(Entry{OpID: id, OpType: OpBegin, Asset: asset, Payload: payload}); err != nil {
		return err
	}
	j.open[id] = asset
	return nil
}

// Commit records that an operation completed
func (j *Journal) Commit(id uuid.UUID) error {
	return j.finish(id, OpCommit)
}

// Abort records that an operation failed
func (j *Journal) Abort(id uuid.UUID) error {
	return j.finish(id, OpAbort)
}

func (j *Journal) finish(id uuid.UUID, op OpType) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	asset, ok := j.open[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOperation, id)
	}
	if err := j.appendNoLock(Entry{OpID: id, OpType: op, Asset: asset}); err != nil {
		return err
	}
	delete(j.open, id)
	return nil
}

// abortRecovered closes an operation left open by an earlier process
func (j *Journal) abortRecovered(id uuid.UUID, asset string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.appendNoLock(Entry{OpID: id, OpType: OpAbort, Asset: asset})
}

// Close closes the journal
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.fd == nil {
		return nil
	}

	err := j.fd.Close()
	j.closed = true
	return err
}

// appendNoLock takes the journal lock and writes one entry (caller must hold mu)
func (j *Journal) appendNoLock(entry Entry) error {
	if j.closed || j.fd == nil {
		return ErrLogClosed
	}

	unlock, err := j.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	if err := j.syncNoLock(); err != nil {
		return err
	}
	return j.writeEntry(entry)
}

// writeEntry writes and syncs one entry (caller must hold mu and the journal lock)
func (j *Journal) writeEntry(entry Entry) error {
	j.lsn++
	entry.LSN = j.lsn
	entry.Timestamp = j.Now()
	data := entry.Encode()

	if j.fileSize > 0 && j.fileSize+int64(len(data)) > MaxLogFileSize {
		if err := j.rotateNoLock(); err != nil {
			return err
		}
	}

	n, err := j.fd.Write(data)
	if err != nil {
		return err
	}
	j.fileSize += int64(n)
	return j.fd.Sync()
}

// rotateNoLock rolls to a new journal file (caller must hold mu).
// Old files are only removed by a checkpoint.
func (j *Journal) rotateNoLock() error {
	if err := j.fd.Sync(); err != nil {
		return err
	}
	if err := j.fd.Close(); err != nil {
		return err
	}

	j.fileIndex++
	fd, err := j.Fs.OpenFile(j.logFilePath(j.fileIndex), openFlags|osCreate, 0644)
	if err != nil {
		return err
	}

	j.fd = fd
	j.fileSize = 0
	return nil
}

func (j *Journal) baseName() string {
	return filepath.Base(j.Path)
}

func (j *Journal) logFilePath(index int) string {
	return filepath.Join(filepath.Dir(j.Path), fmt.Sprintf("%s.%03d", j.baseName(), index))
}

func (j *Journal) indexOf(name string) int {
	var index int
	if _, err := fmt.Sscanf(name, j.baseName()+".%d", &index); err != nil {
		return -1
	}
	return index
}

// findLogFiles returns all journal files sorted by index
func (j *Journal) findLogFiles() ([]string, error) {
	dir := filepath.Dir(j.Path)

	entries, err := afero.ReadDir(j.Fs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && j.indexOf(entry.Name()) >= 0 {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Slice(files, func(a, b int) bool {
		return j.indexOf(filepath.Base(files[a])) < j.indexOf(filepath.Base(files[b]))
	})
	return files, nil
}

// Entries returns every readable record in order
func (j *Journal) Entries() ([]*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	unlock, err := j.lockFile()
	if err != nil {
		return nil, err
	}
	defer unlock()

	files, err := j.findLogFiles()
	if err != nil {
		return nil, err
	}
	return ReadAll(j.Fs, files)
}

var _ io.Closer = (*Journal)(nil)
