package mcpconfig

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/logging"
)

// ErrLockTimeout is returned by Save when another process holds the file lock.
var ErrLockTimeout = errors.New("timed out waiting for config lock")

const (
	defaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
)

// LoadStatus distinguishes a missing file from a broken one.
type LoadStatus int

const (
	StatusMissing LoadStatus = iota
	StatusOK
	StatusMalformed
)

func (s LoadStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMalformed:
		return "malformed"
	default:
		return "missing"
	}
}

// LoadResult is the outcome of Store.Load. Document is never nil.
type LoadResult struct {
	Document *Document
	// ModTime is the file mtime observed before reading; zero when the
	// file could not be stat'ed.
	ModTime time.Time
	Status  LoadStatus
	// Err is set for StatusMalformed.
	Err error
}

// Store reads and writes one opencode.json file.
type Store struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
	log         *slog.Logger
}

// NewStore returns a store for path. When lockDir is non-empty, saves take
// an advisory file lock kept in that directory.
func NewStore(path, lockDir string) *Store {
	s := &Store{
		path:        path,
		lockTimeout: defaultLockTimeout,
		log:         logging.ForComponent(logging.CompStore),
	}
	if lockDir != "" {
		s.lockPath = filepath.Join(lockDir, lockName(path))
	}
	return s
}

// lockName keys the lock file by the target's absolute path.
func lockName(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:8]) + ".lock"
}

// Path returns the file this store manages.
func (s *Store) Path() string {
	return s.path
}

// Load reads the file. It never fails: a missing file yields StatusMissing
// and anything unreadable or unparsable yields StatusMalformed, both with an
// empty document.
func (s *Store) Load() LoadResult {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return LoadResult{Document: NewDocument(), Status: StatusMissing}
	}
	if err != nil {
		return s.malformed(time.Time{}, err)
	}
	if info.IsDir() {
		return s.malformed(info.ModTime(), fmt.Errorf("%s is a directory", s.path))
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return s.malformed(info.ModTime(), err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return s.malformed(info.ModTime(), err)
	}

	s.log.Debug("config_loaded",
		slog.String("path", s.path),
		slog.Int("servers", doc.Len()),
		slog.Time("mtime", info.ModTime()))
	return LoadResult{Document: doc, ModTime: info.ModTime(), Status: StatusOK}
}

func (s *Store) malformed(modTime time.Time, err error) LoadResult {
	s.log.Warn("config_malformed", slog.String("path", s.path), slog.Any("error", err))
	return LoadResult{
		Document: NewDocument(),
		ModTime:  modTime,
		Status:   StatusMalformed,
		Err:      err,
	}
}

// Save writes doc to the file via a temp file and rename, so a failed save
// leaves the previous contents intact. It returns the new mtime.
func (s *Store) Save(doc *Document) (time.Time, error) {
	data, err := doc.Encode()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to encode %s: %w", s.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return time.Time{}, fmt.Errorf("failed to create config directory: %w", err)
	}

	unlock, err := s.lock()
	if err != nil {
		return time.Time{}, err
	}
	defer unlock()

	if err := writeFileAtomic(s.path, data); err != nil {
		return time.Time{}, err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat %s after save: %w", s.path, err)
	}
	s.log.Info("config_saved",
		slog.String("path", s.path),
		slog.Int("bytes", len(data)),
		slog.Time("mtime", info.ModTime()))
	return info.ModTime(), nil
}

func (s *Store) lock() (func(), error) {
	if s.lockPath == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(s.lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("failed to lock %s: %w", s.lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, s.lockPath)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.log.Warn("config_unlock_failed", slog.String("lock", s.lockPath), slog.Any("error", err))
		}
	}, nil
}

// writeFileAtomic replaces path with data, keeping the existing permissions.
// Symlinks are followed so the link itself survives.
func writeFileAtomic(path string, data []byte) error {
	target := path
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		target = resolved
	}

	perm := os.FileMode(0o644)
	if info, err := os.Stat(target); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions on %s: %w", target, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save %s: %w", target, err)
	}
	return nil
}
