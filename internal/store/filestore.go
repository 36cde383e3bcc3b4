package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/gomoncli/zadarma-bridge/internal/correlator"
)

// DefaultLockTimeout bounds lock acquisition so a contended store never
// hangs a webhook response past the provider's reply deadline.
const DefaultLockTimeout = 3 * time.Second

const lockRetryDelay = 25 * time.Millisecond

// File is a pending-action store backed by a single JSON file. Every save
// rewrites the file through a temp-file rename, so readers never observe
// a partial collection. Mutual exclusion between deliveries uses an
// advisory lock on a sidecar .lock file; the data file itself is replaced
// on write and cannot hold the lock.
type File struct {
	path        string
	lockTimeout time.Duration
	log         logrus.FieldLogger
}

// FileOption configures a File store.
type FileOption func(*File)

// WithLockTimeout bounds how long operations wait for the advisory lock.
func WithLockTimeout(d time.Duration) FileOption {
	return func(s *File) { s.lockTimeout = d }
}

// WithLogger sets the logger used for degraded-condition reporting.
func WithLogger(log logrus.FieldLogger) FileOption {
	return func(s *File) { s.log = log }
}

// NewFile creates a file store at the given path. The file is created on
// first save; a missing file reads as an empty collection.
func NewFile(path string, opts ...FileOption) *File {
	s := &File{
		path:        path,
		lockTimeout: DefaultLockTimeout,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View runs fn with the current collection under a shared lock.
func (s *File) View(ctx context.Context, fn func(records []correlator.PendingAction) error) error {
	fl := flock.New(s.lockPath())
	if err := s.acquire(ctx, fl.TryRLockContext); err != nil {
		return err
	}
	defer fl.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	return fn(records)
}

// Update runs fn under an exclusive lock spanning the read, the mutation
// and the atomic rewrite, preventing lost updates between racing
// deliveries.
func (s *File) Update(ctx context.Context, fn func(records []correlator.PendingAction) ([]correlator.PendingAction, error)) error {
	fl := flock.New(s.lockPath())
	if err := s.acquire(ctx, fl.TryLockContext); err != nil {
		return err
	}
	defer fl.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}

	out, err := fn(records)
	if err != nil {
		return err
	}
	return s.write(out)
}

func (s *File) lockPath() string {
	return s.path + ".lock"
}

func (s *File) acquire(ctx context.Context, try func(context.Context, time.Duration) (bool, error)) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := try(lockCtx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: lock not acquired within %s", ErrBusy, s.lockTimeout)
		}
		return fmt.Errorf("%w: acquiring lock: %v", ErrUnavailable, err)
	}
	if !locked {
		return fmt.Errorf("%w: lock not acquired within %s", ErrBusy, s.lockTimeout)
	}
	return nil
}

// read loads the persisted collection. A corrupt file is moved aside for
// diagnosis and the collection is treated as empty, per the recovery
// contract: a bad file must never take the webhook handler down.
func (s *File) read() ([]correlator.PendingAction, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrUnavailable, s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var records []correlator.PendingAction
	if err := json.Unmarshal(data, &records); err != nil {
		preserved := s.preserveCorrupt()
		if preserved == "" {
			// Quarantine failed; proceeding would let the next save
			// overwrite the only copy of the broken data.
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrCorrupt, s.path, err)
		}
		s.log.WithFields(logrus.Fields{
			"path":      s.path,
			"preserved": preserved,
			"error":     err,
		}).Warn("pending store corrupt, treating as empty")
		return nil, nil
	}
	return records, nil
}

// preserveCorrupt moves the unparsable file to a timestamped sidecar so it
// is never silently overwritten. Returns the sidecar path, or empty if the
// move itself failed.
func (s *File) preserveCorrupt() string {
	dst := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, dst); err != nil {
		s.log.WithField("path", s.path).WithError(err).Error("preserving corrupt store file")
		return ""
	}
	return dst
}

// write atomically replaces the persisted collection.
func (s *File) write(records []correlator.PendingAction) error {
	if records == nil {
		records = []correlator.PendingAction{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding pending store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrUnavailable, dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing temp file: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing temp file: %v", ErrUnavailable, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod temp file: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replacing %s: %v", ErrUnavailable, s.path, err)
	}
	return nil
}
