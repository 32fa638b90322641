package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrArchiveNotConfigured is returned when archival is attempted without an
// archive backend.
var ErrArchiveNotConfigured = errors.New("archive storage is not configured")

// DiskStore implements the Store interface using local disk.
// It keeps staged files in a configurable directory and does not support
// archival unless wrapped with ArchiveStore.
type DiskStore struct {
	stagingDir string
}

// NewDiskStore creates a new DiskStore instance.
// The stagingDir parameter specifies where staged files are kept.
// If stagingDir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewDiskStore(stagingDir string) (*DiskStore, error) {
	if stagingDir == "" {
		stagingDir = filepath.Join(os.TempDir(), "mediaflow")
	}

	if err := os.MkdirAll(stagingDir, 0750); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	return &DiskStore{stagingDir: stagingDir}, nil
}

// StagingDir returns the staging directory path.
func (s *DiskStore) StagingDir() string {
	return s.stagingDir
}

// Stage writes data to a staged file and returns the file path.
// The name is used as a base for the filename with a unique suffix.
func (s *DiskStore) Stage(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.CreateTemp(s.stagingDir, name+"_*")
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write staged file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close staged file: %w", err)
	}

	return fileName, nil
}

// Open reads a staged file and returns a reader.
// The caller is responsible for closing the returned ReadCloser.
func (s *DiskStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}

	return f, nil
}

// Discard removes the specified staged files.
// It continues even if some files fail to delete, returning the first error
// encountered.
func (s *DiskStore) Discard(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove staged file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// Archive is not supported by DiskStore and returns ErrArchiveNotConfigured.
func (s *DiskStore) Archive(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrArchiveNotConfigured
}
