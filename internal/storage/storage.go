// Package storage provides file staging for the processing workflow and
// optional archival of replaced assets. It defines the Store interface
// (port) with implementations for local disk and S3-backed archival.
package storage

import (
	"context"
	"io"
)

// Store defines the interface for staging working files and archiving
// replaced assets. Implementations must handle staged files created during
// processing and optionally support S3 archival of prior asset versions.
type Store interface {
	// Stage writes data to a staged working file and returns the file path.
	// The name parameter is used as a hint for the filename.
	Stage(ctx context.Context, name string, data io.Reader) (path string, err error)

	// Open reads a staged file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Discard removes the specified staged files.
	// It continues even if some files fail to delete.
	Discard(ctx context.Context, paths []string) error

	// Archive uploads data to the archive bucket and returns the object URL.
	// Returns ErrArchiveNotConfigured if no archive backend is configured.
	Archive(ctx context.Context, key string, data io.Reader) (url string, err error)
}
