// Package source resolves a session's media source into a normalized
// in-memory payload. A source may be a local file, a remote URL, or a
// catalog entry; after resolution downstream code never branches on the
// origin again.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Static errors for source resolution.
var (
	// ErrFetch is returned when a network read of a remote source fails.
	ErrFetch = errors.New("source: fetch failed")
	// ErrUnknownKind is returned when the source reference kind is not recognized.
	ErrUnknownKind = errors.New("source: unknown source kind")
	// ErrEmptyReference is returned when the reference is missing its locator.
	ErrEmptyReference = errors.New("source: empty source reference")
)

// Kind identifies where a media source originates.
type Kind string

const (
	// KindLocal references a file on local disk.
	KindLocal Kind = "local"
	// KindRemote references a previously processed or external URL.
	KindRemote Kind = "remote"
	// KindCatalog references an existing catalog entry by ID.
	KindCatalog Kind = "catalog"
)

// IsValid returns true if the kind is one of the supported source kinds.
func (k Kind) IsValid() bool {
	return k == KindLocal || k == KindRemote || k == KindCatalog
}

// Ref is a reference to a media source. Exactly one locator field is
// meaningful depending on Kind.
type Ref struct {
	// Kind is the source origin.
	Kind Kind
	// Path is the local file path (KindLocal).
	Path string
	// URL is the remote address (KindRemote).
	URL string
	// EntryID is the catalog entry identifier (KindCatalog).
	EntryID string
}

// Payload is a normalized in-memory media payload. It is a value type
// independent of its origin.
type Payload struct {
	// Name is a filename hint derived from the source.
	Name string
	// Data is the raw media bytes.
	Data []byte
}

// EntryLocator derives a fetchable playback URL for a catalog entry.
type EntryLocator interface {
	PlaybackURL(ctx context.Context, entryID string) (string, error)
}

// Resolver turns source references into payloads.
type Resolver struct {
	httpClient *http.Client
	entries    EntryLocator
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient sets a custom HTTP client for remote fetches.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.httpClient = c
	}
}

// NewResolver creates a Resolver. The entries locator is used for
// catalog-kind references and may be nil if those are never resolved.
func NewResolver(entries EntryLocator, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		entries:    entries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve reads the referenced source into memory.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (Payload, error) {
	switch ref.Kind {
	case KindLocal:
		return r.resolveLocal(ctx, ref.Path)
	case KindRemote:
		return r.resolveRemote(ctx, ref.URL)
	case KindCatalog:
		return r.resolveCatalog(ctx, ref.EntryID)
	default:
		return Payload{}, fmt.Errorf("%w: %q", ErrUnknownKind, ref.Kind)
	}
}

func (r *Resolver) resolveLocal(ctx context.Context, path string) (Payload, error) {
	if path == "" {
		return Payload{}, ErrEmptyReference
	}

	select {
	case <-ctx.Done():
		return Payload{}, fmt.Errorf("source: context cancelled: %w", ctx.Err())
	default:
	}

	data, err := os.ReadFile(path) // #nosec G304 - path comes from the session owner
	if err != nil {
		return Payload{}, fmt.Errorf("source: read local file: %w", err)
	}

	return Payload{Name: filepath.Base(path), Data: data}, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, url string) (Payload, error) {
	if url == "" {
		return Payload{}, ErrEmptyReference
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("source: create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Payload{}, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}

	return Payload{Name: filepath.Base(req.URL.Path), Data: data}, nil
}

func (r *Resolver) resolveCatalog(ctx context.Context, entryID string) (Payload, error) {
	if entryID == "" {
		return Payload{}, ErrEmptyReference
	}
	if r.entries == nil {
		return Payload{}, fmt.Errorf("source: no entry locator configured")
	}

	url, err := r.entries.PlaybackURL(ctx, entryID)
	if err != nil {
		return Payload{}, fmt.Errorf("source: locate entry %s: %w", entryID, err)
	}

	return r.resolveRemote(ctx, url)
}
