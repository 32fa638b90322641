package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reelhire/mediaflow/internal/mediaserver"
	"github.com/reelhire/mediaflow/internal/source"
	"github.com/reelhire/mediaflow/internal/upload"
)

// Static errors for catalog coordination.
var (
	// ErrEntryIDRequired is returned when the target entry ID is missing.
	ErrEntryIDRequired = errors.New("catalog: entry ID is required")
	// ErrNoEntryCreated is returned when an upload completed without the
	// backend creating a catalog entry for it.
	ErrNoEntryCreated = errors.New("catalog: upload produced no catalog entry")
)

// Warning codes for recoverable inconsistencies.
const (
	// WarnPartialCleanup records a failed temporary-entry deletion after a
	// successful replace. The visible catalog state is correct, so the
	// operation still counts as successful.
	WarnPartialCleanup = "partial_cleanup"
	// WarnRefreshFailed records a failed catalog view refresh after the
	// replace already landed.
	WarnRefreshFailed = "refresh_failed"
)

// Warning is a recoverable inconsistency recorded during a coordinator
// operation that overall succeeded.
type Warning struct {
	Code    string
	Message string
}

// Backend is the narrow port the coordinator needs from the media server
// client.
type Backend interface {
	UploadBinary(ctx context.Context, payload source.Payload, meta mediaserver.UploadMetadata) (string, error)
	ReplaceEntryMedia(ctx context.Context, entryID string, update mediaserver.MediaUpdate) (bool, error)
	UpdateEntryMetadata(ctx context.Context, entryID string, meta mediaserver.EntryMetadata) error
	DeleteEntry(ctx context.Context, entryID string) error
	FetchEntryInfo(ctx context.Context, entryID string) (mediaserver.EntryInfo, error)
}

// Waiter drives an upload job to its terminal state.
type Waiter interface {
	Wait(ctx context.Context, uploadID string) (*upload.Job, error)
}

// ReplaceOutcome is the result of a media replace.
type ReplaceOutcome struct {
	// Entry is the refreshed catalog entry, pointing at the new asset.
	Entry Entry
	// ArchivedPrior reports whether the backend archived the prior version.
	ArchivedPrior bool
	// Warnings lists recoverable inconsistencies (cleanup, refresh).
	Warnings []Warning
}

// Coordinator sequences catalog entry updates so the visible entry is never
// left pointing at an unconfirmed asset. All steps run strictly in order;
// there is no rollback beyond best-effort cleanup.
type Coordinator struct {
	backend Backend
	poller  Waiter
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(backend Backend, poller Waiter, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		backend: backend,
		poller:  poller,
		logger:  logger,
	}
}

// Publish uploads a new binary and returns the catalog entry the backend
// created for it, with metadata applied.
func (c *Coordinator) Publish(ctx context.Context, payload source.Payload, meta Metadata) (Entry, error) {
	result, err := c.uploadAndWait(ctx, payload, meta)
	if err != nil {
		return Entry{}, err
	}
	return c.finishPublish(ctx, result, meta)
}

// PublishConfirmed registers an upload that already completed as a catalog
// entry. The temporary entry the backend created for it becomes the
// published entry; no binary is transferred again.
func (c *Coordinator) PublishConfirmed(ctx context.Context, result mediaserver.UploadResult, meta Metadata) (Entry, error) {
	return c.finishPublish(ctx, result, meta)
}

func (c *Coordinator) finishPublish(ctx context.Context, result mediaserver.UploadResult, meta Metadata) (Entry, error) {
	if result.TempEntryID == "" {
		return Entry{}, ErrNoEntryCreated
	}

	if err := c.backend.UpdateEntryMetadata(ctx, result.TempEntryID, mediaserver.EntryMetadata{
		Title:       meta.Title,
		Description: meta.Description,
	}); err != nil {
		return Entry{}, fmt.Errorf("catalog: apply metadata: %w", err)
	}

	info, err := c.backend.FetchEntryInfo(ctx, result.TempEntryID)
	if err != nil {
		return Entry{}, fmt.Errorf("catalog: fetch published entry: %w", err)
	}
	return entryFromInfo(info), nil
}

// Replace swaps an existing entry's media for the payload:
// upload and confirm the new asset, archive-and-replace the entry, delete
// the temporary upload entry best-effort, then refresh the local view.
// Failures before the entry is repointed abort cleanly; failures after are
// downgraded to warnings since the visible catalog state is already correct.
func (c *Coordinator) Replace(ctx context.Context, entryID string, payload source.Payload, meta Metadata) (ReplaceOutcome, error) {
	if entryID == "" {
		return ReplaceOutcome{}, ErrEntryIDRequired
	}

	// Step 1: upload and confirm the new asset.
	result, err := c.uploadAndWait(ctx, payload, meta)
	if err != nil {
		return ReplaceOutcome{}, err
	}

	return c.finishReplace(ctx, entryID, result, meta)
}

// ReplaceConfirmed swaps an entry's media for an upload that already
// completed, skipping the redundant transfer. The asset's temporary entry is
// deleted in the cleanup step like any other.
func (c *Coordinator) ReplaceConfirmed(ctx context.Context, entryID string, result mediaserver.UploadResult, meta Metadata) (ReplaceOutcome, error) {
	if entryID == "" {
		return ReplaceOutcome{}, ErrEntryIDRequired
	}
	return c.finishReplace(ctx, entryID, result, meta)
}

func (c *Coordinator) finishReplace(ctx context.Context, entryID string, result mediaserver.UploadResult, meta Metadata) (ReplaceOutcome, error) {
	// Step 2: archive-and-replace. The backend swaps atomically on its side;
	// the new URL is confirmed live by the completed upload.
	archived, err := c.backend.ReplaceEntryMedia(ctx, entryID, mediaserver.MediaUpdate{
		NewURL:      result.URL,
		Duration:    result.Duration,
		Size:        result.Size,
		Thumbnail:   result.Thumbnail,
		Title:       meta.Title,
		Description: meta.Description,
	})
	if err != nil {
		// The temp entry is now orphaned; try to remove it before surfacing
		// the replace failure.
		c.deleteTemp(ctx, result.TempEntryID)
		return ReplaceOutcome{}, fmt.Errorf("catalog: replace entry media: %w", err)
	}

	outcome := ReplaceOutcome{ArchivedPrior: archived}

	// Step 3: best-effort temporary entry cleanup. A stray temp entry is a
	// recoverable inconsistency, not a failure.
	if result.TempEntryID != "" {
		if err := c.backend.DeleteEntry(ctx, result.TempEntryID); err != nil {
			c.logger.Warn("temporary entry cleanup failed",
				slog.String("entry_id", entryID),
				slog.String("temp_entry_id", result.TempEntryID),
				slog.String("error", err.Error()),
			)
			outcome.Warnings = append(outcome.Warnings, Warning{
				Code:    WarnPartialCleanup,
				Message: fmt.Sprintf("temporary entry %s was not deleted: %v", result.TempEntryID, err),
			})
		}
	}

	// Step 4: refresh the local catalog view.
	info, err := c.backend.FetchEntryInfo(ctx, entryID)
	if err != nil {
		c.logger.Warn("catalog refresh failed after replace",
			slog.String("entry_id", entryID),
			slog.String("error", err.Error()),
		)
		outcome.Warnings = append(outcome.Warnings, Warning{
			Code:    WarnRefreshFailed,
			Message: fmt.Sprintf("entry %s was replaced but the refreshed view could not be read: %v", entryID, err),
		})
		return outcome, nil
	}
	outcome.Entry = entryFromInfo(info)

	return outcome, nil
}

// UpdateMetadata issues a lightweight metadata-only update. No binary is
// uploaded and no temporary entry is created or deleted.
func (c *Coordinator) UpdateMetadata(ctx context.Context, entryID string, meta Metadata) (Entry, error) {
	if entryID == "" {
		return Entry{}, ErrEntryIDRequired
	}

	if err := c.backend.UpdateEntryMetadata(ctx, entryID, mediaserver.EntryMetadata{
		Title:       meta.Title,
		Description: meta.Description,
	}); err != nil {
		return Entry{}, fmt.Errorf("catalog: update metadata: %w", err)
	}

	info, err := c.backend.FetchEntryInfo(ctx, entryID)
	if err != nil {
		return Entry{}, fmt.Errorf("catalog: fetch entry: %w", err)
	}
	return entryFromInfo(info), nil
}

// uploadAndWait runs the upload-and-poll sequence and returns the confirmed
// result descriptor.
func (c *Coordinator) uploadAndWait(ctx context.Context, payload source.Payload, meta Metadata) (mediaserver.UploadResult, error) {
	uploadID, err := c.backend.UploadBinary(ctx, payload, mediaserver.UploadMetadata{
		Title:       meta.Title,
		Description: meta.Description,
		FileName:    payload.Name,
	})
	if err != nil {
		return mediaserver.UploadResult{}, fmt.Errorf("catalog: upload binary: %w", err)
	}

	job, err := c.poller.Wait(ctx, uploadID)
	if err != nil {
		return mediaserver.UploadResult{}, err
	}
	return *job.Result, nil
}

// deleteTemp removes a temporary entry, logging failures.
func (c *Coordinator) deleteTemp(ctx context.Context, tempEntryID string) {
	if tempEntryID == "" {
		return
	}
	if err := c.backend.DeleteEntry(ctx, tempEntryID); err != nil {
		c.logger.Warn("orphaned temporary entry could not be deleted",
			slog.String("temp_entry_id", tempEntryID),
			slog.String("error", err.Error()),
		)
	}
}
