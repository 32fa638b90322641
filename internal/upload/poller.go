package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reelhire/mediaflow/internal/mediaserver"
)

// Defaults for the polling policy: one-second ticks bounded at sixty
// attempts, a sixty-second ceiling.
const (
	DefaultInterval    = 1 * time.Second
	DefaultMaxAttempts = 60
)

// ErrUploadTimeout is returned when the poll ceiling is reached without a
// terminal status. The caller decides whether to retry from scratch; there
// is no partial-resume support.
var ErrUploadTimeout = errors.New("upload: polling ceiling reached without terminal status")

// ErrMissingResult is returned when the backend reports completion without a
// result descriptor. A completed job without a confirmed URL is unusable.
var ErrMissingResult = errors.New("upload: completed status carried no result")

// JobFailedError is returned when the backend explicitly reports job
// failure during polling.
type JobFailedError struct {
	UploadID string
	Message  string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upload: job %s failed", e.UploadID)
	}
	return fmt.Sprintf("upload: job %s failed: %s", e.UploadID, e.Message)
}

// StatusClient is the narrow port the poller needs from the backend client.
type StatusClient interface {
	PollUploadStatus(ctx context.Context, uploadID string) (mediaserver.PollStatus, error)
}

// Poller drives upload jobs to a terminal state.
type Poller struct {
	client      StatusClient
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
	onProgress  func(progress int)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the delay between polls.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts sets the poll ceiling.
func WithMaxAttempts(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithProgressFunc registers a callback invoked after each poll with the
// backend-reported progress percentage.
func WithProgressFunc(fn func(progress int)) PollerOption {
	return func(p *Poller) {
		p.onProgress = fn
	}
}

// NewPoller creates a Poller with the fixed 1-second / 60-attempt policy
// unless overridden by options.
func NewPoller(client StatusClient, logger *slog.Logger, opts ...PollerOption) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		client:      client,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait polls the job at the fixed interval until it completes, the backend
// reports failure, the attempt ceiling is reached, or the context ends.
// Transient poll errors are swallowed and retried; they still consume an
// attempt so a dead backend cannot stall the caller forever. The returned
// job is terminal and must not be polled again.
func (p *Poller) Wait(ctx context.Context, uploadID string) (*Job, error) {
	return p.WaitWithProgress(ctx, uploadID, p.onProgress)
}

// WaitWithProgress behaves like Wait but reports progress to fn after each
// successful poll. A nil fn disables reporting.
func (p *Poller) WaitWithProgress(ctx context.Context, uploadID string, fn func(progress int)) (*Job, error) {
	job := NewJob(uploadID)
	if err := job.TransitionTo(StatePolling); err != nil {
		return job, err
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return job, fmt.Errorf("upload: context cancelled: %w", ctx.Err())
		case <-time.After(p.interval):
		}

		status, err := p.client.PollUploadStatus(ctx, uploadID)
		if err != nil {
			// Network blips are expected; keep polling.
			job.recordPoll(-1)
			p.logger.Debug("poll attempt failed",
				slog.String("upload_id", uploadID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}

		job.recordPoll(status.Progress)
		if fn != nil {
			fn(status.Progress)
		}

		switch status.Status {
		case mediaserver.StatusCompleted:
			if status.Result == nil {
				_ = job.fail("completed status carried no result")
				return job, fmt.Errorf("upload: job %s: %w", uploadID, ErrMissingResult)
			}
			if err := job.complete(*status.Result); err != nil {
				return job, err
			}
			p.logger.Info("upload completed",
				slog.String("upload_id", uploadID),
				slog.Int("attempts", job.Attempts),
			)
			return job, nil

		case mediaserver.StatusFailed:
			if err := job.fail(status.Error); err != nil {
				return job, err
			}
			return job, &JobFailedError{UploadID: uploadID, Message: status.Error}

		case mediaserver.StatusPending, mediaserver.StatusProcessing:
			// Not terminal yet; next tick.
		}
	}

	if err := job.TransitionTo(StateTimedOut); err != nil {
		return job, err
	}
	p.logger.Warn("upload timed out",
		slog.String("upload_id", uploadID),
		slog.Int("attempts", job.Attempts),
	)
	return job, ErrUploadTimeout
}
