// Package workflow provides the EditSessionService use case orchestrating
// the full edit-process-publish flow: source resolution, local or remote
// transformation, upload polling and catalog coordination.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/reelhire/mediaflow/internal/catalog"
	"github.com/reelhire/mediaflow/internal/mediaserver"
	"github.com/reelhire/mediaflow/internal/prefs"
	"github.com/reelhire/mediaflow/internal/session"
	"github.com/reelhire/mediaflow/internal/source"
	"github.com/reelhire/mediaflow/internal/storage"
	"github.com/reelhire/mediaflow/internal/transform"
	"github.com/reelhire/mediaflow/internal/upload"
)

// ErrNoProcessedOutput is returned when a publish or replace is requested
// for a session that has neither a processed output nor a resolvable source.
var ErrNoProcessedOutput = errors.New("workflow: session has no output or source to publish")

// SourceResolver fetches the binary payload behind a source reference.
type SourceResolver interface {
	Resolve(ctx context.Context, ref source.Ref) (source.Payload, error)
}

// Engine is the local transform port.
type Engine interface {
	Init(ctx context.Context) error
	Process(ctx context.Context, payload source.Payload, params session.Params, tier session.Tier) (transform.Result, error)
}

// Dispatcher submits a payload for server-side transformation.
type Dispatcher interface {
	DispatchTransform(ctx context.Context, payload source.Payload, params mediaserver.TransformParams) (string, error)
}

// Waiter drives an upload job to its terminal state, reporting progress.
type Waiter interface {
	WaitWithProgress(ctx context.Context, uploadID string, fn func(progress int)) (*upload.Job, error)
}

// Coordinator sequences catalog entry updates. The Confirmed variants take
// an upload the backend already completed instead of a payload to transfer.
type Coordinator interface {
	Publish(ctx context.Context, payload source.Payload, meta catalog.Metadata) (catalog.Entry, error)
	PublishConfirmed(ctx context.Context, result mediaserver.UploadResult, meta catalog.Metadata) (catalog.Entry, error)
	Replace(ctx context.Context, entryID string, payload source.Payload, meta catalog.Metadata) (catalog.ReplaceOutcome, error)
	ReplaceConfirmed(ctx context.Context, entryID string, result mediaserver.UploadResult, meta catalog.Metadata) (catalog.ReplaceOutcome, error)
	UpdateMetadata(ctx context.Context, entryID string, meta catalog.Metadata) (catalog.Entry, error)
}

// PrefStore loads persisted processing preferences.
type PrefStore interface {
	Load() (prefs.Preferences, error)
}

// Service orchestrates edit sessions end to end.
type Service struct {
	sessions    session.Repository
	resolver    SourceResolver
	engine      Engine
	dispatcher  Dispatcher
	waiter      Waiter
	coordinator Coordinator
	store       storage.Store
	prefs       PrefStore
	logger      *slog.Logger
}

// NewService creates a Service. The prefs store may be nil, in which case
// processing defaults to auto mode.
func NewService(
	sessions session.Repository,
	resolver SourceResolver,
	engine Engine,
	dispatcher Dispatcher,
	waiter Waiter,
	coordinator Coordinator,
	store storage.Store,
	prefStore PrefStore,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions:    sessions,
		resolver:    resolver,
		engine:      engine,
		dispatcher:  dispatcher,
		waiter:      waiter,
		coordinator: coordinator,
		store:       store,
		prefs:       prefStore,
		logger:      logger,
	}
}

// OpenSessionInput contains the parameters for opening an edit session.
type OpenSessionInput struct {
	Owner  string
	Tier   session.Tier
	Source source.Ref
	Params *session.Params
}

// OpenSession creates a new edit session and persists it.
func (s *Service) OpenSession(ctx context.Context, input OpenSessionInput) (*session.Session, error) {
	sess := session.New(input.Owner, input.Tier, input.Source)
	if input.Params != nil {
		if err := input.Params.Validate(); err != nil {
			return nil, err
		}
		sess.SetParams(*input.Params)
	}

	s.logger.Info("opening edit session",
		slog.String("session_id", sess.ID),
		slog.String("owner", input.Owner),
		slog.String("source_kind", string(input.Source.Kind)),
	)

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *Service) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return s.sessions.FindByID(ctx, id)
}

// UpdateParams replaces a session's edit parameters. In-flight processing
// keeps the parameter snapshot it started with.
func (s *Service) UpdateParams(ctx context.Context, id string, p session.Params) (*session.Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	sess, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.SetParams(p)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Process runs the transform for a session. The modeOverride, when set,
// takes precedence over the persisted preference. Auto mode tries the
// local engine first and falls back to remote dispatch when the engine is
// unavailable; the fallback is recorded as a session warning, never silent.
func (s *Service) Process(ctx context.Context, id string, modeOverride prefs.Mode) error {
	sess, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return err
	}

	params := sess.GetParams()
	if err := params.Validate(); err != nil {
		return err
	}

	if err := sess.StartProcessing(); err != nil {
		return err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return err
	}

	mode := s.resolveMode(modeOverride)

	payload, err := s.resolver.Resolve(ctx, sess.Source)
	if err != nil {
		return s.failSession(ctx, sess, fmt.Errorf("resolve source: %w", err))
	}

	switch mode {
	case prefs.ModeLocal:
		return s.processLocal(ctx, sess, payload, params)
	case prefs.ModeRemote:
		return s.processRemote(ctx, sess, payload, params)
	default:
		// Overlay, audio mix, and multi-segment composition only run in the
		// server-side pipeline; when the tier can use them, auto mode
		// dispatches there directly instead of degrading locally.
		if params.RequiresPremium() && sess.Tier == session.TierPremium {
			return s.processRemote(ctx, sess, payload, params)
		}
		if err := s.engine.Init(ctx); err != nil {
			if errors.Is(err, transform.ErrEngineUnavailable) {
				s.logger.Warn("local engine unavailable, dispatching remote",
					slog.String("session_id", sess.ID),
				)
				sess.AddWarning("local engine unavailable; processed remotely")
				return s.processRemote(ctx, sess, payload, params)
			}
			return s.failSession(ctx, sess, err)
		}
		return s.processLocal(ctx, sess, payload, params)
	}
}

func (s *Service) processLocal(ctx context.Context, sess *session.Session, payload source.Payload, params session.Params) error {
	if err := s.engine.Init(ctx); err != nil {
		return s.failSession(ctx, sess, err)
	}

	result, err := s.engine.Process(ctx, payload, params, sess.Tier)
	if err != nil {
		return s.failSession(ctx, sess, err)
	}

	for _, w := range result.Warnings {
		sess.AddWarning(w)
	}

	out := session.Output{
		Path:     result.OutputPath,
		Duration: result.Duration,
		Size:     int64(len(result.Data)),
	}

	// Mirror the output for a shareable preview when an archive bucket is
	// configured. The local path remains the canonical handle.
	if url, err := s.store.Archive(ctx, "previews/"+sess.ID+filepath.Ext(payload.Name), bytes.NewReader(result.Data)); err == nil {
		out.PreviewURL = url
	} else if !errors.Is(err, storage.ErrArchiveNotConfigured) {
		s.logger.Warn("preview mirror failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}

	return s.completeSession(ctx, sess, out)
}

func (s *Service) processRemote(ctx context.Context, sess *session.Session, payload source.Payload, params session.Params) error {
	uploadID, err := s.dispatcher.DispatchTransform(ctx, payload, mediaserver.TransformParamsFrom(params))
	if err != nil {
		return s.failSession(ctx, sess, fmt.Errorf("dispatch transform: %w", err))
	}

	job, err := s.waiter.WaitWithProgress(ctx, uploadID, func(progress int) {
		sess.UpdateProgress(progress)
		if err := s.sessions.Save(ctx, sess); err != nil {
			s.logger.Debug("progress update not persisted",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()),
			)
		}
	})
	if err != nil {
		return s.failSession(ctx, sess, err)
	}

	result := job.Result
	out := session.Output{
		PreviewURL:  result.URL,
		Duration:    result.Duration,
		Size:        result.Size,
		Thumbnail:   result.Thumbnail,
		TempEntryID: result.TempEntryID,
	}
	return s.completeSession(ctx, sess, out)
}

// Publish registers the session's processed result as a new catalog entry.
// A remote-processed output is already confirmed server-side, so its
// temporary entry is promoted in place; otherwise the best available payload
// is uploaded.
func (s *Service) Publish(ctx context.Context, id string, meta catalog.Metadata) (catalog.Entry, error) {
	sess, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return catalog.Entry{}, err
	}

	if result, ok := confirmedUpload(sess); ok {
		entry, err := s.coordinator.PublishConfirmed(ctx, result, meta)
		if err != nil {
			return catalog.Entry{}, err
		}
		// The temporary entry is now the published entry.
		s.clearTempEntry(ctx, sess)
		return entry, nil
	}

	payload, err := s.payloadForSession(ctx, sess)
	if err != nil {
		return catalog.Entry{}, err
	}
	return s.coordinator.Publish(ctx, payload, meta)
}

// Replace swaps a catalog entry's media for the session's processed result.
// A remote-processed output skips the redundant re-upload; its temporary
// entry is the one the coordinator cleans up. Coordinator warnings are
// surfaced on the session.
func (s *Service) Replace(ctx context.Context, id, entryID string, meta catalog.Metadata) (catalog.ReplaceOutcome, error) {
	sess, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return catalog.ReplaceOutcome{}, err
	}

	var outcome catalog.ReplaceOutcome
	if result, ok := confirmedUpload(sess); ok {
		outcome, err = s.coordinator.ReplaceConfirmed(ctx, entryID, result, meta)
		// The coordinator took ownership of the temporary entry either way:
		// deleted after a successful swap, removed best-effort on failure.
		s.clearTempEntry(ctx, sess)
		if err != nil {
			return catalog.ReplaceOutcome{}, err
		}
	} else {
		payload, err := s.payloadForSession(ctx, sess)
		if err != nil {
			return catalog.ReplaceOutcome{}, err
		}
		outcome, err = s.coordinator.Replace(ctx, entryID, payload, meta)
		if err != nil {
			return catalog.ReplaceOutcome{}, err
		}
	}

	for _, w := range outcome.Warnings {
		sess.AddWarning(w.Message)
	}
	if len(outcome.Warnings) > 0 {
		if err := s.sessions.Save(ctx, sess); err != nil {
			s.logger.Warn("failed to persist replace warnings",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return outcome, nil
}

// UpdateEntryMetadata performs a metadata-only catalog update.
func (s *Service) UpdateEntryMetadata(ctx context.Context, entryID string, meta catalog.Metadata) (catalog.Entry, error) {
	return s.coordinator.UpdateMetadata(ctx, entryID, meta)
}

// confirmedUpload returns the server-confirmed upload descriptor when the
// session was processed remotely: the backend already holds the asset under
// a temporary entry, so no bytes need to move again.
func confirmedUpload(sess *session.Session) (mediaserver.UploadResult, bool) {
	out := sess.Output
	if out == nil || out.TempEntryID == "" || out.PreviewURL == "" {
		return mediaserver.UploadResult{}, false
	}
	return mediaserver.UploadResult{
		URL:         out.PreviewURL,
		Duration:    out.Duration,
		Size:        out.Size,
		Thumbnail:   out.Thumbnail,
		TempEntryID: out.TempEntryID,
	}, true
}

// clearTempEntry drops the consumed temporary entry reference and persists
// the session.
func (s *Service) clearTempEntry(ctx context.Context, sess *session.Session) {
	sess.ClearTempEntry()
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Warn("failed to persist consumed temp entry",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
}

// payloadForSession returns the processed output when one exists, falling
// back to the original source reference.
func (s *Service) payloadForSession(ctx context.Context, sess *session.Session) (source.Payload, error) {
	out := sess.Output
	if out == nil {
		if sess.Source.Kind.IsValid() {
			return s.resolver.Resolve(ctx, sess.Source)
		}
		return source.Payload{}, ErrNoProcessedOutput
	}

	if out.Path != "" {
		r, err := s.store.Open(ctx, out.Path)
		if err != nil {
			return source.Payload{}, fmt.Errorf("workflow: open processed output: %w", err)
		}
		defer func() { _ = r.Close() }()

		data, err := io.ReadAll(r)
		if err != nil {
			return source.Payload{}, fmt.Errorf("workflow: read processed output: %w", err)
		}
		return source.Payload{Name: filepath.Base(out.Path), Data: data}, nil
	}

	if out.PreviewURL != "" {
		return s.resolver.Resolve(ctx, source.Ref{Kind: source.KindRemote, URL: out.PreviewURL})
	}

	if sess.Source.Kind.IsValid() {
		return s.resolver.Resolve(ctx, sess.Source)
	}
	return source.Payload{}, ErrNoProcessedOutput
}

func (s *Service) resolveMode(override prefs.Mode) prefs.Mode {
	if override != "" {
		return override
	}
	if s.prefs == nil {
		return prefs.ModeAuto
	}
	p, err := s.prefs.Load()
	if err != nil {
		s.logger.Warn("failed to load preferences, using auto mode",
			slog.String("error", err.Error()),
		)
		return prefs.ModeAuto
	}
	return p.ProcessingMode
}

func (s *Service) completeSession(ctx context.Context, sess *session.Session, out session.Output) error {
	if err := sess.CompleteWith(out); err != nil {
		return err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return err
	}
	s.logger.Info("session processing completed",
		slog.String("session_id", sess.ID),
		slog.Float64("duration", out.Duration),
	)
	return nil
}

func (s *Service) failSession(ctx context.Context, sess *session.Session, cause error) error {
	if err := sess.Fail(cause.Error()); err != nil {
		s.logger.Error("failed to mark session failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Error("failed to persist failed session",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Error("session processing failed",
		slog.String("session_id", sess.ID),
		slog.String("error", cause.Error()),
	)
	return cause
}
