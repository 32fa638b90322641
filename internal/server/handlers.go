package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/reelhire/mediaflow/internal/catalog"
	"github.com/reelhire/mediaflow/internal/prefs"
	"github.com/reelhire/mediaflow/internal/session"
	"github.com/reelhire/mediaflow/internal/workflow"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *workflow.Service
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, Process runs the transform synchronously before
// responding, which keeps handler tests deterministic.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *workflow.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// OpenSession handles POST /sessions requests.
func (h *Handlers) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	tier := session.TierStandard
	if req.Tier != "" {
		tier = session.Tier(req.Tier)
	}

	input := workflow.OpenSessionInput{
		Owner:  req.Owner,
		Tier:   tier,
		Source: sourceFromDTO(req.Source),
	}
	if req.Params != nil {
		p := paramsFromDTO(*req.Params)
		input.Params = &p
	}

	sess, err := h.service.OpenSession(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err, "SESSION_CREATE_FAILED")
		return
	}

	h.logger.Info("session opened",
		slog.String("session_id", sess.ID),
		slog.String("owner", req.Owner),
	)
	writeJSON(w, http.StatusCreated, sessionToResponse(sess))
}

// GetSession handles GET /sessions/{id} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.findSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionToResponse(sess))
}

// UpdateParams handles PATCH /sessions/{id}/params requests.
func (h *Handlers) UpdateParams(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session ID is required", "MISSING_SESSION_ID")
		return
	}

	var req ParamsDTO
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	sess, err := h.service.UpdateParams(r.Context(), sessionID, paramsFromDTO(req))
	if err != nil {
		h.writeServiceError(w, err, "PARAMS_UPDATE_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, sessionToResponse(sess))
}

// Process handles POST /sessions/{id}/process requests. The transform runs
// in the background; its outcome is observable through GET /sessions/{id}.
func (h *Handlers) Process(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.findSession(w, r)
	if !ok {
		return
	}

	var req ProcessRequest
	if r.ContentLength > 0 {
		if !h.decodeAndValidate(w, r, &req) {
			return
		}
	}

	mode, err := prefs.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_MODE")
		return
	}

	if h.enableAsyncProcess {
		// Detach from the request context so the transform survives the
		// response being written.
		go func(ctx context.Context, sessionID string, m prefs.Mode) {
			if processErr := h.service.Process(ctx, sessionID, m); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("session_id", sessionID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), sess.ID, mode)
	} else {
		if processErr := h.service.Process(r.Context(), sess.ID, mode); processErr != nil {
			h.writeServiceError(w, processErr, "PROCESSING_FAILED")
			return
		}
	}

	current, err := h.service.GetSession(r.Context(), sess.ID)
	if err != nil {
		h.writeServiceError(w, err, "SESSION_FETCH_FAILED")
		return
	}
	writeJSON(w, http.StatusAccepted, sessionToResponse(current))
}

// Publish handles POST /sessions/{id}/publish requests.
func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.findSession(w, r)
	if !ok {
		return
	}

	var req MetadataRequest
	if r.ContentLength > 0 {
		if !h.decodeAndValidate(w, r, &req) {
			return
		}
	}

	entry, err := h.service.Publish(r.Context(), sess.ID, catalog.Metadata{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.writeServiceError(w, err, "PUBLISH_FAILED")
		return
	}

	h.logger.Info("session published",
		slog.String("session_id", sess.ID),
		slog.String("entry_id", entry.ID),
	)
	writeJSON(w, http.StatusCreated, entryToResponse(entry))
}

// Replace handles POST /sessions/{id}/replace/{entryId} requests.
func (h *Handlers) Replace(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.findSession(w, r)
	if !ok {
		return
	}
	entryID := r.PathValue("entryId")
	if entryID == "" {
		writeError(w, http.StatusBadRequest, "entry ID is required", "MISSING_ENTRY_ID")
		return
	}

	var req MetadataRequest
	if r.ContentLength > 0 {
		if !h.decodeAndValidate(w, r, &req) {
			return
		}
	}

	outcome, err := h.service.Replace(r.Context(), sess.ID, entryID, catalog.Metadata{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.writeServiceError(w, err, "REPLACE_FAILED")
		return
	}

	resp := ReplaceResponse{
		Entry:                entryToResponse(outcome.Entry),
		ArchivedPriorVersion: outcome.ArchivedPrior,
	}
	for _, warn := range outcome.Warnings {
		resp.Warnings = append(resp.Warnings, warn.Message)
	}

	h.logger.Info("entry media replaced",
		slog.String("session_id", sess.ID),
		slog.String("entry_id", entryID),
		slog.Bool("archived_prior", outcome.ArchivedPrior),
	)
	writeJSON(w, http.StatusOK, resp)
}

// UpdateEntry handles PATCH /entries/{entryId} requests.
func (h *Handlers) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("entryId")
	if entryID == "" {
		writeError(w, http.StatusBadRequest, "entry ID is required", "MISSING_ENTRY_ID")
		return
	}

	var req MetadataRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	entry, err := h.service.UpdateEntryMetadata(r.Context(), entryID, catalog.Metadata{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.writeServiceError(w, err, "ENTRY_UPDATE_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, entryToResponse(entry))
}

// findSession resolves the {id} path value to a session, writing the error
// response when it cannot.
func (h *Handlers) findSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session ID is required", "MISSING_SESSION_ID")
		return nil, false
	}

	sess, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, err, "SESSION_FETCH_FAILED")
		return nil, false
	}
	return sess, true
}

// decodeAndValidate decodes the JSON body into dst and validates it,
// writing the error response on failure.
func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeServiceError maps domain errors onto HTTP status codes.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, fallbackCode string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	case errors.Is(err, session.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_STATE")
	case errors.Is(err, session.ErrUnsupportedRotation),
		errors.Is(err, session.ErrInvalidTrim),
		errors.Is(err, session.ErrInvalidSpeed),
		errors.Is(err, session.ErrInvalidSegment),
		errors.Is(err, session.ErrInvalidOpacity):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PARAMS")
	case errors.Is(err, prefs.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_MODE")
	default:
		h.logger.Error("request failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error(), fallbackCode)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
