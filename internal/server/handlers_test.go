package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelhire/mediaflow/internal/catalog"
	"github.com/reelhire/mediaflow/internal/mediaserver"
	"github.com/reelhire/mediaflow/internal/prefs"
	"github.com/reelhire/mediaflow/internal/session"
	"github.com/reelhire/mediaflow/internal/source"
	"github.com/reelhire/mediaflow/internal/transform"
	"github.com/reelhire/mediaflow/internal/upload"
	"github.com/reelhire/mediaflow/internal/workflow"
)

// stubResolver returns a fixed payload for any reference.
type stubResolver struct {
	payload source.Payload
	err     error
}

func (s *stubResolver) Resolve(_ context.Context, _ source.Ref) (source.Payload, error) {
	if s.err != nil {
		return source.Payload{}, s.err
	}
	return s.payload, nil
}

type stubEngine struct {
	initErr error
	result  transform.Result
}

func (s *stubEngine) Init(_ context.Context) error { return s.initErr }

func (s *stubEngine) Process(_ context.Context, _ source.Payload, _ session.Params, _ session.Tier) (transform.Result, error) {
	return s.result, nil
}

type stubDispatcher struct {
	uploadID string
}

func (s *stubDispatcher) DispatchTransform(_ context.Context, _ source.Payload, _ mediaserver.TransformParams) (string, error) {
	return s.uploadID, nil
}

type stubWaiter struct {
	result mediaserver.UploadResult
}

func (s *stubWaiter) WaitWithProgress(_ context.Context, uploadID string, _ func(int)) (*upload.Job, error) {
	job := upload.NewJob(uploadID)
	job.Result = &s.result
	return job, nil
}

type stubCoordinator struct {
	entry   catalog.Entry
	outcome catalog.ReplaceOutcome
	err     error
}

func (s *stubCoordinator) Publish(_ context.Context, _ source.Payload, _ catalog.Metadata) (catalog.Entry, error) {
	return s.entry, s.err
}

func (s *stubCoordinator) PublishConfirmed(_ context.Context, _ mediaserver.UploadResult, _ catalog.Metadata) (catalog.Entry, error) {
	return s.entry, s.err
}

func (s *stubCoordinator) Replace(_ context.Context, _ string, _ source.Payload, _ catalog.Metadata) (catalog.ReplaceOutcome, error) {
	return s.outcome, s.err
}

func (s *stubCoordinator) ReplaceConfirmed(_ context.Context, _ string, _ mediaserver.UploadResult, _ catalog.Metadata) (catalog.ReplaceOutcome, error) {
	return s.outcome, s.err
}

func (s *stubCoordinator) UpdateMetadata(_ context.Context, _ string, _ catalog.Metadata) (catalog.Entry, error) {
	return s.entry, s.err
}

type stubStore struct {
	files map[string][]byte
}

func (s *stubStore) Stage(_ context.Context, name string, data io.Reader) (string, error) {
	b, _ := io.ReadAll(data)
	if s.files == nil {
		s.files = map[string][]byte{}
	}
	path := "/staged/" + name
	s.files[path] = b
	return path, nil
}

func (s *stubStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := s.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *stubStore) Discard(_ context.Context, _ []string) error { return nil }

func (s *stubStore) Archive(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", nil
}

type stubPrefs struct{ mode prefs.Mode }

func (s *stubPrefs) Load() (prefs.Preferences, error) {
	return prefs.Preferences{ProcessingMode: s.mode}, nil
}

type handlerFixture struct {
	repo        *session.MemoryRepository
	coordinator *stubCoordinator
	router      http.Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	repo := session.NewMemoryRepository()
	coordinator := &stubCoordinator{
		entry: catalog.Entry{ID: "e-1", Title: "Reel", PlaybackURL: "https://cdn.example.com/v/e-1.mp4"},
		outcome: catalog.ReplaceOutcome{
			Entry:         catalog.Entry{ID: "e-1", PlaybackURL: "https://cdn.example.com/v/new.mp4"},
			ArchivedPrior: true,
		},
	}
	store := &stubStore{files: map[string][]byte{"/staged/out.mp4": []byte("processed")}}

	svc := workflow.NewService(
		repo,
		&stubResolver{payload: source.Payload{Name: "reel.mp4", Data: []byte("source")}},
		&stubEngine{result: transform.Result{OutputPath: "/staged/out.mp4", Data: []byte("processed"), Duration: 10}},
		&stubDispatcher{uploadID: "up-1"},
		&stubWaiter{result: mediaserver.UploadResult{URL: "https://cdn.example.com/v/out.mp4", TempEntryID: "tmp-1"}},
		coordinator,
		store,
		&stubPrefs{mode: prefs.ModeAuto},
		logger,
	)

	h := NewHandlers(svc, logger, WithAsyncProcessing(false))
	return &handlerFixture{
		repo:        repo,
		coordinator: coordinator,
		router:      NewRouter(h, logger, DefaultConfig()),
	}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) openSession(t *testing.T) SessionResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/sessions", OpenSessionRequest{
		Owner:  "u-1",
		Source: SourceDTO{Kind: "local", Path: "/videos/reel.mp4"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestOpenSession(t *testing.T) {
	f := newHandlerFixture(t)

	t.Run("creates session with defaults", func(t *testing.T) {
		resp := f.openSession(t)

		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, "IDLE", resp.Status)
		assert.Equal(t, "standard", resp.Tier)
		assert.Equal(t, float64(1), resp.Params.Speed)
	})

	t.Run("accepts initial params", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/sessions", OpenSessionRequest{
			Owner:  "u-1",
			Tier:   "premium",
			Source: SourceDTO{Kind: "catalog", EntryID: "e-1"},
			Params: &ParamsDTO{Rotation: 90, Speed: 2},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp SessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "premium", resp.Tier)
		assert.Equal(t, 90, resp.Params.Rotation)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_JSON")
	})

	t.Run("rejects missing owner", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/sessions", OpenSessionRequest{
			Source: SourceDTO{Kind: "local", Path: "/videos/reel.mp4"},
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
	})

	t.Run("rejects unsupported rotation", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/sessions", OpenSessionRequest{
			Owner:  "u-1",
			Source: SourceDTO{Kind: "local", Path: "/videos/reel.mp4"},
			Params: &ParamsDTO{Rotation: 45},
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetSession(t *testing.T) {
	f := newHandlerFixture(t)

	t.Run("returns existing session", func(t *testing.T) {
		created := f.openSession(t)
		rec := f.do(t, http.MethodGet, "/sessions/"+created.ID, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp SessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, created.ID, resp.ID)
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/sessions/sess-unknown", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "SESSION_NOT_FOUND")
	})
}

func TestUpdateParams(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.openSession(t)

	t.Run("replaces params", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/sessions/"+created.ID+"/params", ParamsDTO{
			TrimStart: 5,
			TrimEnd:   20,
			Speed:     2,
		})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp SessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, float64(5), resp.Params.TrimStart)
		assert.Equal(t, float64(2), resp.Params.Speed)
	})

	t.Run("partial filters keep identity values", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/sessions/"+created.ID+"/params",
			json.RawMessage(`{"filters":{"brightness":10}}`))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp SessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Params.Filters)
		require.NotNil(t, resp.Params.Filters.Brightness)
		assert.Equal(t, float64(10), *resp.Params.Filters.Brightness)
		require.NotNil(t, resp.Params.Filters.Contrast)
		assert.Equal(t, float64(100), *resp.Params.Filters.Contrast)
		require.NotNil(t, resp.Params.Filters.Saturation)
		assert.Equal(t, float64(100), *resp.Params.Filters.Saturation)
	})

	t.Run("rejects invalid rotation", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/sessions/"+created.ID+"/params", ParamsDTO{Rotation: 45, Speed: 1})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		rec := f.do(t, http.MethodPatch, "/sessions/sess-unknown/params", ParamsDTO{Speed: 1})

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestProcess(t *testing.T) {
	f := newHandlerFixture(t)

	t.Run("accepted and observable via session", func(t *testing.T) {
		created := f.openSession(t)
		rec := f.do(t, http.MethodPost, "/sessions/"+created.ID+"/process", ProcessRequest{Mode: "local"})

		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		var resp SessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "READY", resp.Status)
		require.NotNil(t, resp.Output)
		assert.Equal(t, float64(10), resp.Output.Duration)
	})

	t.Run("no body defaults to preference", func(t *testing.T) {
		created := f.openSession(t)
		rec := f.do(t, http.MethodPost, "/sessions/"+created.ID+"/process", nil)

		assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	})

	t.Run("invalid mode rejected", func(t *testing.T) {
		created := f.openSession(t)
		rec := f.do(t, http.MethodPost, "/sessions/"+created.ID+"/process", ProcessRequest{Mode: "gpu"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/sessions/sess-unknown/process", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPublish(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.openSession(t)

	rec := f.do(t, http.MethodPost, "/sessions/"+created.ID+"/publish", MetadataRequest{Title: "Reel"})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp EntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "e-1", resp.ID)
}

func TestReplace(t *testing.T) {
	f := newHandlerFixture(t)

	t.Run("returns refreshed entry", func(t *testing.T) {
		created := f.openSession(t)
		rec := f.do(t, http.MethodPost, "/sessions/"+created.ID+"/replace/e-1", MetadataRequest{Title: "New reel"})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp ReplaceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.ArchivedPriorVersion)
		assert.Equal(t, "https://cdn.example.com/v/new.mp4", resp.Entry.PlaybackURL)
	})

	t.Run("cleanup warnings surface in response", func(t *testing.T) {
		f.coordinator.outcome.Warnings = []catalog.Warning{
			{Code: catalog.WarnPartialCleanup, Message: "temporary entry tmp-1 was not deleted: backend hiccup"},
		}
		defer func() { f.coordinator.outcome.Warnings = nil }()

		created := f.openSession(t)
		rec := f.do(t, http.MethodPost, "/sessions/"+created.ID+"/replace/e-1", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ReplaceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Warnings, 1)
		assert.Contains(t, resp.Warnings[0], "tmp-1")
	})
}

func TestUpdateEntry(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPatch, "/entries/e-1", MetadataRequest{Title: "Renamed"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp EntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "e-1", resp.ID)
}
