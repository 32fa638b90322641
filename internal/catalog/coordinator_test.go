package catalog

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/reelhire/mediaflow/internal/mediaserver"
	"github.com/reelhire/mediaflow/internal/source"
	"github.com/reelhire/mediaflow/internal/upload"
)

// fakeBackend records every call so tests can assert the exact sequence.
type fakeBackend struct {
	uploadCalls   int
	uploadErr     error
	replaceCalls  []mediaserver.MediaUpdate
	replaceErr    error
	metadataCalls []string
	metadataErr   error
	deleteCalls   []string
	deleteErr     error
	entries       map[string]mediaserver.EntryInfo
	fetchErr      error
}

func (f *fakeBackend) UploadBinary(_ context.Context, _ source.Payload, _ mediaserver.UploadMetadata) (string, error) {
	f.uploadCalls++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "up-1", nil
}

func (f *fakeBackend) ReplaceEntryMedia(_ context.Context, entryID string, update mediaserver.MediaUpdate) (bool, error) {
	if f.replaceErr != nil {
		return false, f.replaceErr
	}
	f.replaceCalls = append(f.replaceCalls, update)
	if e, ok := f.entries[entryID]; ok {
		e.URL = update.NewURL
		f.entries[entryID] = e
	}
	return true, nil
}

func (f *fakeBackend) UpdateEntryMetadata(_ context.Context, entryID string, _ mediaserver.EntryMetadata) error {
	f.metadataCalls = append(f.metadataCalls, entryID)
	return f.metadataErr
}

func (f *fakeBackend) DeleteEntry(_ context.Context, entryID string) error {
	f.deleteCalls = append(f.deleteCalls, entryID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.entries, entryID)
	return nil
}

func (f *fakeBackend) FetchEntryInfo(_ context.Context, entryID string) (mediaserver.EntryInfo, error) {
	if f.fetchErr != nil {
		return mediaserver.EntryInfo{}, f.fetchErr
	}
	e, ok := f.entries[entryID]
	if !ok {
		return mediaserver.EntryInfo{}, errors.New("entry not found")
	}
	return e, nil
}

// fakeWaiter resolves every upload immediately with the scripted result.
type fakeWaiter struct {
	result mediaserver.UploadResult
	err    error
	calls  int
}

func (f *fakeWaiter) Wait(_ context.Context, uploadID string) (*upload.Job, error) {
	f.calls++
	if f.err != nil {
		return upload.NewJob(uploadID), f.err
	}
	job := upload.NewJob(uploadID)
	job.Result = &f.result
	return job, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newReplaceFixture() (*fakeBackend, *fakeWaiter, *Coordinator) {
	backend := &fakeBackend{entries: map[string]mediaserver.EntryInfo{
		"e-1":   {ID: "e-1", Title: "Old reel", URL: "https://cdn.example.com/v/old.mp4"},
		"tmp-1": {ID: "tmp-1", URL: "https://cdn.example.com/v/new.mp4"},
	}}
	waiter := &fakeWaiter{result: mediaserver.UploadResult{
		URL:         "https://cdn.example.com/v/new.mp4",
		Duration:    15,
		Size:        2048,
		TempEntryID: "tmp-1",
	}}
	return backend, waiter, NewCoordinator(backend, waiter, testLogger())
}

func testClipPayload() source.Payload {
	return source.Payload{Name: "clip.mp4", Data: []byte("bytes")}
}

func TestReplace_RepointsEntryAndDeletesTemp(t *testing.T) {
	backend, waiter, coord := newReplaceFixture()

	outcome, err := coord.Replace(context.Background(), "e-1", testClipPayload(), Metadata{Title: "New reel"})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if waiter.calls != 1 {
		t.Errorf("poll waits = %d, want 1", waiter.calls)
	}
	if len(backend.replaceCalls) != 1 {
		t.Fatalf("replace calls = %d, want 1", len(backend.replaceCalls))
	}
	if backend.replaceCalls[0].NewURL != "https://cdn.example.com/v/new.mp4" {
		t.Errorf("replace URL = %q, want confirmed upload URL", backend.replaceCalls[0].NewURL)
	}
	if outcome.Entry.PlaybackURL != "https://cdn.example.com/v/new.mp4" {
		t.Errorf("entry playback URL = %q, want new asset URL", outcome.Entry.PlaybackURL)
	}
	if !outcome.ArchivedPrior {
		t.Error("expected archived prior version")
	}

	// The temporary upload entry must no longer be queryable.
	if len(backend.deleteCalls) != 1 || backend.deleteCalls[0] != "tmp-1" {
		t.Errorf("delete calls = %v, want [tmp-1]", backend.deleteCalls)
	}
	if _, ok := backend.entries["tmp-1"]; ok {
		t.Error("temporary entry still queryable after replace")
	}
	if len(outcome.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", outcome.Warnings)
	}
}

func TestReplace_TempDeleteFailureIsWarningNotError(t *testing.T) {
	backend, _, coord := newReplaceFixture()
	backend.deleteErr = errors.New("backend hiccup")

	outcome, err := coord.Replace(context.Background(), "e-1", testClipPayload(), Metadata{})
	if err != nil {
		t.Fatalf("replace must still succeed when cleanup fails, got %v", err)
	}

	if len(outcome.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", outcome.Warnings)
	}
	if outcome.Warnings[0].Code != WarnPartialCleanup {
		t.Errorf("warning code = %q, want %q", outcome.Warnings[0].Code, WarnPartialCleanup)
	}
	if outcome.Entry.PlaybackURL != "https://cdn.example.com/v/new.mp4" {
		t.Errorf("entry should still point at the new asset, got %q", outcome.Entry.PlaybackURL)
	}
}

func TestReplace_UploadFailureAbortsCleanly(t *testing.T) {
	backend, waiter, coord := newReplaceFixture()
	waiter.err = upload.ErrUploadTimeout

	_, err := coord.Replace(context.Background(), "e-1", testClipPayload(), Metadata{})
	if !errors.Is(err, upload.ErrUploadTimeout) {
		t.Fatalf("expected ErrUploadTimeout, got %v", err)
	}

	// Nothing in the visible catalog may have been touched.
	if len(backend.replaceCalls) != 0 {
		t.Error("replace must not run after a failed upload")
	}
	if got := backend.entries["e-1"].URL; got != "https://cdn.example.com/v/old.mp4" {
		t.Errorf("entry URL changed to %q after aborted replace", got)
	}
}

func TestReplace_ReplaceFailureCleansUpTemp(t *testing.T) {
	backend, _, coord := newReplaceFixture()
	backend.replaceErr = errors.New("conflict")

	_, err := coord.Replace(context.Background(), "e-1", testClipPayload(), Metadata{})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(backend.deleteCalls) != 1 || backend.deleteCalls[0] != "tmp-1" {
		t.Errorf("orphaned temp entry should be deleted best-effort, calls = %v", backend.deleteCalls)
	}
}

func TestReplaceConfirmed_SkipsUploadAndDeletesTemp(t *testing.T) {
	backend, waiter, coord := newReplaceFixture()

	outcome, err := coord.ReplaceConfirmed(context.Background(), "e-1", mediaserver.UploadResult{
		URL:         "https://cdn.example.com/v/new.mp4",
		Duration:    15,
		Size:        2048,
		TempEntryID: "tmp-1",
	}, Metadata{Title: "New reel"})
	if err != nil {
		t.Fatalf("ReplaceConfirmed() error = %v", err)
	}

	// The asset is already confirmed; no second upload-and-poll round.
	if backend.uploadCalls != 0 {
		t.Errorf("upload calls = %d, want 0", backend.uploadCalls)
	}
	if waiter.calls != 0 {
		t.Errorf("poll waits = %d, want 0", waiter.calls)
	}

	if len(backend.replaceCalls) != 1 || backend.replaceCalls[0].NewURL != "https://cdn.example.com/v/new.mp4" {
		t.Errorf("replace calls = %+v, want one swap to the confirmed URL", backend.replaceCalls)
	}
	if len(backend.deleteCalls) != 1 || backend.deleteCalls[0] != "tmp-1" {
		t.Errorf("delete calls = %v, want [tmp-1]", backend.deleteCalls)
	}
	if _, ok := backend.entries["tmp-1"]; ok {
		t.Error("temporary entry still queryable after confirmed replace")
	}
	if outcome.Entry.PlaybackURL != "https://cdn.example.com/v/new.mp4" {
		t.Errorf("entry playback URL = %q, want new asset URL", outcome.Entry.PlaybackURL)
	}
}

func TestPublishConfirmed_PromotesTempEntry(t *testing.T) {
	backend, waiter, coord := newReplaceFixture()

	entry, err := coord.PublishConfirmed(context.Background(), mediaserver.UploadResult{
		URL:         "https://cdn.example.com/v/new.mp4",
		TempEntryID: "tmp-1",
	}, Metadata{Title: "Fresh"})
	if err != nil {
		t.Fatalf("PublishConfirmed() error = %v", err)
	}

	if backend.uploadCalls != 0 || waiter.calls != 0 {
		t.Errorf("uploads = %d, waits = %d, want 0/0", backend.uploadCalls, waiter.calls)
	}
	if len(backend.metadataCalls) != 1 || backend.metadataCalls[0] != "tmp-1" {
		t.Errorf("metadata calls = %v, want [tmp-1]", backend.metadataCalls)
	}
	if entry.ID != "tmp-1" {
		t.Errorf("entry ID = %q, want tmp-1", entry.ID)
	}
}

func TestPublishConfirmed_NoTempEntry(t *testing.T) {
	_, _, coord := newReplaceFixture()

	_, err := coord.PublishConfirmed(context.Background(), mediaserver.UploadResult{
		URL: "https://cdn.example.com/v/x.mp4",
	}, Metadata{})
	if !errors.Is(err, ErrNoEntryCreated) {
		t.Errorf("expected ErrNoEntryCreated, got %v", err)
	}
}

func TestUpdateMetadata_NoUploadJob(t *testing.T) {
	backend, waiter, coord := newReplaceFixture()

	entry, err := coord.UpdateMetadata(context.Background(), "e-1", Metadata{Title: "Renamed"})
	if err != nil {
		t.Fatalf("UpdateMetadata() error = %v", err)
	}

	if backend.uploadCalls != 0 {
		t.Errorf("metadata-only update created %d upload jobs, want 0", backend.uploadCalls)
	}
	if waiter.calls != 0 {
		t.Errorf("metadata-only update polled %d times, want 0", waiter.calls)
	}
	if len(backend.deleteCalls) != 0 {
		t.Errorf("metadata-only update deleted entries: %v", backend.deleteCalls)
	}
	if entry.ID != "e-1" {
		t.Errorf("entry ID = %q, want e-1", entry.ID)
	}
}

func TestPublish_AppliesMetadataToCreatedEntry(t *testing.T) {
	backend, _, coord := newReplaceFixture()

	entry, err := coord.Publish(context.Background(), testClipPayload(), Metadata{Title: "Fresh"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(backend.metadataCalls) != 1 || backend.metadataCalls[0] != "tmp-1" {
		t.Errorf("metadata calls = %v, want [tmp-1]", backend.metadataCalls)
	}
	if entry.ID != "tmp-1" {
		t.Errorf("entry ID = %q, want tmp-1", entry.ID)
	}
}

func TestPublish_NoEntryCreated(t *testing.T) {
	backend := &fakeBackend{entries: map[string]mediaserver.EntryInfo{}}
	waiter := &fakeWaiter{result: mediaserver.UploadResult{URL: "https://cdn.example.com/v/x.mp4"}}
	coord := NewCoordinator(backend, waiter, testLogger())

	_, err := coord.Publish(context.Background(), testClipPayload(), Metadata{})
	if !errors.Is(err, ErrNoEntryCreated) {
		t.Errorf("expected ErrNoEntryCreated, got %v", err)
	}
}
