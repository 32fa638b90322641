package upload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/reelhire/mediaflow/internal/mediaserver"
)

// scriptedClient returns one scripted response per poll, in order.
// The last entry repeats once the script is exhausted.
type scriptedClient struct {
	script []scriptStep
	calls  int
}

type scriptStep struct {
	status mediaserver.PollStatus
	err    error
}

func (s *scriptedClient) PollUploadStatus(_ context.Context, _ string) (mediaserver.PollStatus, error) {
	i := s.calls
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.calls++
	step := s.script[i]
	return step.status, step.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastPoller(c StatusClient, opts ...PollerOption) *Poller {
	base := []PollerOption{WithInterval(time.Millisecond)}
	return NewPoller(c, testLogger(), append(base, opts...)...)
}

func completedStatus() mediaserver.PollStatus {
	return mediaserver.PollStatus{
		Status:   mediaserver.StatusCompleted,
		Progress: 100,
		Result: &mediaserver.UploadResult{
			URL:         "https://cdn.example.com/v/out.mp4",
			Duration:    15,
			Size:        2048,
			Thumbnail:   "https://cdn.example.com/t/out.jpg",
			TempEntryID: "tmp-1",
		},
	}
}

func TestWait_CompletesAfterExactPollCount(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{status: mediaserver.PollStatus{Status: mediaserver.StatusPending, Progress: 0}},
		{status: mediaserver.PollStatus{Status: mediaserver.StatusProcessing, Progress: 40}},
		{status: mediaserver.PollStatus{Status: mediaserver.StatusProcessing, Progress: 80}},
		{status: completedStatus()},
	}}

	job, err := fastPoller(client).Wait(context.Background(), "up-1")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if client.calls != 4 {
		t.Errorf("polls = %d, want exactly 4", client.calls)
	}
	if job.State != StateCompleted {
		t.Errorf("state = %s, want COMPLETED", job.State)
	}
	if job.Result == nil || job.Result.URL != "https://cdn.example.com/v/out.mp4" {
		t.Errorf("result descriptor not returned: %+v", job.Result)
	}
	if job.Result.Duration != 15 || job.Result.Size != 2048 {
		t.Errorf("result fields lost: %+v", job.Result)
	}
}

func TestWait_TimesOutAtCeiling(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{status: mediaserver.PollStatus{Status: mediaserver.StatusProcessing, Progress: 50}},
	}}

	done := make(chan struct{})
	var job *Job
	var err error
	go func() {
		job, err = fastPoller(client, WithMaxAttempts(60)).Wait(context.Background(), "up-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait() hung instead of timing out")
	}

	if !errors.Is(err, ErrUploadTimeout) {
		t.Fatalf("expected ErrUploadTimeout, got %v", err)
	}
	if job.State != StateTimedOut {
		t.Errorf("state = %s, want TIMED_OUT", job.State)
	}
	if client.calls != 60 {
		t.Errorf("polls = %d, want the 60-attempt ceiling", client.calls)
	}
}

func TestWait_ExplicitFailureTerminatesImmediately(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{status: mediaserver.PollStatus{Status: mediaserver.StatusProcessing, Progress: 10}},
		{status: mediaserver.PollStatus{Status: mediaserver.StatusFailed, Error: "encode rejected"}},
	}}

	job, err := fastPoller(client).Wait(context.Background(), "up-1")

	var failed *JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected *JobFailedError, got %v", err)
	}
	if failed.Message != "encode rejected" {
		t.Errorf("Message = %q, want backend message", failed.Message)
	}
	if job.State != StateFailed {
		t.Errorf("state = %s, want FAILED", job.State)
	}
	if client.calls != 2 {
		t.Errorf("polls = %d, want 2 (terminate on explicit failure)", client.calls)
	}
}

func TestWait_CompletedWithoutResultIsInvalid(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{status: mediaserver.PollStatus{Status: mediaserver.StatusCompleted, Progress: 100}},
	}}

	job, err := fastPoller(client).Wait(context.Background(), "up-1")
	if !errors.Is(err, ErrMissingResult) {
		t.Fatalf("expected ErrMissingResult, got %v", err)
	}
	if job.State != StateFailed {
		t.Errorf("state = %s, want FAILED", job.State)
	}
	if job.Result != nil {
		t.Errorf("result = %+v, want nil", job.Result)
	}
}

func TestWait_SwallowsTransientErrors(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{status: completedStatus()},
	}}

	job, err := fastPoller(client).Wait(context.Background(), "up-1")
	if err != nil {
		t.Fatalf("transient errors must be retried, got %v", err)
	}
	if job.State != StateCompleted {
		t.Errorf("state = %s, want COMPLETED", job.State)
	}
	if client.calls != 3 {
		t.Errorf("polls = %d, want 3", client.calls)
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{status: mediaserver.PollStatus{Status: mediaserver.StatusProcessing}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPoller(client, testLogger(), WithInterval(time.Hour)).Wait(ctx, "up-1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWait_ReportsProgress(t *testing.T) {
	client := &scriptedClient{script: []scriptStep{
		{status: mediaserver.PollStatus{Status: mediaserver.StatusProcessing, Progress: 30}},
		{status: mediaserver.PollStatus{Status: mediaserver.StatusProcessing, Progress: 70}},
		{status: completedStatus()},
	}}

	var seen []int
	poller := fastPoller(client, WithProgressFunc(func(p int) { seen = append(seen, p) }))
	if _, err := poller.Wait(context.Background(), "up-1"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	want := []int{30, 70, 100}
	if len(seen) != len(want) {
		t.Fatalf("progress reports = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("progress[%d] = %d, want %d", i, seen[i], want[i])
		}
	}
}

func TestJob_TerminalStatesAreFinal(t *testing.T) {
	job := NewJob("up-1")
	if err := job.TransitionTo(StatePolling); err != nil {
		t.Fatalf("TransitionTo(POLLING) error = %v", err)
	}
	if err := job.complete(mediaserver.UploadResult{URL: "https://cdn.example.com/v/x.mp4"}); err != nil {
		t.Fatalf("complete() error = %v", err)
	}

	// A consumed job handle must not be re-polled or re-transitioned.
	if err := job.TransitionTo(StatePolling); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition from COMPLETED, got %v", err)
	}
	if !job.IsTerminal() {
		t.Error("completed job should be terminal")
	}
}

func TestJob_CannotSkipPolling(t *testing.T) {
	job := NewJob("up-1")
	if err := job.TransitionTo(StateCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}
