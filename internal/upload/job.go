// Package upload drives an asynchronous ingestion job from submission to a
// terminal state by polling the backend at a fixed interval with a bounded
// attempt ceiling.
package upload

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reelhire/mediaflow/internal/mediaserver"
)

// State represents the orchestrator's view of an upload job.
type State string

const (
	// StateSubmitted indicates the job handle was issued but polling has not started.
	StateSubmitted State = "SUBMITTED"
	// StatePolling indicates the orchestrator is observing the job.
	StatePolling State = "POLLING"
	// StateCompleted indicates the job finished and the result was consumed.
	StateCompleted State = "COMPLETED"
	// StateFailed indicates the backend explicitly reported failure.
	StateFailed State = "FAILED"
	// StateTimedOut indicates the poll ceiling was reached without a terminal status.
	StateTimedOut State = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("upload: invalid state transition")

// validTransitions defines which state transitions are allowed. Terminal
// states have no successors: a consumed job handle must not be polled again.
var validTransitions = map[State][]State{
	StateSubmitted: {StatePolling},
	StatePolling:   {StateCompleted, StateFailed, StateTimedOut},
	StateCompleted: {},
	StateFailed:    {},
	StateTimedOut:  {},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job tracks one asynchronous upload from submission to terminal state.
// It is created on dispatch, polled until terminal, then discarded.
type Job struct {
	mu sync.RWMutex

	// ID is the opaque handle issued by the backend.
	ID string
	// State is the orchestrator state.
	State State
	// Progress is the backend-reported completion percentage (0-100).
	Progress int
	// Attempts counts the polls performed.
	Attempts int
	// Result is the completion descriptor, set only in StateCompleted.
	Result *mediaserver.UploadResult
	// Error is the backend failure message, set only in StateFailed.
	Error string
	// CreatedAt is when the job handle was received.
	CreatedAt time.Time
	// FinishedAt is when the job reached a terminal state.
	FinishedAt time.Time
}

// NewJob creates a Job in SUBMITTED state for the given backend handle.
func NewJob(uploadID string) *Job {
	return &Job{
		ID:        uploadID,
		State:     StateSubmitted,
		CreatedAt: time.Now(),
	}
}

// TransitionTo attempts to change the job state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(state State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, state)
	}

	j.State = state
	switch state {
	case StateCompleted, StateFailed, StateTimedOut:
		j.FinishedAt = time.Now()
	}
	return nil
}

// IsTerminal returns true if the job reached a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.State == StateCompleted || j.State == StateFailed || j.State == StateTimedOut
}

// recordPoll updates progress and the attempt counter after one poll.
func (j *Job) recordPoll(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Attempts++
	if progress >= 0 && progress <= 100 {
		j.Progress = progress
	}
}

// complete stores the result descriptor and moves to COMPLETED.
func (j *Job) complete(result mediaserver.UploadResult) error {
	if err := j.TransitionTo(StateCompleted); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Result = &result
	j.Progress = 100
	return nil
}

// fail stores the backend message and moves to FAILED.
func (j *Job) fail(msg string) error {
	if err := j.TransitionTo(StateFailed); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Error = msg
	return nil
}
