// Package session provides the EditSession aggregate: an ephemeral editing
// session over one source video, holding the source reference, the current
// edit parameters, and the processing status. Sessions live only in memory
// and are discarded when closed.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/reelhire/mediaflow/internal/session/id"
	"github.com/reelhire/mediaflow/internal/source"
)

// Status represents the processing state of an EditSession.
type Status string

const (
	// StatusIdle indicates no transform has been dispatched.
	StatusIdle Status = "IDLE"
	// StatusProcessing indicates a transform or upload is in flight.
	StatusProcessing Status = "PROCESSING"
	// StatusReady indicates the last transform completed and a result is available.
	StatusReady Status = "READY"
	// StatusFailed indicates the last transform failed; the source is untouched.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// validTransitions defines which state transitions are allowed. A failed or
// ready session may be re-dispatched, so both lead back to PROCESSING.
var validTransitions = map[Status][]Status{
	StatusIdle:       {StatusProcessing},
	StatusProcessing: {StatusReady, StatusFailed},
	StatusReady:      {StatusProcessing},
	StatusFailed:     {StatusProcessing},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Output describes the result of a completed transform.
type Output struct {
	// Path is the workspace path of the processed payload (local transforms).
	Path string
	// PreviewURL is a dereferenceable preview address, when one exists.
	PreviewURL string
	// Duration is the output duration in seconds.
	Duration float64
	// Size is the output size in bytes.
	Size int64
	// Thumbnail is the thumbnail address, when the backend produced one.
	Thumbnail string
	// TempEntryID is the temporary catalog entry the backend created for a
	// server-side upload. Publish and replace hand it to the coordinator
	// instead of re-uploading the asset; ClearTempEntry drops it once the
	// coordinator has taken ownership.
	TempEntryID string
}

// Session is the EditSession aggregate. All mutating methods are safe for
// concurrent use.
type Session struct {
	mu sync.RWMutex

	// ID is the unique session identifier.
	ID string
	// Owner identifies the user the session belongs to.
	Owner string
	// Tier is the owner's entitlement tier.
	Tier Tier
	// Source is the reference to the video being edited.
	Source source.Ref
	// Params are the current edit parameters. Changes made after a transform
	// was dispatched do not affect the in-flight job.
	Params Params
	// Status is the processing state.
	Status Status
	// Progress is the percentage of completion for an in-flight job (0-100).
	Progress int
	// Warnings collects user-visible degradation notices.
	Warnings []string
	// Error is the failure message when Status is FAILED.
	Error string
	// Output is the last completed transform result.
	Output *Output
	// CreatedAt is when the session was opened.
	CreatedAt time.Time
	// UpdatedAt is when the session was last touched.
	UpdatedAt time.Time
}

// New creates a session over the given source with default parameters.
func New(owner string, tier Tier, src source.Ref) *Session {
	now := time.Now()
	return &Session{
		ID:        id.Generate(),
		Owner:     owner,
		Tier:      tier,
		Source:    src,
		Params:    DefaultParams(),
		Status:    StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the session status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (s *Session) TransitionTo(status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !canTransition(s.Status, status) {
		return ErrInvalidTransition
	}

	s.Status = status
	s.UpdatedAt = time.Now()
	if status == StatusProcessing {
		// A fresh dispatch resets the outcome of the previous one.
		s.Progress = 0
		s.Warnings = nil
		s.Error = ""
	}
	return nil
}

// StartProcessing transitions the session to PROCESSING.
func (s *Session) StartProcessing() error {
	return s.TransitionTo(StatusProcessing)
}

// CompleteWith transitions the session to READY and records the output.
func (s *Session) CompleteWith(out Output) error {
	if err := s.TransitionTo(StatusReady); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Output = &out
	s.Progress = 100
	s.UpdatedAt = time.Now()
	return nil
}

// Fail transitions the session to FAILED with an error message.
func (s *Session) Fail(errMsg string) error {
	if err := s.TransitionTo(StatusFailed); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Error = errMsg
	s.UpdatedAt = time.Now()
	return nil
}

// SetParams replaces the edit parameters. In-flight jobs are unaffected;
// the caller must re-dispatch for the new parameters to take effect.
func (s *Session) SetParams(p Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Params = p.Clone()
	s.UpdatedAt = time.Now()
}

// GetParams returns a copy of the current edit parameters.
func (s *Session) GetParams() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Params.Clone()
}

// GetStatus returns the current status.
func (s *Session) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// AddWarning records a user-visible degradation notice.
func (s *Session) AddWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Warnings = append(s.Warnings, msg)
	s.UpdatedAt = time.Now()
}

// ClearTempEntry drops the output's temporary entry reference. Called once
// the catalog coordinator has taken ownership of the entry; the preview URL
// stays valid.
func (s *Session) ClearTempEntry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Output == nil || s.Output.TempEntryID == "" {
		return
	}
	s.Output.TempEntryID = ""
	s.UpdatedAt = time.Now()
}

// UpdateProgress sets the progress percentage, clamped to [0, 100].
func (s *Session) UpdateProgress(progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	s.Progress = progress
	s.UpdatedAt = time.Now()
}

// Clone creates a deep copy of the session for safe reads.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	warnings := make([]string, len(s.Warnings))
	copy(warnings, s.Warnings)

	clone := &Session{
		ID:        s.ID,
		Owner:     s.Owner,
		Tier:      s.Tier,
		Source:    s.Source,
		Params:    s.Params.Clone(),
		Status:    s.Status,
		Progress:  s.Progress,
		Warnings:  warnings,
		Error:     s.Error,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Output != nil {
		out := *s.Output
		clone.Output = &out
	}
	return clone
}
