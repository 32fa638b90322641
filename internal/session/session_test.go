package session

import (
	"context"
	"errors"
	"testing"

	"github.com/reelhire/mediaflow/internal/source"
)

func newTestSession() *Session {
	return New("user-1", TierStandard, source.Ref{Kind: source.KindLocal, Path: "/clips/a.mp4"})
}

func TestNew_Defaults(t *testing.T) {
	s := newTestSession()

	if s.ID == "" {
		t.Error("expected ID to be set")
	}
	if s.Status != StatusIdle {
		t.Errorf("expected status %s, got %s", StatusIdle, s.Status)
	}
	if s.Params.Speed != 1 {
		t.Errorf("expected identity speed 1, got %.2f", s.Params.Speed)
	}
	if !s.Params.Filters.ColorIsIdentity() {
		t.Error("expected identity filter defaults")
	}
}

func TestSession_Transitions(t *testing.T) {
	s := newTestSession()

	if err := s.StartProcessing(); err != nil {
		t.Fatalf("StartProcessing() error = %v", err)
	}
	if err := s.CompleteWith(Output{Path: "/out/a.mp4", Duration: 15}); err != nil {
		t.Fatalf("CompleteWith() error = %v", err)
	}
	if s.GetStatus() != StatusReady {
		t.Errorf("expected READY, got %s", s.GetStatus())
	}
	if s.Output == nil || s.Output.Duration != 15 {
		t.Error("expected output to be recorded")
	}

	// Re-dispatch from READY is allowed and clears the prior outcome.
	s.AddWarning("stale warning")
	if err := s.StartProcessing(); err != nil {
		t.Fatalf("re-dispatch error = %v", err)
	}
	if len(s.Warnings) != 0 {
		t.Errorf("expected warnings cleared on re-dispatch, got %v", s.Warnings)
	}

	if err := s.Fail("pipeline exploded"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if s.GetStatus() != StatusFailed {
		t.Errorf("expected FAILED, got %s", s.GetStatus())
	}
	if s.Error != "pipeline exploded" {
		t.Errorf("expected error message recorded, got %q", s.Error)
	}
}

func TestSession_InvalidTransition(t *testing.T) {
	s := newTestSession()

	// IDLE cannot complete or fail directly.
	if err := s.CompleteWith(Output{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if err := s.Fail("nope"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestSession_SetParamsDoesNotAffectClone(t *testing.T) {
	s := newTestSession()

	// A clone taken before a parameter change models an in-flight job's view.
	inFlight := s.Clone()

	p := s.GetParams()
	p.TrimStart = 5
	p.TrimEnd = 20
	s.SetParams(p)

	if inFlight.Params.TrimEnd != 0 {
		t.Errorf("in-flight view changed: TrimEnd = %.2f, want 0", inFlight.Params.TrimEnd)
	}
	if s.GetParams().TrimEnd != 20 {
		t.Errorf("expected updated TrimEnd 20, got %.2f", s.GetParams().TrimEnd)
	}
}

func TestSession_UpdateProgressClamps(t *testing.T) {
	s := newTestSession()

	s.UpdateProgress(150)
	if s.Progress != 100 {
		t.Errorf("expected 100, got %d", s.Progress)
	}
	s.UpdateProgress(-5)
	if s.Progress != 0 {
		t.Errorf("expected 0, got %d", s.Progress)
	}
}

func TestSegment_Validate(t *testing.T) {
	tests := []struct {
		name     string
		seg      Segment
		duration float64
		wantErr  bool
	}{
		{"valid", Segment{Start: 1, End: 5}, 30, false},
		{"valid unknown duration", Segment{Start: 1, End: 5}, 0, false},
		{"start equals end", Segment{Start: 5, End: 5}, 30, true},
		{"start after end", Segment{Start: 6, End: 5}, 30, true},
		{"negative start", Segment{Start: -1, End: 5}, 30, true},
		{"end past duration", Segment{Start: 1, End: 31}, 30, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.seg.Validate(tt.duration)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParams_Validate(t *testing.T) {
	valid := DefaultParams()
	if err := valid.Validate(); err != nil {
		t.Fatalf("default params should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Params)
		want   error
	}{
		{"negative trim start", func(p *Params) { p.TrimStart = -1 }, ErrInvalidTrim},
		{"trim end before start", func(p *Params) { p.TrimStart = 10; p.TrimEnd = 5 }, ErrInvalidTrim},
		{"rotation 45", func(p *Params) { p.Rotation = 45 }, ErrUnsupportedRotation},
		{"zero speed", func(p *Params) { p.Speed = 0 }, ErrInvalidSpeed},
		{"bad segment", func(p *Params) { p.Segments = []Segment{{Start: 5, End: 2}} }, ErrInvalidSegment},
		{"opacity above one", func(p *Params) {
			p.Overlay = &Overlay{ImagePath: "logo.png", Opacity: 1.5}
		}, ErrInvalidOpacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParams_RequiresPremium(t *testing.T) {
	p := DefaultParams()
	if p.RequiresPremium() {
		t.Error("default params should not require premium")
	}

	p.Segments = []Segment{{Start: 0, End: 5}}
	if p.RequiresPremium() {
		t.Error("single segment should not require premium")
	}

	p.Segments = append(p.Segments, Segment{Start: 10, End: 15})
	if !p.RequiresPremium() {
		t.Error("multi-segment should require premium")
	}

	p = DefaultParams()
	p.Overlay = &Overlay{ImagePath: "logo.png", Opacity: 0.5}
	if !p.RequiresPremium() {
		t.Error("overlay should require premium")
	}

	p = DefaultParams()
	p.AudioMix = &AudioMix{TrackPath: "bed.mp3", Volume: 0.3}
	if !p.RequiresPremium() {
		t.Error("audio mix should require premium")
	}
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	s := newTestSession()

	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	found, err := repo.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found.ID != s.ID {
		t.Errorf("expected ID %s, got %s", s.ID, found.ID)
	}

	// Clone semantics: mutating the returned session must not affect the store.
	found.Owner = "intruder"
	again, _ := repo.FindByID(ctx, s.ID)
	if again.Owner != "user-1" {
		t.Errorf("repository leaked a mutable reference: owner = %s", again.Owner)
	}

	if err := repo.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.FindByID(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on double delete, got %v", err)
	}
}
