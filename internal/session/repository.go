package session

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when a session cannot be found by ID.
var ErrSessionNotFound = errors.New("session not found")

// Repository defines the interface for session persistence. Sessions are
// ephemeral, so implementations need not survive a restart.
type Repository interface {
	// Save persists a session. If the session already exists, it is updated.
	Save(ctx context.Context, s *Session) error

	// FindByID retrieves a session by its unique identifier.
	// Returns ErrSessionNotFound if the session does not exist.
	FindByID(ctx context.Context, id string) (*Session, error)

	// Delete removes a session.
	// Returns ErrSessionNotFound if the session does not exist.
	Delete(ctx context.Context, id string) error
}
