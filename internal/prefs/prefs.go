// Package prefs persists per-user processing preferences in a JSON file.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Mode selects how a session's processing request is executed.
type Mode string

const (
	// ModeAuto tries the local engine first and falls back to remote
	// dispatch when the engine is unavailable.
	ModeAuto Mode = "auto"
	// ModeLocal forces local processing.
	ModeLocal Mode = "local"
	// ModeRemote forces remote dispatch.
	ModeRemote Mode = "remote"
)

// ErrInvalidMode is returned when a mode value is not auto, local or remote.
var ErrInvalidMode = errors.New("prefs: invalid processing mode")

// ParseMode validates and returns the Mode for s. An empty string maps to
// ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeLocal, ModeRemote:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Preferences holds the persisted per-user settings.
type Preferences struct {
	ProcessingMode Mode `json:"processing_mode"`
}

// FileStore reads and writes preferences as a JSON file. Writes go through
// a temp file and rename so a crash never leaves a half-written file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore backed by the file at path. The parent
// directory is created if missing.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("prefs: file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("prefs: create directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the stored preferences. A missing file yields defaults
// (ModeAuto) rather than an error.
func (s *FileStore) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path) // #nosec G304 - path is fixed at construction
	if err != nil {
		if os.IsNotExist(err) {
			return Preferences{ProcessingMode: ModeAuto}, nil
		}
		return Preferences{}, fmt.Errorf("prefs: read file: %w", err)
	}

	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("prefs: decode file: %w", err)
	}
	if p.ProcessingMode == "" {
		p.ProcessingMode = ModeAuto
	}
	if _, err := ParseMode(string(p.ProcessingMode)); err != nil {
		return Preferences{}, err
	}
	return p, nil
}

// Save persists the preferences atomically.
func (s *FileStore) Save(p Preferences) error {
	if _, err := ParseMode(string(p.ProcessingMode)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("prefs: encode preferences: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs_*")
	if err != nil {
		return fmt.Errorf("prefs: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("prefs: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("prefs: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("prefs: replace prefs file: %w", err)
	}
	return nil
}
