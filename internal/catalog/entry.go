// Package catalog coordinates catalog entry updates: publishing new
// entries, replacing an entry's media, and metadata-only updates. The
// catalog itself is owned by the backend; this package only reads entries
// and issues update requests.
package catalog

import (
	"time"

	"github.com/reelhire/mediaflow/internal/mediaserver"
)

// Entry is the client-side view of a catalog video entry.
// Invariant: PlaybackURL always resolves to a playable asset; the replace
// coordinator never points an entry at an unconfirmed URL.
type Entry struct {
	ID          string
	Title       string
	Description string
	PlaybackURL string
	Thumbnail   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Metadata is the user-editable portion of an entry.
type Metadata struct {
	Title       string
	Description string
}

// entryFromInfo maps the backend's canonical entry shape onto the client view.
// Timestamps the backend omits or mangles are left zero rather than guessed.
func entryFromInfo(info mediaserver.EntryInfo) Entry {
	e := Entry{
		ID:          info.ID,
		Title:       info.Title,
		Description: info.Description,
		PlaybackURL: info.URL,
		Thumbnail:   info.Thumbnail,
	}
	if t, err := time.Parse(time.RFC3339, info.CreatedAt); err == nil {
		e.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, info.UpdatedAt); err == nil {
		e.UpdatedAt = t
	}
	return e
}
