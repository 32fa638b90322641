// Package id provides unique identifier generation for edit sessions.
package id

import (
	"github.com/google/uuid"
)

// Generate creates a new unique session ID.
// Format: sess-<uuid>
// Example: sess-6ba7b810-9dad-11d1-80b4-00c04fd430c8
func Generate() string {
	return "sess-" + uuid.NewString()
}
