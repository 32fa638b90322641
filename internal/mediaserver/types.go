// Package mediaserver provides the HTTP client for the encoding backend.
// The backend owns ingestion jobs and the video catalog; this client speaks
// one canonical response schema per operation and rejects nonconforming
// payloads at the boundary.
package mediaserver

import (
	"github.com/reelhire/mediaflow/internal/session"
)

// UploadStatus represents the status of an asynchronous ingestion job.
type UploadStatus string

// Upload job statuses aligned with the backend API.
const (
	StatusPending    UploadStatus = "pending"
	StatusProcessing UploadStatus = "processing"
	StatusCompleted  UploadStatus = "completed"
	StatusFailed     UploadStatus = "failed"
)

// IsTerminal returns true if the status is a terminal state.
func (s UploadStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// UploadResult is the descriptor of a completed ingestion job.
type UploadResult struct {
	// URL is the confirmed-live remote address of the ingested asset.
	URL string `json:"url" validate:"required,url"`
	// Duration is the asset duration in seconds.
	Duration float64 `json:"duration" validate:"gte=0"`
	// Size is the asset size in bytes.
	Size int64 `json:"size" validate:"gte=0"`
	// Thumbnail is the thumbnail address, when produced.
	Thumbnail string `json:"thumbnail,omitempty"`
	// TempEntryID is the temporary catalog entry created as a side effect of
	// the upload path; the replace coordinator deletes it after the swap.
	TempEntryID string `json:"temp_entry_id,omitempty"`
}

// PollStatus is the canonical poll response shape.
type PollStatus struct {
	// Status is the job state.
	Status UploadStatus `json:"status" validate:"required,oneof=pending processing completed failed"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress" validate:"gte=0,lte=100"`
	// Result is set only when Status is completed.
	Result *UploadResult `json:"result,omitempty"`
	// Error is set only when Status is failed.
	Error string `json:"error,omitempty"`
}

// UploadMetadata accompanies a binary upload.
type UploadMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	FileName    string `json:"file_name,omitempty"`
}

// EntryMetadata is a lightweight metadata-only entry update.
type EntryMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// MediaUpdate repoints an existing entry at a newly ingested asset.
type MediaUpdate struct {
	// NewURL is the confirmed-live address of the replacement asset.
	NewURL string `json:"new_url"`
	// Duration, Size, and Thumbnail describe the replacement asset.
	Duration  float64 `json:"duration,omitempty"`
	Size      int64   `json:"size,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	// Title and Description optionally refresh the entry metadata in the
	// same update.
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// EntryInfo is the canonical catalog entry shape returned by the backend.
type EntryInfo struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// URL is the playback address; the backend guarantees it resolves to a
	// playable asset.
	URL       string `json:"url" validate:"required,url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Rect mirrors a crop or scale rectangle on the wire.
type Rect struct {
	X      int `json:"x,omitempty"`
	Y      int `json:"y,omitempty"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SegmentParam mirrors a segment on the wire.
type SegmentParam struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// OverlayParam mirrors the premium watermark parameters on the wire.
type OverlayParam struct {
	ImagePath string  `json:"image_path"`
	Position  string  `json:"position"`
	Opacity   float64 `json:"opacity"`
}

// AudioMixParam mirrors the premium audio mix parameters on the wire.
type AudioMixParam struct {
	TrackPath string  `json:"track_path"`
	Volume    float64 `json:"volume"`
}

// TransformParams is the server-side transform request: the superset of the
// local pipeline's parameters plus the premium-only overlay and audio mix.
type TransformParams struct {
	TrimStart  float64        `json:"trim_start"`
	TrimEnd    float64        `json:"trim_end,omitempty"`
	Brightness float64        `json:"brightness"`
	Contrast   float64        `json:"contrast"`
	Saturation float64        `json:"saturation"`
	Blur       float64        `json:"blur,omitempty"`
	Rotation   int            `json:"rotation,omitempty"`
	Crop       *Rect          `json:"crop,omitempty"`
	Scale      *Rect          `json:"scale,omitempty"`
	Speed      float64        `json:"speed"`
	Segments   []SegmentParam `json:"segments,omitempty"`
	Overlay    *OverlayParam  `json:"overlay,omitempty"`
	AudioMix   *AudioMixParam `json:"audio_mix,omitempty"`
}

// TransformParamsFrom maps session edit parameters onto the wire shape.
func TransformParamsFrom(p session.Params) TransformParams {
	out := TransformParams{
		TrimStart:  p.TrimStart,
		TrimEnd:    p.TrimEnd,
		Brightness: p.Filters.Brightness,
		Contrast:   p.Filters.Contrast,
		Saturation: p.Filters.Saturation,
		Blur:       p.Filters.Blur,
		Rotation:   p.Rotation,
		Speed:      p.Speed,
	}
	if p.Crop.Enabled() {
		out.Crop = &Rect{X: p.Crop.X, Y: p.Crop.Y, Width: p.Crop.Width, Height: p.Crop.Height}
	}
	if p.Scale.Enabled() {
		out.Scale = &Rect{Width: p.Scale.Width, Height: p.Scale.Height}
	}
	for _, seg := range p.Segments {
		out.Segments = append(out.Segments, SegmentParam{Start: seg.Start, End: seg.End})
	}
	if p.Overlay != nil {
		out.Overlay = &OverlayParam{
			ImagePath: p.Overlay.ImagePath,
			Position:  p.Overlay.Position,
			Opacity:   p.Overlay.Opacity,
		}
	}
	if p.AudioMix != nil {
		out.AudioMix = &AudioMixParam{
			TrackPath: p.AudioMix.TrackPath,
			Volume:    p.AudioMix.Volume,
		}
	}
	return out
}

// uploadResponse is the canonical response of the upload and transform
// dispatch endpoints.
type uploadResponse struct {
	UploadID string `json:"upload_id"`
	Error    string `json:"error,omitempty"`
}

// replaceResponse is the canonical response of the archive-and-replace
// endpoint.
type replaceResponse struct {
	ArchivedPriorVersion bool `json:"archived_prior_version"`
}
