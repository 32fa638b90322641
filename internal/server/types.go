// Package server provides the HTTP server for the mediaflow API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"github.com/reelhire/mediaflow/internal/catalog"
	"github.com/reelhire/mediaflow/internal/session"
	"github.com/reelhire/mediaflow/internal/source"
)

// SourceDTO identifies the video a session edits.
type SourceDTO struct {
	// Kind is the source origin: local file, remote URL or catalog entry.
	Kind string `json:"kind" validate:"required,oneof=local remote catalog"`
	// Path is the local file path (kind=local).
	Path string `json:"path,omitempty" validate:"required_if=Kind local"`
	// URL is the remote address (kind=remote).
	URL string `json:"url,omitempty" validate:"required_if=Kind remote,omitempty,url"`
	// EntryID is the catalog entry identifier (kind=catalog).
	EntryID string `json:"entry_id,omitempty" validate:"required_if=Kind catalog"`
}

// SegmentDTO is a (start, end) pair in seconds.
type SegmentDTO struct {
	Start float64 `json:"start" validate:"gte=0"`
	End   float64 `json:"end" validate:"gtfield=Start"`
}

// FiltersDTO holds visual filter values. Omitted fields keep their identity
// values, so a partial object never darkens or desaturates the output.
type FiltersDTO struct {
	Brightness *float64 `json:"brightness,omitempty" validate:"omitempty,gte=-100,lte=100"`
	Contrast   *float64 `json:"contrast,omitempty" validate:"omitempty,gte=0,lte=300"`
	Saturation *float64 `json:"saturation,omitempty" validate:"omitempty,gte=0,lte=300"`
	Blur       *float64 `json:"blur,omitempty" validate:"omitempty,gte=0"`
}

// RectDTO is a crop or scale rectangle in pixels.
type RectDTO struct {
	X      int `json:"x" validate:"gte=0"`
	Y      int `json:"y" validate:"gte=0"`
	Width  int `json:"width" validate:"gte=0"`
	Height int `json:"height" validate:"gte=0"`
}

// OverlayDTO is a premium-only image watermark.
type OverlayDTO struct {
	ImagePath string  `json:"image_path" validate:"required"`
	Position  string  `json:"position" validate:"omitempty,oneof=top-left top-right bottom-left bottom-right center"`
	Opacity   float64 `json:"opacity" validate:"gte=0,lte=1"`
}

// AudioMixDTO is a premium-only background audio track mix.
type AudioMixDTO struct {
	TrackPath string  `json:"track_path" validate:"required"`
	Volume    float64 `json:"volume" validate:"gte=0,lte=1"`
}

// ParamsDTO is the wire shape of the edit parameters.
type ParamsDTO struct {
	TrimStart float64      `json:"trim_start" validate:"gte=0"`
	TrimEnd   float64      `json:"trim_end" validate:"gte=0"`
	Filters   *FiltersDTO  `json:"filters,omitempty"`
	Rotation  int          `json:"rotation" validate:"oneof=0 90 180 270"`
	Crop      *RectDTO     `json:"crop,omitempty"`
	Scale     *RectDTO     `json:"scale,omitempty"`
	Speed     float64      `json:"speed" validate:"gte=0"`
	Segments  []SegmentDTO `json:"segments,omitempty" validate:"dive"`
	Overlay   *OverlayDTO  `json:"overlay,omitempty"`
	AudioMix  *AudioMixDTO `json:"audio_mix,omitempty"`
}

// OpenSessionRequest is the HTTP request body for opening an edit session.
type OpenSessionRequest struct {
	// Owner identifies the user the session belongs to.
	Owner string `json:"owner" validate:"required"`
	// Tier is the owner's entitlement tier; defaults to standard.
	Tier string `json:"tier" validate:"omitempty,oneof=standard premium"`
	// Source references the video to edit.
	Source SourceDTO `json:"source" validate:"required"`
	// Params are the initial edit parameters; defaults apply when omitted.
	Params *ParamsDTO `json:"params,omitempty"`
}

// ProcessRequest is the HTTP request body for dispatching a transform.
type ProcessRequest struct {
	// Mode overrides the persisted processing preference for this run.
	Mode string `json:"mode" validate:"omitempty,oneof=auto local remote"`
}

// MetadataRequest carries catalog entry metadata for publish, replace and
// metadata-only updates.
type MetadataRequest struct {
	Title       string `json:"title" validate:"omitempty,max=200"`
	Description string `json:"description" validate:"omitempty,max=2000"`
}

// OutputDTO is the wire shape of a completed transform result.
type OutputDTO struct {
	PreviewURL string  `json:"preview_url,omitempty"`
	Duration   float64 `json:"duration"`
	Size       int64   `json:"size"`
	Thumbnail  string  `json:"thumbnail,omitempty"`
}

// SessionResponse is the HTTP response for session state.
type SessionResponse struct {
	ID       string     `json:"id"`
	Owner    string     `json:"owner"`
	Tier     string     `json:"tier"`
	Status   string     `json:"status"`
	Progress int        `json:"progress"`
	Warnings []string   `json:"warnings,omitempty"`
	Error    string     `json:"error,omitempty"`
	Params   ParamsDTO  `json:"params"`
	Output   *OutputDTO `json:"output,omitempty"`
}

// EntryResponse is the HTTP response for a catalog entry.
type EntryResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	PlaybackURL string `json:"playback_url,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// ReplaceResponse is the HTTP response after a media replace.
type ReplaceResponse struct {
	Entry                EntryResponse `json:"entry"`
	ArchivedPriorVersion bool          `json:"archived_prior_version"`
	Warnings             []string      `json:"warnings,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

// sourceFromDTO maps the wire source shape onto the domain reference.
func sourceFromDTO(dto SourceDTO) source.Ref {
	return source.Ref{
		Kind:    source.Kind(dto.Kind),
		Path:    dto.Path,
		URL:     dto.URL,
		EntryID: dto.EntryID,
	}
}

// paramsFromDTO maps the wire parameter shape onto domain parameters.
// Omitted optional blocks keep their identity defaults.
func paramsFromDTO(dto ParamsDTO) session.Params {
	p := session.DefaultParams()
	p.TrimStart = dto.TrimStart
	p.TrimEnd = dto.TrimEnd
	p.Rotation = dto.Rotation
	if dto.Speed > 0 {
		p.Speed = dto.Speed
	}
	if dto.Filters != nil {
		f := session.IdentityFilters()
		if dto.Filters.Brightness != nil {
			f.Brightness = *dto.Filters.Brightness
		}
		if dto.Filters.Contrast != nil {
			f.Contrast = *dto.Filters.Contrast
		}
		if dto.Filters.Saturation != nil {
			f.Saturation = *dto.Filters.Saturation
		}
		if dto.Filters.Blur != nil {
			f.Blur = *dto.Filters.Blur
		}
		p.Filters = f
	}
	if dto.Crop != nil {
		p.Crop = session.Rect{X: dto.Crop.X, Y: dto.Crop.Y, Width: dto.Crop.Width, Height: dto.Crop.Height}
	}
	if dto.Scale != nil {
		p.Scale = session.Rect{X: dto.Scale.X, Y: dto.Scale.Y, Width: dto.Scale.Width, Height: dto.Scale.Height}
	}
	for _, s := range dto.Segments {
		p.Segments = append(p.Segments, session.Segment{Start: s.Start, End: s.End})
	}
	if dto.Overlay != nil {
		p.Overlay = &session.Overlay{
			ImagePath: dto.Overlay.ImagePath,
			Position:  dto.Overlay.Position,
			Opacity:   dto.Overlay.Opacity,
		}
	}
	if dto.AudioMix != nil {
		p.AudioMix = &session.AudioMix{
			TrackPath: dto.AudioMix.TrackPath,
			Volume:    dto.AudioMix.Volume,
		}
	}
	return p
}

func floatPtr(v float64) *float64 { return &v }

// paramsToDTO maps domain parameters onto the wire shape.
func paramsToDTO(p session.Params) ParamsDTO {
	dto := ParamsDTO{
		TrimStart: p.TrimStart,
		TrimEnd:   p.TrimEnd,
		Rotation:  p.Rotation,
		Speed:     p.Speed,
		Filters: &FiltersDTO{
			Brightness: floatPtr(p.Filters.Brightness),
			Contrast:   floatPtr(p.Filters.Contrast),
			Saturation: floatPtr(p.Filters.Saturation),
			Blur:       floatPtr(p.Filters.Blur),
		},
	}
	if p.Crop.Enabled() {
		dto.Crop = &RectDTO{X: p.Crop.X, Y: p.Crop.Y, Width: p.Crop.Width, Height: p.Crop.Height}
	}
	if p.Scale.Enabled() {
		dto.Scale = &RectDTO{X: p.Scale.X, Y: p.Scale.Y, Width: p.Scale.Width, Height: p.Scale.Height}
	}
	for _, s := range p.Segments {
		dto.Segments = append(dto.Segments, SegmentDTO{Start: s.Start, End: s.End})
	}
	if p.Overlay != nil {
		dto.Overlay = &OverlayDTO{ImagePath: p.Overlay.ImagePath, Position: p.Overlay.Position, Opacity: p.Overlay.Opacity}
	}
	if p.AudioMix != nil {
		dto.AudioMix = &AudioMixDTO{TrackPath: p.AudioMix.TrackPath, Volume: p.AudioMix.Volume}
	}
	return dto
}

// sessionToResponse maps a session snapshot onto the wire shape.
func sessionToResponse(s *session.Session) SessionResponse {
	resp := SessionResponse{
		ID:       s.ID,
		Owner:    s.Owner,
		Tier:     string(s.Tier),
		Status:   string(s.Status),
		Progress: s.Progress,
		Warnings: s.Warnings,
		Error:    s.Error,
		Params:   paramsToDTO(s.Params),
	}
	if s.Output != nil {
		resp.Output = &OutputDTO{
			PreviewURL: s.Output.PreviewURL,
			Duration:   s.Output.Duration,
			Size:       s.Output.Size,
			Thumbnail:  s.Output.Thumbnail,
		}
	}
	return resp
}

// entryToResponse maps a catalog entry onto the wire shape.
func entryToResponse(e catalog.Entry) EntryResponse {
	return EntryResponse{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		PlaybackURL: e.PlaybackURL,
		Thumbnail:   e.Thumbnail,
	}
}
