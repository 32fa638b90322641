package session

import (
	"errors"
	"fmt"
)

// Static errors for edit parameter validation.
var (
	// ErrInvalidSegment is returned when a segment's bounds are not ordered
	// or fall outside the source duration.
	ErrInvalidSegment = errors.New("session: invalid segment bounds")
	// ErrInvalidTrim is returned when trim bounds are not ordered.
	ErrInvalidTrim = errors.New("session: invalid trim bounds")
	// ErrUnsupportedRotation is returned when rotation is not one of 0, 90, 180, 270.
	ErrUnsupportedRotation = errors.New("session: unsupported rotation")
	// ErrInvalidSpeed is returned when the speed factor is not positive.
	ErrInvalidSpeed = errors.New("session: speed must be positive")
	// ErrInvalidOpacity is returned when overlay opacity is outside [0, 1].
	ErrInvalidOpacity = errors.New("session: overlay opacity must be within [0, 1]")
)

// Tier is the entitlement tier of the session owner. Multi-segment
// composition, overlays, and audio mixing are premium features.
type Tier string

const (
	// TierStandard is the default tier.
	TierStandard Tier = "standard"
	// TierPremium unlocks multi-segment composition, overlay, and audio mix.
	TierPremium Tier = "premium"
)

// IsValid returns true if the tier is recognized.
func (t Tier) IsValid() bool {
	return t == TierStandard || t == TierPremium
}

// AllowsMultiSegment returns true if the tier may compose multiple segments.
func (t Tier) AllowsMultiSegment() bool {
	return t == TierPremium
}

// AllowsOverlay returns true if the tier may apply an image overlay.
func (t Tier) AllowsOverlay() bool {
	return t == TierPremium
}

// AllowsAudioMix returns true if the tier may mix in an audio track.
func (t Tier) AllowsAudioMix() bool {
	return t == TierPremium
}

// Segment is a (start, end) time pair within the source duration, in seconds.
type Segment struct {
	Start float64
	End   float64
}

// Validate checks the segment invariant 0 <= start < end <= duration.
// A duration of zero skips the upper-bound check (duration unknown).
func (s Segment) Validate(duration float64) error {
	if s.Start < 0 || s.Start >= s.End {
		return fmt.Errorf("%w: start=%.2f end=%.2f", ErrInvalidSegment, s.Start, s.End)
	}
	if duration > 0 && s.End > duration {
		return fmt.Errorf("%w: end=%.2f exceeds duration=%.2f", ErrInvalidSegment, s.End, duration)
	}
	return nil
}

// Filters holds the visual filter values. Identity values are
// brightness 0, contrast 100, saturation 100, blur 0.
type Filters struct {
	// Brightness adjustment, -100 to 100, identity 0.
	Brightness float64
	// Contrast percentage, identity 100.
	Contrast float64
	// Saturation percentage, identity 100.
	Saturation float64
	// Blur magnitude, identity 0.
	Blur float64
}

// IdentityFilters returns filter values that leave the image untouched.
func IdentityFilters() Filters {
	return Filters{Brightness: 0, Contrast: 100, Saturation: 100, Blur: 0}
}

// ColorIsIdentity returns true if brightness, contrast, and saturation are
// all at their identity values.
func (f Filters) ColorIsIdentity() bool {
	return f.Brightness == 0 && f.Contrast == 100 && f.Saturation == 100
}

// Overlay is a premium-only image watermark.
type Overlay struct {
	// ImagePath is the watermark image location.
	ImagePath string
	// Position is one of the supported corner anchors (e.g. "top-left").
	Position string
	// Opacity is the watermark opacity within [0, 1].
	Opacity float64
}

// AudioMix is a premium-only background audio track mix.
type AudioMix struct {
	// TrackPath is the audio track location.
	TrackPath string
	// Volume is the mix volume of the added track, 0 to 1.
	Volume float64
}

// Rect is a crop or scale rectangle in pixels.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Enabled returns true if both dimensions are positive.
func (r Rect) Enabled() bool {
	return r.Width > 0 && r.Height > 0
}

// Params is the declarative description of the edits applied to a source
// video. Zero segments means "use trim bounds only".
type Params struct {
	// TrimStart and TrimEnd bound the output in seconds. A zero TrimEnd
	// means "until the end of the source".
	TrimStart float64
	TrimEnd   float64
	// Filters are the visual filter values.
	Filters Filters
	// Rotation in degrees; only 0, 90, 180, and 270 are supported.
	Rotation int
	// Crop is the crop rectangle; applied only when both dimensions are positive.
	Crop Rect
	// Scale is the target size; applied only when both dimensions are positive.
	Scale Rect
	// Speed is the playback speed factor, identity 1.
	Speed float64
	// Segments is the ordered list of segments to extract.
	Segments []Segment
	// Overlay is an optional premium watermark.
	Overlay *Overlay
	// AudioMix is an optional premium audio track mix.
	AudioMix *AudioMix
}

// DefaultParams returns identity edit parameters.
func DefaultParams() Params {
	return Params{
		Filters: IdentityFilters(),
		Speed:   1,
	}
}

// Validate checks structural invariants that do not depend on the source
// duration. Segment upper bounds are checked later against the probed
// duration.
func (p Params) Validate() error {
	if p.TrimStart < 0 {
		return fmt.Errorf("%w: start=%.2f", ErrInvalidTrim, p.TrimStart)
	}
	if p.TrimEnd != 0 && p.TrimEnd <= p.TrimStart {
		return fmt.Errorf("%w: start=%.2f end=%.2f", ErrInvalidTrim, p.TrimStart, p.TrimEnd)
	}
	switch p.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedRotation, p.Rotation)
	}
	if p.Speed <= 0 {
		return fmt.Errorf("%w: %.2f", ErrInvalidSpeed, p.Speed)
	}
	for i, seg := range p.Segments {
		if err := seg.Validate(0); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
	}
	if p.Overlay != nil && (p.Overlay.Opacity < 0 || p.Overlay.Opacity > 1) {
		return fmt.Errorf("%w: %.2f", ErrInvalidOpacity, p.Overlay.Opacity)
	}
	return nil
}

// RequiresPremium returns true if the parameters use any premium-only
// feature: multi-segment composition, overlay, or audio mix.
func (p Params) RequiresPremium() bool {
	return len(p.Segments) > 1 || p.Overlay != nil || p.AudioMix != nil
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	out := p
	out.Segments = make([]Segment, len(p.Segments))
	copy(out.Segments, p.Segments)
	if p.Overlay != nil {
		ov := *p.Overlay
		out.Overlay = &ov
	}
	if p.AudioMix != nil {
		am := *p.AudioMix
		out.AudioMix = &am
	}
	return out
}
