package transform

import (
	"fmt"
	"strings"

	"github.com/reelhire/mediaflow/internal/session"
)

// Warning messages emitted when the pipeline is reduced instead of aborted.
const (
	warnMultiSegmentTier = "multi-segment composition requires a premium tier; only the first segment was applied"
	warnMultiSegmentLoc  = "multi-segment composition runs server-side; only the first segment was applied locally"
	warnOverlayLocal     = "image overlay runs server-side; ignored in local processing"
	warnAudioMixLocal    = "audio mix runs server-side; ignored in local processing"
)

// Plan is the ordered filter pipeline derived from edit parameters.
// It is a pure value so the mapping from parameters to ffmpeg arguments
// can be tested without executing anything.
type Plan struct {
	// Start and End are the effective trim bounds in seconds.
	Start float64
	End   float64
	// Speed is the playback speed factor.
	Speed float64
	// VideoFilters is the ordered -vf chain.
	VideoFilters []string
	// AudioFilters is the ordered audio filter chain.
	AudioFilters []string
	// Warnings lists the reductions applied instead of aborting.
	Warnings []string
}

// OutputDuration returns the expected duration of the output in seconds.
func (pl Plan) OutputDuration() float64 {
	if pl.End <= pl.Start {
		return 0
	}
	return (pl.End - pl.Start) / pl.Speed
}

// Args assembles the ffmpeg invocation for this plan.
func (pl Plan) Args(input, output string) []string {
	args := []string{"-y", "-ss", formatSeconds(pl.Start)}
	if pl.End > 0 {
		args = append(args, "-to", formatSeconds(pl.End))
	}
	args = append(args, "-i", input)
	if len(pl.VideoFilters) > 0 {
		args = append(args, "-vf", strings.Join(pl.VideoFilters, ","))
	}
	if len(pl.AudioFilters) > 0 {
		args = append(args, "-filter:a", strings.Join(pl.AudioFilters, ","))
	}
	args = append(args, output)
	return args
}

// BuildPlan translates edit parameters into the ordered filter pipeline:
// trim, color adjustment, blur, rotation, crop, scale, speed. Parameters
// the local engine cannot honor are dropped with a warning rather than
// aborting the transform.
func BuildPlan(p session.Params, tier session.Tier, duration float64) (Plan, error) {
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}

	plan := Plan{Speed: p.Speed}

	// 1. Temporal trim: first segment when segments are present, trim
	// bounds otherwise.
	if len(p.Segments) > 0 {
		seg := p.Segments[0]
		if err := seg.Validate(duration); err != nil {
			return Plan{}, err
		}
		plan.Start, plan.End = seg.Start, seg.End
		if len(p.Segments) > 1 {
			if tier.AllowsMultiSegment() {
				plan.Warnings = append(plan.Warnings, warnMultiSegmentLoc)
			} else {
				plan.Warnings = append(plan.Warnings, warnMultiSegmentTier)
			}
		}
	} else {
		plan.Start = p.TrimStart
		plan.End = p.TrimEnd
		if plan.End == 0 || (duration > 0 && plan.End > duration) {
			plan.End = duration
		}
	}

	// 2. Color adjustment: one combined stage when any value differs
	// from identity.
	if !p.Filters.ColorIsIdentity() {
		plan.VideoFilters = append(plan.VideoFilters, fmt.Sprintf(
			"eq=brightness=%s:contrast=%s:saturation=%s",
			formatSeconds(p.Filters.Brightness/100),
			formatSeconds(p.Filters.Contrast/100),
			formatSeconds(p.Filters.Saturation/100),
		))
	}

	// 3. Blur.
	if p.Filters.Blur > 0 {
		plan.VideoFilters = append(plan.VideoFilters, fmt.Sprintf("boxblur=%s", formatSeconds(p.Filters.Blur)))
	}

	// 4. Rotation. Validate() already restricted values to {0,90,180,270}.
	switch p.Rotation {
	case 90:
		plan.VideoFilters = append(plan.VideoFilters, "transpose=1")
	case 180:
		plan.VideoFilters = append(plan.VideoFilters, "transpose=1", "transpose=1")
	case 270:
		plan.VideoFilters = append(plan.VideoFilters, "transpose=2")
	}

	// 5. Crop.
	if p.Crop.Enabled() {
		plan.VideoFilters = append(plan.VideoFilters, fmt.Sprintf(
			"crop=%d:%d:%d:%d", p.Crop.Width, p.Crop.Height, p.Crop.X, p.Crop.Y))
	}

	// 6. Scale.
	if p.Scale.Enabled() {
		plan.VideoFilters = append(plan.VideoFilters, fmt.Sprintf(
			"scale=%d:%d", p.Scale.Width, p.Scale.Height))
	}

	// 7. Speed: visual pacing and audio tempo change together.
	if p.Speed != 1 {
		plan.VideoFilters = append(plan.VideoFilters, fmt.Sprintf("setpts=PTS/%s", formatSeconds(p.Speed)))
		plan.AudioFilters = append(plan.AudioFilters, atempoChain(p.Speed)...)
	}

	// Premium server-side stages degrade locally instead of aborting.
	if p.Overlay != nil {
		plan.Warnings = append(plan.Warnings, warnOverlayLocal)
	}
	if p.AudioMix != nil {
		plan.Warnings = append(plan.Warnings, warnAudioMixLocal)
	}

	return plan, nil
}

// atempoChain decomposes a speed factor into a chain of atempo filters,
// each within ffmpeg's supported [0.5, 2.0] range.
func atempoChain(speed float64) []string {
	var chain []string
	for speed > 2.0 {
		chain = append(chain, "atempo=2.0")
		speed /= 2.0
	}
	for speed < 0.5 {
		chain = append(chain, "atempo=0.5")
		speed /= 0.5
	}
	chain = append(chain, fmt.Sprintf("atempo=%s", formatSeconds(speed)))
	return chain
}

// formatSeconds renders a float without a fixed mantissa width, matching
// how values are passed to ffmpeg on the command line.
func formatSeconds(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
