package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrProbeExecution is returned when the duration probe fails.
var ErrProbeExecution = errors.New("transform: ffprobe execution failed")

// execRunner is the Runner backed by the real ffmpeg/ffprobe binaries.
type execRunner struct{}

// Probe verifies the binary responds to -version.
func (r *execRunner) Probe(ctx context.Context, binary string) error {
	// #nosec G204 - binary comes from the configured strategy list
	cmd := exec.CommandContext(ctx, binary, "-version")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("probe timed out: %w", ctx.Err())
		}
		return fmt.Errorf("probe %s: %w", binary, err)
	}
	return nil
}

// Duration returns the media duration in seconds using ffprobe.
func (r *execRunner) Duration(ctx context.Context, probeBinary, path string) (float64, error) {
	// #nosec G204 - probeBinary comes from the configured strategy list
	cmd := exec.CommandContext(ctx, probeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrProbeExecution, err, stderr.String())
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration); err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	return duration, nil
}

// Run executes the binary with the given arguments and captures stderr.
func (r *execRunner) Run(ctx context.Context, binary string, args []string) (string, error) {
	// #nosec G204 - binary comes from the configured strategy list
	cmd := exec.CommandContext(ctx, binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stderr.String(), err
	}
	return stderr.String(), nil
}
