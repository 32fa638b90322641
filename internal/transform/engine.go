// Package transform provides the local transform engine. It applies a
// declarative list of edit parameters to a video payload using the ffmpeg
// CLI. The engine is lazily initialized through an ordered list of fallback
// binary locations; when none responds it reports itself unavailable so the
// caller can fall back to server-side processing.
package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelhire/mediaflow/internal/session"
	"github.com/reelhire/mediaflow/internal/source"
)

// Static errors for the transform engine.
var (
	// ErrEngineUnavailable is returned when no fallback strategy produced a
	// working processing backend. It is a degraded-mode signal, not a fault:
	// the caller should dispatch remotely instead.
	ErrEngineUnavailable = errors.New("transform: engine unavailable")
	// ErrNotInitialized is returned when Process is called before Init.
	ErrNotInitialized = errors.New("transform: engine not initialized")
	// ErrEmptyPayload is returned when the input payload has no data.
	ErrEmptyPayload = errors.New("transform: empty payload")
)

// Strategy is one candidate delivery of the processing backend: a pair of
// ffmpeg/ffprobe locations probed during initialization.
type Strategy struct {
	// Name identifies the strategy in logs.
	Name string
	// FFmpegPath is the candidate ffmpeg binary location.
	FFmpegPath string
	// FFprobePath is the matching ffprobe binary location.
	FFprobePath string
}

// DefaultStrategies returns the ordered fallback list: the configured
// location first, then PATH lookup, then the conventional install location.
func DefaultStrategies(ffmpegPath, ffprobePath string) []Strategy {
	var out []Strategy
	if ffmpegPath != "" && ffmpegPath != "ffmpeg" {
		out = append(out, Strategy{Name: "configured", FFmpegPath: ffmpegPath, FFprobePath: ffprobePath})
	}
	out = append(out,
		Strategy{Name: "path", FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"},
		Strategy{Name: "local-install", FFmpegPath: "/usr/local/bin/ffmpeg", FFprobePath: "/usr/local/bin/ffprobe"},
	)
	return out
}

// Workspace stages pipeline inputs and discards intermediate files. The
// engine never touches the filesystem outside of it, except for the ffmpeg
// process writing the output path.
type Workspace interface {
	Stage(ctx context.Context, name string, data io.Reader) (string, error)
	Discard(ctx context.Context, paths []string) error
	StagingDir() string
}

// Runner abstracts the command execution so engine behavior is testable
// without ffmpeg installed.
type Runner interface {
	// Probe verifies the binary responds (ffmpeg -version).
	Probe(ctx context.Context, binary string) error
	// Duration returns the media duration in seconds via ffprobe.
	Duration(ctx context.Context, probeBinary, path string) (float64, error)
	// Run executes the binary with the given arguments, returning captured
	// stderr alongside any execution error.
	Run(ctx context.Context, binary string, args []string) (stderr string, err error)
}

// Result is the output of a completed local transform.
type Result struct {
	// OutputPath is the locally dereferenceable preview handle.
	OutputPath string
	// Data is the new in-memory binary payload.
	Data []byte
	// Duration is the expected output duration in seconds.
	Duration float64
	// Warnings lists pipeline reductions applied instead of aborting.
	Warnings []string
}

// ProcessError is returned when the pipeline execution fails. The original
// payload is left untouched.
type ProcessError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("transform: pipeline failed: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Engine is the local transform engine. It is constructed once and shared;
// initialization is lazy and attempted at most once. Lifecycle: Init,
// Ready, Process, Dispose.
type Engine struct {
	mu          sync.Mutex
	strategies  []Strategy
	initTimeout time.Duration
	workspace   Workspace
	runner      Runner
	logger      *slog.Logger

	binary    string
	probeBin  string
	ready     bool
	attempted bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithInitTimeout sets the per-strategy probe timeout.
func WithInitTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.initTimeout = d
	}
}

// WithRunner sets a custom command runner.
func WithRunner(r Runner) EngineOption {
	return func(e *Engine) {
		e.runner = r
	}
}

// NewEngine creates an Engine probing the given strategies in order.
// ws is the engine's private workspace for intermediate files; it must not
// be shared with staging areas that outlive a Dispose.
func NewEngine(strategies []Strategy, ws Workspace, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		strategies:  strategies,
		initTimeout: 10 * time.Second,
		workspace:   ws,
		runner:      &execRunner{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init attempts to initialize the processing backend through the fallback
// strategies. Each attempt has a fixed timeout. If all attempts fail the
// engine reports itself unavailable; later calls return the same signal
// without probing again.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ready {
		return nil
	}
	if e.attempted {
		return ErrEngineUnavailable
	}
	e.attempted = true

	for _, s := range e.strategies {
		probeCtx, cancel := context.WithTimeout(ctx, e.initTimeout)
		err := e.runner.Probe(probeCtx, s.FFmpegPath)
		cancel()
		if err != nil {
			e.logger.Warn("engine strategy failed",
				slog.String("strategy", s.Name),
				slog.String("ffmpeg", s.FFmpegPath),
				slog.String("error", err.Error()),
			)
			continue
		}

		// Dispose removes the workspace directory, so re-init recreates it.
		if err := os.MkdirAll(e.workspace.StagingDir(), 0750); err != nil {
			return fmt.Errorf("transform: create workspace: %w", err)
		}

		e.binary = s.FFmpegPath
		e.probeBin = s.FFprobePath
		e.ready = true
		e.logger.Info("engine initialized",
			slog.String("strategy", s.Name),
			slog.String("ffmpeg", s.FFmpegPath),
		)
		return nil
	}

	e.logger.Warn("engine unavailable after all strategies",
		slog.Int("strategies", len(e.strategies)),
	)
	return ErrEngineUnavailable
}

// Ready reports whether the engine initialized successfully.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Dispose releases the engine: the workspace is removed and the next Init
// probes from scratch.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = false
	e.attempted = false
	e.binary = ""
	e.probeBin = ""
	if err := os.RemoveAll(e.workspace.StagingDir()); err != nil {
		e.logger.Warn("failed to remove engine workspace",
			slog.String("dir", e.workspace.StagingDir()),
			slog.String("error", err.Error()),
		)
	}
}

// Process applies the edit parameters to the payload and returns a new
// payload plus a preview handle. Intermediate workspace files are released
// on both success and failure; on failure the original payload is untouched.
func (e *Engine) Process(ctx context.Context, payload source.Payload, params session.Params, tier session.Tier) (Result, error) {
	e.mu.Lock()
	binary, probeBin, ready := e.binary, e.probeBin, e.ready
	e.mu.Unlock()

	if !ready {
		return Result{}, ErrNotInitialized
	}
	if len(payload.Data) == 0 {
		return Result{}, ErrEmptyPayload
	}

	input, err := e.workspace.Stage(ctx, payload.Name, bytes.NewReader(payload.Data))
	if err != nil {
		return Result{}, fmt.Errorf("transform: stage input: %w", err)
	}
	// Cleanup must run even when the surrounding request was cancelled.
	defer func() { _ = e.workspace.Discard(context.WithoutCancel(ctx), []string{input}) }()

	duration, err := e.runner.Duration(ctx, probeBin, input)
	if err != nil {
		return Result{}, fmt.Errorf("transform: probe duration: %w", err)
	}

	plan, err := BuildPlan(params, tier, duration)
	if err != nil {
		return Result{}, err
	}

	output := filepath.Join(e.workspace.StagingDir(), "out_"+uuid.NewString()+filepath.Ext(payload.Name))
	args := plan.Args(input, output)

	stderr, err := e.runner.Run(ctx, binary, args)
	if err != nil {
		_ = e.workspace.Discard(context.WithoutCancel(ctx), []string{output})
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("transform: cancelled: %w", ctx.Err())
		}
		return Result{}, &ProcessError{Args: args, Stderr: stderr, Err: err}
	}

	data, err := os.ReadFile(output) // #nosec G304 - path is inside the engine workspace
	if err != nil {
		_ = e.workspace.Discard(context.WithoutCancel(ctx), []string{output})
		return Result{}, fmt.Errorf("transform: read output: %w", err)
	}

	return Result{
		OutputPath: output,
		Data:       data,
		Duration:   plan.OutputDuration(),
		Warnings:   plan.Warnings,
	}, nil
}
