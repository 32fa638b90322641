// Package bootstrap provides dependency initialization for the mediaflow API.
package bootstrap

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/reelhire/mediaflow/internal/catalog"
	"github.com/reelhire/mediaflow/internal/config"
	"github.com/reelhire/mediaflow/internal/mediaserver"
	"github.com/reelhire/mediaflow/internal/prefs"
	"github.com/reelhire/mediaflow/internal/session"
	"github.com/reelhire/mediaflow/internal/source"
	"github.com/reelhire/mediaflow/internal/storage"
	"github.com/reelhire/mediaflow/internal/transform"
	"github.com/reelhire/mediaflow/internal/upload"
	"github.com/reelhire/mediaflow/internal/workflow"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	WorkflowService *workflow.Service
	Engine          *transform.Engine
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize media server client
	client, err := mediaserver.NewClient(cfg.MediaServerURL, mediaserver.WithToken(cfg.MediaServerToken))
	if err != nil {
		return nil, fmt.Errorf("create media server client: %w", err)
	}

	// The client locates catalog entry playback URLs for the resolver.
	resolver := source.NewResolver(client)

	// Initialize the local transform engine; binaries are probed lazily on
	// the first processing request. The engine gets its own subtree of the
	// staging area; Dispose removes the whole workspace.
	engineWS, err := storage.NewDiskStore(filepath.Join(cfg.StagingDir, "transform"))
	if err != nil {
		return nil, fmt.Errorf("create engine workspace: %w", err)
	}
	engine := transform.NewEngine(
		transform.DefaultStrategies(cfg.FFmpegPath, cfg.FFprobePath),
		engineWS,
		logger,
	)

	poller := upload.NewPoller(client, logger,
		upload.WithInterval(cfg.PollInterval),
		upload.WithMaxAttempts(cfg.PollMaxAttempts),
	)

	coordinator := catalog.NewCoordinator(client, poller, logger)

	prefStore, err := prefs.NewFileStore(cfg.PrefsFile)
	if err != nil {
		return nil, fmt.Errorf("create prefs store: %w", err)
	}

	repo := session.NewMemoryRepository()

	svc := workflow.NewService(
		repo,
		resolver,
		engine,
		client,
		poller,
		coordinator,
		store,
		prefStore,
		logger,
	)

	return &Dependencies{
		WorkflowService: svc,
		Engine:          engine,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		archiveStore, err := storage.NewArchiveStore(cfg.StagingDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create archive storage: %w", err)
		}
		logger.Info("S3 archive storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return archiveStore, nil
	}

	diskStore, err := storage.NewDiskStore(cfg.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("create disk storage: %w", err)
	}
	logger.Info("disk storage configured",
		slog.String("staging_dir", cfg.StagingDir),
	)
	return diskStore, nil
}
