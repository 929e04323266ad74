package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/dusk-indust/mailmerge/internal/config"
	"github.com/dusk-indust/mailmerge/internal/events"
	"github.com/dusk-indust/mailmerge/internal/google"
	"github.com/dusk-indust/mailmerge/internal/jobs"
	"github.com/dusk-indust/mailmerge/internal/lineage"
	"github.com/dusk-indust/mailmerge/internal/localfs"
	"github.com/dusk-indust/mailmerge/internal/orchestrator"
)

// app is the wired engine shared by serve, mcp, run and fields.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   jobs.Store
	lineage lineage.Store
	events  *orchestrator.Broadcaster
	nc      *nats.Conn
	runner  *orchestrator.Runner
}

// newApp opens the stores and adapters selected by cfg. extra options are
// applied after the configured ones.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, extra ...orchestrator.Option) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, events: orchestrator.NewBroadcaster()}

	var err error
	a.store, err = openJobStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	a.lineage, err = lineage.Open(cfg.Lineage.Driver, cfg.Lineage.Path)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithConfig(orchestrator.Config{
			Workers:      cfg.Merge.Workers,
			CallTimeout:  cfg.Merge.CallTimeout,
			MaxAttempts:  cfg.Merge.MaxAttempts,
			RetryBackoff: cfg.Merge.RetryBackoff,
			DefaultRange: cfg.Merge.DefaultRange,
		}),
		orchestrator.WithLogger(logger),
		orchestrator.WithObserver(a.events),
		orchestrator.WithRecorder(a.lineage),
	}
	if cfg.NATS.URL != "" {
		a.nc, err = events.Connect(cfg.NATS.URL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, orchestrator.WithObserver(events.NewNATSObserver(a.nc, cfg.NATS.SubjectPrefix, logger)))
	}
	opts = append(opts, extra...)

	templates, grids, producer := adapters(ctx, cfg)
	a.runner = orchestrator.NewRunner(a.store, templates, grids, producer, opts...)
	logger.Debug("engine ready",
		zap.String("source", cfg.Source),
		zap.String("store", cfg.Store.Driver),
		zap.String("lineage", cfg.Lineage.Driver),
		zap.Int("workers", cfg.Merge.Workers))
	return a, nil
}

func openJobStore(sc config.StoreConfig) (jobs.Store, error) {
	switch sc.Driver {
	case "", "memory":
		return jobs.NewMemStore(), nil
	default:
		return jobs.OpenSQL(sc.Driver, sc.DSN)
	}
}

// adapters builds the template, grid and artifact adapters for cfg.Source.
func adapters(ctx context.Context, cfg *config.Config) (orchestrator.TemplateSource, orchestrator.GridSource, orchestrator.ArtifactProducer) {
	if cfg.Source == "google" {
		g := cfg.Google
		client := google.NewClientWithToken(ctx, g.AccessToken,
			google.WithTimeout(cfg.Merge.CallTimeout),
			google.WithBaseURLs(g.DocsURL, g.SheetsURL, g.DriveURL, g.ExportURL))
		producer := google.NewDriveProducer(client,
			google.WithFolder(g.FolderID),
			google.WithExportFormat(g.ExportFormat))
		return google.NewDocsSource(client), google.NewSheetsSource(client), producer
	}
	l := cfg.Local
	return localfs.NewTemplateDir(l.TemplateDir),
		localfs.NewCSVSource(l.DataDir),
		localfs.NewDirProducer(l.OutputDir, l.DownloadBaseURL, l.Extension)
}

// Close cancels running jobs and releases every store and connection.
func (a *app) Close() error {
	var errs []error
	if a.runner != nil {
		errs = append(errs, a.runner.Close())
	}
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("nats drain: %w", err))
		}
	}
	if a.lineage != nil {
		errs = append(errs, a.lineage.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
