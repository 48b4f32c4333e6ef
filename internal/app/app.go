// Package app builds the crawler's long-lived services from configuration and
// runs a single crawl with them.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/remote-job-crawler/internal/api"
	"github.com/JakeFAU/remote-job-crawler/internal/clock/system"
	"github.com/JakeFAU/remote-job-crawler/internal/config"
	"github.com/JakeFAU/remote-job-crawler/internal/controller"
	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
	"github.com/JakeFAU/remote-job-crawler/internal/hash/sha256"
	idgen "github.com/JakeFAU/remote-job-crawler/internal/id/uuid"
	"github.com/JakeFAU/remote-job-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/remote-job-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/remote-job-crawler/internal/progress/sinks"
	resultsink "github.com/JakeFAU/remote-job-crawler/internal/sink"
	filesink "github.com/JakeFAU/remote-job-crawler/internal/sink/file"
	pgsink "github.com/JakeFAU/remote-job-crawler/internal/sink/postgres"
	pubsubsink "github.com/JakeFAU/remote-job-crawler/internal/sink/pubsub"
	"github.com/JakeFAU/remote-job-crawler/internal/source/headless"
	"github.com/JakeFAU/remote-job-crawler/internal/source/static"
	gcsstorage "github.com/JakeFAU/remote-job-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/remote-job-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/remote-job-crawler/internal/storage/memory"
)

type pageSource interface {
	crawler.Source
	Close() error
}

// App holds the services of one crawl run.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  uuid.UUID

	registry  *prometheus.Registry
	status    *progresssinks.StatusSink
	hub       *progress.Hub
	source    pageSource
	sink      *resultsink.Fanout
	artifacts crawler.ArtifactStore
	ctrl      *controller.Controller

	apiServer    *api.Server
	serverCancel context.CancelFunc
	serverDone   chan error

	pubsubClient *pubsub.Client
	storage      *storage.Client
}

// Build creates the application's dependencies. On error everything built so
// far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID, err := idgen.New().NewRawID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		runID:    runID,
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			_ = a.closeInfrastructure(context.WithoutCancel(ctx))
		}
	}()

	a.logger.Info("building application dependencies", zap.String("run_id", runID.String()))
	if err = a.setupProgress(); err != nil {
		return nil, err
	}
	if err = a.setupStorage(ctx); err != nil {
		return nil, err
	}
	if err = a.setupSinks(ctx); err != nil {
		return nil, err
	}
	if err = a.setupSource(ctx); err != nil {
		return nil, err
	}
	if err = a.setupController(); err != nil {
		return nil, err
	}
	if err = a.setupServer(); err != nil {
		return nil, err
	}
	return a, nil
}

// RunID is the identifier of the crawl this App will run.
func (a *App) RunID() string { return a.runID.String() }

// Status exposes the live run status.
func (a *App) Status() progresssinks.RunStatus { return a.status.Snapshot() }

// Run starts the optional HTTP server and performs the crawl.
func (a *App) Run(ctx context.Context) crawler.RunResult {
	if a.apiServer != nil {
		serverCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.serverCancel = cancel
		a.serverDone = make(chan error, 1)
		addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
		go func() { a.serverDone <- a.apiServer.Serve(serverCtx, addr) }()
		a.apiServer.SetReady(true)
	}
	return a.ctrl.Run(ctx)
}

// Close stops the server, flushes progress, and releases every client.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.serverCancel != nil {
		a.serverCancel()
		if err := <-a.serverDone; err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.closeInfrastructure(ctx))
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(ctx context.Context) error {
	var errs []error
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page source: %w", err))
		}
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close result sinks: %w", err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) setupProgress() error {
	if err := a.registry.Register(collectors.NewGoCollector()); err != nil {
		return fmt.Errorf("register go collector: %w", err)
	}
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	a.status = progresssinks.NewStatusSink()
	a.hub = progress.NewHub(progress.Config{Logger: a.logger.Named("progress_hub")},
		a.status,
		promSink,
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
	)
	return nil
}

func (a *App) setupStorage(ctx context.Context) error {
	switch {
	case a.cfg.Storage.GCSBucket != "":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.artifacts = store
		a.logger.Info("using GCS snapshot storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case a.cfg.Output.SnapshotDir != "":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Output.SnapshotDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.artifacts = store
		a.logger.Info("using local snapshot storage", zap.String("path", a.cfg.Output.SnapshotDir))
	default:
		a.artifacts = memorystorage.NewBlobStore()
		a.logger.Info("using in-memory snapshot storage")
	}
	return nil
}

func (a *App) setupSinks(ctx context.Context) error {
	file, err := filesink.Open(a.cfg.Output.Path)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	members := []crawler.ResultSink{file}
	a.sink = resultsink.NewFanout(members...)
	a.logger.Info("writing retained listings", zap.String("path", file.Path()))

	if a.cfg.DB.DSN != "" {
		pg, err := pgsink.New(ctx, pgsink.Config{
			DSN:             a.cfg.DB.DSN,
			Table:           a.cfg.DB.Table,
			MaxConns:        a.cfg.DB.MaxConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		}, sha256.New(), a.RunID())
		if err != nil {
			return fmt.Errorf("postgres sink init failed: %w", err)
		}
		members = append(members, pg)
		a.sink = resultsink.NewFanout(members...)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
		a.logger.Info("postgres sink initialized", zap.String("table", a.cfg.DB.Table))
	}

	if a.cfg.PubSub.Enabled() {
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		ps, err := pubsubsink.New(client.Topic(a.cfg.PubSub.TopicName), a.RunID())
		if err != nil {
			return fmt.Errorf("pubsub sink init failed: %w", err)
		}
		members = append(members, ps)
		a.sink = resultsink.NewFanout(members...)
		a.logger.Info("pubsub sink initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
	}
	return nil
}

func (a *App) setupSource(ctx context.Context) error {
	sc := a.cfg.Source
	switch sc.Kind {
	case config.SourceStatic:
		src, err := static.New(static.Config{
			UserAgent: sc.UserAgent,
			Timeout:   a.cfg.Crawl.PageTimeout,
			BaseURL:   a.cfg.Search.BaseURL,
			Selectors: sc.Selectors,
		})
		if err != nil {
			return fmt.Errorf("static source init failed: %w", err)
		}
		a.source = src
	default:
		src, err := headless.New(ctx, headless.Config{
			Headless:      sc.Headless,
			UserAgent:     sc.UserAgent,
			PageTimeout:   a.cfg.Crawl.PageTimeout,
			DetailTimeout: a.cfg.Crawl.DetailTimeout,
			BaseURL:       a.cfg.Search.BaseURL,
			Selectors:     sc.Selectors,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("headless source init failed: %w", err)
		}
		a.source = src
	}
	a.logger.Info("page source ready", zap.String("kind", sc.Kind))
	return nil
}

func (a *App) setupController() error {
	start, err := a.cfg.StartURL()
	if err != nil {
		return fmt.Errorf("build search url: %w", err)
	}
	a.ctrl, err = controller.New(a.cfg.Run(), controller.Options{
		Source:    a.source,
		Sink:      a.sink,
		Artifacts: a.artifacts,
		Limiter: ratelimit.New(ratelimit.Config{
			RPS:    a.cfg.Crawl.DetailRPS,
			Burst:  a.cfg.Crawl.DetailBurst,
			Logger: a.logger.Named("ratelimit"),
		}),
		Retry:          controller.NewExponentialRetryPolicy(a.cfg.Crawl.RetryBaseDelay, a.cfg.Crawl.RetryMaxDelay),
		Clock:          system.New(),
		IDs:            fixedID{id: a.runID},
		Emitter:        a.hub,
		Logger:         a.logger,
		StartURL:       start,
		RequiredParams: a.cfg.RequiredParams(),
		PageSettle:     a.cfg.Crawl.PageSettle,
		DetailSettle:   a.cfg.Crawl.DetailSettle,
		SnapshotPrefix: "snapshots",
	})
	if err != nil {
		return fmt.Errorf("controller init failed: %w", err)
	}
	return nil
}

func (a *App) setupServer() error {
	if !a.cfg.Server.Enabled {
		return nil
	}
	srv, err := api.NewServer(a.status, a.registry, a.logger.Named("api"))
	if err != nil {
		return fmt.Errorf("api server init failed: %w", err)
	}
	a.apiServer = srv
	return nil
}

// fixedID hands the controller the run id already given to the sinks.
type fixedID struct {
	id uuid.UUID
}

func (f fixedID) NewRawID() (uuid.UUID, error) { return f.id, nil }
