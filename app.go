package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"postforge/api"
	"postforge/compose"
	"postforge/core"
	"postforge/db"
	"postforge/imagegen"
	"postforge/jobs"
	"postforge/logging"
	"postforge/metrics"
	"postforge/pipeline"
	"postforge/render"
	"postforge/render/browser"
	"postforge/render/raster"
	"postforge/shutdown"
	"postforge/storage"
	"postforge/textgen"
)

// application owns the long-lived components of one service run.
type application struct {
	cfg     *core.Config
	logger  *logging.Logger
	manager *shutdown.Manager
	server  *api.Server
	jobs    *jobs.Tracker
}

// newApplication wires every component and registers its cleanup with
// manager. Components built before a failure are released by the caller's
// Shutdown.
func newApplication(ctx context.Context, cfg *core.Config, logger *logging.Logger, manager *shutdown.Manager) (*application, error) {
	httpClient := core.NewHTTPClient(cfg)

	storeCfg := metrics.DefaultStoreConfig()
	storeCfg.Version = core.Version
	stats := metrics.NewMetricsStore(storeCfg, time.Now())
	observability := metrics.New(stats)

	textClient, err := textgen.NewClient(textgen.NewOpenAIClient(cfg, httpClient), textgen.Options{
		Models:   cfg.TextModels,
		Policy:   textgen.PolicyFromConfig(cfg),
		Observer: observability,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	var imageClient pipeline.ImageGenerator
	if cfg.HasImageProvider() {
		client, err := imagegen.NewClientFromConfig(ctx, cfg, httpClient, logger, observability)
		if err != nil {
			return nil, err
		}
		imageClient = client
	} else {
		logger.Warn("no image provider configured, posts will render without generated images")
	}

	// Logo and image URLs come from callers, so they go through a client
	// that refuses private addresses unless ALLOW_PRIVATE_IMAGE_FETCH is set.
	imageFetcher := raster.HTTPFetcher{Client: core.NewFetchHTTPClient(cfg)}
	rasterBackend := raster.New(
		raster.WithFetcher(imageFetcher),
		raster.WithLogger(logger),
	)
	browserBackend := browser.New(
		browser.NewChromeLauncher(browser.ChromeConfig{ExecPath: cfg.ChromePath, NoSandbox: cfg.ChromeNoSandbox}),
		browser.WithLogger(logger),
	)
	manager.Register("browser", shutdown.PriorityBrowser, func(context.Context) error {
		return browserBackend.Close()
	})

	engine, err := compose.New([]render.Backend{rasterBackend, browserBackend},
		compose.WithObserver(observability),
		compose.WithLogger(logger),
		compose.WithFetcher(imageFetcher),
	)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, &core.PersistenceError{Collaborator: "database", Err: err}
	}
	manager.Register("database", shutdown.PriorityDatabase, func(context.Context) error {
		return database.Close()
	})
	logger.Info("database ready", zap.String("path", database.Path()))
	if cfg.HistoryRetentionDays > 0 {
		res, err := database.Cleanup(ctx, cfg.HistoryRetentionDays)
		if err != nil {
			logger.Warn("history cleanup failed", zap.Error(err))
		} else if res.TotalDeleted() > 0 {
			logger.Info("pruned old history",
				zap.Int64("history", res.HistoryDeleted),
				zap.Int64("jobs", res.JobsDeleted),
				zap.Duration("elapsed", res.Duration))
		}
	}

	history := db.NewRepository(database)
	jobStore := db.NewJobStore(database, logger)
	manager.Register("job store", shutdown.PriorityJobStore, func(context.Context) error {
		return jobStore.Close()
	})

	files, err := storage.NewFileStore(cfg.OutputDir, logger)
	if err != nil {
		return nil, err
	}
	manager.Register("temp files", shutdown.PriorityFiles, shutdown.CleanupTempFiles(logger, files.Root()))

	orchestrator, err := pipeline.New(pipeline.Options{
		Text:     textClient,
		Image:    imageClient,
		Composer: engine,
		Assets:   files,
		History:  history,
		Settings: pipelineSettings(cfg),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	events := api.NewHub(api.DefaultHubConfig(), logger)

	tracker := jobs.New(orchestrator, jobs.Config{
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		JobTimeout: cfg.JobTimeout,
		Retention:  cfg.JobRetention,
	},
		jobs.WithStore(jobStore),
		jobs.WithObserver(observability),
		jobs.WithListener(events.Publish),
		jobs.WithLogger(logger),
	)
	manager.Register("job tracker", shutdown.PriorityJobs, tracker.Shutdown)

	apiCfg := api.DefaultConfig()
	apiCfg.Addr = cfg.ListenAddr
	apiCfg.RateLimit = cfg.RateLimitPerMinute
	apiCfg.RateLimitWindow = time.Minute
	apiCfg.Version = core.Version
	apiCfg.DefaultSettings = compositionSettings(cfg)
	apiCfg.DefaultRender = renderOptions(cfg)
	apiCfg.APIKeyHash = cfg.APIKeyHash

	server, err := api.New(apiCfg, api.Deps{
		Jobs:       tracker,
		Composer:   engine,
		History:    history,
		Database:   database,
		Metrics:    observability,
		Stats:      stats,
		Operations: manager.Tracker(),
		Events:     events,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	manager.Register("http server", shutdown.PriorityHTTP, server.Shutdown)
	manager.Register("event stream", shutdown.PriorityHTTP, events.Close)
	manager.Register("logger", shutdown.PriorityLogger, func(context.Context) error {
		_ = logger.Sync()
		return nil
	})

	return &application{cfg: cfg, logger: logger, manager: manager, server: server, jobs: tracker}, nil
}

// run starts the workers and the HTTP server, then waits for shutdown.
func (a *application) run() int {
	ctx := a.manager.Context()
	a.jobs.Start()
	a.server.StartLimiterCleanup(ctx)

	serverErr := make(chan error, 1)
	go func() { serverErr <- a.server.ListenAndServe() }()

	code := core.ExitCodeSuccess
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("http server stopped", zap.Error(err))
			code = core.ExitCodeError
		}
	}

	if err := a.manager.Shutdown(); err != nil {
		code = core.ExitCodeError
	}
	a.logger.Info("goodbye")
	return code
}

func pipelineSettings(cfg *core.Config) pipeline.Settings {
	defaultProvider := ""
	if cfg.HasImageProvider() {
		defaultProvider = cfg.ImageProviders[0]
	}
	return pipeline.Settings{
		MaxTokens:            cfg.TextMaxTokens,
		Temperature:          float32(cfg.TextTemperature),
		TextMaxRetries:       cfg.TextMaxRetries,
		DefaultImageProvider: defaultProvider,
		Image: imagegen.Options{
			Size:       cfg.ImageSize,
			Quality:    cfg.ImageQuality,
			Style:      cfg.ImageStyle,
			MaxRetries: cfg.ImageMaxRetries,
		},
		Composition: compositionSettings(cfg),
		Render:      renderOptions(cfg),
	}
}

func compositionSettings(cfg *core.Config) core.CompositionSettings {
	return core.CompositionSettings{
		LogoPosition: core.LogoPosition(cfg.LogoPosition),
		TextOverlay:  cfg.TextOverlay,
		LogoURL:      cfg.LogoURL,
		BrandColor:   cfg.BrandColor,
	}
}

func renderOptions(cfg *core.Config) core.RenderOptions {
	return core.RenderOptions{
		Engine:  core.Engine(cfg.DefaultEngine),
		Width:   cfg.DefaultWidth,
		Height:  cfg.DefaultHeight,
		Quality: cfg.DefaultQuality,
		Format:  core.ImageFormat(cfg.DefaultFormat),
	}
}
