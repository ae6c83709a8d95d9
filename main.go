package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"postforge/core"
	"postforge/core/validation"
	"postforge/logging"
	"postforge/shutdown"
)

func main() {
	if HandleServiceCommand(os.Args) {
		return
	}

	isService, err := RunAsService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "service error: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
	if isService {
		return
	}

	os.Exit(runForeground())
}

// runForeground runs the service until SIGINT or SIGTERM and returns the
// process exit code.
func runForeground() int {
	cfg, logger, code := bootstrap(true)
	if code != core.ExitCodeSuccess {
		return code
	}

	manager := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
	manager.Start()
	return serve(cfg, logger, manager)
}

// bootstrap loads .env and the configuration, builds the logger and runs
// the startup checks.
func bootstrap(showProgress bool) (*core.Config, *logging.Logger, int) {
	if err := godotenv.Load(); err != nil {
		// Logger isn't initialized yet.
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return nil, nil, core.ExitCodeForError(err)
	}

	logger, err := logging.NewLogger(logging.Options{
		Development: cfg.Development,
		Level:       cfg.LogLevel,
		FilePath:    cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return nil, nil, core.ExitCodeError
	}

	if code := runStartupValidation(cfg, logger, showProgress); code != core.ExitCodeSuccess {
		_ = logger.Sync()
		return nil, nil, code
	}

	logger.Info("configuration loaded",
		zap.String("version", core.VersionInfo()),
		zap.String("listen", cfg.ListenAddr),
		zap.Strings("text_models", cfg.TextModels),
		zap.String("image_providers", cfg.ImageProviderList()),
		zap.String("render_engine", cfg.DefaultEngine),
		zap.String("output_dir", cfg.OutputDir),
		zap.String("database", cfg.DatabasePath),
		zap.Int("workers", cfg.Workers),
		zap.Bool("development", cfg.Development),
	)
	return cfg, logger, core.ExitCodeSuccess
}

// runStartupValidation runs the configuration suite and logs each failed
// step.
func runStartupValidation(cfg *core.Config, logger *logging.Logger, showProgress bool) int {
	result := validation.NewValidationSuite(cfg).
		WithShowProgress(showProgress).
		Validate(context.Background())

	if !result.Success {
		logger.Error("configuration validation failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)
		for _, step := range result.Steps {
			if step.Status == validation.StepFailed {
				logger.Error("validation step failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}
		if err := result.FirstError(); err != nil {
			return core.ExitCodeForError(err)
		}
		return core.ExitCodeError
	}

	logger.Info("configuration validation passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Int("warnings", result.Warnings),
		zap.Duration("duration", result.Duration),
	)
	return core.ExitCodeSuccess
}

// serve builds the application and blocks until manager's context ends.
func serve(cfg *core.Config, logger *logging.Logger, manager *shutdown.Manager) int {
	app, err := newApplication(manager.Context(), cfg, logger, manager)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		_ = manager.Shutdown()
		_ = logger.Sync()
		return core.ExitCodeForError(err)
	}
	return app.run()
}
