// main package for the echoverse audiobook service
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/echoverse/internal/app"
	"github.com/book-expert/echoverse/internal/config"
	"github.com/book-expert/echoverse/internal/httpapi"
	"github.com/book-expert/echoverse/internal/worker"
)

const (
	bootstrapLogFile = "echoverse-bootstrap.log"
	serviceLogFile   = "echoverse.log"
	shutdownTimeout  = 15 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func loadConfig() (*config.Config, error) {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return nil, err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	err = cfg.EnsureDirectories()
	if err != nil {
		bootstrapLog.Error("Failed to create directories: %v", err)

		return nil, err
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	return cfg, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	components, err := app.Build(cfg, finalLog)
	if err != nil {
		finalLog.Error("Failed to build services: %v", err)

		return fmt.Errorf("failed to build services: %w", err)
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	server := newHTTPServer(components, finalLog)

	go func() {
		errChan <- server.Listen(cfg.Server.Address)
	}()

	if components.NATS != nil {
		natsWorker := worker.NewNatsWorker(
			components.NATS,
			cfg.NATS.AudiobookRequestedSubject,
			components.Store,
			components.Service,
			finalLog,
			worker.DefaultHandleTimeout,
		)

		go func() {
			errChan <- natsWorker.Run(ctx)
		}()
	}

	finalLog.System("EchoVerse listening on %s (demo mode: %t)", cfg.Server.Address, cfg.DemoMode())

	select {
	case <-ctx.Done():
		finalLog.System("Shutting down.")
	case serveErr := <-errChan:
		if serveErr != nil {
			finalLog.Error("Service stopped: %v", serveErr)

			return serveErr
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func newHTTPServer(components *app.Components, log *logger.Logger) *httpapi.Server {
	opts := httpapi.Options{
		WorkDir:      components.Config.Paths.WorkDir,
		BodyLimit:    components.Config.BodyLimitBytes(),
		HistoryLimit: components.Config.History.RecentLimit,
		History:      nil,
		Audio:        nil,
	}

	if components.History != nil {
		opts.History = components.History
	}

	if components.Store != nil {
		opts.Audio = components.Store
	}

	return httpapi.New(components.Service, log, opts)
}

func main() {
	err := run()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
