// Command tts-api serves the job submission and status API. It owns no
// inference resources; it validates requests, creates job rows and enqueues
// work for the stage workers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cmoscardi/textbook-tts/internal/config"
	"github.com/cmoscardi/textbook-tts/internal/observability"
	"github.com/cmoscardi/textbook-tts/internal/queue"
	"github.com/cmoscardi/textbook-tts/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Missing .env is fine; environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("API server failed")
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	db, err := storage.Open(cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := storage.EnsureSchema(ctx, db); err != nil {
		return err
	}

	redisClient, err := queue.Connect(queue.RedisConfig{
		Addr:     cfg.Queue.Addr,
		Password: cfg.Queue.Password,
		DB:       cfg.Queue.DB,
		PoolSize: cfg.Queue.PoolSize,
	})
	if err != nil {
		return err
	}
	defer redisClient.Close()

	api := &API{
		logger:       logger,
		docs:         storage.NewDocumentRepository(db),
		parseJobs:    storage.NewParseJobRepository(db),
		convertJobs:  storage.NewConvertJobRepository(db),
		parseQueue:   queue.New(redisClient, logger, cfg.Queue.ParseQueue, "api"),
		convertQueue: queue.New(redisClient, logger, cfg.Queue.ConvertQueue, "api"),
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newRouter(logger, api),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.GracefulShutdown)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	logger.Info().Msg("API server stopped")
	return nil
}
