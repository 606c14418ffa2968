// Command tts-worker runs a single-role pipeline worker. A parser worker
// consumes the parse queue with the layout recognizer loaded; a converter
// worker consumes the convert queue with the speech synthesizer loaded.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cmoscardi/textbook-tts/internal/audio"
	"github.com/cmoscardi/textbook-tts/internal/blobstore"
	"github.com/cmoscardi/textbook-tts/internal/config"
	"github.com/cmoscardi/textbook-tts/internal/convert"
	"github.com/cmoscardi/textbook-tts/internal/engine"
	"github.com/cmoscardi/textbook-tts/internal/observability"
	"github.com/cmoscardi/textbook-tts/internal/parse"
	"github.com/cmoscardi/textbook-tts/internal/pdfops"
	"github.com/cmoscardi/textbook-tts/internal/queue"
	"github.com/cmoscardi/textbook-tts/internal/storage"
	"github.com/cmoscardi/textbook-tts/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var role string

	cmd := &cobra.Command{
		Use:   "tts-worker",
		Short: "Run a textbook-tts pipeline worker",
		Long: `tts-worker consumes jobs from one stage queue and processes them
one at a time. The role decides which queue and which inference
resource the process is bound to.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Missing .env is fine; environment may already be set.
			_ = godotenv.Load()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if role != "" {
				cfg.Worker.Role = role
			}

			return runWorker(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVarP(&role, "role", "r", "", "worker role: parser or converter")
	return cmd
}

func runWorker(cfg *config.Config) error {
	workerRole, err := engine.ParseRole(cfg.Worker.Role)
	if err != nil {
		return err
	}
	if workerRole == engine.RoleNone {
		return fmt.Errorf("worker requires --role parser or --role converter")
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	}).With().
		Str("worker", cfg.Worker.Name).
		Str("role", string(workerRole)).
		Logger()

	db, err := storage.Open(cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	registry := engine.NewRegistry(logger, workerRole,
		func() (engine.Recognizer, error) {
			return engine.NewRecognizerClient(engine.RecognizerConfig{
				BaseURL: cfg.Recognition.BaseURL,
				Timeout: cfg.Recognition.Timeout,
			}), nil
		},
		func() (engine.Synthesizer, error) {
			return engine.NewSynthesizerClient(engine.SynthesizerConfig{
				BaseURL: cfg.Synthesis.BaseURL,
				Timeout: cfg.Synthesis.Timeout,
				Voice:   cfg.Synthesis.Voice,
				Pace:    cfg.Synthesis.Pace,
			}), nil
		},
	)

	// A worker that cannot reach its device has nothing to offer; let the
	// supervisor restart it against healthy hardware.
	if err := registry.Startup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Inference resource startup failed")
	}

	var queueName string
	var handler worker.Handler

	switch workerRole {
	case engine.RoleParser:
		controller := parse.NewController(parse.Deps{
			Logger:    logger,
			Docs:      storage.NewDocumentRepository(db),
			Jobs:      storage.NewParseJobRepository(db),
			Pages:     storage.NewPageRepository(db),
			Sentences: storage.NewSentenceRepository(db),
			Blobs:     blobs,
			Registry:  registry,
			PDF:       pdfops.Ops{},
			WorkDir:   cfg.Worker.WorkDir,
			URLTTL:    cfg.Storage.SignedURLTTL,
		})
		queueName = cfg.Queue.ParseQueue
		handler = func(ctx context.Context, msg queue.Message) error {
			return controller.Run(ctx, msg.JobID, msg.DocumentID)
		}

	case engine.RoleConverter:
		controller := convert.NewController(convert.Deps{
			Logger:           logger,
			Docs:             storage.NewDocumentRepository(db),
			Jobs:             storage.NewConvertJobRepository(db),
			Blobs:            blobs,
			Registry:         registry,
			Encoder:          audio.NewFFmpegEncoder(cfg.Convert.FFmpegPath, cfg.Convert.MP3Quality),
			WorkDir:          cfg.Worker.WorkDir,
			MaxArtifactBytes: int64(cfg.Convert.MaxArtifactMB) << 20,
			OutputMIMEType:   cfg.Convert.OutputMIMEType,
		})
		queueName = cfg.Queue.ConvertQueue
		handler = func(ctx context.Context, msg queue.Message) error {
			return controller.Run(ctx, msg.JobID, msg.DocumentID)
		}
	}

	q := queue.New(redisClient, logger, queueName, cfg.Worker.Name)
	w := worker.New(logger, worker.FromQueue(q), handler, worker.Options{
		SoftTimeLimit: cfg.Worker.SoftTimeLimit,
		HardTimeLimit: cfg.Worker.HardTimeLimit,
		PollInterval:  cfg.Worker.PollInterval,
	})

	return w.Run(ctx)
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	switch cfg.Storage.Driver {
	case "gcs":
		return blobstore.NewGCSStore(ctx, cfg.Storage.Bucket)
	case "fs":
		return blobstore.NewFSStore(cfg.Storage.LocalRoot)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}
