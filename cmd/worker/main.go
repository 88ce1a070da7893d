// The worker consumes document processing jobs and runs them through the OCR
// pipeline. It exposes a small health endpoint and shuts down gracefully:
// SIGINT/SIGTERM stops the poll loop after the in-flight job finishes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/ocrcheck/pipeline/internal/analyze"
	"github.com/ocrcheck/pipeline/internal/blob"
	"github.com/ocrcheck/pipeline/internal/config"
	"github.com/ocrcheck/pipeline/internal/ocr"
	"github.com/ocrcheck/pipeline/internal/pipeline"
	"github.com/ocrcheck/pipeline/internal/queue"
	"github.com/ocrcheck/pipeline/internal/raster"
	"github.com/ocrcheck/pipeline/internal/search"
	"github.com/ocrcheck/pipeline/internal/store"
	"github.com/ocrcheck/pipeline/internal/tabledetect"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if err := st.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	jobs, err := newQueue(ctx, cfg)
	if err != nil {
		return err
	}

	analyzer, err := analyze.New(ctx, analyze.Config{
		Enabled:   cfg.AnalysisEnabled,
		ProjectID: cfg.VertexProjectID,
		Region:    cfg.VertexRegion,
		Model:     cfg.VertexModel,
	})
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}
	defer analyzer.Close()

	indexer, err := newIndexer(cfg)
	if err != nil {
		return err
	}

	worker := pipeline.NewWorker(pipeline.Deps{
		Store:      st,
		Blobs:      blobs,
		Queue:      jobs,
		Rasterizer: raster.New(),
		Recognizer: ocr.NewTesseractEngine(
			ocr.WithLanguages(cfg.OCRLanguages...),
			ocr.WithDPI(cfg.OCRDPI),
		),
		Tables:      tabledetect.New(),
		Analyzer:    analyzer,
		Indexer:     indexer,
		PollTimeout: cfg.PollTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return serveHealth(gctx, cfg.HealthAddr)
	})

	slog.Info("worker running",
		"storage", cfg.StorageBackend,
		"queue", cfg.QueueBackend,
		"analysis", cfg.AnalysisEnabled,
		"indexing", cfg.OpenSearchURL != "")
	return g.Wait()
}

func newBlobStore(ctx context.Context, cfg *config.Config) (pipeline.BlobStore, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		return blob.NewS3Store(ctx, blob.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
	case config.StorageGCS:
		return blob.NewGCSStore(ctx, cfg.GCSBucket)
	case config.StorageFilesystem:
		return blob.NewFSStore(cfg.FilesystemRoot)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newQueue(ctx context.Context, cfg *config.Config) (pipeline.JobQueue, error) {
	switch cfg.QueueBackend {
	case config.QueueRedis:
		return queue.NewRedisQueue(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.QueueName)
	case config.QueueRabbitMQ:
		return queue.NewRabbitQueue(cfg.RabbitMQURL, cfg.QueueName)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

func newIndexer(cfg *config.Config) (pipeline.Indexer, error) {
	if cfg.OpenSearchURL == "" {
		slog.Info("search indexing disabled, no OPENSEARCH_URL configured")
		return search.Disabled{}, nil
	}
	return search.NewOpenSearchIndexer(cfg.OpenSearchURL, cfg.OpenSearchIndex)
}

// serveHealth runs the liveness endpoint until ctx is canceled.
func serveHealth(ctx context.Context, addr string) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{Addr: addr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
