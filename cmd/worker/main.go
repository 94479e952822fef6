// The worker binary leases processing jobs and runs the video pipeline.
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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/reelworks/reelpress/internal/branding"
	"github.com/reelworks/reelpress/internal/config"
	"github.com/reelworks/reelpress/internal/logger"
	"github.com/reelworks/reelpress/internal/media"
	"github.com/reelworks/reelpress/internal/metrics"
	"github.com/reelworks/reelpress/internal/pipeline"
	"github.com/reelworks/reelpress/internal/queue"
	"github.com/reelworks/reelpress/internal/storage"
	"github.com/reelworks/reelpress/internal/tracing"
	"github.com/reelworks/reelpress/internal/version"
	"github.com/reelworks/reelpress/internal/video"
	"github.com/reelworks/reelpress/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel)
	log := logger.Default().With("component", "worker")
	metrics.SetAppInfo(version.Version, version.Commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		ServiceName: "reelpress-worker",
		Environment: cfg.Environment,
		SampleRate:  cfg.TracingSampleRate,
	})
	if err != nil {
		return err
	}
	defer closeSafely(log, "tracing", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(shutdownCtx)
	})

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	videos := video.NewPostgresStore(pool)
	if err := videos.EnsureSchema(ctx); err != nil {
		return err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer closeSafely(log, "redis", rdb.Close)

	q := queue.NewClient(rdb, queue.Config{
		Stream:       cfg.QueueStream,
		Group:        cfg.QueueGroup,
		Consumer:     "worker-" + uuid.NewString()[:8],
		LeaseTimeout: cfg.LeaseTimeout,
		PollWait:     cfg.PollWait,
	})
	if err := q.EnsureGroup(ctx); err != nil {
		return err
	}

	store, err := buildStorage(ctx, cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.ScratchPath, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	brand := branding.New(store, cfg.BrandingKey,
		cfg.ScratchPath+"/branding", cfg.BrandingRequired)

	proc := pipeline.NewProcessor(
		videos,
		store,
		media.NewFFProbe(cfg.ProbeTimeout),
		media.NewFFmpegRenderer(),
		brand,
		pipeline.Config{
			ScratchDir:     cfg.ScratchPath,
			MinOutputBytes: cfg.MinOutputBytes,
			Spec: media.TargetSpec{
				MaxClipSeconds:   cfg.MaxClipSeconds,
				IntroSeconds:     cfg.IntroSeconds,
				OutroSeconds:     cfg.OutroSeconds,
				TargetHeight:     cfg.TargetHeight,
				WatermarkHeight:  150,
				WatermarkOpacity: 0.5,
				WatermarkFadeIn:  2.0,
			},
		},
	)

	metricsServer := startMetricsServer(cfg.MetricsAddr, log)
	defer closeSafely(log, "metrics server", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	go worker.RunScratchSweeper(logger.WithLogger(ctx, log), cfg.ScratchPath, cfg.ScratchTTL, 10*time.Minute)

	rt := worker.NewRuntime(q, proc.Process, worker.Config{
		Concurrency: cfg.WorkerConcurrency,
		JobTimeout:  cfg.JobTimeout,
	})

	done := make(chan struct{})
	go func() {
		rt.Run(logger.WithLogger(ctx, log))
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down, draining in-flight jobs", "grace", cfg.ShutdownGrace.String())
	select {
	case <-done:
		return nil
	case <-time.After(cfg.ShutdownGrace):
		return errors.New("shutdown grace period elapsed with jobs still running")
	}
}

func buildStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	store, err := storage.New(cfg.StorageBackend, cfg.LocalBasePath, storage.Config{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		UseSSL:    cfg.MinIOUseSSL,
		Region:    cfg.MinIORegion,
	})
	if err != nil {
		return nil, err
	}
	if m, ok := store.(*storage.MinIOStorage); ok {
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, err
		}
	}
	if err := store.HealthCheck(ctx); err != nil {
		return nil, err
	}
	return metrics.NewInstrumentedStorage(store), nil
}

func startMetricsServer(addr string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err.Error())
		}
	}()
	return srv
}

func closeSafely(log *slog.Logger, name string, close func() error) {
	if err := close(); err != nil {
		log.Warn("close failed", "component", name, "error", err.Error())
	}
}
