// Package main is the entrypoint for the gudang job worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kiranshivaraju/gudang/internal/cache"
	"github.com/kiranshivaraju/gudang/internal/config"
	"github.com/kiranshivaraju/gudang/internal/filestore"
	"github.com/kiranshivaraju/gudang/internal/queue"
	"github.com/kiranshivaraju/gudang/internal/store"
	"github.com/kiranshivaraju/gudang/internal/transfer"
	"github.com/kiranshivaraju/gudang/internal/worker"
	"github.com/kiranshivaraju/gudang/pkg/models"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := filestore.New(cfg.Storage.UploadDir, cfg.Storage.ExportDir)
	if err != nil {
		return fmt.Errorf("prepare storage: %w", err)
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	pgStore := store.NewPostgresStore(pool)
	jobs := queue.New(pgStore, redisCache, cfg.Jobs.StatusTTL)
	svc := transfer.NewService(pgStore)

	var workers []*worker.Worker
	for _, kind := range models.JobKinds {
		for i := range cfg.Worker.Concurrency {
			id := fmt.Sprintf("%s-%d", kind, i+1)
			workers = append(workers, worker.New(id, kind, jobs, svc, files, cfg.Worker.PollTimeout))
		}
	}
	slog.Info("workers starting", "kinds", models.JobKinds, "concurrency", cfg.Worker.Concurrency)

	if !runAll(ctx, workers, cfg.Worker.DrainTimeout) {
		slog.Warn("drain timeout exceeded, exiting with jobs in flight",
			"drain_timeout", cfg.Worker.DrainTimeout)
		return nil
	}
	slog.Info("workers stopped gracefully")
	return nil
}

// runner is one consume loop.
type runner interface {
	Run(ctx context.Context)
}

// runAll starts every runner and blocks until ctx is cancelled. It then waits
// up to drain for in-flight jobs and reports whether all runners returned.
func runAll[R runner](ctx context.Context, runners []R, drain time.Duration) bool {
	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, draining workers...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(drain):
		return false
	}
}
