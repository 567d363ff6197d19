// Package main runs the maintenance jobs: the stuck-event monitor and the retention purger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/rueidis"

	"github.com/jnst/trading-event-queue/internal/config"
	"github.com/jnst/trading-event-queue/internal/jobs"
	"github.com/jnst/trading-event-queue/internal/lock"
	"github.com/jnst/trading-event-queue/internal/logger"
	"github.com/jnst/trading-event-queue/internal/repository"
)

const (
	lockPrefix       = "event-queue:lock:"
	signalBufferSize = 1
	exitCode         = 1
)

func setupRedisClient(cfg *config.Config) (rueidis.Client, error) {
	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		return nil, err
	}

	return redisClient, nil
}

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping scheduler")
		cancel()
	}()

	return ctx, cancel
}

func buildJobs(cfg *config.Config, stores *repository.Stores, log *slog.Logger) []jobs.Job {
	all := []jobs.Job{
		jobs.StuckEventsCheck(stores.Events, cfg.StuckEventThreshold, cfg.StuckCheckInterval, log, time.Now),
	}

	return append(all, jobs.PurgeJobs(stores.Events, stores.Retention, cfg.Retention, cfg.PurgeInterval, log, time.Now)...)
}

func run(ctx context.Context, scheduler *jobs.Scheduler, only string) error {
	if only == "" {
		slog.Info("starting scheduler", slog.String("service", "scheduler"), slog.Any("jobs", scheduler.Jobs()))
		return scheduler.Start(ctx)
	}

	err := scheduler.RunOnce(ctx, only)
	if errors.Is(err, jobs.ErrUnknownJob) {
		return fmt.Errorf("%w %q (known: %s)", jobs.ErrUnknownJob, only, strings.Join(scheduler.Jobs(), ", "))
	}

	return err
}

func main() {
	only := flag.String("run", "", "run a single job once and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(loggerInstance)

	ctx, cancel := setupSignalHandling()
	defer cancel()

	stores, err := repository.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open event store", slog.String("driver", cfg.StoreDriver), slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer stores.Close()

	var distributed lock.Locker
	if cfg.RedisAddr != "" {
		redisClient, err := setupRedisClient(cfg)
		if err != nil {
			slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
			stores.Close()
			os.Exit(exitCode)
		}
		defer redisClient.Close()

		distributed = lock.NewRedisLocker(redisClient, lockPrefix)
	}

	scheduler := jobs.NewScheduler(loggerInstance, distributed, cfg.JobLockTTL, buildJobs(cfg, stores, loggerInstance)...)

	if err := run(ctx, scheduler, *only); err != nil {
		slog.Error("scheduler failed", slog.String("error", err.Error()))
		stores.Close()
		os.Exit(exitCode)
	}

	slog.Info("scheduler stopped")
}
