// Package main provides the HTTP API server for the trading event queue.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jnst/trading-event-queue/internal/config"
	"github.com/jnst/trading-event-queue/internal/httpapi"
	"github.com/jnst/trading-event-queue/internal/logger"
	"github.com/jnst/trading-event-queue/internal/repository"
	"github.com/jnst/trading-event-queue/internal/service"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
	signalBufferSize  = 1
	exitCode          = 1
)

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping API server")
		cancel()
	}()

	return ctx, cancel
}

func serve(ctx context.Context, server *http.Server) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
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

	eventService := service.NewEventServiceImpl(stores.Events, stores.Accounts, loggerInstance)
	accountService := service.NewAccountServiceImpl(stores.Accounts, loggerInstance)

	server := &http.Server{
		Addr: net.JoinHostPort("", cfg.Port),
		Handler: httpapi.NewRouter(httpapi.Options{
			Service:       eventService,
			Accounts:      accountService,
			Authenticator: httpapi.NewAuthenticator(cfg.JWTSigningKey),
			Throttle:      httpapi.NewThrottle(cfg.ProducerRatePerMinute),
			Logger:        loggerInstance,
			MaxBodyBytes:  cfg.MaxBodyBytes,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(loggerInstance.Handler(), slog.LevelError),
	}

	slog.Info("starting API server",
		slog.String("service", "api"),
		slog.String("port", cfg.Port),
		slog.String("driver", cfg.StoreDriver),
	)

	if err := serve(ctx, server); err != nil {
		slog.Error("API server stopped with error", slog.String("error", err.Error()))
		stores.Close()
		os.Exit(exitCode)
	}

	slog.Info("API server stopped")
}
