// Package main provides a reference pull consumer that claims events over the API and
// acknowledges them once handled.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jnst/trading-event-queue/internal/client"
	"github.com/jnst/trading-event-queue/internal/config"
	"github.com/jnst/trading-event-queue/internal/logger"
	"github.com/jnst/trading-event-queue/internal/model"
)

const (
	signalBufferSize = 1
	exitCode         = 1
)

var errMissingAccount = errors.New("CONSUMER_ACCOUNT_ID and API_TOKEN are required")

// MessageHandler handles claimed events for one account.
type MessageHandler struct {
	api       *client.Client
	accountID int64
	batchSize int
	keys      []string
}

// NewMessageHandler creates a new message handler instance.
func NewMessageHandler(api *client.Client, cfg config.Consumer) *MessageHandler {
	return &MessageHandler{
		api:       api,
		accountID: cfg.AccountID,
		batchSize: cfg.BatchSize,
		keys:      cfg.Keys,
	}
}

// HandleEvent processes a single claimed event and returns the response to record.
func (*MessageHandler) HandleEvent(_ context.Context, event *model.Event) (map[string]any, error) {
	slog.Info("processing event",
		slog.String("event_id", event.ID),
		slog.String("key", string(event.Key)),
		slog.Int("attempts", event.Attempts),
		slog.Any("payload", event.Payload),
	)

	return map[string]any{
		"handled_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *MessageHandler) acknowledgeEvent(ctx context.Context, eventID string, response map[string]any) {
	if _, err := h.api.Ack(ctx, h.accountID, eventID, response); err != nil {
		if client.IsNotDelivered(err) {
			slog.Warn("event no longer delivered, skipping ack", slog.String("event_id", eventID))
			return
		}
		slog.Error("failed to ack event",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)

		return
	}

	slog.Debug("acked event", slog.String("event_id", eventID))
}

func (h *MessageHandler) consumeEvents(ctx context.Context) error {
	events, err := h.api.Consume(ctx, h.accountID, h.batchSize, h.keys)
	if err != nil {
		return err
	}

	if len(events) > 0 {
		slog.Debug("claimed events", slog.Int("count", len(events)))
	}

	for _, event := range events {
		response, err := h.HandleEvent(ctx, event)
		if err != nil {
			// Left delivered; the stuck-event monitor reports it.
			slog.Error("failed to process event",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)

			continue
		}

		h.acknowledgeEvent(ctx, event.ID, response)
	}

	return nil
}

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping consumer")
		cancel()
	}()

	return ctx, cancel
}

func runConsumerLoop(ctx context.Context, handler *MessageHandler, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("consumer stopped")
			return
		case <-ticker.C:
			if err := handler.consumeEvents(ctx); err != nil && ctx.Err() == nil {
				slog.Error("error consuming events", slog.String("error", err.Error()))
			}
		}
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(loggerInstance)

	if cfg.Consumer.AccountID <= 0 || cfg.Consumer.APIToken == "" {
		slog.Error("invalid consumer config", slog.String("error", errMissingAccount.Error()))
		os.Exit(exitCode)
	}

	handler := NewMessageHandler(client.New(cfg.Consumer.APIURL, cfg.Consumer.APIToken, nil), cfg.Consumer)
	ctx, cancel := setupSignalHandling()
	defer cancel()

	slog.Info("starting event consumer",
		slog.String("service", "consumer"),
		slog.String("api", cfg.Consumer.APIURL),
		slog.Int64("account_id", cfg.Consumer.AccountID),
		slog.Any("keys", cfg.Consumer.Keys),
	)

	runConsumerLoop(ctx, handler, cfg.Consumer.PollInterval)
}
