package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jnst/trading-event-queue/internal/authz"
	"github.com/jnst/trading-event-queue/internal/metrics"
	"github.com/jnst/trading-event-queue/internal/model"
	"github.com/jnst/trading-event-queue/internal/repository"
	"github.com/jnst/trading-event-queue/internal/schema"
)

// EventServiceImpl implements EventService on top of the event and account repositories.
type EventServiceImpl struct {
	eventRepo   repository.EventRepository
	accountRepo repository.AccountRepository
	logger      *slog.Logger
	now         func() time.Time
}

// NewEventServiceImpl creates a new EventService implementation.
func NewEventServiceImpl(
	eventRepo repository.EventRepository,
	accountRepo repository.AccountRepository,
	logger *slog.Logger,
) EventService {
	return &EventServiceImpl{
		eventRepo:   eventRepo,
		accountRepo: accountRepo,
		logger:      logger,
		now:         time.Now,
	}
}

// Keys lists the registered event keys and their schemas.
func (*EventServiceImpl) Keys(_ context.Context, principal *model.Principal) ([]schema.Entry, error) {
	if err := authz.Authorize(authz.OpKeys, principal, nil); err != nil {
		return nil, err
	}

	return schema.Entries(), nil
}

// Push validates and enqueues a new pending event.
func (s *EventServiceImpl) Push(
	ctx context.Context, principal *model.Principal, input *PushInput,
) (*model.Event, error) {
	if err := s.gate(ctx, authz.OpPush, principal, input.AccountID); err != nil {
		return nil, err
	}

	key, err := parseKey("key", input.Key, true)
	if err != nil {
		return nil, err
	}

	raw, err := schema.DecodeObject("payload", input.Payload)
	if err != nil {
		return nil, err
	}

	payload, err := schema.Validate(key, raw)
	if err != nil {
		return nil, err
	}

	event, err := s.eventRepo.Create(ctx, &model.CreateEventParams{
		AccountID:      input.AccountID,
		ProducerUserID: principal.UserID,
		Key:            key,
		Payload:        payload,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	metrics.EventsPushed.WithLabelValues(string(key)).Inc()
	s.logger.Debug("event pushed",
		slog.String("event_id", event.ID),
		slog.Int64("account_id", event.AccountID),
		slog.String("key", string(key)))

	return event, nil
}

// Consume claims up to the requested number of pending events, oldest first. Claims are
// conditional writes; candidates taken by a concurrent consumer are skipped.
func (s *EventServiceImpl) Consume(
	ctx context.Context, principal *model.Principal, input *ConsumeInput,
) ([]*model.Event, error) {
	if err := s.gate(ctx, authz.OpConsume, principal, input.AccountID); err != nil {
		return nil, err
	}

	limit, err := parseLimit(input.Limit)
	if err != nil {
		return nil, err
	}

	keys, err := parseKeys(input.Keys)
	if err != nil {
		return nil, err
	}

	claimed := make([]*model.Event, 0, limit)
	query := &model.PendingQuery{AccountID: input.AccountID, Keys: keys}

	for len(claimed) < limit {
		query.Limit = limit - len(claimed)

		candidates, err := s.eventRepo.ListPending(ctx, query)
		if err != nil {
			return s.partial(claimed, fmt.Errorf("failed to list pending events: %w", err))
		}

		for _, candidate := range candidates {
			event, err := s.eventRepo.Claim(ctx, &model.ClaimParams{
				EventID:    candidate.ID,
				ConsumerID: principal.UserID,
				Now:        s.now(),
			})
			if errors.Is(err, model.ErrAlreadyClaimed) {
				metrics.ClaimConflicts.Inc()
				continue
			}
			if err != nil {
				return s.partial(claimed, fmt.Errorf("failed to claim event: %w", err))
			}

			metrics.EventsClaimed.Inc()
			claimed = append(claimed, event)
		}

		if len(candidates) < query.Limit {
			break
		}

		last := candidates[len(candidates)-1]
		query.After = &last
	}

	return claimed, nil
}

// partial returns what was already claimed when a later storage call fails. Those events
// are delivered and must reach the caller; an empty batch surfaces the error instead.
func (s *EventServiceImpl) partial(claimed []*model.Event, err error) ([]*model.Event, error) {
	if len(claimed) == 0 {
		return nil, err
	}

	s.logger.Error("consume stopped early", slog.Int("claimed", len(claimed)), slog.String("error", err.Error()))

	return claimed, nil
}

// Ack finalizes a delivered event, storing the optional response.
func (s *EventServiceImpl) Ack(ctx context.Context, principal *model.Principal, input *AckInput) (*model.Event, error) {
	account, err := s.accountRepo.GetByID(ctx, input.AccountID)
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if err := authz.Authorize(authz.OpAck, principal, account); err != nil {
		return nil, err
	}

	if err := validateEventID(input.EventID); err != nil {
		return nil, err
	}

	var response map[string]any
	if trimmed := bytes.TrimSpace(input.Response); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if response, err = schema.DecodeObject("response", input.Response); err != nil {
			return nil, err
		}
	}

	event, err := s.eventRepo.Ack(ctx, &model.AckParams{
		EventID:   input.EventID,
		AccountID: input.AccountID,
		Response:  response,
		Now:       s.now(),
	})
	if err != nil {
		return nil, err
	}

	metrics.EventsAcked.Inc()

	return event, nil
}

// History returns one page of the account's events, newest first.
func (s *EventServiceImpl) History(
	ctx context.Context, principal *model.Principal, input *HistoryInput,
) (*model.HistoryPage, error) {
	if err := s.gate(ctx, authz.OpHistory, principal, input.AccountID); err != nil {
		return nil, err
	}

	verr := &model.ValidationError{}

	limit, err := parseLimit(input.Limit)
	collect(verr, err)

	status := model.EventStatus(input.Status)
	if input.Status != "" && !status.Valid() {
		verr.Add("status", fmt.Sprintf("%q is not a valid choice.", input.Status))
	}

	key, err := parseKey("key", input.Key, false)
	collect(verr, err)

	var before *model.Position
	if input.Cursor != "" {
		position, err := model.DecodeCursor(input.Cursor)
		collect(verr, err)
		before = &position
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}

	events, err := s.eventRepo.History(ctx, &model.HistoryQuery{
		AccountID: input.AccountID,
		Status:    status,
		Key:       key,
		Before:    before,
		Limit:     limit + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	page := &model.HistoryPage{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		page.HasMore = true
		page.NextCursor = model.EncodeCursor(page.Events[limit-1].Position())
	}

	return page, nil
}

// Response returns the recorded response of an event.
func (s *EventServiceImpl) Response(
	ctx context.Context, principal *model.Principal, accountID int64, eventID string,
) (map[string]any, error) {
	if err := s.gate(ctx, authz.OpResponse, principal, accountID); err != nil {
		return nil, err
	}

	if err := validateEventID(eventID); err != nil {
		return nil, err
	}

	event, err := s.eventRepo.GetByID(ctx, accountID, eventID)
	if err != nil {
		return nil, err
	}

	if event.Response == nil {
		return nil, model.ErrNoResponse
	}

	return event.Response, nil
}

// gate confirms the account exists and the caller may run op on it.
func (s *EventServiceImpl) gate(
	ctx context.Context, op authz.Operation, principal *model.Principal, accountID int64,
) error {
	if principal == nil {
		return model.ErrUnauthenticated
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return model.NewValidationError("account_id", "Account not found.")
	}
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}

	return authz.Authorize(op, principal, account)
}

func parseLimit(limit *int) (int, error) {
	switch {
	case limit == nil:
		return DefaultLimit, nil
	case *limit < 1:
		return 0, model.NewValidationError("limit", "Ensure this value is greater than or equal to 1.")
	case *limit > MaxLimit:
		return 0, model.NewValidationError("limit",
			fmt.Sprintf("Ensure this value is less than or equal to %d.", MaxLimit))
	default:
		return *limit, nil
	}
}

func parseKey(field, raw string, required bool) (model.EventKey, error) {
	if raw == "" {
		if required {
			return "", model.NewValidationError(field, "This field is required.")
		}
		return "", nil
	}

	key := model.EventKey(raw)
	if !schema.Registered(key) {
		return "", model.NewValidationError(field, fmt.Sprintf("%q is not a valid choice.", raw))
	}

	return key, nil
}

func parseKeys(raw []string) ([]model.EventKey, error) {
	verr := &model.ValidationError{}
	keys := make([]model.EventKey, 0, len(raw))

	for _, r := range raw {
		key, err := parseKey("key", r, false)
		if err != nil {
			collect(verr, err)
			continue
		}
		if key != "" {
			keys = append(keys, key)
		}
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

func validateEventID(id string) error {
	if !model.ValidEventID(id) {
		return model.NewValidationError("event_id", fmt.Sprintf("%q is not a valid event id.", id))
	}

	return nil
}

// collect merges the field messages of a validation error into verr.
func collect(verr *model.ValidationError, err error) {
	var fieldErr *model.ValidationError
	if !errors.As(err, &fieldErr) {
		return
	}

	for field, messages := range fieldErr.Fields {
		for _, msg := range messages {
			verr.Add(field, msg)
		}
	}
}
