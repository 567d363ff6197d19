package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/trading-event-queue/internal/model"
)

const eventColumns = `id, account_id, producer_user_id, consumer_id, event_key, payload, response,
	status, delivered_at, processed_at, attempts, created_at, updated_at`

// EventRepositoryImpl implements EventRepository using PostgreSQL.
type EventRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewEventRepositoryImpl creates a new EventRepository implementation.
func NewEventRepositoryImpl(pool *pgxpool.Pool) EventRepository {
	return &EventRepositoryImpl{pool: pool}
}

// Create inserts a new pending event.
func (r *EventRepositoryImpl) Create(ctx context.Context, params *model.CreateEventParams) (*model.Event, error) {
	payload, err := json.Marshal(params.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	created := model.Timestamp(params.CreatedAt)
	row := r.pool.QueryRow(ctx, `
INSERT INTO events (id, account_id, producer_user_id, consumer_id, event_key, payload, response,
	status, delivered_at, processed_at, attempts, created_at, updated_at)
VALUES ($1, $2, $3, NULL, $4, $5, NULL, 'pending', NULL, NULL, 0, $6, $6)
RETURNING `+eventColumns,
		model.NewEventID(created), params.AccountID, params.ProducerUserID, string(params.Key), payload, created,
	)

	event, err := scanPgEvent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}

	return event, nil
}

// GetByID retrieves an event scoped to its account.
func (r *EventRepositoryImpl) GetByID(ctx context.Context, accountID int64, id string) (*model.Event, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 AND account_id = $2`, id, accountID)

	event, err := scanPgEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return event, nil
}

// ListPending retrieves claim candidates, oldest first.
func (r *EventRepositoryImpl) ListPending(ctx context.Context, query *model.PendingQuery) ([]model.Position, error) {
	var b pgQuery
	b.where("account_id = %s", query.AccountID)
	b.where("status = %s", string(model.EventStatusPending))
	if len(query.Keys) > 0 {
		b.where("event_key = ANY(%s)", keyStrings(query.Keys))
	}
	if query.After != nil {
		b.where2("(created_at > %s OR (created_at = %s AND id > %s))",
			query.After.CreatedAt, query.After.CreatedAt, query.After.ID)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, created_at FROM events WHERE `+b.clause()+` ORDER BY created_at ASC, id ASC LIMIT `+b.arg(query.Limit),
		b.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		if err := rows.Scan(&p.ID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending event: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// Claim atomically moves a pending event to delivered.
func (r *EventRepositoryImpl) Claim(ctx context.Context, params *model.ClaimParams) (*model.Event, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE events
SET status = 'delivered',
    consumer_id = $2,
    delivered_at = $3,
    updated_at = $3,
    attempts = attempts + 1
WHERE id = $1 AND status = 'pending'
RETURNING `+eventColumns,
		params.EventID, params.ConsumerID, model.Timestamp(params.Now),
	)

	event, err := scanPgEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrAlreadyClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim event: %w", err)
	}

	return event, nil
}

// Ack atomically moves a delivered event to processed.
func (r *EventRepositoryImpl) Ack(ctx context.Context, params *model.AckParams) (*model.Event, error) {
	var response []byte
	if params.Response != nil {
		var err error
		if response, err = json.Marshal(params.Response); err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}
	}

	row := r.pool.QueryRow(ctx, `
UPDATE events
SET status = 'processed',
    processed_at = $3,
    updated_at = $3,
    response = COALESCE($4::jsonb, response)
WHERE id = $1 AND account_id = $2 AND status = 'delivered'
RETURNING `+eventColumns,
		params.EventID, params.AccountID, model.Timestamp(params.Now), response,
	)

	event, err := scanPgEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrEventNotDelivered
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ack event: %w", err)
	}

	return event, nil
}

// History retrieves an account's events, newest first.
func (r *EventRepositoryImpl) History(ctx context.Context, query *model.HistoryQuery) ([]*model.Event, error) {
	var b pgQuery
	b.where("account_id = %s", query.AccountID)
	if query.Status != "" {
		b.where("status = %s", string(query.Status))
	}
	if query.Key != "" {
		b.where("event_key = %s", string(query.Key))
	}
	if query.Before != nil {
		b.where2("(created_at < %s OR (created_at = %s AND id < %s))",
			query.Before.CreatedAt, query.Before.CreatedAt, query.Before.ID)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE `+b.clause()+
			` ORDER BY created_at DESC, id DESC LIMIT `+b.arg(query.Limit),
		b.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event, err := scanPgEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// CountStuck counts delivered events claimed before deliveredBefore.
func (r *EventRepositoryImpl) CountStuck(ctx context.Context, deliveredBefore time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM events WHERE status = 'delivered' AND delivered_at < $1`, deliveredBefore,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stuck events: %w", err)
	}

	return count, nil
}

// PurgeTerminal deletes processed and failed events created before createdBefore.
func (r *EventRepositoryImpl) PurgeTerminal(ctx context.Context, createdBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM events WHERE status IN ('processed', 'failed') AND created_at < $1`, createdBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge events: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanPgEvent(row pgx.Row) (*model.Event, error) {
	var (
		e           model.Event
		consumerID  pgtype.Text
		key, status string
		payload     []byte
		response    []byte
		deliveredAt pgtype.Timestamptz
		processedAt pgtype.Timestamptz
		attempts    int32
	)

	err := row.Scan(&e.ID, &e.AccountID, &e.ProducerUserID, &consumerID, &key, &payload, &response,
		&status, &deliveredAt, &processedAt, &attempts, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Key = model.EventKey(key)
	e.Status = model.EventStatus(status)
	e.Attempts = int(attempts)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()

	if consumerID.Valid {
		e.ConsumerID = &consumerID.String
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time.UTC()
		e.DeliveredAt = &t
	}
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		e.ProcessedAt = &t
	}

	if err := decodeDocuments(&e, payload, response); err != nil {
		return nil, err
	}

	return &e, nil
}

func decodeDocuments(e *model.Event, payload, response []byte) error {
	if err := json.Unmarshal(payload, &e.Payload); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}

	if len(response) > 0 {
		if err := json.Unmarshal(response, &e.Response); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func keyStrings(keys []model.EventKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// pgQuery accumulates WHERE conditions with numbered placeholders.
type pgQuery struct {
	conds []string
	args  []any
}

func (q *pgQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *pgQuery) where(format string, v any) {
	q.conds = append(q.conds, fmt.Sprintf(format, q.arg(v)))
}

func (q *pgQuery) where2(format string, createdAt, sameCreatedAt time.Time, id string) {
	q.conds = append(q.conds, fmt.Sprintf(format, q.arg(createdAt), q.arg(sameCreatedAt), q.arg(id)))
}

func (q *pgQuery) clause() string {
	return strings.Join(q.conds, " AND ")
}
