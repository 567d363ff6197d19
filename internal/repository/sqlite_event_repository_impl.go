package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jnst/trading-event-queue/internal/model"
)

// SQLiteEventRepositoryImpl implements EventRepository using SQLite.
type SQLiteEventRepositoryImpl struct {
	db *sql.DB
}

// NewSQLiteEventRepositoryImpl creates a new SQLite-backed EventRepository.
func NewSQLiteEventRepositoryImpl(db *sql.DB) EventRepository {
	return &SQLiteEventRepositoryImpl{db: db}
}

// Create inserts a new pending event.
func (r *SQLiteEventRepositoryImpl) Create(ctx context.Context, params *model.CreateEventParams) (*model.Event, error) {
	payload, err := json.Marshal(params.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	created := model.Timestamp(params.CreatedAt)
	row := r.db.QueryRowContext(ctx, `
INSERT INTO events (id, account_id, producer_user_id, consumer_id, event_key, payload, response,
	status, delivered_at, processed_at, attempts, created_at, updated_at)
VALUES (?, ?, ?, NULL, ?, ?, NULL, 'pending', NULL, NULL, 0, ?, ?)
RETURNING `+eventColumns,
		model.NewEventID(created), params.AccountID, params.ProducerUserID, string(params.Key), string(payload),
		toMicros(created), toMicros(created),
	)

	event, err := scanSQLiteEvent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}

	return event, nil
}

// GetByID retrieves an event scoped to its account.
func (r *SQLiteEventRepositoryImpl) GetByID(ctx context.Context, accountID int64, id string) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ? AND account_id = ?`, id, accountID)

	event, err := scanSQLiteEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return event, nil
}

// ListPending retrieves claim candidates, oldest first.
func (r *SQLiteEventRepositoryImpl) ListPending(ctx context.Context, query *model.PendingQuery) ([]model.Position, error) {
	var b sqliteQuery
	b.where("account_id = ?", query.AccountID)
	b.where("status = ?", string(model.EventStatusPending))
	if len(query.Keys) > 0 {
		b.whereIn("event_key", keyStrings(query.Keys))
	}
	if query.After != nil {
		at := toMicros(query.After.CreatedAt)
		b.where("(created_at > ? OR (created_at = ? AND id > ?))", at, at, query.After.ID)
	}
	b.args = append(b.args, query.Limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at FROM events WHERE `+b.clause()+` ORDER BY created_at ASC, id ASC LIMIT ?`,
		b.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var (
			id string
			us int64
		)
		if err := rows.Scan(&id, &us); err != nil {
			return nil, fmt.Errorf("failed to scan pending event: %w", err)
		}
		positions = append(positions, model.Position{CreatedAt: fromMicros(us), ID: id})
	}

	return positions, rows.Err()
}

// Claim atomically moves a pending event to delivered.
func (r *SQLiteEventRepositoryImpl) Claim(ctx context.Context, params *model.ClaimParams) (*model.Event, error) {
	now := toMicros(model.Timestamp(params.Now))
	row := r.db.QueryRowContext(ctx, `
UPDATE events
SET status = 'delivered',
    consumer_id = ?,
    delivered_at = ?,
    updated_at = ?,
    attempts = attempts + 1
WHERE id = ? AND status = 'pending'
RETURNING `+eventColumns,
		params.ConsumerID, now, now, params.EventID,
	)

	event, err := scanSQLiteEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrAlreadyClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim event: %w", err)
	}

	return event, nil
}

// Ack atomically moves a delivered event to processed.
func (r *SQLiteEventRepositoryImpl) Ack(ctx context.Context, params *model.AckParams) (*model.Event, error) {
	var response sql.NullString
	if params.Response != nil {
		encoded, err := json.Marshal(params.Response)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}
		response = sql.NullString{String: string(encoded), Valid: true}
	}

	now := toMicros(model.Timestamp(params.Now))
	row := r.db.QueryRowContext(ctx, `
UPDATE events
SET status = 'processed',
    processed_at = ?,
    updated_at = ?,
    response = COALESCE(?, response)
WHERE id = ? AND account_id = ? AND status = 'delivered'
RETURNING `+eventColumns,
		now, now, response, params.EventID, params.AccountID,
	)

	event, err := scanSQLiteEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrEventNotDelivered
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ack event: %w", err)
	}

	return event, nil
}

// History retrieves an account's events, newest first.
func (r *SQLiteEventRepositoryImpl) History(ctx context.Context, query *model.HistoryQuery) ([]*model.Event, error) {
	var b sqliteQuery
	b.where("account_id = ?", query.AccountID)
	if query.Status != "" {
		b.where("status = ?", string(query.Status))
	}
	if query.Key != "" {
		b.where("event_key = ?", string(query.Key))
	}
	if query.Before != nil {
		at := toMicros(query.Before.CreatedAt)
		b.where("(created_at < ? OR (created_at = ? AND id < ?))", at, at, query.Before.ID)
	}
	b.args = append(b.args, query.Limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE `+b.clause()+` ORDER BY created_at DESC, id DESC LIMIT ?`,
		b.args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// CountStuck counts delivered events claimed before deliveredBefore.
func (r *SQLiteEventRepositoryImpl) CountStuck(ctx context.Context, deliveredBefore time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM events WHERE status = 'delivered' AND delivered_at < ?`, toMicros(deliveredBefore),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stuck events: %w", err)
	}

	return count, nil
}

// PurgeTerminal deletes processed and failed events created before createdBefore.
func (r *SQLiteEventRepositoryImpl) PurgeTerminal(ctx context.Context, createdBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE status IN ('processed', 'failed') AND created_at < ?`, toMicros(createdBefore),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge events: %w", err)
	}

	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEvent(row rowScanner) (*model.Event, error) {
	var (
		e                    model.Event
		consumerID           sql.NullString
		key, status, payload string
		response             sql.NullString
		deliveredAt          sql.NullInt64
		processedAt          sql.NullInt64
		createdAt, updatedAt int64
	)

	err := row.Scan(&e.ID, &e.AccountID, &e.ProducerUserID, &consumerID, &key, &payload, &response,
		&status, &deliveredAt, &processedAt, &e.Attempts, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.Key = model.EventKey(key)
	e.Status = model.EventStatus(status)
	e.CreatedAt = fromMicros(createdAt)
	e.UpdatedAt = fromMicros(updatedAt)
	e.DeliveredAt = nullableTime(deliveredAt)
	e.ProcessedAt = nullableTime(processedAt)

	if consumerID.Valid {
		e.ConsumerID = &consumerID.String
	}

	var rawResponse []byte
	if response.Valid {
		rawResponse = []byte(response.String)
	}

	if err := decodeDocuments(&e, []byte(payload), rawResponse); err != nil {
		return nil, err
	}

	return &e, nil
}

// sqliteQuery accumulates WHERE conditions with positional placeholders.
type sqliteQuery struct {
	conds []string
	args  []any
}

func (q *sqliteQuery) where(cond string, args ...any) {
	q.conds = append(q.conds, cond)
	q.args = append(q.args, args...)
}

func (q *sqliteQuery) whereIn(column string, values []string) {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	q.conds = append(q.conds, column+" IN ("+marks+")")
	for _, v := range values {
		q.args = append(q.args, v)
	}
}

func (q *sqliteQuery) clause() string {
	return strings.Join(q.conds, " AND ")
}
