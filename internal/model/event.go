// Package model defines domain models and data structures.
package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventStatus is the lifecycle state of a queued event.
type EventStatus string

const (
	// EventStatusPending marks an event waiting to be claimed.
	EventStatusPending EventStatus = "pending"
	// EventStatusDelivered marks an event claimed by a consumer but not yet acknowledged.
	EventStatusDelivered EventStatus = "delivered"
	// EventStatusProcessed marks an acknowledged event.
	EventStatusProcessed EventStatus = "processed"
	// EventStatusFailed is reserved; no operation moves an event into it yet.
	EventStatusFailed EventStatus = "failed"
)

// EventStatuses lists every status in lifecycle order.
var EventStatuses = []EventStatus{
	EventStatusPending,
	EventStatusDelivered,
	EventStatusProcessed,
	EventStatusFailed,
}

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	for _, status := range EventStatuses {
		if s == status {
			return true
		}
	}

	return false
}

// Terminal reports whether s can no longer be claimed and may be purged.
func (s EventStatus) Terminal() bool {
	return s == EventStatusProcessed || s == EventStatusFailed
}

// EventKey names the command carried by an event, e.g. "post.order".
type EventKey string

// Event is a unit of work routed from a producer to a consumer through the queue.
type Event struct {
	ID             string         `json:"id"`
	AccountID      int64          `json:"account_id"`
	ProducerUserID string         `json:"user_id"`
	ConsumerID     *string        `json:"consumer_id"`
	Key            EventKey       `json:"key"`
	Payload        map[string]any `json:"payload"`
	Response       map[string]any `json:"response"`
	Status         EventStatus    `json:"status"`
	DeliveredAt    *time.Time     `json:"delivered_at"`
	ProcessedAt    *time.Time     `json:"processed_at"`
	Attempts       int            `json:"attempts"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Position returns the (created_at, id) pair that orders this event.
func (e *Event) Position() Position {
	return Position{CreatedAt: e.CreatedAt, ID: e.ID}
}

// Position locates an event in (created_at, id) order. It backs both the consume scan
// and the history cursor.
type Position struct {
	CreatedAt time.Time
	ID        string
}

// CreateEventParams represents parameters for inserting a new pending event.
type CreateEventParams struct {
	AccountID      int64
	ProducerUserID string
	Key            EventKey
	Payload        map[string]any
	CreatedAt      time.Time
}

// PendingQuery selects claim candidates for one account, oldest first.
type PendingQuery struct {
	AccountID int64
	Keys      []EventKey
	After     *Position
	Limit     int
}

// ClaimParams describes a pending→delivered transition.
type ClaimParams struct {
	EventID    string
	ConsumerID string
	Now        time.Time
}

// AckParams describes a delivered→processed transition. A nil Response leaves any
// stored response untouched.
type AckParams struct {
	EventID   string
	AccountID int64
	Response  map[string]any
	Now       time.Time
}

// HistoryQuery selects an account's events newest first.
type HistoryQuery struct {
	AccountID int64
	Status    EventStatus
	Key       EventKey
	Before    *Position
	Limit     int
}

// HistoryPage is one page of history results.
type HistoryPage struct {
	Events     []*Event
	NextCursor string
	HasMore    bool
}

// NewEventID returns a ULID whose time component is t, so ids sort in creation order.
func NewEventID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// ValidEventID reports whether id is a well-formed event id.
func ValidEventID(id string) bool {
	_, err := ulid.ParseStrict(id)

	return err == nil
}

// Timestamp normalizes t to the precision every store persists: UTC microseconds.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
