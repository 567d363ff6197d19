// Package service provides business logic layer implementations.
package service

import (
	"context"
	"encoding/json"

	"github.com/jnst/trading-event-queue/internal/model"
	"github.com/jnst/trading-event-queue/internal/schema"
)

// Limits shared by consume and history.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// EventService defines the queue operations. Every method takes the authenticated
// caller; a nil principal is rejected with model.ErrUnauthenticated.
type EventService interface {
	Keys(ctx context.Context, principal *model.Principal) ([]schema.Entry, error)
	Push(ctx context.Context, principal *model.Principal, input *PushInput) (*model.Event, error)
	Consume(ctx context.Context, principal *model.Principal, input *ConsumeInput) ([]*model.Event, error)
	Ack(ctx context.Context, principal *model.Principal, input *AckInput) (*model.Event, error)
	History(ctx context.Context, principal *model.Principal, input *HistoryInput) (*model.HistoryPage, error)
	Response(ctx context.Context, principal *model.Principal, accountID int64, eventID string) (map[string]any, error)
}

// AccountService maintains the account mirror that scopes events.
type AccountService interface {
	Save(ctx context.Context, principal *model.Principal, input *SaveAccountInput) (*model.Account, error)
}

// SaveAccountInput registers AccountID as owned by UserID, replacing any previous owner.
type SaveAccountInput struct {
	AccountID int64
	UserID    string
}

// PushInput is an enqueue request. Payload is the raw JSON body field.
type PushInput struct {
	AccountID int64
	Key       string
	Payload   json.RawMessage
}

// ConsumeInput is a claim request. A nil Limit means DefaultLimit.
type ConsumeInput struct {
	AccountID int64
	Limit     *int
	Keys      []string
}

// AckInput finalizes a delivered event. A missing or null Response leaves the stored
// response untouched.
type AckInput struct {
	AccountID int64
	EventID   string
	Response  json.RawMessage
}

// HistoryInput is a history page request. Empty strings mean no filter.
type HistoryInput struct {
	AccountID int64
	Limit     *int
	Status    string
	Key       string
	Cursor    string
}
