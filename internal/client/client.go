// Package client is a small HTTP client for the event queue API, used by pull consumers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jnst/trading-event-queue/internal/model"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string][]string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("api error %d: %s %v", e.StatusCode, e.Message, e.Fields)
	}

	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsNotDelivered reports whether err is the ack precondition failure.
func IsNotDelivered(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client calls the event queue API with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client. A nil httpClient gets a default with a timeout.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Push enqueues an event for accountID.
func (c *Client) Push(ctx context.Context, accountID int64, key string, payload map[string]any) (*model.Event, error) {
	body := map[string]any{"key": key, "payload": payload}

	var event model.Event
	if err := c.do(ctx, http.MethodPost, c.eventsPath(accountID), nil, body, &event); err != nil {
		return nil, err
	}

	return &event, nil
}

// Consume claims up to limit pending events, optionally filtered by keys. A
// non-positive limit uses the server default.
func (c *Client) Consume(ctx context.Context, accountID int64, limit int, keys []string) ([]*model.Event, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if len(keys) > 0 {
		query.Set("key", strings.Join(keys, ","))
	}

	var events []*model.Event
	if err := c.do(ctx, http.MethodPost, c.eventsPath(accountID)+"/consume", query, nil, &events); err != nil {
		return nil, err
	}

	return events, nil
}

// Ack marks a delivered event processed, recording response when it is non-nil.
func (c *Client) Ack(
	ctx context.Context, accountID int64, eventID string, response map[string]any,
) (*model.Event, error) {
	var body any
	if response != nil {
		body = map[string]any{"response": response}
	}

	var event model.Event
	path := c.eventsPath(accountID) + "/" + url.PathEscape(eventID) + "/ack"
	if err := c.do(ctx, http.MethodPatch, path, nil, body, &event); err != nil {
		return nil, err
	}

	return &event, nil
}

func (*Client) eventsPath(accountID int64) string {
	return "/api/v1/accounts/" + strconv.FormatInt(accountID, 10) + "/events"
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: env.Message}
		var data struct {
			Errors map[string][]string `json:"errors"`
		}
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &data) == nil {
			apiErr.Fields = data.Errors
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}

	return nil
}
