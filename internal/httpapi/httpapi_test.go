package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/trading-event-queue/internal/model"
	"github.com/jnst/trading-event-queue/internal/repository"
	"github.com/jnst/trading-event-queue/internal/service"
)

const signingKey = "test-signing-key"

type apiFixture struct {
	handler  http.Handler
	auth     *Authenticator
	producer string
	platform string
	root     string
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func newAPI(t *testing.T, producerRate int) *apiFixture {
	t.Helper()

	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	accounts := repository.NewSQLiteAccountRepositoryImpl(db)
	require.NoError(t, accounts.Save(ctx, &model.Account{ID: 1, UserID: "7"}))
	require.NoError(t, accounts.Save(ctx, &model.Account{ID: 2, UserID: "8"}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewEventServiceImpl(repository.NewSQLiteEventRepositoryImpl(db), accounts, logger)
	auth := NewAuthenticator(signingKey)

	f := &apiFixture{
		handler: NewRouter(Options{
			Service:       svc,
			Accounts:      service.NewAccountServiceImpl(accounts, logger),
			Authenticator: auth,
			Throttle:      NewThrottle(producerRate),
			Logger:        logger,
			MaxBodyBytes:  262144,
		}),
		auth: auth,
	}
	f.producer = f.token(t, "7", model.RoleProducer)
	f.platform = f.token(t, "8", model.RolePlatform)
	f.root = f.token(t, "1", model.RoleRoot)

	return f
}

func (f *apiFixture) token(t *testing.T, userID string, role model.Role) string {
	t.Helper()

	token, err := f.auth.SignToken(userID, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}

	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestEventLifecycle(t *testing.T) {
	f := newAPI(t, 60)

	status, env := f.do(t, http.MethodPost, "/api/v1/accounts/2/events", f.root,
		`{"key":"post.order","payload":{"symbol":"XAUUSD","strategy":2,"type":"buy","volume":0.02}}`)
	require.Equal(t, http.StatusCreated, status, env.Message)
	assert.True(t, env.Success)
	created := decodeData[model.Event](t, env)
	assert.Equal(t, model.EventStatusPending, created.Status)

	status, env = f.do(t, http.MethodPost, "/api/v1/accounts/2/events/consume?limit=10&key=post.order", f.platform, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), env.Meta["count"])
	batch := decodeData[[]model.Event](t, env)
	require.Len(t, batch, 1)
	assert.Equal(t, created.ID, batch[0].ID)
	assert.Equal(t, model.EventStatusDelivered, batch[0].Status)

	status, env = f.do(t, http.MethodPatch, "/api/v1/accounts/2/events/"+created.ID+"/ack", f.platform,
		`{"response":{"ticket":123}}`)
	require.Equal(t, http.StatusOK, status)
	acked := decodeData[model.Event](t, env)
	assert.Equal(t, model.EventStatusProcessed, acked.Status)

	status, env = f.do(t, http.MethodPatch, "/api/v1/accounts/2/events/"+created.ID+"/ack", f.platform, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Event not found or not in delivered status.", env.Message)
	assert.False(t, env.Success)

	status, env = f.do(t, http.MethodGet, "/api/v1/accounts/2/events/"+created.ID+"/response", f.root, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"response":{"ticket":123}}`, string(env.Data))

	status, env = f.do(t, http.MethodGet, "/api/v1/accounts/2/events/history?status=processed", f.platform, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, env.Meta["has_more"])
	assert.Nil(t, env.Meta["next_cursor"])
	assert.Len(t, decodeData[[]model.Event](t, env), 1)
}

func TestHistoryPagination(t *testing.T) {
	f := newAPI(t, 60)

	for i := 0; i < 5; i++ {
		status, _ := f.do(t, http.MethodPost, "/api/v1/accounts/1/events", f.producer, `{"key":"get.ticker","payload":{}}`)
		require.Equal(t, http.StatusCreated, status)
	}

	var (
		sizes []int
		seen  = map[string]bool{}
		path  = "/api/v1/accounts/1/events/history?limit=2"
	)
	for {
		status, env := f.do(t, http.MethodGet, path, f.producer, "")
		require.Equal(t, http.StatusOK, status)

		page := decodeData[[]model.Event](t, env)
		sizes = append(sizes, len(page))
		for _, e := range page {
			assert.False(t, seen[e.ID], "duplicate %s", e.ID)
			seen[e.ID] = true
		}

		if env.Meta["has_more"] != true {
			break
		}
		path = "/api/v1/accounts/1/events/history?limit=2&cursor=" + env.Meta["next_cursor"].(string)
	}

	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Len(t, seen, 5)

	status, env := f.do(t, http.MethodGet, "/api/v1/accounts/1/events/history?cursor=garbage", f.producer, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(env.Data), "Invalid cursor.")
}

func TestErrorMapping(t *testing.T) {
	f := newAPI(t, 60)
	stranger := f.token(t, "99", model.RoleProducer)

	cases := []struct {
		name    string
		method  string
		path    string
		token   string
		body    string
		status  int
		message string
	}{
		{"no token", http.MethodGet, "/api/v1/events/keys", "", "", http.StatusUnauthorized,
			"Authentication credentials were not provided."},
		{"bad token", http.MethodGet, "/api/v1/events/keys", "not-a-jwt", "", http.StatusUnauthorized,
			"Authentication failed."},
		{"not owner", http.MethodPost, "/api/v1/accounts/1/events", stranger, `{"key":"get.ticker","payload":{}}`,
			http.StatusForbidden, "Permission denied."},
		{"wrong role", http.MethodPost, "/api/v1/accounts/1/events/consume", f.producer, "", http.StatusForbidden,
			"Permission denied."},
		{"missing field", http.MethodPost, "/api/v1/accounts/1/events", f.producer,
			`{"key":"post.order","payload":{"strategy":1,"type":"buy","volume":1}}`, http.StatusBadRequest,
			"Validation failed."},
		{"empty schema", http.MethodPost, "/api/v1/accounts/1/events", f.producer,
			`{"key":"get.account.info","payload":{"x":1}}`, http.StatusBadRequest, "Validation failed."},
		{"malformed body", http.MethodPost, "/api/v1/accounts/1/events", f.producer, `{"key":`,
			http.StatusBadRequest, "Malformed request body."},
		{"missing account", http.MethodGet, "/api/v1/accounts/404/events/history", f.root, "",
			http.StatusBadRequest, "Validation failed."},
		{"bad limit", http.MethodPost, "/api/v1/accounts/2/events/consume?limit=abc", f.platform, "",
			http.StatusBadRequest, "Validation failed."},
		{"limit too large", http.MethodPost, "/api/v1/accounts/2/events/consume?limit=101", f.platform, "",
			http.StatusBadRequest, "Validation failed."},
		{"bad event id", http.MethodGet, "/api/v1/accounts/1/events/xyz/response", f.producer, "",
			http.StatusBadRequest, "Validation failed."},
		{"unknown event", http.MethodGet, "/api/v1/accounts/1/events/" + model.NewEventID(time.Now()) + "/response",
			f.producer, "", http.StatusNotFound, "Event not found."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := f.do(t, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.message, env.Message)
			assert.False(t, env.Success)
		})
	}
}

func TestResponseNotYetAvailable(t *testing.T) {
	f := newAPI(t, 60)

	status, env := f.do(t, http.MethodPost, "/api/v1/accounts/1/events", f.producer, `{"key":"get.ticker","payload":{}}`)
	require.Equal(t, http.StatusCreated, status)
	created := decodeData[model.Event](t, env)

	status, env = f.do(t, http.MethodGet, "/api/v1/accounts/1/events/"+created.ID+"/response", f.producer, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "No response available for this event.", env.Message)
}

func TestPayloadBoundsOverHTTP(t *testing.T) {
	f := newAPI(t, 60)

	deep := `{"key":"post.order","payload":{"symbol":"X","strategy":1,"type":"buy","volume":1,` +
		`"extra":{"a":{"b":{"c":{"d":{"e":1}}}}}}}`
	status, env := f.do(t, http.MethodPost, "/api/v1/accounts/1/events", f.producer, deep)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(env.Data), "nesting depth")

	huge := `{"key":"get.ticker","payload":{"blob":"` + strings.Repeat("x", 70000) + `"}}`
	status, env = f.do(t, http.MethodPost, "/api/v1/accounts/1/events", f.producer, huge)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(env.Data), "Payload size exceeds maximum of 65536 bytes.")

	oversized := `{"key":"get.ticker","payload":{"blob":"` + strings.Repeat("x", 300000) + `"}}`
	status, env = f.do(t, http.MethodPost, "/api/v1/accounts/1/events", f.producer, oversized)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Validation failed.", env.Message)
	assert.JSONEq(t, `{"errors":{"payload":["Payload size exceeds maximum of 65536 bytes."]}}`, string(env.Data))
}

func TestAckResponseBounds(t *testing.T) {
	f := newAPI(t, 60)

	push := func() string {
		status, env := f.do(t, http.MethodPost, "/api/v1/accounts/2/events", f.root, `{"key":"get.ticker","payload":{}}`)
		require.Equal(t, http.StatusCreated, status)
		return decodeData[model.Event](t, env).ID
	}
	first, second := push(), push()

	status, _ := f.do(t, http.MethodPost, "/api/v1/accounts/2/events/consume", f.platform, "")
	require.Equal(t, http.StatusOK, status)

	// Schemas hold scalars only, so nesting at the cap is reachable through ack responses.
	atCap := `{"response":{"a":{"b":{"c":{"d":{"e":1,"empty":{}}}}}}}`
	status, env := f.do(t, http.MethodPatch, "/api/v1/accounts/2/events/"+first+"/ack", f.platform, atCap)
	require.Equal(t, http.StatusOK, status, string(env.Data))
	assert.Equal(t, model.EventStatusProcessed, decodeData[model.Event](t, env).Status)

	tooDeep := `{"response":{"a":{"b":{"c":{"d":{"e":{"f":1}}}}}}}`
	status, env = f.do(t, http.MethodPatch, "/api/v1/accounts/2/events/"+second+"/ack", f.platform, tooDeep)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(env.Data), "Payload nesting depth exceeds maximum of 5 levels.")

	escaped := `{"response":{"note":"` + strings.Repeat("&", 15000) + `"}}`
	status, env = f.do(t, http.MethodPatch, "/api/v1/accounts/2/events/"+second+"/ack", f.platform, escaped)
	require.Equal(t, http.StatusOK, status, string(env.Data))

	oversized := `{"response":{"note":"` + strings.Repeat("x", 300000) + `"}}`
	status, env = f.do(t, http.MethodPatch, "/api/v1/accounts/2/events/"+second+"/ack", f.platform, oversized)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"errors":{"response":["Payload size exceeds maximum of 65536 bytes."]}}`, string(env.Data))
}

func TestProducerThrottle(t *testing.T) {
	f := newAPI(t, 2)

	for i := 0; i < 2; i++ {
		status, _ := f.do(t, http.MethodGet, "/api/v1/events/keys", f.producer, "")
		require.Equal(t, http.StatusOK, status)
	}

	status, env := f.do(t, http.MethodGet, "/api/v1/events/keys", f.producer, "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.True(t, strings.HasPrefix(env.Message, "Request was throttled."))

	for i := 0; i < 5; i++ {
		status, _ = f.do(t, http.MethodGet, "/api/v1/events/keys", f.platform, "")
		assert.Equal(t, http.StatusOK, status)
	}
}

func TestKeysAndHealth(t *testing.T) {
	f := newAPI(t, 60)

	status, env := f.do(t, http.MethodGet, "/api/v1/events/keys", f.platform, "")
	require.Equal(t, http.StatusOK, status)

	var entries []struct {
		Key    string           `json:"key"`
		Name   string           `json:"name"`
		Schema []map[string]any `json:"schema"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.NotEmpty(t, entries)
	assert.Equal(t, "post.order", entries[0].Key)
	assert.Equal(t, "POST_ORDER", entries[0].Name)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("event_queue_")))
}

func TestAuthenticator_RejectsExpiredAndForeignTokens(t *testing.T) {
	auth := NewAuthenticator(signingKey)

	expired, err := auth.SignToken("7", model.RoleProducer, -time.Minute)
	require.NoError(t, err)
	_, err = auth.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := NewAuthenticator("other-key").SignToken("7", model.RoleProducer, time.Hour)
	require.NoError(t, err)
	_, err = auth.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	guest, err := auth.SignToken("7", model.Role("guest"), time.Hour)
	require.NoError(t, err)
	_, err = auth.Verify(guest)
	assert.ErrorIs(t, err, ErrInvalidToken)

	eternal, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: "7", Role: model.RoleProducer}).
		SignedString([]byte(signingKey))
	require.NoError(t, err)
	_, err = auth.Verify(eternal)
	assert.ErrorIs(t, err, ErrInvalidToken)

	valid, err := auth.SignToken("7", model.RoleProducer, time.Hour)
	require.NoError(t, err)
	principal, err := auth.Verify(valid)
	require.NoError(t, err)
	assert.Equal(t, &model.Principal{UserID: "7", Role: model.RoleProducer}, principal)
}

func TestSaveAccount(t *testing.T) {
	f := newAPI(t, 60)
	owner := f.token(t, "50", model.RoleProducer)

	status, env := f.do(t, http.MethodPost, "/api/v1/accounts/9/events", owner, `{"key":"get.ticker","payload":{}}`)
	require.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"errors":{"account_id":["Account not found."]}}`, string(env.Data))

	status, env = f.do(t, http.MethodPut, "/api/v1/accounts/9", f.platform, `{"user_id":"50"}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = f.do(t, http.MethodPut, "/api/v1/accounts/9", f.root, `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"errors":{"user_id":["This field is required."]}}`, string(env.Data))

	status, env = f.do(t, http.MethodPut, "/api/v1/accounts/9", f.root, `{"user_id":"50"}`)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"id":9,"user_id":"50"}`, string(env.Data))

	status, _ = f.do(t, http.MethodPost, "/api/v1/accounts/9/events", owner, `{"key":"get.ticker","payload":{}}`)
	assert.Equal(t, http.StatusCreated, status)
}
