package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/trading-event-queue/internal/model"
)

func throttled(t *testing.T, th *Throttle, userID string) int {
	t.Helper()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	principal := &model.Principal{UserID: userID, Role: model.RoleProducer}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), principalKey{}, principal))

	rec := httptest.NewRecorder()
	th.Middleware(ok).ServeHTTP(rec, req)
	return rec.Code
}

func TestThrottle_EvictsIdleLimiters(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	th := NewThrottle(2)
	th.now = func() time.Time { return clock }

	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusNoContent, throttled(t, th, fmt.Sprintf("producer-%d", i)))
	}
	require.Len(t, th.limiters, 50)

	clock = clock.Add(30 * time.Second)
	assert.Equal(t, http.StatusNoContent, throttled(t, th, "active"))
	assert.Len(t, th.limiters, 51, "entries younger than the idle window stay")

	clock = clock.Add(45 * time.Second)
	assert.Equal(t, http.StatusNoContent, throttled(t, th, "active"))
	assert.Len(t, th.limiters, 1)
	assert.Contains(t, th.limiters, "active")
}

func TestThrottle_BudgetSurvivesWhileActive(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	th := NewThrottle(2)
	th.now = func() time.Time { return clock }

	assert.Equal(t, http.StatusNoContent, throttled(t, th, "7"))
	assert.Equal(t, http.StatusNoContent, throttled(t, th, "7"))
	assert.Equal(t, http.StatusTooManyRequests, throttled(t, th, "7"))

	// One token refills every 30s.
	clock = clock.Add(30 * time.Second)
	assert.Equal(t, http.StatusNoContent, throttled(t, th, "7"))
	assert.Equal(t, http.StatusTooManyRequests, throttled(t, th, "7"))

	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, http.StatusNoContent, throttled(t, th, "7"))
	assert.Equal(t, http.StatusNoContent, throttled(t, th, "7"))
}
