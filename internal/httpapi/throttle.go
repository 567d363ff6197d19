package httpapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jnst/trading-event-queue/internal/model"
)

// A limiter idle this long has refilled its whole burst, so dropping it changes nothing.
const limiterIdleAfter = time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle limits producers to a per-user request rate. Root and platform callers are
// not limited.
type Throttle struct {
	perMinute int
	now       func() time.Time

	mu        sync.Mutex
	limiters  map[string]*userLimiter
	lastSweep time.Time
}

// NewThrottle creates a Throttle allowing perMinute requests per producer. A
// non-positive rate disables throttling.
func NewThrottle(perMinute int) *Throttle {
	return &Throttle{perMinute: perMinute, now: time.Now, limiters: make(map[string]*userLimiter)}
}

func (t *Throttle) limiter(userID string, now time.Time) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSweep) >= limiterIdleAfter {
		for id, ul := range t.limiters {
			if now.Sub(ul.lastSeen) >= limiterIdleAfter {
				delete(t.limiters, id)
			}
		}
		t.lastSweep = now
	}

	ul, ok := t.limiters[userID]
	if !ok {
		ul = &userLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(t.perMinute)), t.perMinute),
		}
		t.limiters[userID] = ul
	}
	ul.lastSeen = now

	return ul.limiter
}

// Middleware answers 429 once a producer exhausts its budget. It must run after
// authentication.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFrom(r.Context())
		if t.perMinute <= 0 || principal == nil || principal.Role != model.RoleProducer {
			next.ServeHTTP(w, r)
			return
		}

		now := t.now()
		reservation := t.limiter(principal.UserID, now).ReserveN(now, 1)
		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.CancelAt(now)

			wait := int(math.Ceil(delay.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(wait))
			respondMessage(w, http.StatusTooManyRequests, fmt.Sprintf("%s Try again in %d seconds.", msgThrottled, wait))
			return
		}

		next.ServeHTTP(w, r)
	})
}
