package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jnst/trading-event-queue/internal/metrics"
	"github.com/jnst/trading-event-queue/internal/service"
)

// Options configures NewRouter.
type Options struct {
	Service       service.EventService
	Accounts      service.AccountService
	Authenticator *Authenticator
	Throttle      *Throttle
	Logger        *slog.Logger
	MaxBodyBytes  int64
}

// NewRouter builds the API handler.
func NewRouter(opts Options) http.Handler {
	events := NewEventHandler(opts.Service, opts.Logger, opts.MaxBodyBytes)
	accounts := NewAccountHandler(opts.Accounts, opts.Logger, opts.MaxBodyBytes)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(opts.Logger))
	router.Use(middleware.Recoverer)

	router.Get("/health", health)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(opts.Authenticator.Middleware)
		r.Use(opts.Throttle.Middleware)

		r.Get("/events/keys", events.Keys)
		r.Put("/accounts/{account_id}", accounts.Save)

		r.Route("/accounts/{account_id}/events", func(r chi.Router) {
			r.Post("/", events.Push)
			r.Post("/consume", events.Consume)
			r.Get("/history", events.History)
			r.Patch("/{event_id}/ack", events.Ack)
			r.Get("/{event_id}/response", events.Response)
		})
	})

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondMessage(w, http.StatusNotFound, "Not found.")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondMessage(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})

	return router
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			logger.Info("http request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
