package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jnst/trading-event-queue/internal/model"
	"github.com/jnst/trading-event-queue/internal/schema"
	"github.com/jnst/trading-event-queue/internal/service"
)

// EventHandler serves the event queue endpoints.
type EventHandler struct {
	service      service.EventService
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(svc service.EventService, logger *slog.Logger, maxBodyBytes int64) *EventHandler {
	return &EventHandler{service: svc, logger: logger, maxBodyBytes: maxBodyBytes}
}

type pushRequest struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

type ackRequest struct {
	Response json.RawMessage `json:"response"`
}

// Keys handles GET /events/keys.
func (h *EventHandler) Keys(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Keys(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respond(w, http.StatusOK, Envelope{Data: entries})
}

// Push handles POST /accounts/{account_id}/events.
func (h *EventHandler) Push(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req pushRequest
	if !h.decodeBody(w, r, &req, "payload", false) {
		return
	}

	event, err := h.service.Push(r.Context(), PrincipalFrom(r.Context()), &service.PushInput{
		AccountID: accountID,
		Key:       req.Key,
		Payload:   req.Payload,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respond(w, http.StatusCreated, Envelope{Data: event})
}

// Consume handles POST /accounts/{account_id}/events/consume.
func (h *EventHandler) Consume(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	events, err := h.service.Consume(r.Context(), PrincipalFrom(r.Context()), &service.ConsumeInput{
		AccountID: accountID,
		Limit:     limit,
		Keys:      queryList(r, "key"),
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respond(w, http.StatusOK, Envelope{Data: events, Meta: map[string]any{"count": len(events)}})
}

// Ack handles PATCH /accounts/{account_id}/events/{event_id}/ack.
func (h *EventHandler) Ack(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req ackRequest
	if !h.decodeBody(w, r, &req, "response", true) {
		return
	}

	event, err := h.service.Ack(r.Context(), PrincipalFrom(r.Context()), &service.AckInput{
		AccountID: accountID,
		EventID:   chi.URLParam(r, "event_id"),
		Response:  req.Response,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respond(w, http.StatusOK, Envelope{Data: event})
}

// History handles GET /accounts/{account_id}/events/history.
func (h *EventHandler) History(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	query := r.URL.Query()
	page, err := h.service.History(r.Context(), PrincipalFrom(r.Context()), &service.HistoryInput{
		AccountID: accountID,
		Limit:     limit,
		Status:    query.Get("status"),
		Key:       query.Get("key"),
		Cursor:    query.Get("cursor"),
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	meta := map[string]any{"has_more": page.HasMore, "next_cursor": nil}
	if page.HasMore {
		meta["next_cursor"] = page.NextCursor
	}

	events := page.Events
	if events == nil {
		events = []*model.Event{}
	}

	respond(w, http.StatusOK, Envelope{Data: events, Meta: meta})
}

// Response handles GET /accounts/{account_id}/events/{event_id}/response.
func (h *EventHandler) Response(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	response, err := h.service.Response(r.Context(), PrincipalFrom(r.Context()), accountID, chi.URLParam(r, "event_id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respond(w, http.StatusOK, Envelope{Data: map[string]any{"response": response}})
}

func (h *EventHandler) accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return accountIDParam(w, r, h.logger)
}

func accountIDParam(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "account_id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, logger, model.NewValidationError("account_id", "A valid integer is required."))
		return 0, false
	}

	return id, true
}

// decodeBody reads a JSON object body under the size cap. A body over the cap fails
// validation on field, the document it carries. An empty body is accepted only when
// optional is set.
func (h *EventHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any, field string, optional bool) bool {
	return decodeJSONBody(w, r, h.logger, h.maxBodyBytes, dst, field, optional)
}

func decodeJSONBody(
	w http.ResponseWriter, r *http.Request, logger *slog.Logger, maxBytes int64, dst any, field string, optional bool,
) bool {
	body := http.MaxBytesReader(w, r.Body, maxBytes)

	err := json.NewDecoder(body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		respondError(w, r, logger, schema.SizeError(field))
		return false
	}

	respondMessage(w, http.StatusBadRequest, msgMalformedBody)

	return false
}

func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, model.NewValidationError(name, "A valid integer is required.")
	}

	return &v, nil
}

// queryList collects a repeated and/or comma-separated query parameter.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}
