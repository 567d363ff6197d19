package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/jnst/trading-event-queue/internal/service"
)

// AccountHandler serves the account mirror used to scope and authorize events.
type AccountHandler struct {
	service      service.AccountService
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(svc service.AccountService, logger *slog.Logger, maxBodyBytes int64) *AccountHandler {
	return &AccountHandler{service: svc, logger: logger, maxBodyBytes: maxBodyBytes}
}

type saveAccountRequest struct {
	UserID string `json:"user_id"`
}

// Save handles PUT /accounts/{account_id}.
func (h *AccountHandler) Save(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r, h.logger)
	if !ok {
		return
	}

	var req saveAccountRequest
	if !decodeJSONBody(w, r, h.logger, h.maxBodyBytes, &req, "user_id", false) {
		return
	}

	account, err := h.service.Save(r.Context(), PrincipalFrom(r.Context()), &service.SaveAccountInput{
		AccountID: accountID,
		UserID:    req.UserID,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respond(w, http.StatusOK, Envelope{Data: account})
}
