package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/identity/internal/service"
	apperrors "github.com/utafrali/identity/pkg/errors"
	"github.com/utafrali/identity/pkg/middleware"
	"github.com/utafrali/identity/pkg/pagination"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	service *service.IdentityService
	logger  *slog.Logger
}

// NewAccountHandler creates a new account HTTP handler.
func NewAccountHandler(svc *service.IdentityService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: svc, logger: logger}
}

// DeleteResponse is returned after an account is removed.
type DeleteResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// Me handles GET /users/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), callerID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: account})
}

// Delete handles DELETE /users/{id}
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || targetID <= 0 {
		writeError(w, r, apperrors.New(http.StatusBadRequest, "INVALID_PARAMETER",
			"invalid account id: "+chi.URLParam(r, "id"), apperrors.ErrInvalidInput), h.logger)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), callerID, targetID); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: DeleteResponse{ID: targetID, Status: "deleted"}})
}

// List handles GET /users/
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	accounts, total, err := h.service.ListAccounts(r.Context(), callerID, params.Offset, params.PerPage)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, pagination.NewResult(accounts, total, params))
}

// callerID reads the authenticated account id set by the auth middleware.
func (h *AccountHandler) callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(middleware.UserIDFromContext(r.Context()), 10, 64)
	if err != nil {
		writeError(w, r, apperrors.New(http.StatusUnauthorized, "UNAUTHORIZED",
			"missing authenticated user", apperrors.ErrUnauthorized), h.logger)
		return 0, false
	}
	return id, true
}
