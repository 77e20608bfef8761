package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/identity/internal/service"
	"github.com/utafrali/identity/pkg/httputil"
	"github.com/utafrali/identity/pkg/logger"
	"github.com/utafrali/identity/pkg/middleware"
	"github.com/utafrali/identity/pkg/validator"
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.IdentityService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.IdentityService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for account registration.
type RegisterRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
	Password  string `json:"password" validate:"required,min=8,maxbytes=72"`
}

// LoginForm is the form-encoded login body.
type LoginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

func loginFormFrom(r *http.Request) LoginForm {
	return LoginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
}

// --- Handlers ---

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	account, err := h.service.Register(r.Context(), service.RegisterInput{
		Name:      req.Name,
		Email:     req.Email,
		AvatarURL: req.AvatarURL,
		Password:  req.Password,
	})
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: account})
}

// RequireLoginEligibility rejects a login attempt before the handler runs
// when the account does not exist (404) or is not verified (403).
func (h *AuthHandler) RequireLoginEligibility(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := httputil.ParseForm(w, r); err != nil {
			writeError(w, r, err, h.logger)
			return
		}

		form := loginFormFrom(r)
		if err := validator.Validate(form); err != nil {
			writeError(w, r, err, h.logger)
			return
		}

		if err := h.service.CheckLoginEligibility(r.Context(), form.Email); err != nil {
			writeError(w, r, err, h.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := httputil.ParseForm(w, r); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	form := loginFormFrom(r)
	if err := validator.Validate(form); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	pair, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    form.Email,
		Password: form.Password,
	})
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: pair})
}

// VerifyEmail handles GET /auth/verify-email?token=
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: account})
}

// Refresh handles GET /auth/refresh. The refresh token is presented as a
// bearer credential.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		writeJSON(w, http.StatusForbidden, response{
			Error: &httputil.ErrorResponse{
				Code:      "NOT_AUTHENTICATED",
				Message:   "not authenticated",
				RequestID: logger.CorrelationIDFromContext(r.Context()),
			},
		})
		return
	}

	pair, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: pair})
}
