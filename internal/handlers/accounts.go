package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/auth"
	"github.com/webshop/api/internal/platform/httpx"
	"github.com/webshop/api/internal/services"
)

const (
	defaultLoginAttempts = 10
	defaultLoginWindow   = time.Minute
)

// AccountHandlers exposes registration, login and password endpoints for all three roles.
type AccountHandlers struct {
	authn        *auth.Authenticator
	accounts     services.AccountService
	loginLimiter *loginThrottle
}

// AccountHandlersOption customises AccountHandlers.
type AccountHandlersOption func(*AccountHandlers)

// WithLoginRateLimit caps login attempts per role and login within window.
// A non-positive limit disables throttling.
func WithLoginRateLimit(limit int, window time.Duration, clock func() time.Time) AccountHandlersOption {
	return func(h *AccountHandlers) {
		h.loginLimiter = newLoginThrottle(limit, window, clock)
	}
}

// NewAccountHandlers constructs account handlers.
func NewAccountHandlers(authn *auth.Authenticator, accounts services.AccountService, opts ...AccountHandlersOption) *AccountHandlers {
	h := &AccountHandlers{
		authn:        authn,
		accounts:     accounts,
		loginLimiter: newLoginThrottle(defaultLoginAttempts, defaultLoginWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// UserRoutes registers the /users endpoints.
func (h *AccountHandlers) UserRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.registerUser)
	r.Post("/login", h.login(domain.RoleUser))
	r.Group(func(user chi.Router) {
		if h.authn != nil {
			user.Use(h.authn.RequireAuth(domain.RoleUser))
		}
		user.Put("/password", h.changePassword)
	})
}

// WorkerRoutes registers the /workers endpoints.
func (h *AccountHandlers) WorkerRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/login", h.login(domain.RoleWorker))
	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAuth(domain.RoleAdmin))
		}
		admin.Post("/", h.registerStaff(domain.RoleWorker))
	})
}

// AdminRoutes registers the /admins endpoints.
func (h *AccountHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/login", h.login(domain.RoleAdmin))
	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAuth(domain.RoleAdmin))
		}
		admin.Post("/", h.registerStaff(domain.RoleAdmin))
		admin.Put("/password", h.changePassword)
	})
}

type registerRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type accountPayload struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Login     string `json:"login"`
	Address   string `json:"address,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type sessionResponse struct {
	Token     string         `json:"token"`
	TokenType string         `json:"tokenType"`
	ExpiresAt string         `json:"expiresAt"`
	Account   accountPayload `json:"account"`
}

func (h *AccountHandlers) registerUser(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, domain.RoleUser, nil)
}

func (h *AccountHandlers) registerStaff(role domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(w, r)
		if !ok {
			return
		}
		h.register(w, r, role, &actor)
	}
}

func (h *AccountHandlers) register(w http.ResponseWriter, r *http.Request, role domain.Role, actor *services.Actor) {
	if !requireService(w, r, h.accounts != nil, "account") {
		return
	}
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := h.accounts.Register(r.Context(), services.RegisterCommand{
		Actor:    actor,
		Role:     role,
		Login:    req.Login,
		Password: req.Password,
		Address:  req.Address,
		Phone:    req.Phone,
	})
	if err != nil {
		writeAccountError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildAccountPayload(account))
}

func (h *AccountHandlers) login(role domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !requireService(w, r, h.accounts != nil, "account") {
			return
		}
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if ok, wait := h.loginLimiter.Allow(role, req.Login); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many login attempts; retry later", http.StatusTooManyRequests))
			return
		}
		session, err := h.accounts.Login(ctx, role, req.Login, req.Password)
		if err != nil {
			writeAccountError(ctx, w, err)
			return
		}
		h.loginLimiter.Succeeded(role, req.Login)
		writeJSONResponse(w, http.StatusOK, sessionResponse{
			Token:     session.Token,
			TokenType: "Bearer",
			ExpiresAt: formatTime(session.ExpiresAt),
			Account:   buildAccountPayload(session.Account),
		})
	}
}

func (h *AccountHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.accounts != nil, "account") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), actor, req.NewPassword); err != nil {
		writeAccountError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildAccountPayload(account services.Account) accountPayload {
	return accountPayload{
		ID:        account.ID,
		Role:      string(account.Role),
		Login:     account.Login,
		Address:   account.Address,
		Phone:     account.Phone,
		CreatedAt: formatTime(account.CreatedAt),
	}
}

func writeAccountError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrAccountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAccountUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "login or password is incorrect", http.StatusUnauthorized))
	case errors.Is(err, services.ErrAccountForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrAccountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("account_not_found", "account not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAccountConflict):
		httpx.WriteError(ctx, w, httpx.NewError("account_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrAccountUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("account_error", "failed to process account request", http.StatusInternalServerError))
	}
}
