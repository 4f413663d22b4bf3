package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/webshop/api/internal/platform/auth"
	"github.com/webshop/api/internal/platform/httpx"
	"github.com/webshop/api/internal/platform/pagination"
	"github.com/webshop/api/internal/services"
)

var errInvalidID = errors.New("id must be an integer")

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// actorFromRequest returns the authenticated caller or writes a 401.
func actorFromRequest(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || identity.UserID <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.Actor{}, false
	}
	return services.Actor{ID: identity.UserID, Role: identity.Role}, true
}

// optionalActor returns the caller when the request carries a verified identity.
func optionalActor(ctx context.Context) *services.Actor {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		return nil
	}
	return &services.Actor{ID: identity.UserID, Role: identity.Role}
}

// parseID reads an integer URL parameter, writing a 400 when it is malformed.
// Zero and negative values pass through so the service reports its own validation error.
func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", param+": "+errInvalidID.Error(), http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func parseOptionalInt(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// decodeBody decodes the JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	return true
}

func requireService(w http.ResponseWriter, r *http.Request, available bool, name string) bool {
	if available {
		return true
	}
	httpx.WriteError(r.Context(), w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
	return false
}

// parsePage reads pageSize/pageToken, writing a 400 when either is malformed.
func parsePage(w http.ResponseWriter, r *http.Request) (pagination.Params, bool) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return pagination.Params{}, false
	}
	return params, true
}

// writePage writes the requested page of entries using build to shape the body.
func writePage[T any, R any](w http.ResponseWriter, r *http.Request, entries []T, params pagination.Params, build func([]T, string) R) {
	page, next, err := pagination.Slice(entries, params)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("internal_error", "unable to paginate results", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, build(page, next))
}
