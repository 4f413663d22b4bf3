package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/auth"
	"github.com/webshop/api/internal/platform/httpx"
	"github.com/webshop/api/internal/services"
)

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing shopper authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(domain.RoleUser))
	}
	r.Get("/", h.getCart)
	r.Get("/total", h.getTotal)
	r.Post("/items", h.addItem)
	r.Put("/items/{itemID}", h.modifyItem)
}

type addCartItemRequest struct {
	ItemID   int64 `json:"itemId"`
	Quantity int64 `json:"quantity"`
}

type modifyCartItemRequest struct {
	Quantity int64 `json:"quantity"`
	Price    int64 `json:"price"`
}

type cartItemPayload struct {
	ItemID    int64  `json:"itemId"`
	ItemName  string `json:"itemName"`
	Quantity  int64  `json:"quantity"`
	Price     int64  `json:"price"`
	LineTotal int64  `json:"lineTotal"`
}

type cartPayload struct {
	UserID     int64             `json:"userId"`
	ItemsCount int               `json:"itemsCount"`
	Items      []cartItemPayload `json:"items"`
	Total      int64             `json:"total"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartTotalResponse struct {
	Total int64 `json:"total"`
}

type cartItemResponse struct {
	Item cartItemPayload `json:"item"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.carts != nil, "cart") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	lines, err := h.carts.GetCart(r.Context(), actor.ID)
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	setCartResponseHeaders(w, actor.ID, lines)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(actor.ID, lines)})
}

func (h *CartHandlers) getTotal(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.carts != nil, "cart") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	total, err := h.carts.Total(r.Context(), actor.ID)
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartTotalResponse{Total: total})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.carts != nil, "cart") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	line, err := h.carts.AddItem(r.Context(), services.CartItemCommand{
		UserID:   actor.ID,
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, cartItemResponse{Item: buildCartItem(line)})
}

func (h *CartHandlers) modifyItem(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.carts != nil, "cart") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	itemID, ok := parseID(w, r, "itemID")
	if !ok {
		return
	}
	var req modifyCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.carts.ModifyItem(r.Context(), services.CartItemCommand{
		UserID:   actor.ID,
		ItemID:   itemID,
		Quantity: req.Quantity,
		Price:    req.Price,
	}); err != nil {
		writeCartError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildCartItem(line services.CartItem) cartItemPayload {
	return cartItemPayload{
		ItemID:    line.ItemID,
		ItemName:  line.ItemName,
		Quantity:  line.Quantity,
		Price:     line.Price,
		LineTotal: line.Quantity * line.Price,
	}
}

func buildCartPayload(userID int64, lines []services.CartItem) cartPayload {
	payload := cartPayload{
		UserID:     userID,
		ItemsCount: len(lines),
		Items:      make([]cartItemPayload, 0, len(lines)),
	}
	for _, line := range lines {
		item := buildCartItem(line)
		payload.Total += item.LineTotal
		payload.Items = append(payload.Items, item)
	}
	return payload
}

func setCartResponseHeaders(w http.ResponseWriter, userID int64, lines []services.CartItem) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	var updated time.Time
	for _, line := range lines {
		if line.UpdatedAt.After(updated) {
			updated = line.UpdatedAt
		}
	}
	if updated.IsZero() {
		return
	}
	w.Header().Set("Last-Modified", updated.UTC().Format(http.TimeFormat))
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d:%d", userID, len(lines), updated.UTC().UnixNano())))
	w.Header().Set("ETag", fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8])))
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}
