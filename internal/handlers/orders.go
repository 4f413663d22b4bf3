package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/auth"
	"github.com/webshop/api/internal/platform/httpx"
	"github.com/webshop/api/internal/services"
)

// OrderHandlers exposes the order lifecycle to shoppers and staff.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	commands []func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithCommandMiddlewares wraps the mutating order endpoints after authentication, so the
// middleware sees the caller's identity.
func WithCommandMiddlewares(mw ...func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.commands = append(h.commands, mw...)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the shopper facing /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(domain.RoleUser))
	}
	r.Get("/", h.history)
	r.Get("/{orderID}", h.detail)
	r.With(h.commands...).Post("/", h.checkout)
	r.With(h.commands...).Post("/{orderID}:cancel", h.cancel)
}

// StaffRoutes registers the /staff/orders endpoints for workers and admins.
func (h *OrderHandlers) StaffRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireStaff())
	}
	r.Get("/", h.listAll)
	r.With(h.commands...).Put("/{orderID}/status", h.updateStatus)
	r.With(h.commands...).Post("/{orderID}:complete", h.complete)
}

type checkoutRequest struct {
	TargetAddress string `json:"targetAddress"`
	TargetPhone   string `json:"targetPhone"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type orderSummaryPayload struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"userId"`
	Status        string `json:"status"`
	TotalPrice    int64  `json:"totalPrice"`
	TargetAddress string `json:"targetAddress"`
	CreatedAt     string `json:"createdAt"`
}

type orderItemPayload struct {
	ItemID    int64  `json:"itemId"`
	ItemName  string `json:"itemName"`
	Quantity  int64  `json:"quantity"`
	Price     int64  `json:"price"`
	LineTotal int64  `json:"lineTotal"`
}

type orderPayload struct {
	ID            int64              `json:"id"`
	UserID        int64              `json:"userId"`
	Status        string             `json:"status"`
	TotalPrice    int64              `json:"totalPrice"`
	TargetAddress string             `json:"targetAddress"`
	TargetPhone   string             `json:"targetPhone,omitempty"`
	Items         []orderItemPayload `json:"items"`
	CreatedAt     string             `json:"createdAt"`
	UpdatedAt     string             `json:"updatedAt,omitempty"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type completeOrderResponse struct {
	OrderID   int64 `json:"orderId"`
	Completed bool  `json:"completed"`
}

func (h *OrderHandlers) history(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.orders != nil, "order") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	summaries, err := h.orders.History(r.Context(), actor)
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(summaries))
}

func (h *OrderHandlers) detail(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.orders != nil, "order") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	orderID, ok := parseID(w, r, "orderID")
	if !ok {
		return
	}
	order, err := h.orders.Detail(r.Context(), orderID, actor)
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.orders != nil, "order") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := h.orders.Checkout(r.Context(), services.CheckoutCommand{
		Actor:         actor,
		TargetAddress: req.TargetAddress,
		TargetPhone:   req.TargetPhone,
	})
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.orders != nil, "order") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	orderID, ok := parseID(w, r, "orderID")
	if !ok {
		return
	}
	order, err := h.orders.CancelByUser(r.Context(), orderID, actor)
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listAll(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.orders != nil, "order") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	summaries, err := h.orders.ListAll(r.Context(), actor)
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writePage(w, r, summaries, page, func(entries []services.OrderSummary, next string) orderListResponse {
		resp := buildOrderList(entries)
		resp.NextPageToken = next
		return resp
	})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.orders != nil, "order") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	orderID, ok := parseID(w, r, "orderID")
	if !ok {
		return
	}
	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := h.orders.UpdateStatus(r.Context(), orderID, req.Status, actor)
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) complete(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.orders != nil, "order") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	orderID, ok := parseID(w, r, "orderID")
	if !ok {
		return
	}
	if err := h.orders.CompleteOrder(r.Context(), orderID, actor); err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, completeOrderResponse{OrderID: orderID, Completed: true})
}

func buildOrderList(summaries []services.OrderSummary) orderListResponse {
	items := make([]orderSummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		items = append(items, orderSummaryPayload{
			ID:            summary.OrderID,
			UserID:        summary.UserID,
			Status:        string(summary.Status),
			TotalPrice:    summary.TotalPrice,
			TargetAddress: summary.TargetAddress,
			CreatedAt:     formatTime(summary.CreatedAt),
		})
	}
	return orderListResponse{Items: items}
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, orderItemPayload{
			ItemID:    line.ItemID,
			ItemName:  line.ItemName,
			Quantity:  line.Quantity,
			Price:     line.Price,
			LineTotal: line.LineTotal(),
		})
	}
	return orderPayload{
		ID:            order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		TotalPrice:    order.TotalPrice,
		TargetAddress: order.TargetAddress,
		TargetPhone:   order.TargetPhone,
		Items:         items,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderStockExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("stock_exhausted", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order is busy; retry shortly", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
