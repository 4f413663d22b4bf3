package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/auth"
	"github.com/webshop/api/internal/platform/httpx"
	"github.com/webshop/api/internal/services"
)

// CatalogHandlers exposes category and item endpoints. Reads are public; writes
// and stock reports require a worker or admin session.
type CatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{authn: authn, catalog: catalog}
}

// CategoryRoutes registers the /categories endpoints.
func (h *CatalogHandlers) CategoryRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCategories)
	r.Group(func(staff chi.Router) {
		h.requireStaff(staff)
		staff.Post("/", h.createCategory)
		staff.Put("/{categoryID}", h.renameCategory)
		staff.Delete("/{categoryID}", h.deleteCategory)
	})
}

// ItemRoutes registers the /items endpoints.
func (h *CatalogHandlers) ItemRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.searchItems)
	r.Get("/by-name", h.getItemByName)
	r.Get("/{itemID}", h.getItem)
	r.Group(func(staff chi.Router) {
		h.requireStaff(staff)
		staff.Get("/stock", h.stockReport)
		staff.Get("/out-of-stock", h.outOfStock)
		staff.Post("/", h.createItem)
		staff.Put("/{itemID}", h.updateItem)
		staff.Delete("/{itemID}", h.deleteItem)
	})
}

func (h *CatalogHandlers) requireStaff(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireStaff())
	}
}

type categoryRequest struct {
	Name string `json:"name"`
}

type itemRequest struct {
	Name         string `json:"name"`
	CategoryName string `json:"categoryName"`
	Description  string `json:"description"`
	Quantity     int64  `json:"quantity"`
	Price        int64  `json:"price"`
}

type categoryPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type itemPayload struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	CategoryID   int64  `json:"categoryId"`
	CategoryName string `json:"categoryName"`
	Description  string `json:"description"`
	Price        int64  `json:"price"`
	Quantity     int64  `json:"quantity"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

type categoryListResponse struct {
	Items []categoryPayload `json:"items"`
}

type itemListResponse struct {
	Items         []itemPayload `json:"items"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.catalog != nil, "catalog") {
		return
	}
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	resp := categoryListResponse{Items: make([]categoryPayload, 0, len(categories))}
	for _, category := range categories {
		resp.Items = append(resp.Items, categoryPayload{ID: category.ID, Name: category.Name})
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CatalogHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.catalog != nil, "catalog") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req categoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	category, err := h.catalog.CreateCategory(r.Context(), actor, req.Name)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, categoryPayload{ID: category.ID, Name: category.Name})
}

func (h *CatalogHandlers) renameCategory(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.catalog != nil, "catalog") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	categoryID, ok := parseID(w, r, "categoryID")
	if !ok {
		return
	}
	var req categoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	category, err := h.catalog.RenameCategory(r.Context(), actor, categoryID, req.Name)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, categoryPayload{ID: category.ID, Name: category.Name})
}

func (h *CatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.catalog != nil, "catalog") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	categoryID, ok := parseID(w, r, "categoryID")
	if !ok {
		return
	}
	if err := h.catalog.DeleteCategory(r.Context(), actor, categoryID); err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandlers) searchItems(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.catalog != nil, "catalog") {
		return
	}
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	minPrice, err := parseOptionalInt(query.Get("min_price"))
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "min_price must be an integer", http.StatusBadRequest))
		return
	}
	maxPrice, err := parseOptionalInt(query.Get("max_price"))
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "max_price must be an integer", http.StatusBadRequest))
		return
	}
	items, err := h.catalog.SearchItems(r.Context(), services.ItemSearch{
		NameFragment: query.Get("q"),
		CategoryName: query.Get("category"),
		MinPrice:     minPrice,
		MaxPrice:     maxPrice,
		SortBy:       domain.ItemSort(strings.ToLower(strings.TrimSpace(query.Get("sort")))),
		SortOrder:    domain.SortOrder(strings.ToLower(strings.TrimSpace(query.Get("order")))),
	})
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writePage(w, r, items, page, func(entries []services.Item, next string) itemListResponse {
		resp := buildItemList(entries)
		resp.NextPageToken = next
		return resp
	})
}

func (h *CatalogHandlers) getItem(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.catalog != nil, "catalog") {
		return
	}
	itemID, ok := parseID(w, r, "itemID")
	if !ok {
		return
	}
	item, err := h.catalog.GetItem(r.Context(), itemID)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildItemPayload(item))
}

func (h *CatalogHandlers) getItemByName(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.catalog != nil, "catalog") {
		return
	}
	item, err := h.catalog.GetItemByName(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildItemPayload(item))
}

func (h *CatalogHandlers) stockReport(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.catalog != nil, "catalog") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	order := domain.SortOrder(strings.ToLower(strings.TrimSpace(query.Get("order"))))
	items, err := h.catalog.StockReport(r.Context(), actor, query.Get("category"), order)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildItemList(items))
}

func (h *CatalogHandlers) outOfStock(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.catalog != nil, "catalog") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	items, err := h.catalog.OutOfStock(r.Context(), actor)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildItemList(items))
}

func (h *CatalogHandlers) createItem(w http.ResponseWriter, r *http.Request) {
	h.saveItem(w, r, 0)
}

func (h *CatalogHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseID(w, r, "itemID")
	if !ok {
		return
	}
	h.saveItem(w, r, itemID)
}

func (h *CatalogHandlers) saveItem(w http.ResponseWriter, r *http.Request, itemID int64) {
	if !requireService(w, r, h.catalog != nil, "catalog") {
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	input := services.ItemInput{
		Name:         req.Name,
		CategoryName: req.CategoryName,
		Description:  req.Description,
		Quantity:     req.Quantity,
		Price:        req.Price,
	}

	var (
		item services.Item
		err  error
	)
	status := http.StatusOK
	if itemID == 0 {
		item, err = h.catalog.CreateItem(r.Context(), actor, input)
		status = http.StatusCreated
	} else {
		item, err = h.catalog.UpdateItem(r.Context(), actor, itemID, input)
	}
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, status, buildItemPayload(item))
}

func (h *CatalogHandlers) deleteItem(w http.ResponseWriter, r *http.Request) {
	if !requireService(w, r, h.catalog != nil, "catalog") {
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
	if err := h.catalog.DeleteItem(r.Context(), actor, itemID); err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildItemPayload(item services.Item) itemPayload {
	return itemPayload{
		ID:           item.ID,
		Name:         item.Name,
		CategoryID:   item.CategoryID,
		CategoryName: item.CategoryName,
		Description:  item.Description,
		Price:        item.Price,
		Quantity:     item.Quantity,
		UpdatedAt:    formatTime(item.UpdatedAt),
	}
}

func buildItemList(items []services.Item) itemListResponse {
	resp := itemListResponse{Items: make([]itemPayload, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, buildItemPayload(item))
	}
	return resp
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
