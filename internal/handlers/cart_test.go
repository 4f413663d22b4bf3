package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/services"
)

type stubCartService struct {
	getFn    func(context.Context, int64) ([]services.CartItem, error)
	totalFn  func(context.Context, int64) (int64, error)
	addFn    func(context.Context, services.CartItemCommand) (services.CartItem, error)
	modifyFn func(context.Context, services.CartItemCommand) error
}

var _ services.CartService = (*stubCartService)(nil)

func (s *stubCartService) GetCart(ctx context.Context, userID int64) ([]services.CartItem, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCartService) Total(ctx context.Context, userID int64) (int64, error) {
	if s.totalFn != nil {
		return s.totalFn(ctx, userID)
	}
	return 0, errors.New("not implemented")
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.CartItemCommand) (services.CartItem, error) {
	if s.addFn != nil {
		return s.addFn(ctx, cmd)
	}
	return services.CartItem{}, errors.New("not implemented")
}

func (s *stubCartService) ModifyItem(ctx context.Context, cmd services.CartItemCommand) error {
	if s.modifyFn != nil {
		return s.modifyFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func newCartRouter(h *CartHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/cart", h.Routes)
	return router
}

func TestCartHandlersGetCart(t *testing.T) {
	updated := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	svc := &stubCartService{
		getFn: func(_ context.Context, userID int64) ([]services.CartItem, error) {
			return []services.CartItem{
				{UserID: userID, ItemID: 1, ItemName: "Mug", Quantity: 2, Price: 1000, UpdatedAt: updated},
				{UserID: userID, ItemID: 2, ItemName: "Spoon", Quantity: 1, Price: 300, UpdatedAt: updated.Add(-time.Hour)},
			}, nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, svc))

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/cart", nil), 7, domain.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("Cache-Control") == "" || !strings.HasPrefix(rr.Header().Get("ETag"), `W/"`) {
		t.Fatalf("expected cache headers, got %v", rr.Header())
	}
	if rr.Header().Get("Last-Modified") != updated.Format(http.TimeFormat) {
		t.Fatalf("unexpected Last-Modified %s", rr.Header().Get("Last-Modified"))
	}
	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Cart.ItemsCount != 2 || resp.Cart.Total != 2300 || resp.Cart.UserID != 7 {
		t.Fatalf("unexpected cart %+v", resp.Cart)
	}
}

func TestCartHandlersEmptyCartIsNotFound(t *testing.T) {
	svc := &stubCartService{
		getFn: func(context.Context, int64) ([]services.CartItem, error) {
			return nil, fmt.Errorf("%w: cart is empty", services.ErrCartNotFound)
		},
		totalFn: func(context.Context, int64) (int64, error) {
			return 0, fmt.Errorf("%w: cart is empty", services.ErrCartNotFound)
		},
	}
	router := newCartRouter(NewCartHandlers(nil, svc))

	for _, path := range []string{"/cart", "/cart/total"} {
		req := withIdentity(httptest.NewRequest(http.MethodGet, path, nil), 7, domain.RoleUser)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s: expected status 404, got %d", path, rr.Code)
		}
	}
}

func TestCartHandlersAddAndModify(t *testing.T) {
	var added, modified services.CartItemCommand
	svc := &stubCartService{
		addFn: func(_ context.Context, cmd services.CartItemCommand) (services.CartItem, error) {
			added = cmd
			if cmd.Quantity > 5 {
				return services.CartItem{}, fmt.Errorf("%w: only 5 in stock", services.ErrCartConflict)
			}
			return services.CartItem{UserID: cmd.UserID, ItemID: cmd.ItemID, Quantity: cmd.Quantity, Price: 1000}, nil
		},
		modifyFn: func(_ context.Context, cmd services.CartItemCommand) error {
			modified = cmd
			return nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, svc))

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"itemId":3,"quantity":2}`)), 7, domain.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if added.UserID != 7 || added.ItemID != 3 || added.Quantity != 2 {
		t.Fatalf("unexpected add command %+v", added)
	}

	req = withIdentity(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"itemId":3,"quantity":9}`)), 7, domain.RoleUser)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}

	req = withIdentity(httptest.NewRequest(http.MethodPut, "/cart/items/3", strings.NewReader(`{"quantity":0,"price":0}`)), 7, domain.RoleUser)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if modified.ItemID != 3 || modified.Quantity != 0 || modified.UserID != 7 {
		t.Fatalf("unexpected modify command %+v", modified)
	}
}
