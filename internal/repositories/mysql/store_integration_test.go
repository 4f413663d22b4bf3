//go:build integration

package mysql

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/config"
	"github.com/webshop/api/internal/repositories"
)

const envTestDSN = "WEBSHOP_MYSQL_TEST_DSN"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(envTestDSN)
	if dsn == "" {
		t.Skip(envTestDSN + " not set")
	}
	store, err := Open(config.MySQLConfig{DSN: dsn, MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"order_items", "orders", "cart_items", "items", "categories", "accounts"} {
		if err := store.db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return store
}

func TestReserveIsGuardedUnderContention(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	category, err := store.Categories().Insert(ctx, domain.Category{Name: "Kitchen"})
	if err != nil {
		t.Fatalf("insert category: %v", err)
	}
	mug, err := store.Items().Insert(ctx, domain.Item{CategoryID: category.ID, Name: "Mug", Description: "d", Price: 1000, Quantity: 5})
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			err := store.Inventory().Reserve(ctx, mug.ID, 1)
			if err != nil && !repositories.IsInventoryCode(err, repositories.InventoryErrorInsufficientStock) {
				t.Errorf("reserve: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 {
		t.Fatalf("expected exactly 5 reservations, got %d", succeeded)
	}
	got, err := store.Items().Get(ctx, mug.ID)
	if err != nil || got.Quantity != 0 {
		t.Fatalf("expected empty stock, got %+v (%v)", got, err)
	}
	if err := store.Inventory().Reserve(ctx, 987654, 1); err != nil {
		t.Fatalf("reserve of a missing item should be skipped, got %v", err)
	}
}

func TestUnitOfWorkRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	category, err := store.Categories().Insert(ctx, domain.Category{Name: "Garden"})
	if err != nil {
		t.Fatalf("insert category: %v", err)
	}
	spade, err := store.Items().Insert(ctx, domain.Item{CategoryID: category.ID, Name: "Spade", Description: "d", Price: 2100, Quantity: 2})
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}

	errBoom := errors.New("boom")
	err = store.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.Inventory().Reserve(ctx, spade.ID, 2); err != nil {
			return err
		}
		if _, err := store.Carts().Upsert(ctx, domain.CartItem{UserID: 1, ItemID: spade.ID, Quantity: 1, Price: 2100}); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	got, err := store.Items().Get(ctx, spade.ID)
	if err != nil || got.Quantity != 2 || got.CategoryName != "Garden" {
		t.Fatalf("expected rolled back stock, got %+v (%v)", got, err)
	}
	if lines, err := store.Carts().List(ctx, 1); err != nil || len(lines) != 0 {
		t.Fatalf("expected empty cart, got %+v (%v)", lines, err)
	}
}

func TestOrderVersioningAndQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Orders().ListAll(ctx); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found for no orders, got %v", err)
	}

	items := []domain.OrderItem{{ItemID: 1, ItemName: "Mug", Quantity: 2, Price: 1000}}
	order, err := store.Orders().Insert(ctx, domain.Order{
		UserID:        7,
		TargetAddress: "1 Main St",
		TargetPhone:   "555",
		Status:        domain.OrderStatusPendingPayment,
		TotalPrice:    domain.SumLineItems(items),
		Items:         items,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if order.Version != 1 || len(order.Items) != 1 || order.Items[0].OrderID != order.ID {
		t.Fatalf("unexpected order %+v", order)
	}

	if _, err := store.Orders().GetForUser(ctx, order.ID, 8); !repositories.IsNotFound(err) {
		t.Fatalf("expected foreign order not found, got %v", err)
	}

	order.Status = domain.OrderStatusPaymentSuccess
	saved, err := store.Orders().Save(ctx, order)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Version != 2 || saved.Status != domain.OrderStatusPaymentSuccess {
		t.Fatalf("unexpected saved order %+v", saved)
	}
	var repoErr repositories.RepositoryError
	if _, err := store.Orders().Save(ctx, order); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected stale version conflict, got %v", err)
	}

	history, err := store.Orders().ListForUser(ctx, 7)
	if err != nil || len(history) != 1 || len(history[0].Items) != 1 {
		t.Fatalf("unexpected history %+v (%v)", history, err)
	}

	if err := store.Orders().Delete(ctx, order.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Orders().Delete(ctx, order.ID); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestAccountUniqueness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Accounts().Insert(ctx, domain.Account{Role: domain.RoleUser, Login: "ann", PasswordHash: "h"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var repoErr repositories.RepositoryError
	if _, err := store.Accounts().Insert(ctx, domain.Account{Role: domain.RoleUser, Login: "ann", PasswordHash: "h"}); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := store.Accounts().Insert(ctx, domain.Account{Role: domain.RoleUser, Login: "ANN", PasswordHash: "h"}); err != nil {
		t.Fatalf("logins are case-sensitive: %v", err)
	}
	if _, err := store.Accounts().FindByLogin(ctx, domain.RoleWorker, "ann"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found for another role, got %v", err)
	}
}
