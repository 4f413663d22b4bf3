package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/repositories"
)

func seedItem(t *testing.T, s *Store, name string, qty int64) domain.Item {
	t.Helper()
	ctx := context.Background()
	category, err := s.Categories().FindByName(ctx, "General")
	if err != nil {
		category, err = s.Categories().Insert(ctx, domain.Category{Name: "General"})
		if err != nil {
			t.Fatalf("insert category: %v", err)
		}
	}
	item, err := s.Items().Insert(ctx, domain.Item{
		CategoryID:  category.ID,
		Name:        name,
		Description: name + " description",
		Price:       1000,
		Quantity:    qty,
	})
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}
	return item
}

func quantityOf(t *testing.T, s *Store, itemID int64) int64 {
	t.Helper()
	item, err := s.Items().Get(context.Background(), itemID)
	if err != nil {
		t.Fatalf("get item %d: %v", itemID, err)
	}
	return item.Quantity
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func TestInventoryReserveAndRelease(t *testing.T) {
	s := New()
	item := seedItem(t, s, "Keyboard", 10)
	inv := s.Inventory()
	ctx := context.Background()

	if err := inv.Reserve(ctx, item.ID, 4); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := quantityOf(t, s, item.ID); got != 6 {
		t.Fatalf("expected 6 after reserve, got %d", got)
	}

	err := inv.Reserve(ctx, item.ID, 7)
	if !repositories.IsInventoryCode(err, repositories.InventoryErrorInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := quantityOf(t, s, item.ID); got != 6 {
		t.Fatalf("failed reserve must not mutate, got %d", got)
	}

	if err := inv.Release(ctx, item.ID, 100); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := quantityOf(t, s, item.ID); got != 106 {
		t.Fatalf("release has no upper bound, expected 106, got %d", got)
	}

	if err := inv.Reserve(ctx, 999, 1); err != nil {
		t.Fatalf("missing item must be skipped, got %v", err)
	}
	if err := inv.Release(ctx, 999, 1); err != nil {
		t.Fatalf("missing item must be skipped, got %v", err)
	}

	if err := inv.Reserve(ctx, item.ID, 0); !repositories.IsInventoryCode(err, repositories.InventoryErrorInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
}

func TestInventoryConcurrentReserveNeverOverdraws(t *testing.T) {
	s := New()
	item := seedItem(t, s, "Mouse", 10)
	inv := s.Inventory()

	const callers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := inv.Reserve(context.Background(), item.ID, 3)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case repositories.IsInventoryCode(err, repositories.InventoryErrorInsufficientStock):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 || exhausted != callers-3 {
		t.Fatalf("expected 3 successes and %d exhausted, got %d and %d", callers-3, succeeded, exhausted)
	}
	if got := quantityOf(t, s, item.ID); got != 1 {
		t.Fatalf("expected 1 unit left, got %d", got)
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	s := New()
	first := seedItem(t, s, "Monitor", 5)
	second := seedItem(t, s, "Cable", 1)
	ctx := context.Background()

	order, err := s.Orders().Insert(ctx, domain.Order{UserID: 7, TargetAddress: "Main St 1", Status: domain.OrderStatusPaymentSuccess})
	if err != nil {
		t.Fatalf("insert order: %v", err)
	}

	err = s.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.Inventory().Reserve(ctx, first.ID, 2); err != nil {
			return err
		}
		order.Status = domain.OrderStatusDelivering
		if _, err := s.Orders().Save(ctx, order); err != nil {
			return err
		}
		return s.Inventory().Reserve(ctx, second.ID, 2)
	})
	if !repositories.IsInventoryCode(err, repositories.InventoryErrorInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := quantityOf(t, s, first.ID); got != 5 {
		t.Fatalf("expected first item restored to 5, got %d", got)
	}
	stored, err := s.Orders().Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Status != domain.OrderStatusPaymentSuccess || stored.Version != 1 {
		t.Fatalf("expected untouched order, got %+v", stored)
	}
}

func TestRunInTxRollsBackOnCancelledContext(t *testing.T) {
	s := New()
	item := seedItem(t, s, "Lamp", 3)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.Inventory().Release(txCtx, item.ID, 2); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := quantityOf(t, s, item.ID); got != 3 {
		t.Fatalf("expected 3 after rollback, got %d", got)
	}
}

func TestRunInTxNestedJoinsOuterScope(t *testing.T) {
	s := New()
	item := seedItem(t, s, "Desk", 4)
	sentinel := errors.New("boom")

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := s.RunInTx(ctx, func(ctx context.Context) error {
			return s.Inventory().Reserve(ctx, item.ID, 4)
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if got := quantityOf(t, s, item.ID); got != 4 {
		t.Fatalf("expected inner mutation rolled back, got %d", got)
	}
}

func TestRolledBackReleaseNeverFeedsOtherReservations(t *testing.T) {
	s := New()
	item := seedItem(t, s, "Chair", 10)
	sentinel := errors.New("abort")

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := s.Inventory().Release(ctx, item.ID, 2); err != nil {
			return err
		}
		concurrent := s.RunInTx(context.Background(), func(ctx context.Context) error {
			return s.Inventory().Reserve(ctx, item.ID, 12)
		})
		if !repositories.IsInventoryCode(concurrent, repositories.InventoryErrorInsufficientStock) {
			t.Errorf("expected uncommitted release to stay invisible, got %v", concurrent)
		}
		if err := s.RunInTx(context.Background(), func(ctx context.Context) error {
			return s.Inventory().Reserve(ctx, item.ID, 10)
		}); err != nil {
			t.Errorf("reserve committed stock: %v", err)
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if got := quantityOf(t, s, item.ID); got != 0 {
		t.Fatalf("expected 0 after rollback, got %d", got)
	}
}

func TestCommittedReleaseIsApplied(t *testing.T) {
	s := New()
	item := seedItem(t, s, "Stool", 1)

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		return s.Inventory().Release(ctx, item.ID, 4)
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	if got := quantityOf(t, s, item.ID); got != 5 {
		t.Fatalf("expected 5 after commit, got %d", got)
	}
}

func TestRolledBackItemUpdateKeepsCommittedReservations(t *testing.T) {
	s := New()
	item := seedItem(t, s, "Bench", 10)
	sentinel := errors.New("abort")

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		edited := item
		edited.Description = "restocked"
		edited.Quantity = 50
		if _, err := s.Items().Update(ctx, edited); err != nil {
			return err
		}
		if err := s.RunInTx(context.Background(), func(ctx context.Context) error {
			return s.Inventory().Reserve(ctx, item.ID, 10)
		}); err != nil {
			t.Errorf("reserve committed stock: %v", err)
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	stored, err := s.Items().Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.Quantity != 0 || stored.Description != item.Description {
		t.Fatalf("expected description restored and reservation kept, got %+v", stored)
	}

	edited := stored
	edited.Quantity = 7
	if err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := s.Items().Update(ctx, edited)
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := quantityOf(t, s, item.ID); got != 7 {
		t.Fatalf("expected committed update to set 7, got %d", got)
	}
}

func TestOrderQueries(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return base }))
	ctx := context.Background()

	if _, err := s.Orders().ListAll(ctx); !isNotFound(err) {
		t.Fatalf("expected not found for empty store, got %v", err)
	}

	older, err := s.Orders().Insert(ctx, domain.Order{UserID: 1, TargetAddress: "A", CreatedAt: base.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	newer, err := s.Orders().Insert(ctx, domain.Order{UserID: 1, TargetAddress: "B"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	other, err := s.Orders().Insert(ctx, domain.Order{UserID: 2, TargetAddress: "C", CreatedAt: base.Add(-2 * time.Hour)})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	history, err := s.Orders().ListForUser(ctx, 1)
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(history) != 2 || history[0].ID != newer.ID || history[1].ID != older.ID {
		t.Fatalf("expected newest first, got %+v", history)
	}

	all, err := s.Orders().ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[2].ID != other.ID {
		t.Fatalf("expected other user's order last, got %+v", all)
	}

	if _, err := s.Orders().ListForUser(ctx, 3); !isNotFound(err) {
		t.Fatalf("expected not found for user without orders, got %v", err)
	}
	if _, err := s.Orders().GetForUser(ctx, other.ID, 1); !isNotFound(err) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}
	if _, err := s.Orders().GetForUser(ctx, other.ID, 2); err != nil {
		t.Fatalf("expected owner lookup to succeed, got %v", err)
	}
}

func TestOrderSaveRejectsStaleVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	order, err := s.Orders().Insert(ctx, domain.Order{UserID: 1, TargetAddress: "A", Status: domain.OrderStatusPendingPayment})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	first := order
	first.Status = domain.OrderStatusCancelled
	saved, err := s.Orders().Save(ctx, first)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Version != 2 {
		t.Fatalf("expected version 2, got %d", saved.Version)
	}

	stale := order
	stale.Status = domain.OrderStatusPaymentSuccess
	if _, err := s.Orders().Save(ctx, stale); !isConflict(err) {
		t.Fatalf("expected conflict for stale version, got %v", err)
	}
}

func TestOrderSnapshotsAreIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()
	order, err := s.Orders().Insert(ctx, domain.Order{
		UserID:        1,
		TargetAddress: "A",
		Items:         []domain.OrderItem{{ItemID: 1, ItemName: "Keyboard", Quantity: 1, Price: 500}},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	order.Items[0].ItemName = "mutated"

	stored, err := s.Orders().Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Items[0].ItemName != "Keyboard" || stored.Items[0].OrderID != order.ID {
		t.Fatalf("expected stored snapshot to be untouched, got %+v", stored.Items[0])
	}
}

func TestCatalogNamesAreCaseInsensitive(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Categories().Insert(ctx, domain.Category{Name: "Peripherals"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.Categories().Insert(ctx, domain.Category{Name: "PERIPHERALS"}); !isConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	item := seedItem(t, s, "Keyboard", 1)
	found, err := s.Items().FindByName(ctx, "keyBOARD")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != item.ID || found.CategoryName != "General" {
		t.Fatalf("unexpected item %+v", found)
	}
}

func TestItemListFilterAndSort(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedItem(t, s, "Gamma", 0)
	seedItem(t, s, "alpha", 5)
	seedItem(t, s, "Beta", 2)

	items, err := s.Items().List(ctx, domain.ItemFilter{SortBy: domain.ItemSortName})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 || items[0].Name != "alpha" || items[2].Name != "Gamma" {
		t.Fatalf("expected alphabetical order, got %+v", items)
	}

	items, err = s.Items().List(ctx, domain.ItemFilter{OutOfStock: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Gamma" {
		t.Fatalf("expected only Gamma out of stock, got %+v", items)
	}

	items, err = s.Items().List(ctx, domain.ItemFilter{NameFragment: "ET", SortBy: domain.ItemSortQuantity, SortOrder: domain.SortDesc})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Beta" {
		t.Fatalf("expected Beta, got %+v", items)
	}
}

func TestCartClearRollsBack(t *testing.T) {
	s := New()
	item := seedItem(t, s, "Chair", 3)
	ctx := context.Background()
	if _, err := s.Carts().Upsert(ctx, domain.CartItem{UserID: 4, ItemID: item.ID, Quantity: 2, Price: 1000}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sentinel := errors.New("abort")
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.Carts().Clear(ctx, 4); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	lines, err := s.Carts().List(ctx, 4)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lines) != 1 || lines[0].ItemName != "Chair" {
		t.Fatalf("expected restored cart line, got %+v", lines)
	}
}
