//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/webshop/api/internal/domain"
	pconfig "github.com/webshop/api/internal/platform/config"
	pfirestore "github.com/webshop/api/internal/platform/firestore"
	"github.com/webshop/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func newEmulatorStore(t *testing.T, projectID string) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    projectID,
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	store, err := New(provider)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestCounterRepositoryIntegration(t *testing.T) {
	store := newEmulatorStore(t, "counter-test")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 16
	results := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			value, err := store.Counters().Next(ctx, "orders")
			if err != nil {
				t.Errorf("next(%d): %v", idx, err)
				return
			}
			results[idx] = value
		}(i)
	}

	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, val := range results {
		expected := int64(i + 1)
		if val != expected {
			t.Fatalf("expected sequence %d at position %d, got %d", expected, i, val)
		}
	}
}

func TestInventoryRepositoryIntegration(t *testing.T) {
	store := newEmulatorStore(t, "inventory-test")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	category, err := store.Categories().Insert(ctx, domain.Category{Name: "Kitchen"})
	if err != nil {
		t.Fatalf("insert category: %v", err)
	}
	mug, err := store.Items().Insert(ctx, domain.Item{CategoryID: category.ID, Name: "Mug", Description: "d", Price: 1000, Quantity: 3})
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}
	if mug.CategoryName != "Kitchen" {
		t.Fatalf("expected category projection, got %q", mug.CategoryName)
	}
	bowl, err := store.Items().Insert(ctx, domain.Item{CategoryID: category.ID, Name: "Bowl", Description: "d", Price: 500, Quantity: 1})
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}

	if err := store.Inventory().Reserve(ctx, mug.ID, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Inventory().Reserve(ctx, 9999, 2); err != nil {
		t.Fatalf("reserve of a missing item should be skipped, got %v", err)
	}

	err = store.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.Inventory().Reserve(ctx, bowl.ID, 1); err != nil {
			return err
		}
		return store.Inventory().Reserve(ctx, mug.ID, 5)
	})
	if !repositories.IsInventoryCode(err, repositories.InventoryErrorInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	got, err := store.Items().Get(ctx, bowl.ID)
	if err != nil {
		t.Fatalf("get bowl: %v", err)
	}
	if got.Quantity != 1 {
		t.Fatalf("expected rolled back bowl quantity 1, got %d", got.Quantity)
	}
	got, err = store.Items().Get(ctx, mug.ID)
	if err != nil {
		t.Fatalf("get mug: %v", err)
	}
	if got.Quantity != 1 {
		t.Fatalf("expected mug quantity 1, got %d", got.Quantity)
	}

	if err := store.Inventory().Release(ctx, mug.ID, 4); err != nil {
		t.Fatalf("release: %v", err)
	}
	items, err := store.Items().List(ctx, domain.ItemFilter{SortBy: domain.ItemSortQuantity, SortOrder: domain.SortDesc})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != mug.ID || items[0].Quantity != 5 {
		t.Fatalf("unexpected listing %+v", items)
	}

	if _, err := store.Items().FindByName(ctx, "MUG"); err != nil {
		t.Fatalf("find by name: %v", err)
	}
	if _, err := store.Items().Insert(ctx, domain.Item{CategoryID: category.ID, Name: "mug", Description: "d", Price: 1, Quantity: 1}); !isConflict(err) {
		t.Fatalf("expected duplicate name conflict, got %v", err)
	}
	if err := store.Categories().Delete(ctx, category.ID); !isConflict(err) {
		t.Fatalf("expected non-empty category conflict, got %v", err)
	}
}

func TestOrderAndCartRepositoryIntegration(t *testing.T) {
	store := newEmulatorStore(t, "order-test")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := store.Orders().ListAll(ctx); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found for no orders, got %v", err)
	}

	if _, err := store.Carts().Upsert(ctx, domain.CartItem{UserID: 7, ItemID: 2, Quantity: 1, Price: 500}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.Carts().Upsert(ctx, domain.CartItem{UserID: 7, ItemID: 1, Quantity: 2, Price: 1000}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	lines, err := store.Carts().List(ctx, 7)
	if err != nil || len(lines) != 2 || lines[0].ItemID != 1 {
		t.Fatalf("unexpected cart %+v (%v)", lines, err)
	}

	var placed domain.Order
	err = store.RunInTx(ctx, func(ctx context.Context) error {
		items := make([]domain.OrderItem, 0, len(lines))
		for _, line := range lines {
			items = append(items, domain.OrderItem{ItemID: line.ItemID, Quantity: line.Quantity, Price: line.Price})
		}
		var err error
		placed, err = store.Orders().Insert(ctx, domain.Order{
			UserID:     7,
			Status:     domain.OrderStatusPendingPayment,
			TotalPrice: domain.SumLineItems(items),
			Items:      items,
		})
		if err != nil {
			return err
		}
		return store.Carts().Clear(ctx, 7)
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if placed.Version != 1 || len(placed.Items) != 2 || placed.Items[0].ID == placed.Items[1].ID {
		t.Fatalf("unexpected order %+v", placed)
	}
	if lines, err := store.Carts().List(ctx, 7); err != nil || len(lines) != 0 {
		t.Fatalf("expected cleared cart, got %+v (%v)", lines, err)
	}

	if _, err := store.Orders().GetForUser(ctx, placed.ID, 8); !repositories.IsNotFound(err) {
		t.Fatalf("expected foreign order to be not found, got %v", err)
	}

	placed.Status = domain.OrderStatusPaymentSuccess
	saved, err := store.Orders().Save(ctx, placed)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Version != 2 {
		t.Fatalf("expected version 2, got %d", saved.Version)
	}
	if _, err := store.Orders().Save(ctx, placed); !isConflict(err) {
		t.Fatalf("expected stale version conflict, got %v", err)
	}

	history, err := store.Orders().ListForUser(ctx, 7)
	if err != nil || len(history) != 1 || history[0].Status != domain.OrderStatusPaymentSuccess {
		t.Fatalf("unexpected history %+v (%v)", history, err)
	}

	if err := store.Orders().Delete(ctx, placed.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Orders().Get(ctx, placed.ID); !repositories.IsNotFound(err) {
		t.Fatalf("expected deleted order to be not found, got %v", err)
	}
}

func TestAccountRepositoryIntegration(t *testing.T) {
	store := newEmulatorStore(t, "account-test")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	account, err := store.Accounts().Insert(ctx, domain.Account{Role: domain.RoleUser, Login: "ann", PasswordHash: "h1"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Accounts().Insert(ctx, domain.Account{Role: domain.RoleUser, Login: "ann", PasswordHash: "h2"}); !isConflict(err) {
		t.Fatalf("expected duplicate login conflict, got %v", err)
	}
	if _, err := store.Accounts().Insert(ctx, domain.Account{Role: domain.RoleWorker, Login: "ann", PasswordHash: "h3"}); err != nil {
		t.Fatalf("same login under another role should be allowed: %v", err)
	}
	if err := store.Accounts().UpdatePassword(ctx, domain.RoleUser, account.ID, "h4"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	found, err := store.Accounts().FindByLogin(ctx, domain.RoleUser, "ann")
	if err != nil || found.PasswordHash != "h4" {
		t.Fatalf("unexpected account %+v (%v)", found, err)
	}
	if _, err := store.Accounts().Get(ctx, domain.RoleAdmin, account.ID); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found under another role, got %v", err)
	}
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
