package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/repositories/memory"
)

func newCatalogFixture(t *testing.T) (*memory.Store, CatalogService) {
	t.Helper()
	store := memory.New()
	svc, err := NewCatalogService(CatalogServiceDeps{
		Categories: store.Categories(),
		Items:      store.Items(),
		UnitOfWork: store,
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return store, svc
}

func int64Ptr(v int64) *int64 { return &v }

func TestCatalogCategoryLifecycle(t *testing.T) {
	_, svc := newCatalogFixture(t)
	ctx := context.Background()

	if _, err := svc.ListCategories(ctx); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found for empty catalog, got %v", err)
	}

	kitchen, err := svc.CreateCategory(ctx, testWorker, "  Kitchen ")
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if kitchen.Name != "Kitchen" {
		t.Fatalf("expected trimmed name, got %q", kitchen.Name)
	}
	if _, err := svc.CreateCategory(ctx, testWorker, "KITCHEN"); !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected case-insensitive conflict, got %v", err)
	}
	if _, err := svc.CreateCategory(ctx, testWorker, "<i></i>"); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for markup-only name, got %v", err)
	}
	if _, err := svc.CreateCategory(ctx, testUser, "Garden"); !errors.Is(err, ErrCatalogForbidden) {
		t.Fatalf("expected forbidden for shoppers, got %v", err)
	}

	garden, err := svc.CreateCategory(ctx, testAdmin, "Garden")
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if _, err := svc.RenameCategory(ctx, testWorker, garden.ID, "kitchen"); !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected rename conflict, got %v", err)
	}
	renamed, err := svc.RenameCategory(ctx, testWorker, garden.ID, "Outdoor")
	if err != nil {
		t.Fatalf("RenameCategory: %v", err)
	}
	if renamed.Name != "Outdoor" {
		t.Fatalf("expected Outdoor, got %q", renamed.Name)
	}
	if _, err := svc.RenameCategory(ctx, testWorker, 0, "X"); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid id, got %v", err)
	}
	if _, err := svc.RenameCategory(ctx, testWorker, 404, "X"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := svc.DeleteCategory(ctx, testWorker, garden.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	if err := svc.DeleteCategory(ctx, testWorker, garden.ID); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}

	categories, err := svc.ListCategories(ctx)
	if err != nil || len(categories) != 1 {
		t.Fatalf("expected one category, got %v (%v)", categories, err)
	}
}

func TestCatalogItemValidation(t *testing.T) {
	_, svc := newCatalogFixture(t)
	ctx := context.Background()
	if _, err := svc.CreateCategory(ctx, testWorker, "Kitchen"); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	valid := ItemInput{Name: "Mug", CategoryName: "kitchen", Description: "Stoneware", Quantity: 5, Price: 1200}
	cases := []struct {
		name   string
		mutate func(*ItemInput)
		want   error
	}{
		{"blank name", func(in *ItemInput) { in.Name = " " }, ErrCatalogInvalidInput},
		{"blank category", func(in *ItemInput) { in.CategoryName = "" }, ErrCatalogInvalidInput},
		{"blank description", func(in *ItemInput) { in.Description = "" }, ErrCatalogInvalidInput},
		{"zero quantity", func(in *ItemInput) { in.Quantity = 0 }, ErrCatalogInvalidInput},
		{"negative price", func(in *ItemInput) { in.Price = -1 }, ErrCatalogInvalidInput},
		{"unknown category", func(in *ItemInput) { in.CategoryName = "Garden" }, ErrCatalogNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			tc.mutate(&input)
			if _, err := svc.CreateItem(ctx, testWorker, input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	created, err := svc.CreateItem(ctx, testWorker, valid)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if created.CategoryName != "Kitchen" {
		t.Fatalf("expected category projection, got %q", created.CategoryName)
	}
	duplicate := valid
	duplicate.Name = "MUG"
	if _, err := svc.CreateItem(ctx, testWorker, duplicate); !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected duplicate conflict, got %v", err)
	}
}

func TestCatalogUpdateAndDeleteItem(t *testing.T) {
	_, svc := newCatalogFixture(t)
	ctx := context.Background()
	if _, err := svc.CreateCategory(ctx, testWorker, "Kitchen"); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	mug, err := svc.CreateItem(ctx, testWorker, ItemInput{Name: "Mug", CategoryName: "Kitchen", Description: "d", Quantity: 5, Price: 100})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if _, err := svc.CreateItem(ctx, testWorker, ItemInput{Name: "Bowl", CategoryName: "Kitchen", Description: "d", Quantity: 5, Price: 100}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	if _, err := svc.UpdateItem(ctx, testWorker, mug.ID, ItemInput{Name: "bowl", CategoryName: "Kitchen", Description: "d", Quantity: 5, Price: 100}); !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected rename conflict, got %v", err)
	}
	updated, err := svc.UpdateItem(ctx, testWorker, mug.ID, ItemInput{Name: "mug", CategoryName: "Kitchen", Description: "new", Quantity: 9, Price: 150})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if updated.Name != "mug" || updated.Quantity != 9 || updated.Price != 150 {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, err := svc.UpdateItem(ctx, testWorker, 404, ItemInput{Name: "x", CategoryName: "Kitchen", Description: "d", Quantity: 1, Price: 1}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := svc.DeleteItem(ctx, testWorker, mug.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if _, err := svc.GetItem(ctx, mug.ID); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected deleted item to be not found, got %v", err)
	}
	if err := svc.DeleteItem(ctx, testUser, 1); !errors.Is(err, ErrCatalogForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCatalogSearchAndReports(t *testing.T) {
	store, svc := newCatalogFixture(t)
	ctx := context.Background()
	for _, name := range []string{"Kitchen", "Garden"} {
		if _, err := svc.CreateCategory(ctx, testWorker, name); err != nil {
			t.Fatalf("CreateCategory: %v", err)
		}
	}
	seed := []ItemInput{
		{Name: "Mug", CategoryName: "Kitchen", Description: "d", Quantity: 5, Price: 1200},
		{Name: "Mixing Bowl", CategoryName: "Kitchen", Description: "d", Quantity: 2, Price: 3400},
		{Name: "Spade", CategoryName: "Garden", Description: "d", Quantity: 7, Price: 2100},
	}
	ids := map[string]int64{}
	for _, input := range seed {
		item, err := svc.CreateItem(ctx, testWorker, input)
		if err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
		ids[item.Name] = item.ID
	}

	byName, err := svc.GetItemByName(ctx, "SPADE")
	if err != nil || byName.ID != ids["Spade"] {
		t.Fatalf("GetItemByName: %+v (%v)", byName, err)
	}

	found, err := svc.SearchItems(ctx, ItemSearch{NameFragment: "m", SortBy: domain.ItemSortPrice, SortOrder: domain.SortDesc})
	if err != nil {
		t.Fatalf("SearchItems: %v", err)
	}
	if len(found) != 2 || found[0].Name != "Mixing Bowl" {
		t.Fatalf("unexpected fragment search %+v", found)
	}

	kitchen, err := svc.SearchItems(ctx, ItemSearch{CategoryName: "kitchen", MaxPrice: int64Ptr(2000)})
	if err != nil || len(kitchen) != 1 || kitchen[0].Name != "Mug" {
		t.Fatalf("unexpected category search %+v (%v)", kitchen, err)
	}
	if _, err := svc.SearchItems(ctx, ItemSearch{CategoryName: "Toys"}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found for unknown category, got %v", err)
	}
	if _, err := svc.SearchItems(ctx, ItemSearch{MinPrice: int64Ptr(5000), MaxPrice: int64Ptr(100)}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid range, got %v", err)
	}

	report, err := svc.StockReport(ctx, testWorker, "", domain.SortAsc)
	if err != nil || len(report) != 3 || report[0].Name != "Mixing Bowl" {
		t.Fatalf("unexpected stock report %+v (%v)", report, err)
	}
	empty, err := svc.StockReport(ctx, testWorker, "Toys", domain.SortDesc)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty report for unknown category, got %+v (%v)", empty, err)
	}

	if _, err := svc.OutOfStock(ctx, testWorker); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected no out-of-stock items, got %v", err)
	}
	if err := store.Inventory().Reserve(ctx, ids["Mixing Bowl"], 2); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	out, err := svc.OutOfStock(ctx, testAdmin)
	if err != nil || len(out) != 1 || out[0].ID != ids["Mixing Bowl"] {
		t.Fatalf("unexpected out-of-stock listing %+v (%v)", out, err)
	}
	if _, err := svc.OutOfStock(ctx, testUser); !errors.Is(err, ErrCatalogForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
