package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/textutil"
	"github.com/webshop/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog operation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates a category or item does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a duplicate name or a category still in use.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogForbidden indicates the actor may not modify the catalog.
	ErrCatalogForbidden = errors.New("catalog: forbidden")
	// ErrCatalogUnavailable indicates the store could not serve the request.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Categories repositories.CategoryRepository
	Items      repositories.ItemRepository
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	categories repositories.CategoryRepository
	items      repositories.ItemRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}
	if deps.Items == nil {
		return nil, errors.New("catalog service: item repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		categories: deps.Categories,
		items:      deps.Items,
		unitOfWork: unit,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrCatalogNotFound)
	}
	return categories, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, actor Actor, name string) (Category, error) {
	if err := requireCatalogStaff(actor); err != nil {
		return Category{}, err
	}
	name = textutil.PlainText(name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrCatalogInvalidInput)
	}

	var created Category
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.categories.FindByName(txCtx, name); err == nil {
			return fmt.Errorf("%w: category %q already exists", ErrCatalogConflict, name)
		} else if !isRepositoryNotFound(err) {
			return mapCatalogError(err)
		}
		now := s.clock()
		category, err := s.categories.Insert(txCtx, Category{Name: name, CreatedAt: now, UpdatedAt: now})
		if err != nil {
			return mapCatalogError(err)
		}
		created = category
		return nil
	})
	if err != nil {
		return Category{}, err
	}
	s.logger(ctx, "catalog.category.created", map[string]any{"categoryId": created.ID, "actorId": actor.ID})
	return created, nil
}

func (s *catalogService) RenameCategory(ctx context.Context, actor Actor, categoryID int64, name string) (Category, error) {
	if err := requireCatalogStaff(actor); err != nil {
		return Category{}, err
	}
	if categoryID <= 0 {
		return Category{}, fmt.Errorf("%w: category id must be positive", ErrCatalogInvalidInput)
	}
	name = textutil.PlainText(name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrCatalogInvalidInput)
	}

	var renamed Category
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		category, err := s.categories.Get(txCtx, categoryID)
		if err != nil {
			return mapCatalogError(err)
		}
		existing, err := s.categories.FindByName(txCtx, name)
		switch {
		case err == nil && existing.ID != categoryID:
			return fmt.Errorf("%w: category %q already exists", ErrCatalogConflict, name)
		case err != nil && !isRepositoryNotFound(err):
			return mapCatalogError(err)
		}
		category.Name = name
		category.UpdatedAt = s.clock()
		updated, err := s.categories.Update(txCtx, category)
		if err != nil {
			return mapCatalogError(err)
		}
		renamed = updated
		return nil
	})
	if err != nil {
		return Category{}, err
	}
	return renamed, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, actor Actor, categoryID int64) error {
	if err := requireCatalogStaff(actor); err != nil {
		return err
	}
	if categoryID <= 0 {
		return fmt.Errorf("%w: category id must be positive", ErrCatalogInvalidInput)
	}
	if err := s.categories.Delete(ctx, categoryID); err != nil {
		return mapCatalogError(err)
	}
	s.logger(ctx, "catalog.category.deleted", map[string]any{"categoryId": categoryID, "actorId": actor.ID})
	return nil
}

func (s *catalogService) GetItem(ctx context.Context, itemID int64) (Item, error) {
	if itemID <= 0 {
		return Item{}, fmt.Errorf("%w: item id must be positive", ErrCatalogInvalidInput)
	}
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return Item{}, mapCatalogError(err)
	}
	return item, nil
}

func (s *catalogService) GetItemByName(ctx context.Context, name string) (Item, error) {
	name = textutil.PlainText(name)
	if name == "" {
		return Item{}, fmt.Errorf("%w: item name is required", ErrCatalogInvalidInput)
	}
	item, err := s.items.FindByName(ctx, name)
	if err != nil {
		return Item{}, mapCatalogError(err)
	}
	return item, nil
}

func (s *catalogService) SearchItems(ctx context.Context, search ItemSearch) ([]Item, error) {
	filter := domain.ItemFilter{
		NameFragment: textutil.PlainText(search.NameFragment),
		SortBy:       normalizeItemSort(search.SortBy, domain.ItemSortName),
		SortOrder:    normalizeSortOrder(search.SortOrder),
	}
	if search.MinPrice != nil && *search.MinPrice < 0 {
		return nil, fmt.Errorf("%w: minimum price cannot be negative", ErrCatalogInvalidInput)
	}
	if search.MaxPrice != nil && *search.MaxPrice < 0 {
		return nil, fmt.Errorf("%w: maximum price cannot be negative", ErrCatalogInvalidInput)
	}
	if search.MinPrice != nil && search.MaxPrice != nil && *search.MinPrice > *search.MaxPrice {
		return nil, fmt.Errorf("%w: minimum price exceeds maximum price", ErrCatalogInvalidInput)
	}
	filter.Price = domain.RangeQuery[int64]{From: search.MinPrice, To: search.MaxPrice}

	if name := textutil.PlainText(search.CategoryName); name != "" {
		category, err := s.categories.FindByName(ctx, name)
		if err != nil {
			if isRepositoryNotFound(err) {
				return nil, fmt.Errorf("%w: no items in category %q", ErrCatalogNotFound, name)
			}
			return nil, mapCatalogError(err)
		}
		filter.CategoryID = &category.ID
	}

	items, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items match the search", ErrCatalogNotFound)
	}
	return items, nil
}

func (s *catalogService) StockReport(ctx context.Context, actor Actor, category string, order SortOrder) ([]Item, error) {
	if err := requireCatalogStaff(actor); err != nil {
		return nil, err
	}
	filter := domain.ItemFilter{
		SortBy:    domain.ItemSortQuantity,
		SortOrder: normalizeSortOrder(order),
	}
	if name := textutil.PlainText(category); name != "" {
		found, err := s.categories.FindByName(ctx, name)
		if err != nil {
			if isRepositoryNotFound(err) {
				return []Item{}, nil
			}
			return nil, mapCatalogError(err)
		}
		filter.CategoryID = &found.ID
	}
	items, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

func (s *catalogService) OutOfStock(ctx context.Context, actor Actor) ([]Item, error) {
	if err := requireCatalogStaff(actor); err != nil {
		return nil, err
	}
	items, err := s.items.List(ctx, domain.ItemFilter{OutOfStock: true, SortBy: domain.ItemSortID, SortOrder: domain.SortAsc})
	if err != nil {
		return nil, mapCatalogError(err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items are out of stock", ErrCatalogNotFound)
	}
	return items, nil
}

func (s *catalogService) CreateItem(ctx context.Context, actor Actor, input ItemInput) (Item, error) {
	if err := requireCatalogStaff(actor); err != nil {
		return Item{}, err
	}
	input, err := normalizeItemInput(input)
	if err != nil {
		return Item{}, err
	}

	var created Item
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		category, err := s.categories.FindByName(txCtx, input.CategoryName)
		if err != nil {
			return mapCatalogError(err)
		}
		if _, err := s.items.FindByName(txCtx, input.Name); err == nil {
			return fmt.Errorf("%w: item %q already exists", ErrCatalogConflict, input.Name)
		} else if !isRepositoryNotFound(err) {
			return mapCatalogError(err)
		}
		now := s.clock()
		item, err := s.items.Insert(txCtx, Item{
			CategoryID:  category.ID,
			Name:        input.Name,
			Description: input.Description,
			Price:       input.Price,
			Quantity:    input.Quantity,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return mapCatalogError(err)
		}
		created = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.logger(ctx, "catalog.item.created", map[string]any{"itemId": created.ID, "actorId": actor.ID})
	return created, nil
}

func (s *catalogService) UpdateItem(ctx context.Context, actor Actor, itemID int64, input ItemInput) (Item, error) {
	if err := requireCatalogStaff(actor); err != nil {
		return Item{}, err
	}
	if itemID <= 0 {
		return Item{}, fmt.Errorf("%w: item id must be positive", ErrCatalogInvalidInput)
	}
	input, err := normalizeItemInput(input)
	if err != nil {
		return Item{}, err
	}

	var updated Item
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		item, err := s.items.Get(txCtx, itemID)
		if err != nil {
			return mapCatalogError(err)
		}
		existing, err := s.items.FindByName(txCtx, input.Name)
		switch {
		case err == nil && existing.ID != itemID:
			return fmt.Errorf("%w: item %q already exists", ErrCatalogConflict, input.Name)
		case err != nil && !isRepositoryNotFound(err):
			return mapCatalogError(err)
		}
		category, err := s.categories.FindByName(txCtx, input.CategoryName)
		if err != nil {
			return mapCatalogError(err)
		}

		item.Name = input.Name
		item.CategoryID = category.ID
		item.Description = input.Description
		item.Price = input.Price
		item.Quantity = input.Quantity
		item.UpdatedAt = s.clock()
		saved, err := s.items.Update(txCtx, item)
		if err != nil {
			return mapCatalogError(err)
		}
		updated = saved
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return updated, nil
}

func (s *catalogService) DeleteItem(ctx context.Context, actor Actor, itemID int64) error {
	if err := requireCatalogStaff(actor); err != nil {
		return err
	}
	if itemID <= 0 {
		return fmt.Errorf("%w: item id must be positive", ErrCatalogInvalidInput)
	}
	if err := s.items.Delete(ctx, itemID); err != nil {
		return mapCatalogError(err)
	}
	s.logger(ctx, "catalog.item.deleted", map[string]any{"itemId": itemID, "actorId": actor.ID})
	return nil
}

func normalizeItemInput(input ItemInput) (ItemInput, error) {
	input.Name = textutil.PlainText(input.Name)
	input.CategoryName = textutil.PlainText(input.CategoryName)
	input.Description = textutil.PlainText(input.Description)

	switch {
	case input.Name == "":
		return ItemInput{}, fmt.Errorf("%w: item name is required", ErrCatalogInvalidInput)
	case input.CategoryName == "":
		return ItemInput{}, fmt.Errorf("%w: category name is required", ErrCatalogInvalidInput)
	case input.Description == "":
		return ItemInput{}, fmt.Errorf("%w: description is required", ErrCatalogInvalidInput)
	case input.Quantity <= 0:
		return ItemInput{}, fmt.Errorf("%w: quantity must be positive", ErrCatalogInvalidInput)
	case input.Price <= 0:
		return ItemInput{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	return input, nil
}

func normalizeItemSort(sortBy domain.ItemSort, fallback domain.ItemSort) domain.ItemSort {
	switch sortBy {
	case domain.ItemSortID, domain.ItemSortName, domain.ItemSortPrice, domain.ItemSortQuantity:
		return sortBy
	default:
		return fallback
	}
}

func normalizeSortOrder(order domain.SortOrder) domain.SortOrder {
	switch order {
	case domain.SortAsc, domain.SortDesc:
		return order
	default:
		return domain.SortAsc
	}
}

func requireCatalogStaff(actor Actor) error {
	if !actor.Role.IsStaff() {
		return fmt.Errorf("%w: role %q may not modify the catalog", ErrCatalogForbidden, actor.Role)
	}
	return nil
}

func mapCatalogError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return err
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
