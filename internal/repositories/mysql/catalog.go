package mysql

import (
	"context"

	"gorm.io/gorm"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/textutil"
	"github.com/webshop/api/internal/repositories"
)

type categoryRepository struct{ s *Store }

func (r categoryRepository) Insert(ctx context.Context, category domain.Category) (domain.Category, error) {
	now := r.s.now()
	model := categoryModel{
		Name:      category.Name,
		NameKey:   textutil.FoldKey(category.Name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.s.conn(ctx).Create(&model).Error; err != nil {
		return domain.Category{}, conflict(translate("categories.insert", err), "category %q already exists", category.Name)
	}
	return model.toDomain(), nil
}

func (r categoryRepository) Update(ctx context.Context, category domain.Category) (domain.Category, error) {
	var model categoryModel
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		db := r.s.conn(ctx)
		if err := db.First(&model, category.ID).Error; err != nil {
			return notFound(translate("categories.update", err), "category %d not found", category.ID)
		}
		model.Name = category.Name
		model.NameKey = textutil.FoldKey(category.Name)
		model.UpdatedAt = r.s.now()
		if err := db.Save(&model).Error; err != nil {
			return conflict(translate("categories.update", err), "category %q already exists", category.Name)
		}
		return nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return model.toDomain(), nil
}

func (r categoryRepository) Delete(ctx context.Context, categoryID int64) error {
	return r.s.RunInTx(ctx, func(ctx context.Context) error {
		db := r.s.conn(ctx)
		var count int64
		if err := db.Model(&itemModel{}).Where("category_id = ?", categoryID).Count(&count).Error; err != nil {
			return translate("categories.delete", err)
		}
		if count > 0 {
			return repositories.Conflict("categories.delete", "category %d still has items", categoryID)
		}
		res := db.Delete(&categoryModel{}, categoryID)
		if res.Error != nil {
			return translate("categories.delete", res.Error)
		}
		if res.RowsAffected == 0 {
			return repositories.NotFound("categories.delete", "category %d not found", categoryID)
		}
		return nil
	})
}

func (r categoryRepository) Get(ctx context.Context, categoryID int64) (domain.Category, error) {
	var model categoryModel
	if err := r.s.conn(ctx).First(&model, categoryID).Error; err != nil {
		return domain.Category{}, notFound(translate("categories.get", err), "category %d not found", categoryID)
	}
	return model.toDomain(), nil
}

func (r categoryRepository) FindByName(ctx context.Context, name string) (domain.Category, error) {
	var model categoryModel
	if err := r.s.conn(ctx).Where("name_key = ?", textutil.FoldKey(name)).First(&model).Error; err != nil {
		return domain.Category{}, notFound(translate("categories.find_by_name", err), "category %q not found", name)
	}
	return model.toDomain(), nil
}

func (r categoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	var models []categoryModel
	if err := r.s.conn(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, translate("categories.list", err)
	}
	out := make([]domain.Category, 0, len(models))
	for _, model := range models {
		out = append(out, model.toDomain())
	}
	return out, nil
}

type itemRepository struct{ s *Store }

func (r itemRepository) Insert(ctx context.Context, item domain.Item) (domain.Item, error) {
	now := r.s.now()
	model := itemModel{
		CategoryID:  item.CategoryID,
		Name:        item.Name,
		NameKey:     textutil.FoldKey(item.Name),
		Description: item.Description,
		Price:       item.Price,
		Quantity:    item.Quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.s.conn(ctx).Create(&model).Error; err != nil {
		return domain.Item{}, conflict(translate("items.insert", err), "item %q already exists", item.Name)
	}
	return r.withCategory(ctx, model.toDomain())
}

func (r itemRepository) Update(ctx context.Context, item domain.Item) (domain.Item, error) {
	var model itemModel
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		db := r.s.conn(ctx)
		if err := db.First(&model, item.ID).Error; err != nil {
			return notFound(translate("items.update", err), "item %d not found", item.ID)
		}
		model.CategoryID = item.CategoryID
		model.Name = item.Name
		model.NameKey = textutil.FoldKey(item.Name)
		model.Description = item.Description
		model.Price = item.Price
		model.Quantity = item.Quantity
		model.UpdatedAt = r.s.now()
		if err := db.Save(&model).Error; err != nil {
			return conflict(translate("items.update", err), "item %q already exists", item.Name)
		}
		return nil
	})
	if err != nil {
		return domain.Item{}, err
	}
	return r.withCategory(ctx, model.toDomain())
}

func (r itemRepository) Delete(ctx context.Context, itemID int64) error {
	res := r.s.conn(ctx).Delete(&itemModel{}, itemID)
	if res.Error != nil {
		return translate("items.delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.NotFound("items.delete", "item %d not found", itemID)
	}
	return nil
}

func (r itemRepository) Get(ctx context.Context, itemID int64) (domain.Item, error) {
	var model itemModel
	if err := r.s.conn(ctx).First(&model, itemID).Error; err != nil {
		return domain.Item{}, notFound(translate("items.get", err), "item %d not found", itemID)
	}
	return r.withCategory(ctx, model.toDomain())
}

func (r itemRepository) FindByName(ctx context.Context, name string) (domain.Item, error) {
	var model itemModel
	if err := r.s.conn(ctx).Where("name_key = ?", textutil.FoldKey(name)).First(&model).Error; err != nil {
		return domain.Item{}, notFound(translate("items.find_by_name", err), "item %q not found", name)
	}
	return r.withCategory(ctx, model.toDomain())
}

// List pushes the category, price and stock predicates into SQL; name matching and ordering use
// the shared Unicode folding rules.
func (r itemRepository) List(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	query := r.s.conn(ctx).Model(&itemModel{})
	if filter.CategoryID != nil {
		query = query.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.Price.From != nil {
		query = query.Where("price >= ?", *filter.Price.From)
	}
	if filter.Price.To != nil {
		query = query.Where("price <= ?", *filter.Price.To)
	}
	if filter.OutOfStock {
		query = query.Where("quantity <= 0")
	}

	var models []itemModel
	if err := query.Find(&models).Error; err != nil {
		return nil, translate("items.list", err)
	}
	names, err := r.categoryNames(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Item, 0, len(models))
	for _, model := range models {
		item := model.toDomain()
		if !repositories.MatchItem(item, filter) {
			continue
		}
		item.CategoryName = names[item.CategoryID]
		out = append(out, item)
	}
	repositories.SortItems(out, filter.SortBy, filter.SortOrder)
	return out, nil
}

func (r itemRepository) withCategory(ctx context.Context, item domain.Item) (domain.Item, error) {
	var category categoryModel
	err := r.s.conn(ctx).Select("name").First(&category, item.CategoryID).Error
	switch {
	case err == nil:
		item.CategoryName = category.Name
	case !errorsIsNotFound(err):
		return domain.Item{}, translate("items.category", err)
	}
	return item, nil
}

func (r itemRepository) categoryNames(ctx context.Context) (map[int64]string, error) {
	var categories []categoryModel
	if err := r.s.conn(ctx).Select("id", "name").Find(&categories).Error; err != nil {
		return nil, translate("items.categories", err)
	}
	names := make(map[int64]string, len(categories))
	for _, category := range categories {
		names[category.ID] = category.Name
	}
	return names, nil
}

type inventoryRepository struct{ s *Store }

// Reserve decrements stock with a guarded UPDATE so concurrent reservations cannot oversell.
func (r inventoryRepository) Reserve(ctx context.Context, itemID int64, qty int64) error {
	if qty <= 0 {
		return repositories.InvalidQuantity("inventory.reserve", itemID, qty)
	}
	db := r.s.conn(ctx)
	res := db.Model(&itemModel{}).
		Where("id = ? AND quantity >= ?", itemID, qty).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"updated_at": r.s.now(),
		})
	if res.Error != nil {
		return translate("inventory.reserve", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var model itemModel
	err := db.Select("id", "quantity").First(&model, itemID).Error
	if errorsIsNotFound(err) {
		return nil
	}
	if err != nil {
		return translate("inventory.reserve", err)
	}
	return repositories.InsufficientStock("inventory.reserve", itemID, qty, model.Quantity)
}

func (r inventoryRepository) Release(ctx context.Context, itemID int64, qty int64) error {
	if qty <= 0 {
		return repositories.InvalidQuantity("inventory.release", itemID, qty)
	}
	err := r.s.conn(ctx).Model(&itemModel{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", qty),
			"updated_at": r.s.now(),
		}).Error
	return translate("inventory.release", err)
}
