package mysql

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/repositories"
)

type cartRepository struct{ s *Store }

func (r cartRepository) rows(ctx context.Context) *gorm.DB {
	return r.s.conn(ctx).
		Table("cart_items").
		Select("cart_items.*, items.name AS item_name").
		Joins("LEFT JOIN items ON items.id = cart_items.item_id")
}

func (r cartRepository) List(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	var rows []cartItemRow
	if err := r.rows(ctx).Where("cart_items.user_id = ?", userID).Order("cart_items.item_id").Scan(&rows).Error; err != nil {
		return nil, translate("carts.list", err)
	}
	lines := make([]domain.CartItem, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.toDomain())
	}
	return lines, nil
}

func (r cartRepository) Get(ctx context.Context, userID int64, itemID int64) (domain.CartItem, error) {
	var rows []cartItemRow
	err := r.rows(ctx).
		Where("cart_items.user_id = ? AND cart_items.item_id = ?", userID, itemID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return domain.CartItem{}, translate("carts.get", err)
	}
	if len(rows) == 0 {
		return domain.CartItem{}, repositories.NotFound("carts.get", "item %d is not in the cart of user %d", itemID, userID)
	}
	return rows[0].toDomain(), nil
}

func (r cartRepository) Upsert(ctx context.Context, line domain.CartItem) (domain.CartItem, error) {
	model := cartItemModel{
		UserID:    line.UserID,
		ItemID:    line.ItemID,
		Quantity:  line.Quantity,
		Price:     line.Price,
		UpdatedAt: r.s.now(),
	}
	err := r.s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "price", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return domain.CartItem{}, translate("carts.upsert", err)
	}
	return r.Get(ctx, line.UserID, line.ItemID)
}

func (r cartRepository) Remove(ctx context.Context, userID int64, itemID int64) error {
	res := r.s.conn(ctx).Where("user_id = ? AND item_id = ?", userID, itemID).Delete(&cartItemModel{})
	if res.Error != nil {
		return translate("carts.remove", res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.NotFound("carts.remove", "item %d is not in the cart of user %d", itemID, userID)
	}
	return nil
}

func (r cartRepository) Clear(ctx context.Context, userID int64) error {
	err := r.s.conn(ctx).Where("user_id = ?", userID).Delete(&cartItemModel{}).Error
	return translate("carts.clear", err)
}
