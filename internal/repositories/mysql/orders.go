package mysql

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/repositories"
)

type orderRepository struct{ s *Store }

func (r orderRepository) withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

func (r orderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	now := r.s.now()
	order.ID = 0
	order.Version = 1
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	model := newOrderModel(order)
	for i := range model.Items {
		model.Items[i].ID = 0
	}
	if err := r.s.conn(ctx).Create(&model).Error; err != nil {
		return domain.Order{}, translate("orders.insert", err)
	}
	return model.toDomain(), nil
}

// Get locks the order row when called inside a unit of work.
func (r orderRepository) Get(ctx context.Context, orderID int64) (domain.Order, error) {
	db := r.s.conn(ctx)
	if inTx(ctx) {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model orderModel
	if err := r.withItems(db).First(&model, orderID).Error; err != nil {
		return domain.Order{}, notFound(translate("orders.get", err), "order %d not found", orderID)
	}
	return model.toDomain(), nil
}

func (r orderRepository) GetForUser(ctx context.Context, orderID int64, userID int64) (domain.Order, error) {
	var model orderModel
	err := r.withItems(r.s.conn(ctx)).Where("id = ? AND user_id = ?", orderID, userID).First(&model).Error
	if err != nil {
		return domain.Order{}, notFound(translate("orders.get_for_user", err), "order %d not found for user %d", orderID, userID)
	}
	return model.toDomain(), nil
}

func (r orderRepository) ListForUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := r.list(r.s.conn(ctx).Where("user_id = ?", userID))
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, repositories.NotFound("orders.list_for_user", "user %d has no orders", userID)
	}
	return orders, nil
}

func (r orderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	orders, err := r.list(r.s.conn(ctx))
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, repositories.NotFound("orders.list_all", "no orders")
	}
	return orders, nil
}

// Save updates the order header when the stored version still matches. Line items are immutable
// once inserted.
func (r orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	var saved domain.Order
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		db := r.s.conn(ctx)
		res := db.Model(&orderModel{}).
			Where("id = ? AND version = ?", order.ID, order.Version).
			Updates(map[string]any{
				"target_address": order.TargetAddress,
				"target_phone":   order.TargetPhone,
				"status":         string(order.Status),
				"total_price":    order.TotalPrice,
				"version":        gorm.Expr("version + 1"),
				"updated_at":     r.s.now(),
			})
		if res.Error != nil {
			return translate("orders.save", res.Error)
		}
		if res.RowsAffected == 0 {
			var current orderModel
			if err := db.Select("id", "version").First(&current, order.ID).Error; err != nil {
				return notFound(translate("orders.save", err), "order %d not found", order.ID)
			}
			return repositories.Conflict("orders.save", "order %d version %d is stale (current %d)", order.ID, order.Version, current.Version)
		}
		var err error
		saved, err = r.Get(ctx, order.ID)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	return saved, nil
}

func (r orderRepository) Delete(ctx context.Context, orderID int64) error {
	return r.s.RunInTx(ctx, func(ctx context.Context) error {
		db := r.s.conn(ctx)
		if err := db.Where("order_id = ?", orderID).Delete(&orderItemModel{}).Error; err != nil {
			return translate("orders.delete", err)
		}
		res := db.Delete(&orderModel{}, orderID)
		if res.Error != nil {
			return translate("orders.delete", res.Error)
		}
		if res.RowsAffected == 0 {
			return repositories.NotFound("orders.delete", "order %d not found", orderID)
		}
		return nil
	})
}

func (r orderRepository) list(db *gorm.DB) ([]domain.Order, error) {
	var models []orderModel
	if err := r.withItems(db).Order("created_at DESC, id DESC").Find(&models).Error; err != nil {
		return nil, translate("orders.list", err)
	}
	orders := make([]domain.Order, 0, len(models))
	for _, model := range models {
		orders = append(orders, model.toDomain())
	}
	return orders, nil
}
