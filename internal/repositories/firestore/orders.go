package firestore

import (
	"context"
	"slices"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/webshop/api/internal/domain"
	pfirestore "github.com/webshop/api/internal/platform/firestore"
	"github.com/webshop/api/internal/repositories"
)

const orderItemsSequence = "orderItems"

type orderDocument struct {
	ID            int64               `firestore:"id"`
	UserID        int64               `firestore:"userId"`
	TargetAddress string              `firestore:"targetAddress"`
	TargetPhone   string              `firestore:"targetPhone"`
	Status        string              `firestore:"status"`
	TotalPrice    int64               `firestore:"totalPrice"`
	Items         []orderItemDocument `firestore:"items"`
	Version       int64               `firestore:"version"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ID       int64  `firestore:"id"`
	ItemID   int64  `firestore:"itemId"`
	ItemName string `firestore:"itemName"`
	Quantity int64  `firestore:"quantity"`
	Price    int64  `firestore:"price"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ID:       item.ID,
			ItemID:   item.ItemID,
			ItemName: item.ItemName,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return orderDocument{
		ID:            order.ID,
		UserID:        order.UserID,
		TargetAddress: order.TargetAddress,
		TargetPhone:   order.TargetPhone,
		Status:        string(order.Status),
		TotalPrice:    order.TotalPrice,
		Items:         items,
		Version:       order.Version,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

func (d orderDocument) toDomain() domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ID:       item.ID,
			OrderID:  d.ID,
			ItemID:   item.ItemID,
			ItemName: item.ItemName,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return domain.Order{
		ID:            d.ID,
		UserID:        d.UserID,
		TargetAddress: d.TargetAddress,
		TargetPhone:   d.TargetPhone,
		Status:        domain.OrderStatus(d.Status),
		TotalPrice:    d.TotalPrice,
		Items:         items,
		Version:       d.Version,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type orderRepository struct{ s *Store }

func (r orderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	var doc orderDocument
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		id, err := r.s.nextID(ctx, ordersCollection)
		if err != nil {
			return err
		}
		now := r.s.now()
		next := order
		next.ID = id
		next.Version = 1
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
		next.UpdatedAt = now
		next.Items = slices.Clone(order.Items)
		for i := range next.Items {
			lineID, err := r.s.nextID(ctx, orderItemsSequence)
			if err != nil {
				return err
			}
			next.Items[i].ID = lineID
		}
		doc = newOrderDocument(next)
		return r.s.orders.Set(ctx, docID(id), doc)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(), nil
}

func (r orderRepository) Get(ctx context.Context, orderID int64) (domain.Order, error) {
	var doc orderDocument
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		doc, err = r.s.orders.Get(ctx, docID(orderID))
		return missing(err, func() *repositories.StoreError {
			return repositories.NotFound("orders.get", "order %d not found", orderID)
		})
	})
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(), nil
}

func (r orderRepository) GetForUser(ctx context.Context, orderID int64, userID int64) (domain.Order, error) {
	order, err := r.Get(ctx, orderID)
	if err != nil || order.UserID != userID {
		if err == nil || repositories.IsNotFound(err) {
			return domain.Order{}, repositories.NotFound("orders.get_for_user", "order %d not found for user %d", orderID, userID)
		}
		return domain.Order{}, err
	}
	return order, nil
}

func (r orderRepository) ListForUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID)
	})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, repositories.NotFound("orders.list_for_user", "user %d has no orders", userID)
	}
	return orders, nil
}

func (r orderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	orders, err := r.list(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, repositories.NotFound("orders.list_all", "no orders")
	}
	return orders, nil
}

func (r orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	var doc orderDocument
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		prev, err := r.s.orders.Get(ctx, docID(order.ID))
		if err != nil {
			return missing(err, func() *repositories.StoreError {
				return repositories.NotFound("orders.save", "order %d not found", order.ID)
			})
		}
		if prev.Version != order.Version {
			return repositories.Conflict("orders.save", "order %d version %d is stale (current %d)", order.ID, order.Version, prev.Version)
		}
		next := order
		next.CreatedAt = prev.CreatedAt
		next.Version = prev.Version + 1
		next.UpdatedAt = r.s.now()
		doc = newOrderDocument(next)
		return r.s.orders.Set(ctx, docID(order.ID), doc)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(), nil
}

func (r orderRepository) Delete(ctx context.Context, orderID int64) error {
	return r.s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.s.orders.Get(ctx, docID(orderID)); err != nil {
			return missing(err, func() *repositories.StoreError {
				return repositories.NotFound("orders.delete", "order %d not found", orderID)
			})
		}
		return r.s.orders.Delete(ctx, docID(orderID))
	})
}

func (r orderRepository) list(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		docs, err := r.s.orders.Query(ctx, build)
		if err != nil {
			return err
		}
		orders = make([]domain.Order, 0, len(docs))
		for _, doc := range docs {
			orders = append(orders, doc.Data.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(orders, repositories.CompareOrdersNewestFirst)
	return orders, nil
}
