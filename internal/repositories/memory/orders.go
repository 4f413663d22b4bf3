package memory

import (
	"context"
	"slices"
	"sync"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/repositories"
)

type orderRecord struct {
	mu    sync.Mutex
	order domain.Order
}

func (r *orderRecord) snapshot() domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneOrder(r.order)
}

type orderRepository struct{ s *Store }

func (r orderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	s := r.s
	now := s.now()

	order = cloneOrder(order)
	order.ID = s.orderSeq.Add(1)
	order.Version = 1
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	for i := range order.Items {
		order.Items[i].ID = s.lineSeq.Add(1)
		order.Items[i].OrderID = order.ID
	}

	s.ordersMu.Lock()
	s.orders[order.ID] = &orderRecord{order: order}
	s.ordersMu.Unlock()

	id := order.ID
	onRollback(ctx, func() {
		s.ordersMu.Lock()
		delete(s.orders, id)
		s.ordersMu.Unlock()
	})
	return cloneOrder(order), nil
}

func (r orderRepository) Get(_ context.Context, orderID int64) (domain.Order, error) {
	rec := r.s.orderRecord(orderID)
	if rec == nil {
		return domain.Order{}, repositories.NotFound("orders.get", "order %d not found", orderID)
	}
	return rec.snapshot(), nil
}

func (r orderRepository) GetForUser(ctx context.Context, orderID int64, userID int64) (domain.Order, error) {
	order, err := r.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != userID {
		return domain.Order{}, repositories.NotFound("orders.get_for_user", "order %d not found for user %d", orderID, userID)
	}
	return order, nil
}

func (r orderRepository) ListForUser(_ context.Context, userID int64) ([]domain.Order, error) {
	orders := r.s.collectOrders(func(o domain.Order) bool { return o.UserID == userID })
	if len(orders) == 0 {
		return nil, repositories.NotFound("orders.list_for_user", "user %d has no orders", userID)
	}
	return orders, nil
}

func (r orderRepository) ListAll(_ context.Context) ([]domain.Order, error) {
	orders := r.s.collectOrders(func(domain.Order) bool { return true })
	if len(orders) == 0 {
		return nil, repositories.NotFound("orders.list_all", "no orders")
	}
	return orders, nil
}

func (r orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	rec := r.s.orderRecord(order.ID)
	if rec == nil {
		return domain.Order{}, repositories.NotFound("orders.save", "order %d not found", order.ID)
	}

	rec.mu.Lock()
	prev := rec.order
	if prev.Version != order.Version {
		rec.mu.Unlock()
		return domain.Order{}, repositories.Conflict("orders.save", "order %d version %d is stale (current %d)", order.ID, order.Version, prev.Version)
	}
	next := cloneOrder(order)
	next.CreatedAt = prev.CreatedAt
	next.Version = prev.Version + 1
	next.UpdatedAt = r.s.now()
	rec.order = next
	rec.mu.Unlock()

	onRollback(ctx, func() {
		rec.mu.Lock()
		rec.order = prev
		rec.mu.Unlock()
	})
	return cloneOrder(next), nil
}

func (r orderRepository) Delete(ctx context.Context, orderID int64) error {
	s := r.s
	s.ordersMu.Lock()
	rec, ok := s.orders[orderID]
	if !ok {
		s.ordersMu.Unlock()
		return repositories.NotFound("orders.delete", "order %d not found", orderID)
	}
	delete(s.orders, orderID)
	s.ordersMu.Unlock()

	onRollback(ctx, func() {
		s.ordersMu.Lock()
		s.orders[orderID] = rec
		s.ordersMu.Unlock()
	})
	return nil
}

func (s *Store) orderRecord(orderID int64) *orderRecord {
	s.ordersMu.RLock()
	defer s.ordersMu.RUnlock()
	return s.orders[orderID]
}

func (s *Store) collectOrders(keep func(domain.Order) bool) []domain.Order {
	s.ordersMu.RLock()
	records := make([]*orderRecord, 0, len(s.orders))
	for _, rec := range s.orders {
		records = append(records, rec)
	}
	s.ordersMu.RUnlock()

	out := make([]domain.Order, 0, len(records))
	for _, rec := range records {
		if order := rec.snapshot(); keep(order) {
			out = append(out, order)
		}
	}
	slices.SortFunc(out, repositories.CompareOrdersNewestFirst)
	return out
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	return order
}
