package memory

import (
	"context"
	"sync"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/textutil"
	"github.com/webshop/api/internal/repositories"
)

type itemRecord struct {
	mu   sync.Mutex
	item domain.Item
}

func (r *itemRecord) snapshot() domain.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.item
}

type itemRepository struct{ s *Store }

func (r itemRepository) Insert(ctx context.Context, item domain.Item) (domain.Item, error) {
	s := r.s
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	if s.itemNameTakenLocked(item.Name, 0) {
		return domain.Item{}, repositories.Conflict("items.insert", "item %q already exists", item.Name)
	}

	now := s.now()
	item.ID = s.itemSeq.Add(1)
	item.CreatedAt = now
	item.UpdatedAt = now
	item.CategoryName = ""
	s.items[item.ID] = &itemRecord{item: item}

	id := item.ID
	onRollback(ctx, func() {
		s.catalogMu.Lock()
		delete(s.items, id)
		s.catalogMu.Unlock()
	})
	return s.withCategoryLocked(item), nil
}

func (r itemRepository) Update(ctx context.Context, item domain.Item) (domain.Item, error) {
	s := r.s
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	rec, ok := s.items[item.ID]
	if !ok {
		return domain.Item{}, repositories.NotFound("items.update", "item %d not found", item.ID)
	}
	if s.itemNameTakenLocked(item.Name, item.ID) {
		return domain.Item{}, repositories.Conflict("items.update", "item %q already exists", item.Name)
	}

	// Descriptive fields change now; the stock level is set on commit so a rollback never
	// overwrites reservations committed in between.
	rec.mu.Lock()
	prev := rec.item
	item.CreatedAt = prev.CreatedAt
	item.UpdatedAt = s.now()
	item.CategoryName = ""
	quantity := item.Quantity
	next := item
	next.Quantity = prev.Quantity
	rec.item = next
	rec.mu.Unlock()

	onRollback(ctx, func() {
		rec.mu.Lock()
		restored := prev
		restored.Quantity = rec.item.Quantity
		rec.item = restored
		rec.mu.Unlock()
	})
	onCommit(ctx, func() {
		rec.mu.Lock()
		rec.item.Quantity = quantity
		rec.mu.Unlock()
	})
	return s.withCategoryLocked(item), nil
}

func (r itemRepository) Delete(ctx context.Context, itemID int64) error {
	s := r.s
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	rec, ok := s.items[itemID]
	if !ok {
		return repositories.NotFound("items.delete", "item %d not found", itemID)
	}
	delete(s.items, itemID)
	onRollback(ctx, func() {
		s.catalogMu.Lock()
		s.items[itemID] = rec
		s.catalogMu.Unlock()
	})
	return nil
}

func (r itemRepository) Get(_ context.Context, itemID int64) (domain.Item, error) {
	s := r.s
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	rec, ok := s.items[itemID]
	if !ok {
		return domain.Item{}, repositories.NotFound("items.get", "item %d not found", itemID)
	}
	return s.withCategoryLocked(rec.snapshot()), nil
}

func (r itemRepository) FindByName(_ context.Context, name string) (domain.Item, error) {
	s := r.s
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	for _, rec := range s.items {
		item := rec.snapshot()
		if textutil.EqualFold(item.Name, name) {
			return s.withCategoryLocked(item), nil
		}
	}
	return domain.Item{}, repositories.NotFound("items.find_by_name", "item %q not found", name)
}

func (r itemRepository) List(_ context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	s := r.s
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	out := make([]domain.Item, 0, len(s.items))
	for _, rec := range s.items {
		item := rec.snapshot()
		if !repositories.MatchItem(item, filter) {
			continue
		}
		out = append(out, s.withCategoryLocked(item))
	}
	repositories.SortItems(out, filter.SortBy, filter.SortOrder)
	return out, nil
}

func (s *Store) itemNameTakenLocked(name string, exceptID int64) bool {
	for id, rec := range s.items {
		if id == exceptID {
			continue
		}
		if textutil.EqualFold(rec.snapshot().Name, name) {
			return true
		}
	}
	return false
}

func (s *Store) withCategoryLocked(item domain.Item) domain.Item {
	if category, ok := s.categories[item.CategoryID]; ok {
		item.CategoryName = category.Name
	}
	return item
}

type inventoryRepository struct{ s *Store }

func (r inventoryRepository) Reserve(ctx context.Context, itemID int64, qty int64) error {
	if qty <= 0 {
		return repositories.InvalidQuantity("inventory.reserve", itemID, qty)
	}
	rec := r.s.itemRecord(itemID)
	if rec == nil {
		return nil
	}

	rec.mu.Lock()
	if rec.item.Quantity < qty {
		available := rec.item.Quantity
		rec.mu.Unlock()
		return repositories.InsufficientStock("inventory.reserve", itemID, qty, available)
	}
	rec.item.Quantity -= qty
	rec.item.UpdatedAt = r.s.now()
	rec.mu.Unlock()

	onRollback(ctx, func() {
		rec.mu.Lock()
		rec.item.Quantity += qty
		rec.mu.Unlock()
	})
	return nil
}

func (r inventoryRepository) Release(ctx context.Context, itemID int64, qty int64) error {
	if qty <= 0 {
		return repositories.InvalidQuantity("inventory.release", itemID, qty)
	}
	rec := r.s.itemRecord(itemID)
	if rec == nil {
		return nil
	}

	now := r.s.now()
	onCommit(ctx, func() {
		rec.mu.Lock()
		rec.item.Quantity += qty
		rec.item.UpdatedAt = now
		rec.mu.Unlock()
	})
	return nil
}

func (s *Store) itemRecord(itemID int64) *itemRecord {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return s.items[itemID]
}
