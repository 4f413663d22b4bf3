package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/repositories"
)

type cartRepository struct{ s *Store }

func (r cartRepository) List(_ context.Context, userID int64) ([]domain.CartItem, error) {
	s := r.s
	s.cartsMu.Lock()
	lines := make([]domain.CartItem, 0, len(s.carts[userID]))
	for _, line := range s.carts[userID] {
		lines = append(lines, line)
	}
	s.cartsMu.Unlock()

	slices.SortFunc(lines, func(a, b domain.CartItem) int { return cmp.Compare(a.ItemID, b.ItemID) })
	return s.withItemNames(lines), nil
}

func (r cartRepository) Get(_ context.Context, userID int64, itemID int64) (domain.CartItem, error) {
	s := r.s
	s.cartsMu.Lock()
	line, ok := s.carts[userID][itemID]
	s.cartsMu.Unlock()
	if !ok {
		return domain.CartItem{}, repositories.NotFound("carts.get", "item %d is not in the cart of user %d", itemID, userID)
	}
	return s.withItemNames([]domain.CartItem{line})[0], nil
}

func (r cartRepository) Upsert(ctx context.Context, line domain.CartItem) (domain.CartItem, error) {
	s := r.s
	s.cartsMu.Lock()
	cart, ok := s.carts[line.UserID]
	if !ok {
		cart = make(map[int64]domain.CartItem)
		s.carts[line.UserID] = cart
	}
	prev, existed := cart[line.ItemID]
	line.ItemName = ""
	line.UpdatedAt = s.now()
	cart[line.ItemID] = line
	s.cartsMu.Unlock()

	onRollback(ctx, func() {
		s.cartsMu.Lock()
		defer s.cartsMu.Unlock()
		if existed {
			s.cartLocked(prev.UserID)[prev.ItemID] = prev
			return
		}
		delete(s.carts[line.UserID], line.ItemID)
	})
	return s.withItemNames([]domain.CartItem{line})[0], nil
}

func (r cartRepository) Remove(ctx context.Context, userID int64, itemID int64) error {
	s := r.s
	s.cartsMu.Lock()
	prev, ok := s.carts[userID][itemID]
	if !ok {
		s.cartsMu.Unlock()
		return repositories.NotFound("carts.remove", "item %d is not in the cart of user %d", itemID, userID)
	}
	delete(s.carts[userID], itemID)
	s.cartsMu.Unlock()

	onRollback(ctx, func() {
		s.cartsMu.Lock()
		s.cartLocked(userID)[itemID] = prev
		s.cartsMu.Unlock()
	})
	return nil
}

func (r cartRepository) Clear(ctx context.Context, userID int64) error {
	s := r.s
	s.cartsMu.Lock()
	prev := maps.Clone(s.carts[userID])
	delete(s.carts, userID)
	s.cartsMu.Unlock()

	onRollback(ctx, func() {
		if len(prev) == 0 {
			return
		}
		s.cartsMu.Lock()
		s.carts[userID] = prev
		s.cartsMu.Unlock()
	})
	return nil
}

func (s *Store) cartLocked(userID int64) map[int64]domain.CartItem {
	cart, ok := s.carts[userID]
	if !ok {
		cart = make(map[int64]domain.CartItem)
		s.carts[userID] = cart
	}
	return cart
}

func (s *Store) withItemNames(lines []domain.CartItem) []domain.CartItem {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	for i := range lines {
		if rec, ok := s.items[lines[i].ItemID]; ok {
			lines[i].ItemName = rec.snapshot().Name
		}
	}
	return lines
}
