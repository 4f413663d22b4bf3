package memory

import (
	"cmp"
	"context"
	"slices"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/textutil"
	"github.com/webshop/api/internal/repositories"
)

type categoryRepository struct{ s *Store }

func (r categoryRepository) Insert(ctx context.Context, category domain.Category) (domain.Category, error) {
	s := r.s
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	if s.categoryNameTakenLocked(category.Name, 0) {
		return domain.Category{}, repositories.Conflict("categories.insert", "category %q already exists", category.Name)
	}
	now := s.now()
	category.ID = s.categorySeq.Add(1)
	category.CreatedAt = now
	category.UpdatedAt = now
	s.categories[category.ID] = category

	id := category.ID
	onRollback(ctx, func() {
		s.catalogMu.Lock()
		delete(s.categories, id)
		s.catalogMu.Unlock()
	})
	return category, nil
}

func (r categoryRepository) Update(ctx context.Context, category domain.Category) (domain.Category, error) {
	s := r.s
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	prev, ok := s.categories[category.ID]
	if !ok {
		return domain.Category{}, repositories.NotFound("categories.update", "category %d not found", category.ID)
	}
	if s.categoryNameTakenLocked(category.Name, category.ID) {
		return domain.Category{}, repositories.Conflict("categories.update", "category %q already exists", category.Name)
	}
	category.CreatedAt = prev.CreatedAt
	category.UpdatedAt = s.now()
	s.categories[category.ID] = category

	onRollback(ctx, func() {
		s.catalogMu.Lock()
		s.categories[prev.ID] = prev
		s.catalogMu.Unlock()
	})
	return category, nil
}

func (r categoryRepository) Delete(ctx context.Context, categoryID int64) error {
	s := r.s
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	prev, ok := s.categories[categoryID]
	if !ok {
		return repositories.NotFound("categories.delete", "category %d not found", categoryID)
	}
	for _, rec := range s.items {
		if rec.snapshot().CategoryID == categoryID {
			return repositories.Conflict("categories.delete", "category %d still has items", categoryID)
		}
	}
	delete(s.categories, categoryID)

	onRollback(ctx, func() {
		s.catalogMu.Lock()
		s.categories[prev.ID] = prev
		s.catalogMu.Unlock()
	})
	return nil
}

func (r categoryRepository) Get(_ context.Context, categoryID int64) (domain.Category, error) {
	s := r.s
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	category, ok := s.categories[categoryID]
	if !ok {
		return domain.Category{}, repositories.NotFound("categories.get", "category %d not found", categoryID)
	}
	return category, nil
}

func (r categoryRepository) FindByName(_ context.Context, name string) (domain.Category, error) {
	s := r.s
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	for _, category := range s.categories {
		if textutil.EqualFold(category.Name, name) {
			return category, nil
		}
	}
	return domain.Category{}, repositories.NotFound("categories.find_by_name", "category %q not found", name)
}

func (r categoryRepository) List(_ context.Context) ([]domain.Category, error) {
	s := r.s
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	out := make([]domain.Category, 0, len(s.categories))
	for _, category := range s.categories {
		out = append(out, category)
	}
	slices.SortFunc(out, func(a, b domain.Category) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) categoryNameTakenLocked(name string, exceptID int64) bool {
	for id, category := range s.categories {
		if id != exceptID && textutil.EqualFold(category.Name, name) {
			return true
		}
	}
	return false
}
