package firestore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/textutil"
	"github.com/webshop/api/internal/repositories"
)

type categoryDocument struct {
	ID        int64     `firestore:"id"`
	Name      string    `firestore:"name"`
	NameKey   string    `firestore:"nameKey"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d categoryDocument) toDomain() domain.Category {
	return domain.Category{
		ID:        d.ID,
		Name:      d.Name,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type categoryRepository struct{ s *Store }

func (r categoryRepository) Insert(ctx context.Context, category domain.Category) (domain.Category, error) {
	var doc categoryDocument
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		taken, err := r.nameTaken(ctx, category.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return repositories.Conflict("categories.insert", "category %q already exists", category.Name)
		}
		id, err := r.s.nextID(ctx, categoriesCollection)
		if err != nil {
			return err
		}
		now := r.s.now()
		doc = categoryDocument{
			ID:        id,
			Name:      category.Name,
			NameKey:   textutil.FoldKey(category.Name),
			CreatedAt: now,
			UpdatedAt: now,
		}
		return r.s.categories.Set(ctx, docID(id), doc)
	})
	if err != nil {
		return domain.Category{}, err
	}
	return doc.toDomain(), nil
}

func (r categoryRepository) Update(ctx context.Context, category domain.Category) (domain.Category, error) {
	var doc categoryDocument
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		prev, err := r.s.categories.Get(ctx, docID(category.ID))
		if err != nil {
			return missing(err, func() *repositories.StoreError {
				return repositories.NotFound("categories.update", "category %d not found", category.ID)
			})
		}
		taken, err := r.nameTaken(ctx, category.Name, category.ID)
		if err != nil {
			return err
		}
		if taken {
			return repositories.Conflict("categories.update", "category %q already exists", category.Name)
		}
		doc = prev
		doc.Name = category.Name
		doc.NameKey = textutil.FoldKey(category.Name)
		doc.UpdatedAt = r.s.now()
		return r.s.categories.Set(ctx, docID(category.ID), doc)
	})
	if err != nil {
		return domain.Category{}, err
	}
	return doc.toDomain(), nil
}

func (r categoryRepository) Delete(ctx context.Context, categoryID int64) error {
	return r.s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.s.categories.Get(ctx, docID(categoryID)); err != nil {
			return missing(err, func() *repositories.StoreError {
				return repositories.NotFound("categories.delete", "category %d not found", categoryID)
			})
		}
		items, err := r.s.items.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("categoryId", "==", categoryID)
		})
		if err != nil {
			return err
		}
		if len(items) > 0 {
			return repositories.Conflict("categories.delete", "category %d still has items", categoryID)
		}
		return r.s.categories.Delete(ctx, docID(categoryID))
	})
}

func (r categoryRepository) Get(ctx context.Context, categoryID int64) (domain.Category, error) {
	var doc categoryDocument
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		doc, err = r.s.categories.Get(ctx, docID(categoryID))
		return missing(err, func() *repositories.StoreError {
			return repositories.NotFound("categories.get", "category %d not found", categoryID)
		})
	})
	if err != nil {
		return domain.Category{}, err
	}
	return doc.toDomain(), nil
}

func (r categoryRepository) FindByName(ctx context.Context, name string) (domain.Category, error) {
	var found []categoryDocument
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		found, err = r.byName(ctx, name)
		return err
	})
	if err != nil {
		return domain.Category{}, err
	}
	if len(found) == 0 {
		return domain.Category{}, repositories.NotFound("categories.find_by_name", "category %q not found", name)
	}
	return found[0].toDomain(), nil
}

func (r categoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		docs, err := r.s.categories.Query(ctx, nil)
		if err != nil {
			return err
		}
		out = make([]domain.Category, 0, len(docs))
		for _, doc := range docs {
			out = append(out, doc.Data.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b domain.Category) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r categoryRepository) byName(ctx context.Context, name string) ([]categoryDocument, error) {
	docs, err := r.s.categories.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("nameKey", "==", textutil.FoldKey(name))
	})
	if err != nil {
		return nil, err
	}
	out := make([]categoryDocument, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data)
	}
	slices.SortFunc(out, func(a, b categoryDocument) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r categoryRepository) nameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	found, err := r.byName(ctx, name)
	if err != nil {
		return false, err
	}
	for _, doc := range found {
		if doc.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}
