package firestore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/webshop/api/internal/domain"
	pfirestore "github.com/webshop/api/internal/platform/firestore"
	"github.com/webshop/api/internal/platform/textutil"
	"github.com/webshop/api/internal/repositories"
)

type itemDocument struct {
	ID          int64     `firestore:"id"`
	CategoryID  int64     `firestore:"categoryId"`
	Name        string    `firestore:"name"`
	NameKey     string    `firestore:"nameKey"`
	Description string    `firestore:"description"`
	Price       int64     `firestore:"price"`
	Quantity    int64     `firestore:"quantity"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newItemDocument(item domain.Item) itemDocument {
	return itemDocument{
		ID:          item.ID,
		CategoryID:  item.CategoryID,
		Name:        item.Name,
		NameKey:     textutil.FoldKey(item.Name),
		Description: item.Description,
		Price:       item.Price,
		Quantity:    item.Quantity,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func (d itemDocument) toDomain() domain.Item {
	return domain.Item{
		ID:          d.ID,
		CategoryID:  d.CategoryID,
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		Quantity:    d.Quantity,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type itemRepository struct{ s *Store }

func (r itemRepository) Insert(ctx context.Context, item domain.Item) (domain.Item, error) {
	var out domain.Item
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		taken, err := r.nameTaken(ctx, item.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return repositories.Conflict("items.insert", "item %q already exists", item.Name)
		}
		id, err := r.s.nextID(ctx, itemsCollection)
		if err != nil {
			return err
		}
		now := r.s.now()
		item.ID = id
		item.CreatedAt = now
		item.UpdatedAt = now
		if err := r.s.items.Set(ctx, docID(id), newItemDocument(item)); err != nil {
			return err
		}
		out, err = r.s.withCategory(ctx, newItemDocument(item).toDomain())
		return err
	})
	if err != nil {
		return domain.Item{}, err
	}
	return out, nil
}

func (r itemRepository) Update(ctx context.Context, item domain.Item) (domain.Item, error) {
	var out domain.Item
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		prev, err := r.s.items.Get(ctx, docID(item.ID))
		if err != nil {
			return missing(err, func() *repositories.StoreError {
				return repositories.NotFound("items.update", "item %d not found", item.ID)
			})
		}
		taken, err := r.nameTaken(ctx, item.Name, item.ID)
		if err != nil {
			return err
		}
		if taken {
			return repositories.Conflict("items.update", "item %q already exists", item.Name)
		}
		item.CreatedAt = prev.CreatedAt
		item.UpdatedAt = r.s.now()
		doc := newItemDocument(item)
		if err := r.s.items.Set(ctx, docID(item.ID), doc); err != nil {
			return err
		}
		out, err = r.s.withCategory(ctx, doc.toDomain())
		return err
	})
	if err != nil {
		return domain.Item{}, err
	}
	return out, nil
}

func (r itemRepository) Delete(ctx context.Context, itemID int64) error {
	return r.s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.s.items.Get(ctx, docID(itemID)); err != nil {
			return missing(err, func() *repositories.StoreError {
				return repositories.NotFound("items.delete", "item %d not found", itemID)
			})
		}
		return r.s.items.Delete(ctx, docID(itemID))
	})
}

func (r itemRepository) Get(ctx context.Context, itemID int64) (domain.Item, error) {
	var out domain.Item
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := r.s.items.Get(ctx, docID(itemID))
		if err != nil {
			return missing(err, func() *repositories.StoreError {
				return repositories.NotFound("items.get", "item %d not found", itemID)
			})
		}
		out, err = r.s.withCategory(ctx, doc.toDomain())
		return err
	})
	if err != nil {
		return domain.Item{}, err
	}
	return out, nil
}

func (r itemRepository) FindByName(ctx context.Context, name string) (domain.Item, error) {
	var out domain.Item
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		found, err := r.byName(ctx, name)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return repositories.NotFound("items.find_by_name", "item %q not found", name)
		}
		out, err = r.s.withCategory(ctx, found[0].toDomain())
		return err
	})
	if err != nil {
		return domain.Item{}, err
	}
	return out, nil
}

func (r itemRepository) List(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error) {
	var out []domain.Item
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		var build pfirestore.QueryBuilder
		if filter.CategoryID != nil {
			categoryID := *filter.CategoryID
			build = func(q firestore.Query) firestore.Query {
				return q.Where("categoryId", "==", categoryID)
			}
		}
		docs, err := r.s.items.Query(ctx, build)
		if err != nil {
			return err
		}
		names, err := r.s.categoryNames(ctx)
		if err != nil {
			return err
		}
		out = make([]domain.Item, 0, len(docs))
		for _, doc := range docs {
			item := doc.Data.toDomain()
			if !repositories.MatchItem(item, filter) {
				continue
			}
			item.CategoryName = names[item.CategoryID]
			out = append(out, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	repositories.SortItems(out, filter.SortBy, filter.SortOrder)
	return out, nil
}

func (r itemRepository) byName(ctx context.Context, name string) ([]itemDocument, error) {
	docs, err := r.s.items.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("nameKey", "==", textutil.FoldKey(name))
	})
	if err != nil {
		return nil, err
	}
	out := make([]itemDocument, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data)
	}
	slices.SortFunc(out, func(a, b itemDocument) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r itemRepository) nameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
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

type inventoryRepository struct{ s *Store }

func (r inventoryRepository) Reserve(ctx context.Context, itemID int64, qty int64) error {
	if qty <= 0 {
		return repositories.InvalidQuantity("inventory.reserve", itemID, qty)
	}
	return r.s.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := r.s.items.Get(ctx, docID(itemID))
		if pfirestore.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if doc.Quantity < qty {
			return repositories.InsufficientStock("inventory.reserve", itemID, qty, doc.Quantity)
		}
		doc.Quantity -= qty
		doc.UpdatedAt = r.s.now()
		return r.s.items.Set(ctx, docID(itemID), doc)
	})
}

func (r inventoryRepository) Release(ctx context.Context, itemID int64, qty int64) error {
	if qty <= 0 {
		return repositories.InvalidQuantity("inventory.release", itemID, qty)
	}
	return r.s.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := r.s.items.Get(ctx, docID(itemID))
		if pfirestore.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		doc.Quantity += qty
		doc.UpdatedAt = r.s.now()
		return r.s.items.Set(ctx, docID(itemID), doc)
	})
}
