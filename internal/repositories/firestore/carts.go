package firestore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/webshop/api/internal/domain"
	pfirestore "github.com/webshop/api/internal/platform/firestore"
	"github.com/webshop/api/internal/repositories"
)

type cartItemDocument struct {
	UserID    int64     `firestore:"userId"`
	ItemID    int64     `firestore:"itemId"`
	Quantity  int64     `firestore:"quantity"`
	Price     int64     `firestore:"price"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d cartItemDocument) toDomain() domain.CartItem {
	return domain.CartItem{
		UserID:    d.UserID,
		ItemID:    d.ItemID,
		Quantity:  d.Quantity,
		Price:     d.Price,
		UpdatedAt: d.UpdatedAt,
	}
}

func cartLineID(userID, itemID int64) string {
	return fmt.Sprintf("%d_%d", userID, itemID)
}

type cartRepository struct{ s *Store }

func (r cartRepository) List(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	var lines []domain.CartItem
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		docs, err := r.lines(ctx, userID)
		if err != nil {
			return err
		}
		lines = make([]domain.CartItem, 0, len(docs))
		for _, doc := range docs {
			line, err := r.withItemName(ctx, doc.Data.toDomain())
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(lines, func(a, b domain.CartItem) int { return cmp.Compare(a.ItemID, b.ItemID) })
	return lines, nil
}

func (r cartRepository) Get(ctx context.Context, userID int64, itemID int64) (domain.CartItem, error) {
	var line domain.CartItem
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := r.s.cartItems.Get(ctx, cartLineID(userID, itemID))
		if err != nil {
			return missing(err, func() *repositories.StoreError {
				return repositories.NotFound("carts.get", "item %d is not in the cart of user %d", itemID, userID)
			})
		}
		line, err = r.withItemName(ctx, doc.toDomain())
		return err
	})
	if err != nil {
		return domain.CartItem{}, err
	}
	return line, nil
}

func (r cartRepository) Upsert(ctx context.Context, line domain.CartItem) (domain.CartItem, error) {
	var out domain.CartItem
	err := r.s.RunInTx(ctx, func(ctx context.Context) error {
		doc := cartItemDocument{
			UserID:    line.UserID,
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			Price:     line.Price,
			UpdatedAt: r.s.now(),
		}
		if err := r.s.cartItems.Set(ctx, cartLineID(line.UserID, line.ItemID), doc); err != nil {
			return err
		}
		var err error
		out, err = r.withItemName(ctx, doc.toDomain())
		return err
	})
	if err != nil {
		return domain.CartItem{}, err
	}
	return out, nil
}

func (r cartRepository) Remove(ctx context.Context, userID int64, itemID int64) error {
	return r.s.RunInTx(ctx, func(ctx context.Context) error {
		id := cartLineID(userID, itemID)
		if _, err := r.s.cartItems.Get(ctx, id); err != nil {
			return missing(err, func() *repositories.StoreError {
				return repositories.NotFound("carts.remove", "item %d is not in the cart of user %d", itemID, userID)
			})
		}
		return r.s.cartItems.Delete(ctx, id)
	})
}

func (r cartRepository) Clear(ctx context.Context, userID int64) error {
	return r.s.RunInTx(ctx, func(ctx context.Context) error {
		docs, err := r.lines(ctx, userID)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := r.s.cartItems.Delete(ctx, doc.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r cartRepository) lines(ctx context.Context, userID int64) ([]pfirestore.Document[cartItemDocument], error) {
	return r.s.cartItems.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID)
	})
}

func (r cartRepository) withItemName(ctx context.Context, line domain.CartItem) (domain.CartItem, error) {
	item, err := r.s.items.Get(ctx, docID(line.ItemID))
	switch {
	case err == nil:
		line.ItemName = item.Name
	case !pfirestore.IsNotFound(err):
		return domain.CartItem{}, err
	}
	return line, nil
}
