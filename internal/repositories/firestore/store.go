// Package firestore implements the repositories on Cloud Firestore. Every repository call runs in
// a transaction scope; calls made inside Store.RunInTx share the caller's scope, so their writes
// commit or roll back together.
package firestore

import (
	"context"
	"errors"
	"strconv"
	"time"

	domain "github.com/webshop/api/internal/domain"
	pfirestore "github.com/webshop/api/internal/platform/firestore"
	"github.com/webshop/api/internal/repositories"
)

const (
	countersCollection   = "counters"
	accountsCollection   = "accounts"
	categoriesCollection = "categories"
	itemsCollection      = "items"
	cartItemsCollection  = "cartItems"
	ordersCollection     = "orders"
)

// Option customises the store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = func() time.Time { return now().UTC() }
		}
	}
}

// WithTxOptions sets the attempts and timeout applied to every transaction.
func WithTxOptions(opts ...pfirestore.TxOption) Option {
	return func(s *Store) {
		s.txOpts = append(s.txOpts, opts...)
	}
}

// Store is a Firestore-backed repositories.Registry.
type Store struct {
	provider *pfirestore.Provider
	now      func() time.Time
	txOpts   []pfirestore.TxOption

	counters   *pfirestore.Collection[counterDocument]
	accounts   *pfirestore.Collection[accountDocument]
	categories *pfirestore.Collection[categoryDocument]
	items      *pfirestore.Collection[itemDocument]
	cartItems  *pfirestore.Collection[cartItemDocument]
	orders     *pfirestore.Collection[orderDocument]
}

var _ repositories.Registry = (*Store)(nil)

// New constructs a store on top of provider.
func New(provider *pfirestore.Provider, opts ...Option) (*Store, error) {
	if provider == nil {
		return nil, errors.New("firestore store requires a provider")
	}
	s := &Store{
		provider:   provider,
		now:        func() time.Time { return time.Now().UTC() },
		counters:   pfirestore.NewCollection[counterDocument](countersCollection, nil, nil),
		accounts:   pfirestore.NewCollection[accountDocument](accountsCollection, nil, nil),
		categories: pfirestore.NewCollection[categoryDocument](categoriesCollection, nil, nil),
		items:      pfirestore.NewCollection[itemDocument](itemsCollection, nil, nil),
		cartItems:  pfirestore.NewCollection[cartItemDocument](cartItemsCollection, nil, nil),
		orders:     pfirestore.NewCollection[orderDocument](ordersCollection, nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Close releases the provider's client.
func (s *Store) Close(ctx context.Context) error { return s.provider.Close(ctx) }

// Ping checks Firestore reachability.
func (s *Store) Ping(ctx context.Context) error { return s.provider.Ping(ctx) }

func (s *Store) Accounts() repositories.AccountRepository     { return accountRepository{s} }
func (s *Store) Categories() repositories.CategoryRepository { return categoryRepository{s} }
func (s *Store) Items() repositories.ItemRepository           { return itemRepository{s} }
func (s *Store) Inventory() repositories.InventoryRepository { return inventoryRepository{s} }
func (s *Store) Carts() repositories.CartRepository           { return cartRepository{s} }
func (s *Store) Orders() repositories.OrderRepository         { return orderRepository{s} }

// Counters exposes the sequence allocator backing integer identifiers.
func (s *Store) Counters() repositories.CounterRepository { return counterRepository{s} }

// RunInTx runs fn in a Firestore transaction. Firestore may invoke fn more than once when the
// transaction contends with another writer.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.provider.RunInScope(ctx, fn, s.txOpts...)
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// missing converts a Firestore not-found into the store error built by notFound.
func missing(err error, notFound func() *repositories.StoreError) error {
	if pfirestore.IsNotFound(err) {
		return notFound()
	}
	return err
}

func (s *Store) nextID(ctx context.Context, sequence string) (int64, error) {
	return counterRepository{s}.Next(ctx, sequence)
}

func (s *Store) categoryNames(ctx context.Context) (map[int64]string, error) {
	docs, err := s.categories.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(docs))
	for _, doc := range docs {
		names[doc.Data.ID] = doc.Data.Name
	}
	return names, nil
}

func (s *Store) withCategory(ctx context.Context, item domain.Item) (domain.Item, error) {
	category, err := s.categories.Get(ctx, docID(item.CategoryID))
	switch {
	case err == nil:
		item.CategoryName = category.Name
	case !pfirestore.IsNotFound(err):
		return domain.Item{}, err
	}
	return item, nil
}
