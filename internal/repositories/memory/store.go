// Package memory implements the repositories against in-process maps. It backs local development
// and the service tests; transactional rollback is provided by an undo journal bound to the
// unit-of-work context.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/repositories"
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

// Store is an in-memory repositories.Registry.
type Store struct {
	now func() time.Time

	catalogMu  sync.RWMutex
	categories map[int64]domain.Category
	items      map[int64]*itemRecord

	ordersMu sync.RWMutex
	orders   map[int64]*orderRecord

	cartsMu sync.Mutex
	carts   map[int64]map[int64]domain.CartItem

	accountsMu sync.RWMutex
	accounts   map[accountKey]domain.Account

	categorySeq atomic.Int64
	itemSeq     atomic.Int64
	orderSeq    atomic.Int64
	lineSeq     atomic.Int64
	accountSeq  atomic.Int64
}

var _ repositories.Registry = (*Store)(nil)

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:        func() time.Time { return time.Now().UTC() },
		categories: make(map[int64]domain.Category),
		items:      make(map[int64]*itemRecord),
		orders:     make(map[int64]*orderRecord),
		carts:      make(map[int64]map[int64]domain.CartItem),
		accounts:   make(map[accountKey]domain.Account),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Close releases nothing; present for Registry compatibility.
func (s *Store) Close(context.Context) error { return nil }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Accounts() repositories.AccountRepository     { return accountRepository{s} }
func (s *Store) Categories() repositories.CategoryRepository { return categoryRepository{s} }
func (s *Store) Items() repositories.ItemRepository           { return itemRepository{s} }
func (s *Store) Inventory() repositories.InventoryRepository { return inventoryRepository{s} }
func (s *Store) Carts() repositories.CartRepository           { return cartRepository{s} }
func (s *Store) Orders() repositories.OrderRepository         { return orderRepository{s} }

type txKey struct{}

type journal struct {
	mu      sync.Mutex
	undos   []func()
	commits []func()
}

func (j *journal) add(undo func()) {
	j.mu.Lock()
	j.undos = append(j.undos, undo)
	j.mu.Unlock()
}

func (j *journal) hold(apply func()) {
	j.mu.Lock()
	j.commits = append(j.commits, apply)
	j.mu.Unlock()
}

func (j *journal) rollback() {
	j.mu.Lock()
	undos := j.undos
	j.undos, j.commits = nil, nil
	j.mu.Unlock()
	for i := len(undos) - 1; i >= 0; i-- {
		undos[i]()
	}
}

func (j *journal) commit() {
	j.mu.Lock()
	commits := j.commits
	j.undos, j.commits = nil, nil
	j.mu.Unlock()
	for _, apply := range commits {
		apply()
	}
}

// RunInTx runs fn with a journal bound to ctx. When fn fails, or ctx is done by the time fn
// returns, every journaled mutation is undone in reverse order. Stock increments are held back
// until fn succeeds, so no other unit of work can consume units that might still be rolled back.
// Nested calls join the outer scope.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	j := &journal{}
	err := fn(context.WithValue(ctx, txKey{}, j))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		j.rollback()
		return err
	}
	j.commit()
	return nil
}

// onRollback registers undo when ctx carries a unit of work.
func onRollback(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(txKey{}).(*journal); ok {
		j.add(undo)
	}
}

// onCommit runs apply when the unit of work on ctx commits, or immediately outside one.
func onCommit(ctx context.Context, apply func()) {
	if j, ok := ctx.Value(txKey{}).(*journal); ok {
		j.hold(apply)
		return
	}
	apply()
}
