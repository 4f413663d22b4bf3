package repositories

import (
	"context"

	domain "github.com/webshop/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Accounts() AccountRepository
	Categories() CategoryRepository
	Items() ItemRepository
	Inventory() InventoryRepository
	Carts() CartRepository
	Orders() OrderRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. Every mutation made through
// the registry's repositories with the callback's context is rolled back when fn returns an error.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// InventoryRepository adjusts on-hand item quantities atomically per item.
// Both operations skip items that do not exist without reporting an error.
type InventoryRepository interface {
	// Reserve decrements the quantity when at least qty units are available and fails with
	// InventoryErrorInsufficientStock otherwise.
	Reserve(ctx context.Context, itemID int64, qty int64) error
	// Release increments the quantity unconditionally.
	Release(ctx context.Context, itemID int64, qty int64) error
}

// OrderRepository persists orders with their line items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	Get(ctx context.Context, orderID int64) (domain.Order, error)
	// GetForUser reports not found for orders owned by another user.
	GetForUser(ctx context.Context, orderID int64, userID int64) (domain.Order, error)
	// ListForUser returns newest first and reports not found when the user has no orders.
	ListForUser(ctx context.Context, userID int64) ([]domain.Order, error)
	// ListAll returns newest first and reports not found when no orders exist.
	ListAll(ctx context.Context) ([]domain.Order, error)
	// Save persists the order when its Version matches the stored one and bumps the version.
	Save(ctx context.Context, order domain.Order) (domain.Order, error)
	Delete(ctx context.Context, orderID int64) error
}

// CategoryRepository persists catalog categories.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) (domain.Category, error)
	Update(ctx context.Context, category domain.Category) (domain.Category, error)
	Delete(ctx context.Context, categoryID int64) error
	Get(ctx context.Context, categoryID int64) (domain.Category, error)
	// FindByName matches case-insensitively.
	FindByName(ctx context.Context, name string) (domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}

// ItemRepository persists catalog items.
type ItemRepository interface {
	Insert(ctx context.Context, item domain.Item) (domain.Item, error)
	Update(ctx context.Context, item domain.Item) (domain.Item, error)
	Delete(ctx context.Context, itemID int64) error
	Get(ctx context.Context, itemID int64) (domain.Item, error)
	// FindByName matches case-insensitively.
	FindByName(ctx context.Context, name string) (domain.Item, error)
	List(ctx context.Context, filter domain.ItemFilter) ([]domain.Item, error)
}

// CartRepository persists per-user cart lines keyed by item.
type CartRepository interface {
	List(ctx context.Context, userID int64) ([]domain.CartItem, error)
	Get(ctx context.Context, userID int64, itemID int64) (domain.CartItem, error)
	Upsert(ctx context.Context, line domain.CartItem) (domain.CartItem, error)
	Remove(ctx context.Context, userID int64, itemID int64) error
	Clear(ctx context.Context, userID int64) error
}

// AccountRepository persists credentials for users, workers and admins.
type AccountRepository interface {
	Insert(ctx context.Context, account domain.Account) (domain.Account, error)
	Get(ctx context.Context, role domain.Role, accountID int64) (domain.Account, error)
	// FindByLogin matches the login exactly within the role.
	FindByLogin(ctx context.Context, role domain.Role, login string) (domain.Account, error)
	UpdatePassword(ctx context.Context, role domain.Role, accountID int64, passwordHash string) error
}

// CounterRepository allocates monotonic integer identifiers by sequence name.
type CounterRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}
