package services

import (
	"context"
	"time"

	domain "github.com/webshop/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	SortOrder          = domain.SortOrder
	Role               = domain.Role
	Account            = domain.Account
	Category           = domain.Category
	Item               = domain.Item
	ItemSort           = domain.ItemSort
	CartItem           = domain.CartItem
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	SystemHealthReport = domain.SystemHealthReport
)

// Actor is the authenticated caller on whose behalf a command runs.
type Actor struct {
	ID   int64
	Role domain.Role
}

// OrderService drives the order lifecycle and its stock side effects.
type OrderService interface {
	// CancelByUser withdraws a pending order owned by the actor and returns its lines to stock.
	CancelByUser(ctx context.Context, orderID int64, actor Actor) (Order, error)
	// UpdateStatus moves an order to the named status, reserving stock on the
	// PaymentSuccess to Delivering edge.
	UpdateStatus(ctx context.Context, orderID int64, statusName string, actor Actor) (Order, error)
	// CompleteOrder deletes the order, releasing stock unless it was cancelled.
	CompleteOrder(ctx context.Context, orderID int64, actor Actor) error
	History(ctx context.Context, actor Actor) ([]OrderSummary, error)
	Detail(ctx context.Context, orderID int64, actor Actor) (Order, error)
	ListAll(ctx context.Context, actor Actor) ([]OrderSummary, error)
	Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error)
}

// CatalogService manages categories and items.
type CatalogService interface {
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, actor Actor, name string) (Category, error)
	RenameCategory(ctx context.Context, actor Actor, categoryID int64, name string) (Category, error)
	DeleteCategory(ctx context.Context, actor Actor, categoryID int64) error

	GetItem(ctx context.Context, itemID int64) (Item, error)
	GetItemByName(ctx context.Context, name string) (Item, error)
	SearchItems(ctx context.Context, search ItemSearch) ([]Item, error)
	StockReport(ctx context.Context, actor Actor, category string, order SortOrder) ([]Item, error)
	OutOfStock(ctx context.Context, actor Actor) ([]Item, error)
	CreateItem(ctx context.Context, actor Actor, input ItemInput) (Item, error)
	UpdateItem(ctx context.Context, actor Actor, itemID int64, input ItemInput) (Item, error)
	DeleteItem(ctx context.Context, actor Actor, itemID int64) error
}

// CartService manages a user's cart lines.
type CartService interface {
	GetCart(ctx context.Context, userID int64) ([]CartItem, error)
	Total(ctx context.Context, userID int64) (int64, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (CartItem, error)
	ModifyItem(ctx context.Context, cmd CartItemCommand) error
}

// AccountService registers accounts and issues session tokens.
type AccountService interface {
	Register(ctx context.Context, cmd RegisterCommand) (Account, error)
	Login(ctx context.Context, role Role, login, password string) (Session, error)
	ChangePassword(ctx context.Context, actor Actor, newPassword string) error
}

// SystemService exposes operational metadata such as health reports.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderSummary is the list projection of an order.
type OrderSummary struct {
	OrderID       int64
	UserID        int64
	CreatedAt     time.Time
	Status        OrderStatus
	TotalPrice    int64
	TargetAddress string
}

// CheckoutCommand turns the actor's cart into a pending order.
type CheckoutCommand struct {
	Actor         Actor
	TargetAddress string
	TargetPhone   string
}

// ItemSearch narrows public item listings. CategoryName matches case-insensitively.
type ItemSearch struct {
	NameFragment string
	CategoryName string
	MinPrice     *int64
	MaxPrice     *int64
	SortBy       ItemSort
	SortOrder    SortOrder
}

// ItemInput carries the editable fields of an item.
type ItemInput struct {
	Name         string
	CategoryName string
	Description  string
	Quantity     int64
	Price        int64
}

// CartItemCommand adds or modifies a cart line. Price is only honoured by ModifyItem.
type CartItemCommand struct {
	UserID   int64
	ItemID   int64
	Quantity int64
	Price    int64
}

// RegisterCommand creates an account. Only admins may register staff accounts.
type RegisterCommand struct {
	Actor    *Actor
	Role     Role
	Login    string
	Password string
	Address  string
	Phone    string
}

// Session is a signed token issued after a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Account   Account
}
