package domain

import (
	"time"
)

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Role identifies the kind of account acting on the API.
type Role string

const (
	// RoleUser is a shopper owning carts and orders.
	RoleUser Role = "user"
	// RoleWorker is warehouse staff handling fulfilment and the catalog.
	RoleWorker Role = "worker"
	// RoleAdmin manages staff accounts and may act as staff.
	RoleAdmin Role = "admin"
)

// IsStaff reports whether the role may operate on orders it does not own.
func (r Role) IsStaff() bool {
	return r == RoleWorker || r == RoleAdmin
}

// Account is a credential record for any of the three roles.
type Account struct {
	ID           int64
	Role         Role
	Login        string
	PasswordHash string
	Address      string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Category groups catalog items.
type Category struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a sellable catalog entry together with its on-hand quantity.
type Item struct {
	ID           int64
	CategoryID   int64
	CategoryName string
	Name         string
	Description  string
	Price        int64
	Quantity     int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ItemSort selects the field used to order item listings.
type ItemSort string

const (
	// ItemSortID orders items by identifier.
	ItemSortID ItemSort = "id"
	// ItemSortName orders items alphabetically.
	ItemSortName ItemSort = "name"
	// ItemSortPrice orders items by unit price.
	ItemSortPrice ItemSort = "price"
	// ItemSortQuantity orders items by on-hand quantity.
	ItemSortQuantity ItemSort = "quantity"
)

// ItemFilter narrows item listings.
type ItemFilter struct {
	CategoryID   *int64
	NameFragment string
	Price        RangeQuery[int64]
	OutOfStock   bool
	SortBy       ItemSort
	SortOrder    SortOrder
}

// CartItem is one line of a user's cart.
type CartItem struct {
	UserID    int64
	ItemID    int64
	ItemName  string
	Quantity  int64
	Price     int64
	UpdatedAt time.Time
}

// Order is a placed order together with its frozen line items.
type Order struct {
	ID            int64
	UserID        int64
	TargetAddress string
	TargetPhone   string
	Status        OrderStatus
	TotalPrice    int64
	Items         []OrderItem
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem snapshots an item's name and price at order time.
type OrderItem struct {
	ID       int64
	OrderID  int64
	ItemID   int64
	ItemName string
	Quantity int64
	Price    int64
}

// LineTotal returns quantity × unit price for the line.
func (i OrderItem) LineTotal() int64 {
	return i.Quantity * i.Price
}

// SumLineItems computes the order total from its lines.
func SumLineItems(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}
