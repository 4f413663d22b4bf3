package mysql

import (
	"time"

	domain "github.com/webshop/api/internal/domain"
)

type accountModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Role         string `gorm:"type:varchar(16);not null;uniqueIndex:idx_accounts_role_login,priority:1"`
	Login        string `gorm:"type:varchar(191) COLLATE utf8mb4_bin;not null;uniqueIndex:idx_accounts_role_login,priority:2"`
	PasswordHash string `gorm:"type:varchar(255);not null"`
	Address      string `gorm:"type:varchar(512)"`
	Phone        string `gorm:"type:varchar(64)"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (accountModel) TableName() string { return "accounts" }

func (m accountModel) toDomain() domain.Account {
	return domain.Account{
		ID:           m.ID,
		Role:         domain.Role(m.Role),
		Login:        m.Login,
		PasswordHash: m.PasswordHash,
		Address:      m.Address,
		Phone:        m.Phone,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type categoryModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(191);not null"`
	NameKey   string `gorm:"type:varchar(191);not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (categoryModel) TableName() string { return "categories" }

func (m categoryModel) toDomain() domain.Category {
	return domain.Category{
		ID:        m.ID,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

type itemModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	CategoryID  int64  `gorm:"not null;index"`
	Name        string `gorm:"type:varchar(191);not null"`
	NameKey     string `gorm:"type:varchar(191);not null;uniqueIndex"`
	Description string `gorm:"type:text;not null"`
	Price       int64  `gorm:"not null"`
	Quantity    int64  `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (itemModel) TableName() string { return "items" }

func (m itemModel) toDomain() domain.Item {
	return domain.Item{
		ID:          m.ID,
		CategoryID:  m.CategoryID,
		Name:        m.Name,
		Description: m.Description,
		Price:       m.Price,
		Quantity:    m.Quantity,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

type cartItemModel struct {
	UserID    int64 `gorm:"primaryKey;autoIncrement:false"`
	ItemID    int64 `gorm:"primaryKey;autoIncrement:false"`
	Quantity  int64 `gorm:"not null"`
	Price     int64 `gorm:"not null"`
	UpdatedAt time.Time
}

func (cartItemModel) TableName() string { return "cart_items" }

// cartItemRow is a cart line joined with its item's current name.
type cartItemRow struct {
	cartItemModel
	ItemName string
}

func (r cartItemRow) toDomain() domain.CartItem {
	return domain.CartItem{
		UserID:    r.UserID,
		ItemID:    r.ItemID,
		ItemName:  r.ItemName,
		Quantity:  r.Quantity,
		Price:     r.Price,
		UpdatedAt: r.UpdatedAt,
	}
}

type orderModel struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	UserID        int64  `gorm:"not null;index"`
	TargetAddress string `gorm:"type:varchar(512);not null"`
	TargetPhone   string `gorm:"type:varchar(64);not null"`
	Status        string `gorm:"type:varchar(32);not null"`
	TotalPrice    int64  `gorm:"not null"`
	Version       int64  `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Items []orderItemModel `gorm:"foreignKey:OrderID"`
}

func (orderModel) TableName() string { return "orders" }

func newOrderModel(order domain.Order) orderModel {
	items := make([]orderItemModel, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemModel{
			ID:       item.ID,
			OrderID:  order.ID,
			ItemID:   item.ItemID,
			ItemName: item.ItemName,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return orderModel{
		ID:            order.ID,
		UserID:        order.UserID,
		TargetAddress: order.TargetAddress,
		TargetPhone:   order.TargetPhone,
		Status:        string(order.Status),
		TotalPrice:    order.TotalPrice,
		Version:       order.Version,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		Items:         items,
	}
}

func (m orderModel) toDomain() domain.Order {
	items := make([]domain.OrderItem, 0, len(m.Items))
	for _, item := range m.Items {
		items = append(items, domain.OrderItem{
			ID:       item.ID,
			OrderID:  m.ID,
			ItemID:   item.ItemID,
			ItemName: item.ItemName,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return domain.Order{
		ID:            m.ID,
		UserID:        m.UserID,
		TargetAddress: m.TargetAddress,
		TargetPhone:   m.TargetPhone,
		Status:        domain.OrderStatus(m.Status),
		TotalPrice:    m.TotalPrice,
		Items:         items,
		Version:       m.Version,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

type orderItemModel struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	OrderID  int64  `gorm:"not null;index"`
	ItemID   int64  `gorm:"not null"`
	ItemName string `gorm:"type:varchar(191);not null"`
	Quantity int64  `gorm:"not null"`
	Price    int64  `gorm:"not null"`
}

func (orderItemModel) TableName() string { return "order_items" }
