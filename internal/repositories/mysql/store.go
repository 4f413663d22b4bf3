// Package mysql implements the repositories on MySQL through GORM. Units of work map to database
// transactions carried in the context; stock adjustments and order saves are conditional updates.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/webshop/api/internal/platform/config"
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

// WithLogWriter routes slow queries and driver errors to w. Queries are not logged otherwise.
func WithLogWriter(w logger.Writer) Option {
	return func(s *Store) {
		s.logWriter = w
	}
}

const slowQueryThreshold = 200 * time.Millisecond

// Store is a MySQL-backed repositories.Registry.
type Store struct {
	db        *gorm.DB
	now       func() time.Time
	logWriter logger.Writer
}

var _ repositories.Registry = (*Store)(nil)

// Open connects using cfg.DSN and applies the connection pool limits.
func Open(cfg config.MySQLConfig, opts ...Option) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("mysql store: dsn is required")
	}
	s := newStore(opts)

	gormLogger := logger.Default.LogMode(logger.Silent)
	if s.logWriter != nil {
		gormLogger = logger.New(s.logWriter, logger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}
	db, err := gorm.Open(gormmysql.Open(cfg.DSN), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("mysql store: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("mysql store: pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	s.db = db
	return s, nil
}

// New wraps an existing GORM handle.
func New(db *gorm.DB, opts ...Option) *Store {
	s := newStore(opts)
	s.db = db
	return s
}

func newStore(opts []Option) *Store {
	s := &Store{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&accountModel{},
		&categoryModel{},
		&itemModel{},
		&cartItemModel{},
		&orderModel{},
		&orderItemModel{},
	)
	return translate("migrate", err)
}

// Close closes the connection pool.
func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return translate("ping", sqlDB.PingContext(ctx))
}

func (s *Store) Accounts() repositories.AccountRepository     { return accountRepository{s} }
func (s *Store) Categories() repositories.CategoryRepository { return categoryRepository{s} }
func (s *Store) Items() repositories.ItemRepository           { return itemRepository{s} }
func (s *Store) Inventory() repositories.InventoryRepository { return inventoryRepository{s} }
func (s *Store) Carts() repositories.CartRepository           { return cartRepository{s} }
func (s *Store) Orders() repositories.OrderRepository         { return orderRepository{s} }

type txKey struct{}

// RunInTx runs fn in a database transaction bound to ctx. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction bound to ctx, or the pool.
func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok
}
