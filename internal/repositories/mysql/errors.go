package mysql

import (
	"context"
	"database/sql/driver"
	"errors"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/webshop/api/internal/repositories"
)

const mysqlDuplicateEntry = 1062

func errorsIsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// notFound replaces a translated not-found error with a descriptive one.
func notFound(err error, format string, args ...any) error {
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) && storeErr.IsNotFound() {
		return repositories.NotFound(storeErr.Op, format, args...)
	}
	return err
}

// conflict replaces a unique-key violation with a descriptive one.
func conflict(err error, format string, args ...any) error {
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) && storeErr.IsConflict() {
		return repositories.Conflict(storeErr.Op, format, args...)
	}
	return err
}

// translate maps driver and GORM failures onto repository error kinds.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &repositories.StoreError{Op: op, Kind: repositories.StoreErrorNotFound, Err: err}
	}
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return &repositories.StoreError{Op: op, Kind: repositories.StoreErrorConflict, Err: err}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysqldriver.ErrInvalidConn) {
		return repositories.Unavailable(op, err)
	}
	return &repositories.StoreError{Op: op, Kind: repositories.StoreErrorUnknown, Err: err}
}
