package repositories

import (
	"errors"
	"fmt"
)

// InventoryErrorCode enumerates repository error causes for inventory operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates requested quantity exceeds availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorInvalidQuantity indicates a non-positive adjustment.
	InventoryErrorInvalidQuantity InventoryErrorCode = "inventory_invalid_quantity"
)

// InventoryError wraps inventory-specific failures with machine readable codes.
type InventoryError struct {
	Op      string
	Code    InventoryErrorCode
	ItemID  int64
	Message string
	Err     error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, itemID int64, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		ItemID:  itemID,
		Message: message,
		Err:     err,
	}
}

// InsufficientStock builds the error returned when a reservation cannot be satisfied.
func InsufficientStock(op string, itemID int64, requested int64, available int64) *InventoryError {
	err := NewInventoryError(InventoryErrorInsufficientStock, itemID,
		fmt.Sprintf("item %d has %d units, %d requested", itemID, available, requested), nil)
	err.Op = op
	return err
}

// InvalidQuantity builds the error returned for non-positive adjustments.
func InvalidQuantity(op string, itemID int64, qty int64) *InventoryError {
	err := NewInventoryError(InventoryErrorInvalidQuantity, itemID,
		fmt.Sprintf("quantity must be positive, got %d", qty), nil)
	err.Op = op
	return err
}

// IsInventoryCode reports whether err carries an InventoryError with the given code.
func IsInventoryCode(err error, code InventoryErrorCode) bool {
	var invErr *InventoryError
	if errors.As(err, &invErr) {
		return invErr.Code == code
	}
	return false
}
