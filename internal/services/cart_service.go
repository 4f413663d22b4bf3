package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/webshop/api/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the request payload was invalid.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartNotFound indicates the cart, line or item does not exist.
	ErrCartNotFound = errors.New("cart: not found")
	// ErrCartConflict indicates the requested quantity exceeds the stock on hand.
	ErrCartConflict = errors.New("cart: conflict")
	// ErrCartUnavailable indicates the store could not serve the request.
	ErrCartUnavailable = errors.New("cart: unavailable")
)

// CartServiceDeps groups the dependencies needed by the cart service.
type CartServiceDeps struct {
	Carts      repositories.CartRepository
	Items      repositories.ItemRepository
	UnitOfWork repositories.UnitOfWork
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts      repositories.CartRepository
	items      repositories.ItemRepository
	unitOfWork repositories.UnitOfWork
	logger     func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService backed by the cart and item repositories.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Items == nil {
		return nil, errors.New("cart service: item repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:      deps.Carts,
		items:      deps.Items,
		unitOfWork: unit,
		logger:     logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, userID int64) ([]CartItem, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", ErrCartInvalidInput)
	}
	lines, err := s.carts.List(ctx, userID)
	if err != nil {
		return nil, mapCartError(err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrCartNotFound)
	}
	return lines, nil
}

func (s *cartService) Total(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("%w: user id must be positive", ErrCartInvalidInput)
	}
	lines, err := s.carts.List(ctx, userID)
	if err != nil {
		return 0, mapCartError(err)
	}
	var total int64
	for _, line := range lines {
		total += line.Quantity * line.Price
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: cart is empty", ErrCartNotFound)
	}
	return total, nil
}

func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (CartItem, error) {
	if err := validateCartIDs(cmd); err != nil {
		return CartItem{}, err
	}
	if cmd.Quantity <= 0 {
		return CartItem{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	var saved CartItem
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		item, err := s.items.Get(txCtx, cmd.ItemID)
		if err != nil {
			return mapCartError(err)
		}

		quantity := cmd.Quantity
		existing, err := s.carts.Get(txCtx, cmd.UserID, cmd.ItemID)
		switch {
		case err == nil:
			quantity += existing.Quantity
		case !isRepositoryNotFound(err):
			return mapCartError(err)
		}
		if quantity > item.Quantity {
			return fmt.Errorf("%w: only %d units of item %d in stock", ErrCartConflict, item.Quantity, item.ID)
		}

		line, err := s.carts.Upsert(txCtx, CartItem{
			UserID:   cmd.UserID,
			ItemID:   item.ID,
			Quantity: quantity,
			Price:    item.Price,
		})
		if err != nil {
			return mapCartError(err)
		}
		line.ItemName = item.Name
		saved = line
		return nil
	})
	if err != nil {
		return CartItem{}, err
	}
	s.logger(ctx, "cart.item.added", map[string]any{
		"userId":   saved.UserID,
		"itemId":   saved.ItemID,
		"quantity": saved.Quantity,
	})
	return saved, nil
}

func (s *cartService) ModifyItem(ctx context.Context, cmd CartItemCommand) error {
	if err := validateCartIDs(cmd); err != nil {
		return err
	}
	if cmd.Quantity < 0 {
		return fmt.Errorf("%w: quantity cannot be negative", ErrCartInvalidInput)
	}

	return s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		line, err := s.carts.Get(txCtx, cmd.UserID, cmd.ItemID)
		if err != nil {
			return mapCartError(err)
		}
		if cmd.Quantity == 0 {
			return mapCartError(s.carts.Remove(txCtx, cmd.UserID, cmd.ItemID))
		}

		item, err := s.items.Get(txCtx, cmd.ItemID)
		if err != nil {
			return mapCartError(err)
		}
		if cmd.Quantity > item.Quantity {
			return fmt.Errorf("%w: only %d units of item %d in stock", ErrCartConflict, item.Quantity, item.ID)
		}
		line.Quantity = cmd.Quantity
		line.Price = item.Price
		if cmd.Price > 0 {
			line.Price = cmd.Price
		}
		_, err = s.carts.Upsert(txCtx, line)
		return mapCartError(err)
	})
}

func validateCartIDs(cmd CartItemCommand) error {
	if cmd.UserID <= 0 {
		return fmt.Errorf("%w: user id must be positive", ErrCartInvalidInput)
	}
	if cmd.ItemID <= 0 {
		return fmt.Errorf("%w: item id must be positive", ErrCartInvalidInput)
	}
	return nil
}

func mapCartError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCartConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}
	return err
}
