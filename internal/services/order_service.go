package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	domain "github.com/webshop/api/internal/domain"
	"github.com/webshop/api/internal/platform/locking"
	"github.com/webshop/api/internal/platform/observability"
	"github.com/webshop/api/internal/platform/textutil"
	"github.com/webshop/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventCancelled     = "order.cancelled"
	orderEventStatusChanged = "order.status_changed"
	orderEventCompleted     = "order.completed"

	orderOperationCancel       = "cancel"
	orderOperationUpdateStatus = "update_status"
	orderOperationComplete     = "complete"
	orderOperationCheckout     = "checkout"

	stockMutationReserve = "reserve"
	stockMutationRelease = "release"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the order status does not allow the operation.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderStockExhausted indicates a line could not be reserved from stock.
	ErrOrderStockExhausted = errors.New("order: insufficient stock")
	// ErrOrderConflict indicates optimistic concurrency conflicts.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the actor's role may not run the operation.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderUnavailable indicates the store or lock backend could not serve the request.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	ID             string
	Type           string
	OrderID        int64
	UserID         int64
	PreviousStatus string
	CurrentStatus  string
	ActorID        int64
	ActorRole      string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderMetrics records lifecycle outcomes. *observability.Metrics satisfies it.
type OrderMetrics interface {
	RecordTransition(operation, outcome string)
	RecordStockMutation(kind string, n int)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Inventory   repositories.InventoryRepository
	Carts       repositories.CartRepository
	UnitOfWork  repositories.UnitOfWork
	Locker      locking.Locker
	Metrics     OrderMetrics
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	inventory  repositories.InventoryRepository
	carts      repositories.CartRepository
	unitOfWork repositories.UnitOfWork
	locker     locking.Locker
	metrics    OrderMetrics
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("order service: unit of work is required")
	}

	locker := deps.Locker
	if locker == nil {
		locker = locking.NewKeyedMutex()
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopOrderMetrics{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		inventory:  deps.Inventory,
		carts:      deps.Carts,
		unitOfWork: deps.UnitOfWork,
		locker:     locker,
		metrics:    metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CancelByUser(ctx context.Context, orderID int64, actor Actor) (Order, error) {
	if err := validateOrderID(orderID); err != nil {
		return Order{}, err
	}
	if err := requireOrderOwner(actor); err != nil {
		return Order{}, err
	}

	var (
		result   Order
		previous domain.OrderStatus
	)
	err := s.transition(ctx, orderOperationCancel, orderID, func(txCtx context.Context) error {
		order, err := s.orders.GetForUser(txCtx, orderID, actor.ID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if order.Status != domain.OrderStatusPendingPayment {
			return fmt.Errorf("%w: only pending orders can be cancelled, order %d is %s", ErrOrderInvalidState, orderID, order.Status)
		}

		// Lines are returned to stock even though nothing was reserved while pending.
		if err := s.releaseLines(txCtx, order.Items); err != nil {
			return err
		}

		previous = order.Status
		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = s.now()
		saved, err := s.orders.Save(txCtx, order)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		result = saved
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.metrics.RecordStockMutation(stockMutationRelease, len(result.Items))
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCancelled,
		OrderID:        result.ID,
		UserID:         result.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(result.Status),
		ActorID:        actor.ID,
		ActorRole:      string(actor.Role),
		OccurredAt:     result.UpdatedAt,
	})
	return result, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, orderID int64, statusName string, actor Actor) (Order, error) {
	if err := validateOrderID(orderID); err != nil {
		return Order{}, err
	}
	name := strings.TrimSpace(statusName)
	if name == "" {
		return Order{}, fmt.Errorf("%w: status is required", ErrOrderInvalidInput)
	}
	if err := requireStaff(actor); err != nil {
		return Order{}, err
	}

	var (
		result   Order
		previous domain.OrderStatus
		reserved int
	)
	err := s.transition(ctx, orderOperationUpdateStatus, orderID, func(txCtx context.Context) error {
		order, err := s.orders.Get(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		target, ok := domain.ParseOrderStatus(name)
		if !ok {
			return fmt.Errorf("%w: invalid status %q", ErrOrderInvalidInput, name)
		}

		if target.ReservesStockFrom(order.Status) {
			if err := s.reserveLines(txCtx, order.Items); err != nil {
				return err
			}
			reserved = len(order.Items)
		}

		previous = order.Status
		order.Status = target
		order.UpdatedAt = s.now()
		saved, err := s.orders.Save(txCtx, order)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		result = saved
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.metrics.RecordStockMutation(stockMutationReserve, reserved)
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        result.ID,
		UserID:         result.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(result.Status),
		ActorID:        actor.ID,
		ActorRole:      string(actor.Role),
		OccurredAt:     result.UpdatedAt,
		Metadata:       map[string]any{"stockReserved": reserved > 0},
	})
	return result, nil
}

func (s *orderService) CompleteOrder(ctx context.Context, orderID int64, actor Actor) error {
	if err := validateOrderID(orderID); err != nil {
		return err
	}
	if err := requireStaff(actor); err != nil {
		return err
	}

	var (
		removed  Order
		released int
	)
	err := s.transition(ctx, orderOperationComplete, orderID, func(txCtx context.Context) error {
		order, err := s.orders.Get(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if order.Status == domain.OrderStatusOrderCompleted {
			return fmt.Errorf("%w: order %d is already completed", ErrOrderInvalidState, orderID)
		}

		if order.Status != domain.OrderStatusCancelled {
			if err := s.releaseLines(txCtx, order.Items); err != nil {
				return err
			}
			released = len(order.Items)
		}

		if err := s.orders.Delete(txCtx, orderID); err != nil {
			return s.mapRepositoryError(err)
		}
		removed = order
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordStockMutation(stockMutationRelease, released)
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCompleted,
		OrderID:        removed.ID,
		UserID:         removed.UserID,
		PreviousStatus: string(removed.Status),
		ActorID:        actor.ID,
		ActorRole:      string(actor.Role),
		OccurredAt:     s.now(),
		Metadata:       map[string]any{"stockReleased": released > 0},
	})
	return nil
}

func (s *orderService) History(ctx context.Context, actor Actor) ([]OrderSummary, error) {
	if err := requireOrderOwner(actor); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListForUser(ctx, actor.ID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: user %d has no orders", ErrOrderNotFound, actor.ID)
	}
	return summarizeOrders(orders), nil
}

func (s *orderService) Detail(ctx context.Context, orderID int64, actor Actor) (Order, error) {
	if err := validateOrderID(orderID); err != nil {
		return Order{}, err
	}
	if err := requireOrderOwner(actor); err != nil {
		return Order{}, err
	}
	order, err := s.orders.GetForUser(ctx, orderID, actor.ID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListAll(ctx context.Context, actor Actor) ([]OrderSummary, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: no orders", ErrOrderNotFound)
	}
	return summarizeOrders(orders), nil
}

func (s *orderService) Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error) {
	if err := requireOrderOwner(cmd.Actor); err != nil {
		return Order{}, err
	}
	address := textutil.PlainText(cmd.TargetAddress)
	if address == "" {
		return Order{}, fmt.Errorf("%w: target address is required", ErrOrderInvalidInput)
	}
	phone := textutil.PlainText(cmd.TargetPhone)

	userID := cmd.Actor.ID
	var result Order
	err := s.withLock(ctx, orderOperationCheckout, locking.CartKey(userID), attribute.Int64("user.id", userID), func(txCtx context.Context) error {
		lines, err := s.carts.List(txCtx, userID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if len(lines) == 0 {
			return fmt.Errorf("%w: cart of user %d is empty", ErrOrderNotFound, userID)
		}

		items, err := buildOrderItems(lines)
		if err != nil {
			return err
		}

		now := s.now()
		inserted, err := s.orders.Insert(txCtx, Order{
			UserID:        userID,
			TargetAddress: address,
			TargetPhone:   phone,
			Status:        domain.OrderStatusPendingPayment,
			TotalPrice:    domain.SumLineItems(items),
			Items:         items,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.carts.Clear(txCtx, userID); err != nil {
			return s.mapRepositoryError(err)
		}
		result = inserted
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       result.ID,
		UserID:        result.UserID,
		CurrentStatus: string(result.Status),
		ActorID:       cmd.Actor.ID,
		ActorRole:     string(cmd.Actor.Role),
		OccurredAt:    result.CreatedAt,
		Metadata:      map[string]any{"totalPrice": result.TotalPrice, "lines": len(result.Items)},
	})
	return result, nil
}

// transition serialises fn against other commands on the same order and runs it in one unit of work.
func (s *orderService) transition(ctx context.Context, operation string, orderID int64, fn func(context.Context) error) error {
	return s.withLock(ctx, operation, locking.OrderKey(orderID), attribute.Int64("order.id", orderID), fn)
}

func (s *orderService) withLock(ctx context.Context, operation string, key string, attr attribute.KeyValue, fn func(context.Context) error) (err error) {
	ctx, span := observability.StartSpan(ctx, "order."+operation, attr)
	defer func() {
		observability.EndSpan(span, err)
		s.metrics.RecordTransition(operation, orderOutcome(err))
	}()

	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
	defer func() {
		if unlockErr := unlock(ctx); unlockErr != nil {
			s.logger(ctx, "order.lock.release.failed", map[string]any{
				"key":   key,
				"error": unlockErr.Error(),
			})
		}
	}()

	return s.runInTx(ctx, fn)
}

func (s *orderService) reserveLines(ctx context.Context, lines []OrderItem) error {
	for _, line := range lines {
		if err := s.inventory.Reserve(ctx, line.ItemID, line.Quantity); err != nil {
			return s.mapInventoryError(err)
		}
	}
	return nil
}

func (s *orderService) releaseLines(ctx context.Context, lines []OrderItem) error {
	for _, line := range lines {
		if err := s.inventory.Release(ctx, line.ItemID, line.Quantity); err != nil {
			return s.mapInventoryError(err)
		}
	}
	return nil
}

func (s *orderService) mapInventoryError(err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %v", ErrOrderStockExhausted, err)
		case repositories.InventoryErrorInvalidQuantity:
			return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	event.ID = s.newID()
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(context.WithoutCancel(ctx), event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopOrderMetrics struct{}

func (noopOrderMetrics) RecordTransition(string, string) {}
func (noopOrderMetrics) RecordStockMutation(string, int)  {}

func validateOrderID(orderID int64) error {
	if orderID <= 0 {
		return fmt.Errorf("%w: order id must be positive, got %d", ErrOrderInvalidInput, orderID)
	}
	return nil
}

func requireOrderOwner(actor Actor) error {
	if actor.ID <= 0 {
		return fmt.Errorf("%w: user id must be positive, got %d", ErrOrderInvalidInput, actor.ID)
	}
	if actor.Role != domain.RoleUser {
		return fmt.Errorf("%w: role %q cannot act on its own orders", ErrOrderForbidden, actor.Role)
	}
	return nil
}

func requireStaff(actor Actor) error {
	if !actor.Role.IsStaff() {
		return fmt.Errorf("%w: role %q is not staff", ErrOrderForbidden, actor.Role)
	}
	return nil
}

func buildOrderItems(lines []CartItem) ([]OrderItem, error) {
	items := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line.ItemName) == "" {
			return nil, fmt.Errorf("%w: item %d in cart no longer exists", ErrOrderNotFound, line.ItemID)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: cart line for item %d has quantity %d", ErrOrderInvalidInput, line.ItemID, line.Quantity)
		}
		items = append(items, OrderItem{
			ItemID:   line.ItemID,
			ItemName: line.ItemName,
			Quantity: line.Quantity,
			Price:    line.Price,
		})
	}
	return items, nil
}

func summarizeOrders(orders []Order) []OrderSummary {
	out := make([]OrderSummary, 0, len(orders))
	for _, order := range orders {
		out = append(out, OrderSummary{
			OrderID:       order.ID,
			UserID:        order.UserID,
			CreatedAt:     order.CreatedAt,
			Status:        order.Status,
			TotalPrice:    order.TotalPrice,
			TargetAddress: order.TargetAddress,
		})
	}
	return out
}

func orderOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrOrderInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrOrderInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrOrderStockExhausted):
		return "stock_exhausted"
	case errors.Is(err, ErrOrderConflict):
		return "conflict"
	case errors.Is(err, ErrOrderForbidden):
		return "forbidden"
	case errors.Is(err, ErrOrderUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
