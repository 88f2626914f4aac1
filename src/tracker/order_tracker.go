package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"edgeengine/src/connectors"
	"edgeengine/src/database"
	"edgeengine/src/model"
	"edgeengine/src/repository"
)

// ExchangeClient is the slice of the CLOB client the tracker needs.
type ExchangeClient interface {
	PlaceOrder(ctx context.Context, order connectors.PlaceOrderRequest) (*connectors.OrderAck, error)
	CancelOrder(ctx context.Context, exchangeOrderID string) (bool, error)
	GetOrder(ctx context.Context, exchangeOrderID string) (*connectors.OrderState, error)
}

// CreateOrderRequest describes one exchange action requested by the
// position manager.
type CreateOrderRequest struct {
	PositionID  uint
	OrderType   string // ENTRY, LIMIT_SELL, SCALE_IN, HEDGE
	TokenID     string
	Side        string // BUY or SELL
	Price       float64
	Size        float64
	TimeInForce string
}

// OrderTracker records every exchange order associated with a position and
// reconciles terminal status against exchange truth. Local records are
// corrected from the exchange, never the other way around.
type OrderTracker struct {
	orders     *repository.OrderRepository
	positions  *repository.PositionRepository
	exceptions *repository.ExceptionRepository
	exchange   ExchangeClient
}

// NewOrderTracker creates a tracker bound to the main database.
func NewOrderTracker(exchange ExchangeClient) *OrderTracker {
	return &OrderTracker{
		orders:     repository.NewOrderRepository(),
		positions:  repository.NewPositionRepository(),
		exceptions: repository.NewExceptionRepository(),
		exchange:   exchange,
	}
}

// WithDB rebinds the tracker to the caller's active transaction handle so
// order writes join the caller's unit of work instead of opening their own.
func (t *OrderTracker) WithDB(db *gorm.DB) *OrderTracker {
	return &OrderTracker{
		orders:     t.orders.WithDB(db),
		positions:  t.positions.WithDB(db),
		exceptions: t.exceptions.WithDB(db),
		exchange:   t.exchange,
	}
}

// Tx runs fn inside a fresh transaction on the main database with a
// tx-bound tracker.
func (t *OrderTracker) Tx(ctx context.Context, fn func(tx *OrderTracker) error) error {
	return database.MainDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(t.WithDB(tx))
	})
}

// CreateOrder persists the local order record and places it on the
// exchange. The locally generated client ID keeps a retried placement from
// double-filling.
func (t *OrderTracker) CreateOrder(
	ctx context.Context,
	req CreateOrderRequest,
) (*model.Order, error) {

	if req.Size <= 0 {
		return nil, model.NewValidationError("size", "must be positive")
	}

	order := &model.Order{
		PositionID:    req.PositionID,
		OrderType:     req.OrderType,
		ClientOrderID: uuid.NewString(),
		Price:         req.Price,
		Size:          req.Size,
		Status:        model.OrderStatusPending,
	}

	if err := t.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	ack, err := t.exchange.PlaceOrder(ctx, connectors.PlaceOrderRequest{
		TokenID:     req.TokenID,
		Side:        req.Side,
		Price:       req.Price,
		Size:        req.Size,
		ClientID:    order.ClientOrderID,
		TimeInForce: req.TimeInForce,
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"order_id":    order.ID,
			"position_id": req.PositionID,
			"order_type":  req.OrderType,
		}).WithError(err).Error("Exchange placement failed, cancelling local order")

		if _, cErr := t.orders.MarkCancelled(ctx, order.ID, time.Now()); cErr != nil {
			logger.WithError(cErr).Error("Failed to cancel local order after placement failure")
		}

		return nil, err
	}

	if err := t.orders.UpdateExchangeOrderID(ctx, order.ID, ack.OrderID); err != nil {
		return nil, err
	}
	order.ExchangeOrderID = ack.OrderID

	if ack.Status == connectors.ExchangeOrderMatched {
		if _, err := t.orders.MarkFilled(ctx, order.ID, time.Now()); err != nil {
			return nil, err
		}
		order.Status = model.OrderStatusFilled
	}

	logger.WithFields(map[string]interface{}{
		"order_id":          order.ID,
		"exchange_order_id": ack.OrderID,
		"order_type":        req.OrderType,
		"status":            order.Status,
	}).Info("Order placed and tracked")

	return order, nil
}

// Reconcile walks all non-terminal orders and corrects local status against
// exchange truth. Updates for orders owned by settled positions are
// discarded by the ghost-trade guard.
func (t *OrderTracker) Reconcile(ctx context.Context) error {
	orders, err := t.orders.FindNonTerminal(ctx)
	if err != nil {
		return err
	}

	for i := range orders {
		if err := t.reconcileOne(ctx, &orders[i]); err != nil {
			logger.WithFields(map[string]interface{}{
				"order_id": orders[i].ID,
			}).WithError(err).Warn("Order reconciliation skipped")
			t.exceptions.Capture(ctx, "OrderTracker", "tracker", "reconcileOne", "warning", err,
				map[string]interface{}{"order_id": orders[i].ID, "position_id": orders[i].PositionID})
		}
	}

	return nil
}

func (t *OrderTracker) reconcileOne(ctx context.Context, order *model.Order) error {
	if order.ExchangeOrderID == "" {
		// Placement never acknowledged; nothing to compare against.
		return nil
	}

	state, err := t.exchange.GetOrder(ctx, order.ExchangeOrderID)
	if err != nil {
		return err
	}

	return t.applyExchangeState(ctx, order, state.Status, state.MatchedSize)
}

// ApplyEvent folds a real-time user-order event into local state, through
// the same guards as polling reconciliation.
func (t *OrderTracker) ApplyEvent(ctx context.Context, event connectors.UserOrderEvent) error {
	order, err := t.findByExchangeID(ctx, event.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		logger.WithField("exchange_order_id", event.OrderID).
			Debug("User event for unknown order, ignoring")
		return nil
	}

	return t.applyExchangeState(ctx, order, event.Status, event.SizeMatched)
}

func (t *OrderTracker) applyExchangeState(
	ctx context.Context,
	order *model.Order,
	exchangeStatus string,
	matchedSize float64,
) error {

	// Ghost-trade guard: a late or duplicate exchange callback must never
	// reopen bookkeeping on a settled position.
	position, err := t.positions.FindByID(ctx, order.PositionID)
	if err != nil {
		return err
	}
	if position != nil && position.Terminal() {
		logger.WithFields(map[string]interface{}{
			"order_id":    order.ID,
			"position_id": order.PositionID,
			"status":      exchangeStatus,
		}).Warn("Ghost trade discarded: owning position already settled")

		return model.ErrGhostTrade
	}

	localEquivalent := localStatus(exchangeStatus)
	if localEquivalent == order.Status {
		return nil
	}

	mismatch := &model.ReconciliationMismatch{
		OrderID:        order.ID,
		LocalStatus:    order.Status,
		ExchangeStatus: exchangeStatus,
	}
	logger.WithFields(map[string]interface{}{
		"order_id":        order.ID,
		"local_status":    order.Status,
		"exchange_status": exchangeStatus,
	}).Warn(mismatch.Error())

	switch localEquivalent {
	case model.OrderStatusFilled:
		if matchedSize > 0 && matchedSize != order.Size {
			// Exchange truth wins over the stale local size.
			if err := t.orders.UpdateSize(ctx, order.ID, matchedSize); err != nil {
				return err
			}
			// Stake orders feed Position.Size, so a partial fill must
			// shrink the position too, not just the order record.
			if order.OrderType == model.OrderKindEntry || order.OrderType == model.OrderKindScaleIn {
				if err := t.positions.AdjustSize(ctx, order.PositionID, matchedSize-order.Size); err != nil {
					return err
				}
			}
		}
		_, err = t.orders.MarkFilled(ctx, order.ID, time.Now())
		return err
	case model.OrderStatusCancelled:
		_, err = t.orders.MarkCancelled(ctx, order.ID, time.Now())
		return err
	default:
		return nil
	}
}

// CancelThenReplace cancels an open order and, only after the exchange
// confirms the cancellation, places its replacement. The ordering closes
// the double-exposure window where both old and new orders are live.
func (t *OrderTracker) CancelThenReplace(
	ctx context.Context,
	orderID uint,
	replacement CreateOrderRequest,
) (*model.Order, error) {

	order, err := t.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, gorm.ErrRecordNotFound
	}

	if order.Status == model.OrderStatusPending && order.ExchangeOrderID != "" {
		confirmed, err := t.exchange.CancelOrder(ctx, order.ExchangeOrderID)
		if err != nil {
			return nil, err
		}
		if !confirmed {
			// The old order may still fill; placing the replacement now
			// would risk double exposure.
			return nil, &model.TransientExchangeError{
				Op:  "CancelThenReplace",
				Err: model.ErrExchangeUnavailable,
			}
		}

		if _, err := t.orders.MarkCancelled(ctx, order.ID, time.Now()); err != nil {
			return nil, err
		}
	}

	return t.CreateOrder(ctx, replacement)
}

func (t *OrderTracker) findByExchangeID(ctx context.Context, exchangeOrderID string) (*model.Order, error) {
	orders, err := t.orders.FindNonTerminal(ctx)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].ExchangeOrderID == exchangeOrderID {
			return &orders[i], nil
		}
	}
	return nil, nil
}

func localStatus(exchangeStatus string) string {
	switch exchangeStatus {
	case connectors.ExchangeOrderMatched:
		return model.OrderStatusFilled
	case connectors.ExchangeOrderCancelled:
		return model.OrderStatusCancelled
	default:
		return model.OrderStatusPending
	}
}
