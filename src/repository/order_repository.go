package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"edgeengine/src/database"
	"edgeengine/src/model"
)

// OrderRepository handles read/write operations for exchange orders.
// Orders are append-only: rows are never deleted and status transitions are
// monotonic.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main read/write database.
func NewOrderRepository() *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Info("Creating new OrderRepository with MainDB")

	return &OrderRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new order into the database.
// The given order will be updated with the generated ID and timestamps.
func (r *OrderRepository) Create(
	ctx context.Context,
	order *model.Order,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "OrderRepository",
		"op":          "Create",
		"position_id": order.PositionID,
		"order_type":  order.OrderType,
		"price":       order.Price,
		"size":        order.Size,
	}).Debug("Creating new order")

	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
	}).Info("Order created successfully")

	return nil
}

// FindByID fetches a single order by its primary ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "OrderRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Order not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, err
	}

	return &order, nil
}

// FindByPositionID returns all orders tied to a position, oldest first.
func (r *OrderRepository) FindByPositionID(
	ctx context.Context,
	positionID uint,
) ([]model.Order, error) {

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "OrderRepository",
			"op":          "FindByPositionID",
			"position_id": positionID,
		}).WithError(err).Error("Failed to fetch orders for position")

		return nil, err
	}

	return orders, nil
}

// FindOpenByPositionAndType returns the pending order of a given kind for a
// position, or (nil, nil) when none exists.
func (r *OrderRepository) FindOpenByPositionAndType(
	ctx context.Context,
	positionID uint,
	orderType string,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).
		Where("position_id = ? AND order_type = ? AND status = ?",
			positionID, orderType, model.OrderStatusPending).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":        "OrderRepository",
			"op":          "FindOpenByPositionAndType",
			"position_id": positionID,
			"order_type":  orderType,
		}).WithError(err).Error("Failed to fetch open order")

		return nil, err
	}

	return &order, nil
}

// FindNonTerminal returns every order still awaiting exchange confirmation.
// Reconciliation walks this list and compares against exchange truth.
func (r *OrderRepository) FindNonTerminal(
	ctx context.Context,
) ([]model.Order, error) {

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("status = ?", model.OrderStatusPending).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindNonTerminal",
		}).WithError(err).Error("Failed to fetch non-terminal orders")

		return nil, err
	}

	return orders, nil
}

// MarkFilled transitions a pending order to FILLED. The guard on the current
// status keeps transitions monotonic: an already terminal order is left
// untouched and the call reports false.
func (r *OrderRepository) MarkFilled(
	ctx context.Context,
	id uint,
	filledAt time.Time,
) (bool, error) {
	return r.markTerminal(ctx, id, model.OrderStatusFilled, "filled_at", filledAt)
}

// MarkCancelled transitions a pending order to CANCELLED.
func (r *OrderRepository) MarkCancelled(
	ctx context.Context,
	id uint,
	cancelledAt time.Time,
) (bool, error) {
	return r.markTerminal(ctx, id, model.OrderStatusCancelled, "cancelled_at", cancelledAt)
}

func (r *OrderRepository) markTerminal(
	ctx context.Context,
	id uint,
	status string,
	tsColumn string,
	ts time.Time,
) (bool, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "OrderRepository",
		"op":     "markTerminal",
		"id":     id,
		"status": status,
	}).Debug("Updating order status")

	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", id, model.OrderStatusPending).
		Updates(map[string]interface{}{
			"status": status,
			tsColumn: ts.UTC(),
		})
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "OrderRepository",
			"op":     "markTerminal",
			"id":     id,
			"status": status,
		}).WithError(res.Error).Error("Failed to update order status")

		return false, res.Error
	}

	if res.RowsAffected == 0 {
		logger.WithFields(map[string]interface{}{
			"repo":   "OrderRepository",
			"op":     "markTerminal",
			"id":     id,
			"status": status,
		}).Debug("Order already terminal, status left untouched")

		return false, nil
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "OrderRepository",
		"op":     "markTerminal",
		"id":     id,
		"status": status,
	}).Info("Order status updated successfully")

	return true, nil
}

// UpdateSize corrects the local size from exchange truth during
// reconciliation self-healing.
func (r *OrderRepository) UpdateSize(
	ctx context.Context,
	id uint,
	size float64,
) error {

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Update("size", size).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "UpdateSize",
			"id":   id,
		}).WithError(err).Error("Failed to update order size")

		return err
	}

	return nil
}

// UpdateExchangeOrderID records the exchange-assigned identifier after
// placement succeeds.
func (r *OrderRepository) UpdateExchangeOrderID(
	ctx context.Context,
	id uint,
	exchangeOrderID string,
) error {

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Update("exchange_order_id", exchangeOrderID).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "UpdateExchangeOrderID",
			"id":   id,
		}).WithError(err).Error("Failed to update exchange order id")

		return err
	}

	return nil
}
