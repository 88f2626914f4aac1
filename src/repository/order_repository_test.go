package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"edgeengine/src/model"
)

func seedOrder(t *testing.T, db *gorm.DB, orderType string) *model.Order {
	t.Helper()

	window := seedWindow(t, db, "BTC")
	position := &model.Position{WindowID: window.ID, Side: model.SideUp, State: model.PositionStateOpen}
	require.NoError(t, db.Create(position).Error)

	order := &model.Order{
		PositionID:      position.ID,
		OrderType:       orderType,
		ClientOrderID:   "client-1",
		ExchangeOrderID: "exch-1",
		Price:           0.55,
		Size:            10,
		Status:          model.OrderStatusPending,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestMarkFilledIsMonotonic(t *testing.T) {
	db := testDB(t)
	repo := NewOrderRepository().WithDB(db)
	ctx := context.Background()
	order := seedOrder(t, db, model.OrderKindEntry)

	now := time.Now().UTC()

	changed, err := repo.MarkFilled(ctx, order.ID, now)
	require.NoError(t, err)
	assert.True(t, changed)

	// A late cancel against a filled order is a no-op.
	changed, err = repo.MarkCancelled(ctx, order.ID, now)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFilled, got.Status)
	require.NotNil(t, got.FilledAt)
	assert.Nil(t, got.CancelledAt)
}

func TestFindNonTerminalListsPendingOnly(t *testing.T) {
	db := testDB(t)
	repo := NewOrderRepository().WithDB(db)
	ctx := context.Background()

	pending := seedOrder(t, db, model.OrderKindEntry)

	filledAt := time.Now().UTC()
	require.NoError(t, db.Create(&model.Order{
		PositionID: pending.PositionID,
		OrderType:  model.OrderKindLimitSell,
		Status:     model.OrderStatusFilled,
		FilledAt:   &filledAt,
	}).Error)

	orders, err := repo.FindNonTerminal(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, pending.ID, orders[0].ID)
}

func TestFindOpenByPositionAndType(t *testing.T) {
	db := testDB(t)
	repo := NewOrderRepository().WithDB(db)
	ctx := context.Background()
	order := seedOrder(t, db, model.OrderKindLimitSell)

	got, err := repo.FindOpenByPositionAndType(ctx, order.PositionID, model.OrderKindLimitSell)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, order.ID, got.ID)

	// Not-found is (nil, nil), not an error.
	got, err = repo.FindOpenByPositionAndType(ctx, order.PositionID, model.OrderKindHedge)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateSizeFromExchangeTruth(t *testing.T) {
	db := testDB(t)
	repo := NewOrderRepository().WithDB(db)
	ctx := context.Background()
	order := seedOrder(t, db, model.OrderKindEntry)

	require.NoError(t, repo.UpdateSize(ctx, order.ID, 7.5))

	got, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 7.5, got.Size)
}

func TestUpdateExchangeOrderID(t *testing.T) {
	db := testDB(t)
	repo := NewOrderRepository().WithDB(db)
	ctx := context.Background()
	order := seedOrder(t, db, model.OrderKindEntry)

	require.NoError(t, repo.UpdateExchangeOrderID(ctx, order.ID, "exch-2"))

	got, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "exch-2", got.ExchangeOrderID)
}
