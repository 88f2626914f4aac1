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

func seedWindow(t *testing.T, db *gorm.DB, symbol string) *model.Window {
	t.Helper()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := &model.Window{
		Symbol:      symbol,
		WindowStart: start,
		WindowEnd:   start.Add(15 * time.Minute),
	}
	require.NoError(t, db.Create(window).Error)
	return window
}

func TestCreateRejectsDuplicateSide(t *testing.T) {
	db := testDB(t)
	repo := NewPositionRepository().WithDB(db)
	ctx := context.Background()
	window := seedWindow(t, db, "BTC")

	first := &model.Position{
		WindowID:   window.ID,
		Side:       model.SideUp,
		State:      model.PositionStateOpen,
		EntryPrice: 0.55,
		Size:       10,
	}
	require.NoError(t, repo.Create(ctx, first))

	dup := &model.Position{WindowID: window.ID, Side: model.SideUp, State: model.PositionStateOpen}
	err := repo.Create(ctx, dup)
	require.ErrorIs(t, err, model.ErrDuplicateSide)

	// The opposite side of the same window is fine.
	down := &model.Position{WindowID: window.ID, Side: model.SideDown, State: model.PositionStateOpen}
	require.NoError(t, repo.Create(ctx, down))
}

func TestDuplicateSideBackstopConstraint(t *testing.T) {
	// Two writers racing past the count check both reach the insert; the
	// partial unique index lets exactly one through.
	db := testDB(t)
	window := seedWindow(t, db, "BTC")

	first := &model.Position{
		WindowID:   window.ID,
		Side:       model.SideUp,
		State:      model.PositionStateOpen,
		EntryPrice: 0.55,
		Size:       10,
	}
	require.NoError(t, db.Create(first).Error)

	dup := &model.Position{
		WindowID:   window.ID,
		Side:       model.SideUp,
		State:      model.PositionStateOpen,
		EntryPrice: 0.56,
		Size:       10,
	}
	require.ErrorIs(t, db.Create(dup).Error, gorm.ErrDuplicatedKey)

	// Settled rows leave the index, so a later same-side entry stands.
	require.NoError(t, db.Model(first).
		Updates(map[string]interface{}{"settled": true}).Error)
	require.NoError(t, db.Create(dup).Error)
}

func TestCreateAllowsSameSideAfterSettlement(t *testing.T) {
	db := testDB(t)
	repo := NewPositionRepository().WithDB(db)
	ctx := context.Background()
	window := seedWindow(t, db, "BTC")

	settled := &model.Position{
		WindowID: window.ID,
		Side:     model.SideUp,
		State:    model.PositionStateSettled,
		Settled:  true,
	}
	require.NoError(t, db.Create(settled).Error)

	fresh := &model.Position{WindowID: window.ID, Side: model.SideUp, State: model.PositionStateOpen}
	require.NoError(t, repo.Create(ctx, fresh))
}

func TestUpdateTransitionOptimisticLock(t *testing.T) {
	db := testDB(t)
	repo := NewPositionRepository().WithDB(db)
	ctx := context.Background()
	window := seedWindow(t, db, "BTC")

	position := &model.Position{
		WindowID:   window.ID,
		Side:       model.SideUp,
		State:      model.PositionStateOpen,
		EntryPrice: 0.55,
		Size:       10,
	}
	require.NoError(t, repo.Create(ctx, position))

	// Winner transitions OPEN -> SCALED from version 0.
	winner := *position
	winner.State = model.PositionStateScaled
	winner.ScaledIn = true
	require.NoError(t, repo.UpdateTransition(ctx, &winner, 0))
	assert.Equal(t, 1, winner.Version)

	// Loser still holds version 0 and must be told to re-read.
	loser := *position
	loser.State = model.PositionStateHedged
	err := repo.UpdateTransition(ctx, &loser, 0)
	require.ErrorIs(t, err, model.ErrStaleState)

	got, err := repo.FindByID(ctx, position.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PositionStateScaled, got.State)
	assert.True(t, got.ScaledIn)
}

func TestUpdateTransitionRejectsSettled(t *testing.T) {
	db := testDB(t)
	repo := NewPositionRepository().WithDB(db)
	ctx := context.Background()
	window := seedWindow(t, db, "BTC")

	position := &model.Position{
		WindowID: window.ID,
		Side:     model.SideUp,
		State:    model.PositionStateOpen,
	}
	require.NoError(t, repo.Create(ctx, position))

	outcome := model.OutcomeWin
	settled := *position
	settled.State = model.PositionStateSettled
	settled.Settled = true
	settled.FinalOutcome = &outcome
	require.NoError(t, repo.UpdateTransition(ctx, &settled, 0))

	// Any further transition hits the terminal guard.
	late := settled
	late.State = model.PositionStateOpen
	late.Settled = false
	err := repo.UpdateTransition(ctx, &late, settled.Version)
	require.ErrorIs(t, err, model.ErrTerminalState)
}

func TestFindActiveFiltersSettled(t *testing.T) {
	db := testDB(t)
	repo := NewPositionRepository().WithDB(db)
	ctx := context.Background()
	window := seedWindow(t, db, "BTC")

	open := &model.Position{WindowID: window.ID, Side: model.SideUp, State: model.PositionStateOpen}
	require.NoError(t, repo.Create(ctx, open))

	require.NoError(t, db.Create(&model.Position{
		WindowID: window.ID,
		Side:     model.SideDown,
		State:    model.PositionStateSettled,
		Settled:  true,
	}).Error)

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)

	byWindow, err := repo.FindActiveByWindow(ctx, window.ID)
	require.NoError(t, err)
	require.Len(t, byWindow, 1)

	missing, err := repo.FindActiveByWindowSide(ctx, window.ID, model.SideDown)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
