package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"edgeengine/src/database"
	"edgeengine/src/model"
)

// PositionRepository handles read/write operations for positions.
// All writes are expected to run inside the position manager's transaction;
// use WithDB to bind the repository to the caller's active handle so nested
// writes never open a second transaction.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository with MainDB")

	return &PositionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new position after enforcing the duplicate-side guard:
// at most one non-settled, non-reversed position may exist per (window, side).
func (r *PositionRepository) Create(
	ctx context.Context,
	position *model.Position,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":      "PositionRepository",
		"op":        "Create",
		"window_id": position.WindowID,
		"side":      position.Side,
		"size":      position.Size,
	}).Debug("Creating new position")

	var existing int64
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("window_id = ? AND side = ? AND settled = ?", position.WindowID, position.Side, false).
		Count(&existing).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to check for duplicate side")

		return err
	}

	if existing > 0 {
		logger.WithFields(map[string]interface{}{
			"repo":      "PositionRepository",
			"op":        "Create",
			"window_id": position.WindowID,
			"side":      position.Side,
		}).Warn("Duplicate side entry rejected")

		return model.ErrDuplicateSide
	}

	if err := r.db.WithContext(ctx).Create(position).Error; err != nil {
		// The partial unique index on (window_id, side) over non-settled
		// rows backstops the count above against concurrent writers.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.WithFields(map[string]interface{}{
				"repo":      "PositionRepository",
				"op":        "Create",
				"window_id": position.WindowID,
				"side":      position.Side,
			}).Warn("Duplicate side entry rejected by constraint")

			return model.ErrDuplicateSide
		}

		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create position")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Create",
		"position_id": position.ID,
	}).Info("Position created successfully")

	return nil
}

// FindByID fetches a single position by its primary ID.
// Returns (nil, nil) if the position is not found.
func (r *PositionRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Position, error) {

	var position model.Position

	err := r.db.WithContext(ctx).First(&position, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "PositionRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Position not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch position by ID")

		return nil, err
	}

	return &position, nil
}

// FindActive returns all non-settled positions, oldest first. The risk
// controller walks this list on every poll.
func (r *PositionRepository) FindActive(
	ctx context.Context,
) ([]model.Position, error) {

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("settled = ?", false).
		Order("id ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch active positions")

		return nil, err
	}

	return positions, nil
}

// FindActiveByWindow returns all non-settled positions for one window.
func (r *PositionRepository) FindActiveByWindow(
	ctx context.Context,
	windowID uint,
) ([]model.Position, error) {

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("window_id = ? AND settled = ?", windowID, false).
		Order("id ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "PositionRepository",
			"op":        "FindActiveByWindow",
			"window_id": windowID,
		}).WithError(err).Error("Failed to fetch window positions")

		return nil, err
	}

	return positions, nil
}

// FindActiveByWindowSide returns the non-settled position for (window, side),
// or (nil, nil) when the side is free.
func (r *PositionRepository) FindActiveByWindowSide(
	ctx context.Context,
	windowID uint,
	side string,
) (*model.Position, error) {

	var position model.Position

	err := r.db.WithContext(ctx).
		Where("window_id = ? AND side = ? AND settled = ?", windowID, side, false).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":      "PositionRepository",
			"op":        "FindActiveByWindowSide",
			"window_id": windowID,
			"side":      side,
		}).WithError(err).Error("Failed to fetch position by window side")

		return nil, err
	}

	return &position, nil
}

// UpdateTransition applies a state transition with optimistic locking.
// The update only lands if the stored version still matches the version the
// caller read; otherwise the caller lost a concurrent race and gets
// ErrStaleState (or ErrTerminalState when the position settled meanwhile).
func (r *PositionRepository) UpdateTransition(
	ctx context.Context,
	position *model.Position,
	fromVersion int,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":         "PositionRepository",
		"op":           "UpdateTransition",
		"position_id":  position.ID,
		"state":        position.State,
		"from_version": fromVersion,
	}).Debug("Applying position transition")

	position.Version = fromVersion + 1

	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND version = ? AND settled = ?", position.ID, fromVersion, false).
		Select(
			"state", "version", "entry_price", "size", "bet_usd",
			"is_hedged", "scaled_in", "settled", "exited_early",
			"exit_price", "pnl_usd", "roi_pct", "final_outcome",
			"hedged_at", "scaled_at", "settled_at",
		).
		Updates(position)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "UpdateTransition",
			"position_id": position.ID,
		}).WithError(res.Error).Error("Failed to apply position transition")

		return res.Error
	}

	if res.RowsAffected == 0 {
		current, err := r.FindByID(ctx, position.ID)
		if err != nil {
			return err
		}
		if current != nil && current.Terminal() {
			return model.ErrTerminalState
		}
		return model.ErrStaleState
	}

	return nil
}

// AdjustSize applies a size delta discovered during order reconciliation.
// Settled positions are left alone; their books are closed.
func (r *PositionRepository) AdjustSize(
	ctx context.Context,
	positionID uint,
	delta float64,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "AdjustSize",
		"position_id": positionID,
		"delta":       delta,
	}).Debug("Adjusting position size from exchange truth")

	return r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND settled = ?", positionID, false).
		UpdateColumn("size", gorm.Expr("size + ?", delta)).Error
}
