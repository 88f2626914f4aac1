package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"edgeengine/src/database"
	"edgeengine/src/model"
)

// MarketMeta carries the exchange identifiers and the market snapshot taken
// when a window is first evaluated.
type MarketMeta struct {
	Slug        string
	TokenID     string
	TokenIDDown string
	ConditionID string
	PYes        float64
	BestBid     float64
	BestAsk     float64
	Imbalance   float64
}

// WindowRepository handles read/write operations for trading windows.
type WindowRepository struct {
	db *gorm.DB
}

// NewWindowRepository creates a new repository instance using the main read/write database.
func NewWindowRepository() *WindowRepository {
	logger.WithField("component", "WindowRepository").
		Info("Creating new WindowRepository with MainDB")

	return &WindowRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *WindowRepository) WithDB(db *gorm.DB) *WindowRepository {
	return &WindowRepository{db: db}
}

// GetOrCreate resolves the window for (symbol, slot), creating it if it does
// not exist yet. Concurrent calls for the same slot resolve to the same row:
// the insert is an ON CONFLICT DO NOTHING upsert on the (symbol, window_start)
// unique index, never a read-then-insert.
func (r *WindowRepository) GetOrCreate(
	ctx context.Context,
	symbol string,
	slotStart time.Time,
	slotEnd time.Time,
	meta MarketMeta,
) (*model.Window, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "WindowRepository",
		"op":     "GetOrCreate",
		"symbol": symbol,
		"slot":   slotStart,
	}).Debug("Resolving trading window")

	window := &model.Window{
		Symbol:      symbol,
		WindowStart: slotStart.UTC(),
		WindowEnd:   slotEnd.UTC(),
		Slug:        meta.Slug,
		TokenID:     meta.TokenID,
		TokenIDDown: meta.TokenIDDown,
		ConditionID: meta.ConditionID,
		PYes:        meta.PYes,
		BestBid:     meta.BestBid,
		BestAsk:     meta.BestAsk,
		Imbalance:   meta.Imbalance,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "window_start"}},
			DoNothing: true,
		}).
		Create(window).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "WindowRepository",
			"op":     "GetOrCreate",
			"symbol": symbol,
		}).WithError(err).Error("Failed to upsert window")

		return nil, err
	}

	// The insert may have hit the conflict path, in which case window.ID is
	// zero and the persisted row must be fetched.
	var persisted model.Window
	err = r.db.WithContext(ctx).
		Where("symbol = ? AND window_start = ?", symbol, slotStart.UTC()).
		First(&persisted).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "WindowRepository",
			"op":     "GetOrCreate",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch window after upsert")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "WindowRepository",
		"op":        "GetOrCreate",
		"window_id": persisted.ID,
	}).Debug("Window resolved")

	return &persisted, nil
}

// FindByID fetches a single window by its primary ID.
// Returns (nil, nil) if the window is not found.
func (r *WindowRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Window, error) {

	var window model.Window

	err := r.db.WithContext(ctx).First(&window, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "WindowRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Window not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "WindowRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch window by ID")

		return nil, err
	}

	return &window, nil
}

// UpdateSignalScores persists the aggregate per-signal scores for the window.
// Fails with ErrImmutableWindow once the outcome has been recorded.
func (r *WindowRepository) UpdateSignalScores(
	ctx context.Context,
	id uint,
	scores map[string]float64,
) error {

	updates := map[string]interface{}{}
	for name, value := range scores {
		updates[name] = value
	}

	res := r.db.WithContext(ctx).
		Model(&model.Window{}).
		Where("id = ? AND final_outcome IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "WindowRepository",
			"op":   "UpdateSignalScores",
			"id":   id,
		}).WithError(res.Error).Error("Failed to update window signal scores")

		return res.Error
	}

	if res.RowsAffected == 0 {
		return r.immutableOrMissing(ctx, id)
	}

	return nil
}

// RecordOutcome writes the final settlement outcome exactly once. A second
// call, or any call on an already resolved window, fails with
// ErrImmutableWindow.
func (r *WindowRepository) RecordOutcome(
	ctx context.Context,
	id uint,
	outcome string,
	resolvedAt time.Time,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":    "WindowRepository",
		"op":      "RecordOutcome",
		"id":      id,
		"outcome": outcome,
	}).Info("Recording window outcome")

	if outcome != model.WindowOutcomeUp && outcome != model.WindowOutcomeDown {
		return model.NewValidationError("outcome", "must be UP or DOWN")
	}

	res := r.db.WithContext(ctx).
		Model(&model.Window{}).
		Where("id = ? AND final_outcome IS NULL", id).
		Updates(map[string]interface{}{
			"final_outcome": outcome,
			"resolved_at":   resolvedAt.UTC(),
		})
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "WindowRepository",
			"op":   "RecordOutcome",
			"id":   id,
		}).WithError(res.Error).Error("Failed to record window outcome")

		return res.Error
	}

	if res.RowsAffected == 0 {
		return r.immutableOrMissing(ctx, id)
	}

	return nil
}

// FindUnresolvedEnded returns windows whose slot has ended but whose outcome
// has not been recorded yet. The settlement poll walks this list.
func (r *WindowRepository) FindUnresolvedEnded(
	ctx context.Context,
	before time.Time,
) ([]model.Window, error) {

	var windows []model.Window

	err := r.db.WithContext(ctx).
		Where("final_outcome IS NULL AND window_end <= ?", before.UTC()).
		Order("window_end ASC").
		Find(&windows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "WindowRepository",
			"op":   "FindUnresolvedEnded",
		}).WithError(err).Error("Failed to fetch unresolved windows")

		return nil, err
	}

	return windows, nil
}

func (r *WindowRepository) immutableOrMissing(ctx context.Context, id uint) error {
	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return gorm.ErrRecordNotFound
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "WindowRepository",
		"window_id": id,
	}).Warn("Mutation attempted on resolved window")

	return model.ErrImmutableWindow
}
