package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"edgeengine/src/database"
	"edgeengine/src/model"
)

// SpotCandleRepository reads and writes one-minute spot candles. The
// momentum and cross-exchange lead/lag signal sources query it; the spot
// backfill command writes it.
type SpotCandleRepository struct {
	db *gorm.DB
}

// NewSpotCandleRepository creates a new repository instance using the main read/write database.
func NewSpotCandleRepository() *SpotCandleRepository {
	return &SpotCandleRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SpotCandleRepository) WithDB(db *gorm.DB) *SpotCandleRepository {
	return &SpotCandleRepository{db: db}
}

// Upsert inserts or refreshes a candle on its (datetime, symbol) key.
func (r *SpotCandleRepository) Upsert(
	ctx context.Context,
	candle *model.OHLCVSpot1m,
) error {

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "datetime"}, {Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).
		Create(candle).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SpotCandleRepository",
			"op":     "Upsert",
			"symbol": candle.Symbol,
		}).WithError(err).Error("Failed to upsert spot candle")

		return err
	}

	return nil
}

// FindSince returns candles for a symbol from `since` onward, oldest first.
func (r *SpotCandleRepository) FindSince(
	ctx context.Context,
	symbol string,
	since time.Time,
) ([]model.OHLCVSpot1m, error) {

	var candles []model.OHLCVSpot1m

	err := r.db.WithContext(ctx).
		Where("symbol = ? AND datetime >= ?", symbol, since.UTC()).
		Order("datetime ASC").
		Find(&candles).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SpotCandleRepository",
			"op":     "FindSince",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch spot candles")

		return nil, err
	}

	return candles, nil
}
