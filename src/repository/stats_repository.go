package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"edgeengine/src/database"
	"edgeengine/src/model"
)

// StatsSummary aggregates realized results across all settled positions.
type StatsSummary struct {
	TotalPositions int64   `json:"total_positions"`
	SettledCount   int64   `json:"settled_count"`
	OpenCount      int64   `json:"open_count"`
	Wins           int64   `json:"wins"`
	Losses         int64   `json:"losses"`
	WinRatePct     float64 `json:"win_rate_pct"`
	TotalPnlUSD    float64 `json:"total_pnl_usd"`
}

// SymbolStats is the per-symbol breakdown row.
type SymbolStats struct {
	Symbol      string  `json:"symbol"`
	Positions   int64   `json:"positions"`
	TotalPnlUSD float64 `json:"total_pnl_usd"`
}

// PnlPoint is one bucket of the realized-PnL time series.
type PnlPoint struct {
	Day    string  `json:"day"`
	PnlUSD float64 `json:"pnl_usd"`
}

// StatsRepository serves the read-only queries behind the dashboard API.
// It uses the ReadOnlyDB connection; the engine never depends on it.
type StatsRepository struct {
	db *gorm.DB
}

// NewStatsRepository creates a new repository instance using the read-only database.
func NewStatsRepository() *StatsRepository {
	return &StatsRepository{
		db: database.ReadOnlyDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *StatsRepository) WithDB(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Summary computes aggregate counts, realized PnL and win rate.
func (r *StatsRepository) Summary(ctx context.Context) (*StatsSummary, error) {

	var summary StatsSummary

	base := r.db.WithContext(ctx).Model(&model.Position{})

	if err := base.Count(&summary.TotalPositions).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&model.Position{}).
		Where("settled = ?", true).
		Count(&summary.SettledCount).Error; err != nil {
		return nil, err
	}
	summary.OpenCount = summary.TotalPositions - summary.SettledCount

	if err := r.db.WithContext(ctx).Model(&model.Position{}).
		Where("settled = ? AND pnl_usd > 0", true).
		Count(&summary.Wins).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&model.Position{}).
		Where("settled = ? AND pnl_usd <= 0", true).
		Count(&summary.Losses).Error; err != nil {
		return nil, err
	}

	if summary.SettledCount > 0 {
		summary.WinRatePct = float64(summary.Wins) / float64(summary.SettledCount) * 100.0
	}

	row := r.db.WithContext(ctx).Model(&model.Position{}).
		Where("settled = ?", true).
		Select("COALESCE(SUM(pnl_usd), 0)").
		Row()
	if err := row.Scan(&summary.TotalPnlUSD); err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "StatsRepository",
			"op":   "Summary",
		}).WithError(err).Error("Failed to sum realized PnL")

		return nil, err
	}

	return &summary, nil
}

// RecentTrades lists the latest settled positions, newest first.
func (r *StatsRepository) RecentTrades(
	ctx context.Context,
	limit int,
) ([]model.Position, error) {

	if limit <= 0 {
		limit = 20
	}

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("settled = ?", true).
		Order("settled_at DESC").
		Limit(limit).
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "StatsRepository",
			"op":    "RecentTrades",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch recent trades")

		return nil, err
	}

	return positions, nil
}

// PerSymbol breaks down settled position counts and PnL by symbol.
func (r *StatsRepository) PerSymbol(ctx context.Context) ([]SymbolStats, error) {

	var stats []SymbolStats

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Select("windows.symbol AS symbol, COUNT(positions.id) AS positions, COALESCE(SUM(positions.pnl_usd), 0) AS total_pnl_usd").
		Joins("JOIN windows ON windows.id = positions.window_id").
		Where("positions.settled = ?", true).
		Group("windows.symbol").
		Order("total_pnl_usd DESC").
		Scan(&stats).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "StatsRepository",
			"op":   "PerSymbol",
		}).WithError(err).Error("Failed to compute per-symbol stats")

		return nil, err
	}

	return stats, nil
}

// PnlSeries buckets realized PnL by settlement day since `from`.
func (r *StatsRepository) PnlSeries(
	ctx context.Context,
	from time.Time,
) ([]PnlPoint, error) {

	var points []PnlPoint

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Select("DATE(settled_at) AS day, COALESCE(SUM(pnl_usd), 0) AS pnl_usd").
		Where("settled = ? AND settled_at >= ?", true, from.UTC()).
		Group("DATE(settled_at)").
		Order("day ASC").
		Scan(&points).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "StatsRepository",
			"op":   "PnlSeries",
		}).WithError(err).Error("Failed to compute PnL series")

		return nil, err
	}

	return points, nil
}
