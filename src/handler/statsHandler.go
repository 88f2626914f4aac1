package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	logger "github.com/sirupsen/logrus"

	"edgeengine/src/model"
	"edgeengine/src/repository"
)

type statsReader interface {
	Summary(ctx context.Context) (*repository.StatsSummary, error)
	RecentTrades(ctx context.Context, limit int) ([]model.Position, error)
	PerSymbol(ctx context.Context) ([]repository.SymbolStats, error)
	PnlSeries(ctx context.Context, from time.Time) ([]repository.PnlPoint, error)
}

// StatsSummaryHandler serves aggregate realized results across all settled
// positions.
func StatsSummaryHandler(repo statsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := repo.Summary(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to compute stats summary")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, summary)
	}
}

// RecentTradesHandler lists the latest settled positions, newest first.
// Supports an optional limit query parameter.
func RecentTradesHandler(repo statsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		trades, err := repo.RecentTrades(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to fetch recent trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, trades)
	}
}

// PerSymbolHandler serves the per-symbol PnL breakdown.
func PerSymbolHandler(repo statsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := repo.PerSymbol(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to compute per-symbol stats")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, stats)
	}
}

// PnlSeriesHandler serves the daily realized-PnL series. Supports an
// optional days query parameter, defaulting to the last 30 days.
func PnlSeriesHandler(repo statsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := 30
		if daysParam := r.URL.Query().Get("days"); daysParam != "" {
			parsed, err := strconv.Atoi(daysParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid days", http.StatusBadRequest)
				return
			}
			days = parsed
		}

		from := time.Now().UTC().AddDate(0, 0, -days)

		points, err := repo.PnlSeries(r.Context(), from)
		if err != nil {
			logger.WithError(err).Error("failed to compute pnl series")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, points)
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// Default wiring to the production read-only repository.

func DefaultStatsSummaryHandler() http.HandlerFunc {
	return StatsSummaryHandler(repository.NewStatsRepository())
}

func DefaultRecentTradesHandler() http.HandlerFunc {
	return RecentTradesHandler(repository.NewStatsRepository())
}

func DefaultPerSymbolHandler() http.HandlerFunc {
	return PerSymbolHandler(repository.NewStatsRepository())
}

func DefaultPnlSeriesHandler() http.HandlerFunc {
	return PnlSeriesHandler(repository.NewStatsRepository())
}
