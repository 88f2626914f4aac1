package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgeengine/src/model"
	"edgeengine/src/repository"
)

type fakeStats struct {
	summary *repository.StatsSummary
	trades  []model.Position
	symbols []repository.SymbolStats
	points  []repository.PnlPoint
	err     error

	lastLimit int
	lastFrom  time.Time
}

func (f *fakeStats) Summary(_ context.Context) (*repository.StatsSummary, error) {
	return f.summary, f.err
}

func (f *fakeStats) RecentTrades(_ context.Context, limit int) ([]model.Position, error) {
	f.lastLimit = limit
	return f.trades, f.err
}

func (f *fakeStats) PerSymbol(_ context.Context) ([]repository.SymbolStats, error) {
	return f.symbols, f.err
}

func (f *fakeStats) PnlSeries(_ context.Context, from time.Time) ([]repository.PnlPoint, error) {
	f.lastFrom = from
	return f.points, f.err
}

func TestStatsSummaryHandler(t *testing.T) {
	repo := &fakeStats{summary: &repository.StatsSummary{
		TotalPositions: 10,
		SettledCount:   8,
		Wins:           5,
		Losses:         3,
		WinRatePct:     62.5,
		TotalPnlUSD:    12.34,
	}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)

	StatsSummaryHandler(repo)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got repository.StatsSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(10), got.TotalPositions)
	assert.Equal(t, 62.5, got.WinRatePct)
}

func TestStatsSummaryHandlerRepoError(t *testing.T) {
	repo := &fakeStats{err: errors.New("db down")}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)

	StatsSummaryHandler(repo)(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRecentTradesHandlerLimit(t *testing.T) {
	repo := &fakeStats{trades: []model.Position{{ID: 1}, {ID: 2}}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/trades?limit=5", nil)

	RecentTradesHandler(repo)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, repo.lastLimit)

	var got []model.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestRecentTradesHandlerInvalidLimit(t *testing.T) {
	repo := &fakeStats{}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/trades?limit=abc", nil)

	RecentTradesHandler(repo)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPerSymbolHandler(t *testing.T) {
	repo := &fakeStats{symbols: []repository.SymbolStats{
		{Symbol: "BTC", Positions: 4, TotalPnlUSD: 9.5},
	}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/symbols", nil)

	PerSymbolHandler(repo)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got []repository.SymbolStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "BTC", got[0].Symbol)
}

func TestPnlSeriesHandlerDays(t *testing.T) {
	repo := &fakeStats{points: []repository.PnlPoint{{Day: "2026-03-01", PnlUSD: 1.5}}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pnl-series?days=7", nil)

	PnlSeriesHandler(repo)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	wantFrom := time.Now().UTC().AddDate(0, 0, -7)
	assert.WithinDuration(t, wantFrom, repo.lastFrom, time.Minute)
}
