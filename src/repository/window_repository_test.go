package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgeengine/src/model"
)

func slot() (time.Time, time.Time) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return start, start.Add(15 * time.Minute)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	repo := NewWindowRepository().WithDB(testDB(t))
	ctx := context.Background()
	start, end := slot()

	first, err := repo.GetOrCreate(ctx, "BTC", start, end, MarketMeta{
		Slug:    "btc-updown-2026-03-01-1200",
		TokenID: "tok-up",
		PYes:    0.55,
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	// A second call with fresher quotes returns the same row and keeps the
	// original snapshot.
	second, err := repo.GetOrCreate(ctx, "BTC", start, end, MarketMeta{
		Slug:    "btc-updown-2026-03-01-1200",
		TokenID: "tok-up",
		PYes:    0.70,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 0.55, second.PYes)
}

func TestGetOrCreateSeparatesSymbols(t *testing.T) {
	repo := NewWindowRepository().WithDB(testDB(t))
	ctx := context.Background()
	start, end := slot()

	btc, err := repo.GetOrCreate(ctx, "BTC", start, end, MarketMeta{})
	require.NoError(t, err)
	eth, err := repo.GetOrCreate(ctx, "ETH", start, end, MarketMeta{})
	require.NoError(t, err)

	assert.NotEqual(t, btc.ID, eth.ID)
}

func TestRecordOutcomeOnce(t *testing.T) {
	repo := NewWindowRepository().WithDB(testDB(t))
	ctx := context.Background()
	start, end := slot()

	window, err := repo.GetOrCreate(ctx, "BTC", start, end, MarketMeta{})
	require.NoError(t, err)

	require.NoError(t, repo.RecordOutcome(ctx, window.ID, model.WindowOutcomeUp, end))

	got, err := repo.FindByID(ctx, window.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FinalOutcome)
	assert.Equal(t, model.WindowOutcomeUp, *got.FinalOutcome)

	// A second outcome never overwrites the first.
	err = repo.RecordOutcome(ctx, window.ID, model.WindowOutcomeDown, end)
	require.ErrorIs(t, err, model.ErrImmutableWindow)

	got, err = repo.FindByID(ctx, window.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WindowOutcomeUp, *got.FinalOutcome)
}

func TestRecordOutcomeRejectsUnknownDirection(t *testing.T) {
	repo := NewWindowRepository().WithDB(testDB(t))
	ctx := context.Background()
	start, end := slot()

	window, err := repo.GetOrCreate(ctx, "BTC", start, end, MarketMeta{})
	require.NoError(t, err)

	var vErr *model.ValidationError
	err = repo.RecordOutcome(ctx, window.ID, "SIDEWAYS", end)
	require.ErrorAs(t, err, &vErr)
}

func TestUpdateSignalScoresImmutableAfterResolution(t *testing.T) {
	repo := NewWindowRepository().WithDB(testDB(t))
	ctx := context.Background()
	start, end := slot()

	window, err := repo.GetOrCreate(ctx, "BTC", start, end, MarketMeta{})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateSignalScores(ctx, window.ID, map[string]float64{
		"momentum_score": 0.8,
		"flow_score":     0.4,
	}))

	got, err := repo.FindByID(ctx, window.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.8, got.MomentumScore)
	assert.Equal(t, 0.4, got.FlowScore)

	require.NoError(t, repo.RecordOutcome(ctx, window.ID, model.WindowOutcomeDown, end))

	err = repo.UpdateSignalScores(ctx, window.ID, map[string]float64{"momentum_score": -0.5})
	require.ErrorIs(t, err, model.ErrImmutableWindow)
}

func TestFindUnresolvedEnded(t *testing.T) {
	repo := NewWindowRepository().WithDB(testDB(t))
	ctx := context.Background()
	start, end := slot()

	ended, err := repo.GetOrCreate(ctx, "BTC", start, end, MarketMeta{})
	require.NoError(t, err)

	// A later window that is still running.
	_, err = repo.GetOrCreate(ctx, "BTC", start.Add(15*time.Minute), end.Add(15*time.Minute), MarketMeta{})
	require.NoError(t, err)

	// An ended window that already resolved.
	resolved, err := repo.GetOrCreate(ctx, "ETH", start, end, MarketMeta{})
	require.NoError(t, err)
	require.NoError(t, repo.RecordOutcome(ctx, resolved.ID, model.WindowOutcomeUp, end))

	got, err := repo.FindUnresolvedEnded(ctx, end.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ended.ID, got[0].ID)
}
