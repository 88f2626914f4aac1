package controller

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"edgeengine/src/confidence"
	"edgeengine/src/connectors"
	"edgeengine/src/engine"
	"edgeengine/src/model"
	"edgeengine/src/repository"
	"edgeengine/src/strategy"
)

type fakeMarketData struct {
	market  *connectors.MarketInfo
	book    *connectors.BookSnapshot
	balance float64
}

func (f *fakeMarketData) GetMarket(_ context.Context, _ string) (*connectors.MarketInfo, error) {
	return f.market, nil
}

func (f *fakeMarketData) GetBook(_ context.Context, _ string) (*connectors.BookSnapshot, error) {
	return f.book, nil
}

func (f *fakeMarketData) GetBalance(_ context.Context, _ string) (float64, error) {
	return f.balance, nil
}

type fakePositionService struct {
	opened   []engine.OpenRequest
	openErr  error
	scaleIns []uint
}

func (f *fakePositionService) OpenPosition(_ context.Context, req engine.OpenRequest) (*model.Position, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened = append(f.opened, req)
	return &model.Position{ID: 1, WindowID: req.WindowID, Side: req.Side}, nil
}

func (f *fakePositionService) ScaleIn(_ context.Context, positionID uint, _ string, _ float64, _ float64, _ time.Duration) error {
	f.scaleIns = append(f.scaleIns, positionID)
	return nil
}

func testController(t *testing.T, client *fakeMarketData, manager *fakePositionService) (*WindowController, *gorm.DB) {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Window{}, &model.Position{}, &model.Exception{}, &model.OHLCVSpot1m{},
	))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	confidenceEngine := confidence.NewEngine(confidence.GetConfig())
	signals := strategy.NewBuilder(strategy.GetConfig()).
		WithCandles(repository.NewSpotCandleRepository().WithDB(db))

	controller := NewWindowController(Config{BetPercent: 25, QuoteAsset: "USDC"},
		client, confidenceEngine, signals, manager).
		WithRepos(
			repository.NewWindowRepository().WithDB(db),
			repository.NewPositionRepository().WithDB(db),
			repository.NewExceptionRepository().WithDB(db),
		)

	return controller, db
}

func seedUptrend(t *testing.T, db *gorm.DB, end time.Time) {
	t.Helper()

	price := 50000.0
	for i := 16; i > 0; i-- {
		open := price
		price = price * 1.001

		require.NoError(t, db.Create(&model.OHLCVSpot1m{
			Datetime: end.Add(-time.Duration(i) * time.Minute),
			Open:     decimal.NewFromFloat(open),
			High:     decimal.NewFromFloat(price),
			Low:      decimal.NewFromFloat(open),
			Close:    decimal.NewFromFloat(price),
			Volume:   decimal.NewFromFloat(100),
			Symbol:   "BTCUSDT",
		}).Error)
	}
}

func upMarket() *connectors.MarketInfo {
	return &connectors.MarketInfo{
		Slug:        "btc-updown-2026-03-01-1200",
		ConditionID: "cond-1",
		TokenID:     "tok-up",
		TokenIDDown: "tok-down",
	}
}

func TestEvaluateOpensPositionOnStrongSignals(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)

	client := &fakeMarketData{
		market:  upMarket(),
		book:    &connectors.BookSnapshot{BestBid: 0.56, BestAsk: 0.60, Midpoint: 0.58, BidDepth: 700, AskDepth: 300},
		balance: 100,
	}
	manager := &fakePositionService{}
	controller, db := testController(t, client, manager)

	seedUptrend(t, db, now)

	require.NoError(t, controller.Evaluate(context.Background(), "BTC", now))

	require.Len(t, manager.opened, 1)
	req := manager.opened[0]
	assert.Equal(t, model.SideUp, req.Side)
	assert.Equal(t, "tok-up", req.TokenID)
	assert.InDelta(t, 0.58, req.Price, 1e-9)
	assert.InDelta(t, 25.0/0.58, req.Size, 1e-6, "25% of the balance at the side price")
	require.NotNil(t, req.Scores)
	assert.Equal(t, model.SideUp, req.Scores.AdditiveBias)

	// The window row was created with market identifiers and signal scores.
	var window model.Window
	require.NoError(t, db.Where("symbol = ?", "BTC").First(&window).Error)
	assert.Equal(t, "tok-up", window.TokenID)
	assert.Equal(t, "tok-down", window.TokenIDDown)
	assert.Greater(t, window.MomentumScore, 0.0)
}

func TestEvaluateNoEntryOnWeakSignals(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)

	// No candle history: every signal is neutral, confidence stays near 0.5.
	client := &fakeMarketData{
		market:  upMarket(),
		book:    &connectors.BookSnapshot{BestBid: 0.56, BestAsk: 0.60, Midpoint: 0.58},
		balance: 100,
	}
	manager := &fakePositionService{}
	controller, _ := testController(t, client, manager)

	require.NoError(t, controller.Evaluate(context.Background(), "BTC", now))
	assert.Empty(t, manager.opened)
	assert.Empty(t, manager.scaleIns)
}

func TestEvaluateScaleInPathForOpenPosition(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)

	client := &fakeMarketData{
		market:  upMarket(),
		book:    &connectors.BookSnapshot{BestBid: 0.56, BestAsk: 0.60, Midpoint: 0.58, BidDepth: 700, AskDepth: 300},
		balance: 100,
	}
	manager := &fakePositionService{}
	controller, db := testController(t, client, manager)

	seedUptrend(t, db, now)

	slotStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := &model.Window{
		Symbol:      "BTC",
		WindowStart: slotStart,
		WindowEnd:   slotStart.Add(15 * time.Minute),
		TokenID:     "tok-up",
		TokenIDDown: "tok-down",
	}
	require.NoError(t, db.Create(window).Error)

	position := &model.Position{
		WindowID:   window.ID,
		Side:       model.SideUp,
		State:      model.PositionStateOpen,
		EntryPrice: 0.55,
		Size:       10,
	}
	require.NoError(t, db.Create(position).Error)

	require.NoError(t, controller.Evaluate(context.Background(), "BTC", now))

	assert.Empty(t, manager.opened, "no second entry while a position is active")
	assert.Equal(t, []uint{position.ID}, manager.scaleIns)
}

func TestEvaluateSkipsResolvedWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)

	client := &fakeMarketData{
		market:  upMarket(),
		book:    &connectors.BookSnapshot{BestBid: 0.56, BestAsk: 0.60, Midpoint: 0.58},
		balance: 100,
	}
	manager := &fakePositionService{}
	controller, db := testController(t, client, manager)

	slotStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outcome := model.WindowOutcomeUp
	require.NoError(t, db.Create(&model.Window{
		Symbol:       "BTC",
		WindowStart:  slotStart,
		WindowEnd:    slotStart.Add(15 * time.Minute),
		FinalOutcome: &outcome,
	}).Error)

	require.NoError(t, controller.Evaluate(context.Background(), "BTC", now))
	assert.Empty(t, manager.opened)
	assert.Empty(t, manager.scaleIns)
}

func TestEvaluateDuplicateSideIsNotFatal(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)

	client := &fakeMarketData{
		market:  upMarket(),
		book:    &connectors.BookSnapshot{BestBid: 0.56, BestAsk: 0.60, Midpoint: 0.58, BidDepth: 700, AskDepth: 300},
		balance: 100,
	}
	manager := &fakePositionService{openErr: model.ErrDuplicateSide}
	controller, db := testController(t, client, manager)

	seedUptrend(t, db, now)

	require.NoError(t, controller.Evaluate(context.Background(), "BTC", now))
}

func TestPercentOfFloatSafeClamps(t *testing.T) {
	assert.Equal(t, 25.0, PercentOfFloatSafe(100, 25))
	assert.Equal(t, 1.0, PercentOfFloatSafe(100, 0))
	assert.Equal(t, 100.0, PercentOfFloatSafe(100, 150))
}
