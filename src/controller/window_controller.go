package controller

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"edgeengine/src/confidence"
	"edgeengine/src/connectors"
	"edgeengine/src/engine"
	"edgeengine/src/model"
	"edgeengine/src/repository"
	"edgeengine/src/strategy"
	"edgeengine/src/utils"
)

// MarketDataClient is the slice of the CLOB client the controller needs.
type MarketDataClient interface {
	GetMarket(ctx context.Context, slug string) (*connectors.MarketInfo, error)
	GetBook(ctx context.Context, tokenID string) (*connectors.BookSnapshot, error)
	GetBalance(ctx context.Context, asset string) (float64, error)
}

// PositionService is the slice of the position manager the controller drives.
type PositionService interface {
	OpenPosition(ctx context.Context, req engine.OpenRequest) (*model.Position, error)
	ScaleIn(ctx context.Context, positionID uint, tokenID string, drivingConfidence float64, currentPrice float64, timeLeft time.Duration) error
}

// WindowController runs the per-tick evaluation flow for one symbol:
// resolve the window, build signals, score confidence, and request entry or
// scale-in decisions from the position manager.
type WindowController struct {
	config     Config
	client     MarketDataClient
	confidence *confidence.Engine
	signals    *strategy.Builder
	manager    PositionService
	windows    *repository.WindowRepository
	positions  *repository.PositionRepository
	exceptions *repository.ExceptionRepository
}

func NewWindowController(
	config Config,
	client MarketDataClient,
	confidenceEngine *confidence.Engine,
	signals *strategy.Builder,
	manager PositionService,
) *WindowController {
	return &WindowController{
		config:     config,
		client:     client,
		confidence: confidenceEngine,
		signals:    signals,
		manager:    manager,
		windows:    repository.NewWindowRepository(),
		positions:  repository.NewPositionRepository(),
		exceptions: repository.NewExceptionRepository(),
	}
}

// WithRepos overrides the controller's repositories. Used by tests.
func (c *WindowController) WithRepos(
	windows *repository.WindowRepository,
	positions *repository.PositionRepository,
	exceptions *repository.ExceptionRepository,
) *WindowController {
	clone := *c
	clone.windows = windows
	clone.positions = positions
	clone.exceptions = exceptions
	return &clone
}

// Evaluate runs one evaluation tick for a symbol.
func (c *WindowController) Evaluate(ctx context.Context, symbol string, now time.Time) error {
	slotStart, slotEnd := utils.SlotBounds(now)

	slug := connectors.MarketSlug(symbol, slotStart)
	market, err := c.client.GetMarket(ctx, slug)
	if err != nil {
		Capture(ctx, c.exceptions, "WindowController", "controller", "client.GetMarket", "error", err,
			map[string]interface{}{"symbol": symbol, "slug": slug})
		return err
	}

	book, err := c.client.GetBook(ctx, market.TokenID)
	if err != nil {
		Capture(ctx, c.exceptions, "WindowController", "controller", "client.GetBook", "error", err,
			map[string]interface{}{"symbol": symbol, "token_id": market.TokenID})
		return err
	}

	pYes := marketProb(book)

	window, err := c.windows.GetOrCreate(ctx, symbol, slotStart, slotEnd, repository.MarketMeta{
		Slug:        market.Slug,
		TokenID:     market.TokenID,
		TokenIDDown: market.TokenIDDown,
		ConditionID: market.ConditionID,
		PYes:        pYes,
		BestBid:     book.BestBid,
		BestAsk:     book.BestAsk,
		Imbalance:   book.Imbalance(),
	})
	if err != nil {
		return err
	}

	if window.Resolved() {
		logger.WithFields(map[string]interface{}{
			"symbol":    symbol,
			"window_id": window.ID,
		}).Debug("Window already resolved, skipping evaluation")
		return nil
	}

	signals, err := c.signals.Build(ctx, symbol, book, pYes, now)
	if err != nil {
		return err
	}

	if err := c.persistScores(ctx, window.ID, signals); err != nil && !errors.Is(err, model.ErrImmutableWindow) {
		return err
	}

	scores, err := c.confidence.Score(confidence.Inputs{MarketProb: pYes, Signals: signals})
	if err != nil {
		Capture(ctx, c.exceptions, "WindowController", "controller", "confidence.Score", "error", err,
			map[string]interface{}{"symbol": symbol, "window_id": window.ID})
		return err
	}

	drivingConfidence, bias := c.confidence.Driving(scores)

	active, err := c.positions.FindActiveByWindow(ctx, window.ID)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return c.maybeScaleIn(ctx, window, &active[0], drivingConfidence, bias, pYes, now)
	}

	return c.maybeEnter(ctx, window, scores, drivingConfidence, bias, pYes)
}

// maybeScaleIn forwards a scale-in request when the driving bias still
// agrees with the open position. The manager applies the tier table.
func (c *WindowController) maybeScaleIn(
	ctx context.Context,
	window *model.Window,
	position *model.Position,
	drivingConfidence float64,
	bias string,
	pYes float64,
	now time.Time,
) error {

	if position.ScaledIn || bias != position.Side {
		return nil
	}

	sidePrice := sideProb(position.Side, pYes)

	err := c.manager.ScaleIn(ctx, position.ID, window.TokenForSide(position.Side),
		drivingConfidence, sidePrice, utils.TimeLeft(now))
	if err != nil {
		var vErr *model.ValidationError
		if errors.Is(err, model.ErrStaleState) || errors.As(err, &vErr) {
			// Another loop transitioned the position first; re-evaluated
			// next tick from fresh state.
			logger.WithFields(map[string]interface{}{
				"position_id": position.ID,
			}).WithError(err).Debug("Scale-in lost the race, skipping")
			return nil
		}

		Capture(ctx, c.exceptions, "WindowController", "controller", "manager.ScaleIn", "error", err,
			map[string]interface{}{"position_id": position.ID})
		return err
	}

	return nil
}

func (c *WindowController) maybeEnter(
	ctx context.Context,
	window *model.Window,
	scores *confidence.Result,
	drivingConfidence float64,
	bias string,
	pYes float64,
) error {

	sidePrice := sideProb(bias, pYes)

	if !c.confidence.EntryAllowed(scores, sidePrice) {
		logger.WithFields(map[string]interface{}{
			"symbol":     window.Symbol,
			"confidence": drivingConfidence,
			"bias":       bias,
			"side_price": sidePrice,
		}).Debug("Entry gates not met")
		return nil
	}

	balance, err := c.client.GetBalance(ctx, c.config.QuoteAsset)
	if err != nil {
		Capture(ctx, c.exceptions, "WindowController", "controller", "client.GetBalance", "error", err,
			map[string]interface{}{"asset": c.config.QuoteAsset})
		return err
	}

	betUSD := PercentOfFloatSafe(balance, c.config.BetPercent)
	if sidePrice <= 0 {
		return nil
	}
	size := betUSD / sidePrice

	_, err = c.manager.OpenPosition(ctx, engine.OpenRequest{
		WindowID: window.ID,
		Side:     bias,
		TokenID:  window.TokenForSide(bias),
		Price:    sidePrice,
		Size:     size,
		Edge:     drivingConfidence - sidePrice,
		Scores:   scores,
	})
	if err != nil {
		if errors.Is(err, model.ErrDuplicateSide) {
			logger.WithFields(map[string]interface{}{
				"window_id": window.ID,
				"side":      bias,
			}).Debug("Concurrent entry already holds the side")
			return nil
		}

		var vErr *model.ValidationError
		if errors.As(err, &vErr) {
			logger.WithFields(map[string]interface{}{
				"window_id": window.ID,
				"side":      bias,
				"size":      size,
			}).WithError(err).Warn("Entry rejected before exchange call")
			return nil
		}

		Capture(ctx, c.exceptions, "WindowController", "controller", "manager.OpenPosition", "error", err,
			map[string]interface{}{"window_id": window.ID, "side": bias, "size": size})
		return err
	}

	return nil
}

func (c *WindowController) persistScores(ctx context.Context, windowID uint, signals []confidence.Signal) error {
	updates := map[string]float64{}
	for _, s := range signals {
		switch s.Name {
		case confidence.SignalMomentum:
			updates["momentum_score"] = s.Score
		case confidence.SignalFlow:
			updates["flow_score"] = s.Score
		case confidence.SignalDivergence:
			updates["divergence_score"] = s.Score
		case confidence.SignalFunding:
			updates["funding_score"] = s.Score
		case confidence.SignalLeadLag:
			updates["lead_lag_score"] = s.Score
		}
	}
	if len(updates) == 0 {
		return nil
	}
	return c.windows.UpdateSignalScores(ctx, windowID, updates)
}

// marketProb derives the UP probability from the book, preferring the
// reported midpoint.
func marketProb(book *connectors.BookSnapshot) float64 {
	if book.Midpoint > 0 {
		return book.Midpoint
	}
	return (book.BestBid + book.BestAsk) / 2
}

// sideProb converts the UP probability into the traded price for a side.
func sideProb(side string, pYes float64) float64 {
	if side == model.SideDown {
		return 1 - pYes
	}
	return pYes
}
