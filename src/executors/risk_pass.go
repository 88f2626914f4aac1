package executors

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"edgeengine/src/confidence"
	"edgeengine/src/connectors"
	"edgeengine/src/engine"
	"edgeengine/src/model"
	"edgeengine/src/risk"
)

// riskPass sweeps every active position through the risk rule chain and
// applies the requested transition.
func (l *loop) riskPass(ctx context.Context) {
	now := time.Now().UTC()

	positions, err := l.positions.FindActive(ctx)
	if err != nil {
		logger.WithError(err).Error("Risk pass failed to load active positions")
		return
	}

	for i := range positions {
		position := &positions[i]

		err := l.evaluatePosition(ctx, position, now)
		if err != nil {
			if errors.Is(err, model.ErrTerminalState) || errors.Is(err, model.ErrStaleState) {
				// Another loop settled or transitioned the position first.
				logger.WithFields(map[string]interface{}{
					"position_id": position.ID,
				}).WithError(err).Debug("Risk action lost the race, skipping")
				continue
			}

			logger.WithFields(map[string]interface{}{
				"position_id": position.ID,
			}).WithError(err).Error("Risk evaluation failed")
		}
	}
}

func (l *loop) evaluatePosition(ctx context.Context, position *model.Position, now time.Time) error {
	window, err := l.windows.FindByID(ctx, position.WindowID)
	if err != nil {
		return err
	}
	if window == nil {
		return nil
	}

	// All probabilities derive from the UP token's book so both sides of
	// the market share one consistent view.
	book, err := l.client.GetBook(ctx, window.TokenID)
	if err != nil {
		return err
	}

	pYes := book.Midpoint
	if pYes == 0 {
		pYes = (book.BestBid + book.BestAsk) / 2
	}

	sidePrice := sideExitPrice(position.Side, book, pYes)
	sideMid := pYes
	if position.Side == model.SideDown {
		sideMid = 1 - pYes
	}

	l.riskCtl.Observe(position, sidePrice, now)

	reversalConf, bias, scores, err := l.reversalConfidence(ctx, window, position, book, pYes, now)
	if err != nil {
		return err
	}

	action := l.riskCtl.Evaluate(risk.Snapshot{
		Position:           position,
		Price:              sidePrice,
		Midpoint:           sideMid,
		ReversalConfidence: reversalConf,
		At:                 now,
	})

	switch action {
	case risk.ActionStopLoss:
		if err := l.manager.ExitEarly(ctx, position.ID, sidePrice, model.OutcomeStopLoss); err != nil {
			return err
		}
		l.riskCtl.Forget(position)
		return nil

	case risk.ActionTakeProfit:
		if err := l.manager.ExitEarly(ctx, position.ID, sidePrice, model.OutcomeTakeProfit); err != nil {
			return err
		}
		l.riskCtl.Forget(position)
		return nil

	case risk.ActionReverse:
		opposite := oppositeSide(position.Side)
		oppositePrice := 1 - sideMid

		_, err := l.manager.Reverse(ctx, position.ID, sidePrice, engine.OpenRequest{
			WindowID: window.ID,
			Side:     opposite,
			TokenID:  window.TokenForSide(opposite),
			Price:    oppositePrice,
			Size:     position.Size,
			Edge:     reversalConf - oppositePrice,
			Scores:   scores,
		})
		if err != nil {
			return err
		}
		l.riskCtl.Forget(position)
		return nil
	}

	return l.maybeHedge(ctx, window, position, bias, reversalConf, sideMid)
}

// maybeHedge opens an opposing order when the trend has flipped but the
// opposite-side confidence is below the full reversal threshold.
func (l *loop) maybeHedge(
	ctx context.Context,
	window *model.Window,
	position *model.Position,
	bias string,
	reversalConf float64,
	sideMid float64,
) error {

	if position.IsHedged || bias == position.Side {
		return nil
	}
	if reversalConf < l.riskConfig.ReversalMinConfidence {
		return nil
	}

	opposite := oppositeSide(position.Side)
	err := l.manager.Hedge(ctx, position.ID, window.TokenForSide(opposite), 1-sideMid)
	if err != nil {
		var vErr *model.ValidationError
		if errors.As(err, &vErr) {
			return nil
		}
		return err
	}

	logger.WithFields(map[string]interface{}{
		"position_id":         position.ID,
		"reversal_confidence": reversalConf,
	}).Info("Hedge opened on trend disagreement")

	return nil
}

// reversalConfidence scores the current signals and expresses the driving
// confidence from the opposite side's point of view.
func (l *loop) reversalConfidence(
	ctx context.Context,
	window *model.Window,
	position *model.Position,
	book *connectors.BookSnapshot,
	pYes float64,
	now time.Time,
) (float64, string, *confidence.Result, error) {

	signals, err := l.signals.Build(ctx, window.Symbol, book, pYes, now)
	if err != nil {
		return 0, "", nil, err
	}

	scores, err := l.confidence.Score(confidence.Inputs{MarketProb: pYes, Signals: signals})
	if err != nil {
		return 0, "", nil, err
	}

	conf, bias := l.confidence.Driving(scores)
	if bias == position.Side {
		return 1 - conf, bias, scores, nil
	}
	return conf, bias, scores, nil
}

// sideExitPrice is the realizable exit price for a side given the UP book.
// Selling UP hits the UP bid; selling DOWN is equivalent to buying UP at
// the ask.
func sideExitPrice(side string, book *connectors.BookSnapshot, pYes float64) float64 {
	if side == model.SideDown {
		if book.BestAsk > 0 {
			return 1 - book.BestAsk
		}
		return 1 - pYes
	}

	if book.BestBid > 0 {
		return book.BestBid
	}
	return pYes
}

func oppositeSide(side string) string {
	if side == model.SideDown {
		return model.SideUp
	}
	return model.SideDown
}
