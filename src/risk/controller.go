package risk

import (
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"edgeengine/src/model"
)

// Action is the transition the controller requests from the position
// manager. Rules are evaluated in fixed precedence order; first match wins.
type Action string

const (
	ActionNone       Action = "NONE"
	ActionStopLoss   Action = "STOP_LOSS"
	ActionTakeProfit Action = "TAKE_PROFIT"
	ActionReverse    Action = "REVERSE"
)

// Snapshot is one position's market view at evaluation time.
type Snapshot struct {
	Position *model.Position

	// Price is the current traded price of the position's side token.
	Price float64

	// Midpoint is the current order-book midpoint for the side token.
	Midpoint float64

	// ReversalConfidence is the driving confidence for the opposite side.
	ReversalConfidence float64

	// At is the evaluation instant.
	At time.Time
}

// Controller evaluates stop-loss, take-profit, and reversal conditions for
// non-settled positions. It holds no position state of its own; transitions
// are requested from the position manager by the polling loop.
type Controller struct {
	config  Config
	history *PriceHistory
}

func NewController(config Config) *Controller {
	retention := time.Duration(config.MediumLookbackSeconds)*time.Second + time.Minute
	return &Controller{
		config:  config,
		history: NewPriceHistory(retention),
	}
}

// Observe feeds a price tick into the multi-timeframe history.
func (c *Controller) Observe(position *model.Position, price float64, at time.Time) {
	c.history.Record(historyKey(position), price, at)
}

// Forget drops history for a settled position.
func (c *Controller) Forget(position *model.Position) {
	c.history.Forget(historyKey(position))
}

// Evaluate runs the rule chain for one position. A rule only fires when the
// triggering price move is consistent across the short and medium lookback
// windows, so a single noisy tick cannot force an exit.
func (c *Controller) Evaluate(snap Snapshot) Action {
	if snap.Position == nil || snap.Position.Terminal() {
		return ActionNone
	}

	if action := c.stopLoss(snap); action != ActionNone {
		return action
	}
	if action := c.takeProfit(snap); action != ActionNone {
		return action
	}
	return c.reversal(snap)
}

// stopLoss is a triple check: hedge age, reversal confidence, and an
// absolute price floor must all hold. The ordering favors reversal-based
// recovery over an outright loss-taking exit.
func (c *Controller) stopLoss(snap Snapshot) Action {
	position := snap.Position

	if !position.IsHedged || position.HedgedAt == nil {
		return ActionNone
	}

	hedgeAge := snap.At.Sub(*position.HedgedAt)
	minAge := time.Duration(c.config.HedgeMinAgeSeconds) * time.Second
	if hedgeAge <= minAge {
		return ActionNone
	}

	if snap.ReversalConfidence <= c.config.ReversalMinConfidence {
		return ActionNone
	}

	floorBreached := snap.Price <= c.config.PriceFloor || snap.Midpoint <= c.config.MidpointFloor
	if !floorBreached {
		return ActionNone
	}

	if !c.moveConsistent(position, snap.At, false) {
		logger.WithFields(map[string]interface{}{
			"position_id": position.ID,
			"price":       snap.Price,
			"midpoint":    snap.Midpoint,
		}).Debug("Stop-loss suppressed: price move inconsistent across lookbacks")

		return ActionNone
	}

	logger.WithFields(map[string]interface{}{
		"position_id":         position.ID,
		"hedge_age":           hedgeAge.String(),
		"reversal_confidence": snap.ReversalConfidence,
		"price":               snap.Price,
		"midpoint":            snap.Midpoint,
	}).Warn("Stop-loss triggered")

	return ActionStopLoss
}

func (c *Controller) takeProfit(snap Snapshot) Action {
	if snap.Price < c.config.TakeProfitCeiling {
		return ActionNone
	}

	if !c.moveConsistent(snap.Position, snap.At, true) {
		return ActionNone
	}

	logger.WithFields(map[string]interface{}{
		"position_id": snap.Position.ID,
		"price":       snap.Price,
	}).Info("Take-profit triggered")

	return ActionTakeProfit
}

func (c *Controller) reversal(snap Snapshot) Action {
	if snap.ReversalConfidence < c.config.ReversalEntryThreshold {
		return ActionNone
	}

	if !c.moveConsistent(snap.Position, snap.At, false) {
		return ActionNone
	}

	logger.WithFields(map[string]interface{}{
		"position_id":         snap.Position.ID,
		"reversal_confidence": snap.ReversalConfidence,
	}).Info("Reversal triggered")

	return ActionReverse
}

// moveConsistent checks that the short-lookback move and the preceding
// medium-lookback trend agree with the trigger direction. The medium trend
// excludes the short window so one fresh tick cannot dominate both
// timeframes. Missing history counts as consistent so a freshly opened
// position is not unprotected.
func (c *Controller) moveConsistent(position *model.Position, now time.Time, upward bool) bool {
	key := historyKey(position)
	shortLookback := time.Duration(c.config.ShortLookbackSeconds) * time.Second
	mediumLookback := time.Duration(c.config.MediumLookbackSeconds) * time.Second

	short, okShort := c.history.Move(key, shortLookback, now)
	medium, okMedium := c.history.MoveBetween(key, mediumLookback, shortLookback, now)
	if !okShort || !okMedium {
		return true
	}

	if upward {
		return short >= 0 && medium >= 0
	}
	return short <= 0 && medium <= 0
}

func historyKey(position *model.Position) string {
	return fmt.Sprintf("position:%d", position.ID)
}
