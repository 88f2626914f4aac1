package engine

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"edgeengine/src/confidence"
	"edgeengine/src/database"
	"edgeengine/src/model"
	"edgeengine/src/repository"
	"edgeengine/src/settlement"
	"edgeengine/src/tracker"
)

// lockRegistry hands out one mutex per position so concurrent monitoring
// loops serialize per position instead of contending on a global lock.
// Entries are refcounted: an entry is only dropped once the last holder
// releases it, so a waiter blocked on the mutex can never be handed a
// fresh one while another goroutine still owns the old.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[uint]*positionLock
}

type positionLock struct {
	sync.Mutex
	refs int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[uint]*positionLock)}
}

func (r *lockRegistry) acquire(positionID uint) *positionLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[positionID]
	if !ok {
		lock = &positionLock{}
		r.locks[positionID] = lock
	}
	lock.refs++
	return lock
}

// release must be called after the lock is unlocked.
func (r *lockRegistry) release(positionID uint, lock *positionLock) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock.refs--
	if lock.refs <= 0 {
		delete(r.locks, positionID)
	}
}

// OpenRequest carries everything needed to open one directional position.
type OpenRequest struct {
	WindowID   uint
	Side       string
	TokenID    string
	Price      float64
	Size       float64
	Edge       float64
	Scores     *confidence.Result
	IsReversal bool
}

// PositionManager is the sole writer of position state. Every transition
// runs inside one transaction with the order tracker bound to the same
// handle, and holds the position's mutex for its whole duration.
type PositionManager struct {
	config     Config
	db         *gorm.DB
	windows    *repository.WindowRepository
	positions  *repository.PositionRepository
	exchange   tracker.ExchangeClient
	scaleTiers []ScaleTier
	locks      *lockRegistry
}

// NewPositionManager creates a manager bound to the main database.
func NewPositionManager(config Config, exchange tracker.ExchangeClient) *PositionManager {
	return &PositionManager{
		config:     config,
		db:         database.MainDB,
		windows:    repository.NewWindowRepository(),
		positions:  repository.NewPositionRepository(),
		exchange:   exchange,
		scaleTiers: defaultScaleTiers,
		locks:      newLockRegistry(),
	}
}

// WithDB rebinds the manager and its repositories to another database
// handle. Useful for tests.
func (m *PositionManager) WithDB(db *gorm.DB) *PositionManager {
	return &PositionManager{
		config:     m.config,
		db:         db,
		windows:    m.windows.WithDB(db),
		positions:  m.positions.WithDB(db),
		exchange:   m.exchange,
		scaleTiers: m.scaleTiers,
		locks:      m.locks,
	}
}

// OpenPosition runs the NONE to OPEN transition: duplicate-side and minimum
// size guards, the ENTRY order, and the exit-plan LIMIT_SELL placed
// immediately after so a winning position auto-realizes.
func (m *PositionManager) OpenPosition(ctx context.Context, req OpenRequest) (*model.Position, error) {
	if req.Size < m.config.MinOrderSize {
		return nil, model.NewValidationError("size", "below exchange minimum")
	}
	if req.Side != model.SideUp && req.Side != model.SideDown {
		return nil, model.NewValidationError("side", "must be UP or DOWN")
	}
	if req.Scores == nil {
		return nil, model.NewValidationError("scores", "confidence snapshot required")
	}

	position := &model.Position{
		WindowID:           req.WindowID,
		Side:               req.Side,
		State:              model.PositionStateOpen,
		EntryPrice:         req.Price,
		Size:               req.Size,
		BetUSD:             req.Price * req.Size,
		Edge:               req.Edge,
		AdditiveConfidence: req.Scores.AdditiveConfidence,
		AdditiveBias:       req.Scores.AdditiveBias,
		BayesianConfidence: req.Scores.BayesianConfidence,
		BayesianBias:       req.Scores.BayesianBias,
		MarketPrior:        req.Scores.MarketPrior,
		IsReversal:         req.IsReversal,
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.positions.WithDB(tx).Create(ctx, position); err != nil {
			return err
		}

		orders := tracker.NewOrderTracker(m.exchange).WithDB(tx)

		if _, err := orders.CreateOrder(ctx, tracker.CreateOrderRequest{
			PositionID: position.ID,
			OrderType:  model.OrderKindEntry,
			TokenID:    req.TokenID,
			Side:       "BUY",
			Price:      req.Price,
			Size:       req.Size,
		}); err != nil {
			return err
		}

		_, err := orders.CreateOrder(ctx, tracker.CreateOrderRequest{
			PositionID: position.ID,
			OrderType:  model.OrderKindLimitSell,
			TokenID:    req.TokenID,
			Side:       "SELL",
			Price:      m.config.ExitPlanPrice,
			Size:       req.Size,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"position_id": position.ID,
		"window_id":   req.WindowID,
		"side":        req.Side,
		"entry_price": req.Price,
		"size":        req.Size,
		"is_reversal": req.IsReversal,
	}).Info("Position opened")

	return position, nil
}

// ScaleIn runs the OPEN to SCALED transition. It fires at most once per
// position, gated by the tier table, and re-prices the exit-plan order only
// after the scale-in order has been placed and the old exit order is
// confirmed cancelled.
func (m *PositionManager) ScaleIn(
	ctx context.Context,
	positionID uint,
	tokenID string,
	drivingConfidence float64,
	currentPrice float64,
	timeLeft time.Duration,
) error {

	lock := m.locks.acquire(positionID)
	lock.Lock()
	defer m.locks.release(positionID, lock)
	defer lock.Unlock()

	position, err := m.loadMutable(ctx, positionID)
	if err != nil {
		return err
	}

	if position.ScaledIn {
		return model.NewValidationError("scaled_in", "position already scaled in")
	}
	if position.State != model.PositionStateOpen {
		return model.ErrStaleState
	}

	allowed := ShouldScaleIn(
		m.scaleTiers,
		timeLeft,
		drivingConfidence,
		currentPrice,
		time.Duration(m.config.DefaultScaleWindowSeconds)*time.Second,
		m.config.DefaultScaleMinConfidence,
	)
	if !allowed {
		logger.WithFields(map[string]interface{}{
			"position_id": positionID,
			"confidence":  drivingConfidence,
			"price":       currentPrice,
			"time_left":   timeLeft.String(),
		}).Debug("Scale-in thresholds not met")

		return nil
	}

	addSize := position.Size * m.config.ScaleInFraction

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := tracker.NewOrderTracker(m.exchange).WithDB(tx)

		// Scale-in fills first. The exit order still covers the old size
		// until the cancel is confirmed, so there is no moment where the
		// added stake is unprotected by a stale larger exit.
		scaleOrder, err := orders.CreateOrder(ctx, tracker.CreateOrderRequest{
			PositionID:  position.ID,
			OrderType:   model.OrderKindScaleIn,
			TokenID:     tokenID,
			Side:        "BUY",
			Price:       currentPrice,
			Size:        addSize,
			TimeInForce: "IOC",
		})
		if err != nil {
			return err
		}

		// An IOC that did not match adds no stake. The position stays OPEN
		// and un-scaled so a later tier can retry; reconciliation cancels
		// the resting order record.
		if scaleOrder.Status != model.OrderStatusFilled {
			logger.WithFields(map[string]interface{}{
				"position_id": position.ID,
				"order_id":    scaleOrder.ID,
				"ack_status":  scaleOrder.Status,
			}).Warn("Scale-in order not matched, size unchanged")

			return nil
		}

		newSize := position.Size + addSize

		if err := m.repriceExitPlan(ctx, tx, orders, position.ID, tokenID, newSize); err != nil {
			return err
		}

		now := time.Now().UTC()
		fromVersion := position.Version
		position.State = model.PositionStateScaled
		position.ScaledIn = true
		position.ScaledAt = &now
		position.Size = newSize
		position.BetUSD += currentPrice * addSize

		if err := m.positions.WithDB(tx).UpdateTransition(ctx, position, fromVersion); err != nil {
			return err
		}

		logger.WithFields(map[string]interface{}{
			"position_id": position.ID,
			"added_size":  addSize,
			"new_size":    newSize,
			"price":       currentPrice,
		}).Info("Position scaled in")

		return nil
	})
}

// repriceExitPlan replaces the open LIMIT_SELL with one covering the new
// size, via the tracker's confirmed cancel-then-replace flow.
func (m *PositionManager) repriceExitPlan(
	ctx context.Context,
	tx *gorm.DB,
	orders *tracker.OrderTracker,
	positionID uint,
	tokenID string,
	newSize float64,
) error {

	openExit, err := repository.NewOrderRepository().WithDB(tx).
		FindOpenByPositionAndType(ctx, positionID, model.OrderKindLimitSell)
	if err != nil {
		return err
	}
	if openExit == nil {
		// Exit plan already filled or cancelled; nothing to re-price.
		return nil
	}

	_, err = orders.CancelThenReplace(ctx, openExit.ID, tracker.CreateOrderRequest{
		PositionID: positionID,
		OrderType:  model.OrderKindLimitSell,
		TokenID:    tokenID,
		Side:       "SELL",
		Price:      m.config.ExitPlanPrice,
		Size:       newSize,
	})
	return err
}

// Hedge runs the OPEN/SCALED to HEDGED transition: a new order on the
// opposite side, not a new position.
func (m *PositionManager) Hedge(
	ctx context.Context,
	positionID uint,
	oppositeTokenID string,
	price float64,
) error {

	lock := m.locks.acquire(positionID)
	lock.Lock()
	defer m.locks.release(positionID, lock)
	defer lock.Unlock()

	position, err := m.loadMutable(ctx, positionID)
	if err != nil {
		return err
	}

	if position.IsHedged {
		return model.NewValidationError("is_hedged", "position already hedged")
	}
	if position.State != model.PositionStateOpen && position.State != model.PositionStateScaled {
		return model.ErrStaleState
	}

	hedgeSize := position.Size * m.config.HedgeFraction

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := tracker.NewOrderTracker(m.exchange).WithDB(tx)

		if _, err := orders.CreateOrder(ctx, tracker.CreateOrderRequest{
			PositionID: position.ID,
			OrderType:  model.OrderKindHedge,
			TokenID:    oppositeTokenID,
			Side:       "BUY",
			Price:      price,
			Size:       hedgeSize,
		}); err != nil {
			return err
		}

		now := time.Now().UTC()
		fromVersion := position.Version
		position.State = model.PositionStateHedged
		position.IsHedged = true
		position.HedgedAt = &now

		if err := m.positions.WithDB(tx).UpdateTransition(ctx, position, fromVersion); err != nil {
			return err
		}

		logger.WithFields(map[string]interface{}{
			"position_id": position.ID,
			"hedge_size":  hedgeSize,
			"price":       price,
		}).Info("Position hedged")

		return nil
	})
}

// ExitEarly settles a position against a realized market price before the
// window resolves, tagging it with the given terminal outcome.
func (m *PositionManager) ExitEarly(
	ctx context.Context,
	positionID uint,
	exitPrice float64,
	outcomeTag string,
) error {

	lock := m.locks.acquire(positionID)
	lock.Lock()
	defer m.locks.release(positionID, lock)
	defer lock.Unlock()

	position, err := m.loadMutable(ctx, positionID)
	if err != nil {
		return err
	}

	result := settlement.EarlyExit(position.EntryPrice, exitPrice, position.Size, m.config.FeeRate)

	return m.settle(ctx, position, result, outcomeTag, true)
}

// SettleOnResolution settles a position against the binary payout once its
// window carries a final outcome.
func (m *PositionManager) SettleOnResolution(ctx context.Context, positionID uint) error {
	lock := m.locks.acquire(positionID)
	lock.Lock()
	defer m.locks.release(positionID, lock)
	defer lock.Unlock()

	position, err := m.loadMutable(ctx, positionID)
	if err != nil {
		return err
	}

	window, err := m.windows.FindByID(ctx, position.WindowID)
	if err != nil {
		return err
	}
	if window == nil || !window.Resolved() {
		return model.NewValidationError("window", "not resolved yet")
	}

	payout := window.Payout(position.Side)
	result := settlement.Resolution(position.EntryPrice, payout, position.Size, m.config.FeeRate)

	outcomeTag := model.OutcomeLoss
	if payout > 0 {
		outcomeTag = model.OutcomeWin
	}

	return m.settle(ctx, position, result, outcomeTag, false)
}

// Reverse settles the current position early with the REVERSED tag and opens
// a new position on the opposite side of the same window.
func (m *PositionManager) Reverse(
	ctx context.Context,
	positionID uint,
	exitPrice float64,
	opposite OpenRequest,
) (*model.Position, error) {

	if err := m.ExitEarly(ctx, positionID, exitPrice, model.OutcomeReversed); err != nil {
		return nil, err
	}

	opposite.IsReversal = true
	return m.OpenPosition(ctx, opposite)
}

func (m *PositionManager) settle(
	ctx context.Context,
	position *model.Position,
	result settlement.Outcome,
	outcomeTag string,
	exitedEarly bool,
) error {

	now := time.Now().UTC()
	fromVersion := position.Version

	position.State = model.PositionStateSettled
	position.Settled = true
	position.ExitedEarly = exitedEarly
	position.ExitPrice = &result.ExitPrice
	position.PnlUSD = &result.PnlUSD
	position.RoiPct = &result.RoiPct
	position.FinalOutcome = &outcomeTag
	position.SettledAt = &now

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return m.positions.WithDB(tx).UpdateTransition(ctx, position, fromVersion)
	})
	if err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"position_id":   position.ID,
		"final_outcome": outcomeTag,
		"exit_price":    result.ExitPrice,
		"pnl_usd":       result.PnlUSD,
		"roi_pct":       result.RoiPct,
		"exited_early":  exitedEarly,
	}).Info("Position settled")

	return nil
}

// loadMutable fetches a position and rejects transitions on terminal state
// up front, before any exchange call.
func (m *PositionManager) loadMutable(ctx context.Context, positionID uint) (*model.Position, error) {
	position, err := m.positions.FindByID(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, gorm.ErrRecordNotFound
	}
	if position.Terminal() {
		logger.WithField("position_id", positionID).
			Warn("Transition attempted on settled position")
		return nil, model.ErrTerminalState
	}
	return position, nil
}
