package model

import "time"

const (
	SideUp   = "UP"
	SideDown = "DOWN"
)

// Position lifecycle states. A reversal is not a state of its own: the
// original position settles early and a new opposite-side position is opened
// in the same window.
const (
	PositionStateOpen        = "OPEN"
	PositionStateScaled      = "SCALED"
	PositionStateHedged      = "HEDGED"
	PositionStateExitPending = "EXIT_PENDING"
	PositionStateSettled     = "SETTLED"
)

// Terminal outcome tags written at settlement.
const (
	OutcomeWin        = "WIN"
	OutcomeLoss       = "LOSS"
	OutcomeStopLoss   = "STOP_LOSS"
	OutcomeTakeProfit = "TAKE_PROFIT"
	OutcomeReversed   = "REVERSED"
	OutcomeExpired    = "EXPIRED"
)

// Position is one directional stake inside a Window.
type Position struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	WindowID uint   `gorm:"index;not null;uniqueIndex:idx_positions_live_side,where:settled = false" json:"window_id"`
	Side     string `gorm:"size:10;not null;uniqueIndex:idx_positions_live_side" json:"side"`
	State    string `gorm:"size:20;not null;default:OPEN" json:"state"`

	EntryPrice float64 `json:"entry_price"`
	Size       float64 `json:"size"`
	BetUSD     float64 `json:"bet_usd"`
	Edge       float64 `json:"edge"`

	// Confidence snapshot at entry. Both scoring methods are retained so the
	// non-driving method can be compared offline.
	AdditiveConfidence float64 `json:"additive_confidence"`
	AdditiveBias       string  `gorm:"size:10" json:"additive_bias"`
	BayesianConfidence float64 `json:"bayesian_confidence"`
	BayesianBias       string  `gorm:"size:10" json:"bayesian_bias"`
	MarketPrior        float64 `json:"market_prior"`

	IsReversal bool `gorm:"not null;default:false" json:"is_reversal"`
	IsHedged   bool `gorm:"not null;default:false" json:"is_hedged"`
	ScaledIn   bool `gorm:"not null;default:false" json:"scaled_in"`
	Settled    bool `gorm:"not null;default:false" json:"settled"`

	// Settlement outputs
	ExitedEarly  bool     `gorm:"not null;default:false" json:"exited_early"`
	ExitPrice    *float64 `json:"exit_price,omitempty"`
	PnlUSD       *float64 `json:"pnl_usd,omitempty"`
	RoiPct       *float64 `json:"roi_pct,omitempty"`
	FinalOutcome *string  `gorm:"size:20" json:"final_outcome,omitempty"`

	// Version is bumped on every state transition. Concurrent writers that
	// lose the race get a StaleStateError instead of silently clobbering.
	Version int `gorm:"not null;default:0" json:"version"`

	HedgedAt  *time.Time `json:"hedged_at,omitempty"`
	ScaledAt  *time.Time `json:"scaled_at,omitempty"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// One position owns many exchange orders
	Orders []Order `gorm:"foreignKey:PositionID" json:"orders,omitempty"`
}

func (Position) TableName() string {
	return "positions"
}

// Terminal reports whether the position reached its immutable final state.
func (p *Position) Terminal() bool {
	return p.Settled || p.State == PositionStateSettled
}

// Stake returns the notional stake the ROI is computed against.
func (p *Position) Stake() float64 {
	return p.BetUSD
}
