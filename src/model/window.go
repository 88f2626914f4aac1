package model

import "time"

const (
	WindowOutcomeUp   = "UP"
	WindowOutcomeDown = "DOWN"
)

// Window is one 15-minute trading interval for a single symbol.
// A window becomes immutable once FinalOutcome is recorded.
type Window struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"size:20;not null;uniqueIndex:idx_windows_symbol_slot" json:"symbol"`
	WindowStart time.Time `gorm:"not null;uniqueIndex:idx_windows_symbol_slot" json:"window_start"`
	WindowEnd   time.Time `gorm:"not null" json:"window_end"`

	// Market identifiers. TokenID is the UP outcome token; TokenIDDown its
	// complement.
	Slug        string `gorm:"size:200" json:"slug"`
	TokenID     string `gorm:"size:100" json:"token_id"`
	TokenIDDown string `gorm:"size:100" json:"token_id_down"`
	ConditionID string `gorm:"size:100" json:"condition_id"`

	// Market snapshot at evaluation time
	PYes      float64 `json:"p_yes"` // market-quoted probability of the UP outcome
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	Imbalance float64 `json:"imbalance"` // order-book imbalance, [-1, 1]

	// Aggregate signal scores persisted for offline analysis
	MomentumScore   float64 `json:"momentum_score"`
	FlowScore       float64 `json:"flow_score"`
	DivergenceScore float64 `json:"divergence_score"`
	FundingScore    float64 `json:"funding_score"`
	LeadLagScore    float64 `json:"lead_lag_score"`

	// Nullable until the market resolves. UP or DOWN.
	FinalOutcome *string    `gorm:"size:10" json:"final_outcome,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// One window owns many positions
	Positions []Position `gorm:"foreignKey:WindowID" json:"positions,omitempty"`
}

func (Window) TableName() string {
	return "windows"
}

// TokenForSide returns the outcome token traded for a side.
func (w *Window) TokenForSide(side string) string {
	if side == SideDown {
		return w.TokenIDDown
	}
	return w.TokenID
}

// Resolved reports whether the window outcome has been recorded.
func (w *Window) Resolved() bool {
	return w.FinalOutcome != nil
}

// Payout returns the binary payout for a side given the recorded outcome.
func (w *Window) Payout(side string) float64 {
	if w.FinalOutcome == nil {
		return 0
	}
	if *w.FinalOutcome == side {
		return 1.0
	}
	return 0.0
}
