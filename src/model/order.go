package model

import "time"

// Order kinds. LIMIT_SELL is the exit-plan order placed immediately after
// entry so a winning position auto-realizes without manual intervention.
const (
	OrderKindEntry     = "ENTRY"
	OrderKindLimitSell = "LIMIT_SELL"
	OrderKindScaleIn   = "SCALE_IN"
	OrderKindHedge     = "HEDGE"
)

// Order lifecycle statuses. Transitions are monotonic: a FILLED or CANCELLED
// order never goes back to PENDING.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
)

// Order is an exchange-facing instruction tied to exactly one Position.
// Rows are append-only; business logic never deletes them.
type Order struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	PositionID uint   `gorm:"index;not null" json:"position_id"`
	OrderType  string `gorm:"size:20;not null" json:"order_type"`

	// ClientOrderID is generated locally before submission so a retried
	// placement cannot double-fill on the exchange side.
	ClientOrderID   string `gorm:"size:40;index" json:"client_order_id"`
	ExchangeOrderID string `gorm:"size:100;index" json:"exchange_order_id"`

	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
	Status string  `gorm:"size:20;not null;default:PENDING" json:"order_status"`

	FilledAt    *time.Time `json:"filled_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// StatusRank orders statuses so reconciliation can enforce monotonic
// transitions. Terminal statuses share the top rank.
func StatusRank(status string) int {
	switch status {
	case OrderStatusPending:
		return 0
	case OrderStatusFilled, OrderStatusCancelled:
		return 1
	default:
		return -1
	}
}

// Terminal reports whether the order reached a final status.
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCancelled
}
