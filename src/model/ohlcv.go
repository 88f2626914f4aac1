package model

import (
	"time"

	"github.com/shopspring/decimal"

	"edgeengine/src/utils"
)

// OHLCVBase is the exchange-agnostic candle shape returned by the spot
// backfill before it is normalized into a storage table.
type OHLCVBase struct {
	ID       uint            `json:"id"`
	Datetime time.Time       `json:"datetime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
	Symbol   string          `json:"symbol"`
}

// OHLCVSpot1m holds one-minute spot candles from the reference exchange.
// The momentum and cross-exchange lead/lag signal sources read this table.
type OHLCVSpot1m struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	Datetime time.Time       `gorm:"uniqueIndex:idx_spot1m_dt_symbol" json:"datetime"`
	Open     decimal.Decimal `gorm:"type:decimal(20,8)" json:"open"`
	High     decimal.Decimal `gorm:"type:decimal(20,8)" json:"high"`
	Low      decimal.Decimal `gorm:"type:decimal(20,8)" json:"low"`
	Close    decimal.Decimal `gorm:"type:decimal(20,8)" json:"close"`
	Volume   decimal.Decimal `gorm:"type:decimal(20,8)" json:"volume"`
	Symbol   string          `gorm:"size:20;uniqueIndex:idx_spot1m_dt_symbol" json:"symbol"`
}

func (OHLCVSpot1m) TableName() string {
	return "ohlcv_spot_1m"
}

// ConvertToOHLCVSpot1m snaps the candle to the minute boundary.
func (o *OHLCVBase) ConvertToOHLCVSpot1m() *OHLCVSpot1m {
	return &OHLCVSpot1m{
		ID:       o.ID,
		Datetime: utils.ResetTime(o.Datetime, "minute"),
		Open:     o.Open,
		High:     o.High,
		Low:      o.Low,
		Close:    o.Close,
		Volume:   o.Volume,
		Symbol:   o.Symbol,
	}
}
