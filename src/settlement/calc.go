package settlement

import "github.com/shopspring/decimal"

// Outcome carries the audit fields written at settlement. Both settlement
// paths fill the same fields so downstream analysis reads one shape.
type Outcome struct {
	ExitPrice float64
	PnlUSD    float64
	RoiPct    float64
}

// EarlyExit computes realized PnL for a position closed against a market
// trade price before the window resolved.
//
// Fees are modeled as feeRate applied to the exit notional. The source
// venue's exact fee rounding is not reproducible, so the engine uses this
// single documented model and defaults feeRate to zero.
func EarlyExit(entryPrice, exitPrice, size, feeRate float64) Outcome {
	return settle(entryPrice, exitPrice, size, feeRate)
}

// Resolution computes realized PnL against the binary payout. Payout is 1.0
// when the window resolved in the position's favor, otherwise 0.0.
func Resolution(entryPrice, payout, size, feeRate float64) Outcome {
	return settle(entryPrice, payout, size, feeRate)
}

func settle(entryPrice, exitPrice, size, feeRate float64) Outcome {
	entry := decimal.NewFromFloat(entryPrice)
	exit := decimal.NewFromFloat(exitPrice)
	qty := decimal.NewFromFloat(size)

	fee := decimal.NewFromFloat(feeRate).Mul(exit).Mul(qty)
	pnl := exit.Sub(entry).Mul(qty).Sub(fee)

	stake := entry.Mul(qty)
	roi := decimal.Zero
	if !stake.IsZero() {
		roi = pnl.Div(stake).Mul(decimal.NewFromInt(100))
	}

	return Outcome{
		ExitPrice: exitPrice,
		PnlUSD:    pnl.Round(6).InexactFloat64(),
		RoiPct:    roi.Round(4).InexactFloat64(),
	}
}
