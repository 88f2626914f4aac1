package strategy

import (
	"context"
	"math"
	"time"

	logger "github.com/sirupsen/logrus"

	"edgeengine/src/confidence"
	"edgeengine/src/connectors"
	"edgeengine/src/model"
	"edgeengine/src/repository"
)

// Builder derives the per-signal scores feeding the confidence engine from
// one-minute spot candles and the current order book.
type Builder struct {
	config  Config
	candles *repository.SpotCandleRepository
}

func NewBuilder(config Config) *Builder {
	return &Builder{
		config:  config,
		candles: repository.NewSpotCandleRepository(),
	}
}

// WithCandles overrides the candle repository. Used by tests.
func (b *Builder) WithCandles(candles *repository.SpotCandleRepository) *Builder {
	return &Builder{config: b.config, candles: candles}
}

// Build computes all signals for a symbol at one instant. marketProb is the
// market-quoted UP probability used for the cross-exchange lead/lag reading.
func (b *Builder) Build(
	ctx context.Context,
	symbol string,
	book *connectors.BookSnapshot,
	marketProb float64,
	now time.Time,
) ([]confidence.Signal, error) {

	lookback := time.Duration(b.config.MomentumLongMinutes+1) * time.Minute
	candles, err := b.candles.FindSince(ctx, SpotSymbol(symbol), now.Add(-lookback))
	if err != nil {
		return nil, err
	}

	momentum := b.momentumScore(candles)
	flow := b.flowScore(candles, now)
	divergence := b.divergenceScore(candles)

	// The spot venue leads the binary market. A lead/lag reading is
	// consistent when the spot move and the market's own probability point
	// the same way.
	spotLeads := momentum * (marketProb - 0.5)
	var leadLag *bool
	if momentum != 0 && marketProb != 0.5 {
		consistent := spotLeads > 0
		leadLag = &consistent
	}

	imbalance := 0.0
	if book != nil {
		imbalance = book.Imbalance()
	}

	trendAgreement := momentum != 0 && flow != 0 && sameSign(momentum, flow)

	signals := []confidence.Signal{
		{
			Name:           confidence.SignalMomentum,
			Score:          momentum,
			Weight:         b.config.MomentumWeight,
			Quality:        b.config.MomentumQuality,
			TrendAgreement: trendAgreement,
			LeadLag:        leadLag,
		},
		{
			Name:           confidence.SignalFlow,
			Score:          flow,
			Weight:         b.config.FlowWeight,
			Quality:        b.config.FlowQuality,
			TrendAgreement: trendAgreement,
		},
		{
			Name:    confidence.SignalDivergence,
			Score:   divergence,
			Weight:  b.config.DivergenceWeight,
			Quality: b.config.DivergenceQuality,
		},
		{
			Name:    confidence.SignalImbalance,
			Score:   imbalance,
			Weight:  b.config.ImbalanceWeight,
			Quality: b.config.ImbalanceQuality,
		},
		{
			Name:    confidence.SignalLeadLag,
			Score:   clampScore(spotLeads * 4),
			Weight:  b.config.LeadLagWeight,
			Quality: b.config.LeadLagQuality,
		},
	}

	logger.WithFields(map[string]interface{}{
		"symbol":     symbol,
		"momentum":   momentum,
		"flow":       flow,
		"divergence": divergence,
		"imbalance":  imbalance,
		"candles":    len(candles),
	}).Debug("Signals built")

	return signals, nil
}

// momentumScore compares the mean close of the short lookback against the
// mean close of the long lookback, scaled into [-1, 1].
func (b *Builder) momentumScore(candles []model.OHLCVSpot1m) float64 {
	if len(candles) < b.config.MomentumShortMinutes {
		return 0
	}

	shortMean := meanClose(tail(candles, b.config.MomentumShortMinutes))
	longMean := meanClose(tail(candles, b.config.MomentumLongMinutes))
	if longMean == 0 {
		return 0
	}

	relative := (shortMean - longMean) / longMean
	return clampScore(relative * b.config.MomentumScale)
}

// flowScore is the volume-weighted direction of recent candles.
func (b *Builder) flowScore(candles []model.OHLCVSpot1m, now time.Time) float64 {
	cutoff := now.Add(-time.Duration(b.config.FlowMinutes) * time.Minute)

	var signed, total float64
	for i := range candles {
		c := &candles[i]
		if c.Datetime.Before(cutoff) {
			continue
		}

		volume := c.Volume.InexactFloat64()
		total += volume

		move := c.Close.Sub(c.Open).InexactFloat64()
		switch {
		case move > 0:
			signed += volume
		case move < 0:
			signed -= volume
		}
	}

	if total == 0 {
		return 0
	}
	return signed / total
}

// divergenceScore measures disagreement between the short and long momentum
// readings. A short-term move against the longer trend scores negative for
// the trend side.
func (b *Builder) divergenceScore(candles []model.OHLCVSpot1m) float64 {
	if len(candles) < b.config.MomentumLongMinutes {
		return 0
	}

	shortCandles := tail(candles, b.config.MomentumShortMinutes)
	longCandles := tail(candles, b.config.MomentumLongMinutes)

	shortMove := closeChange(shortCandles)
	longMove := closeChange(longCandles)
	if sameSign(shortMove, longMove) {
		return 0
	}

	return clampScore((shortMove - longMove) * b.config.MomentumScale)
}

// SpotSymbol maps a window symbol to the reference spot pair.
// BTC -> BTCUSDT.
func SpotSymbol(symbol string) string {
	return symbol + "USDT"
}

func tail(candles []model.OHLCVSpot1m, n int) []model.OHLCVSpot1m {
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}

func meanClose(candles []model.OHLCVSpot1m) float64 {
	if len(candles) == 0 {
		return 0
	}
	var sum float64
	for i := range candles {
		sum += candles[i].Close.InexactFloat64()
	}
	return sum / float64(len(candles))
}

func closeChange(candles []model.OHLCVSpot1m) float64 {
	if len(candles) < 2 {
		return 0
	}
	first := candles[0].Close.InexactFloat64()
	last := candles[len(candles)-1].Close.InexactFloat64()
	if first == 0 {
		return 0
	}
	return (last - first) / first
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func clampScore(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
