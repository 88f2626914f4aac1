package engine

import "time"

// ScaleTier is one row of the scale-in threshold table. The earlier a
// trigger fires (more time left), the tighter the confidence and price it
// must clear.
type ScaleTier struct {
	TimeLeft      time.Duration
	MinConfidence float64
	MinPrice      float64
}

// defaultScaleTiers are evaluated in descending time order. The first tier
// whose time-left bound covers the current moment decides.
var defaultScaleTiers = []ScaleTier{
	{TimeLeft: 12 * time.Minute, MinConfidence: 0.90, MinPrice: 0.80},
	{TimeLeft: 9 * time.Minute, MinConfidence: 0.80, MinPrice: 0.70},
	{TimeLeft: 7 * time.Minute, MinConfidence: 0.70, MinPrice: 0.65},
}

// ShouldScaleIn decides whether a scale-in may fire now. Tiers are walked in
// descending time order; when no early tier applies, the fallback window
// opens defaultWindow before close and requires only the fallback confidence.
func ShouldScaleIn(
	tiers []ScaleTier,
	timeLeft time.Duration,
	confidence float64,
	price float64,
	defaultWindow time.Duration,
	defaultMinConfidence float64,
) bool {

	for _, tier := range tiers {
		if timeLeft >= tier.TimeLeft {
			return confidence >= tier.MinConfidence && price >= tier.MinPrice
		}
	}

	if timeLeft <= defaultWindow {
		return confidence >= defaultMinConfidence
	}

	return false
}
