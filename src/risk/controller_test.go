package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"edgeengine/src/model"
)

func testRiskConfig() Config {
	return Config{
		HedgeMinAgeSeconds:     120,
		ReversalMinConfidence:  0.30,
		PriceFloor:             0.15,
		MidpointFloor:          0.30,
		TakeProfitCeiling:      0.99,
		ReversalEntryThreshold: 0.565,
		ShortLookbackSeconds:   30,
		MediumLookbackSeconds:  120,
	}
}

func hedgedPosition(hedgeAge time.Duration, now time.Time) *model.Position {
	hedgedAt := now.Add(-hedgeAge)
	return &model.Position{
		ID:         1,
		WindowID:   1,
		Side:       model.SideUp,
		State:      model.PositionStateHedged,
		EntryPrice: 0.55,
		Size:       10,
		IsHedged:   true,
		HedgedAt:   &hedgedAt,
	}
}

func TestStopLossTripleCheck(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)

	cases := []struct {
		name               string
		position           *model.Position
		price              float64
		midpoint           float64
		reversalConfidence float64
		want               Action
	}{
		{
			name:               "all three legs hold via midpoint floor",
			position:           hedgedPosition(3*time.Minute, now),
			price:              0.32,
			midpoint:           0.29,
			reversalConfidence: 0.35,
			want:               ActionStopLoss,
		},
		{
			name:               "all three legs hold via price floor",
			position:           hedgedPosition(3*time.Minute, now),
			price:              0.14,
			midpoint:           0.35,
			reversalConfidence: 0.35,
			want:               ActionStopLoss,
		},
		{
			name:               "hedge too young",
			position:           hedgedPosition(60*time.Second, now),
			price:              0.14,
			midpoint:           0.29,
			reversalConfidence: 0.35,
			want:               ActionNone,
		},
		{
			name:               "reversal confidence too low",
			position:           hedgedPosition(3*time.Minute, now),
			price:              0.14,
			midpoint:           0.29,
			reversalConfidence: 0.25,
			want:               ActionNone,
		},
		{
			name:               "price above both floors",
			position:           hedgedPosition(3*time.Minute, now),
			price:              0.40,
			midpoint:           0.38,
			reversalConfidence: 0.35,
			want:               ActionNone,
		},
		{
			name: "no hedge at all",
			position: &model.Position{
				ID:    2,
				Side:  model.SideUp,
				State: model.PositionStateOpen,
			},
			price:              0.14,
			midpoint:           0.29,
			reversalConfidence: 0.35,
			want:               ActionNone,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			controller := NewController(testRiskConfig())

			got := controller.Evaluate(Snapshot{
				Position:           tc.position,
				Price:              tc.price,
				Midpoint:           tc.midpoint,
				ReversalConfidence: tc.reversalConfidence,
				At:                 now,
			})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTakeProfitAtCeiling(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)
	controller := NewController(testRiskConfig())

	position := &model.Position{
		ID:         3,
		Side:       model.SideUp,
		State:      model.PositionStateOpen,
		EntryPrice: 0.55,
	}

	got := controller.Evaluate(Snapshot{
		Position: position,
		Price:    0.99,
		Midpoint: 0.985,
		At:       now,
	})
	assert.Equal(t, ActionTakeProfit, got)
}

func TestReversalBelowThresholdIsNone(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)
	controller := NewController(testRiskConfig())

	position := &model.Position{
		ID:    4,
		Side:  model.SideUp,
		State: model.PositionStateOpen,
	}

	got := controller.Evaluate(Snapshot{
		Position:           position,
		Price:              0.45,
		Midpoint:           0.46,
		ReversalConfidence: 0.50,
		At:                 now,
	})
	assert.Equal(t, ActionNone, got)

	got = controller.Evaluate(Snapshot{
		Position:           position,
		Price:              0.45,
		Midpoint:           0.46,
		ReversalConfidence: 0.60,
		At:                 now,
	})
	assert.Equal(t, ActionReverse, got)
}

func TestStopLossPrecedesReversal(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)
	controller := NewController(testRiskConfig())

	// Both stop-loss and reversal conditions hold; precedence picks stop-loss.
	got := controller.Evaluate(Snapshot{
		Position:           hedgedPosition(3*time.Minute, now),
		Price:              0.14,
		Midpoint:           0.29,
		ReversalConfidence: 0.70,
		At:                 now,
	})
	assert.Equal(t, ActionStopLoss, got)
}

func TestNoisyTickSuppressed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)
	controller := NewController(testRiskConfig())
	position := hedgedPosition(3*time.Minute, now)

	// Medium lookback trends up, then a single tick crashes down: the short
	// move disagrees with the medium move, so the stop-loss is suppressed.
	controller.Observe(position, 0.50, now.Add(-110*time.Second))
	controller.Observe(position, 0.55, now.Add(-60*time.Second))
	controller.Observe(position, 0.58, now.Add(-25*time.Second))
	controller.Observe(position, 0.14, now)

	got := controller.Evaluate(Snapshot{
		Position:           position,
		Price:              0.14,
		Midpoint:           0.29,
		ReversalConfidence: 0.35,
		At:                 now,
	})
	assert.Equal(t, ActionNone, got)

	// A sustained decline across both lookbacks is not suppressed.
	sustained := NewController(testRiskConfig())
	sustained.Observe(position, 0.50, now.Add(-110*time.Second))
	sustained.Observe(position, 0.40, now.Add(-60*time.Second))
	sustained.Observe(position, 0.25, now.Add(-25*time.Second))
	sustained.Observe(position, 0.14, now)

	got = sustained.Evaluate(Snapshot{
		Position:           position,
		Price:              0.14,
		Midpoint:           0.29,
		ReversalConfidence: 0.35,
		At:                 now,
	})
	assert.Equal(t, ActionStopLoss, got)
}

func TestSettledPositionIgnored(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)
	controller := NewController(testRiskConfig())

	position := hedgedPosition(3*time.Minute, now)
	position.Settled = true
	position.State = model.PositionStateSettled

	got := controller.Evaluate(Snapshot{
		Position:           position,
		Price:              0.14,
		Midpoint:           0.29,
		ReversalConfidence: 0.35,
		At:                 now,
	})
	assert.Equal(t, ActionNone, got)
}
