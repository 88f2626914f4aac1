package risk

import (
	"sync"
	"time"
)

type observation struct {
	at    time.Time
	price float64
}

// PriceHistory keeps a short in-memory tail of price observations per key so
// triggers can be validated across more than one lookback window.
type PriceHistory struct {
	mu        sync.Mutex
	retention time.Duration
	series    map[string][]observation
}

func NewPriceHistory(retention time.Duration) *PriceHistory {
	return &PriceHistory{
		retention: retention,
		series:    make(map[string][]observation),
	}
}

// Record appends one observation and drops anything older than retention.
func (h *PriceHistory) Record(key string, price float64, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail := append(h.series[key], observation{at: at, price: price})

	cutoff := at.Add(-h.retention)
	start := 0
	for start < len(tail) && tail[start].at.Before(cutoff) {
		start++
	}
	h.series[key] = tail[start:]
}

// Move returns the price change over the lookback window ending at now, and
// whether enough history exists to measure it. The reference point is the
// oldest observation inside the window.
func (h *PriceHistory) Move(key string, lookback time.Duration, now time.Time) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail := h.series[key]
	if len(tail) < 2 {
		return 0, false
	}

	cutoff := now.Add(-lookback)
	var ref *observation
	for i := range tail {
		if !tail[i].at.Before(cutoff) {
			ref = &tail[i]
			break
		}
	}
	if ref == nil {
		return 0, false
	}

	latest := tail[len(tail)-1]
	if ref.at.Equal(latest.at) {
		return 0, false
	}

	return latest.price - ref.price, true
}

// MoveBetween returns the price change from the oldest observation inside
// the lookback window to the newest observation that is at least exclude
// old. Excluding the most recent stretch keeps a single fresh tick from
// dominating the longer timeframe.
func (h *PriceHistory) MoveBetween(key string, lookback, exclude time.Duration, now time.Time) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail := h.series[key]
	cutoff := now.Add(-lookback)
	end := now.Add(-exclude)

	var ref, last *observation
	for i := range tail {
		if ref == nil && !tail[i].at.Before(cutoff) {
			ref = &tail[i]
		}
		if !tail[i].at.After(end) {
			last = &tail[i]
		}
	}
	if ref == nil || last == nil || !last.at.After(ref.at) {
		return 0, false
	}

	return last.price - ref.price, true
}

// Forget drops the series for a key, called once its position settles.
func (h *PriceHistory) Forget(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.series, key)
}
