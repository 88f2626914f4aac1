package utils

import (
	"fmt"
	"time"
)

// SlotDuration is the length of one trading window.
const SlotDuration = 15 * time.Minute

// ResetTime resets the time component based on the granularity specified.
// Pass "minute" to reset seconds to zero.
// Pass "hour" to reset minutes and seconds to zero.
func ResetTime(t time.Time, granularity string) time.Time {
	switch granularity {
	case "minute":
		return t.Truncate(time.Minute) // Resets seconds to zero
	case "hour":
		return t.Truncate(time.Hour) // Resets minutes and seconds to zero
	default:
		fmt.Println("Invalid granularity. Please use 'minute' or 'hour'.")
		return t
	}
}

// SlotBounds returns the start and end of the 15-minute slot containing t.
// Slots are aligned to the hour: :00, :15, :30, :45, always in UTC.
func SlotBounds(t time.Time) (time.Time, time.Time) {
	start := t.UTC().Truncate(SlotDuration)
	return start, start.Add(SlotDuration)
}

// TimeLeft returns the remaining duration of the slot containing t.
func TimeLeft(t time.Time) time.Duration {
	_, end := SlotBounds(t)
	return end.Sub(t.UTC())
}
