package utils

import (
	"testing"
	"time"
)

func TestSlotBounds(t *testing.T) {
	tests := []struct {
		name      string
		at        time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "mid slot",
			at:        time.Date(2025, time.March, 4, 14, 7, 33, 0, time.UTC),
			wantStart: time.Date(2025, time.March, 4, 14, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, time.March, 4, 14, 15, 0, 0, time.UTC),
		},
		{
			name:      "exact boundary starts a new slot",
			at:        time.Date(2025, time.March, 4, 14, 30, 0, 0, time.UTC),
			wantStart: time.Date(2025, time.March, 4, 14, 30, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, time.March, 4, 14, 45, 0, 0, time.UTC),
		},
		{
			name:      "non UTC input is normalized",
			at:        time.Date(2025, time.March, 4, 9, 50, 12, 0, time.FixedZone("EST", -5*3600)),
			wantStart: time.Date(2025, time.March, 4, 14, 45, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, time.March, 4, 15, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := SlotBounds(tt.at)
			if !start.Equal(tt.wantStart) {
				t.Fatalf("start mismatch. got=%s want=%s", start, tt.wantStart)
			}
			if !end.Equal(tt.wantEnd) {
				t.Fatalf("end mismatch. got=%s want=%s", end, tt.wantEnd)
			}
		})
	}
}

func TestTimeLeft(t *testing.T) {
	at := time.Date(2025, time.March, 4, 14, 10, 0, 0, time.UTC)
	if got := TimeLeft(at); got != 5*time.Minute {
		t.Fatalf("TimeLeft mismatch. got=%s want=5m", got)
	}
}
