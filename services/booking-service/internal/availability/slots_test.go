package availability

import (
	"testing"
	"time"
)

func TestAvailableSlots(t *testing.T) {
	day := clock(0, 0)
	cases := []struct {
		name string
		busy []Interval
		now  time.Time
		want []time.Time
	}{
		{
			name: "busy middle",
			busy: []Interval{{Start: clock(9, 15), End: clock(9, 45)}},
			now:  day,
			want: []time.Time{clock(9, 0), clock(9, 45)},
		},
		{
			name: "back to back with busy",
			busy: []Interval{{Start: clock(9, 15), End: clock(9, 30)}},
			now:  day,
			want: []time.Time{clock(9, 0), clock(9, 30), clock(9, 45)},
		},
		{
			// 09:00, 09:15 and 09:30 start before now.
			name: "skips past",
			now:  clock(9, 31),
			want: []time.Time{clock(9, 45)},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AvailableSlots(clock(9, 0), clock(10, 0), 15*time.Minute, 15*time.Minute, tc.busy, tc.now)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d slots, got %v", len(tc.want), got)
			}
			for i := range got {
				if !got[i].Equal(tc.want[i]) {
					t.Fatalf("slot %d: expected %s, got %s", i, tc.want[i].Format("15:04"), got[i].Format("15:04"))
				}
			}
		})
	}
}

func TestAvailableSlotsRejectsDegenerateInput(t *testing.T) {
	if got := AvailableSlots(clock(10, 0), clock(9, 0), 15*time.Minute, 15*time.Minute, nil, clock(0, 0)); got != nil {
		t.Fatalf("inverted window should yield nil, got %v", got)
	}
	if got := AvailableSlots(clock(9, 0), clock(9, 10), 15*time.Minute, 15*time.Minute, nil, clock(0, 0)); got != nil {
		t.Fatalf("window shorter than duration should yield nil, got %v", got)
	}
}
