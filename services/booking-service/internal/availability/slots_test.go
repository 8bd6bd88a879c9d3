package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func weekdayRules() Rules {
	hours := map[time.Weekday][]Window{}
	for d := time.Monday; d <= time.Friday; d++ {
		hours[d] = []Window{{Open: 9 * time.Hour, Close: 17 * time.Hour}}
	}
	return Rules{Location: time.UTC, Hours: hours, Granularity: 30 * time.Minute}
}

var haircut = model.Service{Key: "haircut", Name: "Haircut", Duration: 30 * time.Minute}

func TestIsBookable(t *testing.T) {
	rules := weekdayRules()
	rules.Blackouts = []model.Interval{DaySpan(monday.AddDate(0, 0, 1), time.UTC)}

	cases := []struct {
		name string
		iv   model.Interval
		want bool
	}{
		{"opening slot", haircut.IntervalAt(at(9, 0)), true},
		{"last slot", haircut.IntervalAt(at(16, 30)), true},
		{"runs past close", haircut.IntervalAt(at(16, 45)), false},
		{"before open", haircut.IntervalAt(at(8, 30)), false},
		{"misaligned", haircut.IntervalAt(at(10, 15)), false},
		{"blackout date", haircut.IntervalAt(at(10, 0).AddDate(0, 0, 1)), false},
		{"closed weekday", haircut.IntervalAt(at(10, 0).AddDate(0, 0, 5)), false},
		{"empty interval", model.Interval{Start: at(10, 0), End: at(10, 0)}, false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := rules.IsBookable(tt.iv); got != tt.want {
				t.Fatalf("IsBookable=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBookableAtLeadTime(t *testing.T) {
	rules := weekdayRules()
	rules.MinLeadTime = time.Hour
	now := at(9, 10)

	if rules.IsBookableAt(haircut.IntervalAt(at(10, 0)), now) {
		t.Fatalf("expected 10:00 inside the lead time to be rejected")
	}
	if !rules.IsBookableAt(haircut.IntervalAt(at(10, 30)), now) {
		t.Fatalf("expected 10:30 to be bookable")
	}
}

func TestAlignmentFollowsWindowOpening(t *testing.T) {
	rules := weekdayRules()
	rules.Hours[time.Monday] = []Window{
		{Open: 9 * time.Hour, Close: 12 * time.Hour},
		{Open: 12*time.Hour + 45*time.Minute, Close: 17 * time.Hour},
	}
	if !rules.IsBookable(haircut.IntervalAt(at(12, 45))) {
		t.Fatalf("expected 12:45 to align with the afternoon window")
	}
	if rules.IsBookable(haircut.IntervalAt(at(13, 0))) {
		t.Fatalf("expected 13:00 to be off grid for the afternoon window")
	}
	if rules.IsBookable(haircut.IntervalAt(at(12, 0))) {
		t.Fatalf("expected the lunch gap to be closed")
	}
}

func TestEnumerateFreeSlotsSkipsBusy(t *testing.T) {
	rules := weekdayRules()
	busy := []model.Interval{haircut.IntervalAt(at(10, 0))}

	var got []time.Time
	for s := range rules.EnumerateFreeSlots(monday, haircut, busy, monday) {
		got = append(got, s)
	}
	if len(got) != 15 {
		t.Fatalf("expected 15 free slots, got %d", len(got))
	}
	for _, s := range got {
		if s.Equal(at(10, 0)) {
			t.Fatalf("busy slot 10:00 enumerated")
		}
	}
	if !got[0].Equal(at(9, 0)) || !got[len(got)-1].Equal(at(16, 30)) {
		t.Fatalf("unexpected bounds %s..%s", got[0], got[len(got)-1])
	}
}

func TestEnumerateFreeSlotsSkipsPast(t *testing.T) {
	rules := weekdayRules()
	now := at(16, 1)
	slots := First(rules.EnumerateFreeSlots(monday, haircut, nil, now), 10)
	if len(slots) != 1 || !slots[0].Equal(at(16, 30)) {
		t.Fatalf("expected only 16:30, got %v", slots)
	}
}

func TestEnumerateFreeSlotsIsRestartable(t *testing.T) {
	rules := weekdayRules()
	seq := rules.EnumerateFreeSlots(monday, haircut, nil, monday)
	first := First(seq, 3)
	second := First(seq, 3)
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 slots on both passes")
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("pass mismatch at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestNearestOrdersByDistanceThenEarlier(t *testing.T) {
	rules := weekdayRules()
	busy := []model.Interval{haircut.IntervalAt(at(10, 0))}
	got := Nearest(rules.EnumerateFreeSlots(monday, haircut, busy, monday), at(10, 15), 3)

	want := []time.Time{at(10, 30), at(9, 30), at(11, 0)}
	if len(got) != len(want) {
		t.Fatalf("expected %d alternatives, got %v", len(want), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("alternative %d = %s, want %s", i, got[i].Format("15:04"), want[i].Format("15:04"))
		}
	}
}

func TestEnumerateRangeClipsToRange(t *testing.T) {
	rules := weekdayRules()
	rng := model.Interval{Start: at(16, 0), End: at(10, 0).AddDate(0, 0, 1)}

	got := First(rules.EnumerateRange(rng, haircut, nil, monday), 10)
	want := []time.Time{at(16, 0), at(16, 30), at(9, 0).AddDate(0, 0, 1), at(9, 30).AddDate(0, 0, 1)}
	if len(got) != len(want) {
		t.Fatalf("expected %d slots, got %v", len(want), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("slot %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	rules := weekdayRules()
	if err := rules.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rules.Granularity = 0
	if err := rules.Validate(); err == nil {
		t.Fatalf("expected granularity error")
	}
	rules = weekdayRules()
	rules.Hours[time.Monday] = []Window{{Open: 17 * time.Hour, Close: 9 * time.Hour}}
	if err := rules.Validate(); err == nil {
		t.Fatalf("expected window error")
	}
}
