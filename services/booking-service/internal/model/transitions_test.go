package model

import (
	"testing"
	"time"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   Status
		valid  bool
	}{
		{ActionConfirm, StatusPending, true},
		{ActionConfirm, StatusConfirmed, false},
		{ActionCancel, StatusConfirmed, true},
		{ActionCancel, StatusCancelled, false},
		{ActionCancel, StatusCompleted, false},
		{ActionReschedule, StatusConfirmed, true},
		{ActionReschedule, StatusCancelled, false},
		{ActionComplete, StatusConfirmed, true},
		{ActionComplete, StatusPending, false},
		{"unknown", StatusConfirmed, false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestIntervalOverlapHalfOpen(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	a := Interval{Start: at(10, 0), End: at(10, 30)}
	cases := []struct {
		b    Interval
		want bool
	}{
		{Interval{Start: at(10, 30), End: at(11, 0)}, false},
		{Interval{Start: at(9, 30), End: at(10, 0)}, false},
		{Interval{Start: at(10, 15), End: at(10, 45)}, true},
		{Interval{Start: at(9, 0), End: at(12, 0)}, true},
	}
	for _, tt := range cases {
		if got := a.Overlaps(tt.b); got != tt.want {
			t.Fatalf("Overlaps(%v)=%v, want %v", tt.b, got, tt.want)
		}
		if got := tt.b.Overlaps(a); got != tt.want {
			t.Fatalf("overlap must be symmetric for %v", tt.b)
		}
	}
}
