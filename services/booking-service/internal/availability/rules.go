package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

// Window is an opening window expressed as offsets from local midnight.
type Window struct {
	Open  time.Duration
	Close time.Duration
}

func (w Window) on(day time.Time, loc *time.Location) model.Interval {
	y, m, d := day.In(loc).Date()
	return model.Interval{
		Start: clockOn(y, m, d, w.Open, loc),
		End:   clockOn(y, m, d, w.Close, loc),
	}
}

func clockOn(y int, m time.Month, d int, offset time.Duration, loc *time.Location) time.Time {
	mins := int(offset / time.Minute)
	return time.Date(y, m, d, mins/60, mins%60, 0, 0, loc)
}

// Rules is the read-only availability rule set of the shop. All checks are pure.
type Rules struct {
	Location    *time.Location
	Hours       map[time.Weekday][]Window
	Granularity time.Duration
	Blackouts   []model.Interval
	MinLeadTime time.Duration
}

func (r Rules) Validate() error {
	if r.Location == nil {
		return errors.New("location required")
	}
	if r.Granularity <= 0 {
		return errors.New("slot granularity must be positive")
	}
	if r.MinLeadTime < 0 {
		return errors.New("min lead time must not be negative")
	}
	for day, windows := range r.Hours {
		for _, w := range windows {
			if w.Open < 0 || w.Close > 24*time.Hour || w.Close <= w.Open {
				return fmt.Errorf("invalid window on %s", day)
			}
		}
	}
	for _, b := range r.Blackouts {
		if !b.Valid() {
			return errors.New("invalid blackout range")
		}
	}
	return nil
}

// WindowsOn returns the concrete opening windows of the local date containing day.
func (r Rules) WindowsOn(day time.Time) []model.Interval {
	loc := r.loc()
	windows := r.Hours[day.In(loc).Weekday()]
	out := make([]model.Interval, 0, len(windows))
	for _, w := range windows {
		out = append(out, w.on(day, loc))
	}
	return out
}

// WithinHours reports whether iv fits entirely inside one opening window of its
// weekday and touches no blackout range.
func (r Rules) WithinHours(iv model.Interval) bool {
	if !iv.Valid() {
		return false
	}
	if _, ok := r.windowFor(iv); !ok {
		return false
	}
	return !r.blackedOut(iv)
}

// Aligned reports whether iv starts on the slot grid, measured from the opening
// of the window that contains it.
func (r Rules) Aligned(iv model.Interval) bool {
	win, ok := r.windowFor(iv)
	if !ok {
		return false
	}
	return iv.Start.Sub(win.Start)%r.Granularity == 0
}

func (r Rules) LeadTimeOK(start, now time.Time) bool {
	return !start.Before(now.Add(r.MinLeadTime))
}

// IsBookable is the time-independent check: hours, blackouts and slot alignment.
func (r Rules) IsBookable(iv model.Interval) bool {
	return r.WithinHours(iv) && r.Aligned(iv)
}

// IsBookableAt additionally requires the slot to start at least MinLeadTime after now.
func (r Rules) IsBookableAt(iv model.Interval, now time.Time) bool {
	return r.IsBookable(iv) && r.LeadTimeOK(iv.Start, now)
}

func (r Rules) windowFor(iv model.Interval) (model.Interval, bool) {
	for _, win := range r.WindowsOn(iv.Start) {
		if win.Contains(iv) {
			return win, true
		}
	}
	return model.Interval{}, false
}

func (r Rules) blackedOut(iv model.Interval) bool {
	for _, b := range r.Blackouts {
		if b.Overlaps(iv) {
			return true
		}
	}
	return false
}

func (r Rules) loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// DaySpan covers the whole local date containing day.
func DaySpan(day time.Time, loc *time.Location) model.Interval {
	y, m, d := day.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return model.Interval{Start: start, End: start.AddDate(0, 0, 1)}
}
