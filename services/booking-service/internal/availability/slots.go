package availability

import (
	"iter"
	"sort"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

// EnumerateFreeSlots yields, in ascending order, every slot start on the local
// date of day where a booking of svc would be bookable at now and would not
// overlap any busy interval. The sequence is recomputed on every iteration.
func (r Rules) EnumerateFreeSlots(day time.Time, svc model.Service, busy []model.Interval, now time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if svc.Duration <= 0 || r.Granularity <= 0 {
			return
		}
		for _, win := range r.WindowsOn(day) {
			for t := win.Start; !t.Add(svc.Duration).After(win.End); t = t.Add(r.Granularity) {
				iv := svc.IntervalAt(t)
				if !r.IsBookableAt(iv, now) || overlapsAny(iv, busy) {
					continue
				}
				if !yield(t) {
					return
				}
			}
		}
	}
}

// EnumerateRange walks the local dates touched by rng and yields free slots that
// lie entirely inside it.
func (r Rules) EnumerateRange(rng model.Interval, svc model.Service, busy []model.Interval, now time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if !rng.Valid() {
			return
		}
		loc := r.loc()
		last := DaySpan(rng.End.Add(-time.Nanosecond), loc).Start
		for day := DaySpan(rng.Start, loc).Start; !day.After(last); day = day.AddDate(0, 0, 1) {
			for t := range r.EnumerateFreeSlots(day, svc, busy, now) {
				if !rng.Contains(svc.IntervalAt(t)) {
					continue
				}
				if !yield(t) {
					return
				}
			}
		}
	}
}

// Nearest returns up to n slots closest to target. Equal distances go to the
// earlier slot.
func Nearest(slots iter.Seq[time.Time], target time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	var all []time.Time
	for t := range slots {
		all = append(all, t)
	}
	sort.SliceStable(all, func(i, j int) bool {
		di, dj := distance(all[i], target), distance(all[j], target)
		if di != dj {
			return di < dj
		}
		return all[i].Before(all[j])
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

// First collects at most n items from slots in order.
func First(slots iter.Seq[time.Time], n int) []time.Time {
	var out []time.Time
	if n <= 0 {
		return out
	}
	for t := range slots {
		out = append(out, t)
		if len(out) == n {
			break
		}
	}
	return out
}

func overlapsAny(iv model.Interval, busy []model.Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if iv.Start.Before(b.End) && b.Start.Before(iv.End) {
			return true
		}
	}
	return false
}
