package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

var base = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func slot(h, m int) model.Interval {
	start := base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	return model.Interval{Start: start, End: start.Add(30 * time.Minute)}
}

func newAppt(customer string, iv model.Interval) model.Appointment {
	return model.Appointment{
		CustomerRef: customer,
		Service:     "haircut",
		StartTime:   iv.Start,
		EndTime:     iv.End,
	}
}

// runContract exercises the behaviour every Ledger backend must share.
func runContract(t *testing.T, factory func(t *testing.T) Ledger) {
	t.Run("insert rejects overlap and accepts back to back", func(t *testing.T) {
		ctx := context.Background()
		l := factory(t)

		first, err := l.Insert(ctx, newAppt("+15550000001", slot(10, 0)))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if first.ID == "" || first.Status != model.StatusConfirmed || first.Recipient != "self" {
			t.Fatalf("unexpected stored appointment %+v", first)
		}
		if _, err := l.Insert(ctx, newAppt("+15550000002", model.Interval{Start: slot(10, 15).Start, End: slot(10, 15).End})); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if _, err := l.Insert(ctx, newAppt("+15550000002", slot(10, 30))); err != nil {
			t.Fatalf("back to back insert: %v", err)
		}
		if _, err := l.Insert(ctx, newAppt("+15550000003", slot(9, 30))); err != nil {
			t.Fatalf("adjacent before insert: %v", err)
		}

		conflicts, err := l.FindConflicts(ctx, model.Interval{Start: slot(9, 45).Start, End: slot(10, 45).Start})
		if err != nil {
			t.Fatalf("find conflicts: %v", err)
		}
		if len(conflicts) != 3 {
			t.Fatalf("expected 3 conflicts, got %d", len(conflicts))
		}
		for i := 1; i < len(conflicts); i++ {
			if conflicts[i].StartTime.Before(conflicts[i-1].StartTime) {
				t.Fatalf("conflicts not ordered by start")
			}
		}
	})

	t.Run("cancel frees the slot and is terminal", func(t *testing.T) {
		ctx := context.Background()
		l := factory(t)

		appt, err := l.Insert(ctx, newAppt("+15550000001", slot(11, 0)))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		cancelled, err := l.Cancel(ctx, appt.ID, "sick")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if cancelled.Status != model.StatusCancelled || cancelled.CancelReason != "sick" {
			t.Fatalf("unexpected cancelled appointment %+v", cancelled)
		}
		if _, err := l.Cancel(ctx, appt.ID, "again"); !errors.Is(err, ErrAlreadyTerminal) {
			t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
		}
		if _, err := l.Reschedule(ctx, appt.ID, slot(12, 0)); !errors.Is(err, ErrAlreadyTerminal) {
			t.Fatalf("expected ErrAlreadyTerminal on reschedule, got %v", err)
		}
		if _, err := l.Insert(ctx, newAppt("+15550000002", slot(11, 0))); err != nil {
			t.Fatalf("rebook after cancel: %v", err)
		}

		stored, err := l.Get(ctx, appt.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if stored.Status != model.StatusCancelled {
			t.Fatalf("cancelled appointment changed to %s", stored.Status)
		}
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		ctx := context.Background()
		l := factory(t)
		id := uuid.NewString()
		if _, err := l.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("get: expected ErrNotFound, got %v", err)
		}
		if _, err := l.Cancel(ctx, id, ""); !errors.Is(err, ErrNotFound) {
			t.Fatalf("cancel: expected ErrNotFound, got %v", err)
		}
		if _, err := l.Complete(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("complete: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("reschedule is atomic", func(t *testing.T) {
		ctx := context.Background()
		l := factory(t)

		a, err := l.Insert(ctx, newAppt("+15550000001", slot(10, 0)))
		if err != nil {
			t.Fatalf("insert a: %v", err)
		}
		if _, err := l.Insert(ctx, newAppt("+15550000002", slot(11, 0))); err != nil {
			t.Fatalf("insert b: %v", err)
		}

		if _, err := l.Reschedule(ctx, a.ID, slot(11, 0)); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		unchanged, err := l.Get(ctx, a.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if unchanged.Status != model.StatusConfirmed || !unchanged.StartTime.Equal(slot(10, 0).Start) {
			t.Fatalf("original changed after failed reschedule: %+v", unchanged)
		}

		// Moving onto a range that overlaps only itself is allowed.
		shifted := model.Interval{Start: slot(10, 0).Start.Add(15 * time.Minute), End: slot(10, 0).End.Add(15 * time.Minute)}
		moved, err := l.Reschedule(ctx, a.ID, shifted)
		if err != nil {
			t.Fatalf("reschedule: %v", err)
		}
		if moved.ID != a.ID || !moved.StartTime.Equal(shifted.Start) || !moved.EndTime.Equal(shifted.End) {
			t.Fatalf("unexpected rescheduled appointment %+v", moved)
		}
		freed := model.Interval{Start: slot(9, 45).Start, End: slot(10, 15).Start}
		if _, err := l.Insert(ctx, newAppt("+15550000003", freed)); err != nil {
			t.Fatalf("vacated range should be free: %v", err)
		}
	})

	t.Run("appointments longer than a day are rejected", func(t *testing.T) {
		ctx := context.Background()
		l := factory(t)

		long := model.Interval{Start: base, End: base.Add(48 * time.Hour)}
		if _, err := l.Insert(ctx, newAppt("+15550000001", long)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for two day insert, got %v", err)
		}
		// Nothing was stored, so a slot inside the rejected range is free.
		inside := model.Interval{Start: base.Add(34 * time.Hour), End: base.Add(34*time.Hour + 30*time.Minute)}
		if _, err := l.Insert(ctx, newAppt("+15550000002", inside)); err != nil {
			t.Fatalf("insert inside rejected range: %v", err)
		}

		a, err := l.Insert(ctx, newAppt("+15550000003", slot(10, 0)))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if _, err := l.Reschedule(ctx, a.ID, model.Interval{Start: slot(10, 0).Start, End: slot(10, 0).Start.Add(MaxSpan + time.Minute)}); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for long reschedule, got %v", err)
		}

		// Exactly MaxSpan is allowed and still conflicts with later overlaps.
		day := model.Interval{Start: base.Add(72 * time.Hour), End: base.Add(72*time.Hour + MaxSpan)}
		if _, err := l.Insert(ctx, newAppt("+15550000004", day)); err != nil {
			t.Fatalf("insert full day: %v", err)
		}
		late := model.Interval{Start: day.End.Add(-30 * time.Minute), End: day.End}
		if _, err := l.Insert(ctx, newAppt("+15550000005", late)); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict at the end of a full day booking, got %v", err)
		}
	})

	t.Run("complete is terminal", func(t *testing.T) {
		ctx := context.Background()
		l := factory(t)
		appt, err := l.Insert(ctx, newAppt("+15550000001", slot(14, 0)))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		done, err := l.Complete(ctx, appt.ID)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if done.Status != model.StatusCompleted {
			t.Fatalf("expected completed, got %s", done.Status)
		}
		if _, err := l.Cancel(ctx, appt.ID, ""); !errors.Is(err, ErrAlreadyTerminal) {
			t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
		}
	})

	t.Run("listings are ordered and scoped", func(t *testing.T) {
		ctx := context.Background()
		l := factory(t)
		for _, iv := range []model.Interval{slot(15, 0), slot(9, 0), slot(12, 0)} {
			if _, err := l.Insert(ctx, newAppt("+15550000001", iv)); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
		other, err := l.Insert(ctx, newAppt("+15550000009", slot(13, 0)))
		if err != nil {
			t.Fatalf("insert other: %v", err)
		}
		if _, err := l.Cancel(ctx, other.ID, ""); err != nil {
			t.Fatalf("cancel other: %v", err)
		}

		upcoming, err := l.ListUpcoming(ctx, slot(9, 0).Start, 6*time.Hour)
		if err != nil {
			t.Fatalf("list upcoming: %v", err)
		}
		if len(upcoming) != 2 || !upcoming[0].StartTime.Equal(slot(9, 0).Start) || !upcoming[1].StartTime.Equal(slot(12, 0).Start) {
			t.Fatalf("unexpected upcoming %+v", upcoming)
		}

		mine, err := l.ListByCustomer(ctx, "+15550000001", slot(10, 0).Start)
		if err != nil {
			t.Fatalf("list by customer: %v", err)
		}
		if len(mine) != 2 || !mine[0].StartTime.Equal(slot(12, 0).Start) {
			t.Fatalf("unexpected customer list %+v", mine)
		}
	})

	t.Run("concurrent inserts never double book", func(t *testing.T) {
		ctx := context.Background()
		l := factory(t)

		const workers = 16
		var wg sync.WaitGroup
		results := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				iv := slot(16, 0)
				if i%2 == 1 {
					iv = model.Interval{Start: iv.Start.Add(15 * time.Minute), End: iv.End.Add(15 * time.Minute)}
				}
				_, err := l.Insert(ctx, newAppt("+1555000100"+string(rune('a'+i)), iv))
				results <- err
			}(i)
		}
		wg.Wait()
		close(results)

		var ok, conflicts int
		for err := range results {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 1 || conflicts != workers-1 {
			t.Fatalf("expected 1 success and %d conflicts, got %d and %d", workers-1, ok, conflicts)
		}
	})
}
