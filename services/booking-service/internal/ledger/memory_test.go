package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

func TestMemoryContract(t *testing.T) {
	runContract(t, func(*testing.T) Ledger { return NewMemory() })
}

func TestMemoryInsertValidates(t *testing.T) {
	l := NewMemory()
	_, err := l.Insert(context.Background(), model.Appointment{
		CustomerRef: "+15550000001",
		Service:     "haircut",
		StartTime:   base,
		EndTime:     base,
	})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestMemoryInsertRejectsDuplicateID(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	appt := newAppt("+15550000001", slot(10, 0))
	appt.ID = "fixed-id"
	if _, err := l.Insert(ctx, appt); err != nil {
		t.Fatalf("insert: %v", err)
	}
	again := newAppt("+15550000002", slot(12, 0))
	again.ID = "fixed-id"
	if _, err := l.Insert(ctx, again); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	stored, err := l.Get(ctx, "fixed-id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.CustomerRef != "+15550000001" {
		t.Fatalf("duplicate insert replaced the original: %+v", stored)
	}
}

func TestMemoryStampsTimes(t *testing.T) {
	l := NewMemory()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	appt, err := l.Insert(context.Background(), newAppt("+15550000001", slot(10, 0)))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !appt.CreatedAt.Equal(fixed) || !appt.UpdatedAt.Equal(fixed) {
		t.Fatalf("expected timestamps %s, got %+v", fixed, appt)
	}

	l.now = func() time.Time { return fixed.Add(time.Hour) }
	cancelled, err := l.Cancel(context.Background(), appt.ID, "")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancelled.CreatedAt.Equal(fixed) || !cancelled.UpdatedAt.Equal(fixed.Add(time.Hour)) {
		t.Fatalf("unexpected timestamps after cancel %+v", cancelled)
	}
}
