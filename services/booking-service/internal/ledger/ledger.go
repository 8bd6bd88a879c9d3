// Package ledger is the authoritative store of appointments. Every backend owns
// conflict detection: Insert and Reschedule re-check overlaps atomically with the
// write, so no two confirmed appointments ever overlap.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

// MaxSpan is the longest appointment any backend accepts. The redis backend
// relies on it to bound its overlap scan.
const MaxSpan = 24 * time.Hour

var (
	ErrConflict         = errors.New("appointment overlaps a confirmed booking")
	ErrNotFound         = errors.New("appointment not found")
	ErrAlreadyTerminal  = errors.New("appointment is cancelled or completed")
	ErrStoreUnavailable = errors.New("appointment store unavailable")
	ErrInvalid          = errors.New("invalid appointment")
)

type Ledger interface {
	// FindConflicts returns confirmed appointments overlapping the half-open interval.
	FindConflicts(ctx context.Context, iv model.Interval) ([]model.Appointment, error)
	// Insert stores appt as confirmed unless it overlaps a confirmed appointment.
	Insert(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	Cancel(ctx context.Context, id, reason string) (model.Appointment, error)
	// Reschedule moves a confirmed appointment. On failure the original is unchanged.
	Reschedule(ctx context.Context, id string, iv model.Interval) (model.Appointment, error)
	Complete(ctx context.Context, id string) (model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	// ListUpcoming returns confirmed appointments starting in [from, from+window), by start.
	ListUpcoming(ctx context.Context, from time.Time, window time.Duration) ([]model.Appointment, error)
	// ListByCustomer returns the customer's confirmed appointments starting at or after from.
	ListByCustomer(ctx context.Context, customerRef string, from time.Time) ([]model.Appointment, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func checkTransition(action string, from model.Status) error {
	if from.Terminal() {
		return ErrAlreadyTerminal
	}
	if !model.ValidTransition(action, from) {
		return fmt.Errorf("%w: cannot %s a %s appointment", ErrInvalid, action, from)
	}
	return nil
}

// prepare fills the fields every backend sets on insert.
func prepare(appt model.Appointment, id string, now time.Time) model.Appointment {
	if appt.ID == "" {
		appt.ID = id
	}
	if appt.Recipient == "" {
		appt.Recipient = "self"
	}
	appt.Status = model.StatusConfirmed
	appt.CancelReason = ""
	appt.CreatedAt = now
	appt.UpdatedAt = now
	return appt
}

func validInsert(appt model.Appointment) error {
	if appt.CustomerRef == "" || appt.Service == "" {
		return fmt.Errorf("%w: customer_ref and service required", ErrInvalid)
	}
	return validInterval(appt.Interval())
}

func validInterval(iv model.Interval) error {
	if !iv.Valid() {
		return fmt.Errorf("%w: end_time must be after start_time", ErrInvalid)
	}
	if iv.End.Sub(iv.Start) > MaxSpan {
		return fmt.Errorf("%w: appointment longer than %s", ErrInvalid, MaxSpan)
	}
	return nil
}
