// Package events defines the appointment events emitted after a ledger commit
// and by the reminder poller.
package events

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

type Kind string

const (
	Booked      Kind = "booked"
	Cancelled   Kind = "cancelled"
	Rescheduled Kind = "rescheduled"
	ReminderDue Kind = "reminder_due"
)

type Event struct {
	Kind        Kind
	Appointment model.Appointment
	// Previous is the interval before a reschedule.
	Previous *model.Interval
	// Offset is how long before the start a reminder is due.
	Offset     time.Duration
	OccurredAt time.Time
}

// Sink receives events once the change they describe is committed.
type Sink interface {
	Publish(ctx context.Context, evts []Event) error
}

type SinkFunc func(ctx context.Context, evts []Event) error

func (f SinkFunc) Publish(ctx context.Context, evts []Event) error {
	return f(ctx, evts)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, []Event) error { return nil })
