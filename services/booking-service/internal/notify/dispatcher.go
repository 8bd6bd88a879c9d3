// Package notify maps appointment events to channel-agnostic notification
// requests for the customer and the shop operator. It renders nothing itself.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberbook/libs/notification"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/shop"
)

type Payload = notification.Request

const (
	TemplateBookingConfirmed    = "booking_confirmed"
	TemplateBookingCancelled    = "booking_cancelled"
	TemplateBookingRescheduled  = "booking_rescheduled"
	TemplateOperatorNewBooking  = "operator_new_booking"
	TemplateOperatorCancelled   = "operator_cancellation"
	TemplateOperatorRescheduled = "operator_reschedule"
	templateReminderPrefix      = "reminder_"
)

const (
	dateLayout = "Monday, January 02"
	timeLayout = "03:04 PM"
)

type Dispatcher struct {
	shop *shop.Shop
}

func NewDispatcher(s *shop.Shop) *Dispatcher {
	return &Dispatcher{shop: s}
}

// Build returns the payloads for evt. It has no side effects, so building the
// same reminder twice yields two identical payloads with the same dedupe key.
func (d *Dispatcher) Build(evt events.Event) []Payload {
	appt := evt.Appointment
	vars := d.variables(evt)

	var out []Payload
	add := func(role notification.Role, address, template string) {
		address = strings.TrimSpace(address)
		if address == "" {
			return
		}
		out = append(out, Payload{
			Role:          role,
			Address:       address,
			Template:      template,
			Variables:     vars,
			DedupeKey:     DedupeKey(appt, template),
			AppointmentID: appt.ID,
			RequestedAt:   evt.OccurredAt.UTC(),
		})
	}

	switch evt.Kind {
	case events.Booked:
		add(notification.RoleCustomer, appt.CustomerRef, TemplateBookingConfirmed)
		add(notification.RoleOperator, d.shop.OperatorAddress, TemplateOperatorNewBooking)
	case events.Cancelled:
		add(notification.RoleCustomer, appt.CustomerRef, TemplateBookingCancelled)
		add(notification.RoleOperator, d.shop.OperatorAddress, TemplateOperatorCancelled)
	case events.Rescheduled:
		add(notification.RoleCustomer, appt.CustomerRef, TemplateBookingRescheduled)
		add(notification.RoleOperator, d.shop.OperatorAddress, TemplateOperatorRescheduled)
	case events.ReminderDue:
		add(notification.RoleCustomer, appt.CustomerRef, ReminderTemplate(evt.Offset))
	}
	return out
}

// DedupeKey identifies one logical message; a reschedule changes the start time
// and therefore yields fresh keys.
func DedupeKey(appt model.Appointment, template string) string {
	return appt.ID + "|" + template + "|" + appt.StartTime.UTC().Format(time.RFC3339)
}

// ReminderTemplate names the reminder for an offset, e.g. reminder_24h or reminder_1h.
func ReminderTemplate(offset time.Duration) string {
	return templateReminderPrefix + compactDuration(offset)
}

func compactDuration(d time.Duration) string {
	s := d.Round(time.Minute).String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}

func (d *Dispatcher) variables(evt events.Event) map[string]string {
	appt := evt.Appointment
	loc := d.shop.Location
	start := appt.StartTime.In(loc)

	serviceName := appt.Service
	if svc, ok := d.shop.Service(appt.Service); ok {
		serviceName = svc.Name
	}
	customer := appt.CustomerName
	if customer == "" {
		customer = appt.CustomerRef
	}

	vars := map[string]string{
		"shop_name":      d.shop.Name,
		"appointment_id": appt.ID,
		"customer_ref":   appt.CustomerRef,
		"customer_name":  customer,
		"recipient":      appt.Recipient,
		"service":        serviceName,
		"date":           start.Format(dateLayout),
		"time":           start.Format(timeLayout),
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
	}
	if appt.CancelReason != "" {
		vars["cancel_reason"] = appt.CancelReason
	}
	if evt.Previous != nil {
		prev := evt.Previous.Start.In(loc)
		vars["previous_date"] = prev.Format(dateLayout)
		vars["previous_time"] = prev.Format(timeLayout)
	}
	if evt.Kind == events.ReminderDue {
		vars["offset"] = compactDuration(evt.Offset)
		vars["lead"] = humanOffset(evt.Offset)
	}
	return vars
}

func humanOffset(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		n := int(d / (24 * time.Hour))
		if n == 1 {
			return "tomorrow"
		}
		return fmt.Sprintf("in %d days", n)
	case d%time.Hour == 0:
		n := int(d / time.Hour)
		if n == 1 {
			return "in 1 hour"
		}
		return fmt.Sprintf("in %d hours", n)
	}
	return fmt.Sprintf("in %d minutes", int(d/time.Minute))
}
