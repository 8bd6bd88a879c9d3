package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/engine"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/shop"
)

const (
	whenLayout = "Monday, January 02 at 03:04 PM"
	dayLayout  = "Monday, January 02"
	slotLayout = "03:04 PM"
)

const notUnderstoodReply = "I couldn't understand that. Try something like 'book a haircut tomorrow at 3pm', 'cancel my appointment' or 'what times are free on Friday'."

// Reply renders a decision as a short customer-facing message in the shop timezone.
func Reply(d engine.Decision, s *shop.Shop) string {
	loc := s.Location
	switch d.Outcome {
	case engine.Committed:
		a := d.Appointment
		when := a.StartTime.In(loc).Format(whenLayout)
		switch d.Kind {
		case engine.KindBook:
			forWhom := ""
			if a.Recipient != "" && a.Recipient != "self" {
				forWhom = " for " + a.Recipient
			}
			name := d.Service.Name
			if name == "" {
				name = a.Service
			}
			return fmt.Sprintf("Perfect! I've booked your %s%s for %s. Reference #: %s", name, forWhom, when, a.ID)
		case engine.KindCancel:
			return fmt.Sprintf("Your appointment for %s has been cancelled.", when)
		case engine.KindReschedule:
			if d.Previous != nil {
				return fmt.Sprintf("Your appointment has been rescheduled from %s to %s.", d.Previous.Start.In(loc).Format(whenLayout), when)
			}
			return fmt.Sprintf("Your appointment has been rescheduled to %s.", when)
		}
	case engine.Offered:
		if len(d.Alternatives) == 0 {
			return "I'm sorry, there are no open slots in that period. Would you like to check a different day?"
		}
		if d.Kind == engine.KindCheckAvailability {
			return "Available times: " + formatSlots(d.Alternatives, loc) + "."
		}
		return "These times are open: " + formatSlots(d.Alternatives, loc) + ". Which one would you like?"
	case engine.Rejected:
		return rejection(d, s)
	}
	return notUnderstoodReply
}

func rejection(d engine.Decision, s *shop.Shop) string {
	var msg string
	switch d.Reason {
	case engine.ReasonConflict:
		msg = "I'm sorry, but that time slot is already booked."
	case engine.ReasonInvalidSlot:
		msg = "Sorry, we can't book that time. " + hoursSummary(s)
	case engine.ReasonNotFound:
		return "I couldn't find an upcoming appointment for you."
	case engine.ReasonAlreadyTerminal:
		return "That appointment has already been cancelled or completed."
	case engine.ReasonLimitReached:
		return fmt.Sprintf("You already have %d upcoming appointments. Please cancel one before booking another.", s.MaxUpcoming)
	case engine.ReasonStoreUnavailable:
		return "Sorry, we can't reach the booking system right now. Please try again in a few minutes."
	default:
		return notUnderstoodReply
	}
	if len(d.Alternatives) == 0 {
		return msg + " Would you like to check availability for a different day?"
	}
	return msg + " The closest available times are: " + formatSlots(d.Alternatives, s.Location) + ". Would you like one of these instead?"
}

// formatSlots lists times, naming the day only when it changes.
func formatSlots(slots []time.Time, loc *time.Location) string {
	parts := make([]string, 0, len(slots))
	lastDay := ""
	for _, t := range slots {
		t = t.In(loc)
		day := t.Format(dayLayout)
		if day != lastDay {
			parts = append(parts, day+" "+t.Format(slotLayout))
			lastDay = day
			continue
		}
		parts = append(parts, t.Format(slotLayout))
	}
	return strings.Join(parts, ", ")
}

func hoursSummary(s *shop.Shop) string {
	var days []string
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		ws := s.Rules.Hours[wd]
		if len(ws) == 0 {
			continue
		}
		spans := make([]string, 0, len(ws))
		for _, w := range ws {
			spans = append(spans, clock(w.Open)+"-"+clock(w.Close))
		}
		days = append(days, wd.String()[:3]+" "+strings.Join(spans, ", "))
	}
	if len(days) == 0 {
		return ""
	}
	return "Opening hours: " + strings.Join(days, "; ") + "."
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
