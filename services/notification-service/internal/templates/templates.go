// Package templates renders notification template keys into message text.
// Placeholders are {name}; unknown placeholders render empty.
package templates

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrUnknownTemplate = errors.New("unknown template")

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// reminderRe matches reminder_24h, reminder_1h, reminder_1h30m and similar keys.
var reminderRe = regexp.MustCompile(`^reminder_\d+[hm](\d+m)?$`)

var texts = map[string]string{
	"booking_confirmed": "✅ Booking Confirmed\n\nYour {service}{for_recipient} is scheduled for {date} at {time}.\n\n" +
		"Reference #: {appointment_id}\n\nYou'll receive a reminder before your appointment.",
	"booking_cancelled":   "Your appointment for {date} at {time} has been cancelled.",
	"booking_rescheduled": "Your appointment has been rescheduled from {previous_date} at {previous_time} to {date} at {time}.",

	"operator_new_booking":  "📅 New Appointment\nTime: {date} at {time}\nService: {service}\nCustomer: {customer}{for_recipient}",
	"operator_cancellation": "❌ Cancelled Appointment\nTime: {date} at {time}\nCustomer: {customer}{cancel_note}",
	"operator_reschedule":   "🔄 Rescheduled Appointment\nCustomer: {customer}\nFrom: {previous_date} at {previous_time}\nTo: {date} at {time}",

	"reminder_24h": "Reminder: You have a barber appointment tomorrow, {date} at {time}. Reply CANCEL to cancel.",
	"reminder_1h":  "Your {service} appointment is in 1 hour at {time}. We're looking forward to seeing you soon!",
}

const reminderFallback = "Reminder: your {service} appointment at {shop_name} is {lead}, {date} at {time}."

type Renderer struct {
	texts map[string]string
}

// New returns a renderer with the built-in texts; overrides replace or add keys.
func New(overrides map[string]string) *Renderer {
	merged := make(map[string]string, len(texts)+len(overrides))
	for k, v := range texts {
		merged[k] = v
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) != "" {
			merged[k] = v
		}
	}
	return &Renderer{texts: merged}
}

func (r *Renderer) Render(template string, vars map[string]string) (string, error) {
	text, ok := r.texts[template]
	if !ok {
		if !reminderRe.MatchString(template) {
			return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
		}
		text = reminderFallback
	}
	vars = derived(vars)
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		return vars[m[1:len(m)-1]]
	}), nil
}

// derived adds the composed values the texts use.
func derived(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars)+3)
	for k, v := range vars {
		out[k] = v
	}
	if r := out["recipient"]; r != "" && !strings.EqualFold(r, "self") {
		out["for_recipient"] = " for " + r
	}
	customer := out["customer_name"]
	switch {
	case customer == "":
		customer = out["customer_ref"]
	case out["customer_ref"] != "":
		customer += " (" + out["customer_ref"] + ")"
	}
	out["customer"] = customer
	if reason := out["cancel_reason"]; reason != "" {
		out["cancel_note"] = "\nReason: " + reason
	}
	return out
}
