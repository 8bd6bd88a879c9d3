package templates

import (
	"errors"
	"strings"
	"testing"
)

func vars() map[string]string {
	return map[string]string{
		"shop_name":      "BarberBook",
		"appointment_id": "appt-1",
		"customer_ref":   "+15550001111",
		"customer_name":  "Sam",
		"recipient":      "self",
		"service":        "Haircut",
		"date":           "Tuesday, March 03",
		"time":           "03:00 PM",
		"previous_date":  "Tuesday, March 03",
		"previous_time":  "10:00 AM",
		"lead":           "in 30 minutes",
	}
}

func TestRender(t *testing.T) {
	r := New(nil)
	tests := []struct {
		template string
		mutate   func(map[string]string)
		want     []string
		absent   []string
	}{
		{
			template: "booking_confirmed",
			want:     []string{"Your Haircut is scheduled for Tuesday, March 03 at 03:00 PM", "Reference #: appt-1"},
			absent:   []string{"{", "for self"},
		},
		{
			template: "booking_confirmed",
			mutate:   func(v map[string]string) { v["recipient"] = "my son" },
			want:     []string{"Your Haircut for my son is scheduled"},
		},
		{
			template: "booking_rescheduled",
			want:     []string{"from Tuesday, March 03 at 10:00 AM to Tuesday, March 03 at 03:00 PM"},
		},
		{
			template: "operator_new_booking",
			want:     []string{"New Appointment", "Customer: Sam (+15550001111)"},
		},
		{
			template: "operator_cancellation",
			mutate:   func(v map[string]string) { v["cancel_reason"] = "sick"; v["customer_name"] = "" },
			want:     []string{"Customer: +15550001111", "Reason: sick"},
		},
		{
			template: "reminder_24h",
			want:     []string{"tomorrow, Tuesday, March 03 at 03:00 PM"},
		},
		{
			template: "reminder_1h",
			want:     []string{"in 1 hour at 03:00 PM"},
		},
		{
			template: "reminder_30m",
			want:     []string{"Haircut appointment at BarberBook is in 30 minutes"},
		},
	}
	for _, tc := range tests {
		v := vars()
		if tc.mutate != nil {
			tc.mutate(v)
		}
		got, err := r.Render(tc.template, v)
		if err != nil {
			t.Fatalf("%s: render: %v", tc.template, err)
		}
		for _, w := range tc.want {
			if !strings.Contains(got, w) {
				t.Fatalf("%s: %q missing %q", tc.template, got, w)
			}
		}
		for _, a := range tc.absent {
			if strings.Contains(got, a) {
				t.Fatalf("%s: %q should not contain %q", tc.template, got, a)
			}
		}
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	for _, name := range []string{"", "promo_blast", "reminder_soon"} {
		if _, err := New(nil).Render(name, vars()); !errors.Is(err, ErrUnknownTemplate) {
			t.Fatalf("%q: expected ErrUnknownTemplate, got %v", name, err)
		}
	}
}

func TestRenderOverride(t *testing.T) {
	r := New(map[string]string{"booking_cancelled": "Cancelled {date}.", "reminder_1h": "  "})
	got, err := r.Render("booking_cancelled", vars())
	if err != nil || got != "Cancelled Tuesday, March 03." {
		t.Fatalf("unexpected %q %v", got, err)
	}
	got, _ = r.Render("reminder_1h", vars())
	if !strings.Contains(got, "in 1 hour") {
		t.Fatalf("blank override should keep the built-in text, got %q", got)
	}
}
