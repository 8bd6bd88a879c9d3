package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

type Kind string

const (
	KindBook              Kind = "book"
	KindCancel            Kind = "cancel"
	KindReschedule        Kind = "reschedule"
	KindCheckAvailability Kind = "check_availability"
)

const (
	maxRefLen    = 128
	maxTextLen   = 500
	maxRangeSpan = 31 * 24 * time.Hour
)

// Intent is a structured request coming from an untrusted extractor or API client.
type Intent struct {
	CustomerRef   string
	CustomerName  string
	Service       string
	Kind          Kind
	At            *time.Time
	Range         *model.Interval
	AppointmentID string
	Recipient     string
	Reason        string
}

func ParseKind(raw string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindBook, KindCancel, KindReschedule, KindCheckAvailability:
		return k, true
	case "availability", "check":
		return KindCheckAvailability, true
	}
	return "", false
}

// normalize trims free text and checks the shape of the intent.
func (in Intent) normalize() (Intent, error) {
	in.CustomerRef = strings.TrimSpace(in.CustomerRef)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Service = strings.TrimSpace(in.Service)
	in.AppointmentID = strings.TrimSpace(in.AppointmentID)
	in.Recipient = strings.TrimSpace(in.Recipient)
	in.Reason = strings.TrimSpace(in.Reason)

	if in.CustomerRef == "" {
		return in, errors.New("customer_ref required")
	}
	if len(in.CustomerRef) > maxRefLen || len(in.AppointmentID) > maxRefLen {
		return in, errors.New("identifier too long")
	}
	if len(in.CustomerName) > maxTextLen || len(in.Recipient) > maxTextLen || len(in.Reason) > maxTextLen {
		return in, errors.New("text field too long")
	}
	if _, ok := ParseKind(string(in.Kind)); !ok {
		return in, fmt.Errorf("unknown intent kind %q", in.Kind)
	}
	in.Kind, _ = ParseKind(string(in.Kind))

	if in.At != nil && in.At.IsZero() {
		return in, errors.New("requested time is empty")
	}
	if in.Range != nil {
		if !in.Range.Valid() {
			return in, errors.New("requested range is empty")
		}
		if in.Range.Duration() > maxRangeSpan {
			return in, errors.New("requested range is too long")
		}
	}
	switch in.Kind {
	case KindBook, KindReschedule:
		if in.At == nil && in.Range == nil {
			return in, errors.New("requested time required")
		}
	}
	return in, nil
}

var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

// ParseTime accepts RFC 3339, or a local date-time interpreted in loc.
func ParseTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}
