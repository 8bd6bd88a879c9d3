// Package intake adapts free-text channel messages to engine intents and
// formats decisions back into short replies.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/engine"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

var ErrNotUnderstood = errors.New("message not understood")

type Message struct {
	CustomerRef  string
	CustomerName string
	Channel      string
	Text         string
	ReceivedAt   time.Time
}

type Extractor interface {
	Extract(ctx context.Context, msg Message) (engine.Intent, error)
}

// Fields is the flat structure both extractors produce. Dates and times are
// local to the shop.
type Fields struct {
	Intent        string `json:"intent"`
	Service       string `json:"service"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	RangeStart    string `json:"range_start"`
	RangeEnd      string `json:"range_end"`
	AppointmentID string `json:"appointment_id"`
	CustomerName  string `json:"customer_name"`
	Recipient     string `json:"recipient"`
	Reason        string `json:"reason"`
}

// searchDays is how far ahead a booking without any date looks for slots.
const searchDays = 7

// ToIntent validates the extracted fields. Nothing from an extractor is trusted.
func (f Fields) ToIntent(msg Message, loc *time.Location) (engine.Intent, error) {
	kind, ok := engine.ParseKind(f.Intent)
	if !ok {
		return engine.Intent{}, fmt.Errorf("%w: intent %q", ErrNotUnderstood, f.Intent)
	}
	in := engine.Intent{
		CustomerRef:   msg.CustomerRef,
		CustomerName:  firstNonEmpty(f.CustomerName, msg.CustomerName),
		Service:       f.Service,
		Kind:          kind,
		AppointmentID: f.AppointmentID,
		Recipient:     f.Recipient,
		Reason:        f.Reason,
	}
	now := msg.ReceivedAt.In(loc)

	date := strings.TrimSpace(f.Date)
	clock := strings.TrimSpace(f.Time)
	switch {
	case date != "" && clock != "":
		at, err := engine.ParseTime(date+"T"+clock, loc)
		if err != nil {
			return engine.Intent{}, fmt.Errorf("%w: %v", ErrNotUnderstood, err)
		}
		in.At = &at
	case clock != "":
		at, err := engine.ParseTime(now.Format("2006-01-02")+"T"+clock, loc)
		if err != nil {
			return engine.Intent{}, fmt.Errorf("%w: %v", ErrNotUnderstood, err)
		}
		in.At = &at
	case date != "":
		day, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return engine.Intent{}, fmt.Errorf("%w: %v", ErrNotUnderstood, err)
		}
		span := availability.DaySpan(day, loc)
		in.Range = &span
	}

	if f.RangeStart != "" && f.RangeEnd != "" {
		start, err := engine.ParseTime(f.RangeStart, loc)
		if err != nil {
			return engine.Intent{}, fmt.Errorf("%w: %v", ErrNotUnderstood, err)
		}
		end, err := engine.ParseTime(f.RangeEnd, loc)
		if err != nil {
			return engine.Intent{}, fmt.Errorf("%w: %v", ErrNotUnderstood, err)
		}
		in.Range = &model.Interval{Start: start, End: end}
	}

	if (kind == engine.KindBook || kind == engine.KindReschedule) && in.At == nil && in.Range == nil {
		in.Range = &model.Interval{Start: now, End: now.AddDate(0, 0, searchDays)}
	}
	return in, nil
}

// Fallback tries each extractor in turn until one succeeds.
type Fallback []Extractor

func (f Fallback) Extract(ctx context.Context, msg Message) (engine.Intent, error) {
	var errs []error
	for _, ex := range f {
		if ex == nil {
			continue
		}
		in, err := ex.Extract(ctx, msg)
		if err == nil {
			return in, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return engine.Intent{}, ErrNotUnderstood
	}
	return engine.Intent{}, errors.Join(errs...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
