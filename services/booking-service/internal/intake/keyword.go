package intake

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/engine"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/shop"
)

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	clockRe     = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm)?\b`)
	hourMerRe   = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`)
	atHourRe    = regexp.MustCompile(`\bat\s+(\d{1,2})\b`)
	uuidRe      = regexp.MustCompile(`\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	weekdayRe   = regexp.MustCompile(`\b(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	weekdayWord = map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
		"saturday": time.Saturday,
	}
)

// KeywordExtractor is the deterministic extractor used when no model is configured.
type KeywordExtractor struct {
	shop *shop.Shop
}

func NewKeywordExtractor(s *shop.Shop) *KeywordExtractor {
	return &KeywordExtractor{shop: s}
}

func (k *KeywordExtractor) Extract(_ context.Context, msg Message) (engine.Intent, error) {
	text := strings.ToLower(strings.TrimSpace(msg.Text))
	if text == "" {
		return engine.Intent{}, ErrNotUnderstood
	}
	f := Fields{Intent: string(kindOf(text))}
	if f.Intent == "" {
		return engine.Intent{}, ErrNotUnderstood
	}

	now := msg.ReceivedAt.In(k.shop.Location)
	f.Date = dateOf(text, now)
	f.Time = clockOf(text)
	f.Service = k.serviceOf(text)
	f.AppointmentID = uuidRe.FindString(text)
	if f.Intent == string(engine.KindCancel) {
		f.Reason = reasonOf(msg.Text)
	}
	return f.ToIntent(msg, k.shop.Location)
}

func kindOf(text string) engine.Kind {
	switch {
	case strings.Contains(text, "cancel"):
		return engine.KindCancel
	case strings.Contains(text, "reschedule"), strings.Contains(text, "move my"), strings.Contains(text, "change my"):
		return engine.KindReschedule
	case strings.Contains(text, "availab"), strings.Contains(text, "free"), strings.Contains(text, "open slot"),
		strings.Contains(text, "slots"), strings.Contains(text, "what times"):
		return engine.KindCheckAvailability
	case strings.Contains(text, "book"), strings.Contains(text, "appointment"), strings.Contains(text, "schedule"),
		clockRe.MatchString(text), hourMerRe.MatchString(text):
		return engine.KindBook
	}
	return ""
}

func dateOf(text string, now time.Time) string {
	if m := isoDateRe.FindString(text); m != "" {
		return m
	}
	switch {
	case strings.Contains(text, "today"):
		return now.Format("2006-01-02")
	case strings.Contains(text, "tomorrow"):
		return now.AddDate(0, 0, 1).Format("2006-01-02")
	}
	if m := weekdayRe.FindString(text); m != "" {
		ahead := (int(weekdayWord[m]) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return now.AddDate(0, 0, ahead).Format("2006-01-02")
	}
	return ""
}

func clockOf(text string) string {
	if m := clockRe.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		return to24h(h, mins, m[3])
	}
	if m := hourMerRe.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		return to24h(h, 0, m[2])
	}
	if m := atHourRe.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		// A bare "at 3" inside opening hours means the afternoon.
		if h >= 1 && h <= 7 {
			h += 12
		}
		return to24h(h, 0, "")
	}
	return ""
}

func to24h(h, m int, meridiem string) string {
	switch meridiem {
	case "pm":
		if h < 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	}
	if h > 23 || m > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (k *KeywordExtractor) serviceOf(text string) string {
	for _, key := range k.shop.ServiceNames() {
		svc := k.shop.Catalog[key]
		for _, needle := range []string{strings.ReplaceAll(key, "_", " "), strings.ToLower(svc.Name)} {
			if needle != "" && strings.Contains(text, needle) {
				return key
			}
		}
	}
	return ""
}

func reasonOf(raw string) string {
	lower := strings.ToLower(raw)
	if i := strings.Index(lower, "because"); i >= 0 {
		return strings.TrimSpace(raw[i+len("because"):])
	}
	return ""
}
