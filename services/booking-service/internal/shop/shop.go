// Package shop turns the shop configuration file into availability rules, the
// service catalog and notification settings.
package shop

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberbook/libs/config"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

type Shop struct {
	Name            string
	Location        *time.Location
	Rules           availability.Rules
	Catalog         map[string]model.Service
	DefaultService  string
	OperatorAddress string
	ReminderOffsets []time.Duration
	// MaxUpcoming caps confirmed future appointments per customer; 0 disables the cap.
	MaxUpcoming  int
	Alternatives int
}

// File is the YAML layout of SHOP_CONFIG.
type File struct {
	Name            string              `yaml:"name"`
	Timezone        string              `yaml:"timezone"`
	SlotMinutes     int                 `yaml:"slot_minutes"`
	MinLeadTime     string              `yaml:"min_lead_time"`
	Hours           map[string][]string `yaml:"hours"`
	Blackouts       []Blackout          `yaml:"blackouts"`
	Services        []ServiceEntry      `yaml:"services"`
	DefaultService  string              `yaml:"default_service"`
	OperatorAddress string              `yaml:"operator_address"`
	Reminders       []string            `yaml:"reminders"`
	MaxUpcoming     *int                `yaml:"max_upcoming_per_customer"`
	Alternatives    int                 `yaml:"alternatives"`
}

// Blackout is either a whole date or a local from/to range.
type Blackout struct {
	Date string `yaml:"date"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type ServiceEntry struct {
	Key     string `yaml:"key"`
	Name    string `yaml:"name"`
	Minutes int    `yaml:"minutes"`
}

const (
	dateLayout  = "2006-01-02"
	localLayout = "2006-01-02T15:04"
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday, "sun": time.Sunday, "mon": time.Monday,
	"tue": time.Tuesday, "wed": time.Wednesday, "thu": time.Thursday,
	"fri": time.Friday, "sat": time.Saturday,
}

// Default mirrors the original shop: Monday to Saturday 10:00-18:00, 30 minute
// slots, one hour lead time, reminders a day and an hour ahead.
func Default() File {
	open := []string{"10:00-18:00"}
	limit := 3
	return File{
		Name:        "BarberBook",
		Timezone:    "UTC",
		SlotMinutes: 30,
		MinLeadTime: "1h",
		Hours: map[string][]string{
			"monday": open, "tuesday": open, "wednesday": open,
			"thursday": open, "friday": open, "saturday": open,
		},
		Services: []ServiceEntry{
			{Key: "haircut", Name: "Haircut", Minutes: 30},
			{Key: "beard_trim", Name: "Beard trim", Minutes: 30},
			{Key: "styling", Name: "Styling", Minutes: 30},
			{Key: "shave", Name: "Shave", Minutes: 30},
		},
		DefaultService: "haircut",
		Reminders:      []string{"24h", "1h"},
		MaxUpcoming:    &limit,
		Alternatives:   3,
	}
}

// Load reads path when set, otherwise returns the default shop.
func Load(path string) (*Shop, error) {
	f := Default()
	if strings.TrimSpace(path) != "" {
		f = File{}
		if err := config.LoadYAML(path, &f); err != nil {
			return nil, err
		}
	}
	return f.Build()
}

func (f File) Build() (*Shop, error) {
	tz := strings.TrimSpace(f.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	if f.SlotMinutes <= 0 {
		return nil, errors.New("slot_minutes must be positive")
	}

	lead, err := optionalDuration(f.MinLeadTime)
	if err != nil {
		return nil, fmt.Errorf("min_lead_time: %w", err)
	}

	hours := make(map[time.Weekday][]availability.Window, len(f.Hours))
	for day, ranges := range f.Hours {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(day))]
		if !ok {
			return nil, fmt.Errorf("hours: unknown weekday %q", day)
		}
		for _, raw := range ranges {
			w, err := parseWindow(raw)
			if err != nil {
				return nil, fmt.Errorf("hours %s: %w", day, err)
			}
			hours[wd] = append(hours[wd], w)
		}
		sort.Slice(hours[wd], func(i, j int) bool { return hours[wd][i].Open < hours[wd][j].Open })
	}

	var blackouts []model.Interval
	for _, b := range f.Blackouts {
		iv, err := b.interval(loc)
		if err != nil {
			return nil, err
		}
		blackouts = append(blackouts, iv)
	}

	rules := availability.Rules{
		Location:    loc,
		Hours:       hours,
		Granularity: time.Duration(f.SlotMinutes) * time.Minute,
		Blackouts:   blackouts,
		MinLeadTime: lead,
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	catalog := make(map[string]model.Service, len(f.Services))
	for _, entry := range f.Services {
		key := normalizeKey(entry.Key)
		if key == "" {
			return nil, errors.New("service key required")
		}
		if entry.Minutes <= 0 || entry.Minutes > 24*60 {
			return nil, fmt.Errorf("service %s: minutes must be between 1 and 1440", key)
		}
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			name = entry.Key
		}
		if _, dup := catalog[key]; dup {
			return nil, fmt.Errorf("service %s listed twice", key)
		}
		catalog[key] = model.Service{Key: key, Name: name, Duration: time.Duration(entry.Minutes) * time.Minute}
	}
	if len(catalog) == 0 {
		return nil, errors.New("at least one service required")
	}
	defaultService := normalizeKey(f.DefaultService)
	if defaultService == "" && len(f.Services) > 0 {
		defaultService = normalizeKey(f.Services[0].Key)
	}
	if _, ok := catalog[defaultService]; !ok {
		return nil, fmt.Errorf("default_service %q not in catalog", f.DefaultService)
	}

	var offsets []time.Duration
	for _, raw := range f.Reminders {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("reminders: invalid offset %q", raw)
		}
		offsets = append(offsets, d)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] > offsets[j] })

	maxUpcoming := 3
	if f.MaxUpcoming != nil {
		if *f.MaxUpcoming < 0 {
			return nil, errors.New("max_upcoming_per_customer must not be negative")
		}
		maxUpcoming = *f.MaxUpcoming
	}
	alternatives := f.Alternatives
	if alternatives <= 0 {
		alternatives = 3
	}

	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = "BarberBook"
	}
	return &Shop{
		Name:            name,
		Location:        loc,
		Rules:           rules,
		Catalog:         catalog,
		DefaultService:  defaultService,
		OperatorAddress: strings.TrimSpace(f.OperatorAddress),
		ReminderOffsets: offsets,
		MaxUpcoming:     maxUpcoming,
		Alternatives:    alternatives,
	}, nil
}

// Service resolves a catalog entry by key or display name; empty selects the default.
func (s *Shop) Service(name string) (model.Service, bool) {
	key := normalizeKey(name)
	if key == "" {
		key = s.DefaultService
	}
	if svc, ok := s.Catalog[key]; ok {
		return svc, true
	}
	for _, svc := range s.Catalog {
		if normalizeKey(svc.Name) == key {
			return svc, true
		}
	}
	return model.Service{}, false
}

// ServiceNames lists catalog keys in stable order.
func (s *Shop) ServiceNames() []string {
	names := make([]string, 0, len(s.Catalog))
	for key := range s.Catalog {
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func optionalDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

func parseWindow(raw string) (availability.Window, error) {
	openRaw, closeRaw, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return availability.Window{}, fmt.Errorf("window %q must look like 10:00-18:00", raw)
	}
	o, err := parseClock(openRaw)
	if err != nil {
		return availability.Window{}, err
	}
	c, err := parseClock(closeRaw)
	if err != nil {
		return availability.Window{}, err
	}
	if c <= o {
		return availability.Window{}, fmt.Errorf("window %q closes before it opens", raw)
	}
	return availability.Window{Open: o, Close: c}, nil
}

func parseClock(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "24:00" {
		return 24 * time.Hour, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (b Blackout) interval(loc *time.Location) (model.Interval, error) {
	if d := strings.TrimSpace(b.Date); d != "" {
		day, err := time.ParseInLocation(dateLayout, d, loc)
		if err != nil {
			return model.Interval{}, fmt.Errorf("blackout date %q: %w", d, err)
		}
		return availability.DaySpan(day, loc), nil
	}
	from, err := time.ParseInLocation(localLayout, strings.TrimSpace(b.From), loc)
	if err != nil {
		return model.Interval{}, fmt.Errorf("blackout from %q: %w", b.From, err)
	}
	to, err := time.ParseInLocation(localLayout, strings.TrimSpace(b.To), loc)
	if err != nil {
		return model.Interval{}, fmt.Errorf("blackout to %q: %w", b.To, err)
	}
	if !to.After(from) {
		return model.Interval{}, fmt.Errorf("blackout %s ends before it starts", b.From)
	}
	return model.Interval{Start: from, End: to}, nil
}
