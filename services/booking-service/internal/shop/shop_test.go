package shop

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultShop(t *testing.T) {
	s, err := Default().Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if s.Rules.Granularity != 30*time.Minute || s.Rules.MinLeadTime != time.Hour {
		t.Fatalf("unexpected rules %+v", s.Rules)
	}
	if len(s.Rules.Hours[time.Sunday]) != 0 || len(s.Rules.Hours[time.Saturday]) != 1 {
		t.Fatalf("expected Monday to Saturday hours, got %+v", s.Rules.Hours)
	}
	if len(s.ReminderOffsets) != 2 || s.ReminderOffsets[0] != 24*time.Hour || s.ReminderOffsets[1] != time.Hour {
		t.Fatalf("unexpected reminder offsets %v", s.ReminderOffsets)
	}
	if s.MaxUpcoming != 3 {
		t.Fatalf("expected cap 3, got %d", s.MaxUpcoming)
	}
	svc, ok := s.Service("")
	if !ok || svc.Key != "haircut" || svc.Duration != 30*time.Minute {
		t.Fatalf("unexpected default service %+v", svc)
	}
	if _, ok := s.Service("Beard Trim"); !ok {
		t.Fatalf("expected lookup by display name")
	}
	if _, ok := s.Service("manicure"); ok {
		t.Fatalf("unexpected service match")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shop.yaml")
	body := `
name: Corner Cuts
timezone: UTC
slot_minutes: 15
min_lead_time: 30m
hours:
  mon: ["09:00-12:00", "13:00-17:00"]
  saturday: ["10:00-14:00"]
blackouts:
  - date: 2026-12-25
  - from: 2026-03-02T09:00
    to: 2026-03-02T10:00
services:
  - key: haircut
    name: Haircut
    minutes: 30
  - key: beard-trim
    minutes: 15
operator_address: "telegram:42"
reminders: ["1h", "24h"]
max_upcoming_per_customer: 0
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Name != "Corner Cuts" || s.OperatorAddress != "telegram:42" {
		t.Fatalf("unexpected shop %+v", s)
	}
	if len(s.Rules.Hours[time.Monday]) != 2 || len(s.Rules.Blackouts) != 2 {
		t.Fatalf("unexpected rules %+v", s.Rules)
	}
	if s.MaxUpcoming != 0 {
		t.Fatalf("expected cap disabled, got %d", s.MaxUpcoming)
	}
	if s.DefaultService != "haircut" {
		t.Fatalf("expected first service as default, got %q", s.DefaultService)
	}
	if svc, ok := s.Service("beard_trim"); !ok || svc.Duration != 15*time.Minute {
		t.Fatalf("unexpected beard trim %+v", svc)
	}
	if s.ReminderOffsets[0] != 24*time.Hour {
		t.Fatalf("expected offsets sorted descending, got %v", s.ReminderOffsets)
	}

	monday := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	if s.Rules.IsBookable(s.Catalog["haircut"].IntervalAt(monday)) {
		t.Fatalf("expected blackout range to block 09:30")
	}
	if !s.Rules.IsBookable(s.Catalog["haircut"].IntervalAt(monday.Add(30 * time.Minute))) {
		t.Fatalf("expected 10:00 to be bookable")
	}
}

func TestBuildRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*File)
	}{
		{"bad timezone", func(f *File) { f.Timezone = "Mars/Olympus" }},
		{"no granularity", func(f *File) { f.SlotMinutes = 0 }},
		{"unknown weekday", func(f *File) { f.Hours["funday"] = []string{"10:00-12:00"} }},
		{"inverted window", func(f *File) { f.Hours["monday"] = []string{"18:00-10:00"} }},
		{"bad blackout", func(f *File) { f.Blackouts = []Blackout{{Date: "25/12/2026"}} }},
		{"empty catalog", func(f *File) { f.Services = nil }},
		{"missing default", func(f *File) { f.DefaultService = "manicure" }},
		{"bad reminder", func(f *File) { f.Reminders = []string{"soon"} }},
		{"bad lead time", func(f *File) { f.MinLeadTime = "an hour" }},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			f := Default()
			f.Hours = map[string][]string{"monday": {"10:00-18:00"}}
			tt.mutate(&f)
			if _, err := f.Build(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
