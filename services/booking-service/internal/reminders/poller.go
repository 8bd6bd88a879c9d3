// Package reminders emits ReminderDue events for confirmed appointments whose
// reminder time has come.
package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/notify"
	"github.com/robfig/cron/v3"
)

type Poller struct {
	ledger   ledger.Ledger
	sink     events.Sink
	marker   Marker
	logger   *slog.Logger
	offsets  []time.Duration
	window   time.Duration
	schedule string
	now      func() time.Time
}

type Config struct {
	Offsets []time.Duration
	// Window is how far back a missed reminder is still sent. It should cover
	// the schedule interval.
	Window   time.Duration
	Schedule string
}

func NewPoller(l ledger.Ledger, sink events.Sink, marker Marker, logger *slog.Logger, cfg Config) *Poller {
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if marker == nil {
		marker = NewMemoryMarker()
	}
	return &Poller{
		ledger:   l,
		sink:     sink,
		marker:   marker,
		logger:   logger,
		offsets:  cfg.Offsets,
		window:   cfg.Window,
		schedule: cfg.Schedule,
		now:      time.Now,
	}
}

// Run scans on the cron schedule until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.offsets) == 0 {
		p.logger.Warn("reminder poller disabled (no offsets configured)")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(p.schedule, func() {
		n, err := p.Scan(ctx)
		if err != nil {
			p.logger.Error("reminder scan failed", "err", err)
			return
		}
		if n > 0 {
			p.logger.Info("reminders emitted", "count", n)
		}
	}); err != nil {
		return err
	}
	c.Start()
	p.logger.Info("reminder poller started", "schedule", p.schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Scan emits every reminder whose remind-at falls in [now-window, now] and
// returns how many were handed to the sink.
func (p *Poller) Scan(ctx context.Context) (int, error) {
	now := p.now()
	var horizon time.Duration
	for _, off := range p.offsets {
		if off > horizon {
			horizon = off
		}
	}
	appts, err := p.ledger.ListUpcoming(ctx, now, horizon+time.Second)
	if err != nil {
		return 0, err
	}

	var (
		due    []events.Event
		marked []string
	)
	for _, appt := range appts {
		for _, off := range p.offsets {
			remindAt := appt.StartTime.Add(-off)
			if remindAt.After(now) || remindAt.Before(now.Add(-p.window)) {
				continue
			}
			key := notify.DedupeKey(appt, notify.ReminderTemplate(off))
			first, err := p.marker.Mark(ctx, key, appt.StartTime.Sub(now)+time.Hour)
			if err != nil {
				p.logger.Warn("reminder mark failed; emitting anyway", "err", err, "key", key)
			} else if !first {
				continue
			} else {
				marked = append(marked, key)
			}
			due = append(due, events.Event{Kind: events.ReminderDue, Appointment: appt, Offset: off, OccurredAt: now})
		}
	}
	if len(due) == 0 {
		return 0, nil
	}
	if err := p.sink.Publish(ctx, due); err != nil {
		// Release the marks so the next scan retries these reminders.
		for _, key := range marked {
			if uerr := p.marker.Unmark(context.WithoutCancel(ctx), key); uerr != nil {
				p.logger.Warn("reminder unmark failed", "err", uerr, "key", key)
			}
		}
		return 0, err
	}
	return len(due), nil
}
