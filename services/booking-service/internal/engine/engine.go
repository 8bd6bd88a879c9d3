// Package engine turns intents into ledger mutations. Each intent is validated
// against the shop rules and the ledger, then either committed or rejected.
// Nothing is cached between calls: every decision reads the ledger afresh.
package engine

import (
	"context"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/barberbook/libs/otel"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/shop"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// lookAheadDays bounds the search for alternatives when the requested day is full.
const lookAheadDays = 7

type Clock func() time.Time

type Engine struct {
	shop   *shop.Shop
	ledger ledger.Ledger
	sink   events.Sink
	logger *slog.Logger
	now    Clock
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.now = c }
}

func New(s *shop.Shop, l ledger.Ledger, sink events.Sink, logger *slog.Logger, opts ...Option) *Engine {
	if sink == nil {
		sink = events.Discard
	}
	e := &Engine{shop: s, ledger: l, sink: sink, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Shop() *shop.Shop { return e.shop }

// Handle runs one intent to a decision. Committed events are handed to the sink
// afterwards; sink failures are logged and never change the decision.
func (e *Engine) Handle(ctx context.Context, in Intent) Decision {
	ctx, span := otelx.Tracer("engine").Start(ctx, "engine.Handle")
	defer span.End()

	d := e.handle(ctx, in)
	span.SetAttributes(
		attribute.String("intent.kind", string(d.Kind)),
		attribute.String("decision.outcome", string(d.Outcome)),
		attribute.String("decision.reason", string(d.Reason)),
	)
	if d.Reason == ReasonStoreUnavailable {
		span.SetStatus(codes.Error, d.Detail)
	}

	if d.Outcome == Committed && len(d.Events) > 0 {
		if err := e.sink.Publish(ctx, d.Events); err != nil {
			e.logger.Warn("event publish failed", "err", err, "kind", d.Kind, "appointment_id", d.Appointment.ID)
		}
	}
	return d
}

func (e *Engine) handle(ctx context.Context, raw Intent) Decision {
	in, err := raw.normalize()
	if err != nil {
		return Decision{Kind: raw.Kind, Outcome: Rejected, Reason: ReasonInvalidIntent, Detail: err.Error()}
	}
	now := e.now().In(e.shop.Location)

	switch in.Kind {
	case KindBook:
		return e.book(ctx, in, now)
	case KindCancel:
		return e.cancel(ctx, in, now)
	case KindReschedule:
		return e.reschedule(ctx, in, now)
	default:
		return e.checkAvailability(ctx, in, now)
	}
}

func (e *Engine) book(ctx context.Context, in Intent, now time.Time) Decision {
	d := Decision{Kind: KindBook, Requested: in.At}
	svc, ok := e.shop.Service(in.Service)
	if !ok {
		return d.reject(ReasonInvalidIntent, "unknown service "+in.Service)
	}
	d.Service = svc

	if e.shop.MaxUpcoming > 0 {
		mine, err := e.ledger.ListByCustomer(ctx, in.CustomerRef, now)
		if err != nil {
			return d.fail(err)
		}
		if len(mine) >= e.shop.MaxUpcoming {
			return d.reject(ReasonLimitReached, "")
		}
	}

	if in.At == nil {
		return e.offer(ctx, d, svc, in.Range.Start, in.Range, now)
	}

	iv := svc.IntervalAt(in.At.In(e.shop.Location))
	if reason, alts, err := e.precheck(ctx, svc, iv, in.Range, "", now); err != nil {
		return d.fail(err)
	} else if reason != ReasonNone {
		if reason == ReasonInvalidSlot && in.Range != nil {
			return e.offer(ctx, d, svc, iv.Start, in.Range, now)
		}
		d.Alternatives = alts
		return d.reject(reason, "")
	}

	appt, err := e.ledger.Insert(ctx, model.Appointment{
		CustomerRef:  in.CustomerRef,
		CustomerName: in.CustomerName,
		Recipient:    in.Recipient,
		Service:      svc.Key,
		StartTime:    iv.Start,
		EndTime:      iv.End,
	})
	if err != nil {
		if reasonFor(err) == ReasonConflict {
			d.Alternatives = e.alternatives(ctx, svc, iv.Start, in.Range, "", now)
			return d.reject(ReasonConflict, "")
		}
		return d.fail(err)
	}
	if e.overLimit(ctx, appt, now) {
		return d.reject(ReasonLimitReached, "")
	}

	d.Outcome = Committed
	d.Appointment = &appt
	d.Events = []events.Event{{Kind: events.Booked, Appointment: appt, OccurredAt: now}}
	return d
}

// overLimit re-counts the customer's upcoming appointments after an insert and
// cancels appt when concurrent bookings pushed the customer past the cap.
// Racing bookings may all roll back; the cap is never exceeded while the
// rollback succeeds.
func (e *Engine) overLimit(ctx context.Context, appt model.Appointment, now time.Time) bool {
	if e.shop.MaxUpcoming <= 0 {
		return false
	}
	mine, err := e.ledger.ListByCustomer(ctx, appt.CustomerRef, now)
	if err != nil || len(mine) <= e.shop.MaxUpcoming {
		return false
	}
	if _, err := e.ledger.Cancel(ctx, appt.ID, string(ReasonLimitReached)); err != nil {
		e.logger.Warn("limit rollback failed; booking stands", "err", err, "appointment_id", appt.ID)
		return false
	}
	return true
}

func (e *Engine) cancel(ctx context.Context, in Intent, now time.Time) Decision {
	d := Decision{Kind: KindCancel}
	target, err := e.target(ctx, in, now)
	if err != nil {
		return d.fail(err)
	}
	d.Service, _ = e.shop.Service(target.Service)

	appt, err := e.ledger.Cancel(ctx, target.ID, in.Reason)
	if err != nil {
		d.Appointment = &target
		return d.fail(err)
	}
	d.Outcome = Committed
	d.Appointment = &appt
	d.Events = []events.Event{{Kind: events.Cancelled, Appointment: appt, OccurredAt: now}}
	return d
}

func (e *Engine) reschedule(ctx context.Context, in Intent, now time.Time) Decision {
	d := Decision{Kind: KindReschedule, Requested: in.At}
	target, err := e.target(ctx, in, now)
	if err != nil {
		return d.fail(err)
	}
	if target.Status.Terminal() {
		d.Appointment = &target
		return d.reject(ReasonAlreadyTerminal, "")
	}
	svc, ok := e.shop.Service(target.Service)
	if !ok {
		svc = model.Service{Key: target.Service, Name: target.Service, Duration: target.EndTime.Sub(target.StartTime)}
	}
	d.Service = svc
	previous := target.Interval()
	d.Previous = &previous

	if in.At == nil {
		d.Appointment = &target
		return e.offer(ctx, d, svc, in.Range.Start, in.Range, now)
	}

	iv := svc.IntervalAt(in.At.In(e.shop.Location))
	if reason, alts, err := e.precheck(ctx, svc, iv, in.Range, target.ID, now); err != nil {
		return d.fail(err)
	} else if reason != ReasonNone {
		d.Appointment = &target
		if reason == ReasonInvalidSlot && in.Range != nil {
			return e.offer(ctx, d, svc, iv.Start, in.Range, now)
		}
		d.Alternatives = alts
		return d.reject(reason, "")
	}

	appt, err := e.ledger.Reschedule(ctx, target.ID, iv)
	if err != nil {
		d.Appointment = &target
		if reasonFor(err) == ReasonConflict {
			d.Alternatives = e.alternatives(ctx, svc, iv.Start, in.Range, target.ID, now)
		}
		return d.fail(err)
	}
	d.Outcome = Committed
	d.Appointment = &appt
	d.Events = []events.Event{{Kind: events.Rescheduled, Appointment: appt, Previous: &previous, OccurredAt: now}}
	return d
}

func (e *Engine) checkAvailability(ctx context.Context, in Intent, now time.Time) Decision {
	d := Decision{Kind: KindCheckAvailability, Outcome: Offered, Requested: in.At}
	svc, ok := e.shop.Service(in.Service)
	if !ok {
		return d.reject(ReasonInvalidIntent, "unknown service "+in.Service)
	}
	d.Service = svc

	rng := in.Range
	if rng == nil {
		day := now
		if in.At != nil {
			day = *in.At
		}
		span := availability.DaySpan(day, e.shop.Location)
		rng = &span
	}
	busy, err := e.ledger.FindConflicts(ctx, *rng)
	if err != nil {
		return d.fail(err)
	}
	for t := range e.shop.Rules.EnumerateRange(*rng, svc, intervals(busy, ""), now) {
		d.Alternatives = append(d.Alternatives, t)
	}
	return d
}

// precheck applies the checks that precede a commit, in order: opening hours
// and lead time, then overlap with confirmed bookings, then slot alignment. An
// overlapping request is reported as a conflict even when it is off grid.
func (e *Engine) precheck(ctx context.Context, svc model.Service, iv model.Interval, within *model.Interval, exclude string, now time.Time) (Reason, []time.Time, error) {
	rules := e.shop.Rules
	if !rules.WithinHours(iv) || !rules.LeadTimeOK(iv.Start, now) {
		return ReasonInvalidSlot, e.alternatives(ctx, svc, iv.Start, within, exclude, now), nil
	}
	conflicts, err := e.ledger.FindConflicts(ctx, iv)
	if err != nil {
		return ReasonNone, nil, err
	}
	if len(intervals(conflicts, exclude)) > 0 {
		return ReasonConflict, e.alternatives(ctx, svc, iv.Start, within, exclude, now), nil
	}
	if !rules.Aligned(iv) {
		return ReasonInvalidSlot, e.alternatives(ctx, svc, iv.Start, within, exclude, now), nil
	}
	return ReasonNone, nil, nil
}

// offer proposes free slots nearest to target inside within without writing anything.
func (e *Engine) offer(ctx context.Context, d Decision, svc model.Service, target time.Time, within *model.Interval, now time.Time) Decision {
	exclude := ""
	if d.Appointment != nil {
		exclude = d.Appointment.ID
	}
	busy, err := e.ledger.FindConflicts(ctx, *within)
	if err != nil {
		return d.fail(err)
	}
	d.Alternatives = availability.Nearest(e.shop.Rules.EnumerateRange(*within, svc, intervals(busy, exclude), now), target, e.shop.Alternatives)
	if len(d.Alternatives) == 0 {
		return d.reject(ReasonInvalidSlot, "no free slot in the requested range")
	}
	d.Outcome = Offered
	return d
}

// alternatives returns free slots nearest to target: inside within when given,
// otherwise on the same day, falling back to the first free slots of the
// following days. Store errors yield no alternatives.
func (e *Engine) alternatives(ctx context.Context, svc model.Service, target time.Time, within *model.Interval, exclude string, now time.Time) []time.Time {
	n := e.shop.Alternatives
	if within != nil {
		busy, err := e.ledger.FindConflicts(ctx, *within)
		if err != nil {
			e.logger.Warn("alternatives lookup failed", "err", err)
			return nil
		}
		return availability.Nearest(e.shop.Rules.EnumerateRange(*within, svc, intervals(busy, exclude), now), target, n)
	}

	day := availability.DaySpan(target, e.shop.Location)
	for i := 0; i <= lookAheadDays; i++ {
		span := model.Interval{Start: day.Start.AddDate(0, 0, i), End: day.End.AddDate(0, 0, i)}
		if span.End.Before(now) {
			continue
		}
		busy, err := e.ledger.FindConflicts(ctx, span)
		if err != nil {
			e.logger.Warn("alternatives lookup failed", "err", err)
			return nil
		}
		slots := e.shop.Rules.EnumerateFreeSlots(span.Start, svc, intervals(busy, exclude), now)
		var picked []time.Time
		if i == 0 {
			picked = availability.Nearest(slots, target, n)
		} else {
			picked = availability.First(slots, n)
		}
		if len(picked) > 0 {
			return picked
		}
	}
	return nil
}

// target resolves the appointment a cancel or reschedule refers to: the given
// id when it belongs to the customer, otherwise their next upcoming appointment.
func (e *Engine) target(ctx context.Context, in Intent, now time.Time) (model.Appointment, error) {
	if in.AppointmentID != "" {
		appt, err := e.ledger.Get(ctx, in.AppointmentID)
		if err != nil {
			return model.Appointment{}, err
		}
		if appt.CustomerRef != in.CustomerRef {
			return model.Appointment{}, ledger.ErrNotFound
		}
		return appt, nil
	}
	mine, err := e.ledger.ListByCustomer(ctx, in.CustomerRef, now)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(mine) == 0 {
		return model.Appointment{}, ledger.ErrNotFound
	}
	return mine[0], nil
}

func (d Decision) reject(reason Reason, detail string) Decision {
	d.Outcome = Rejected
	d.Reason = reason
	d.Detail = detail
	return d
}

func (d Decision) fail(err error) Decision {
	d.Outcome = Rejected
	d.Reason = reasonFor(err)
	d.Detail = err.Error()
	return d
}

func intervals(appts []model.Appointment, exclude string) []model.Interval {
	out := make([]model.Interval, 0, len(appts))
	for _, a := range appts {
		if a.ID == exclude {
			continue
		}
		out = append(out, a.Interval())
	}
	return out
}
