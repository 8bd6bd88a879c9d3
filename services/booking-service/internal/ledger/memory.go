package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

// Memory is the in-process ledger. A single RWMutex serializes writers.
type Memory struct {
	mu    sync.RWMutex
	appts map[string]model.Appointment
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{appts: map[string]model.Appointment{}, now: time.Now}
}

func (m *Memory) FindConflicts(_ context.Context, iv model.Interval) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conflictsLocked(iv, ""), nil
}

func (m *Memory) Insert(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	if err := validInsert(appt); err != nil {
		return model.Appointment{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.conflictsLocked(appt.Interval(), "")) > 0 {
		return model.Appointment{}, ErrConflict
	}
	appt = prepare(appt, uuid.NewString(), m.now().UTC())
	if _, exists := m.appts[appt.ID]; exists {
		return model.Appointment{}, fmt.Errorf("%w: appointment id %s already used", ErrInvalid, appt.ID)
	}
	m.appts[appt.ID] = appt
	return appt, nil
}

func (m *Memory) Cancel(_ context.Context, id, reason string) (model.Appointment, error) {
	return m.transition(id, model.ActionCancel, func(a *model.Appointment) error {
		a.Status = model.StatusCancelled
		a.CancelReason = reason
		return nil
	})
}

func (m *Memory) Complete(_ context.Context, id string) (model.Appointment, error) {
	return m.transition(id, model.ActionComplete, func(a *model.Appointment) error {
		a.Status = model.StatusCompleted
		return nil
	})
}

func (m *Memory) Reschedule(_ context.Context, id string, iv model.Interval) (model.Appointment, error) {
	if err := validInterval(iv); err != nil {
		return model.Appointment{}, err
	}
	return m.transition(id, model.ActionReschedule, func(a *model.Appointment) error {
		if len(m.conflictsLocked(iv, a.ID)) > 0 {
			return ErrConflict
		}
		a.StartTime = iv.Start
		a.EndTime = iv.End
		return nil
	})
}

// transition applies fn to a copy and stores it only when fn succeeds.
func (m *Memory) transition(id, action string, fn func(*model.Appointment) error) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	if err := checkTransition(action, appt.Status); err != nil {
		return model.Appointment{}, err
	}
	next := appt
	if err := fn(&next); err != nil {
		return model.Appointment{}, err
	}
	next.UpdatedAt = m.now().UTC()
	m.appts[id] = next
	return next, nil
}

func (m *Memory) Get(_ context.Context, id string) (model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	appt, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

func (m *Memory) ListUpcoming(_ context.Context, from time.Time, window time.Duration) ([]model.Appointment, error) {
	until := from.Add(window)
	return m.list(func(a model.Appointment) bool {
		return !a.StartTime.Before(from) && a.StartTime.Before(until)
	}), nil
}

func (m *Memory) ListByCustomer(_ context.Context, customerRef string, from time.Time) ([]model.Appointment, error) {
	return m.list(func(a model.Appointment) bool {
		return a.CustomerRef == customerRef && !a.StartTime.Before(from)
	}), nil
}

func (m *Memory) list(keep func(model.Appointment) bool) []model.Appointment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.Status == model.StatusConfirmed && keep(a) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out
}

func (m *Memory) conflictsLocked(iv model.Interval, exclude string) []model.Appointment {
	var out []model.Appointment
	for id, a := range m.appts {
		if id == exclude || a.Status != model.StatusConfirmed {
			continue
		}
		if a.Interval().Overlaps(iv) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out
}

func sortByStart(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].StartTime.Equal(appts[j].StartTime) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}
