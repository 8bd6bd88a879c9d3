package engine

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

var (
	ErrInvalidSlot   = errors.New("requested time is not bookable")
	ErrInvalidIntent = errors.New("invalid intent")
	ErrLimitReached  = errors.New("customer has reached the upcoming appointment limit")
)

type Outcome string

const (
	// Committed means a ledger mutation succeeded.
	Committed Outcome = "committed"
	// Offered means nothing was written and free slots are proposed.
	Offered  Outcome = "offered"
	Rejected Outcome = "rejected"
)

type Reason string

const (
	ReasonNone             Reason = ""
	ReasonInvalidSlot      Reason = "invalid_slot"
	ReasonConflict         Reason = "conflict"
	ReasonNotFound         Reason = "not_found"
	ReasonAlreadyTerminal  Reason = "already_terminal"
	ReasonStoreUnavailable Reason = "store_unavailable"
	ReasonLimitReached     Reason = "limit_reached"
	ReasonInvalidIntent    Reason = "invalid_intent"
)

type Decision struct {
	Kind         Kind
	Outcome      Outcome
	Reason       Reason
	Detail       string
	Service      model.Service
	Requested    *time.Time
	Appointment  *model.Appointment
	Previous     *model.Interval
	Alternatives []time.Time
	Events       []events.Event
}

// Err returns the sentinel error matching the decision's reason, or nil.
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonInvalidSlot:
		return ErrInvalidSlot
	case ReasonConflict:
		return ledger.ErrConflict
	case ReasonNotFound:
		return ledger.ErrNotFound
	case ReasonAlreadyTerminal:
		return ledger.ErrAlreadyTerminal
	case ReasonStoreUnavailable:
		return ledger.ErrStoreUnavailable
	case ReasonLimitReached:
		return ErrLimitReached
	case ReasonInvalidIntent:
		return ErrInvalidIntent
	}
	return nil
}

// reasonFor maps a ledger error onto a decision reason.
func reasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ledger.ErrConflict):
		return ReasonConflict
	case errors.Is(err, ledger.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ledger.ErrAlreadyTerminal):
		return ReasonAlreadyTerminal
	case errors.Is(err, ledger.ErrInvalid):
		return ReasonInvalidIntent
	}
	return ReasonStoreUnavailable
}
