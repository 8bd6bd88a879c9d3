package ledger

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/barberbook/libs/db"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
)

//go:embed schema.sql
var Schema string

// shopLockKey serializes every commit that can create an overlap.
const shopLockKey int64 = 0x6261726265720001

const apptColumns = `id::text, customer_ref, customer_name, recipient, service, start_time, end_time,
	status, cancel_reason, created_at, updated_at`

// Postgres stores appointments as rows. Commits are serialized by a transaction
// scoped advisory lock; the exclusion constraint is the second line of defence.
type Postgres struct {
	pool *db.Pool
	now  func() time.Time
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

func (p *Postgres) FindConflicts(ctx context.Context, iv model.Interval) ([]model.Appointment, error) {
	appts, err := queryAppointments(ctx, p.pool, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE status = 'confirmed' AND start_time < $2 AND end_time > $1
		ORDER BY start_time ASC
	`, iv.Start, iv.End)
	if err != nil {
		return nil, unavailable("find conflicts", err)
	}
	return appts, nil
}

func (p *Postgres) Insert(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	if err := validInsert(appt); err != nil {
		return model.Appointment{}, err
	}
	appt = prepare(appt, uuid.NewString(), p.now().UTC())

	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := lockShop(ctx, tx); err != nil {
			return err
		}
		conflicts, err := queryAppointments(ctx, tx, `
			SELECT `+apptColumns+`
			FROM appointments
			WHERE status = 'confirmed' AND start_time < $2 AND end_time > $1
			LIMIT 1
		`, appt.StartTime, appt.EndTime)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return ErrConflict
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, customer_ref, customer_name, recipient, service, start_time, end_time, status, cancel_reason, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, appt.ID, appt.CustomerRef, appt.CustomerName, appt.Recipient, appt.Service,
			appt.StartTime, appt.EndTime, appt.Status, appt.CancelReason, appt.CreatedAt, appt.UpdatedAt); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, classify("insert", err)
	}
	return appt, nil
}

func (p *Postgres) Cancel(ctx context.Context, id, reason string) (model.Appointment, error) {
	return p.transition(ctx, id, model.ActionCancel, false, func(a *model.Appointment) {
		a.Status = model.StatusCancelled
		a.CancelReason = reason
	})
}

func (p *Postgres) Complete(ctx context.Context, id string) (model.Appointment, error) {
	return p.transition(ctx, id, model.ActionComplete, false, func(a *model.Appointment) {
		a.Status = model.StatusCompleted
	})
}

func (p *Postgres) Reschedule(ctx context.Context, id string, iv model.Interval) (model.Appointment, error) {
	if err := validInterval(iv); err != nil {
		return model.Appointment{}, err
	}
	return p.transition(ctx, id, model.ActionReschedule, true, func(a *model.Appointment) {
		a.StartTime = iv.Start
		a.EndTime = iv.End
	})
}

// transition locks the row, applies fn and writes it back in one transaction.
// When moving is set the new interval is re-checked for conflicts under the shop lock.
func (p *Postgres) transition(ctx context.Context, id, action string, moving bool, fn func(*model.Appointment)) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, ErrNotFound
	}

	var out model.Appointment
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		if moving {
			if err := lockShop(ctx, tx); err != nil {
				return err
			}
		}
		appts, err := queryAppointments(ctx, tx, `
			SELECT `+apptColumns+`
			FROM appointments
			WHERE id = $1
			FOR UPDATE
		`, id)
		if err != nil {
			return err
		}
		if len(appts) == 0 {
			return ErrNotFound
		}
		appt := appts[0]
		if err := checkTransition(action, appt.Status); err != nil {
			return err
		}
		fn(&appt)
		appt.UpdatedAt = p.now().UTC()

		if moving {
			conflicts, err := queryAppointments(ctx, tx, `
				SELECT `+apptColumns+`
				FROM appointments
				WHERE status = 'confirmed' AND id <> $3 AND start_time < $2 AND end_time > $1
				LIMIT 1
			`, appt.StartTime, appt.EndTime, appt.ID)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return ErrConflict
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE appointments
			SET status = $2, cancel_reason = $3, start_time = $4, end_time = $5, updated_at = $6
			WHERE id = $1
		`, appt.ID, appt.Status, appt.CancelReason, appt.StartTime, appt.EndTime, appt.UpdatedAt); err != nil {
			return err
		}
		out = appt
		return nil
	})
	if err != nil {
		return model.Appointment{}, classify(action, err)
	}
	return out, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, ErrNotFound
	}
	appts, err := queryAppointments(ctx, p.pool, `SELECT `+apptColumns+` FROM appointments WHERE id = $1`, id)
	if err != nil {
		return model.Appointment{}, unavailable("get", err)
	}
	if len(appts) == 0 {
		return model.Appointment{}, ErrNotFound
	}
	return appts[0], nil
}

func (p *Postgres) ListUpcoming(ctx context.Context, from time.Time, window time.Duration) ([]model.Appointment, error) {
	appts, err := queryAppointments(ctx, p.pool, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE status = 'confirmed' AND start_time >= $1 AND start_time < $2
		ORDER BY start_time ASC, id ASC
	`, from, from.Add(window))
	if err != nil {
		return nil, unavailable("list upcoming", err)
	}
	return appts, nil
}

func (p *Postgres) ListByCustomer(ctx context.Context, customerRef string, from time.Time) ([]model.Appointment, error) {
	appts, err := queryAppointments(ctx, p.pool, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE status = 'confirmed' AND customer_ref = $1 AND start_time >= $2
		ORDER BY start_time ASC, id ASC
	`, customerRef, from)
	if err != nil {
		return nil, unavailable("list by customer", err)
	}
	return appts, nil
}

func lockShop(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, shopLockKey)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryAppointments(ctx context.Context, q querier, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		var status string
		if err := rows.Scan(
			&appt.ID,
			&appt.CustomerRef,
			&appt.CustomerName,
			&appt.Recipient,
			&appt.Service,
			&appt.StartTime,
			&appt.EndTime,
			&status,
			&appt.CancelReason,
			&appt.CreatedAt,
			&appt.UpdatedAt,
		); err != nil {
			return nil, err
		}
		appt.Status = model.Status(status)
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// classify keeps ledger sentinels and maps store errors onto them.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyTerminal), errors.Is(err, ErrInvalid):
		return err
	case isExclusionViolation(err):
		return ErrConflict
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	}
	return unavailable(op, err)
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
