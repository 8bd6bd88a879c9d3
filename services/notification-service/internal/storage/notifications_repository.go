package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/barberbook/libs/db"
	"github.com/md-rashed-zaman/barberbook/libs/notification"
	"github.com/md-rashed-zaman/barberbook/libs/outbox"
)

//go:embed schema.sql
var Schema string

// StaleClaim is how long a pending notification stays claimed before a
// redelivered request may take it over.
const StaleClaim = 5 * time.Minute

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Notification struct {
	DedupeKey     string
	Role          notification.Role
	AppointmentID string
	Template      string
	Address       string
	Variables     map[string]string
}

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool, outbox: outbox.NewRepository()}
}

func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, outbox.Schema)
	return err
}

// Claim records n as pending. It reports false when the notification was
// already delivered, failed, or is being sent by another consumer.
func (r *Repository) Claim(ctx context.Context, n Notification) (bool, error) {
	vars, err := json.Marshal(n.Variables)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (dedupe_key, role, appointment_id, template, address, variables)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dedupe_key) DO UPDATE
		SET attempts = notifications.attempts + 1, updated_at = now()
		WHERE notifications.status = 'pending' AND notifications.updated_at < now() - make_interval(secs => $7)
	`, n.DedupeKey, string(n.Role), n.AppointmentID, n.Template, n.Address, vars, StaleClaim.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Finish stores the attempt result and enqueues the matching outcome event in
// the same transaction.
func (r *Repository) Finish(ctx context.Context, out notification.Outcome, providerID, body string) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return err
	}
	eventType := notification.TopicSent
	if out.Status != StatusSent {
		eventType = notification.TopicFailed
	}
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE notifications
			SET status = $2, channel = $3, provider_id = $4, body = $5, error = $6, updated_at = now()
			WHERE dedupe_key = $1
		`, out.DedupeKey, out.Status, out.Channel, providerID, body, out.Error); err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "notification",
			AggregateID:   out.AppointmentID,
			EventType:     eventType,
			Payload:       payload,
		})
	})
}
