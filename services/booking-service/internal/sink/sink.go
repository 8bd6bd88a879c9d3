// Package sink delivers notification requests built from appointment events to
// Kafka, either through the transactional outbox or directly, or to the log.
package sink

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/barberbook/libs/db"
	"github.com/md-rashed-zaman/barberbook/libs/kafkax"
	"github.com/md-rashed-zaman/barberbook/libs/notification"
	"github.com/md-rashed-zaman/barberbook/libs/outbox"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/notify"
	"github.com/segmentio/kafka-go"
)

type Builder interface {
	Build(evt events.Event) []notify.Payload
}

func build(b Builder, evts []events.Event) []notify.Payload {
	var out []notify.Payload
	for _, evt := range evts {
		out = append(out, b.Build(evt)...)
	}
	return out
}

// Outbox writes requests to outbox_events in one transaction; the outbox
// publisher relays them to Kafka.
type Outbox struct {
	pool    *db.Pool
	repo    *outbox.Repository
	builder Builder
}

func NewOutbox(pool *db.Pool, repo *outbox.Repository, b Builder) *Outbox {
	return &Outbox{pool: pool, repo: repo, builder: b}
}

func (s *Outbox) Publish(ctx context.Context, evts []events.Event) error {
	payloads := build(s.builder, evts)
	if len(payloads) == 0 {
		return nil
	}
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		for _, p := range payloads {
			body, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := s.repo.Insert(ctx, tx, outbox.Event{
				AggregateType: "appointment",
				AggregateID:   p.AppointmentID,
				EventType:     notification.TopicRequested,
				Payload:       body,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Kafka writes requests straight to the topic. Used when no database is configured.
type Kafka struct {
	writer  outbox.MessageWriter
	builder Builder
}

func NewKafka(w outbox.MessageWriter, b Builder) *Kafka {
	return &Kafka{writer: w, builder: b}
}

func (s *Kafka) Publish(ctx context.Context, evts []events.Event) error {
	payloads := build(s.builder, evts)
	if len(payloads) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(payloads))
	for _, p := range payloads {
		body, err := json.Marshal(p)
		if err != nil {
			return err
		}
		meta := kafkax.EventMeta{EventID: uuid.NewString(), EventType: notification.TopicRequested}
		msgs = append(msgs, kafka.Message{
			Topic:   notification.TopicRequested,
			Key:     []byte(p.AppointmentID),
			Value:   body,
			Headers: kafkax.InjectTraceHeaders(ctx, meta.Headers()),
		})
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

// Log only records the requests. Used in development without a broker.
type Log struct {
	logger  *slog.Logger
	builder Builder
}

func NewLog(logger *slog.Logger, b Builder) *Log {
	return &Log{logger: logger, builder: b}
}

func (s *Log) Publish(ctx context.Context, evts []events.Event) error {
	for _, p := range build(s.builder, evts) {
		s.logger.InfoContext(ctx, "notification requested",
			"role", p.Role,
			"address", p.Address,
			"template", p.Template,
			"dedupe_key", p.DedupeKey,
		)
	}
	return nil
}
