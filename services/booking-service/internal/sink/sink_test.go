package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/barberbook/libs/db"
	"github.com/md-rashed-zaman/barberbook/libs/kafkax"
	"github.com/md-rashed-zaman/barberbook/libs/notification"
	"github.com/md-rashed-zaman/barberbook/libs/outbox"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/shop"
	"github.com/segmentio/kafka-go"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func dispatcher(t *testing.T) *notify.Dispatcher {
	t.Helper()
	f := shop.Default()
	f.OperatorAddress = "+15559990000"
	s, err := f.Build()
	if err != nil {
		t.Fatalf("build shop: %v", err)
	}
	return notify.NewDispatcher(s)
}

func booked() events.Event {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return events.Event{
		Kind: events.Booked,
		Appointment: model.Appointment{
			ID:          "3f1c1f57-0000-4000-8000-000000000001",
			CustomerRef: "+15550000001",
			Service:     "haircut",
			StartTime:   start,
			EndTime:     start.Add(30 * time.Minute),
			Status:      model.StatusConfirmed,
		},
		OccurredAt: start.Add(-time.Hour),
	}
}

func TestKafkaSinkWritesRequests(t *testing.T) {
	w := &captureWriter{}
	s := NewKafka(w, dispatcher(t))
	if err := s.Publish(context.Background(), []events.Event{booked()}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected customer and operator messages, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != notification.TopicRequested || string(msg.Key) != booked().Appointment.ID {
		t.Fatalf("unexpected message routing %s %s", msg.Topic, msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" || meta.EventType != notification.TopicRequested {
		t.Fatalf("unexpected meta %+v", meta)
	}
	var req notification.Request
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Template != notify.TemplateBookingConfirmed || req.Address != "+15550000001" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestKafkaSinkSkipsEmpty(t *testing.T) {
	w := &captureWriter{}
	s := NewKafka(w, dispatcher(t))
	if err := s.Publish(context.Background(), nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 0 {
		t.Fatalf("expected no messages")
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	if err := NewLog(logger, dispatcher(t)).Publish(context.Background(), []events.Event{booked()}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := strings.Count(buf.String(), "notification requested"); got != 2 {
		t.Fatalf("expected two log lines, got %d", got)
	}
}

func TestOutboxSink(t *testing.T) {
	url := os.Getenv("BARBERBOOK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BARBERBOOK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, outbox.Schema); err != nil {
		t.Fatalf("schema: %v", err)
	}

	evt := booked()
	if err := NewOutbox(pool, outbox.NewRepository(), dispatcher(t)).Publish(ctx, []events.Event{evt}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	var n int
	if err := pool.QueryRow(ctx, `
		SELECT count(*) FROM outbox_events
		WHERE aggregate_id = $1 AND event_type = $2 AND published_at IS NULL
	`, evt.Appointment.ID, notification.TopicRequested).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n < 2 {
		t.Fatalf("expected two outbox rows, got %d", n)
	}
}
