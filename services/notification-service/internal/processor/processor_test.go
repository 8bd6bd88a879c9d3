package processor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/barberbook/libs/notification"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/delivery"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/storage"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/templates"
	"github.com/segmentio/kafka-go"
)

type memStore struct {
	mu       sync.Mutex
	claimed  map[string]storage.Notification
	outcomes []notification.Outcome
	bodies   []string
	failOn   string
}

func newMemStore() *memStore {
	return &memStore{claimed: map[string]storage.Notification{}}
}

func (s *memStore) Claim(_ context.Context, n storage.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.DedupeKey == s.failOn {
		return false, errors.New("db down")
	}
	if _, ok := s.claimed[n.DedupeKey]; ok {
		return false, nil
	}
	s.claimed[n.DedupeKey] = n
	return true, nil
}

func (s *memStore) Finish(_ context.Context, out notification.Outcome, _ string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, out)
	s.bodies = append(s.bodies, body)
	return nil
}

type recordingSender struct {
	id   string
	err  error
	sent []string
}

func (r *recordingSender) Send(_ context.Context, to, body string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, to+"|"+body)
	return nil
}

func (r *recordingSender) ProviderID() string { return r.id }

func request(address, template, key string) kafka.Message {
	body, _ := json.Marshal(notification.Request{
		Role:          notification.RoleCustomer,
		Address:       address,
		Template:      template,
		DedupeKey:     key,
		AppointmentID: "appt-1",
		Variables: map[string]string{
			"service": "Haircut", "date": "Tuesday, March 03", "time": "03:00 PM", "appointment_id": "appt-1",
		},
	})
	return kafka.Message{Value: body}
}

func setup() (*Processor, *memStore, *recordingSender, *recordingSender) {
	store := newMemStore()
	smsSender := &recordingSender{id: "twilio"}
	tg := &recordingSender{id: "telegram", err: errors.New("chat not found")}
	router := delivery.NewRouter().Register(delivery.ChannelSMS, smsSender).Register(delivery.ChannelTelegram, tg)
	p := New(store, templates.New(nil), router, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC) }
	return p, store, smsSender, tg
}

func TestHandleDeliversOnce(t *testing.T) {
	p, store, smsSender, _ := setup()
	msg := request("+15551112222", "booking_confirmed", "appt-1|booking_confirmed|2026-03-03T15:00:00Z")

	for i := 0; i < 2; i++ {
		if err := p.Handle(context.Background(), msg); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if len(smsSender.sent) != 1 {
		t.Fatalf("expected one delivery, got %d", len(smsSender.sent))
	}
	if !strings.Contains(smsSender.sent[0], "Your Haircut is scheduled for Tuesday, March 03 at 03:00 PM") {
		t.Fatalf("unexpected body %q", smsSender.sent[0])
	}
	if len(store.outcomes) != 1 {
		t.Fatalf("expected one outcome, got %d", len(store.outcomes))
	}
	out := store.outcomes[0]
	if out.Status != storage.StatusSent || out.Channel != delivery.ChannelSMS || out.At.IsZero() {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestHandleRecordsFailures(t *testing.T) {
	p, store, _, _ := setup()
	tests := []struct {
		address  string
		template string
		channel  string
		errPart  string
	}{
		{"telegram:42", "booking_cancelled", delivery.ChannelTelegram, "chat not found"},
		{"sam@example.com", "booking_cancelled", delivery.ChannelEmail, "not configured"},
		{"+15551112222", "promo_blast", "", "unknown template"},
	}
	for i, tc := range tests {
		key := "k" + string(rune('a'+i))
		if err := p.Handle(context.Background(), request(tc.address, tc.template, key)); err != nil {
			t.Fatalf("%s: handle: %v", tc.address, err)
		}
		out := store.outcomes[len(store.outcomes)-1]
		if out.Status != storage.StatusFailed || out.Channel != tc.channel || !strings.Contains(out.Error, tc.errPart) {
			t.Fatalf("%s: unexpected outcome %+v", tc.address, out)
		}
	}
}

func TestHandleDropsMalformed(t *testing.T) {
	p, store, _, _ := setup()
	for _, msg := range []kafka.Message{
		{Value: []byte("{")},
		request("", "booking_confirmed", "k1"),
		request("+15551112222", "booking_confirmed", ""),
	} {
		if err := p.Handle(context.Background(), msg); err != nil {
			t.Fatalf("malformed messages should not error: %v", err)
		}
	}
	if len(store.claimed) != 0 || len(store.outcomes) != 0 {
		t.Fatalf("malformed messages should not be stored")
	}
}

func TestHandleReturnsStoreErrors(t *testing.T) {
	p, store, _, _ := setup()
	store.failOn = "k1"
	if err := p.Handle(context.Background(), request("+15551112222", "booking_confirmed", "k1")); err == nil {
		t.Fatalf("expected store error")
	}
}
