package outbox

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/barberbook/libs/kafkax"
)

func TestMessageCarriesMeta(t *testing.T) {
	msg := Message(context.Background(), Record{
		ID:          7,
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   "notification.requested.v1",
		Payload:     []byte(`{"template":"booking_confirmed"}`),
	})

	if msg.Topic != "notification.requested.v1" {
		t.Fatalf("unexpected topic %q", msg.Topic)
	}
	if string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "notification.requested.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}
