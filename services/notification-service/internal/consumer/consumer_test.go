package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/md-rashed-zaman/barberbook/libs/kafkax"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/inbox"
	"github.com/segmentio/kafka-go"
)

type sliceReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
	closed bool
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

func message(eventID, value string) kafka.Message {
	meta := kafkax.EventMeta{EventID: eventID, EventType: "notification.requested.v1"}
	return kafka.Message{Topic: "notification.requested.v1", Value: []byte(value), Headers: meta.Headers()}
}

func TestRunSkipsDuplicateEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &sliceReader{cancel: cancel, msgs: []kafka.Message{
		message("e1", "a"),
		message("e1", "a"),
		message("e2", "b"),
		message("", "c"),
		message("e3", "fail"),
		message("e4", "d"),
	}}
	var mu sync.Mutex
	var handled []string
	c := NewWithReader(slog.New(slog.NewTextHandler(io.Discard, nil)), inbox.NewMemory(), reader, func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, string(msg.Value))
		if string(msg.Value) == "fail" {
			return errors.New("boom")
		}
		return nil
	})
	c.Run(ctx)

	want := []string{"a", "b", "c", "fail", "d"}
	if len(handled) != len(want) {
		t.Fatalf("expected %v, got %v", want, handled)
	}
	for i := range want {
		if handled[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, handled)
		}
	}
	if !reader.closed {
		t.Fatalf("reader should be closed when Run returns")
	}
}
