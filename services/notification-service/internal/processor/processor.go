// Package processor turns notification requests into delivered messages.
package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberbook/libs/notification"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/delivery"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type Store interface {
	Claim(ctx context.Context, n storage.Notification) (bool, error)
	Finish(ctx context.Context, out notification.Outcome, providerID, body string) error
}

type Renderer interface {
	Render(template string, vars map[string]string) (string, error)
}

type Processor struct {
	store    Store
	renderer Renderer
	router   *delivery.Router
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

func New(store Store, renderer Renderer, router *delivery.Router, logger *slog.Logger) *Processor {
	return &Processor{
		store:    store,
		renderer: renderer,
		router:   router,
		logger:   logger,
		timeout:  10 * time.Second,
		now:      time.Now,
	}
}

// Handle processes one notification.requested message. Malformed payloads are
// dropped; only storage errors are returned.
func (p *Processor) Handle(ctx context.Context, msg kafka.Message) error {
	var req notification.Request
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		p.logger.Error("invalid notification payload", "err", err)
		return nil
	}
	req.Address = strings.TrimSpace(req.Address)
	if req.DedupeKey == "" || req.Address == "" || req.Template == "" || req.AppointmentID == "" {
		p.logger.Error("missing notification fields", "dedupe_key", req.DedupeKey, "template", req.Template)
		return nil
	}

	claimed, err := p.store.Claim(ctx, storage.Notification{
		DedupeKey:     req.DedupeKey,
		Role:          req.Role,
		AppointmentID: req.AppointmentID,
		Template:      req.Template,
		Address:       req.Address,
		Variables:     req.Variables,
	})
	if err != nil {
		return err
	}
	if !claimed {
		p.logger.Info("notification already handled", "dedupe_key", req.DedupeKey)
		return nil
	}

	out := notification.Outcome{
		DedupeKey:     req.DedupeKey,
		AppointmentID: req.AppointmentID,
		Template:      req.Template,
		Status:        storage.StatusSent,
	}
	body, providerID, err := p.deliver(ctx, req, &out)
	if err != nil {
		out.Status = storage.StatusFailed
		out.Error = err.Error()
		p.logger.Warn("notification failed",
			"dedupe_key", req.DedupeKey,
			"channel", out.Channel,
			"template", req.Template,
			"err", err,
		)
	}
	out.At = p.now().UTC()
	if err := p.store.Finish(ctx, out, providerID, body); err != nil {
		return err
	}
	p.logger.Info("notification processed",
		"appointment_id", req.AppointmentID,
		"role", req.Role,
		"template", req.Template,
		"channel", out.Channel,
		"status", out.Status,
	)
	return nil
}

func (p *Processor) deliver(ctx context.Context, req notification.Request, out *notification.Outcome) (string, string, error) {
	body, err := p.renderer.Render(req.Template, req.Variables)
	if err != nil {
		return "", "", err
	}
	channel, sender, err := p.router.Route(req.Address)
	out.Channel = channel
	if err != nil {
		return body, "", err
	}
	sendCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := sender.Send(sendCtx, req.Address, body); err != nil {
		return body, sender.ProviderID(), err
	}
	return body, sender.ProviderID(), nil
}
