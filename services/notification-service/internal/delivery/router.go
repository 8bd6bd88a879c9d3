// Package delivery picks the channel sender for a recipient address.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
	ChannelWeb      = "web"
)

var ErrNoChannel = errors.New("no delivery channel for address")

var e164Re = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

type Sender interface {
	Send(ctx context.Context, to string, body string) error
	ProviderID() string
}

// ChannelOf classifies an address: telegram:<id>, whatsapp:+E.164, +E.164,
// an email address, or web:<session>. Anything else has no channel.
func ChannelOf(address string) string {
	address = strings.TrimSpace(address)
	switch {
	case strings.HasPrefix(address, "telegram:"):
		return ChannelTelegram
	case strings.HasPrefix(address, "whatsapp:") && e164Re.MatchString(strings.TrimPrefix(address, "whatsapp:")):
		return ChannelWhatsApp
	case e164Re.MatchString(address):
		return ChannelSMS
	case strings.HasPrefix(address, "web:"):
		return ChannelWeb
	case strings.Count(address, "@") == 1 && !strings.HasPrefix(address, "@") && !strings.HasSuffix(address, "@"):
		return ChannelEmail
	}
	return ""
}

type Router struct {
	senders map[string]Sender
}

func NewRouter() *Router {
	return &Router{senders: map[string]Sender{}}
}

func (r *Router) Register(channel string, s Sender) *Router {
	if s != nil {
		r.senders[channel] = s
	}
	return r
}

func (r *Router) Route(address string) (string, Sender, error) {
	channel := ChannelOf(address)
	if channel == "" {
		return "", nil, fmt.Errorf("%w: %q", ErrNoChannel, address)
	}
	s, ok := r.senders[channel]
	if !ok {
		return channel, nil, fmt.Errorf("%w: %s not configured", ErrNoChannel, channel)
	}
	return channel, s, nil
}
