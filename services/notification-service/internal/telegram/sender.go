// Package telegram sends messages through the Bot API sendMessage method.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultAPIBase = "https://api.telegram.org"

type Sender struct {
	base  string
	token string
	http  *http.Client
}

func NewSender(apiBase, token string) *Sender {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Sender{
		base:  apiBase,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *Sender) ProviderID() string {
	return "telegram"
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers body to a chat. to is "telegram:<chat id>" or a bare chat id.
func (s *Sender) Send(ctx context.Context, to string, body string) error {
	if s.token == "" {
		return errors.New("telegram bot token not configured")
	}
	chatID := strings.TrimPrefix(to, "telegram:")
	if chatID == "" {
		return errors.New("telegram chat id missing")
	}
	raw, err := json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    body,
	})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.base, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("telegram request failed: %w", uerr.Err)
		}
		return err
	}
	defer resp.Body.Close()

	var out sendMessageResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, out.Description)
		}
		return fmt.Errorf("telegram returned %d", resp.StatusCode)
	}
	return nil
}
