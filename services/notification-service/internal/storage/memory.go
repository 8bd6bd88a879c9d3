package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/barberbook/libs/notification"
)

// Memory keeps delivery state in process. Outcomes are logged instead of
// published; used when no database is configured.
type Memory struct {
	mu     sync.Mutex
	rows   map[string]*memoryRow
	logger *slog.Logger
	now    func() time.Time
}

type memoryRow struct {
	n       Notification
	status  string
	claimed time.Time
	out     notification.Outcome
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{rows: map[string]*memoryRow{}, logger: logger, now: time.Now}
}

func (m *Memory) Claim(_ context.Context, n Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if row, ok := m.rows[n.DedupeKey]; ok {
		if row.status != "pending" || now.Sub(row.claimed) < StaleClaim {
			return false, nil
		}
		row.claimed = now
		return true, nil
	}
	m.rows[n.DedupeKey] = &memoryRow{n: n, status: "pending", claimed: now}
	return true, nil
}

func (m *Memory) Finish(ctx context.Context, out notification.Outcome, providerID, _ string) error {
	m.mu.Lock()
	if row, ok := m.rows[out.DedupeKey]; ok {
		row.status = out.Status
		row.out = out
	}
	m.mu.Unlock()
	m.logger.InfoContext(ctx, "notification outcome",
		"dedupe_key", out.DedupeKey,
		"status", out.Status,
		"channel", out.Channel,
		"provider", providerID,
	)
	return nil
}

// Outcome returns the recorded result for a dedupe key.
func (m *Memory) Outcome(dedupeKey string) (notification.Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[dedupeKey]
	if !ok || row.status == "pending" {
		return notification.Outcome{}, false
	}
	return row.out, true
}
