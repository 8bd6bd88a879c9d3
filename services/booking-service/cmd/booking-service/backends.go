package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberbook/libs/config"
	"github.com/md-rashed-zaman/barberbook/libs/db"
	"github.com/md-rashed-zaman/barberbook/libs/httpx"
	"github.com/md-rashed-zaman/barberbook/libs/kafkax"
	"github.com/md-rashed-zaman/barberbook/libs/outbox"
	"github.com/md-rashed-zaman/barberbook/libs/runtime"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/reminders"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/sink"
	"github.com/redis/go-redis/v9"
)

// backends holds the optional infrastructure: postgres, redis and kafka.
type backends struct {
	backend string
	brokers string
	pool    *db.Pool
	rdb     *redis.Client
	closers []func()
}

func openBackends(ctx context.Context, logger *slog.Logger) (*backends, error) {
	b := &backends{
		backend: strings.ToLower(config.String("LEDGER_BACKEND", "memory")),
		brokers: config.String("KAFKA_BROKERS", ""),
	}
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
		if err != nil {
			return nil, fmt.Errorf("db connection: %w", err)
		}
		b.pool = pool
		b.closers = append(b.closers, pool.Close)
		if config.Bool("DB_MIGRATE", true) {
			if _, err := pool.Exec(ctx, outbox.Schema); err != nil {
				b.Close()
				return nil, fmt.Errorf("migrate outbox: %w", err)
			}
		}
	}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		b.rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		b.closers = append(b.closers, func() { _ = b.rdb.Close() })
		if err := b.rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed", "err", err)
		}
	}
	return b, nil
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func (b *backends) ledger(ctx context.Context, logger *slog.Logger) (ledger.Ledger, error) {
	switch b.backend {
	case "memory":
		logger.Warn("using in-memory ledger; appointments are lost on restart")
		return ledger.NewMemory(), nil
	case "postgres":
		if b.pool == nil {
			return nil, fmt.Errorf("LEDGER_BACKEND=postgres requires DATABASE_URL")
		}
		l := ledger.NewPostgres(b.pool)
		if config.Bool("DB_MIGRATE", true) {
			if err := l.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate ledger: %w", err)
			}
		}
		return l, nil
	case "redis":
		if b.rdb == nil {
			return nil, fmt.Errorf("LEDGER_BACKEND=redis requires REDIS_ADDR")
		}
		return ledger.NewRedis(b.rdb, config.String("REDIS_LEDGER_PREFIX", "")), nil
	}
	return nil, fmt.Errorf("unknown LEDGER_BACKEND %q", b.backend)
}

// sink prefers the transactional outbox, then a direct kafka writer, then the log.
func (b *backends) sink(ctx context.Context, logger *slog.Logger, builder sink.Builder) events.Sink {
	brokers := kafkax.SplitBrokers(b.brokers)
	switch {
	case b.pool != nil:
		repo := outbox.NewRepository()
		publisher := outbox.NewPublisher(b.pool, repo, logger, outbox.PublisherConfig{
			Brokers:   b.brokers,
			PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
		logger.Info("notifications via outbox")
		return sink.NewOutbox(b.pool, repo, builder)
	case len(brokers) > 0:
		w := kafkax.NewWriter(brokers)
		b.closers = append(b.closers, func() { _ = w.Close() })
		logger.Info("notifications via kafka writer")
		return sink.NewKafka(w, builder)
	}
	logger.Info("notifications are logged only")
	return sink.NewLog(logger, builder)
}

func (b *backends) marker() reminders.Marker {
	if b.rdb != nil {
		return reminders.NewRedisMarker(b.rdb, config.String("REMINDER_MARKER_PREFIX", ""))
	}
	return reminders.NewMemoryMarker()
}

func (b *backends) rateLimit(logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if b.rdb != nil {
		rl := httpx.NewRedisRateLimiter(b.rdb, limit, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"), nil)
		return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}
	return httpx.NewRateLimiter(limit, time.Minute, nil).Middleware()
}

func (b *backends) readyChecks() []runtime.ReadyCheck {
	var checks []runtime.ReadyCheck
	if b.pool != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(b.pool)})
	}
	if b.rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return b.rdb.Ping(ctx).Err()
		}})
	}
	if b.brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(b.brokers)})
	}
	return checks
}
