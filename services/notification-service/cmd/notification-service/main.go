package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberbook/libs/config"
	"github.com/md-rashed-zaman/barberbook/libs/db"
	"github.com/md-rashed-zaman/barberbook/libs/httpx"
	"github.com/md-rashed-zaman/barberbook/libs/kafkax"
	"github.com/md-rashed-zaman/barberbook/libs/notification"
	otelx "github.com/md-rashed-zaman/barberbook/libs/otel"
	"github.com/md-rashed-zaman/barberbook/libs/outbox"
	"github.com/md-rashed-zaman/barberbook/libs/runtime"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/delivery"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/processor"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/storage"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/telegram"
	"github.com/md-rashed-zaman/barberbook/services/notification-service/internal/templates"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env failed", "err", err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	brokers := config.String("KAFKA_BROKERS", "")
	topic := config.String("KAFKA_CONSUME_TOPIC", notification.TopicRequested)
	checks := []runtime.ReadyCheck{{Name: "kafka", Check: kafkax.ReadyCheck(brokers, topic)}}

	var (
		store    processor.Store
		eventsIn consumer.Inbox
	)
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		repo := storage.NewRepository(pool)
		if config.Bool("DB_MIGRATE", true) {
			if err := repo.Migrate(ctx); err != nil {
				logger.Error("migration failed", "err", err)
				os.Exit(1)
			}
		}
		publisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)

		store, eventsIn = repo, inbox.NewRepository(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		logger.Warn("DATABASE_URL not set; delivery state is kept in memory")
		store, eventsIn = storage.NewMemory(logger), inbox.NewMemory()
	}

	renderer, err := loadTemplates(config.String("NOTIFICATION_TEMPLATES", ""))
	if err != nil {
		logger.Error("templates invalid", "err", err)
		os.Exit(1)
	}
	router := newRouter(logger)

	proc := processor.New(store, renderer, router, logger)
	eventConsumer := consumer.New(logger, eventsIn, consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:   topic,
	}, proc.Handle)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(checks...)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// loadTemplates reads optional text overrides: a YAML map of template name to text.
func loadTemplates(path string) (*templates.Renderer, error) {
	if path == "" {
		return templates.New(nil), nil
	}
	var overrides map[string]string
	if err := config.LoadYAML(path, &overrides); err != nil {
		return nil, err
	}
	return templates.New(overrides), nil
}

func newRouter(logger *slog.Logger) *delivery.Router {
	router := delivery.NewRouter()

	var smsSender sms.Sender
	switch provider := strings.ToLower(config.String("SMS_PROVIDER", "twilio")); provider {
	case "twilio":
		sid := config.String("TWILIO_ACCOUNT_SID", "")
		token := config.String("TWILIO_AUTH_TOKEN", "")
		if sid == "" || token == "" {
			logger.Warn("twilio credentials missing; sms and whatsapp disabled")
			break
		}
		smsSender = sms.NewTwilioSender(sid, token,
			config.String("TWILIO_FROM_NUMBER", ""),
			config.String("TWILIO_WHATSAPP_NUMBER", ""))
	case "webhook":
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	case "noop":
		smsSender = sms.NewNoopSender("noop")
	default:
		logger.Warn("unknown SMS_PROVIDER; sms disabled", "provider", provider)
	}
	if smsSender != nil {
		router.Register(delivery.ChannelSMS, smsSender).Register(delivery.ChannelWhatsApp, smsSender)
	}

	if token := config.String("TELEGRAM_BOT_TOKEN", ""); token != "" {
		router.Register(delivery.ChannelTelegram, telegram.NewSender(config.String("TELEGRAM_API_BASE", telegram.DefaultAPIBase), token))
	}
	if host := config.String("SMTP_HOST", ""); host != "" {
		router.Register(delivery.ChannelEmail, email.NewSMTPSender(host,
			config.String("SMTP_PORT", "1025"),
			config.String("SMTP_FROM", "no-reply@barberbook.local"),
			config.String("SMTP_SUBJECT", "Your barber appointment")))
	}
	// Web chat sessions have no push channel; replies are shown in the widget.
	router.Register(delivery.ChannelWeb, sms.NewNoopSender("web"))
	return router
}
