package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/barberbook/libs/auth"
	"github.com/md-rashed-zaman/barberbook/libs/config"
	"github.com/md-rashed-zaman/barberbook/libs/httpx"
	"github.com/md-rashed-zaman/barberbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/barberbook/libs/otel"
	"github.com/md-rashed-zaman/barberbook/libs/runtime"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/engine"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/intake"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/reminders"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/shop"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env failed", "err", err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	s, err := shop.Load(config.String("SHOP_CONFIG", ""))
	if err != nil {
		logger.Error("shop config invalid", "err", err)
		os.Exit(1)
	}
	logger.Info("shop loaded", "name", s.Name, "timezone", s.Location.String(), "services", s.ServiceNames())

	b, err := openBackends(ctx, logger)
	if err != nil {
		logger.Error("backend setup failed", "err", err)
		os.Exit(1)
	}
	defer b.Close()

	l, err := b.ledger(ctx, logger)
	if err != nil {
		logger.Error("ledger setup failed", "err", err)
		os.Exit(1)
	}

	dispatcher := notify.NewDispatcher(s)
	sink := b.sink(ctx, logger, dispatcher)
	eng := engine.New(s, l, sink, logger)

	poller := reminders.NewPoller(l, sink, b.marker(), logger, reminders.Config{
		Offsets:  s.ReminderOffsets,
		Window:   config.Duration("REMINDER_WINDOW", 5*time.Minute),
		Schedule: config.String("REMINDER_SCHEDULE", "@every 1m"),
	})
	go func() {
		if err := poller.Run(ctx); err != nil {
			logger.Error("reminder poller stopped", "err", err)
		}
	}()

	operatorKey, err := auth.NewOperatorKey(config.String("OPERATOR_KEY_HASH", ""))
	if err != nil {
		logger.Error("OPERATOR_KEY_HASH is not a bcrypt hash", "err", err)
		os.Exit(1)
	}

	extractor, closeExtractor := newExtractor(ctx, s, logger)
	defer closeExtractor()

	mux := runtime.NewBaseMuxWithReady(b.readyChecks()...)
	handlers.NewBookingHandler(eng, l, logger, nil).Register(mux, operatorKey)
	intake.NewHandler(eng, extractor, logger, intake.Options{
		TwilioAuthToken: config.String("TWILIO_AUTH_TOKEN", ""),
		PublicURL:       config.String("PUBLIC_BASE_URL", ""),
		TelegramSecret:  config.String("TELEGRAM_WEBHOOK_SECRET", ""),
	}).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.WidgetPolicy(config.List("WIDGET_ORIGINS", ""))),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("BODY_LIMIT_BYTES", 64<<10))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
		b.rateLimit(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if grpcAddr := config.String("GRPC_ADDR", ""); grpcAddr != "" {
		stopGRPC, err := serveGRPC(grpcAddr, eng, logger)
		if err != nil {
			logger.Error("grpc server failed", "err", err)
			os.Exit(1)
		}
		defer stopGRPC()
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "ledger", b.backend, "kafka", kafkax.SplitBrokers(b.brokers))
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

func newExtractor(ctx context.Context, s *shop.Shop, logger *slog.Logger) (intake.Extractor, func()) {
	keyword := intake.NewKeywordExtractor(s)
	apiKey := config.String("GEMINI_API_KEY", "")
	if apiKey == "" {
		logger.Info("intent extraction: keyword")
		return keyword, func() {}
	}
	gen, err := intake.NewGeminiGenerator(ctx, apiKey, config.String("GEMINI_MODEL", intake.DefaultGeminiModel))
	if err != nil {
		logger.Error("gemini client failed; using keyword extraction", "err", err)
		return keyword, func() {}
	}
	logger.Info("intent extraction: gemini with keyword fallback")
	return intake.Fallback{intake.NewGeminiExtractor(gen, s), keyword}, func() { _ = gen.Close() }
}
