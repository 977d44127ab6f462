package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wakti-app/wakti-server/libs/config"
	"github.com/wakti-app/wakti-server/libs/db"
	"github.com/wakti-app/wakti-server/libs/httpx"
	"github.com/wakti-app/wakti-server/libs/kafkax"
	otelx "github.com/wakti-app/wakti-server/libs/otel"
	"github.com/wakti-app/wakti-server/libs/runtime"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/availability"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/cache"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/handlers"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/outbox"
	"github.com/wakti-app/wakti-server/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 2)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer func() { _ = rdb.Close() }()
	}

	templateRepo := storage.NewTemplateRepository(pool)
	ruleRepo := storage.NewRuleRepository(pool)
	exceptionRepo := storage.NewExceptionRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	resolver := availability.NewResolver(templateRepo, ruleRepo, exceptionRepo)
	slotCache := cache.NewSlotCache(rdb, config.Seconds("SLOT_CACHE_TTL_SECONDS", 30*time.Second), logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(
		bookingRepo, templateRepo, bookingRepo, resolver, outboxRepo, slotCache, logger)
	templateHandler := handlers.NewTemplateHandler(
		templateRepo, ruleRepo, exceptionRepo, slotCache, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.HandleFunc("/api/v1/bookings", bookingHandler.List)
	mux.HandleFunc("/api/v1/bookings/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/templates", templateHandler.Templates)
	mux.HandleFunc("/api/v1/templates/rules", templateHandler.Rules)
	mux.HandleFunc("/api/v1/templates/exceptions", templateHandler.Exceptions)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "*")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,Idempotency-Key,X-Business-Id,X-Request-Id")),
		}),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 15*time.Second)),
	}
	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if rdb != nil {
		redisLimiter := httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service)
		middlewares = append(middlewares, redisLimiter.Middleware(logger, true))
	} else {
		middlewares = append(middlewares, httpx.NewRateLimiter(rateLimit, time.Minute).Middleware())
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
