package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nabil-haroun/bookably/libs/auth"
	"github.com/nabil-haroun/bookably/libs/config"
	"github.com/nabil-haroun/bookably/libs/db"
	"github.com/nabil-haroun/bookably/libs/httpx"
	"github.com/nabil-haroun/bookably/libs/kafkax"
	otelx "github.com/nabil-haroun/bookably/libs/otel"
	"github.com/nabil-haroun/bookably/libs/runtime"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/availability"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/booking"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/catalog"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/handlers"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/identity"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/outbox"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/recurrence"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/schedule"
	"github.com/nabil-haroun/bookably/services/scheduling-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8084")
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
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	bookingStore := storage.NewBookingStore(pool, outboxRepo)

	resolver := schedule.NewResolver(repo)
	calculator := availability.NewCalculator(repo, resolver)
	booker := booking.NewBooker(bookingStore, repo, resolver, logger)
	expander := recurrence.NewExpander(booker, logger)
	catalogExpander := catalog.NewExpander(repo)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	jwtSecret := config.String("JWT_SECRET", "dev-secret")
	var jwksClient *auth.JWKSClient
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		jwksClient = auth.NewJWKSClient(jwksURL, config.Duration("JWKS_CACHE_TTL", 5*time.Minute))
	}
	verifier := identity.NewVerifier(jwtSecret, jwksClient)

	availabilityHandler := handlers.NewAvailabilityHandler(calculator, logger)
	appointmentHandler := handlers.NewAppointmentHandler(booker, bookingStore, logger)
	patternHandler := handlers.NewPatternHandler(expander, repo, logger)
	adminHandler := handlers.NewAdminHandler(repo, catalogExpander, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)

	authed := func(h http.HandlerFunc) http.Handler {
		return verifier.Require(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return verifier.Require(identity.RequireRole(h, identity.RoleAdmin))
	}
	staffOrAdmin := func(h http.HandlerFunc) http.Handler {
		return verifier.Require(identity.RequireRole(h, identity.RoleAdmin, identity.RoleStaff))
	}

	mux.Handle("/api/v1/availability", authed(availabilityHandler.Slots))
	mux.Handle("/api/v1/appointments", authed(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			appointmentHandler.Create(w, r)
		default:
			appointmentHandler.List(w, r)
		}
	}))
	mux.Handle("/api/v1/appointments/cancel", authed(appointmentHandler.Cancel))
	mux.Handle("/api/v1/appointments/confirm", staffOrAdmin(appointmentHandler.Confirm))
	mux.Handle("/api/v1/appointments/accept", staffOrAdmin(appointmentHandler.Accept))
	mux.Handle("/api/v1/appointments/reject", staffOrAdmin(appointmentHandler.Reject))
	mux.Handle("/api/v1/appointments/complete", staffOrAdmin(appointmentHandler.Complete))
	mux.Handle("/api/v1/recurring-patterns", authed(patternHandler.Create))
	mux.Handle("/api/v1/recurring-patterns/delete", authed(patternHandler.Delete))

	mux.Handle("/api/v1/admin/business-hours", admin(adminHandler.UpsertBusinessHours))
	mux.Handle("/api/v1/admin/staff", admin(adminHandler.CreateStaff))
	mux.Handle("/api/v1/admin/staff/schedule", admin(adminHandler.UpsertStaffSchedule))
	mux.Handle("/api/v1/admin/staff/time-off", admin(adminHandler.CreateTimeOff))
	mux.Handle("/api/v1/admin/services", admin(adminHandler.CreateService))
	mux.Handle("/api/v1/admin/services/from-template", admin(adminHandler.InstantiateTemplate))
	mux.Handle("/api/v1/admin/slot-templates", admin(adminHandler.ListSlotTemplates))
	mux.Handle("/api/v1/admin/clients/eligibility", admin(adminHandler.SetClientEligibility))

	bodyLimit := int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))
	requestTimeout := config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)

	var rateLimitMW httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:sched"))
		rateLimitMW = rl.Middleware(logger, config.String("RATE_LIMIT_FAIL_OPEN", "true") == "true")
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	cors := httpx.WithCORS(httpx.CORSPolicy{
		AllowedOrigins: splitCSV(config.String("CORS_ALLOWED_ORIGINS", "")),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", httpx.RequestIDHeader},
		MaxAge:         10 * time.Minute,
	})

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		cors,
		httpx.WithBodyLimit(bodyLimit),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "scheduling")
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

func splitCSV(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
