package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"

	"github.com/clinicflow/schedcore/internal/api/router"
	"github.com/clinicflow/schedcore/internal/availability"
	"github.com/clinicflow/schedcore/internal/booking"
	appconfig "github.com/clinicflow/schedcore/internal/config"
	"github.com/clinicflow/schedcore/internal/gcal"
	"github.com/clinicflow/schedcore/internal/http/handlers"
	httpmiddleware "github.com/clinicflow/schedcore/internal/http/middleware"
	"github.com/clinicflow/schedcore/internal/notify"
	"github.com/clinicflow/schedcore/internal/observability/metrics"
	"github.com/clinicflow/schedcore/internal/ratelimit"
	"github.com/clinicflow/schedcore/internal/slots"
	"github.com/clinicflow/schedcore/internal/webhooks"
	"github.com/clinicflow/schedcore/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	schedMetrics := metrics.NewSchedulingMetrics(registry)

	// Stores.
	ruleStore := availability.NewStore(pool)
	slotStore := slots.NewStore(pool)
	apptStore := booking.NewStore(pool)
	credStore := gcal.NewCredentialStore(pool)
	channelStore := webhooks.NewChannelStore(pool)
	processedStore := webhooks.NewProcessedStore(pool)

	// Calendar adapter. Per-provider tokens are refreshed through the
	// credential store; this is the application-level OAuth client.
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendarapi.CalendarScope},
	}
	calendarAdapter := gcal.NewAdapter(credStore, oauthCfg, cfg.CalendarTimeout, logger.Component("gcal"))

	var sender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger.Component("sendgrid")); sg != nil {
		sender = sg
	}
	notifier := notify.NewService(sender, logger.Component("notify"))

	// Core services.
	slotService := slots.NewService(ruleStore, slotStore, logger.Component("slots"))
	ledger := booking.NewLedger(apptStore, slotStore, ruleStore, calendarAdapter, notifier, schedMetrics, logger.Component("booking"))

	// Calendar sync: webhook channels, change reconciliation, renewals.
	channelManager := webhooks.NewChannelManager(
		channelStore,
		calendarAdapter,
		cfg.WebhookSigningSecret,
		cfg.PublicBaseURL+"/webhooks/calendar",
		logger.Component("webhooks"),
	)
	reconciler := webhooks.NewReconciler(channelStore, calendarAdapter, ledger, logger.Component("reconciler"))
	processor := webhooks.NewProcessor(cfg.WebhookSigningSecret, processedStore, reconciler, schedMetrics, logger.Component("webhooks"))

	renewalWorker := webhooks.NewRenewalWorker(channelManager, channelStore, schedMetrics, logger.Component("renewal")).
		WithInterval(cfg.RenewalInterval).
		WithThreshold(cfg.RenewalThreshold)
	go renewalWorker.Start(ctx)

	var rateLimitMW func(http.Handler) http.Handler
	if cfg.RateLimitEnabled {
		limiter := ratelimit.NewLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, logger.Component("ratelimit"))
		rateLimitMW = httpmiddleware.RateLimit(limiter)
	}

	handler := router.New(&router.Config{
		Logger:         logger,
		Availability:   handlers.NewAvailabilityHandler(ruleStore, logger),
		Slots:          handlers.NewSlotsHandler(slotService, slotStore, schedMetrics, logger),
		Appointments:   handlers.NewAppointmentsHandler(ledger, apptStore, ruleStore, httpmiddleware.PrincipalFrom, logger),
		Channels:       handlers.NewChannelsHandler(channelManager, logger),
		WebhookIngress: processor.Handle,
		RateLimit:      rateLimitMW,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),

		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
