package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"billhook/internal/awsutil"
	"billhook/internal/config"
	"billhook/internal/httpserver"
	"billhook/internal/ingest"
	"billhook/internal/logging"
	"billhook/internal/observability"
	"billhook/internal/providers/stripe"
	"billhook/internal/providers/twilio"
	sqsqueue "billhook/internal/queue/sqs"
	"billhook/internal/ratelimit"
	"billhook/internal/store/pg"
)

func main() {
	cfg := config.LoadWebhook()
	logging.Init("webhook", cfg.LogFormat)

	if missing := cfg.MissingSecrets(); len(missing) > 0 {
		if cfg.Production() {
			slog.Error("webhook secrets missing", "missing", missing)
			os.Exit(1)
		}
		slog.Warn("webhook secrets missing, verification will reject all deliveries", "missing", missing)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("webhook db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	dbStore := pg.New(db)

	observability.Register(prometheus.DefaultRegisterer)

	var plans ingest.PlanResolver
	if cfg.StripeAPIKey != "" {
		plans = stripe.NewPlanResolver(&stripe.Client{
			APIKey:  cfg.StripeAPIKey,
			HTTP:    &http.Client{Timeout: 10 * time.Second},
			BaseURL: cfg.StripeBaseURL,
		})
	} else {
		slog.Warn("STRIPE_API_KEY not set, plan enrichment disabled")
	}

	var pub ingest.Publisher
	if cfg.BillingEventsQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("webhook sqs client init failed", "err", err)
			os.Exit(1)
		}
		pub = &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.BillingEventsQueueURL}
	}

	pipeline := &ingest.Pipeline{
		Store: dbStore,
		Plans: plans,
		Pub:   pub,
	}

	s := httpserver.New()
	stripeHook := &httpserver.StripeWebhook{
		Pipeline: pipeline,
		Verify:   stripe.VerifyEvent,
		Classify: stripe.Classify,
		Secret:   cfg.StripeWebhookSecret,
	}
	stripeHook.Register(s.Mux)

	twilioHook := &httpserver.TwilioWebhook{
		Pipeline:       pipeline,
		Verify:         twilio.VerifySignature,
		AuthToken:      cfg.TwilioAuthToken,
		SMSStatusURL:   cfg.PublicSMSStatusURL,
		VoiceStatusURL: cfg.PublicVoiceStatusURL,
	}
	twilioHook.Register(s.Mux)

	s.Mux.HandleFunc("/health", httpserver.Health(httpserver.HealthInfo{
		StripeWebhookSecret: cfg.StripeWebhookSecret != "",
		StripeAPIKey:        cfg.StripeAPIKey != "",
		TwilioAuthToken:     cfg.TwilioAuthToken != "",
		Database:            cfg.DBDSN != "",
		Fanout:              cfg.BillingEventsQueueURL != "",
	})).Methods(http.MethodGet)
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, func(c context.Context) error {
		return db.Ping(c)
	})).Methods(http.MethodGet)

	limiter := ratelimit.NewPerIP(cfg.RatePerIP, cfg.RateBurst, cfg.RateIdleTTL)
	s.Mux.Use(httpserver.RateLimit(limiter))
	s.Mux.Use(httpserver.Metrics(observability.HTTPRequests))

	handler := httpserver.Logging(s.Mux)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: handler}
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler()}

	srvErrCh := make(chan error, 1)
	go func() {
		slog.Info("webhook listening", "port", cfg.Port)
		srvErrCh <- srv.ListenAndServe()
	}()
	metricsErrCh := make(chan error, 1)
	go func() {
		slog.Info("webhook metrics listening", "port", cfg.MetricsPort)
		metricsErrCh <- metricsSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-srvErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("webhook server failed", "err", err)
			os.Exit(1)
		}
	case err := <-metricsErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("webhook metrics server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("webhook shutdown", "signal", sig.String())
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
