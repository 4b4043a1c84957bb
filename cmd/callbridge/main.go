package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sipmvp/callbridge/internal/audioroute"
	"github.com/sipmvp/callbridge/internal/bridge"
	"github.com/sipmvp/callbridge/internal/config"
	"github.com/sipmvp/callbridge/internal/engine"
	"github.com/sipmvp/callbridge/internal/metrics"
	"github.com/sipmvp/callbridge/internal/notify"
	"github.com/sipmvp/callbridge/internal/storage"
	"github.com/sipmvp/callbridge/internal/storage/pgstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "callbridge: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("invalid jwt secret", "error", err)
		os.Exit(1)
	}

	// One-shot mode: mint a device token and exit.
	if cfg.MintDeviceID != "" {
		if jwtSecret == nil {
			slog.Error("minting a device token requires --jwt-secret")
			os.Exit(1)
		}
		token, expiresAt, err := bridge.GenerateDeviceToken(jwtSecret, cfg.MintDeviceID)
		if err != nil {
			slog.Error("failed to mint device token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		slog.Info("device token minted", "device_id", cfg.MintDeviceID, "expires_at", expiresAt.Format(time.RFC3339))
		return
	}

	slog.Info("starting callbridge", "http_port", cfg.HTTPPort)

	// Open the key/value store: PostgreSQL when a DSN is configured,
	// embedded SQLite otherwise.
	var kv storage.KV
	var closeStore func() error
	if cfg.DatabaseDSN != "" {
		store, err := pgstore.New(cfg.DatabaseDSN)
		if err != nil {
			slog.Error("failed to open postgresql store", "error", err)
			os.Exit(1)
		}
		kv = store
		closeStore = store.Close
	} else {
		db, err := storage.Open(cfg.DataDir)
		if err != nil {
			slog.Error("failed to open storage", "error", err)
			os.Exit(1)
		}
		kv = db
		closeStore = db.Close
	}
	defer closeStore()

	// The hint store holds caller identity, so it gets the encrypted view.
	encKey, err := cfg.EncryptionKeyBytes()
	if err != nil {
		slog.Error("invalid encryption key", "error", err)
		os.Exit(1)
	}
	secure, err := storage.NewSecureKV(kv, encKey)
	if err != nil {
		slog.Error("failed to initialise secure storage", "error", err)
		os.Exit(1)
	}

	// Notification surface. Without a presenter URL presentations go to the
	// log, which is enough for local development.
	var presenter notify.Presenter
	if cfg.PresenterURL != "" {
		capability := notify.CapabilityRich
		if cfg.PresenterCap == "plain" {
			capability = notify.CapabilityPlain
		}
		presenter = notify.NewWebhookPresenter(cfg.PresenterURL, capability)
		slog.Info("using webhook presenter", "url", cfg.PresenterURL, "capability", capability.String())
	} else {
		presenter = notify.LogPresenter{}
		slog.Warn("no --presenter-url provided, presentations will only be logged")
	}

	suppression := notify.NewSuppressionTracker()
	controller := notify.NewController(presenter, nil, suppression)

	eng := engine.New(kv, secure, controller)

	if jwtSecret == nil {
		slog.Warn("no --jwt-secret provided, device authentication is disabled")
	}

	// Audio route reports settle through the debounce before being acted on.
	routeIntake := audioroute.NewIntake(func(r audioroute.RouteInfo) {
		slog.Info("audio route changed",
			"route", r.Route, "sco", r.BluetoothScoOn, "wired", r.WiredHeadsetOn, "speaker", r.SpeakerphoneOn)
	})
	defer routeIntake.Stop()

	rateLimiter := bridge.NewRateLimiter(bridge.DefaultRateLimiterConfig())
	defer rateLimiter.Stop()

	bridgeServer := bridge.NewServer(eng, controller, suppression, routeIntake, rateLimiter, jwtSecret)

	// Metrics registry with the scrape-time collector.
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(eng, eng, eng, controller, suppression, time.Now()))

	// HTTP router with global middleware.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok"}`)
	})

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Mount bridge routes.
	r.Mount("/", bridgeServer)

	// HTTP server with graceful shutdown.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down http server")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("callbridge stopped")
}
