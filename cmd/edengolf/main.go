package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edengolf/internal/api"
	"edengolf/internal/availability"
	"edengolf/internal/booking"
	"edengolf/internal/config"
	"edengolf/internal/events"
	"edengolf/internal/golfapi"
	"edengolf/internal/holds"
	"edengolf/internal/metrics"
	"edengolf/internal/reservations"
	"edengolf/internal/timeline"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("EDENGOLF_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid schedule")
	}

	client := golfapi.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.BackendTimeout())
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if cfg.CacheTTL() > 0 {
			client.UseRedisCache(rdb, cfg.CacheTTL())
		}
	}

	fetcher := reservations.NewFetcher(client, client, loc, &logger)
	bus := events.NewEventBus()
	subscribeNotices(bus, &logger)

	var newStore booking.StoreFactory
	if rdb != nil {
		holdTTL := cfg.HoldTTL()
		newStore = func(sessionID string) holds.Store {
			return holds.NewRedisStore(rdb, sessionID, holdTTL)
		}
	}

	sessions := booking.NewSessionStore(booking.Dependencies{
		Catalog:    catalog,
		Source:     fetcher,
		Reconciler: availability.NewReconciler(cfg.LockPolicy()),
		Checkout:   client,
		Tariff:     cfg.Tariff(),
		Bus:        bus,
		Poll:       cfg.PollConfig(),
		Location:   loc,
		MaxPlayers: cfg.MaxPlayers(),
		SuccessURL: cfg.Booking.SuccessURL,
		CancelURL:  cfg.Booking.CancelURL,
		Logger:     &logger,
	}, newStore, cfg.HoldNamespace(), cfg.SessionTimeout())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The timeline shows paid bookings as taken whatever their status.
	watcher := timeline.NewWatcher(fetcher, availability.NewLockPolicy(cfg.Availability.LockedStatuses, true),
		loc, cfg.Timeline.Date, cfg.PollConfig(), &logger)
	watcher.Start(ctx)
	defer watcher.Stop()

	go sessions.RunCleanup(ctx, time.Minute)
	go startHealthServer(ctx, cfg.HealthCheckPort(), client, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.PrometheusPort(), &logger)
	}

	logger.Info().
		Str("backend", cfg.Backend.BaseURL).
		Str("timezone", loc.String()).
		Strs("locked_statuses", cfg.LockPolicy().Statuses()).
		Msg("edengolf booking service started")

	server := api.NewHTTPServer(cfg.ListenAddr(), sessions, watcher, &logger)
	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sessions.CloseAll(shutdownCtx)
	logger.Info().Msg("edengolf booking service stopped")
}

func subscribeNotices(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.SelectionInvalidated, func(e events.Event) {
		logger.Info().Str("session", e.SessionID).Str("slot", e.Key.String()).Msg(e.Notice)
	})
	bus.Subscribe(events.CaddyDropped, func(e events.Event) {
		logger.Info().Str("session", e.SessionID).Str("slot", e.Key.String()).Strs("caddies", e.IDs).Msg(e.Notice)
	})
	bus.Subscribe(events.AvailabilityStale, func(e events.Event) {
		logger.Debug().Str("session", e.SessionID).Str("date", e.Key.Date).Msg(e.Notice)
	})
}

func startHealthServer(ctx context.Context, port int, client *golfapi.Client, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.HealthCheck(ctxPing); err != nil {
			http.Error(w, "backend not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
