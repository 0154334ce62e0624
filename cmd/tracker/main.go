// Command tracker runs the portfolio data service: it refreshes the configured
// watchlist on a schedule and serves usage and metrics endpoints for the UI.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/finboard/finboard/internal/cache"
	"github.com/finboard/finboard/internal/config"
	"github.com/finboard/finboard/internal/crypto"
	"github.com/finboard/finboard/internal/docstore"
	"github.com/finboard/finboard/internal/observ"
	"github.com/finboard/finboard/internal/quota"
	"github.com/finboard/finboard/internal/securities"
	"github.com/finboard/finboard/internal/transport"
	"github.com/finboard/finboard/internal/usage"
	"github.com/finboard/finboard/internal/watchlist"
	"github.com/finboard/finboard/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	refreshOnStart := flag.Bool("refresh-on-start", true, "run one refresh pass before the schedule starts")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log.Info().Str("config", *configPath).Msg("tracker starting")

	shared := cache.New(cfg.Cache.MaxPerCategory, log)

	stockQuota := quota.NewTracker("stocks", cfg.Stocks.DailyCap, cooldown(cfg.Stocks), log)
	cryptoQuota := quota.NewTracker("crypto", cfg.Crypto.DailyCap, cooldown(cfg.Crypto), log)

	stocks := securities.New(transport.New(transport.Provider{
		Name:        "stocks",
		BaseURL:     cfg.Stocks.BaseURL,
		APIKey:      os.Getenv(cfg.Stocks.APIKeyEnv),
		APIKeyParam: "apikey",
	}, stockQuota, transportConfig(cfg.Stocks), log), shared, log)

	coins := crypto.New(transport.New(transport.Provider{
		Name:         "crypto",
		BaseURL:      cfg.Crypto.BaseURL,
		APIKey:       os.Getenv(cfg.Crypto.APIKeyEnv),
		APIKeyHeader: "x-cg-demo-api-key",
	}, cryptoQuota, transportConfig(cfg.Crypto), log), shared, log)

	store := docstore.NewClient(cfg.Docstore.BaseURL, os.Getenv(cfg.Docstore.APIKeyEnv), log)
	manager := watchlist.NewManager(store, stocks, coins, log)
	reporter := usage.NewReporter(shared, stockQuota, cryptoQuota)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	refresh := func() {
		if cfg.Watchlist.UserID == "" {
			return
		}
		runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if _, err := manager.RefreshAll(runCtx, cfg.Watchlist.UserID); err != nil {
			log.Error().Err(err).Msg("scheduled refresh failed")
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Watchlist.RefreshSchedule, refresh); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Watchlist.RefreshSchedule).Msg("invalid refresh schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	if *refreshOnStart {
		go refresh()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/usage", reporter.Handler())
	r.Method(http.MethodGet, "/metrics", observ.Handler())

	server := &http.Server{Addr: cfg.Server.Addr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

func cooldown(p config.ProviderConfig) time.Duration {
	if p.CooldownMinutes > 0 {
		return time.Duration(p.CooldownMinutes) * time.Minute
	}
	return quota.DefaultCooldown
}

func transportConfig(p config.ProviderConfig) transport.Config {
	return transport.Config{
		RateLimitPerMinute: p.RateLimitPerMinute,
		MaxRetries:         p.MaxRetries,
		BackoffBase:        time.Duration(p.BackoffBaseMs) * time.Millisecond,
		Timeout:            time.Duration(p.TimeoutMs) * time.Millisecond,
	}
}
