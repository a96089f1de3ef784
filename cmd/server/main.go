package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/machmate/machmate-web/internal/authgate"
	"github.com/machmate/machmate-web/internal/config"
	"github.com/machmate/machmate-web/internal/events"
	"github.com/machmate/machmate-web/internal/form"
	"github.com/machmate/machmate-web/internal/gateway"
	"github.com/machmate/machmate-web/internal/handlers"
	"github.com/machmate/machmate-web/internal/jobs"
	"github.com/machmate/machmate-web/internal/logging"
	"github.com/machmate/machmate-web/internal/middleware/csrf"
	"github.com/machmate/machmate-web/internal/offline"
	"github.com/machmate/machmate-web/internal/payment"
	"github.com/machmate/machmate-web/internal/session"
	httpserver "github.com/machmate/machmate-web/internal/transport/http"
	"github.com/machmate/machmate-web/pkg/apiclient"
)

const cacheMaxAge = 7 * 24 * time.Hour

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis_unreachable", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}

	db, err := offline.Open(ctx, cfg.CacheDSN)
	if err != nil {
		log.Error("cache_db_open_failed", "error", err)
		os.Exit(1)
	}
	cache := offline.NewCache(db, cfg.CacheVersion)

	api, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		log.Error("invalid_api_base_url", "error", err)
		os.Exit(1)
	}
	base := gateway.BaseTransport()
	transport := offline.NewTransport(base, cache, api.Host)

	installCtx, cancelInstall := context.WithTimeout(ctx, time.Minute)
	assets := make([]string, 0, len(cfg.PrecacheAssets))
	for _, p := range cfg.PrecacheAssets {
		p = "/" + strings.TrimPrefix(p, "/")
		if !httpserver.ServesAsset(p) {
			log.Warn("precache_path_skipped", "path", p)
			continue
		}
		assets = append(assets, cfg.AssetOriginURL+p)
	}
	if err := cache.Install(installCtx, offline.HTTPFetcher(base), assets); err != nil {
		log.Warn("cache_install_failed", "version", cache.Version(), "error", err)
	} else if dropped, err := cache.Activate(installCtx); err != nil {
		log.Warn("cache_activate_failed", "error", err)
	} else {
		log.Info("cache_activated", "version", cache.Version(), "assets", len(assets), "old_entries", dropped)
	}
	cancelInstall()

	client, err := apiclient.NewClient(cfg.APIBaseURL, apiclient.WithTransport(transport))
	if err != nil {
		log.Error("api_client_failed", "error", err)
		os.Exit(1)
	}

	hintKey, err := cfg.DeriveKey("session-hint")
	if err != nil {
		log.Error("derive_key_failed", "error", err)
		os.Exit(1)
	}
	gate := authgate.New(client, session.NewRedisStore(rdb), session.NewHintCodec(hintKey, cfg.CookieSecure), cfg.CookieSecure)

	pub := events.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	cooldown := form.NewCooldown(form.ResendInterval)

	sched := jobs.NewScheduler(log)
	if err := sched.AddCacheSweep(cfg.CacheSweepSchedule, cache, cacheMaxAge); err != nil {
		log.Error("schedule_failed", "error", err)
		os.Exit(1)
	}
	if err := sched.AddCooldownPrune("@every 5m", cooldown); err != nil {
		log.Error("schedule_failed", "error", err)
		os.Exit(1)
	}

	assetProxy, err := gateway.NewProxy(cfg.AssetOriginURL, "", transport)
	if err != nil {
		log.Error("asset_proxy_failed", "error", err)
		os.Exit(1)
	}

	csrfCfg := csrf.DefaultConfig()
	csrfCfg.Secure = cfg.CookieSecure

	e := echo.New()
	e.HideBanner = true
	httpserver.Register(e, &httpserver.Deps{
		Handler: &handlers.Handler{
			API:      client,
			Gate:     gate,
			Forms:    form.NewStore(rdb),
			Guard:    form.NewGuard(rdb, time.Minute),
			Cooldown: cooldown,
			Events:   pub,
			Payment: payment.Config{
				KeyID:        cfg.PaymentKeyID,
				CallbackURL:  cfg.PaymentCallbackURL,
				MerchantName: cfg.MerchantName,
			},
			Secure: cfg.CookieSecure,
		},
		Gate:   gate,
		Logger: log,
		CSRF:   csrfCfg,
		Assets: assetProxy,
		Ready: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info("http server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
		}
	}()
	sched.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	go func() {
		<-quit
		log.Warn("force exit")
		os.Exit(1)
	}()

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	sched.Stop(shutdownCtx)
	transport.Wait()

	if err := pub.Close(); err != nil {
		log.Error("kafka close error", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Error("db close error", "error", err)
		}
	} else {
		log.Error("db() error", "error", err)
	}
	if err := rdb.Close(); err != nil {
		log.Error("redis close error", "error", err)
	}

	log.Info("shutdown complete")
}
