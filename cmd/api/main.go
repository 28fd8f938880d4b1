package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaheed/fresco/internal/cache"
	"github.com/vaheed/fresco/internal/config"
	"github.com/vaheed/fresco/internal/engine"
	"github.com/vaheed/fresco/internal/fill"
	httpapi "github.com/vaheed/fresco/internal/http"
	"github.com/vaheed/fresco/internal/logging"
	"github.com/vaheed/fresco/internal/observability"
	"github.com/vaheed/fresco/internal/store"
	"github.com/vaheed/fresco/internal/util"
	"github.com/vaheed/fresco/pkg/catalog"
	"go.uber.org/zap"
)

func main() {
	logging.Init()
	cfg := config.LoadServer()

	shutdownTrace := func(context.Context) error { return nil }
	if closer, err := observability.SetupOTel(context.Background(), observability.Config{
		ServiceName:    "fresco-api",
		ServiceVersion: os.Getenv("FRESCO_VERSION"),
		Environment:    os.Getenv("FRESCO_ENV"),
	}); err != nil {
		logging.L.Warn("otel_setup_failed", zap.Error(err))
	} else {
		shutdownTrace = closer
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTrace(ctx)
		}()
	}

	if cfg.AuthEnabled && cfg.JWTSigningKey == "" {
		logging.L.Fatal("missing required env for auth", zap.String("env", "JWT_SIGNING_KEY"))
	}

	st := openStore(cfg)
	defer st.Close(context.Background())

	recCache := cache.NewRecommendations(cfg.RedisAddr, cfg.CacheTTL)
	defer recCache.Close()

	eng := engine.NewService(st, recCache, engine.DefaultModuleID)
	seedModuleConfig(st)
	if err := eng.Rebuild(context.Background()); err != nil {
		// an empty corpus is fine at startup; the engine reports not-ready
		// until the first successful rebuild
		logging.L.Warn("initial engine build failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.FillRefreshInterval > 0 {
		stopRefresh := fill.StartRefresh(st, cfg.FillRefreshInterval, func() {
			if err := eng.Rebuild(context.Background()); err != nil {
				logging.L.Error("engine rebuild after refresh failed", zap.Error(err))
			}
		})
		defer stopRefresh()
	}

	srv := httpapi.NewServer(st, eng, cfg)
	s := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	logging.L.Info("Fresco API listening", zap.String("addr", s.Addr))
	if err := httpapi.StartHTTP(ctx, s); err != nil && !errors.Is(err, context.Canceled) {
		logging.L.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func openStore(cfg config.Server) store.Store {
	if cfg.DatabaseURL == "" {
		logging.L.Info("no DATABASE_URL configured, using in-memory store")
		return store.NewMemory()
	}
	var st store.Store
	err := util.Retry(cfg.ConnectTimeout, func() (bool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, e := store.NewPostgres(ctx, cfg.DatabaseURL)
		if e != nil {
			return true, e
		}
		st = s
		return false, nil
	})
	if err != nil {
		logging.L.Fatal("postgres connect", zap.Error(err))
	}
	return st
}

func seedModuleConfig(st store.Store) {
	ctx := context.Background()
	_, err := st.GetModuleConfig(ctx, engine.DefaultModuleID)
	if err == nil {
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		logging.L.Fatal("load module config", zap.Error(err))
	}
	cfg, err := catalog.DefaultModule()
	if err != nil {
		logging.L.Fatal("embedded module config", zap.Error(err))
	}
	if err := st.SaveModuleConfig(ctx, cfg); err != nil {
		logging.L.Fatal("seed module config", zap.Error(err))
	}
	logging.L.Info("seeded default module config", zap.String("module", cfg.Identifier))
}
