package main

import (
	"flag"
	"net/http"
	"time"

	"go.uber.org/zap"

	"relaychat/internal/config"
	"relaychat/internal/dedupe"
	"relaychat/internal/delivery"
	"relaychat/internal/metrics"
	"relaychat/internal/presence"
	"relaychat/internal/registry"
	"relaychat/internal/server"
	"relaychat/internal/store"
)

var (
	// Version is injected via -ldflags "-X main.Version=..."
	Version = "dev"
)

func main() {
	var cfgPaths string
	flag.StringVar(&cfgPaths, "c", "./config.yml", "config file path (supports: a.yml,b.yml)")
	flag.Parse()

	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load(cfgPaths)
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}
	log.Info("relayd starting", zap.String("version", Version), zap.String("addr", cfg.HTTP.Addr), zap.String("storage", cfg.Storage))

	metrics.Register()

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal("store init failed", zap.Error(err))
	}
	defer st.Close()

	var guard dedupe.Guard
	if cfg.Redis.Enabled {
		guard, err = dedupe.NewRedis(dedupe.RedisSettings{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			Database: cfg.Redis.Database,
		})
		if err != nil {
			log.Fatal("redis init failed", zap.Error(err))
		}
	} else {
		guard = dedupe.NewMemory()
	}
	defer guard.Close()

	reg := registry.New(cfg.SendQueueSize)
	breaker := delivery.NewBreaker(delivery.BreakerOptions{
		Threshold: cfg.Breaker.Threshold,
		Window:    cfg.Breaker.Window,
		OpenFor:   cfg.Breaker.OpenFor,
	})
	svc := delivery.New(st, reg, log, delivery.Options{
		Guard:     guard,
		Breaker:   breaker,
		OpTimeout: cfg.RequestTimeout,
	})
	tracker := presence.NewTracker(reg)

	srv := server.New(log, st, reg, svc, tracker, server.Options{
		WriteTimeout:   cfg.WriteTimeout,
		RequestTimeout: cfg.RequestTimeout,
		DefaultLimit:   cfg.History.DefaultLimit,
		MaxLimit:       cfg.History.MaxLimit,
	})

	hs := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 2 * time.Second,
	}
	log.Info("relayd listening", zap.String("addr", cfg.HTTP.Addr))
	if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Storage == "mysql" {
		return store.OpenMySQL(store.Options{
			DSN:          cfg.MySQL.DSN,
			MaxOpenConns: cfg.MySQL.MaxOpenConns,
			MaxIdleConns: cfg.MySQL.MaxIdleConns,
			ConnMaxLife:  cfg.MySQL.ConnMaxLife,
			ConnMaxIdle:  cfg.MySQL.ConnMaxIdle,
		})
	}
	return store.NewMemory(), nil
}
