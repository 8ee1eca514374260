package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"ItemRegistry/internal/items"
	"ItemRegistry/pkg/kit"
)

const service = "items"

type config struct {
	Addr            string
	LogLevel        string
	DatabaseURL     string
	MetricsEnabled  bool
	MetricsToken    string
	ShutdownTimeout time.Duration
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	log, err := kit.NewLogger(service, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	store, closeStore, err := openStore(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("init store failed", zap.Error(err))
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &items.Server{Store: store, Log: log}
	h := items.NewHandler(s, items.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: cfg.MetricsEnabled,
		MetricsToken:   cfg.MetricsToken,
	})

	if err := kit.RunHTTPServer(cfg.Addr, h, log, cfg.ShutdownTimeout); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config, log *zap.Logger) (items.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Info("using in-memory item registry")
		return items.NewStore(), func() {}, nil
	}

	db, err := items.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { closeQuietly(db, log) }

	store := items.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		closeDB()
		return nil, nil, err
	}

	log.Info("using postgres item registry")
	return store, closeDB, nil
}

func closeQuietly(db *sql.DB, log *zap.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("close postgres", zap.Error(err))
	}
}

func loadConfig() (config, error) {
	cfg := config{
		Addr:         getenv("ADDR", "127.0.0.1:8080"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		MetricsToken: os.Getenv("METRICS_TOKEN"),
	}

	enabled, err := strconv.ParseBool(getenv("METRICS_ENABLED", "true"))
	if err != nil {
		return config{}, fmt.Errorf("METRICS_ENABLED: %w", err)
	}
	cfg.MetricsEnabled = enabled

	timeout, err := time.ParseDuration(getenv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return config{}, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout = timeout

	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
