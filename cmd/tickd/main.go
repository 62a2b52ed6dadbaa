package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tickd-io/tickd/internal/api"
	"github.com/tickd-io/tickd/internal/config"
	"github.com/tickd-io/tickd/internal/logbuf"
	"github.com/tickd-io/tickd/internal/ticket"
)

func main() {
	// Best-effort: a missing .env just means the environment is already set.
	_ = godotenv.Load()

	dbPath := flag.String("db", "", "Path to the SQLite database (default $TICKD_DB or tickd.db)")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	cfg := config.FromEnv()
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := ticket.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open ticket store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	srv := api.NewServer(store, api.Config{
		Host: cfg.Host,
		Port: cfg.Port,
		Key:  cfg.APIKey,
	}, logger, logBuf)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("tickd starting", "host", cfg.Host, "port", cfg.Port, "db", cfg.DBPath)
	if err := srv.Start(ctx); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("tickd stopped")
}
