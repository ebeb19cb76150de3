package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ridewatch/internal/app"
	"github.com/example/ridewatch/internal/config"
	"github.com/example/ridewatch/internal/logging"
)

func main() {
	var (
		addr     string
		driverID int64
		migrate  bool
	)
	flag.StringVar(&addr, "addr", "", "view server address (overrides HTTP_ADDR)")
	flag.Int64Var(&driverID, "driver", 0, "driver id for the driver desk (overrides DRIVER_ID)")
	flag.BoolVar(&migrate, "migrate", false, "apply journal migrations on startup (same as MIGRATE=true)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}
	if driverID > 0 {
		cfg.DriverID = driverID
	}
	cfg.RunMigrations = cfg.RunMigrations || migrate

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.FromConfig(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	logger.Info("ridewatch dashboard starting",
		"backend", cfg.BackendURL, "ws", cfg.WSURL, "addr", cfg.HTTPAddr,
		"poll_interval", cfg.PollInterval.String(), "snapshot_limit", cfg.SnapshotLimit)

	runErr := a.Run(ctx)
	if err := a.Close(); err != nil {
		logger.Warn("close", "error", err)
	}
	if runErr != nil {
		logger.Error("dashboard stopped", "error", runErr)
		os.Exit(1)
	}
	logger.Info("dashboard stopped")
}
