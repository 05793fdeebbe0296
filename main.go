package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/durak/config"
	"github.com/wfunc/durak/logger"
	"github.com/wfunc/durak/monitor"
	"github.com/wfunc/durak/persistence"
	"github.com/wfunc/durak/server"
	"github.com/wfunc/durak/telemetry"
)

func main() {
	logger.Init("info")

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	rules, err := cfg.Game.Rules()
	if err != nil {
		logger.Log.Fatalf("Invalid game configuration: %v", err)
	}

	// Initialize Database
	dsn := cfg.Database.DSN
	if dsn == "" {
		dsn = cfg.Database.Postgres.URL()
	}
	db, err := persistence.Open(cfg.Database.Driver, dsn)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Log.Infow("Database connection successful.", "driver", cfg.Database.Driver)

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.Trace.ServiceName, cfg.Trace.Endpoint)
	if err != nil {
		logger.Log.Errorf("Tracing disabled: %v", err)
	}

	mon := monitor.NewMonitor("durak")
	mon.StartServer(cfg.Server.MetricsAddress)

	var seed []byte
	if cfg.Game.Seed != "" {
		logger.Log.Warn("Shuffles are seeded; do not use this in production.")
		seed = []byte(cfg.Game.Seed)
	}

	// Initialize Game Server
	gameServer, err := server.NewGameServer(server.Options{
		Addr:     cfg.Server.HTTPAddress,
		RPCAddr:  cfg.Server.RPCAddress,
		GRPCAddr: cfg.Server.GRPCAddress,
		Secret:   []byte(cfg.Auth.Secret),
		Rules:    rules,
		Database: db,
		Monitor:  mon,
		Seed:     seed,
	})
	if err != nil {
		logger.Log.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := gameServer.Restore(ctx); err != nil {
		logger.Log.Errorf("Failed to restore rooms: %v", err)
	}
	cancel()

	errChan := make(chan error, 1)
	go func() {
		// Start Server
		logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
		errChan <- gameServer.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errChan:
		if err != nil {
			logger.Log.Errorf("Server stopped: %v", err)
		}
	case sig := <-quit:
		logger.Log.Infof("Received %s, shutting down.", sig)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(ctx); err != nil {
		logger.Log.Errorf("Shutdown error: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Log.Errorf("Flush traces: %v", err)
	}
}
