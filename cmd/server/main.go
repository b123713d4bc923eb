// Package main provides the entry point for the classroom session
// coordinator server: the room registry, session state machine, player and
// AI shadow simulations, the auto-timer driver, and the HTTP/WebSocket
// surface students poll.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classroom-sim/session-coordinator/internal/api"
	"github.com/classroom-sim/session-coordinator/internal/config"
	"github.com/classroom-sim/session-coordinator/internal/marketdata"
	"github.com/classroom-sim/session-coordinator/internal/metrics"
	"github.com/classroom-sim/session-coordinator/internal/rooms"
	"github.com/classroom-sim/session-coordinator/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Flags override the COORDINATOR_-prefixed environment config.
	host := flag.String("host", "", "Server host")
	port := flag.Int("port", 0, "Server port")
	dataDir := flag.String("data", "", "Market data directory")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting Classroom Session Coordinator",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("dataDir", cfg.DataDir),
		zap.Duration("timerTick", cfg.TimerTick),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the market data reader
	store, err := marketdata.NewStore(logger.Named("market-data"), cfg.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize market data store", zap.Error(err))
	}

	// Initialize the room registry, with Prometheus counters when enabled
	var registry *rooms.Registry
	var m *metrics.Metrics
	if cfg.EnableMetrics {
		m = metrics.New()
		registry = rooms.NewRegistry(logger.Named("room-registry"), store, m)
	} else {
		registry = rooms.NewRegistry(logger.Named("room-registry"), store, nil)
	}

	// Start the auto-timer driver for sync_auto rooms
	driver := rooms.NewTimerDriver(registry, logger.Named("auto-timer"), cfg.TimerTick)
	driver.Start(ctx)

	serverConfig := &types.ServerConfig{
		Host:          cfg.Host,
		Port:          cfg.Port,
		WebSocketPath: cfg.WebSocketPath,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		EnableMetrics: cfg.EnableMetrics,
	}
	server := api.NewServer(logger.Named("api"), serverConfig, registry, m)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	logger.Info("Server started successfully",
		zap.String("ws", fmt.Sprintf("ws://%s:%d%s", cfg.Host, cfg.Port, cfg.WebSocketPath)),
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Host, cfg.Port)),
	)

	<-sigChan
	logger.Info("Shutdown signal received")

	cancel()
	driver.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
