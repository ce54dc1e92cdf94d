// Command infibot is the main entrypoint for the Discord assistant bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the SQLite database and runs idempotent migrations.
//   - Connects to the Discord gateway and registers the command handlers.
//   - Exposes a minimal ops HTTP server with /healthz, /readyz, /status,
//     and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/infibot/bot"
	"github.com/onnwee/infibot/config"
	"github.com/onnwee/infibot/db"
	"github.com/onnwee/infibot/server"
	"github.com/onnwee/infibot/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	tracingShutdown, err := telemetry.InitTracing("infibot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer tracingShutdown()

	// DB
	database, err := db.Connect(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}

	migrationCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	applied, err := db.Migrate(migrationCtx, database)
	cancelMigrate()
	if err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("database migrations complete", slog.Int("applied", applied), slog.String("component", "db_migrate"))

	// Shared HTTP transport for all outbound calls (Discord REST, Gemini, W2G).
	httpClient := &http.Client{Timeout: 30 * time.Second}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := bot.New(cfg, database, httpClient)
	if err != nil {
		slog.Error("failed to build bot", slog.Any("err", err))
		os.Exit(1)
	}
	b.SetShutdown(stop)

	// Ops HTTP server (health/readiness/status/metrics)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, addr, server.NewMux(database, b)); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	if err := b.Start(); err != nil {
		slog.Error("failed to open gateway connection", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("bot started", slog.String("environment", cfg.Environment))

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")

	// Shutdown order, each step best-effort: shared HTTP transport, storage,
	// gateway.
	httpClient.CloseIdleConnections()
	if err := database.Close(); err != nil {
		slog.Error("failed to close database", slog.Any("err", err))
	}
	if err := b.Close(); err != nil {
		slog.Error("failed to close gateway connection", slog.Any("err", err))
	}
}
