// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CommandsExecuted  *prometheus.CounterVec
	CommandErrors     *prometheus.CounterVec
	MessagesPurged    prometheus.Counter
	GatewayReconnects prometheus.Counter

	// Histograms (seconds)
	CommandDuration  prometheus.Observer
	UpstreamDuration *prometheus.HistogramVec

	// Gauges
	GuildCountGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CommandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_commands_executed_total", Help: "Number of commands executed, by command name"}, []string{"command"})
		CommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_command_errors_total", Help: "Number of command failures, by error class"}, []string{"class"})
		MessagesPurged = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_messages_purged_total", Help: "Number of messages deleted by the purge command"})
		GatewayReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_gateway_reconnects_total", Help: "Number of gateway resume/reconnect events"})
		CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_command_duration_seconds", Help: "Command handler duration seconds", Buckets: prometheus.DefBuckets})
		UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "bot_upstream_request_duration_seconds", Help: "External service request duration seconds", Buckets: prometheus.DefBuckets}, []string{"service"})
		GuildCountGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_guilds", Help: "Number of guilds the bot is connected to"})
	})
}

// SetGuildCount records the current guild membership count.
func SetGuildCount(n int) {
	if GuildCountGauge != nil {
		GuildCountGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
