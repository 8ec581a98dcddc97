package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ActiveCounter counts credentials that are still active
type ActiveCounter interface {
	CountActive(ctx context.Context) (int64, error)
}

// ActiveGauge receives the latest active credential count
type ActiveGauge interface {
	SetActiveCredentials(n int64)
}

// MetricsCollector periodically refreshes the active-credentials gauge.
// It only reads; records are never modified here.
type MetricsCollector struct {
	counter  ActiveCounter
	gauge    ActiveGauge
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(
	counter ActiveCounter,
	gauge ActiveGauge,
	logger *slog.Logger,
	interval time.Duration,
) *MetricsCollector {
	return &MetricsCollector{
		counter:  counter,
		gauge:    gauge,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic refresh and blocks until stopped
func (mc *MetricsCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	// Run immediately on startup
	mc.collect(ctx)

	for {
		select {
		case <-ticker.C:
			mc.collect(ctx)
		case <-mc.stopCh:
			mc.logger.Info("metrics collector stopped")
			return
		case <-ctx.Done():
			mc.logger.Info("metrics collector context cancelled")
			return
		}
	}
}

func (mc *MetricsCollector) collect(ctx context.Context) {
	collectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	n, err := mc.counter.CountActive(collectCtx)
	if err != nil {
		mc.logger.Error("failed to count active credentials", slog.Any("error", err))
		return
	}

	mc.gauge.SetActiveCredentials(n)
	mc.logger.Debug("active credentials refreshed", slog.Int64("active", n))
}

// Stop signals the collector to stop. It is safe to call more than once.
func (mc *MetricsCollector) Stop() {
	mc.stopOnce.Do(func() { close(mc.stopCh) })
}
