// Package refresh keeps the live station list warm between renders.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/air-quality-dashboard/internal/observability"
	"github.com/couchcryptid/air-quality-dashboard/internal/source"
)

// StationLoader reloads the station list and reports how many stations it
// holds. It is implemented by source.Source.
type StationLoader interface {
	RefreshStations(ctx context.Context) (int, error)
}

const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// Refresher reloads the station list on a fixed interval.
type Refresher struct {
	loader   StationLoader
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Refresher. A nil clock uses the real clock.
func New(loader StationLoader, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Refresher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Refresher{
		loader:   loader,
		interval: interval,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run reloads the station list every interval until the context is cancelled.
// A failed reload is retried with exponential backoff, capped at the interval.
// Run returns immediately when no ground provider is configured.
func (r *Refresher) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}
	r.logger.Info("station refresher started", "interval", r.interval)
	r.metrics.RefresherRunning.Set(1)
	defer r.metrics.RefresherRunning.Set(0)

	ceiling := min(maxBackoff, r.interval)
	backoff := min(initialBackoff, ceiling)
	wait := r.interval

	for {
		if !r.sleep(ctx, wait) {
			r.logger.Info("station refresher stopping", "reason", ctx.Err())
			return nil
		}

		n, err := r.loader.RefreshStations(ctx)
		switch {
		case ctx.Err() != nil:
			r.logger.Info("station refresher stopping", "reason", ctx.Err())
			return nil
		case errors.Is(err, source.ErrProviderDisabled):
			r.logger.Info("station refresher stopping", "reason", "no ground provider")
			return nil
		case err != nil:
			r.metrics.StationRefreshes.WithLabelValues("error").Inc()
			r.logger.Warn("station refresh failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = nextBackoff(backoff, ceiling)
		default:
			r.metrics.StationRefreshes.WithLabelValues("success").Inc()
			r.logger.Debug("station list refreshed", "stations", n)
			wait = r.interval
			backoff = min(initialBackoff, ceiling)
		}
	}
}

func (r *Refresher) sleep(ctx context.Context, d time.Duration) bool {
	timer := r.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func nextBackoff(current, ceiling time.Duration) time.Duration {
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}
