// Package heartbeat reports periodic liveness events through the telemetry
// dispatcher.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/parley-im/parley-core/pkg/telemetry"
)

// DefaultInterval is how often a heartbeat is reported. The dispatcher's own
// cooldown additionally guards against tight loops, so a misconfigured short
// interval cannot flood the endpoint.
const DefaultInterval = 60 * time.Second

// Recorder is the slice of the telemetry dispatcher the reporter needs.
type Recorder interface {
	Record(ctx context.Context, name telemetry.EventName, data any)
}

// Reporter emits a heartbeat event at a fixed interval while running.
type Reporter struct {
	recorder Recorder
	interval time.Duration
	logger   *slog.Logger
}

type Option func(*Reporter)

// WithInterval overrides the heartbeat interval.
func WithInterval(interval time.Duration) Option {
	return func(r *Reporter) {
		r.interval = interval
	}
}

// NewReporter builds a Reporter emitting through recorder.
func NewReporter(logger *slog.Logger, recorder Recorder, opts ...Option) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Reporter{
		recorder: recorder,
		interval: DefaultInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run emits heartbeats until ctx is canceled and returns ctx.Err(). The
// first beat fires after one full interval, not immediately. The host runs
// this in its own goroutine.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Debug("Heartbeat reporter started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Heartbeat reporter stopped")
			return ctx.Err()
		case <-ticker.C:
			r.recorder.Record(ctx, telemetry.EventHeartbeat, nil)
		}
	}
}
