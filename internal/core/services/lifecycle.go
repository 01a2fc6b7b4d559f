package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	"github.com/meridianapp/realtime-gateway/internal/core/ports"
)

// Health is a point-in-time snapshot of the realtime subsystem, served by
// the liveness surface.
type Health struct {
	ConnectedClients int                  `json:"connectedClientCount"`
	WatcherStatus    domain.WatcherStatus `json:"watcherStatus"`
	BackplaneHealthy bool                 `json:"backplaneHealthy"`
}

// Healthy reports whether every component is up.
func (h Health) Healthy() bool {
	return h.WatcherStatus == domain.WatcherRunning && h.BackplaneHealthy
}

// Lifecycle owns startup ordering and graceful shutdown for the realtime
// subsystem: the backplane subscription is wired before the feed starts
// producing, and the feed is drained to completion before the backplane
// closes. Callers thread the returned handle through constructors; nothing
// here is reachable through package-level state.
type Lifecycle struct {
	feed      ports.ChangeFeed
	backplane ports.Backplane
	gateway   ports.Broadcaster
	logger    *slog.Logger
}

// NewLifecycle creates the lifecycle manager for the given components.
func NewLifecycle(feed ports.ChangeFeed, backplane ports.Backplane, gateway ports.Broadcaster, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		feed:      feed,
		backplane: backplane,
		gateway:   gateway,
		logger:    logger.With("component", "lifecycle"),
	}
}

// Start brings the subsystem up. Order matters: the backplane must be
// delivering into the local gateway before the watcher can emit, otherwise
// early events published by this instance would be lost.
func (l *Lifecycle) Start(ctx context.Context) error {
	if err := l.backplane.Subscribe(l.gateway.Deliver); err != nil {
		return fmt.Errorf("subscribing backplane: %w", err)
	}
	l.logger.Info("backplane subscription established")

	if err := l.feed.Start(ctx); err != nil {
		return fmt.Errorf("starting change feed: %w", err)
	}
	l.logger.Info("change feed watcher started")

	return nil
}

// Stop tears the subsystem down in reverse order. The feed stop is awaited
// so no mutation already read from the stream is dropped mid-flight.
func (l *Lifecycle) Stop(ctx context.Context) error {
	var errs []error

	if err := l.feed.Stop(ctx); err != nil {
		l.logger.Error("change feed stop failed", "error", err)
		errs = append(errs, fmt.Errorf("stopping change feed: %w", err))
	} else {
		l.logger.Info("change feed watcher stopped")
	}

	if err := l.backplane.Close(); err != nil {
		l.logger.Error("backplane close failed", "error", err)
		errs = append(errs, fmt.Errorf("closing backplane: %w", err))
	}

	return errors.Join(errs...)
}

// Health reports the current subsystem state.
func (l *Lifecycle) Health() Health {
	return Health{
		ConnectedClients: l.gateway.ClientCount(),
		WatcherStatus:    l.feed.Status(),
		BackplaneHealthy: l.backplane.Healthy(),
	}
}
