package backplane

import (
	"context"
	"log/slog"
	"sync"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	apperrors "github.com/meridianapp/realtime-gateway/internal/core/errors"
	"github.com/meridianapp/realtime-gateway/internal/core/ports"
)

// Local is the single-instance adapter: publish is an immediate in-process
// delivery to every subscriber, no network hop.
type Local struct {
	mu       sync.RWMutex
	handlers []ports.DeliveryFunc
	closed   bool
	logger   *slog.Logger
}

var _ ports.Backplane = (*Local)(nil)

// NewLocal creates the in-process backplane.
func NewLocal(logger *slog.Logger) *Local {
	return &Local{logger: logger.With("component", "backplane", "kind", "none")}
}

// Publish delivers the event synchronously to every subscriber. Safe for
// concurrent callers; subscribers are invoked outside the adapter's lock.
func (l *Local) Publish(_ context.Context, rooms []domain.RoomTarget, event domain.WireEvent) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return apperrors.ErrBackplaneClosed
	}
	handlers := make([]ports.DeliveryFunc, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.RUnlock()

	for _, handler := range handlers {
		handler(rooms, event)
	}
	return nil
}

// Subscribe registers a local delivery handler.
func (l *Local) Subscribe(handler ports.DeliveryFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return apperrors.ErrBackplaneClosed
	}
	l.handlers = append(l.handlers, handler)
	return nil
}

// Healthy reports whether the adapter accepts publishes.
func (l *Local) Healthy() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.closed
}

// Close stops the adapter; later publishes fail.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.handlers = nil
	l.logger.Info("backplane closed")
	return nil
}
