package services

import (
	"context"
	"log/slog"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	apperrors "github.com/meridianapp/realtime-gateway/internal/core/errors"
	"github.com/meridianapp/realtime-gateway/internal/core/ports"
)

// Dispatcher is the per-event pipeline stage between the change feed and
// the backplane: registry lookup, routing, publish. One bad event never
// stops the feed; every failure path here logs and returns.
type Dispatcher struct {
	registry  ports.ModelRegistry
	router    ports.EventRouter
	backplane ports.Backplane
	logger    *slog.Logger
}

var _ ports.ChangeDispatcher = (*Dispatcher)(nil)

// NewDispatcher wires the pipeline stage.
func NewDispatcher(registry ports.ModelRegistry, router ports.EventRouter, backplane ports.Backplane, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		router:    router,
		backplane: backplane,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Dispatch processes one normalized change event. Events for collections
// absent from the registry short-circuit before any serialization.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.ChangeEvent) {
	entry, registered := d.registry.Lookup(event.Collection)
	if !registered {
		d.logger.Debug("skipping event for unregistered collection",
			"collection", event.Collection,
			"error", apperrors.ErrUnknownCollection,
		)
		return
	}

	rooms, wire, ok := d.router.Route(event, entry)
	if !ok {
		return
	}

	if err := d.backplane.Publish(ctx, rooms, wire); err != nil {
		d.logger.Error("failed to publish event to backplane",
			"collection", event.Collection,
			"document_id", event.DocumentID,
			"operation", event.Operation,
			"error", err,
		)
		return
	}

	d.logger.Debug("event published",
		"collection", event.Collection,
		"document_id", event.DocumentID,
		"operation", wire.Operation,
		"rooms", len(rooms),
	)
}
