package services

import (
	"fmt"
	"log/slog"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	apperrors "github.com/meridianapp/realtime-gateway/internal/core/errors"
	"github.com/meridianapp/realtime-gateway/internal/core/ports"
)

// Router computes the target rooms and outbound payload for change events.
// It is stateless; a single instance serves the whole pipeline.
type Router struct {
	logger *slog.Logger
}

var _ ports.EventRouter = (*Router)(nil)

// NewRouter creates a room router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{logger: logger.With("component", "room_router")}
}

// Route applies the entry's realtime configuration to one event. It returns
// ok=false when the event must be dropped: operation disabled, serializer or
// resolver failure, or an empty room set. A failing resolver or serializer
// never propagates past this method.
func (r *Router) Route(event domain.ChangeEvent, entry domain.RegistryEntry) ([]domain.RoomTarget, domain.WireEvent, bool) {
	if !entry.Realtime.OperationEnabled(event.Operation) {
		return nil, domain.WireEvent{}, false
	}

	// An update that flips the soft-delete marker is a deletion as far as
	// clients are concerned.
	operation := event.Operation
	if softDeleted(event, entry.Realtime.SoftDeleteField) {
		operation = domain.OpDelete
	}

	// Hard and soft deletes carry no document payload: collection, id and
	// operation only.
	var payload domain.Document
	if operation != domain.OpDelete {
		serialized, err := serializerFor(entry)(event.Document, operation)
		if err != nil {
			r.logger.Error("payload serializer failed, dropping event",
				"collection", event.Collection,
				"document_id", event.DocumentID,
				"operation", operation,
				"error", fmt.Errorf("%w: %v", apperrors.ErrSerializerFailed, err),
			)
			return nil, domain.WireEvent{}, false
		}
		payload = serialized
	}

	rooms, ok := r.roomsFor(event, entry, operation)
	if !ok {
		return nil, domain.WireEvent{}, false
	}
	if len(rooms) == 0 {
		r.logger.Debug("dropping event",
			"collection", event.Collection,
			"document_id", event.DocumentID,
			"error", apperrors.ErrNoTargetRooms,
		)
		return nil, domain.WireEvent{}, false
	}

	wire := domain.WireEvent{
		Collection: event.Collection,
		ID:         event.DocumentID,
		Operation:  operation,
		Data:       payload,
		Timestamp:  event.Timestamp,
	}
	if operation == domain.OpUpdate {
		wire.UpdatedFields = event.UpdatedFields
	}

	return rooms, wire, true
}

// roomsFor dispatches on the entry's room strategy.
func (r *Router) roomsFor(event domain.ChangeEvent, entry domain.RegistryEntry, operation domain.OperationKind) ([]domain.RoomTarget, bool) {
	switch entry.Realtime.Strategy {
	case domain.StrategyOwner:
		if owner, ok := ownerID(event.Document, entry.Realtime.OwnerField); ok {
			return []domain.RoomTarget{domain.UserRoom(owner)}, true
		}
		// Delete events carry no snapshot to read the owner from; fall
		// back to the model room rather than dropping the event.
		r.logger.Debug("falling back to model room",
			"collection", event.Collection,
			"document_id", event.DocumentID,
			"error", apperrors.ErrOwnerFieldMissing,
		)
		return []domain.RoomTarget{domain.ModelRoom(entry.Model)}, true

	case domain.StrategyModel:
		return []domain.RoomTarget{domain.ModelRoom(entry.Model)}, true

	case domain.StrategyBroadcast:
		if entry.Rules.AdminOnly {
			return []domain.RoomTarget{domain.AdminRoom}, true
		}
		return []domain.RoomTarget{domain.AuthenticatedRoom}, true

	case domain.StrategyCustom:
		if entry.Realtime.Resolver == nil {
			r.logger.Warn("custom strategy without resolver, dropping event",
				"collection", event.Collection,
				"model", entry.Model,
			)
			return nil, false
		}
		rooms, err := entry.Realtime.Resolver(event.Document, operation)
		if err != nil {
			r.logger.Error("room resolver failed, dropping event",
				"collection", event.Collection,
				"document_id", event.DocumentID,
				"error", fmt.Errorf("%w: %v", apperrors.ErrResolverFailed, err),
			)
			return nil, false
		}
		return rooms, true
	}

	r.logger.Warn("unknown room strategy, dropping event",
		"collection", event.Collection,
		"strategy", string(entry.Realtime.Strategy),
	)
	return nil, false
}

// softDeleted reports whether an update touched the marker field and left it
// set. Markers are commonly booleans or deletion timestamps, so any value
// other than nil and false counts as set.
func softDeleted(event domain.ChangeEvent, field string) bool {
	if field == "" || event.Operation != domain.OpUpdate {
		return false
	}
	touched := false
	for _, name := range event.UpdatedFields {
		if name == field {
			touched = true
			break
		}
	}
	if !touched {
		return false
	}
	value, ok := event.Document[field]
	if !ok || value == nil {
		return false
	}
	if b, isBool := value.(bool); isBool {
		return b
	}
	return true
}
