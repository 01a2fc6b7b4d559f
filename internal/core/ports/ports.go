package ports

import (
	"context"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
)

// ModelRegistry defines the port for looking up per-model realtime
// configuration by collection name.
type ModelRegistry interface {
	Register(entry domain.RegistryEntry)
	Lookup(collection string) (domain.RegistryEntry, bool)
	All() []domain.RegistryEntry
}

// EventRouter computes the target rooms and outbound payload for one change
// event. ok is false when the event must be dropped (operation disabled,
// serializer or resolver failure, empty room set).
type EventRouter interface {
	Route(event domain.ChangeEvent, entry domain.RegistryEntry) (rooms []domain.RoomTarget, wire domain.WireEvent, ok bool)
}

// ChangeDispatcher is the pipeline stage the watcher hands normalized
// events to. Implementations never return control-flow errors to the
// watcher; per-event failures are logged and swallowed.
type ChangeDispatcher interface {
	Dispatch(ctx context.Context, event domain.ChangeEvent)
}

// DeliveryFunc receives a backplane-delivered event on the subscribing
// instance and fans it out to matching local connections.
type DeliveryFunc func(rooms []domain.RoomTarget, event domain.WireEvent)

// Backplane is the cross-instance fan-out transport. The local (single
// instance) variant delivers synchronously; the broker-backed variant
// round-trips through a shared channel so sockets on any instance see the
// event. Publish must be safe for concurrent callers.
type Backplane interface {
	Publish(ctx context.Context, rooms []domain.RoomTarget, event domain.WireEvent) error
	Subscribe(handler DeliveryFunc) error
	Healthy() bool
	Close() error
}

// Broadcaster is the local connection gateway's delivery surface.
type Broadcaster interface {
	Deliver(rooms []domain.RoomTarget, event domain.WireEvent)
	ClientCount() int
}

// ChangeFeed is the resumable subscription to the store's mutation feed.
// Stop must be awaited to completion during shutdown so no event is dropped
// mid-flight.
type ChangeFeed interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() domain.WatcherStatus
}
