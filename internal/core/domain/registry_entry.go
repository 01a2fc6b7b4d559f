package domain

// RoomStrategy selects how a model's change events are addressed to rooms.
type RoomStrategy string

const (
	// StrategyOwner routes to user:<ownerId>, read from OwnerField on the
	// document, falling back to the model room when the field is absent.
	StrategyOwner RoomStrategy = "owner"

	// StrategyModel routes to model:<modelName>; clients receive events
	// only after an explicit subscription.
	StrategyModel RoomStrategy = "model"

	// StrategyBroadcast routes to every authenticated connection.
	StrategyBroadcast RoomStrategy = "broadcast"

	// StrategyCustom delegates room computation to a resolver function.
	StrategyCustom RoomStrategy = "custom"
)

// Valid reports whether s is a known strategy.
func (s RoomStrategy) Valid() bool {
	switch s {
	case StrategyOwner, StrategyModel, StrategyBroadcast, StrategyCustom:
		return true
	}
	return false
}

// Serializer shapes a document payload before it leaves the process.
// Returning an error drops the event; it never crashes the pipeline.
type Serializer func(doc Document, op OperationKind) (Document, error)

// RoomResolver computes room targets for a custom-strategy model.
// Returning an error (or no rooms) drops the event.
type RoomResolver func(doc Document, op OperationKind) ([]RoomTarget, error)

// PermissionRules is the per-model authorization metadata supplied by the
// CRUD layer at registration time.
type PermissionRules struct {
	// HiddenFields are stripped from every outbound payload.
	HiddenFields []string

	// AdminOnly restricts broadcast-strategy events to the admin room.
	AdminOnly bool
}

// RealtimeConfig controls how a registered model's mutations are emitted.
type RealtimeConfig struct {
	// Operations enables a subset of operation kinds. Empty means all.
	Operations []OperationKind

	Strategy RoomStrategy

	// OwnerField names the document field holding the owning user's id.
	// Required for StrategyOwner.
	OwnerField string

	// SoftDeleteField, when set, makes an update that flips this field
	// truthy emit as a delete for client purposes.
	SoftDeleteField string

	// Resolver is required for StrategyCustom.
	Resolver RoomResolver

	// Serializer overrides the default permission-aware field stripper.
	Serializer Serializer
}

// OperationEnabled reports whether op is in the enabled set.
func (c RealtimeConfig) OperationEnabled(op OperationKind) bool {
	if len(c.Operations) == 0 {
		return true
	}
	for _, enabled := range c.Operations {
		if enabled == op {
			return true
		}
	}
	return false
}

// RegistryEntry is the per-model configuration registered at startup by the
// CRUD layer. Collection is the lookup key and must be unique.
type RegistryEntry struct {
	Model      string
	Route      string
	Collection string
	Realtime   RealtimeConfig
	Rules      PermissionRules
}

// WatcherStatus is the externally visible state of the change feed watcher.
type WatcherStatus string

const (
	WatcherNotStarted WatcherStatus = "not_started"
	WatcherRunning    WatcherStatus = "running"
	WatcherStopped    WatcherStatus = "stopped"
	WatcherFailed     WatcherStatus = "failed"
)
