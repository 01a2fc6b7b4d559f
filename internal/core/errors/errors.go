package errors

import "errors"

// Domain errors for the realtime pipeline.
var (
	// Handshake
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid or expired token")

	// Registry
	ErrUnknownCollection = errors.New("collection is not registered")
	ErrDuplicateModel    = errors.New("model already registered for collection")

	// Routing
	ErrOwnerFieldMissing = errors.New("owner field absent from document")
	ErrResolverFailed    = errors.New("custom room resolver failed")
	ErrSerializerFailed  = errors.New("payload serializer failed")
	ErrNoTargetRooms     = errors.New("no target rooms for event")

	// Feed / backplane
	ErrWatcherNotRunning = errors.New("change feed watcher is not running")
	ErrWatcherExhausted  = errors.New("change feed restart attempts exhausted")
	ErrBackplaneClosed   = errors.New("backplane is closed")
)
