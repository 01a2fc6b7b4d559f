package domain

import "time"

// OperationKind classifies a committed mutation in the document store.
type OperationKind string

const (
	OpInsert  OperationKind = "insert"
	OpUpdate  OperationKind = "update"
	OpReplace OperationKind = "replace"
	OpDelete  OperationKind = "delete"
)

// AllOperations lists every operation kind the change feed can deliver.
var AllOperations = []OperationKind{OpInsert, OpUpdate, OpReplace, OpDelete}

// Valid reports whether k is one of the known operation kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case OpInsert, OpUpdate, OpReplace, OpDelete:
		return true
	}
	return false
}

// Document is a decoded document payload from the store.
type Document map[string]any

// ChangeEvent is one committed mutation, normalized by the change feed
// watcher. It is immutable once created and consumed exactly once by the
// routing pipeline.
type ChangeEvent struct {
	// Collection is the store-level collection name the mutation hit.
	Collection string

	// Operation discriminates the event variant. Document is present for
	// insert, replace and (with update lookup enabled) update events;
	// UpdatedFields only for updates.
	Operation OperationKind

	// DocumentID is the string form of the mutated document's key.
	DocumentID string

	Document      Document
	UpdatedFields []string

	// Timestamp is the store's commit time for the mutation.
	Timestamp time.Time
}

// WireEvent is the payload contract delivered to connected clients.
type WireEvent struct {
	Collection    string        `json:"collection"`
	ID            string        `json:"id"`
	Operation     OperationKind `json:"operation"`
	Data          Document      `json:"data,omitempty"`
	UpdatedFields []string      `json:"updatedFields,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}
