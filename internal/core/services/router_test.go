package services

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func ownerTodoEntry() domain.RegistryEntry {
	return domain.RegistryEntry{
		Model:      "Todo",
		Route:      "/todos",
		Collection: "todos",
		Realtime: domain.RealtimeConfig{
			Strategy:   domain.StrategyOwner,
			OwnerField: "ownerId",
		},
		Rules: domain.PermissionRules{
			HiddenFields: []string{"secret", "internalNotes"},
		},
	}
}

func insertEvent(collection, id string, doc domain.Document) domain.ChangeEvent {
	return domain.ChangeEvent{
		Collection: collection,
		Operation:  domain.OpInsert,
		DocumentID: id,
		Document:   doc,
		Timestamp:  time.Now(),
	}
}

func TestRouter_OwnerStrategyRoutesToUserRoom(t *testing.T) {
	router := NewRouter(testLogger())

	event := insertEvent("todos", "t1", domain.Document{
		"_id":     "t1",
		"title":   "write tests",
		"ownerId": "u1",
		"secret":  "do not leak",
	})

	rooms, wire, ok := router.Route(event, ownerTodoEntry())
	require.True(t, ok)
	require.Equal(t, []domain.RoomTarget{domain.UserRoom("u1")}, rooms)

	assert.Equal(t, "todos", wire.Collection)
	assert.Equal(t, "t1", wire.ID)
	assert.Equal(t, domain.OpInsert, wire.Operation)
	assert.Equal(t, "write tests", wire.Data["title"])
	assert.NotContains(t, wire.Data, "secret")
	assert.NotContains(t, wire.Data, "internalNotes")
}

func TestRouter_OwnerStrategyFallsBackToModelRoom(t *testing.T) {
	router := NewRouter(testLogger())

	// A hard delete carries no document snapshot, so the owner field is
	// unreadable; the event must still reach the model room.
	event := domain.ChangeEvent{
		Collection: "todos",
		Operation:  domain.OpDelete,
		DocumentID: "t1",
		Timestamp:  time.Now(),
	}

	rooms, wire, ok := router.Route(event, ownerTodoEntry())
	require.True(t, ok)
	assert.Equal(t, []domain.RoomTarget{domain.ModelRoom("Todo")}, rooms)
	assert.Nil(t, wire.Data)
}

func TestRouter_ModelStrategyDeleteOmitsPayload(t *testing.T) {
	router := NewRouter(testLogger())

	entry := domain.RegistryEntry{
		Model:      "Invoice",
		Collection: "invoices",
		Realtime:   domain.RealtimeConfig{Strategy: domain.StrategyModel},
	}
	event := domain.ChangeEvent{
		Collection: "invoices",
		Operation:  domain.OpDelete,
		DocumentID: "i9",
		Timestamp:  time.Now(),
	}

	rooms, wire, ok := router.Route(event, entry)
	require.True(t, ok)
	assert.Equal(t, []domain.RoomTarget{domain.ModelRoom("Invoice")}, rooms)
	assert.Equal(t, domain.OpDelete, wire.Operation)
	assert.Nil(t, wire.Data)
	assert.Empty(t, wire.UpdatedFields)
}

func TestRouter_BroadcastStrategy(t *testing.T) {
	router := NewRouter(testLogger())

	entry := domain.RegistryEntry{
		Model:      "Announcement",
		Collection: "announcements",
		Realtime:   domain.RealtimeConfig{Strategy: domain.StrategyBroadcast},
	}
	rooms, _, ok := router.Route(insertEvent("announcements", "a1", domain.Document{"body": "hi"}), entry)
	require.True(t, ok)
	assert.Equal(t, []domain.RoomTarget{domain.AuthenticatedRoom}, rooms)

	entry.Rules.AdminOnly = true
	rooms, _, ok = router.Route(insertEvent("announcements", "a2", domain.Document{"body": "ops"}), entry)
	require.True(t, ok)
	assert.Equal(t, []domain.RoomTarget{domain.AdminRoom}, rooms)
}

func TestRouter_DisabledOperationDropsEvent(t *testing.T) {
	router := NewRouter(testLogger())

	entry := ownerTodoEntry()
	entry.Realtime.Operations = []domain.OperationKind{domain.OpInsert}

	event := domain.ChangeEvent{
		Collection:    "todos",
		Operation:     domain.OpUpdate,
		DocumentID:    "t1",
		Document:      domain.Document{"ownerId": "u1"},
		UpdatedFields: []string{"title"},
	}

	_, _, ok := router.Route(event, entry)
	assert.False(t, ok)
}

func TestRouter_CustomResolver(t *testing.T) {
	router := NewRouter(testLogger())

	entry := domain.RegistryEntry{
		Model:      "Message",
		Collection: "messages",
		Realtime: domain.RealtimeConfig{
			Strategy: domain.StrategyCustom,
			Resolver: func(doc domain.Document, _ domain.OperationKind) ([]domain.RoomTarget, error) {
				channel, _ := doc["channelId"].(string)
				return []domain.RoomTarget{domain.CustomRoom("channel:" + channel)}, nil
			},
		},
	}

	rooms, _, ok := router.Route(insertEvent("messages", "m1", domain.Document{"channelId": "c7"}), entry)
	require.True(t, ok)
	assert.Equal(t, []domain.RoomTarget{domain.CustomRoom("channel:c7")}, rooms)
}

func TestRouter_ResolverFailureDropsEventWithoutPanic(t *testing.T) {
	router := NewRouter(testLogger())

	entry := domain.RegistryEntry{
		Model:      "Message",
		Collection: "messages",
		Realtime: domain.RealtimeConfig{
			Strategy: domain.StrategyCustom,
			Resolver: func(domain.Document, domain.OperationKind) ([]domain.RoomTarget, error) {
				return nil, errors.New("resolver blew up")
			},
		},
	}

	_, _, ok := router.Route(insertEvent("messages", "m1", domain.Document{}), entry)
	assert.False(t, ok)
}

func TestRouter_SerializerFailureDropsEvent(t *testing.T) {
	router := NewRouter(testLogger())

	entry := ownerTodoEntry()
	entry.Realtime.Serializer = func(domain.Document, domain.OperationKind) (domain.Document, error) {
		return nil, errors.New("bad payload")
	}

	_, _, ok := router.Route(insertEvent("todos", "t1", domain.Document{"ownerId": "u1"}), entry)
	assert.False(t, ok)
}

func TestRouter_SoftDeleteUpdateEmitsDelete(t *testing.T) {
	router := NewRouter(testLogger())

	entry := ownerTodoEntry()
	entry.Realtime.SoftDeleteField = "deletedAt"

	event := domain.ChangeEvent{
		Collection:    "todos",
		Operation:     domain.OpUpdate,
		DocumentID:    "t1",
		Document:      domain.Document{"ownerId": "u1", "deletedAt": time.Now()},
		UpdatedFields: []string{"deletedAt"},
		Timestamp:     time.Now(),
	}

	rooms, wire, ok := router.Route(event, entry)
	require.True(t, ok)
	assert.Equal(t, []domain.RoomTarget{domain.UserRoom("u1")}, rooms)
	assert.Equal(t, domain.OpDelete, wire.Operation)
	assert.Nil(t, wire.Data)
}

func TestRouter_SoftDeleteFieldClearedStaysUpdate(t *testing.T) {
	router := NewRouter(testLogger())

	entry := ownerTodoEntry()
	entry.Realtime.SoftDeleteField = "deleted"

	// Restoring a soft-deleted document flips the marker back to false;
	// that is an ordinary update, not a delete.
	event := domain.ChangeEvent{
		Collection:    "todos",
		Operation:     domain.OpUpdate,
		DocumentID:    "t1",
		Document:      domain.Document{"ownerId": "u1", "deleted": false},
		UpdatedFields: []string{"deleted"},
		Timestamp:     time.Now(),
	}

	_, wire, ok := router.Route(event, entry)
	require.True(t, ok)
	assert.Equal(t, domain.OpUpdate, wire.Operation)
	assert.Equal(t, []string{"deleted"}, wire.UpdatedFields)
}

func TestFieldStrippingSerializer(t *testing.T) {
	serialize := FieldStrippingSerializer(domain.PermissionRules{HiddenFields: []string{"secret"}})

	original := domain.Document{"title": "a", "secret": "b"}
	for _, op := range domain.AllOperations {
		out, err := serialize(original, op)
		require.NoError(t, err)
		assert.NotContains(t, out, "secret")
		assert.Equal(t, "a", out["title"])
	}

	// The input document is never mutated.
	assert.Equal(t, "b", original["secret"])

	out, err := serialize(nil, domain.OpDelete)
	require.NoError(t, err)
	assert.Nil(t, out)
}
