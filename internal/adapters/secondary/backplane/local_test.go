package backplane

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	apperrors "github.com/meridianapp/realtime-gateway/internal/core/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestLocal_PublishReachesEverySubscriber(t *testing.T) {
	bp := NewLocal(testLogger())

	var first, second []domain.RoomTarget
	require.NoError(t, bp.Subscribe(func(rooms []domain.RoomTarget, _ domain.WireEvent) {
		first = rooms
	}))
	require.NoError(t, bp.Subscribe(func(rooms []domain.RoomTarget, _ domain.WireEvent) {
		second = rooms
	}))

	rooms := []domain.RoomTarget{domain.UserRoom("u1")}
	event := domain.WireEvent{Collection: "todos", ID: "t1", Operation: domain.OpInsert, Timestamp: time.Now()}
	require.NoError(t, bp.Publish(context.Background(), rooms, event))

	assert.Equal(t, rooms, first)
	assert.Equal(t, rooms, second)
}

func TestLocal_PublishWithoutSubscribersIsNoop(t *testing.T) {
	bp := NewLocal(testLogger())

	err := bp.Publish(context.Background(), []domain.RoomTarget{domain.AuthenticatedRoom}, domain.WireEvent{})

	assert.NoError(t, err)
}

func TestLocal_ClosedAdapterRejectsPublishAndSubscribe(t *testing.T) {
	bp := NewLocal(testLogger())
	require.True(t, bp.Healthy())

	require.NoError(t, bp.Close())

	assert.False(t, bp.Healthy())
	assert.ErrorIs(t, bp.Publish(context.Background(), nil, domain.WireEvent{}), apperrors.ErrBackplaneClosed)
	assert.ErrorIs(t, bp.Subscribe(func([]domain.RoomTarget, domain.WireEvent) {}), apperrors.ErrBackplaneClosed)
}

func TestEnvelope_WireFieldNames(t *testing.T) {
	// The envelope is the cross-instance contract; field names must stay
	// stable across versions or mixed fleets drop events.
	env := envelope{
		Rooms: []domain.RoomTarget{domain.ModelRoom("Todo")},
		Event: domain.WireEvent{Collection: "todos", ID: "t1", Operation: domain.OpUpdate},
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"rooms":["model:Todo"]`)
	assert.Contains(t, string(data), `"collection":"todos"`)
	assert.Contains(t, string(data), `"operation":"update"`)
}
