package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	"github.com/meridianapp/realtime-gateway/internal/core/mocks"
)

func TestDispatcher_RoutesRegisteredCollectionExactlyOnce(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ownerTodoEntry())

	router := mocks.NewMockEventRouter()
	backplane := mocks.NewMockBackplane()

	event := insertEvent("todos", "t1", domain.Document{"ownerId": "u1"})
	rooms := []domain.RoomTarget{domain.UserRoom("u1")}
	wire := domain.WireEvent{Collection: "todos", ID: "t1", Operation: domain.OpInsert}

	router.On("Route", event, mock.Anything).Return(rooms, wire, true).Once()
	backplane.On("Publish", mock.Anything, rooms, wire).Return(nil).Once()

	d := NewDispatcher(reg, router, backplane, testLogger())
	d.Dispatch(context.Background(), event)

	router.AssertExpectations(t)
	backplane.AssertExpectations(t)
}

func TestDispatcher_UnregisteredCollectionNeverReachesRouter(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ownerTodoEntry())

	router := mocks.NewMockEventRouter()
	backplane := mocks.NewMockBackplane()

	d := NewDispatcher(reg, router, backplane, testLogger())
	d.Dispatch(context.Background(), insertEvent("sessions", "s1", domain.Document{}))

	router.AssertNotCalled(t, "Route", mock.Anything, mock.Anything)
	backplane.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_DroppedEventIsNotPublished(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ownerTodoEntry())

	router := mocks.NewMockEventRouter()
	backplane := mocks.NewMockBackplane()
	router.On("Route", mock.Anything, mock.Anything).Return(nil, domain.WireEvent{}, false).Once()

	d := NewDispatcher(reg, router, backplane, testLogger())
	d.Dispatch(context.Background(), insertEvent("todos", "t1", domain.Document{}))

	router.AssertExpectations(t)
	backplane.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_PublishFailureDoesNotPanic(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ownerTodoEntry())

	router := mocks.NewMockEventRouter()
	backplane := mocks.NewMockBackplane()
	router.On("Route", mock.Anything, mock.Anything).
		Return([]domain.RoomTarget{domain.AuthenticatedRoom}, domain.WireEvent{}, true).Once()
	backplane.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("backplane down")).Once()

	d := NewDispatcher(reg, router, backplane, testLogger())
	require.NotPanics(t, func() {
		d.Dispatch(context.Background(), insertEvent("todos", "t1", domain.Document{}))
	})
	backplane.AssertExpectations(t)
}
