package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	"github.com/meridianapp/realtime-gateway/internal/core/ports"
)

// MockBackplane is a mock implementation of ports.Backplane
type MockBackplane struct {
	mock.Mock
}

func NewMockBackplane() *MockBackplane {
	return &MockBackplane{}
}

func (m *MockBackplane) Publish(ctx context.Context, rooms []domain.RoomTarget, event domain.WireEvent) error {
	args := m.Called(ctx, rooms, event)
	return args.Error(0)
}

func (m *MockBackplane) Subscribe(handler ports.DeliveryFunc) error {
	args := m.Called(handler)
	return args.Error(0)
}

func (m *MockBackplane) Healthy() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockBackplane) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockEventRouter is a mock implementation of ports.EventRouter
type MockEventRouter struct {
	mock.Mock
}

func NewMockEventRouter() *MockEventRouter {
	return &MockEventRouter{}
}

func (m *MockEventRouter) Route(event domain.ChangeEvent, entry domain.RegistryEntry) ([]domain.RoomTarget, domain.WireEvent, bool) {
	args := m.Called(event, entry)
	rooms, _ := args.Get(0).([]domain.RoomTarget)
	wire, _ := args.Get(1).(domain.WireEvent)
	return rooms, wire, args.Bool(2)
}

// MockBroadcaster is a mock implementation of ports.Broadcaster
type MockBroadcaster struct {
	mock.Mock
}

func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) Deliver(rooms []domain.RoomTarget, event domain.WireEvent) {
	m.Called(rooms, event)
}

func (m *MockBroadcaster) ClientCount() int {
	args := m.Called()
	return args.Int(0)
}

// MockChangeFeed is a mock implementation of ports.ChangeFeed
type MockChangeFeed struct {
	mock.Mock
}

func NewMockChangeFeed() *MockChangeFeed {
	return &MockChangeFeed{}
}

func (m *MockChangeFeed) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockChangeFeed) Stop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockChangeFeed) Status() domain.WatcherStatus {
	args := m.Called()
	return args.Get(0).(domain.WatcherStatus)
}
