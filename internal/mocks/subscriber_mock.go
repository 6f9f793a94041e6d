package mocks

import (
	"github.com/stretchr/testify/mock"
)

// MockSubscriber is a mock implementation of the subscribers.Subscriber interface
type MockSubscriber struct {
	mock.Mock
	id string
}

// NewMockSubscriber creates a mock subscriber with a fixed id.
func NewMockSubscriber(id string) *MockSubscriber {
	return &MockSubscriber{id: id}
}

func (m *MockSubscriber) ID() string { return m.id }

func (m *MockSubscriber) Send(payload []byte) error {
	args := m.Called(payload)
	return args.Error(0)
}

func (m *MockSubscriber) Close() error {
	args := m.Called()
	return args.Error(0)
}
