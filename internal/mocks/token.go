package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockToken is a mock implementation of the mqtt.Token interface
type MockToken struct {
	mock.Mock
	// DoneCh is returned by Done. A nil DoneCh means the token has completed.
	DoneCh chan struct{}
}

// NewPendingToken returns a token that never completes.
func NewPendingToken() *MockToken {
	return &MockToken{DoneCh: make(chan struct{})}
}

// NewCompletedToken returns a token that has already finished with err.
func NewCompletedToken(err error) *MockToken {
	t := new(MockToken)
	t.On("Wait").Return(true).Maybe()
	t.On("WaitTimeout", mock.Anything).Return(true).Maybe()
	t.On("Error").Return(err).Maybe()
	return t
}

func (m *MockToken) Error() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockToken) Wait() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockToken) WaitTimeout(timeout time.Duration) bool {
	args := m.Called(timeout)
	return args.Bool(0)
}

func (m *MockToken) Done() <-chan struct{} {
	if m.DoneCh != nil {
		return m.DoneCh
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}
