package mocks

import (
	"context"

	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockGeocoder is a mock implementation of the location.Geocoder interface
type MockGeocoder struct {
	mock.Mock
}

func (m *MockGeocoder) Address(ctx context.Context, coordinate models.Coordinate) (string, error) {
	args := m.Called(ctx, coordinate)
	return args.String(0), args.Error(1)
}
