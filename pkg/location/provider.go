package location

import (
	"context"

	"github.com/benmeehan/shipment-tracker/internal/models"
)

// Provider interface defines a single lookup of a shipment's position.
// Implementations must not retry; retry policy belongs to the caller.
type Provider interface {
	Fetch(ctx context.Context, credential models.Credential) (models.Coordinate, error)
}

// ProviderFunc adapts an ordinary function to the Provider interface.
type ProviderFunc func(ctx context.Context, credential models.Credential) (models.Coordinate, error)

// Fetch calls f(ctx, credential).
func (f ProviderFunc) Fetch(ctx context.Context, credential models.Credential) (models.Coordinate, error) {
	return f(ctx, credential)
}
