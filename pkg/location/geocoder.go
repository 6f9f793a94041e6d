package location

import (
	"context"
	"errors"
	"time"

	"github.com/benmeehan/shipment-tracker/internal/models"
	"googlemaps.github.io/maps"
)

// Geocoder resolves a coordinate into a human readable address.
type Geocoder interface {
	Address(ctx context.Context, coordinate models.Coordinate) (string, error)
}

// GoogleGeocoder uses the Google Maps API to reverse geocode coordinates.
type GoogleGeocoder struct {
	client  *maps.Client // Maps API client for making geocoding requests
	timeout time.Duration
}

// NewGoogleGeocoder creates a new GoogleGeocoder instance.
func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeocoder{
		client:  c,
		timeout: 10 * time.Second,
	}, nil
}

// Address returns the formatted address of the best match.
func (g *GoogleGeocoder) Address(ctx context.Context, coordinate models.Coordinate) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: coordinate.Latitude, Lng: coordinate.Longitude},
	}

	results, err := g.client.ReverseGeocode(ctx, req)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", errors.New("no address found for coordinate")
	}

	return results[0].FormattedAddress, nil
}
