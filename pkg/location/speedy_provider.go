package location

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/benmeehan/shipment-tracker/internal/models"
)

const (
	// DefaultEndpoint is the public shipment location API.
	DefaultEndpoint = "https://myspeedy.speedy.bg/rest/public/shipment/location"
	// DefaultTimeout bounds a single lookup.
	DefaultTimeout = 10 * time.Second

	maxBodySize = 1 << 20
)

var browserHeaders = map[string]string{
	"Accept":           "application/json, text/javascript, */*; q=0.01",
	"Accept-Language":  "en-US,en;q=0.9,bg;q=0.8,de;q=0.7",
	"Content-Type":     "application/json;charset=utf-8",
	"Sec-Fetch-Dest":   "empty",
	"Sec-Fetch-Mode":   "cors",
	"Sec-Fetch-Site":   "same-origin",
	"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"X-Requested-With": "XMLHttpRequest",
}

// SpeedyProvider looks up a shipment position over the public tracking API.
type SpeedyProvider struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// NewSpeedyProvider creates a provider for the given endpoint. Empty or zero
// arguments fall back to DefaultEndpoint and DefaultTimeout.
func NewSpeedyProvider(endpoint string, timeout time.Duration) *SpeedyProvider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SpeedyProvider{
		endpoint: endpoint,
		timeout:  timeout,
		client:   &http.Client{},
	}
}

// shipmentResponse mirrors the subset of the API body we rely on.
type shipmentResponse struct {
	Shipment *struct {
		LatLng *struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		} `json:"latLng"`
	} `json:"shipment"`
}

// Fetch performs one lookup. All failures are returned as *FetchError.
func (p *SpeedyProvider) Fetch(ctx context.Context, credential models.Credential) (models.Coordinate, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("barcode", credential.Barcode)
	query.Set("token", credential.Token)
	target := p.endpoint + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return models.Coordinate{}, networkError("failed to build request: %w", err)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("Referer", p.referer(query))

	resp, err := p.client.Do(req)
	if err != nil {
		return models.Coordinate{}, networkError("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Coordinate{}, networkError("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return models.Coordinate{}, decodeError("failed to read body: %w", err)
	}

	var payload shipmentResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Coordinate{}, decodeError("invalid JSON body: %w", err)
	}
	if payload.Shipment == nil || payload.Shipment.LatLng == nil ||
		payload.Shipment.LatLng.Lat == nil || payload.Shipment.LatLng.Lng == nil {
		return models.Coordinate{}, decodeError("missing shipment.latLng.lat/lng in response")
	}

	return models.Coordinate{
		Latitude:  *payload.Shipment.LatLng.Lat,
		Longitude: *payload.Shipment.LatLng.Lng,
	}, nil
}

// referer points at the browser page the API expects requests to come from.
func (p *SpeedyProvider) referer(query url.Values) string {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/shipment/location?" + query.Encode()
}
