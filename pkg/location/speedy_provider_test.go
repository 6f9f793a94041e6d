package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCredential = models.Credential{Token: "tok", Barcode: "123456"}

func newTestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func requireFetchError(t *testing.T, err error, kind Kind) {
	t.Helper()
	var fe *FetchError
	require.True(t, errors.As(err, &fe), "expected *FetchError, got %v", err)
	assert.Equal(t, kind, fe.Kind)
}

// TestSpeedyProvider_Fetch_Success checks query parameters, headers and body parsing.
func TestSpeedyProvider_Fetch_Success(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`{"shipment":{"id":"x","latLng":{"lat":42.69,"lng":23.32}}}`))
	}))
	defer srv.Close()

	p := NewSpeedyProvider(srv.URL+"/rest/public/shipment/location", time.Second)
	coord, err := p.Fetch(context.Background(), testCredential)

	require.NoError(t, err)
	assert.Equal(t, models.Coordinate{Latitude: 42.69, Longitude: 23.32}, coord)
	require.NotNil(t, got)
	assert.Equal(t, "123456", got.URL.Query().Get("barcode"))
	assert.Equal(t, "tok", got.URL.Query().Get("token"))
	assert.Contains(t, got.Header.Get("User-Agent"), "Mozilla/5.0")
	assert.Contains(t, got.Header.Get("Accept"), "application/json")
	assert.Contains(t, got.Header.Get("Referer"), "/shipment/location?")
}

func TestSpeedyProvider_Fetch_DecodeErrors(t *testing.T) {
	cases := map[string]string{
		"invalid json":     `not json`,
		"missing shipment": `{"other":1}`,
		"missing latLng":   `{"shipment":{}}`,
		"missing lng":      `{"shipment":{"latLng":{"lat":1}}}`,
		"non numeric":      `{"shipment":{"latLng":{"lat":"1","lng":"2"}}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, http.StatusOK, body)
			_, err := NewSpeedyProvider(srv.URL, time.Second).Fetch(context.Background(), testCredential)
			requireFetchError(t, err, KindDecode)
		})
	}
}

func TestSpeedyProvider_Fetch_StatusIsNetworkError(t *testing.T) {
	srv := newTestServer(t, http.StatusBadGateway, `{"shipment":{"latLng":{"lat":1,"lng":2}}}`)
	_, err := NewSpeedyProvider(srv.URL, time.Second).Fetch(context.Background(), testCredential)
	requireFetchError(t, err, KindNetwork)
}

func TestSpeedyProvider_Fetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	_, err := NewSpeedyProvider(endpoint, time.Second).Fetch(context.Background(), testCredential)
	requireFetchError(t, err, KindNetwork)
}

func TestSpeedyProvider_Fetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewSpeedyProvider(srv.URL, 50*time.Millisecond).Fetch(context.Background(), testCredential)
	requireFetchError(t, err, KindNetwork)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSpeedyProvider_Fetch_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewSpeedyProvider(srv.URL, 5*time.Second).Fetch(ctx, testCredential)
	requireFetchError(t, err, KindNetwork)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSpeedyProvider_Defaults(t *testing.T) {
	p := NewSpeedyProvider("", 0)
	assert.Equal(t, DefaultEndpoint, p.endpoint)
	assert.Equal(t, DefaultTimeout, p.timeout)
}
