package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benmeehan/shipment-tracker/internal/metrics"
	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/benmeehan/shipment-tracker/pkg/location"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is the fixed pause between two polling cycles.
const DefaultPollInterval = 30 * time.Second

// TrackerState is the lifecycle state of a single Tracker instance.
type TrackerState int32

const (
	TrackerIdle TrackerState = iota
	TrackerPolling
	TrackerCancelled
)

func (s TrackerState) String() string {
	switch s {
	case TrackerIdle:
		return "idle"
	case TrackerPolling:
		return "polling"
	case TrackerCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Tracker polls the location provider for one credential and emits an event
// whenever the reported coordinate changes. A Tracker runs at most once;
// a new credential always gets a new Tracker.
type Tracker struct {
	credential models.Credential
	interval   time.Duration
	provider   location.Provider
	sink       LocationSink
	logger     zerolog.Logger
	now        func() time.Time

	state atomic.Int32
	last  *models.Coordinate
}

// NewTracker creates an idle tracker bound to credential.
func NewTracker(credential models.Credential, interval time.Duration, provider location.Provider,
	sink LocationSink, logger zerolog.Logger) *Tracker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tracker{
		credential: credential,
		interval:   interval,
		provider:   provider,
		sink:       sink,
		logger:     logger.With().Str("barcode", credential.Barcode).Logger(),
		now:        time.Now,
	}
}

// Credential returns the credential the tracker was created with.
func (t *Tracker) Credential() models.Credential {
	return t.credential
}

// State returns the current lifecycle state.
func (t *Tracker) State() TrackerState {
	return TrackerState(t.state.Load())
}

// Run polls until ctx is cancelled, sleeping the fixed interval after every
// cycle. Fetch failures are logged and retried. Run returns a non-nil error
// only when the provider fails with something other than a FetchError.
func (t *Tracker) Run(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(TrackerIdle), int32(TrackerPolling)) {
		return errors.New("tracker has already been started")
	}
	defer t.state.Store(int32(TrackerCancelled))

	t.last = nil
	t.logger.Info().Dur("interval", t.interval).Msg("Tracker started")

	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			t.logger.Info().Msg("Tracker cancelled")
			return nil
		}

		if err := t.poll(ctx); err != nil {
			t.logger.Error().Err(err).Msg("Tracker stopped on unexpected error")
			return err
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(t.interval)

		select {
		case <-ctx.Done():
			t.logger.Info().Msg("Tracker cancelled")
			return nil
		case <-timer.C:
		}
	}
}

// poll runs a single fetch-compare-emit cycle.
func (t *Tracker) poll(ctx context.Context) error {
	coordinate, err := t.provider.Fetch(ctx, t.credential)
	if ctx.Err() != nil {
		// Superseded mid-fetch: whatever came back is stale.
		return nil
	}
	if err != nil {
		var fetchErr *location.FetchError
		if !errors.As(err, &fetchErr) {
			return fmt.Errorf("unexpected location provider error: %w", err)
		}
		metrics.FetchTotal.WithLabelValues(string(fetchErr.Kind)).Inc()
		t.logger.Error().
			Err(fetchErr.Err).
			Str("kind", string(fetchErr.Kind)).
			Dur("retry_in", t.interval).
			Msg("Failed to fetch shipment location")
		return nil
	}
	metrics.FetchTotal.WithLabelValues("ok").Inc()

	if t.last != nil && t.last.Equal(coordinate) {
		t.logger.Debug().Msg("Shipment location unchanged")
		return nil
	}
	t.last = &coordinate

	event := models.LocationEvent{Coordinate: coordinate, ObservedAt: t.now()}
	metrics.LocationEventsTotal.Inc()
	t.logger.Info().
		Float64("lat", coordinate.Latitude).
		Float64("lng", coordinate.Longitude).
		Msg("New shipment location")

	t.sink.Publish(ctx, event)
	return nil
}
