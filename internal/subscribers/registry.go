// Package subscribers keeps the live set of connected notification channels
// and fans location events out to them.
package subscribers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/benmeehan/shipment-tracker/internal/metrics"
	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/benmeehan/shipment-tracker/internal/utils"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// Subscriber is one connected client.
type Subscriber interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// DeliveryError reports a failed send to a single subscriber.
type DeliveryError struct {
	SubscriberID string
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to subscriber %s failed: %v", e.SubscriberID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Registry is safe for concurrent Add, Remove and Broadcast.
type Registry struct {
	subscribers cmap.ConcurrentMap[string, Subscriber]
	pool        *utils.WorkerPool
	logger      zerolog.Logger
}

// NewRegistry creates a registry that delivers through the given pool.
func NewRegistry(pool *utils.WorkerPool, logger zerolog.Logger) *Registry {
	return &Registry{
		subscribers: cmap.New[Subscriber](),
		pool:        pool,
		logger:      logger.With().Str("component", "subscriber_registry").Logger(),
	}
}

// Add registers sub. It reports false if the subscriber is already present.
func (r *Registry) Add(sub Subscriber) bool {
	added := r.subscribers.SetIfAbsent(sub.ID(), sub)
	if added {
		metrics.Subscribers.Set(float64(r.subscribers.Count()))
		r.logger.Info().Str("subscriber_id", sub.ID()).Int("subscribers", r.subscribers.Count()).Msg("Subscriber added")
	}
	return added
}

// Remove drops sub from the registry. It reports whether it was present.
func (r *Registry) Remove(sub Subscriber) bool {
	_, removed := r.subscribers.Pop(sub.ID())
	if removed {
		metrics.Subscribers.Set(float64(r.subscribers.Count()))
		r.logger.Info().Str("subscriber_id", sub.ID()).Int("subscribers", r.subscribers.Count()).Msg("Subscriber removed")
	}
	return removed
}

// Has reports whether a subscriber with the given id is registered.
func (r *Registry) Has(id string) bool {
	return r.subscribers.Has(id)
}

// Count returns the number of registered subscribers.
func (r *Registry) Count() int {
	return r.subscribers.Count()
}

// Publish implements the tracker's sink contract.
func (r *Registry) Publish(ctx context.Context, event models.LocationEvent) {
	r.Broadcast(ctx, event)
}

// Broadcast sends event to the registered subscribers and returns how many
// deliveries succeeded. The subscriber set is read shard by shard, so a
// subscriber added or removed mid-broadcast may or may not be included, but
// every subscriber seen is delivered to at most once. A failing subscriber
// is removed and closed; it never prevents delivery to the others. Once ctx
// is done, deliveries that have not started are skipped.
func (r *Registry) Broadcast(ctx context.Context, event models.LocationEvent) int {
	snapshot := r.subscribers.Items()
	if len(snapshot) == 0 {
		return 0
	}

	payload, err := json.Marshal(event.Frame())
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to serialize location frame")
		return 0
	}

	results := make(chan error, len(snapshot))
	tasks := make([]func(), 0, len(snapshot))
	for _, sub := range snapshot {
		sub := sub
		tasks = append(tasks, func() {
			if err := ctx.Err(); err != nil {
				results <- err
				return
			}
			if err := sub.Send(payload); err != nil {
				results <- &DeliveryError{SubscriberID: sub.ID(), Err: err}
				r.drop(sub)
				return
			}
			results <- nil
		})
	}
	r.pool.Run(tasks)
	close(results)

	delivered, skipped := 0, 0
	for err := range results {
		var deliveryErr *DeliveryError
		switch {
		case err == nil:
			metrics.DeliveriesTotal.WithLabelValues("ok").Inc()
			delivered++
		case errors.As(err, &deliveryErr):
			metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
			r.logger.Warn().Err(err).Msg("Dropping subscriber after failed delivery")
		default:
			skipped++
		}
	}

	r.logger.Debug().
		Int("delivered", delivered).
		Int("skipped", skipped).
		Int("attempted", len(snapshot)).
		Msg("Location broadcast finished")
	return delivered
}

func (r *Registry) drop(sub Subscriber) {
	r.Remove(sub)
	if err := sub.Close(); err != nil {
		r.logger.Debug().Err(err).Str("subscriber_id", sub.ID()).Msg("Error closing dropped subscriber")
	}
}
