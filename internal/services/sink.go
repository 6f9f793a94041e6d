package services

import (
	"context"

	"github.com/benmeehan/shipment-tracker/internal/models"
)

// LocationSink consumes the events produced by a Tracker. Publish is called
// from the tracker goroutine, one event at a time, in production order. ctx
// is cancelled when the tracker is superseded; sinks should give up any
// blocking work at that point.
type LocationSink interface {
	Publish(ctx context.Context, event models.LocationEvent)
}

// MultiSink forwards each event to every sink in order.
type MultiSink []LocationSink

func (m MultiSink) Publish(ctx context.Context, event models.LocationEvent) {
	for _, sink := range m {
		if ctx.Err() != nil {
			return
		}
		sink.Publish(ctx, event)
	}
}

// SinkFunc adapts a function to LocationSink.
type SinkFunc func(ctx context.Context, event models.LocationEvent)

func (f SinkFunc) Publish(ctx context.Context, event models.LocationEvent) {
	f(ctx, event)
}
