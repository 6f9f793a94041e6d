// Package metrics defines the Prometheus metrics exported by the tracker.
// All metrics register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shipment_tracker"

// FetchTotal counts location lookups.
// Label:
//   - result: "ok", "network" or "decode"
var FetchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_total",
		Help:      "Total number of location source lookups, by result.",
	},
	[]string{"result"},
)

// LocationEventsTotal counts distinct coordinates emitted by trackers.
var LocationEventsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "location_events_total",
		Help:      "Total number of location change events produced.",
	},
)

// DeliveriesTotal counts per-subscriber deliveries.
// Label:
//   - result: "ok" or "failed"
var DeliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Total number of location frames sent to subscribers, by result.",
	},
	[]string{"result"},
)

// Subscribers tracks the number of connected subscribers.
var Subscribers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers",
		Help:      "Current number of connected subscribers.",
	},
)

// TrackerStartsTotal counts tracker instances started by the supervisor.
var TrackerStartsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracker_starts_total",
		Help:      "Total number of tracker instances started.",
	},
)

// ControlMessagesTotal counts inbound control channel messages.
// Label:
//   - result: "accepted" or "malformed"
var ControlMessagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "control_messages_total",
		Help:      "Total number of control messages received, by result.",
	},
	[]string{"result"},
)
