package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the daemon's Prometheus instruments behind one
// registry, so tests can build as many as they like without collisions.
type Collector struct {
	reg *prometheus.Registry

	TrackedBuses prometheus.Gauge
	OpenChannels prometheus.Gauge

	MessagesApplied *prometheus.CounterVec // kind label
	MessagesDropped prometheus.Counter
	Reconnects      prometheus.Counter

	SnapshotsStored   prometheus.Counter
	SnapshotStoreErrs prometheus.Counter

	ApplyDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TrackedBuses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livetrack_tracked_buses",
			Help: "Number of buses with an open tracking channel.",
		}),
		OpenChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livetrack_open_channels",
			Help: "Number of currently connected push channels.",
		}),
		MessagesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livetrack_messages_applied_total",
			Help: "Total push messages folded into a snapshot, by kind.",
		}, []string{"kind"}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrack_messages_dropped_total",
			Help: "Total push messages that did not change the snapshot.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrack_reconnects_total",
			Help: "Total push channel connection losses.",
		}),
		SnapshotsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrack_snapshots_stored_total",
			Help: "Total snapshots handed to the storage fan-out.",
		}),
		SnapshotStoreErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrack_snapshot_store_errors_total",
			Help: "Total snapshots the storage fan-out rejected.",
		}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "livetrack_apply_duration_seconds",
			Help:    "Time spent folding one message into a snapshot.",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
	}

	reg.MustRegister(
		c.TrackedBuses,
		c.OpenChannels,
		c.MessagesApplied,
		c.MessagesDropped,
		c.Reconnects,
		c.SnapshotsStored,
		c.SnapshotStoreErrs,
		c.ApplyDuration,
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
