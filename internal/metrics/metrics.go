// Package metrics exposes the Prometheus instrumentation for the sync
// engine: throughput, connection, and convergence-latency signals.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every counter/gauge/histogram the sync core emits.
type Metrics struct {
	Registry *prometheus.Registry

	OperationsSent     prometheus.Counter
	OperationsReceived prometheus.Counter
	BytesTransferred   prometheus.Counter
	ActiveConnections  prometheus.Gauge
	KnownPeers         prometheus.Gauge
	DocumentsStored    prometheus.Gauge
	RegistryEntries    prometheus.Gauge
	SyncLatency        prometheus.Histogram
	DeltaApplyDuration prometheus.Histogram
	DroppedMessages    prometheus.Counter
	GossipQueueDepth   prometheus.Gauge
}

// New creates a fresh Metrics set registered against its own registry, so
// a process (or test) can construct more than one Vault's worth of
// metrics without colliding on the global default registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,

		OperationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "vaultsync_operations_sent_total",
			Help: "Total number of protocol messages sent to peers",
		}),
		OperationsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "vaultsync_operations_received_total",
			Help: "Total number of protocol messages received from peers",
		}),
		BytesTransferred: factory.NewCounter(prometheus.CounterOpts{
			Name: "vaultsync_bytes_transferred_total",
			Help: "Total bytes sent or received across all connections",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vaultsync_active_connections",
			Help: "Number of connections currently in the connected state",
		}),
		KnownPeers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vaultsync_known_peers",
			Help: "Number of peers known to membership, connected or not",
		}),
		DocumentsStored: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vaultsync_documents_stored",
			Help: "Number of documents currently held by the Document Store",
		}),
		RegistryEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vaultsync_registry_entries",
			Help: "Number of entries (including tombstones) in the Path Registry",
		}),
		SyncLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vaultsync_sync_round_seconds",
			Help:    "Time to complete a sync-request/sync-response round trip",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		DeltaApplyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vaultsync_delta_apply_seconds",
			Help:    "Time to apply a remote delta to a document",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10),
		}),
		DroppedMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "vaultsync_dropped_messages_total",
			Help: "Messages dropped due to oversized or corrupt bodies",
		}),
		GossipQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vaultsync_gossip_queue_depth",
			Help: "Number of pending gossip updates awaiting piggyback",
		}),
	}
}
