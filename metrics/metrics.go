package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors for scheduler-unit store metrics.
var (
	MessagesSavedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sustore_messages_saved_total",
		Help: "Cumulative number of messages saved to the store.",
	})
	ByteStoreWriteBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sustore_bytestore_write_bytes_total",
		Help: "Cumulative number of payload bytes written to the blob store.",
	})
	ByteStoreMissTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sustore_bytestore_miss_total",
		Help: "Cumulative number of blob store misses falling back to a relational fetch.",
	})
	MigratedMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sustore_migrated_messages_total",
		Help: "Cumulative number of message payloads moved by the range migrator.",
	})
)

// StoreCollectors returns the collectors of store, blob-tier and migration
// activity.
func StoreCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		MessagesSavedTotal,
		ByteStoreWriteBytesTotal,
		ByteStoreMissTotal,
		MigratedMessagesTotal,
	}
}
