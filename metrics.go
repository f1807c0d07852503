package rethinkdb

import (
	"github.com/prometheus/client_golang/prometheus"
)

var pointWrites = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "rethinkdb",
	Subsystem: "engine",
	Name:      "point_writes",
})

var pointDeletes = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "rethinkdb",
	Subsystem: "engine",
	Name:      "point_deletes",
})

var pointReplaces = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "rethinkdb",
	Subsystem: "engine",
	Name:      "point_replaces",
})

var batchedReplaces = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "rethinkdb",
	Subsystem: "engine",
	Name:      "batched_replaces",
})

var sindexUpdates = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "rethinkdb",
	Subsystem: "sindex",
	Name:      "updates",
})

var sindexDroppedRows = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rethinkdb",
	Subsystem: "sindex",
	Name:      "dropped_rows",
}, []string{"sindex", "side"})

var postConstructChunks = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "rethinkdb",
	Subsystem: "sindex",
	Name:      "post_construct_chunks",
})

var scansTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "rethinkdb",
	Subsystem: "engine",
	Name:      "range_scans",
})

var rangeErases = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "rethinkdb",
	Subsystem: "engine",
	Name:      "range_erases",
})

// RegisterMetrics registers the engine counters plus a storage collector
// for the store's pebble instance.
func (s *Store) RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		pointWrites, pointDeletes, pointReplaces, batchedReplaces,
		sindexUpdates, sindexDroppedRows, postConstructChunks,
		scansTotal, rangeErases,
		NewStorageCollector(s.db),
	} {
		if err := reg.Register(c); err != nil {
			if _, dup := err.(prometheus.AlreadyRegisteredError); dup {
				continue
			}
			return err
		}
	}
	return nil
}
