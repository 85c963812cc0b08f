// Package metrics exposes prometheus instrumentation for migration runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ObjectsProcessed counts per-object outcomes: completed, failed,
	// skipped.
	ObjectsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drive_migrate_objects_total",
		Help: "Objects processed by outcome.",
	}, []string{"outcome"})

	// BytesTransferred counts content bytes landed in the destination.
	BytesTransferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drive_migrate_bytes_total",
		Help: "Content bytes transferred to the destination tenant.",
	})

	// GrantsApplied counts access-entry application outcomes: migrated,
	// skipped, failed.
	GrantsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drive_migrate_grants_total",
		Help: "Access entries applied by outcome.",
	}, []string{"outcome"})

	// RemoteRetries counts transient remote failures that were retried.
	RemoteRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drive_migrate_remote_retries_total",
		Help: "Transient remote failures retried with backoff.",
	})

	// PrincipalsProcessed counts per-principal outcomes.
	PrincipalsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drive_migrate_principals_total",
		Help: "Principals processed by final status.",
	}, []string{"status"})

	// PrincipalDuration observes wall time per principal migration.
	PrincipalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drive_migrate_principal_duration_seconds",
		Help:    "Wall time spent migrating one principal.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})
)

// Serve starts the /metrics listener. The returned server is already
// serving; callers shut it down with Shutdown.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go srv.ListenAndServe()
	return srv
}
