// Package metrics exposes Prometheus collectors for the worker pool and the
// server lifecycle.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cenphi_intelligence"

// Registry holds the intelligence server collectors.
type Registry struct {
	PoolSize        prometheus.Gauge
	PoolInFlight    prometheus.Gauge
	PoolAcquired    *prometheus.CounterVec
	PoolRejected    *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec
	LifecycleState  prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg prometheus.Registerer) (*Registry, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Registry{
		PoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Configured worker pool size.",
		}),
		PoolInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "in_flight",
			Help:      "Worker slots currently held by handlers.",
		}),
		PoolAcquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "acquired_total",
			Help:      "Calls that obtained a worker slot.",
		}, []string{"method"}),
		PoolRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "rejected_total",
			Help:      "Calls rejected because no worker slot freed up in time.",
		}, []string{"method"}),
		HandlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "slot_held_seconds",
			Help:      "Time a call held its worker slot.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		LifecycleState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "state",
			Help:      "Lifecycle state: 0 uninitialized, 1 bound, 2 listening, 3 terminated.",
		}),
	}
	for _, c := range []prometheus.Collector{
		r.PoolSize,
		r.PoolInFlight,
		r.PoolAcquired,
		r.PoolRejected,
		r.HandlerDuration,
		r.LifecycleState,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Acquired records a call taking a worker slot.
func (r *Registry) Acquired(method string) {
	r.PoolInFlight.Inc()
	r.PoolAcquired.WithLabelValues(method).Inc()
}

// Released records a call returning its worker slot.
func (r *Registry) Released(method string, held time.Duration) {
	r.PoolInFlight.Dec()
	r.HandlerDuration.WithLabelValues(method).Observe(held.Seconds())
}

// Rejected records a call turned away by the pool.
func (r *Registry) Rejected(method string) {
	r.PoolRejected.WithLabelValues(method).Inc()
}

// SetPoolSize records the configured worker count.
func (r *Registry) SetPoolSize(n int) {
	r.PoolSize.Set(float64(n))
}

// SetState records the lifecycle state ordinal.
func (r *Registry) SetState(state int) {
	r.LifecycleState.Set(float64(state))
}

// Handler serves the collectors gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
