// Package metrics provides a small in-process registry of named counters
// and gauges. Names may carry labels as ",key=value" segments; uniqueness
// is by the full labeled name.
package metrics

import (
	"fmt"
	"sync"
)

// Kind distinguishes the two metric value types.
type Kind int

const (
	KindCounter Kind = iota
	KindGauge
)

// Value is a snapshot of a single metric.
type Value struct {
	Kind    Kind
	Counter uint64
	Gauge   float64
}

// mismatchMetric counts increment/set calls that hit a metric of the other
// kind. Such calls are no-ops apart from this counter.
const mismatchMetric = "metric_type_mismatch_total"

// Registry is a thread-safe map from labeled metric name to value.
// Reads (snapshots) take the shared lock, mutations the exclusive lock.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Value
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Value)}
}

// Increment adds delta to the named counter, creating it at zero first if
// absent. If the name is bound to a gauge the call is a no-op and the
// mismatch counter is incremented instead.
func (r *Registry) Increment(name string, delta uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.metrics[name]
	if ok && v.Kind != KindCounter {
		r.bumpMismatchLocked()
		return
	}
	v.Kind = KindCounter
	v.Counter += delta
	r.metrics[name] = v
}

// SetGauge sets the named gauge, overwriting any previous value. If the
// name is bound to a counter the call is a no-op and the mismatch counter
// is incremented instead.
func (r *Registry) SetGauge(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.metrics[name]
	if ok && v.Kind != KindGauge {
		r.bumpMismatchLocked()
		return
	}
	r.metrics[name] = Value{Kind: KindGauge, Gauge: value}
}

// Counter returns the current value of the named counter, or zero if it
// does not exist or is a gauge.
func (r *Registry) Counter(name string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.metrics[name]
	if !ok || v.Kind != KindCounter {
		return 0
	}
	return v.Counter
}

// Gauge returns the current value of the named gauge, or zero if it does
// not exist or is a counter.
func (r *Registry) Gauge(name string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.metrics[name]
	if !ok || v.Kind != KindGauge {
		return 0
	}
	return v.Gauge
}

// Snapshot returns a copy of all metrics, consistent at the time of the
// call.
func (r *Registry) Snapshot() map[string]Value {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Value, len(r.metrics))
	for name, v := range r.metrics {
		out[name] = v
	}
	return out
}

func (r *Registry) bumpMismatchLocked() {
	v := r.metrics[mismatchMetric]
	v.Kind = KindCounter
	v.Counter++
	r.metrics[mismatchMetric] = v
}

// APIRequestMetric formats the labeled name used for per-endpoint request
// counters, e.g. "api_requests_total,endpoint=get_portfolio,status=200".
func APIRequestMetric(endpoint string, status int) string {
	return fmt.Sprintf("api_requests_total,endpoint=%s,status=%d", endpoint, status)
}
