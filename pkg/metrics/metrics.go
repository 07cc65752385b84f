// Package metrics is a small Prometheus-text metrics registry built on the
// standard library: counters, gauges, and histograms exposed via an HTTP
// handler in the text exposition format.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are the default histogram buckets, in seconds.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Counter is a monotonically increasing counter.
type Counter struct{ val atomic.Int64 }

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

// Gauge is a value that can go up and down.
type Gauge struct{ val atomic.Int64 }

func (g *Gauge) Set(n int64)  { g.val.Store(n) }
func (g *Gauge) Inc()         { g.val.Add(1) }
func (g *Gauge) Dec()         { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

// Histogram tracks a distribution of observed values over fixed buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *Histogram {
	b := make([]float64, len(buckets))
	copy(b, buckets)
	sort.Float64s(b)
	return &Histogram{buckets: b, counts: make([]uint64, len(b))}
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
			break
		}
	}
	h.mu.Unlock()
}

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) {
	h.Observe(time.Since(t).Seconds())
}

func (h *Histogram) snapshot() ([]float64, []uint64, float64, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buckets := make([]float64, len(h.buckets))
	counts := make([]uint64, len(h.counts))
	copy(buckets, h.buckets)
	copy(counts, h.counts)
	return buckets, counts, h.sum, h.count
}

type metric struct {
	name string
	help string
	kind string
	c    *Counter
	g    *Gauge
	h    *Histogram
}

// Registry holds named metrics. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	metrics map[string]*metric
	order   []string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{metrics: map[string]*metric{}}
}

// Counter returns the named counter, registering it on first use.
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[name]; ok {
		return m.c
	}
	m := &metric{name: name, help: help, kind: "counter", c: &Counter{}}
	r.metrics[name] = m
	r.order = append(r.order, name)
	return m.c
}

// Gauge returns the named gauge, registering it on first use.
func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[name]; ok {
		return m.g
	}
	m := &metric{name: name, help: help, kind: "gauge", g: &Gauge{}}
	r.metrics[name] = m
	r.order = append(r.order, name)
	return m.g
}

// Histogram returns the named histogram, registering it on first use.
// A nil buckets slice uses DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[name]; ok {
		return m.h
	}
	if buckets == nil {
		buckets = DefaultBuckets
	}
	m := &metric{name: name, help: help, kind: "histogram", h: newHistogram(buckets)}
	r.metrics[name] = m
	r.order = append(r.order, name)
	return m.h
}

// Render writes all metrics in the Prometheus text exposition format.
func (r *Registry) Render() string {
	r.mu.Lock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	byName := make(map[string]*metric, len(r.metrics))
	for k, v := range r.metrics {
		byName[k] = v
	}
	r.mu.Unlock()

	var b strings.Builder
	for _, name := range names {
		m := byName[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n", m.name, m.help, m.name, m.kind)
		switch m.kind {
		case "counter":
			fmt.Fprintf(&b, "%s %d\n", m.name, m.c.Value())
		case "gauge":
			fmt.Fprintf(&b, "%s %d\n", m.name, m.g.Value())
		case "histogram":
			buckets, counts, sum, count := m.h.snapshot()
			var cum uint64
			for i, ub := range buckets {
				cum += counts[i]
				fmt.Fprintf(&b, "%s_bucket{le=%q} %d\n", m.name, formatFloat(ub), cum)
			}
			fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"} %d\n", m.name, count)
			fmt.Fprintf(&b, "%s_sum %g\n", m.name, sum)
			fmt.Fprintf(&b, "%s_count %d\n", m.name, count)
		}
	}
	return b.String()
}

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(r.Render()))
	})
}

func formatFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", f), "0"), ".")
}
