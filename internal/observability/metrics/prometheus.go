package metrics

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/target/jobstream/internal/observability/statsd"
)

// PrometheusSink adapts the StatsD-style Sink calls onto Prometheus collectors.
// Collectors are created on first use of a metric name; the label set seen on
// that first call is fixed for the metric, later calls fill missing labels with
// "" and drop unknown ones.
type PrometheusSink struct {
	namespace  string
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*labeled[*prometheus.CounterVec]
	gauges     map[string]*labeled[*prometheus.GaugeVec]
	histograms map[string]*labeled[*prometheus.HistogramVec]
}

type labeled[V any] struct {
	vec    V
	labels []string
}

var _ statsd.Sink = (*PrometheusSink)(nil)

// NewPrometheusSink creates a sink registering collectors on reg under namespace.
func NewPrometheusSink(namespace string, reg prometheus.Registerer) *PrometheusSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusSink{
		namespace:  promName(namespace),
		registerer: reg,
		counters:   make(map[string]*labeled[*prometheus.CounterVec]),
		gauges:     make(map[string]*labeled[*prometheus.GaugeVec]),
		histograms: make(map[string]*labeled[*prometheus.HistogramVec]),
	}
}

// Count adds value to the counter "<name>_total".
func (p *PrometheusSink) Count(name string, value int64, tags map[string]string) {
	if p == nil || value < 0 {
		return
	}
	p.mu.Lock()
	c, ok := p.counters[name]
	if !ok {
		labels := labelKeys(tags)
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      promName(name) + "_total",
			Help:      "Count of " + name + " events.",
		}, labels)
		vec = registerOrExisting(p.registerer, vec)
		c = &labeled[*prometheus.CounterVec]{vec: vec, labels: labels}
		p.counters[name] = c
	}
	p.mu.Unlock()
	c.vec.WithLabelValues(labelValues(c.labels, tags)...).Add(float64(value))
}

// Gauge sets the gauge "<name>".
func (p *PrometheusSink) Gauge(name string, value float64, tags map[string]string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	g, ok := p.gauges[name]
	if !ok {
		labels := labelKeys(tags)
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      promName(name),
			Help:      "Current value of " + name + ".",
		}, labels)
		vec = registerOrExisting(p.registerer, vec)
		g = &labeled[*prometheus.GaugeVec]{vec: vec, labels: labels}
		p.gauges[name] = g
	}
	p.mu.Unlock()
	g.vec.WithLabelValues(labelValues(g.labels, tags)...).Set(value)
}

// Timing observes value in the histogram "<name>_seconds".
func (p *PrometheusSink) Timing(name string, value time.Duration, tags map[string]string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	h, ok := p.histograms[name]
	if !ok {
		labels := labelKeys(tags)
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      strings.TrimSuffix(promName(name), "_duration") + "_duration_seconds",
			Help:      "Duration of " + name + " in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, labels)
		vec = registerOrExisting(p.registerer, vec)
		h = &labeled[*prometheus.HistogramVec]{vec: vec, labels: labels}
		p.histograms[name] = h
	}
	p.mu.Unlock()
	h.vec.WithLabelValues(labelValues(h.labels, tags)...).Observe(value.Seconds())
}

// registerOrExisting registers c, returning the already registered collector when
// another sink (or an earlier process component) registered the same descriptor.
func registerOrExisting[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok { //nolint:errorlint // registry returns the value type
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func labelKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		if n := promName(k); n != "" {
			keys = append(keys, n)
		}
	}
	return slices.Compact(keys)
}

func labelValues(keys []string, tags map[string]string) []string {
	normalized := make(map[string]string, len(tags))
	for k, v := range tags {
		normalized[promName(k)] = v
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = normalized[k]
	}
	return out
}

// promName maps a dotted StatsD name onto the Prometheus metric name charset.
func promName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

// MultiSink fans every metric out to each non-nil sink.
type MultiSink []statsd.Sink

var _ statsd.Sink = MultiSink(nil)

// NewMultiSink drops nil sinks. It returns nil when none remain so callers can
// keep the "nil sink means disabled" convention.
//
//nolint:ireturn // the result is either a single sink, a fan-out, or nil.
func NewMultiSink(sinks ...statsd.Sink) statsd.Sink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if c, ok := s.(*statsd.Client); ok && !c.Enabled() {
			continue
		}
		out = append(out, s)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

func (m MultiSink) Count(name string, value int64, tags map[string]string) {
	for _, s := range m {
		s.Count(name, value, CloneTags(tags))
	}
}

func (m MultiSink) Gauge(name string, value float64, tags map[string]string) {
	for _, s := range m {
		s.Gauge(name, value, CloneTags(tags))
	}
}

func (m MultiSink) Timing(name string, value time.Duration, tags map[string]string) {
	for _, s := range m {
		s.Timing(name, value, CloneTags(tags))
	}
}
