package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics on a Prometheus registry. Vectors
// are created on first use, labelled with the tag keys of that first call.
type PrometheusMetrics struct {
	namespace  string
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics registers vectors on reg. A nil reg uses the default
// registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (p *PrometheusMetrics) Counter(name string, value int64, tags ...Tag) {
	if value < 0 {
		return
	}
	keys, values := splitTags(tags)
	p.mu.Lock()
	key := vecKey(name, keys)
	vec, ok := p.counters[key]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: promName(name) + "_total",
			Help: name,
		}, keys)
		vec = registerOrExisting(p.registerer, vec)
		p.counters[key] = vec
	}
	p.mu.Unlock()
	vec.WithLabelValues(values...).Add(float64(value))
}

func (p *PrometheusMetrics) Gauge(name string, value float64, tags ...Tag) {
	keys, values := splitTags(tags)
	p.mu.Lock()
	key := vecKey(name, keys)
	vec, ok := p.gauges[key]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: promName(name),
			Help: name,
		}, keys)
		vec = registerOrExisting(p.registerer, vec)
		p.gauges[key] = vec
	}
	p.mu.Unlock()
	vec.WithLabelValues(values...).Set(value)
}

func (p *PrometheusMetrics) Histogram(name string, value float64, tags ...Tag) {
	p.histogram(promName(name), name, prometheus.LinearBuckets(0, 10, 11), tags).Observe(value)
}

// Timing observes seconds on a histogram suffixed _seconds.
func (p *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	p.histogram(promName(name)+"_seconds", name, prometheus.DefBuckets, tags).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) histogram(promName, help string, buckets []float64, tags []Tag) prometheus.Observer {
	keys, values := splitTags(tags)
	p.mu.Lock()
	key := vecKey(promName, keys)
	vec, ok := p.histograms[key]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    promName,
			Help:    help,
			Buckets: buckets,
		}, keys)
		vec = registerOrExisting(p.registerer, vec)
		p.histograms[key] = vec
	}
	p.mu.Unlock()
	return vec.WithLabelValues(values...)
}

// registerOrExisting returns the collector already registered under the
// same descriptor. A conflicting label set leaves c unregistered, so the
// call still succeeds but the series is not exported.
func registerOrExisting[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func splitTags(tags []Tag) ([]string, []string) {
	sorted := sortedTags(tags)
	keys := make([]string, len(sorted))
	values := make([]string, len(sorted))
	for i, t := range sorted {
		keys[i] = promName(t.Key)
		values[i] = t.Value
	}
	return keys, values
}

func vecKey(name string, keys []string) string {
	return name + "|" + strings.Join(keys, ",")
}

// promName turns "tempo.plan.generated" into "tempo_plan_generated".
func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}
