// Package metrics exposes credential lifecycle counters through a dedicated
// Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "magiclink"

// Options control metrics configuration.
type Options struct {
	// Namespace configures the Prometheus namespace. Defaults to "magiclink".
	Namespace string
	// DisableRuntimeCollectors skips the Go and process collectors.
	DisableRuntimeCollectors bool
}

// Metrics owns the registry and the service collectors.
type Metrics struct {
	namespace         string
	registry          *prometheus.Registry
	tokensIssued      prometheus.Counter
	redemptions       *prometheus.CounterVec
	emailsSent        *prometheus.CounterVec
	activeCredentials prometheus.Gauge
	httpLatency       *prometheus.HistogramVec
}

// New constructs the collectors and registers them on a fresh registry.
func New(opts Options) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	m := &Metrics{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Total number of sign-in credentials issued",
		}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Credential redemption attempts by method (token|code) and result",
		}, []string{"method", "result"}),
		emailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Magic-link emails by result (sent|failed)",
		}, []string{"result"}),
		activeCredentials: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_credentials",
			Help:      "Number of credentials currently marked active",
		}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	cs := []prometheus.Collector{m.tokensIssued, m.redemptions, m.emailsSent, m.activeCredentials, m.httpLatency}
	if !opts.DisableRuntimeCollectors {
		cs = append(cs,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry exposes the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TokenIssued() {
	m.tokensIssued.Inc()
}

func (m *Metrics) Redemption(method, result string) {
	m.redemptions.WithLabelValues(method, result).Inc()
}

func (m *Metrics) EmailSent(result string) {
	m.emailsSent.WithLabelValues(result).Inc()
}

// SetActiveCredentials records the latest active credential count.
func (m *Metrics) SetActiveCredentials(n int64) {
	m.activeCredentials.Set(float64(n))
}

// ObserveHTTP records one request's latency.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
