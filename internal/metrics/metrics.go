package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	AvailabilityChecks *prometheus.CounterVec
	PostalLookups      *prometheus.CounterVec
	Submissions        *prometheus.CounterVec
}

// NewCollector registers every metric on a private registry, so collectors
// built in tests do not collide.
func NewCollector(serviceName string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		reg: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route", "status"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		AvailabilityChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "forms",
			Name:      "availability_checks_total",
			Help:      "Doctor availability checks by outcome.",
		}, []string{"outcome"}),

		PostalLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "postal",
			Name:      "lookups_total",
			Help:      "CEP lookups by outcome.",
		}, []string{"outcome"}),

		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "forms",
			Name:      "submissions_total",
			Help:      "Form submissions by form kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}

func (c *Collector) ObserveAvailability(outcome string) {
	c.AvailabilityChecks.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObservePostal(outcome string) {
	c.PostalLookups.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveSubmission(kind, outcome string) {
	c.Submissions.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	c.RequestsTotal.WithLabelValues(method, route, code).Inc()
	c.RequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

// GaugeFunc exposes a value sampled at scrape time, such as the number of
// open forms.
func (c *Collector) GaugeFunc(namespace, name, help string, fn func() float64) {
	promauto.With(c.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
