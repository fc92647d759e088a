// Package metrics exports dispatch and cache invalidation metrics in the
// Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.hackfix.me/switchboard/dispatch"
	"go.hackfix.me/switchboard/invalidation"
)

const namespace = "switchboard"

// Collector records metrics in its own registry.
type Collector struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	auths         *prometheus.CounterVec
	sweeps        *prometheus.CounterVec
	sweptEntries  prometheus.Counter
	sweepDuration prometheus.Histogram
}

var (
	_ dispatch.Observer     = (*Collector)(nil)
	_ invalidation.Observer = (*Collector)(nil)
)

// New returns a new Collector, with the Go runtime and process collectors
// registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Number of dispatched requests.",
		}, []string{"route", "handler", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time spent dispatching requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		auths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "authentications_total",
			Help:      "Number of presented credentials, by result.",
		}, []string{"result"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "sweeps_total",
			Help:      "Number of invalidation queue sweeps, by result.",
		}, []string{"result"}),
		sweptEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "swept_entries_total",
			Help:      "Number of invalidation queue entries processed.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "sweep_duration_seconds",
			Help:      "Time spent sweeping the invalidation queue.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requests, c.duration, c.auths, c.sweeps, c.sweptEntries, c.sweepDuration,
	)

	return c
}

// Handler returns the HTTP handler exposing the metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveDispatch implements dispatch.Observer.
func (c *Collector) ObserveDispatch(route, handler string, statusCode int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(route, handler, strconv.Itoa(statusCode)).Inc()
	c.duration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveAuthentication implements dispatch.Observer.
func (c *Collector) ObserveAuthentication(success bool) {
	c.auths.WithLabelValues(result(success)).Inc()
}

// ObserveSweep implements invalidation.Observer.
func (c *Collector) ObserveSweep(res invalidation.SweepResult, dur time.Duration, err error) {
	c.sweeps.WithLabelValues(result(err == nil)).Inc()
	c.sweptEntries.Add(float64(res.Deleted))
	c.sweepDuration.Observe(dur.Seconds())
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
