// Package metrics counts dispatch outcomes and upstream attempts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives one call per upstream attempt and one per served request.
type Recorder interface {
	Attempt(source, provider, outcome string, took time.Duration)
	Dispatch(source, origin string)
}

// Attempt outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeRateLimited = "rate_limited"
	OutcomeMalformed   = "malformed"
	OutcomeNoData      = "no_data"
)

type nop struct{}

func (nop) Attempt(string, string, string, time.Duration) {}
func (nop) Dispatch(string, string)                       {}

// Nop returns a Recorder that drops everything.
func Nop() Recorder { return nop{} }

// Prometheus is a Recorder backed by client_golang collectors.
type Prometheus struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	attemptTotal     *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// NewPrometheus registers the collectors on a fresh registry under namespace.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "dashd"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		dispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Responses served per source, by data origin (cache, live, fallback).",
			},
			[]string{"source", "origin"},
		),
		attemptTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_attempts_total",
				Help:      "Upstream provider calls, by outcome.",
			},
			[]string{"source", "provider", "outcome"},
		),
		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Upstream provider call latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source", "provider"},
		),
	}
}

func (p *Prometheus) Attempt(source, provider, outcome string, took time.Duration) {
	p.attemptTotal.WithLabelValues(source, provider, outcome).Inc()
	p.upstreamDuration.WithLabelValues(source, provider).Observe(took.Seconds())
}

func (p *Prometheus) Dispatch(source, origin string) {
	p.dispatchTotal.WithLabelValues(source, origin).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry (tests, extra collectors).
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }
