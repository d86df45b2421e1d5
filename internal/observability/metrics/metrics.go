// Package metrics exposes quietq's Prometheus collectors. Counters are fed
// from the event bus; gauges read live state through Probes on scrape.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quietq/internal/eventbus"
)

const namespace = "quietq"

// Probes read live state at scrape time. Nil funcs are skipped.
type Probes struct {
	PromptOpen func() bool
	NextFireAt func() (time.Time, bool)
	Dropped    func() uint64
	Now        func() time.Time
}

type Metrics struct {
	reg    *prometheus.Registry
	events *prometheus.CounterVec
}

func New(p Probes) *Metrics {
	if p.Now == nil {
		p.Now = time.Now
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events seen on the in-process bus, by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.events)

	if p.PromptOpen != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prompt_open",
			Help:      "1 while a prompt is waiting for an answer.",
		}, func() float64 {
			if p.PromptOpen() {
				return 1
			}
			return 0
		}))
	}
	if p.NextFireAt != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_next_check_seconds",
			Help:      "Seconds until the scheduler's next check; -1 when idle.",
		}, func() float64 {
			at, ok := p.NextFireAt()
			if !ok {
				return -1
			}
			return max(at.Sub(p.Now()).Seconds(), 0)
		}))
	}
	if p.Dropped != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eventbus_dropped_total",
			Help:      "Event deliveries skipped because a subscriber was full.",
		}, func() float64 { return float64(p.Dropped()) }))
	}
	return m
}

// Observe counts e.
func (m *Metrics) Observe(e eventbus.Event) {
	m.events.WithLabelValues(e.Type).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
