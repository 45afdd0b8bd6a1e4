package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects gateway call and stale-response counters. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	discarded *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bizbook",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Remote entity gateway calls by kind, operation and status.",
			},
			[]string{"kind", "op", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bizbook",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Duration of remote entity gateway calls.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"kind", "op"},
		),
		discarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bizbook",
				Subsystem: "core",
				Name:      "stale_responses_total",
				Help:      "Responses dropped because a newer load or search superseded them.",
			},
			[]string{"component"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.discarded)
	}
	return m
}

// ObserveCall records one gateway call. status is the HTTP status, or 0 when
// the request never produced a response.
func (m *Metrics) ObserveCall(kind string, op string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(kind, op, label).Inc()
	m.duration.WithLabelValues(kind, op).Observe(elapsed.Seconds())
}

func (m *Metrics) Discarded(component string) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(component).Inc()
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
