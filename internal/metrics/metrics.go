// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "echosoul"

// Metrics owns a private registry. All methods are no-ops on a nil receiver.
type Metrics struct {
	registry        *prometheus.Registry
	turns           *prometheus.CounterVec
	generations     *prometheus.CounterVec
	overrides       *prometheus.CounterVec
	recommendations *prometheus.CounterVec
	classification  prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns processed, by final emotion.",
		}, []string{"emotion"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_generations_total",
			Help:      "Reply generations, by outcome.",
		}, []string{"outcome"}),
		overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emotion_overrides_total",
			Help:      "Keyword overrides applied to the classifier argmax.",
		}, []string{"rule"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommendation requests, by result.",
		}, []string{"result"}),
		classification: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_duration_seconds",
			Help:      "Latency of emotion classification calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turns,
		m.generations,
		m.overrides,
		m.recommendations,
		m.classification,
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveTurn(emotion string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(emotion).Inc()
}

func (m *Metrics) ObserveGeneration(outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOverride(rule string) {
	if m == nil || rule == "" {
		return
	}
	m.overrides.WithLabelValues(rule).Inc()
}

func (m *Metrics) ObserveRecommendation(result string) {
	if m == nil {
		return
	}
	m.recommendations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveClassification(d time.Duration) {
	if m == nil {
		return
	}
	m.classification.Observe(d.Seconds())
}
