package provider

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 记录拉取结果。nil *Metrics 的所有方法都是空操作。
type Metrics struct {
	fetches   *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	discarded *prometheus.CounterVec
	active    prometheus.Gauge
}

// NewMetrics 创建并注册指标；reg 为 nil 时使用默认注册表。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "card_data",
			Name:      "fetches_total",
			Help:      "Settled fetches by connector kind and outcome.",
		}, []string{"kind", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "card_data",
			Name:      "fetch_duration_seconds",
			Help:      "Connector fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "card_data",
			Name:      "discarded_results_total",
			Help:      "Results dropped because they were superseded or the provider was destroyed.",
		}, []string{"kind", "reason"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "card_data",
			Name:      "active_providers",
			Help:      "Data providers created and not yet destroyed.",
		}),
	}
	reg.MustRegister(m.fetches, m.latency, m.discarded, m.active)
	return m
}

func (m *Metrics) observeFetch(kind Kind, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.fetches.WithLabelValues(string(kind), outcome).Inc()
	m.latency.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (m *Metrics) observeDiscard(kind Kind, reason string) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(string(kind), reason).Inc()
}

func (m *Metrics) providerCreated() {
	if m != nil {
		m.active.Inc()
	}
}

func (m *Metrics) providerDestroyed() {
	if m != nil {
		m.active.Dec()
	}
}
