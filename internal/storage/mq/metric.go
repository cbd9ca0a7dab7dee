package mq

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts dispatched messages per topic and result.
type Metrics struct {
	MessagesTotal   *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "product_catalog",
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Messages dispatched, by topic and result.",
		}, []string{"topic", "result"}),
		HandlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "product_catalog",
			Subsystem: "consumer",
			Name:      "handler_duration_seconds",
			Help:      "Time spent dispatching one message.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
	}
	reg.MustRegister(m.MessagesTotal, m.HandlerDuration)
	return m
}

func (m *Metrics) observe(topic string, res Result, d time.Duration) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(topic, string(res)).Inc()
	m.HandlerDuration.WithLabelValues(topic).Observe(d.Seconds())
}
