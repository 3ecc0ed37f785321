package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PlacementMetrics — метрики размещения заказов.
type PlacementMetrics struct {
	placements *prometheus.CounterVec
	rejections *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewPlacementMetrics создаёт метрики в DefaultRegisterer.
func NewPlacementMetrics() *PlacementMetrics {
	return NewPlacementMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPlacementMetricsWithRegisterer создаёт метрики в заданном registerer.
func NewPlacementMetricsWithRegisterer(registerer prometheus.Registerer) *PlacementMetrics {
	return &PlacementMetrics{
		placements: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_placements_total",
			Help: "Total number of order placement attempts grouped by outcome.",
		}, []string{"outcome"}),
		rejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_rejections_total",
			Help: "Total number of rejected orders grouped by the first failed rule.",
		}, []string{"rule"}),
		duration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_placement_duration_seconds",
			Help:    "Duration of order placement in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
	}
}

// RecordAccepted учитывает размещённый заказ.
func (m *PlacementMetrics) RecordAccepted() {
	m.placements.WithLabelValues("accepted").Inc()
}

// RecordRejected учитывает отказ и правило, на котором он произошёл.
func (m *PlacementMetrics) RecordRejected(rule string) {
	m.placements.WithLabelValues("rejected").Inc()
	m.rejections.WithLabelValues(rule).Inc()
}

// RecordFailed учитывает ошибку инфраструктуры.
func (m *PlacementMetrics) RecordFailed() {
	m.placements.WithLabelValues("failed").Inc()
}

// RecordDuration записывает длительность размещения.
func (m *PlacementMetrics) RecordDuration(duration time.Duration) {
	m.duration.Observe(duration.Seconds())
}
