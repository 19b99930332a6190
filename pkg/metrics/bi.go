package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BIMetrics tracks the BI aggregation calls.
type BIMetrics struct {
	duration   *prometheus.HistogramVec
	population *prometheus.HistogramVec
}

func NewBIMetrics(reg prometheus.Registerer) *BIMetrics {
	if reg == nil {
		return &BIMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bi_aggregation_duration_seconds",
		Help:    "Duration of BI aggregations, storage reads included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	population := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bi_aggregation_population_size",
		Help:    "Number of client records an aggregation reduced.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"op"})
	reg.MustRegister(duration, population)
	return &BIMetrics{duration: duration, population: population}
}

// ObserveAggregation records one completed aggregation.
func (b *BIMetrics) ObserveAggregation(op string, elapsed time.Duration, population int) {
	if b == nil || b.duration == nil {
		return
	}
	label := normalizeLabel(op)
	b.duration.WithLabelValues(label).Observe(elapsed.Seconds())
	b.population.WithLabelValues(label).Observe(float64(population))
}
