// Package metrics exposes refresher activity to Prometheus.
package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	labelName   = "name"
	labelResult = "result"

	ResultSuccess  = "success"
	ResultNotFound = "not_found"
	ResultTimeout  = "timeout"
	ResultError    = "error"
)

// Metrics is safe to use as a nil pointer, every method is then a no-op.
type Metrics struct {
	lookupTotalCounter      *prom.CounterVec
	lookupDurationHistogram *prom.HistogramVec
	validSecondsGauge       *prom.GaugeVec
	refreshTotalCounter     *prom.CounterVec
}

// New registers the refresher collectors, plus the go and process collectors, on reg.
func New(reg prom.Registerer, buckets []float64) *Metrics {
	if len(buckets) == 0 {
		buckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}
	}

	m := &Metrics{
		lookupTotalCounter: prom.NewCounterVec(
			prom.CounterOpts{
				Name: "refresh_dns_lookup_total",
				Help: "Total number of lookup attempts by outcome.",
			},
			[]string{labelName, labelResult},
		),
		lookupDurationHistogram: prom.NewHistogramVec(
			prom.HistogramOpts{
				Name:    "refresh_dns_lookup_duration_seconds",
				Help:    "Latency of lookup attempts, including the ones that timed out.",
				Buckets: buckets,
			},
			[]string{labelName, labelResult},
		),
		validSecondsGauge: prom.NewGaugeVec(
			prom.GaugeOpts{
				Name: "refresh_dns_valid_seconds",
				Help: "Seconds until the next lookup of a name, as scheduled after the last attempt.",
			},
			[]string{labelName},
		),
		refreshTotalCounter: prom.NewCounterVec(
			prom.CounterOpts{
				Name: "refresh_dns_refresh_total",
				Help: "Total number of expired validity windows.",
			},
			[]string{labelName},
		),
	}

	reg.MustRegister(
		m.lookupTotalCounter,
		m.lookupDurationHistogram,
		m.validSecondsGauge,
		m.refreshTotalCounter,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveLookup records one finished lookup attempt and the wait it scheduled.
func (m *Metrics) ObserveLookup(name, result string, cost, validFor time.Duration) {
	if m == nil {
		return
	}

	m.lookupTotalCounter.WithLabelValues(name, result).Inc()
	m.lookupDurationHistogram.WithLabelValues(name, result).Observe(cost.Seconds())
	m.validSecondsGauge.WithLabelValues(name).Set(validFor.Seconds())
}

// ObserveRefresh records that the validity window of name expired.
func (m *Metrics) ObserveRefresh(name string) {
	if m == nil {
		return
	}

	m.refreshTotalCounter.WithLabelValues(name).Inc()
}
