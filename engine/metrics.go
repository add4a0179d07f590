package engine

import (
	core "github.com/DomeLiquid/liquidator"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer, which records nothing.
type Metrics struct {
	attempts     *prometheus.CounterVec
	unstakes     *prometheus.CounterVec
	repaidUsd    prometheus.Histogram
	loansScanned prometheus.Gauge
	candidates   prometheus.Gauge
	scanDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidator_attempts_total",
			Help: "Liquidation attempts by action and final status.",
		}, []string{"action", "status"}),
		unstakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidator_unstake_outcomes_total",
			Help: "Collateral unwind outcomes by adapter and status.",
		}, []string{"adapter", "status"}),
		repaidUsd: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "liquidator_repaid_usd",
			Help:    "USD value repaid by submitted liquidations.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}),
		loansScanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liquidator_loans_scanned",
			Help: "Loans read in the last scan.",
		}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liquidator_candidates",
			Help: "Loans below the health threshold in the last scan.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "liquidator_scan_duration_seconds",
			Help:    "Duration of a full scan tick.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.attempts, m.unstakes, m.repaidUsd, m.loansScanned, m.candidates, m.scanDuration)
	return m
}

func (m *Metrics) ObserveAttempt(action core.Action, status core.AttemptStatus) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(action.String(), status.String()).Inc()
}

func (m *Metrics) ObserveUnstake(adapter string, status core.UnstakeStatus) {
	if m == nil {
		return
	}
	m.unstakes.WithLabelValues(adapter, string(status)).Inc()
}

func (m *Metrics) ObserveRepaid(usd float64) {
	if m == nil {
		return
	}
	m.repaidUsd.Observe(usd)
}

func (m *Metrics) ObserveScan(loans, candidates int, seconds float64) {
	if m == nil {
		return
	}
	m.loansScanned.Set(float64(loans))
	m.candidates.Set(float64(candidates))
	m.scanDuration.Observe(seconds)
}
