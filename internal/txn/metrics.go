package txn

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by the transaction and savepoint counters.
const (
	outcomeCommit   = "commit"
	outcomeRollback = "rollback"
	outcomeRelease  = "release"
	outcomeBegin    = "begin_error"
)

// Metrics holds the coordinator's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	transactions      *prometheus.CounterVec
	savepoints        *prometheus.CounterVec
	rollbackFailures  prometheus.Counter
	transactionLength prometheus.Histogram
}

// NewMetrics registers the coordinator collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transactions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irrigation_transactions_total",
				Help: "Root transactions by outcome",
			},
			[]string{"outcome"},
		),
		savepoints: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irrigation_savepoints_total",
				Help: "Nested units by savepoint outcome",
			},
			[]string{"outcome"},
		),
		rollbackFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "irrigation_rollback_failures_total",
				Help: "Rollbacks refused by the store",
			},
		),
		transactionLength: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "irrigation_transaction_duration_seconds",
				Help:    "Root transaction duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
		),
	}
}

func (m *Metrics) transaction(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcome).Inc()
	if !started.IsZero() {
		m.transactionLength.Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) savepoint(outcome string) {
	if m == nil {
		return
	}
	m.savepoints.WithLabelValues(outcome).Inc()
}

func (m *Metrics) rollbackFailed() {
	if m == nil {
		return
	}
	m.rollbackFailures.Inc()
}
