package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "futarchy"

// Metrics holds the engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Quotes          *prometheus.CounterVec
	QuoteFailures   *prometheus.CounterVec
	SimulatedSteps  *prometheus.CounterVec
	Transactions    *prometheus.CounterVec
	Approvals       prometheus.Counter
	RPCRetries      *prometheus.CounterVec
	ConfirmLatency  prometheus.Histogram
	ArbitrageChecks *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Quotes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Quotes computed, by venue kind",
		}, []string{"kind"}),
		QuoteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_failures_total",
			Help:      "Route builds that failed, by error kind",
		}, []string{"reason"}),
		SimulatedSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulated_steps_total",
			Help:      "Simulated steps, by prediction source",
		}, []string{"source"}),
		Transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions by final state",
		}, []string{"state"}),
		Approvals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Approval transactions submitted",
		}),
		RPCRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_retries_total",
			Help:      "Retried chain reads, by method",
		}, []string{"method"}),
		ConfirmLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confirmation_seconds",
			Help:      "Time from submission to receipt",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ArbitrageChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arbitrage_checks_total",
			Help:      "Arbitrage evaluations, by verdict",
		}, []string{"verdict"}),
	}
}

func (m *Metrics) ObserveQuote(kind string) {
	if m == nil {
		return
	}
	m.Quotes.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveQuoteFailure(reason string) {
	if m == nil {
		return
	}
	m.QuoteFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSimulatedStep(exact bool) {
	if m == nil {
		return
	}
	source := "preview"
	if !exact {
		source = "estimate"
	}
	m.SimulatedSteps.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveTransaction(state string) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveApproval() {
	if m == nil {
		return
	}
	m.Approvals.Inc()
}

func (m *Metrics) ObserveRetry(method string) {
	if m == nil {
		return
	}
	m.RPCRetries.WithLabelValues(method).Inc()
}

func (m *Metrics) ObserveConfirmation(seconds float64) {
	if m == nil {
		return
	}
	m.ConfirmLatency.Observe(seconds)
}

func (m *Metrics) ObserveArbitrage(profitable bool) {
	if m == nil {
		return
	}
	verdict := "reject"
	if profitable {
		verdict = "accept"
	}
	m.ArbitrageChecks.WithLabelValues(verdict).Inc()
}
