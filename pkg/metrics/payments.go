package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics counts completion and disbursement outcomes.
type PaymentMetrics struct {
	completions    *prometheus.CounterVec
	duplicates     prometheus.Counter
	splitFailures  *prometheus.CounterVec
	ledgerFailures prometheus.Counter
}

// NewPaymentMetrics registers payment counters on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	completions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_completions",
		Help: "Orders transitioned to paid, by intent kind.",
	}, []string{"kind"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_completion_signals",
		Help: "Confirmation signals that lost the pending-to-paid race.",
	})
	splitFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "split_transfer_failures",
		Help: "Failed split disbursements, by recipient.",
	}, []string{"recipient"})
	ledgerFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_append_failures",
		Help: "Order ledger appends that failed and were deferred to the repair job.",
	})
	reg.MustRegister(completions, duplicates, splitFailures, ledgerFailures)
	return &PaymentMetrics{
		completions:    completions,
		duplicates:     duplicates,
		splitFailures:  splitFailures,
		ledgerFailures: ledgerFailures,
	}
}

// IncCompletion counts a won pending-to-paid transition.
func (p *PaymentMetrics) IncCompletion(kind string) {
	if p == nil || p.completions == nil {
		return
	}
	p.completions.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncDuplicate counts a completion signal that short-circuited.
func (p *PaymentMetrics) IncDuplicate() {
	if p == nil || p.duplicates == nil {
		return
	}
	p.duplicates.Inc()
}

// IncSplitFailure counts a failed transfer for the named recipient.
func (p *PaymentMetrics) IncSplitFailure(recipient string) {
	if p == nil || p.splitFailures == nil {
		return
	}
	p.splitFailures.WithLabelValues(normalizeLabel(recipient)).Inc()
}

// IncLedgerFailure counts a deferred ledger append.
func (p *PaymentMetrics) IncLedgerFailure() {
	if p == nil || p.ledgerFailures == nil {
		return
	}
	p.ledgerFailures.Inc()
}
