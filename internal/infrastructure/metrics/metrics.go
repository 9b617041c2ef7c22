package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds the counters of the reconciliation and provisioning pipeline.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	WebhooksTotal          *prometheus.CounterVec
	ReconcileLookupsTotal  *prometheus.CounterVec
	SaleTransitionsTotal   *prometheus.CounterVec
	ProvisioningStageTotal *prometheus.CounterVec
	EnqueueTotal           *prometheus.CounterVec
	SweepRunsTotal         *prometheus.CounterVec
	SweepDuration          prometheus.Histogram
}

// New registers the pipeline metrics on reg
func New(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_webhooks_total",
				Help: "Inbound gateway webhook deliveries by response code",
			},
			[]string{"topic", "code"},
		),
		ReconcileLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_reconcile_lookups_total",
				Help: "Sale lookups by gateway payment id, by outcome",
			},
			[]string{"outcome"},
		),
		SaleTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_sale_status_writes_total",
				Help: "Conditional sale status writes by resulting status and result",
			},
			[]string{"status", "result"},
		),
		ProvisioningStageTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_provisioning_stage_total",
				Help: "Provisioning stage executions by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		EnqueueTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_provisioning_enqueue_total",
				Help: "Provisioning enqueue calls by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		SweepRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_sweep_runs_total",
				Help: "Reconciliation sweep runs by outcome",
			},
			[]string{"outcome"},
		),
		SweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "checkout_sweep_duration_seconds",
				Help:    "Reconciliation sweep duration",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func (m *PipelineMetrics) ObserveWebhook(topic string, code int) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(topic, codeLabel(code)).Inc()
}

func (m *PipelineMetrics) ObserveLookup(outcome string) {
	if m == nil {
		return
	}
	m.ReconcileLookupsTotal.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) ObserveStatusWrite(status, result string) {
	if m == nil {
		return
	}
	m.SaleTransitionsTotal.WithLabelValues(status, result).Inc()
}

func (m *PipelineMetrics) ObserveStage(stage, outcome string) {
	if m == nil {
		return
	}
	m.ProvisioningStageTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *PipelineMetrics) ObserveEnqueue(source, outcome string) {
	if m == nil {
		return
	}
	m.EnqueueTotal.WithLabelValues(source, outcome).Inc()
}

func (m *PipelineMetrics) ObserveSweep(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SweepRunsTotal.WithLabelValues(outcome).Inc()
	m.SweepDuration.Observe(elapsed.Seconds())
}

func codeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code == 202:
		return "202"
	default:
		return "2xx"
	}
}
