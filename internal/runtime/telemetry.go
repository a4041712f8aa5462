package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "frontdesk"

// Metrics groups the Prometheus collectors shared by the engine components.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Questions          *prometheus.CounterVec
	JudgeFailures      prometheus.Counter
	SearchSeconds      prometheus.Histogram
	KnowledgeEntries   prometheus.Gauge
	KnowledgeIngested  *prometheus.CounterVec
	UsageWriteFailures prometheus.Counter
	Transitions        *prometheus.CounterVec
	NotifyFailures     *prometheus.CounterVec
	SweepRuns          *prometheus.CounterVec
}

// NewMetrics creates and registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := &Metrics{
		Registry: reg,
		Questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_total",
			Help:      "Inbound questions by outcome (answered, escalated, failed).",
		}, []string{"outcome"}),
		JudgeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judge_failures_total",
			Help:      "Confidence judgments that failed and forced escalation.",
		}),
		SearchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "knowledge_search_seconds",
			Help:      "Latency of knowledge similarity scans.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		KnowledgeEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "knowledge_entries",
			Help:      "Knowledge entries held in the in-process cache.",
		}),
		KnowledgeIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knowledge_ingested_total",
			Help:      "Supervisor answers ingested, by mode (insert, update).",
		}, []string{"mode"}),
		UsageWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knowledge_usage_write_failures_total",
			Help:      "Usage counter writes that failed and were dropped.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "help_request_transitions_total",
			Help:      "Help request state transitions by target status.",
		}, []string{"status"}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Notification deliveries that failed, by kind.",
		}, []string{"kind"}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Timeout sweep runs by result (ok, skipped, failed).",
		}, []string{"result"}),
	}
	reg.MustRegister(m.Questions, m.JudgeFailures, m.SearchSeconds, m.KnowledgeEntries,
		m.KnowledgeIngested, m.UsageWriteFailures, m.Transitions, m.NotifyFailures, m.SweepRuns)
	return m
}

func (m *Metrics) IncQuestion(outcome string) {
	if m != nil {
		m.Questions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncJudgeFailure() {
	if m != nil {
		m.JudgeFailures.Inc()
	}
}

func (m *Metrics) ObserveSearch(seconds float64) {
	if m != nil {
		m.SearchSeconds.Observe(seconds)
	}
}

func (m *Metrics) SetKnowledgeEntries(n int) {
	if m != nil {
		m.KnowledgeEntries.Set(float64(n))
	}
}

func (m *Metrics) IncIngest(mode string) {
	if m != nil {
		m.KnowledgeIngested.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) IncUsageWriteFailure() {
	if m != nil {
		m.UsageWriteFailures.Inc()
	}
}

func (m *Metrics) IncTransition(status string) {
	if m != nil {
		m.Transitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncNotifyFailure(kind string) {
	if m != nil {
		m.NotifyFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncSweep(result string) {
	if m != nil {
		m.SweepRuns.WithLabelValues(result).Inc()
	}
}

// Tracer returns the named tracer from the global provider (no-op unless an SDK is installed).
func Tracer(name string) trace.Tracer {
	return otel.Tracer("frontdesk/" + name)
}
