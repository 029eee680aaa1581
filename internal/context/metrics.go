package context

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects context-manager telemetry.
//
// Tracked series:
//   - manage passes by resulting state
//   - compaction actions by stage (trim, truncate, summarize, aggressive)
//   - summarization attempts by model and outcome
//   - tokens reclaimed across all passes
//   - manage pass duration
type Metrics struct {
	// ManagePasses counts manager runs. Labels: state (healthy|warning|critical|overflow)
	ManagePasses *prometheus.CounterVec

	// CompactionActions counts applied stages. Labels: stage, outcome (applied|failed|noop)
	CompactionActions *prometheus.CounterVec

	// SummarizeAttempts counts fallback-chain attempts. Labels: model, outcome (success|error|timeout)
	SummarizeAttempts *prometheus.CounterVec

	// TokensReclaimed totals tokens freed by summarization; trimming and truncation are not counted.
	TokensReclaimed prometheus.Counter

	// ManageDuration measures manager pass latency in seconds.
	// Buckets: 1ms to ~16s
	ManageDuration prometheus.Histogram
}

// NewMetrics creates and registers the metric set. A nil registerer uses the
// default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ManagePasses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_context_manage_passes_total",
			Help: "Context manager passes by resulting state.",
		}, []string{"state"}),

		CompactionActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_context_compaction_actions_total",
			Help: "Compaction stages applied by the context manager.",
		}, []string{"stage", "outcome"}),

		SummarizeAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_context_summarize_attempts_total",
			Help: "Summarization fallback-chain attempts.",
		}, []string{"model", "outcome"}),

		TokensReclaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "quill_context_tokens_reclaimed_total",
			Help: "Tokens freed by compaction.",
		}),

		ManageDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quill_context_manage_duration_seconds",
			Help:    "Context manager pass duration.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

// observeAttempts records the fallback attempt history.
func (m *Metrics) observeAttempts(attempts []AttemptRecord) {
	if m == nil {
		return
	}
	for _, a := range attempts {
		outcome := "error"
		switch {
		case a.Success:
			outcome = "success"
		case a.TimedOut:
			outcome = "timeout"
		}
		m.SummarizeAttempts.WithLabelValues(a.Model, outcome).Inc()
	}
}
