package commands

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks command execution.
type Metrics struct {
	// CommandCounter counts command executions.
	// Labels: command, status (success|error|interactive|pending|aborted)
	CommandCounter *prometheus.CounterVec

	// CommandDuration measures command execution time in seconds.
	// Labels: command
	// Buckets: 1ms to ~16s
	CommandDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the command metric set. A nil registerer
// uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CommandCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_commands_executed_total",
			Help: "Command executions by command name and result status.",
		}, []string{"command", "status"}),

		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quill_command_duration_seconds",
			Help:    "Command execution duration.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"command"}),
	}
}

// observe records one finished command execution.
func (m *Metrics) observe(command string, result *Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	command = strings.TrimPrefix(command, "/")
	if command == "" {
		command = "(invalid)"
	}

	status := string(result.Kind)
	if result.Kind == ResultError && result.Code == CodeCommandAborted {
		status = "aborted"
	}
	m.CommandCounter.WithLabelValues(command, status).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}
