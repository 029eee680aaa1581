package commands

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExecutor_CommandMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	e := testExecutor(t, nil)
	e.SetMetrics(metrics)
	session := SessionInfo{ID: "s"}

	e.Execute(context.Background(), "/test", session)
	e.Execute(context.Background(), "/build", session)
	e.Execute(context.Background(), "/nonexistent", session)

	if got := testutil.ToFloat64(metrics.CommandCounter.WithLabelValues("test", "success")); got != 1 {
		t.Errorf("test/success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.CommandCounter.WithLabelValues("build", "error")); got != 1 {
		t.Errorf("build/error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.CommandCounter.WithLabelValues("nonexistent", "error")); got != 1 {
		t.Errorf("nonexistent/error = %v, want 1", got)
	}
}

func TestExecutor_CommandMetrics_Aborted(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	e := testExecutor(t, nil)
	e.SetMetrics(metrics)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Execute(ctx, "/test", SessionInfo{ID: "s"})

	if got := testutil.ToFloat64(metrics.CommandCounter.WithLabelValues("test", "aborted")); got != 1 {
		t.Errorf("test/aborted = %v, want 1", got)
	}
}

func TestExecutor_MetricsOptional(t *testing.T) {
	// An executor without metrics attached must not panic.
	e := testExecutor(t, nil)
	res := e.Execute(context.Background(), "/test", SessionInfo{ID: "s"})
	if !res.OK() {
		t.Errorf("result = %+v", res)
	}
}
