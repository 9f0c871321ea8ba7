package mpi

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewPrometheusMetrics(PrometheusMetricsOptions{Registerer: reg})
	if err != nil {
		t.Fatalf("NewPrometheusMetrics: %v", err)
	}

	attrs := map[string]string{labelWorld: "17", labelRank: "0"}
	metrics.WorldCreated(attrs)
	metrics.CallCompleted("MPI_Send", attrs)
	metrics.CallCompleted("MPI_Recv", attrs)
	metrics.CallFailed("MPI_Get_count", errors.New("incomplete"), attrs)
	metrics.UnsupportedCall("MPI_Op_free", attrs)
	metrics.WorldDestroyed(attrs)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	cases := map[string]float64{
		"faasm_mpi_calls_total":             2,
		"faasm_mpi_call_failures_total":     1,
		"faasm_mpi_unsupported_calls_total": 1,
		"faasm_mpi_worlds_created_total":    1,
		"faasm_mpi_worlds_destroyed_total":  1,
	}
	for name, want := range cases {
		if got := findCounterValue(mfs, name); got != want {
			t.Fatalf("unexpected counter %s: got %v want %v", name, got, want)
		}
	}
}

func TestPrometheusMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetrics(PrometheusMetricsOptions{Registerer: reg}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPrometheusMetrics(PrometheusMetricsOptions{Registerer: reg}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func findCounterValue(mfs []*dto.MetricFamily, name string) float64 {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.Metric {
			sum += m.GetCounter().GetValue()
		}
		return sum
	}
	return 0
}
