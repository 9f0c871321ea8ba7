package mpi

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetricsOptions configures NewPrometheusMetrics.
type PrometheusMetricsOptions struct {
	Registerer  prometheus.Registerer
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

var _ MetricHook = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements MetricHook using Prometheus counters.
type PrometheusMetrics struct {
	callsCompleted   *prometheus.CounterVec
	callsFailed      *prometheus.CounterVec
	callsUnsupported *prometheus.CounterVec
	worldsCreated    prometheus.Counter
	worldsDestroyed  prometheus.Counter
}

var callLabelKeys = []string{labelCall}

// NewPrometheusMetrics constructs a MetricHook backed by Prometheus counters.
func NewPrometheusMetrics(opts PrometheusMetricsOptions) (*PrometheusMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusMetrics{
		callsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "faasm_mpi_calls_total",
			Help:        "Number of completed MPI host calls",
			ConstLabels: opts.ConstLabels,
		}, callLabelKeys),
		callsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "faasm_mpi_call_failures_total",
			Help:        "Number of MPI host calls that failed",
			ConstLabels: opts.ConstLabels,
		}, callLabelKeys),
		callsUnsupported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "faasm_mpi_unsupported_calls_total",
			Help:        "Number of MPI host calls rejected as unsupported",
			ConstLabels: opts.ConstLabels,
		}, callLabelKeys),
		worldsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "faasm_mpi_worlds_created_total",
			Help:        "Number of MPI worlds created",
			ConstLabels: opts.ConstLabels,
		}),
		worldsDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "faasm_mpi_worlds_destroyed_total",
			Help:        "Number of MPI worlds destroyed",
			ConstLabels: opts.ConstLabels,
		}),
	}

	for _, c := range []prometheus.Collector{
		p.callsCompleted, p.callsFailed, p.callsUnsupported,
		p.worldsCreated, p.worldsDestroyed,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PrometheusMetrics) CallCompleted(call string, attrs map[string]string) {
	p.callsCompleted.WithLabelValues(call).Inc()
}

func (p *PrometheusMetrics) CallFailed(call string, _ error, attrs map[string]string) {
	p.callsFailed.WithLabelValues(call).Inc()
}

func (p *PrometheusMetrics) UnsupportedCall(call string, attrs map[string]string) {
	p.callsUnsupported.WithLabelValues(call).Inc()
}

func (p *PrometheusMetrics) WorldCreated(map[string]string) {
	p.worldsCreated.Inc()
}

func (p *PrometheusMetrics) WorldDestroyed(map[string]string) {
	p.worldsDestroyed.Inc()
}
