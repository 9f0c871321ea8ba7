package mpi

// Label keys used in metric attribute maps.
const (
	labelCall  = "call"
	labelWorld = "world"
	labelRank  = "rank"
)

// MetricHook captures host-call telemetry. Implementations must be safe for
// concurrent use; one hook may serve every session on a worker.
type MetricHook interface {
	CallCompleted(call string, attrs map[string]string)
	CallFailed(call string, err error, attrs map[string]string)
	UnsupportedCall(call string, attrs map[string]string)
	WorldCreated(attrs map[string]string)
	WorldDestroyed(attrs map[string]string)
}

// NopMetrics discards all telemetry.
type NopMetrics struct{}

var _ MetricHook = NopMetrics{}

func (NopMetrics) CallCompleted(string, map[string]string)        {}
func (NopMetrics) CallFailed(string, error, map[string]string)    {}
func (NopMetrics) UnsupportedCall(string, map[string]string)      {}
func (NopMetrics) WorldCreated(map[string]string)                 {}
func (NopMetrics) WorldDestroyed(map[string]string)               {}

func label(attrs map[string]string, key string) string {
	if attrs == nil {
		return ""
	}
	return attrs[key]
}
