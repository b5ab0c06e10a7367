package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder with Prometheus collectors
type PrometheusRecorder struct {
	executions   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	degradations *prometheus.CounterVec
	engineUp     prometheus.Gauge
}

// NewPrometheusRecorder creates a recorder registered on reg
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_executions_total",
			Help: "Agent executions by terminal status and error code.",
		}, []string{"agent_id", "status", "error_code"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_execution_duration_seconds",
			Help:    "Wall-clock duration of agent executions.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"agent_id", "status"}),

		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_retry_attempts_total",
			Help: "Trigger attempts that were retried.",
		}, []string{"agent_id"}),

		degradations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_degradations_total",
			Help: "History writes degraded because of storage quota pressure.",
		}, []string{"level"}),

		engineUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "engine_up",
			Help: "Whether the last engine availability probe succeeded.",
		}),
	}
}

// ObserveExecution records a finished execution
func (r *PrometheusRecorder) ObserveExecution(agentID string, status string, errorCode string, duration time.Duration) {
	r.executions.WithLabelValues(agentID, status, errorCode).Inc()
	r.duration.WithLabelValues(agentID, status).Observe(duration.Seconds())
}

// IncRetry counts one retried trigger attempt
func (r *PrometheusRecorder) IncRetry(agentID string) {
	r.retries.WithLabelValues(agentID).Inc()
}

// IncStorageDegradation counts one quota-driven history reduction
func (r *PrometheusRecorder) IncStorageDegradation(level string) {
	r.degradations.WithLabelValues(level).Inc()
}

// SetEngineUp records the engine's last observed availability
func (r *PrometheusRecorder) SetEngineUp(up bool) {
	if up {
		r.engineUp.Set(1)
	} else {
		r.engineUp.Set(0)
	}
}
