// Package metrics records execution and storage observations behind a
// Recorder interface so instrumented code never depends on Prometheus
// directly.
package metrics

import (
	"time"
)

// Recorder receives observations from the orchestrator, the retry
// policy, the history store, and the availability monitor
type Recorder interface {
	// ObserveExecution records a finished execution with its terminal
	// status, error code (empty on success), and duration
	ObserveExecution(agentID string, status string, errorCode string, duration time.Duration)

	// IncRetry counts one retried trigger attempt
	IncRetry(agentID string)

	// IncStorageDegradation counts one quota-driven history reduction
	IncStorageDegradation(level string)

	// SetEngineUp records the engine's last observed availability
	SetEngineUp(up bool)
}

// NopRecorder discards all observations
type NopRecorder struct{}

// Nop returns a recorder that discards everything
func Nop() *NopRecorder {
	return &NopRecorder{}
}

// ObserveExecution discards the observation
func (*NopRecorder) ObserveExecution(agentID string, status string, errorCode string, duration time.Duration) {
}

// IncRetry discards the observation
func (*NopRecorder) IncRetry(agentID string) {}

// IncStorageDegradation discards the observation
func (*NopRecorder) IncStorageDegradation(level string) {}

// SetEngineUp discards the observation
func (*NopRecorder) SetEngineUp(up bool) {}
