package output

import "time"

// Remote call outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncAnalysis counts a finished sub-analysis.
	IncAnalysis(section string, available bool)

	// ObserveAnalysisDuration records sub-analysis duration.
	ObserveAnalysisDuration(section string, duration time.Duration)

	// IncRemoteCall counts a call against an external source.
	IncRemoteCall(source, operation, outcome string)

	// ObserveRemoteCallDuration records remote call duration.
	ObserveRemoteCallDuration(source, operation string, duration time.Duration)

	// IncReports counts built reports by outcome.
	IncReports(outcome string)

	// SetReferenceFeatures sets the number of loaded reference features.
	SetReferenceFeatures(count int)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncAnalysis implements MetricsCollector.
func (n *NoOpMetrics) IncAnalysis(_ string, _ bool) {}

// ObserveAnalysisDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveAnalysisDuration(_ string, _ time.Duration) {}

// IncRemoteCall implements MetricsCollector.
func (n *NoOpMetrics) IncRemoteCall(_, _, _ string) {}

// ObserveRemoteCallDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveRemoteCallDuration(_, _ string, _ time.Duration) {}

// IncReports implements MetricsCollector.
func (n *NoOpMetrics) IncReports(_ string) {}

// SetReferenceFeatures implements MetricsCollector.
func (n *NoOpMetrics) SetReferenceFeatures(_ int) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
