package metrics

// Collector is the read/write surface of the run history. MetricsStore is
// the only implementation; the api package depends on this interface.
type Collector interface {
	RecordRun(run RunRecord)
	GetRunMetrics() RunMetrics
	GetRecentRuns(limit int) []RunRecord
	GetSystemStatus() SystemStatus
}
