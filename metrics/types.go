// Package metrics records pipeline activity twice: as Prometheus series for
// scraping and as an in-memory run history for the stats endpoint.
package metrics

import "time"

// RunRecord is one finished unit of work: a background post job or a
// synchronous composition.
type RunRecord struct {
	Type      string        `json:"type"`
	Status    string        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`
	ErrorMsg  string        `json:"error_msg,omitempty"`
}

// SystemStatus is the health summary served next to the run statistics.
type SystemStatus struct {
	// Health is "running" or "degraded"
	Health    string        `json:"health"`
	Version   string        `json:"version"`
	Uptime    time.Duration `json:"uptime"`
	LastCheck time.Time     `json:"last_check"`
}

// RunMetrics aggregates every recorded run.
type RunMetrics struct {
	TotalProcessed int64                      `json:"total_processed"`
	TotalSuccess   int64                      `json:"total_success"`
	TotalErrors    int64                      `json:"total_errors"`
	ByType         map[string]*RunTypeMetrics `json:"by_type"`
}

// RunTypeMetrics aggregates runs of one type.
type RunTypeMetrics struct {
	Count       int64         `json:"count"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Run statuses.
const (
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// Health values.
const (
	SystemHealthRunning  = "running"
	SystemHealthDegraded = "degraded"
)

// Run types.
const (
	RunTypePost     = "post"
	RunTypeCompose  = "compose"
	RunTypeTemplate = "template"
)
