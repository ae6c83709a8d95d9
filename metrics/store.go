package metrics

import (
	"sync"
	"time"
)

// MetricsStore keeps a bounded ring of recent runs plus running totals.
//
//	store := NewMetricsStore(DefaultStoreConfig(), time.Now())
//	store.RecordRun(run)
//	stats := store.GetRunMetrics()
type MetricsStore struct {
	mu sync.RWMutex

	history []RunRecord
	cap     int
	head    int
	size    int

	totalRuns    int64
	totalSuccess int64
	totalErrors  int64
	byType       map[string]*runTypeStats

	startTime     time.Time
	version       string
	// degradedAfter consecutive errors flips health to degraded.
	degradedAfter int
	errorStreak   int
}

type runTypeStats struct {
	count         int64
	successCount  int64
	totalDuration time.Duration
}

// StoreConfig configures a MetricsStore.
type StoreConfig struct {
	// HistoryCapacity is the number of recent runs kept
	HistoryCapacity int
	Version         string
	// DegradedAfter is the consecutive failure count that marks the
	// service degraded. Zero disables the check.
	DegradedAfter   int
}

// DefaultStoreConfig returns the defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		HistoryCapacity: 100,
		Version:         "0.0.0",
		DegradedAfter:   5,
	}
}

// NewMetricsStore creates a store. startTime anchors uptime.
func NewMetricsStore(config StoreConfig, startTime time.Time) *MetricsStore {
	capacity := config.HistoryCapacity
	if capacity < 1 {
		capacity = 100
	}
	return &MetricsStore{
		history:       make([]RunRecord, capacity),
		cap:           capacity,
		byType:        make(map[string]*runTypeStats),
		startTime:     startTime,
		version:       config.Version,
		degradedAfter: config.DegradedAfter,
	}
}

// RecordRun adds run to the history and totals.
func (s *MetricsStore) RecordRun(run RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = run
	s.head = (s.head + 1) % s.cap
	if s.size < s.cap {
		s.size++
	}

	s.totalRuns++
	switch run.Status {
	case RunStatusSuccess:
		s.totalSuccess++
		s.errorStreak = 0
	case RunStatusError:
		s.totalErrors++
		s.errorStreak++
	}

	stats, ok := s.byType[run.Type]
	if !ok {
		stats = &runTypeStats{}
		s.byType[run.Type] = stats
	}
	stats.count++
	if run.Status == RunStatusSuccess {
		stats.successCount++
	}
	stats.totalDuration += run.Duration
}

// GetRunMetrics returns the aggregated totals.
func (s *MetricsStore) GetRunMetrics() RunMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := RunMetrics{
		TotalProcessed: s.totalRuns,
		TotalSuccess:   s.totalSuccess,
		TotalErrors:    s.totalErrors,
		ByType:         make(map[string]*RunTypeMetrics, len(s.byType)),
	}
	for runType, stats := range s.byType {
		var rate float64
		var avg time.Duration
		if stats.count > 0 {
			rate = float64(stats.successCount) / float64(stats.count) * 100
			avg = stats.totalDuration / time.Duration(stats.count)
		}
		m.ByType[runType] = &RunTypeMetrics{Count: stats.count, SuccessRate: rate, AvgDuration: avg}
	}
	return m
}

// GetRecentRuns returns up to limit runs, oldest first.
func (s *MetricsStore) GetRecentRuns(limit int) []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.size == 0 {
		return []RunRecord{}
	}
	if limit > s.size {
		limit = s.size
	}
	result := make([]RunRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.head - limit + i + s.cap) % s.cap
		result[i] = s.history[idx]
	}
	return result
}

// GetSystemStatus reports degraded after DegradedAfter consecutive failures.
func (s *MetricsStore) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	if s.degradedAfter > 0 && s.errorStreak >= s.degradedAfter {
		health = SystemHealthDegraded
	}
	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Uptime:    time.Since(s.startTime),
		LastCheck: time.Now(),
	}
}

var _ Collector = (*MetricsStore)(nil)
