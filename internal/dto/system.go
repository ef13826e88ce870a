package dto

import "time"

// SystemMetrics summarises instrumentation for the metrics summary endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	DBQueryCount             uint64    `json:"dbQueryCount"`
	AverageDBQueryDurationMs float64   `json:"averageDbQueryDurationMs"`
	SchedulerRuns            uint64    `json:"schedulerRuns"`
	SchedulerFailedRuns      uint64    `json:"schedulerFailedRuns"`
	SchedulerChanges         uint64    `json:"schedulerChanges"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
