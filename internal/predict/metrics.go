package predict

import (
	"sync"
	"time"
)

// MetricsSummary aggregates the submissions made by one client.
type MetricsSummary struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	CacheHits          int64   `json:"cache_hits"`
	SuccessRate        float64 `json:"success_rate"`
	// AverageConfidence covers successful results that carried a confidence.
	AverageConfidence float64 `json:"average_confidence"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
}

type metrics struct {
	mu              sync.Mutex
	total           int64
	succeeded       int64
	failed          int64
	cacheHits       int64
	confidenceSum   float64
	confidenceCount int64
	latencySum      time.Duration
}

func (m *metrics) record(result *Result, fault *Fault, latency time.Duration, cached bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.latencySum += latency
	if cached {
		m.cacheHits++
	}
	if fault != nil {
		m.failed++
		return
	}
	m.succeeded++
	if result != nil && result.Confidence != nil {
		m.confidenceSum += *result.Confidence
		m.confidenceCount++
	}
}

func (m *metrics) summary() MetricsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MetricsSummary{
		TotalRequests:      m.total,
		SuccessfulRequests: m.succeeded,
		FailedRequests:     m.failed,
		CacheHits:          m.cacheHits,
	}
	if m.total > 0 {
		s.SuccessRate = float64(m.succeeded) / float64(m.total)
		s.AverageLatencyMs = float64(m.latencySum.Microseconds()) / 1000 / float64(m.total)
	}
	if m.confidenceCount > 0 {
		s.AverageConfidence = m.confidenceSum / float64(m.confidenceCount)
	}
	return s
}
