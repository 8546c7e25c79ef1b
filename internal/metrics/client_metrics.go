// Package metrics counts marketplace traffic during a report run.
package metrics

import (
	"sync/atomic"
	"time"
)

// ClientMetrics tracks requests made by the market client. All methods are
// safe for concurrent use and tolerate a nil receiver.
type ClientMetrics struct {
	Latency *Histogram

	Requests    atomic.Uint64
	Errors      atomic.Uint64
	RateLimited atomic.Uint64
	CacheHits   atomic.Uint64
	CacheMisses atomic.Uint64

	start time.Time
}

// NewClientMetrics creates an empty collector.
func NewClientMetrics() *ClientMetrics {
	return &ClientMetrics{
		Latency: NewHistogram(10000),
		start:   time.Now(),
	}
}

// RecordRequest records one HTTP attempt and whether it failed.
func (m *ClientMetrics) RecordRequest(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.Requests.Add(1)
	m.Latency.Record(d)
	if failed {
		m.Errors.Add(1)
	}
}

// RecordRateLimited counts an HTTP 429 response.
func (m *ClientMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Add(1)
}

// RecordCache counts a cache lookup.
func (m *ClientMetrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Add(1)
	} else {
		m.CacheMisses.Add(1)
	}
}

// Stats is a snapshot of ClientMetrics.
type Stats struct {
	Requests     uint64       `json:"requests"`
	Errors       uint64       `json:"errors"`
	RateLimited  uint64       `json:"rate_limited"`
	CacheHits    uint64       `json:"cache_hits"`
	CacheMisses  uint64       `json:"cache_misses"`
	CacheHitRate float64      `json:"cache_hit_rate"` // percentage
	Latency      LatencyStats `json:"latency"`
	Elapsed      string       `json:"elapsed"`
}

// LatencyStats summarizes a histogram in milliseconds.
type LatencyStats struct {
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// GetStats returns the current snapshot.
func (m *ClientMetrics) GetStats() Stats {
	if m == nil {
		return Stats{}
	}

	hits, misses := m.CacheHits.Load(), m.CacheMisses.Load()
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses) * 100
	}

	return Stats{
		Requests:     m.Requests.Load(),
		Errors:       m.Errors.Load(),
		RateLimited:  m.RateLimited.Load(),
		CacheHits:    hits,
		CacheMisses:  misses,
		CacheHitRate: hitRate,
		Latency:      m.Latency.Summary(),
		Elapsed:      time.Since(m.start).Round(time.Millisecond).String(),
	}
}
