package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	Ticks             int64
	RunsCompleted     int64
	RunsSkippedBusy   int64
	RunsSkippedEmpty  int64
	FetchFailures     map[string]int64 // by failure kind
	ItemsFetched      int64
	MessagesSent      int64
	MessagesFailed    int64
	MessagesTruncated int64
	RateLimitHits     int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunID     string
	LastRunState  string
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true, FetchFailures: map[string]int64{}}
}

func (m *Metrics) IncrementTicks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Ticks++
}

func (m *Metrics) IncrementSkippedBusy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsSkippedBusy++
}

func (m *Metrics) IncrementSkippedEmpty() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsSkippedEmpty++
}

func (m *Metrics) IncrementFetchFailure(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchFailures[kind]++
}

func (m *Metrics) AddItemsFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsFetched += int64(n)
}

func (m *Metrics) IncrementMessagesSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSent++
}

func (m *Metrics) IncrementMessagesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesFailed++
}

func (m *Metrics) IncrementTruncated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesTruncated++
}

func (m *Metrics) IncrementRateLimitHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RateLimitHits++
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

// SetLastRun records a finished run. A run that delivered or cleanly skipped
// marks the bot healthy again.
func (m *Metrics) SetLastRun(runID, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsCompleted++
	m.LastRunID = runID
	m.LastRunState = state
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	failures := make(map[string]int64, len(m.FetchFailures))
	for k, v := range m.FetchFailures {
		failures[k] = v
	}

	return map[string]interface{}{
		"ticks":                      m.Ticks,
		"runs_completed":             m.RunsCompleted,
		"runs_skipped_busy":          m.RunsSkippedBusy,
		"runs_skipped_empty":         m.RunsSkippedEmpty,
		"fetch_failures":             failures,
		"items_fetched":              m.ItemsFetched,
		"messages_sent":              m.MessagesSent,
		"messages_failed":            m.MessagesFailed,
		"messages_truncated":         m.MessagesTruncated,
		"rate_limit_hits":            m.RateLimitHits,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_id":                m.LastRunID,
		"last_run_state":             m.LastRunState,
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
