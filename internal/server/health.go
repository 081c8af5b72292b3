package server

import (
	"sync"
	"time"

	"msgdash/internal/domain"
)

// Health is the body of GET /health, for monitoring tools.
//
// Example:
//
//	{
//	  "status": "healthy",
//	  "uptime": "1h2m3s",
//	  "last_refresh_time": "2026-01-15 10:30:00",
//	  "last_refresh_status": "success",
//	  "last_job_time": "2026-01-15 10:29:41",
//	  "last_job_status": "completed",
//	  "refresh_failures": 0
//	}
type Health struct {
	Status            string `json:"status"`
	Uptime            string `json:"uptime"`
	LastRefreshTime   string `json:"last_refresh_time"`
	LastRefreshStatus string `json:"last_refresh_status"`
	LastJobTime       string `json:"last_job_time"`
	LastJobStatus     string `json:"last_job_status"`
	RefreshFailures   int    `json:"refresh_failures"`
}

// Monitor tracks dashboard refreshes and finished jobs.
//
// Thread-safety:
//   - All fields are protected by RWMutex
//   - Safe for concurrent updates from the session and scheduler goroutines
type Monitor struct {
	mu                sync.RWMutex
	startTime         time.Time
	lastRefreshTime   time.Time
	lastRefreshStatus string
	lastJobTime       time.Time
	lastJobStatus     string
	failures          int
	now               func() time.Time
}

// NewMonitor creates a monitor that starts counting uptime now.
func NewMonitor() *Monitor {
	return newMonitor(time.Now)
}

func newMonitor(now func() time.Time) *Monitor {
	return &Monitor{
		startTime:         now(),
		lastRefreshStatus: "not started",
		lastJobStatus:     "none",
		now:               now,
	}
}

// RecordRefresh records the outcome of a full dashboard refresh.
// Consecutive failures mark the dashboard degraded until a refresh succeeds.
func (m *Monitor) RecordRefresh(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRefreshTime = m.now()
	if err != nil {
		m.lastRefreshStatus = "error: " + err.Error()
		m.failures++
		return
	}
	m.lastRefreshStatus = "success"
	m.failures = 0
}

// RecordJob records a processing job that reached a terminal status.
func (m *Monitor) RecordJob(status domain.ProcessingStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastJobTime = m.now()
	m.lastJobStatus = string(status.Status)
}

// GetStatus returns the current health status.
func (m *Monitor) GetStatus() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := Health{
		Status:            "healthy",
		Uptime:            m.now().Sub(m.startTime).Round(time.Second).String(),
		LastRefreshStatus: m.lastRefreshStatus,
		LastJobStatus:     m.lastJobStatus,
		RefreshFailures:   m.failures,
	}
	if m.failures > 0 {
		h.Status = "degraded"
	}
	if !m.lastRefreshTime.IsZero() {
		h.LastRefreshTime = m.lastRefreshTime.Format("2006-01-02 15:04:05")
	}
	if !m.lastJobTime.IsZero() {
		h.LastJobTime = m.lastJobTime.Format("2006-01-02 15:04:05")
	}
	return h
}
