package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Names of the counters and gauges the bot records
const (
	BansApplied         = "bans_applied"
	BansReversed        = "bans_reversed"
	BansRevoked         = "bans_revoked"
	BansActive          = "bans_active"
	EventsDrafted       = "events_drafted"
	EventsPublished     = "events_published"
	EventsCancelled     = "events_cancelled"
	EventsStarted       = "events_started"
	EventsActive        = "events_active"
	RemindersSent       = "reminders_sent"
	RemindersFailed     = "reminders_failed"
	RoleRequestsPending = "role_requests_pending"
	SideEffectFailures  = "side_effect_failures"
	NetStatusPolls      = "netstatus_polls"
	NetStatusFailures   = "netstatus_failures"
	Heartbeats          = "heartbeats"
)

// TimerMetric captures timing information
type TimerMetric struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

type timer struct {
	count       int64
	totalTimeMs int64
	maxTimeMs   int64
}

// Metrics is the in-process metrics collector
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]*int64
	gauges       map[string]*int64
	timers       map[string]*timer
	healthChecks map[string]*int64
	startTime    time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]*int64),
		gauges:       make(map[string]*int64),
		timers:       make(map[string]*timer),
		healthChecks: make(map[string]*int64),
		startTime:    time.Now(),
	}
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	if m == nil {
		return
	}
	atomic.AddInt64(m.slot(m.counters, name), 1)
}

// SetGauge sets a gauge to a specific value
func (m *Metrics) SetGauge(name string, value int64) {
	if m == nil {
		return
	}
	atomic.StoreInt64(m.slot(m.gauges, name), value)
}

// SetHealth sets the health status of a component
func (m *Metrics) SetHealth(component string, isHealthy bool) {
	if m == nil {
		return
	}
	var value int64
	if isHealthy {
		value = 1
	}
	atomic.StoreInt64(m.slot(m.healthChecks, component), value)
}

// RecordTimer records a timing measurement
func (m *Metrics) RecordTimer(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.mu.RLock()
	t, exists := m.timers[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if t, exists = m.timers[name]; !exists {
			t = &timer{}
			m.timers[name] = t
		}
		m.mu.Unlock()
	}

	ms := d.Milliseconds()
	atomic.AddInt64(&t.count, 1)
	atomic.AddInt64(&t.totalTimeMs, ms)
	for {
		currentMax := atomic.LoadInt64(&t.maxTimeMs)
		if ms <= currentMax || atomic.CompareAndSwapInt64(&t.maxTimeMs, currentMax, ms) {
			break
		}
	}
}

// slot returns the value cell for name, creating it on first use
func (m *Metrics) slot(values map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, exists := values[name]
	m.mu.RUnlock()
	if exists {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Check again to avoid race conditions
	if v, exists = values[name]; !exists {
		v = new(int64)
		values[name] = v
	}
	return v
}

// GetCounters returns all counters
func (m *Metrics) GetCounters() map[string]int64 {
	return m.read(m.counters)
}

// GetGauges returns all gauges
func (m *Metrics) GetGauges() map[string]int64 {
	return m.read(m.gauges)
}

// GetHealthChecks returns all health checks
func (m *Metrics) GetHealthChecks() map[string]bool {
	checks := make(map[string]bool)
	for name, v := range m.read(m.healthChecks) {
		checks[name] = v > 0
	}
	return checks
}

// GetTimers returns all timers
func (m *Metrics) GetTimers() map[string]TimerMetric {
	timers := make(map[string]TimerMetric)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, t := range m.timers {
		count := atomic.LoadInt64(&t.count)
		total := atomic.LoadInt64(&t.totalTimeMs)

		var average float64
		if count > 0 {
			average = float64(total) / float64(count)
		}
		timers[name] = TimerMetric{
			Count:         count,
			TotalTimeMs:   total,
			AverageTimeMs: average,
			MaxTimeMs:     atomic.LoadInt64(&t.maxTimeMs),
		}
	}
	return timers
}

func (m *Metrics) read(values map[string]*int64) map[string]int64 {
	out := make(map[string]int64)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, v := range values {
		out[name] = atomic.LoadInt64(v)
	}
	return out
}

// GetUptimeSeconds returns the service uptime in seconds
func (m *Metrics) GetUptimeSeconds() int64 {
	return int64(time.Since(m.startTime).Seconds())
}

// GetAllMetrics returns all metrics in a structured format
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": m.GetUptimeSeconds(),
		"counters":       m.GetCounters(),
		"gauges":         m.GetGauges(),
		"timers":         m.GetTimers(),
		"health_checks":  m.GetHealthChecks(),
	}
}
