package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountersAndGauges(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter(BansApplied)
		}()
	}
	wg.Wait()
	m.SetGauge(BansActive, 3)

	require.Equal(t, int64(100), m.GetCounters()[BansApplied])
	require.Equal(t, int64(3), m.GetGauges()[BansActive])
}

func TestTimersAndHealth(t *testing.T) {
	m := NewMetrics()
	m.RecordTimer("netstatus_fetch", 10*time.Millisecond)
	m.RecordTimer("netstatus_fetch", 30*time.Millisecond)
	m.SetHealth("discord", true)
	m.SetHealth("redis", false)

	timer := m.GetTimers()["netstatus_fetch"]
	require.Equal(t, int64(2), timer.Count)
	require.Equal(t, int64(30), timer.MaxTimeMs)
	require.InDelta(t, 20.0, timer.AverageTimeMs, 0.001)

	require.Equal(t, map[string]bool{"discord": true, "redis": false}, m.GetHealthChecks())
	require.Contains(t, m.GetAllMetrics(), "uptime_seconds")
}

func TestNilCollectorIsNoop(t *testing.T) {
	var m *Metrics
	m.IncrementCounter(BansApplied)
	m.SetGauge(BansActive, 1)
	m.SetHealth("discord", true)
	m.RecordTimer("x", time.Second)
}
