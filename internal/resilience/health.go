package resilience

import (
	"sync"
	"time"
)

// HealthConfig holds health monitor tuning.
type HealthConfig struct {
	// FailureThreshold is the consecutive-failure count at which the
	// monitor reports unhealthy. Default: 3.
	FailureThreshold int

	// StalenessWindow is the maximum time since the last success before
	// the monitor reports unhealthy. Default: 5m.
	StalenessWindow time.Duration

	// ResponseWindow is the number of response-time samples retained in
	// the rolling window. Default: 32.
	ResponseWindow int
}

// HealthSnapshot is a point-in-time view of monitor state.
type HealthSnapshot struct {
	Healthy             bool          `json:"healthy"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastSuccess         time.Time     `json:"last_success"`
	AvgResponseTime     time.Duration `json:"avg_response_time"`
	Samples             int           `json:"samples"`
}

// HealthMonitor tracks operation outcomes for one dependency.
//
// It reports unhealthy when consecutive failures reach the threshold or
// when the time since the last success exceeds the staleness window.
//
// Thread Safety: all methods are safe for concurrent use.
type HealthMonitor struct {
	cfg HealthConfig

	mu           sync.Mutex
	failures     int
	lastSuccess  time.Time
	responses    []time.Duration
	nextResponse int
	filled       bool

	now func() time.Time
}

// NewHealthMonitor creates a monitor with defaults applied. The monitor
// starts healthy, with the construction time as its last success.
func NewHealthMonitor(cfg HealthConfig) *HealthMonitor {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = 5 * time.Minute
	}
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = 32
	}
	m := &HealthMonitor{
		cfg:       cfg,
		responses: make([]time.Duration, cfg.ResponseWindow),
		now:       time.Now,
	}
	m.lastSuccess = m.now()
	return m
}

// RecordSuccess records a successful operation and its duration.
func (m *HealthMonitor) RecordSuccess(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures = 0
	m.lastSuccess = m.now()

	m.responses[m.nextResponse] = elapsed
	m.nextResponse++
	if m.nextResponse == len(m.responses) {
		m.nextResponse = 0
		m.filled = true
	}
}

// RecordFailure records a failed operation.
func (m *HealthMonitor) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

// Healthy reports whether the dependency is considered healthy.
func (m *HealthMonitor) Healthy() bool {
	return m.Snapshot().Healthy
}

// Snapshot returns the current monitor state.
func (m *HealthMonitor) Snapshot() HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := m.nextResponse
	if m.filled {
		samples = len(m.responses)
	}

	var total time.Duration
	for i := 0; i < samples; i++ {
		total += m.responses[i]
	}
	var avg time.Duration
	if samples > 0 {
		avg = total / time.Duration(samples)
	}

	healthy := m.failures < m.cfg.FailureThreshold &&
		m.now().Sub(m.lastSuccess) <= m.cfg.StalenessWindow

	return HealthSnapshot{
		Healthy:             healthy,
		ConsecutiveFailures: m.failures,
		LastSuccess:         m.lastSuccess,
		AvgResponseTime:     avg,
		Samples:             samples,
	}
}
