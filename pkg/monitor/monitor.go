package monitor

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/events"
	"github.com/cadre-dev/cadre/pkg/log"
	"github.com/cadre-dev/cadre/pkg/metrics"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultGlobalBufferSize bounds the global sample history
	DefaultGlobalBufferSize = 10000

	// DefaultAgentBufferSize bounds each per-agent sample history
	DefaultAgentBufferSize = 1000

	DefaultSampleInterval = 10 * time.Second
	DefaultStatsTTL       = 5 * time.Second
)

// Config holds monitor construction options
type Config struct {
	GlobalBufferSize int
	AgentBufferSize  int
	SampleInterval   time.Duration
	StatsTTL         time.Duration
	Broker           *events.Broker
}

// Threshold configures an alert rule. A sample breaches when its value
// exceeds Max; Consecutive breaches in a row raise the alert.
type Threshold struct {
	Metric      types.MetricType
	Max         float64
	Consecutive int
}

// Alert is a raised threshold violation. Alerts deduplicate per
// (metric, agent) while unresolved.
type Alert struct {
	ID         string
	Metric     types.MetricType
	AgentID    string
	Value      float64
	Threshold  float64
	RaisedAt   time.Time
	Resolved   bool
	ResolvedAt time.Time
}

// Stats summarizes one metric series
type Stats struct {
	Count  int
	Mean   float64
	Min    float64
	Max    float64
	StdDev float64
	Latest float64
}

type taskTiming struct {
	agentID string
	started time.Time
}

type cachedStats struct {
	computed time.Time
	stats    Stats
}

// Monitor keeps bounded metric histories and raises threshold alerts.
// Statistics are computed on demand behind a short TTL cache.
type Monitor struct {
	mu sync.Mutex

	cfg     Config
	global  *ring
	byAgent map[string]*ring
	tasks   map[string]taskTiming

	thresholds map[types.MetricType]Threshold
	breaches   map[string]int    // metric|agent -> consecutive breach count
	open       map[string]*Alert // metric|agent -> unresolved alert
	history    []*Alert

	statsCache map[string]cachedStats
	stopCh     chan struct{}
	stopped    bool

	logger zerolog.Logger
}

// NewMonitor creates a performance monitor
func NewMonitor(cfg Config) *Monitor {
	if cfg.GlobalBufferSize <= 0 {
		cfg.GlobalBufferSize = DefaultGlobalBufferSize
	}
	if cfg.AgentBufferSize <= 0 {
		cfg.AgentBufferSize = DefaultAgentBufferSize
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = DefaultStatsTTL
	}
	return &Monitor{
		cfg:        cfg,
		global:     newRing(cfg.GlobalBufferSize),
		byAgent:    make(map[string]*ring),
		tasks:      make(map[string]taskTiming),
		thresholds: make(map[types.MetricType]Threshold),
		breaches:   make(map[string]int),
		open:       make(map[string]*Alert),
		statsCache: make(map[string]cachedStats),
		stopCh:     make(chan struct{}),
		logger:     log.WithComponent("monitor"),
	}
}

// Start begins the background sampling loop
func (m *Monitor) Start() {
	go m.sampleLoop()
}

// Stop halts the sampling loop
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.stopCh)
	}
}

// SetThreshold installs or replaces an alert rule for a metric
func (m *Monitor) SetThreshold(t Threshold) error {
	if t.Consecutive <= 0 {
		return errdefs.InvalidArgument("threshold consecutive count must be positive, got %d", t.Consecutive)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[t.Metric] = t
	return nil
}

// Record appends a sample to the global history and, when the sample names
// an agent, to that agent's history. The sample is checked against the
// alert rules.
func (m *Monitor) Record(sample types.MetricSample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	var raised *Alert
	m.mu.Lock()
	m.global.add(sample)
	if sample.AgentID != "" {
		r, ok := m.byAgent[sample.AgentID]
		if !ok {
			r = newRing(m.cfg.AgentBufferSize)
			m.byAgent[sample.AgentID] = r
		}
		r.add(sample)
	}
	m.statsCache = make(map[string]cachedStats)
	raised = m.checkLocked(sample)
	m.mu.Unlock()

	if raised != nil {
		metrics.AlertsRaised.WithLabelValues(string(raised.Metric)).Inc()
		m.publish(raised)
		m.logger.Warn().Str("metric", string(raised.Metric)).Str("agent_id", raised.AgentID).
			Float64("value", raised.Value).Float64("threshold", raised.Threshold).
			Msg("performance alert raised")
	}
}

// StartTask records the start of a task for duration tracking
func (m *Monitor) StartTask(taskID, agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[taskID] = taskTiming{agentID: agentID, started: time.Now().UTC()}
}

// EndTask closes a task and records its duration in seconds
func (m *Monitor) EndTask(taskID string) (time.Duration, error) {
	m.mu.Lock()
	timing, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return 0, errdefs.NotFound("task %s is not being timed", taskID)
	}
	delete(m.tasks, taskID)
	m.mu.Unlock()

	duration := time.Since(timing.started)
	m.Record(types.MetricSample{
		Type:    types.MetricTaskDuration,
		Value:   duration.Seconds(),
		AgentID: timing.agentID,
	})
	return duration, nil
}

// RecordSystem captures a system utilization sample
func (m *Monitor) RecordSystem(cpuPercent, memoryPercent, ioRate float64) {
	m.Record(types.MetricSample{Type: types.MetricCPUPercent, Value: cpuPercent})
	m.Record(types.MetricSample{Type: types.MetricMemoryPercent, Value: memoryPercent})
	m.Record(types.MetricSample{Type: types.MetricIORate, Value: ioRate})
}

// checkLocked updates breach counters for the sample and raises an alert
// when the consecutive-breach bar is met. Caller holds the mutex; the
// returned alert, if any, still needs publishing.
func (m *Monitor) checkLocked(sample types.MetricSample) *Alert {
	t, ok := m.thresholds[sample.Type]
	if !ok {
		return nil
	}
	key := string(sample.Type) + "|" + sample.AgentID

	if sample.Value <= t.Max {
		m.breaches[key] = 0
		if alert, open := m.open[key]; open {
			alert.Resolved = true
			alert.ResolvedAt = time.Now().UTC()
			delete(m.open, key)
		}
		return nil
	}

	m.breaches[key]++
	if m.breaches[key] < t.Consecutive {
		return nil
	}
	// Deduplicate while an alert for this key is unresolved
	if _, open := m.open[key]; open {
		return nil
	}

	alert := &Alert{
		ID:        uuid.New().String(),
		Metric:    sample.Type,
		AgentID:   sample.AgentID,
		Value:     sample.Value,
		Threshold: t.Max,
		RaisedAt:  time.Now().UTC(),
	}
	m.open[key] = alert
	m.history = append(m.history, alert)
	return alert
}

// Alerts returns all alerts, open and resolved, oldest first
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.history))
	for _, alert := range m.history {
		out = append(out, *alert)
	}
	return out
}

// OpenAlerts returns only unresolved alerts
func (m *Monitor) OpenAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.open))
	for _, alert := range m.open {
		out = append(out, *alert)
	}
	return out
}

// Statistics summarizes a metric over the global history, or over one
// agent's history when agentID is set. Results are cached briefly.
func (m *Monitor) Statistics(metric types.MetricType, agentID string) Stats {
	key := string(metric) + "|" + agentID

	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, ok := m.statsCache[key]; ok && time.Since(cached.computed) < m.cfg.StatsTTL {
		return cached.stats
	}

	source := m.global
	if agentID != "" {
		r, ok := m.byAgent[agentID]
		if !ok {
			return Stats{}
		}
		source = r
	}

	var values []float64
	for _, sample := range source.samples() {
		if sample.Type == metric {
			values = append(values, sample.Value)
		}
	}
	stats := computeStats(values)
	m.statsCache[key] = cachedStats{computed: time.Now(), stats: stats}
	return stats
}

// Samples returns a copy of the buffered history, global or per agent
func (m *Monitor) Samples(agentID string) []types.MetricSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	if agentID == "" {
		return m.global.samples()
	}
	if r, ok := m.byAgent[agentID]; ok {
		return r.samples()
	}
	return nil
}

// sampleLoop records process-level samples on every tick
func (m *Monitor) sampleLoop() {
	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			memoryPercent := 0.0
			if stats.Sys > 0 {
				memoryPercent = float64(stats.HeapAlloc) / float64(stats.Sys) * 100
			}
			m.Record(types.MetricSample{
				Type:  types.MetricMemoryPercent,
				Value: memoryPercent,
				Metadata: map[string]string{
					"goroutines": fmt.Sprintf("%d", runtime.NumGoroutine()),
				},
			})
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) publish(alert *Alert) {
	if m.cfg.Broker == nil {
		return
	}
	m.cfg.Broker.Publish(&events.Event{
		ID:   uuid.New().String(),
		Type: events.EventAlertRaised,
		Metadata: map[string]string{
			"alert_id": alert.ID,
			"metric":   string(alert.Metric),
			"agent_id": alert.AgentID,
		},
	})
}

func computeStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	stats := Stats{
		Count:  len(values),
		Min:    values[0],
		Max:    values[0],
		Latest: values[len(values)-1],
	}
	var sum float64
	for _, v := range values {
		sum += v
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
	}
	stats.Mean = sum / float64(len(values))

	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			d := v - stats.Mean
			sq += d * d
		}
		stats.StdDev = math.Sqrt(sq / float64(len(values)-1))
	}
	return stats
}
