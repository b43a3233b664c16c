// Package health probes source adapters and keeps advisory availability
// records.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"liquidityPricer/internal/metrics"
	"liquidityPricer/internal/model"
	"liquidityPricer/internal/source"
)

const (
	// DefaultProbeTimeout bounds a single probe.
	DefaultProbeTimeout = 10 * time.Second
	// DefaultInterval is the probe period used when Run is given none.
	DefaultInterval = time.Minute
)

// Prober is anything the monitor can check.
type Prober interface {
	source.Describer
	Probe(ctx context.Context) error
}

// Monitor probes every target concurrently and records the outcome. Records
// never gate resolution unless the resolver is configured to consult them.
type Monitor struct {
	targets []Prober
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.RWMutex
	records map[string]model.HealthRecord
}

// NewMonitor builds a monitor over targets. timeout <= 0 selects
// DefaultProbeTimeout; m and logger may be nil.
func NewMonitor(targets []Prober, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Monitor {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		targets: targets,
		timeout: timeout,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		records: make(map[string]model.HealthRecord, len(targets)),
	}
}

// CheckAll probes all targets in parallel and returns the updated status.
func (m *Monitor) CheckAll(ctx context.Context) model.HealthStatus {
	var wg sync.WaitGroup
	for _, target := range m.targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.check(ctx, target)
		}()
	}
	wg.Wait()
	return m.Status()
}

func (m *Monitor) check(ctx context.Context, target Prober) {
	name := target.Descriptor().Name
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := m.now()
	err := target.Probe(probeCtx)
	latency := m.now().Sub(start)

	m.mu.Lock()
	rec := m.records[name]
	rec.SourceName = name
	rec.CheckedAt = m.now()
	rec.LatencyMs = latency.Milliseconds()
	if err == nil {
		rec.IsOnline = true
		rec.LastSuccessAt = rec.CheckedAt
		rec.ConsecutiveFailures = 0
		rec.LastError = ""
	} else {
		rec.IsOnline = false
		rec.ConsecutiveFailures++
		rec.LastError = err.Error()
	}
	m.records[name] = rec
	m.mu.Unlock()

	m.metrics.SetSourceHealth(name, rec.IsOnline, rec.ConsecutiveFailures, latency)
	if err != nil {
		m.logger.Warn("source probe failed",
			zap.String("source", name),
			zap.Int("consecutive_failures", rec.ConsecutiveFailures),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
	}
}

// Run checks immediately and then every interval until ctx is cancelled.
// interval <= 0 selects DefaultInterval.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m.logger.Info("health monitor starting", zap.Int("targets", len(m.targets)), zap.Duration("interval", interval))
	m.logStatus(m.CheckAll(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopping")
			return
		case <-ticker.C:
			m.logStatus(m.CheckAll(ctx))
		}
	}
}

func (m *Monitor) logStatus(status model.HealthStatus) {
	online := 0
	for _, rec := range status.Sources {
		if rec.IsOnline {
			online++
		}
	}
	m.logger.Info("health check completed",
		zap.Bool("healthy", status.Healthy),
		zap.Int("online", online),
		zap.Int("total", len(status.Sources)),
	)
}

// Status returns a copy of the records sorted by source name. Healthy is
// true when at least one source is online.
func (m *Monitor) Status() model.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := model.HealthStatus{Sources: make([]model.HealthRecord, 0, len(m.records))}
	for _, rec := range m.records {
		status.Sources = append(status.Sources, rec)
		if rec.IsOnline {
			status.Healthy = true
		}
	}
	sort.Slice(status.Sources, func(i, j int) bool {
		return status.Sources[i].SourceName < status.Sources[j].SourceName
	})
	return status
}

// IsOnline reports the last probe result for name. Sources that were never
// probed count as online.
func (m *Monitor) IsOnline(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[name]
	return !ok || rec.IsOnline
}
