package relay

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds relay counters. Counters are safe for concurrent use.
type Metrics struct {
	ConnectionsOpen  atomic.Int64
	ConnectionsTotal atomic.Int64
	FramesIn         atomic.Int64
	BytesIn          atomic.Int64
	UpdatesApplied   atomic.Int64
	UpdatesRejected  atomic.Int64
	PresenceRelayed  atomic.Int64
	Compactions      atomic.Int64

	mu              sync.Mutex
	peakGoroutines  int
	peakMemoryUsage uint64
	startTime       time.Time
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Uptime           string `json:"uptime"`
	ConnectionsOpen  int64  `json:"connectionsOpen"`
	ConnectionsTotal int64  `json:"connectionsTotal"`
	FramesIn         int64  `json:"framesIn"`
	BytesIn          int64  `json:"bytesIn"`
	UpdatesApplied   int64  `json:"updatesApplied"`
	UpdatesRejected  int64  `json:"updatesRejected"`
	PresenceRelayed  int64  `json:"presenceRelayed"`
	Compactions      int64  `json:"compactions"`
	PeakGoroutines   int    `json:"peakGoroutines"`
	PeakMemoryUsage  uint64 `json:"peakMemoryUsage"`
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// UpdateSystemMetrics records goroutine and heap peaks.
func (m *Metrics) UpdateSystemMetrics() {
	goroutines := runtime.NumGoroutine()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	if goroutines > m.peakGoroutines {
		m.peakGoroutines = goroutines
	}
	if ms.Alloc > m.peakMemoryUsage {
		m.peakMemoryUsage = ms.Alloc
	}
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	peakG, peakMem := m.peakGoroutines, m.peakMemoryUsage
	m.mu.Unlock()

	return MetricsSnapshot{
		Uptime:           time.Since(m.startTime).Round(time.Second).String(),
		ConnectionsOpen:  m.ConnectionsOpen.Load(),
		ConnectionsTotal: m.ConnectionsTotal.Load(),
		FramesIn:         m.FramesIn.Load(),
		BytesIn:          m.BytesIn.Load(),
		UpdatesApplied:   m.UpdatesApplied.Load(),
		UpdatesRejected:  m.UpdatesRejected.Load(),
		PresenceRelayed:  m.PresenceRelayed.Load(),
		Compactions:      m.Compactions.Load(),
		PeakGoroutines:   peakG,
		PeakMemoryUsage:  peakMem,
	}
}

// LogMetrics logs current relay metrics
func (m *Metrics) LogMetrics(logger Logger) {
	s := m.Snapshot()
	logger.Printf("=== Relay Metrics ===")
	logger.Printf("Uptime: %s", s.Uptime)
	logger.Printf("Connections: %d open, %d total", s.ConnectionsOpen, s.ConnectionsTotal)
	logger.Printf("Frames in: %d (%d bytes)", s.FramesIn, s.BytesIn)
	logger.Printf("Updates: %d applied, %d rejected", s.UpdatesApplied, s.UpdatesRejected)
	logger.Printf("Presence relayed: %d", s.PresenceRelayed)
	logger.Printf("Compactions: %d", s.Compactions)
	logger.Printf("Peak goroutines: %d", s.PeakGoroutines)
	logger.Printf("Peak memory usage: %d bytes", s.PeakMemoryUsage)
}

// StartMetricsReporting logs metrics every interval until ctx is done.
func (m *Metrics) StartMetricsReporting(ctx context.Context, logger Logger, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.UpdateSystemMetrics()
				m.LogMetrics(logger)
			}
		}
	}()
}
