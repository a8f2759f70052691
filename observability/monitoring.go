package observability

import (
	"log/slog"
	"maps"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"presence-relay/contract"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Gauges = (*MonitoringManager)(nil)

// MonitoringStats is the snapshot served on /stats.
type MonitoringStats struct {
	Sessions    int64   `json:"sessions"`
	Rooms       int64   `json:"rooms"`
	Connections int64   `json:"connections"`
	Messages    uint64  `json:"messages"`
	Errors      uint64  `json:"errors"`
	Dropped     uint64  `json:"dropped"`
	RssMb       uint64  `json:"rss_mb"`
	CPUPercent  float64 `json:"cpu_percent"`
	AllocMemMb  uint64  `json:"alloc_mem_mb"`
	NumGC       uint32  `json:"num_gc"`
	Goroutines  int     `json:"goroutines"`
	Uptime      string  `json:"uptime"`
	SampledAt   string  `json:"sampled_at"`

	Queues map[string]QueueStats `json:"queues,omitempty"`
}

type QueueStats struct {
	Length   int `json:"length"`
	Capacity int `json:"capacity"`
}

// MonitoringManager aggregates relay telemetry.
// Gauges are written by the engine and the transport, process metrics by
// the health worker.
type MonitoringManager struct {
	log       *slog.Logger
	startedAt time.Time

	sessions    atomic.Int64
	rooms       atomic.Int64
	connections atomic.Int64
	messages    atomic.Uint64
	errors      atomic.Uint64
	dropped     atomic.Uint64

	mu      sync.RWMutex
	process processStats
	queues  map[string]QueueStats
}

type processStats struct {
	rssMb      uint64
	cpuPercent float64
	sampledAt  time.Time
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log, startedAt: time.Now(), queues: make(map[string]QueueStats)}
}

func (mm *MonitoringManager) SetSessions(n int)        { mm.sessions.Store(int64(n)) }
func (mm *MonitoringManager) SetRooms(n int)           { mm.rooms.Store(int64(n)) }
func (mm *MonitoringManager) AddConnections(delta int) { mm.connections.Add(int64(delta)) }
func (mm *MonitoringManager) IncrMessages()            { mm.messages.Add(1) }
func (mm *MonitoringManager) IncrErrors()              { mm.errors.Add(1) }
func (mm *MonitoringManager) IncrDropped()             { mm.dropped.Add(1) }

func (mm *MonitoringManager) SetQueue(name string, length, capacity int) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.queues[name] = QueueStats{Length: length, Capacity: capacity}
}

// SampleProcess refreshes the process metrics of the running relay.
func (mm *MonitoringManager) SampleProcess() error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return err
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.process = processStats{
		rssMb:      mem.RSS / 1024 / 1024,
		cpuPercent: cpu,
		sampledAt:  time.Now().UTC(),
	}
	return nil
}

func (mm *MonitoringManager) Snapshot() MonitoringStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.mu.RLock()
	proc := mm.process
	queues := maps.Clone(mm.queues)
	mm.mu.RUnlock()

	stats := MonitoringStats{
		Sessions:    mm.sessions.Load(),
		Rooms:       mm.rooms.Load(),
		Connections: mm.connections.Load(),
		Messages:    mm.messages.Load(),
		Errors:      mm.errors.Load(),
		Dropped:     mm.dropped.Load(),
		RssMb:       proc.rssMb,
		CPUPercent:  proc.cpuPercent,
		AllocMemMb:  m.Alloc / 1024 / 1024,
		NumGC:       m.NumGC,
		Goroutines:  runtime.NumGoroutine(),
		Uptime:      time.Since(mm.startedAt).Truncate(time.Second).String(),
		Queues:      queues,
	}
	if !proc.sampledAt.IsZero() {
		stats.SampledAt = proc.sampledAt.Format(time.RFC3339)
	}
	return stats
}
