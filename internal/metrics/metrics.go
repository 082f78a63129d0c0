// Package metrics exposes Prometheus gauges/histograms for the board
// server plus gopsutil-derived system stats, grounded on
// adred-codev-ws_poc's internal/metrics package (promauto constructors,
// a single struct of pre-registered collectors) and its system.go
// (gopsutil cpu.Percent with an exponential moving average), narrowed from
// WebSocket-connection counters to board/presence/agent counters.
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Metrics holds every collector the board server registers.
type Metrics struct {
	BoardsActive       prometheus.Gauge
	SubscribersActive  prometheus.Gauge
	PresenceEntries    prometheus.Gauge
	ObjectWrites       *prometheus.CounterVec
	AgentTurns         prometheus.Counter
	AgentTurnLatency   prometheus.Histogram
	AgentRunLatency    prometheus.Histogram
	AgentActionsTotal  *prometheus.CounterVec
	AgentRunFailures   *prometheus.CounterVec
	SystemCPUPercent   prometheus.Gauge
	SystemMemoryBytes  prometheus.Gauge
	SystemGoroutines   prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// New returns the process-wide collector set, registering it with the
// default Prometheus registry on the first call; later calls return the
// same set.
func New() *Metrics {
	defaultOnce.Do(func() { defaultMetrics = newMetrics() })
	return defaultMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		BoardsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "collabboard_boards_active",
			Help: "Number of board hubs currently live in memory.",
		}),
		SubscribersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "collabboard_subscribers_active",
			Help: "Number of live WebSocket subscriptions across all boards.",
		}),
		PresenceEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "collabboard_presence_entries",
			Help: "Number of live (non-display-stale) presence entries.",
		}),
		ObjectWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "collabboard_object_writes_total",
			Help: "Object writes processed, labeled by kind (added, modified, removed).",
		}, []string{"kind"}),
		AgentTurns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "collabboard_agent_turns_total",
			Help: "Total LLM turns taken across all agent invocations.",
		}),
		AgentTurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "collabboard_agent_turn_latency_seconds",
			Help:    "Latency of a single agent-executor LLM turn.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}),
		AgentRunLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "collabboard_agent_run_latency_seconds",
			Help:    "Latency of a complete agent invocation (all turns plus commit).",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 240},
		}),
		AgentActionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "collabboard_agent_actions_total",
			Help: "Agent tool calls processed, labeled by tool name.",
		}, []string{"tool"}),
		AgentRunFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "collabboard_agent_run_failures_total",
			Help: "Agent invocations that ended in failure, labeled by reason.",
		}, []string{"reason"}),
		SystemCPUPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "collabboard_system_cpu_percent",
			Help: "Smoothed host CPU usage percentage.",
		}),
		SystemMemoryBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "collabboard_system_heap_alloc_bytes",
			Help: "Go runtime heap allocation in bytes.",
		}),
		SystemGoroutines: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "collabboard_system_goroutines",
			Help: "Number of live goroutines.",
		}),
	}
}

// SystemSampler periodically refreshes the CPU/memory/goroutine gauges.
// Grounded on the pack's SystemMetrics.updateCPUMetrics: gopsutil's
// cpu.Percent blocking sample smoothed with an exponential moving average
// to avoid single-sample spikes.
type SystemSampler struct {
	m *Metrics

	mu         sync.Mutex
	cpuPercent float64
}

func NewSystemSampler(m *Metrics) *SystemSampler {
	return &SystemSampler{m: m}
}

// Run samples every interval until stop is closed. Meant to be started as its
// own goroutine; cpu.Percent blocks for the sample window, so it is not
// called on a hot path.
func (s *SystemSampler) Run(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *SystemSampler) sampleOnce() {
	percents, err := cpu.Percent(0, false)
	if err == nil && len(percents) > 0 {
		s.mu.Lock()
		if s.cpuPercent == 0 {
			s.cpuPercent = percents[0]
		} else {
			const alpha = 0.3
			s.cpuPercent = alpha*percents[0] + (1-alpha)*s.cpuPercent
		}
		current := s.cpuPercent
		s.mu.Unlock()
		s.m.SystemCPUPercent.Set(current)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	s.m.SystemMemoryBytes.Set(float64(mem.HeapAlloc))
	s.m.SystemGoroutines.Set(float64(runtime.NumGoroutine()))
}
