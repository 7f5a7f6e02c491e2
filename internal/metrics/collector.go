// Package metrics logs periodic progress and resource usage during a run
// and keeps the Prometheus counters exported at its end.
package metrics

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Snapshot is one sample of system and process resource usage
type Snapshot struct {
	CPUPercent        float64
	ProcessCPUPercent float64
	ProcessRSS        int64
	MemoryUsed        int64
	MemoryPercent     float64
	Timestamp         time.Time
}

// ProgressFunc returns the fields describing the progress of the run
type ProgressFunc func() []zap.Field

// Option configures a Collector
type Option func(*Collector)

// WithClock replaces the wall clock, mostly for tests
func WithClock(clock clockwork.Clock) Option {
	return func(c *Collector) {
		c.clock = clock
	}
}

// WithProgress logs the fields returned by fn with every sample
func WithProgress(fn ProgressFunc) Option {
	return func(c *Collector) {
		c.progress = fn
	}
}

// Collector periodically samples resource usage and logs it together
// with the run progress
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	clock    clockwork.Clock
	proc     *process.Process
	progress ProgressFunc

	mu   sync.RWMutex
	last *Snapshot
}

// NewCollector creates a collector. Intervals below a second fall back
// to 30 seconds.
func NewCollector(interval time.Duration, logger *zap.Logger, opts ...Option) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	c := &Collector{
		interval: interval,
		logger:   logger,
		clock:    clockwork.NewRealClock(),
		proc:     proc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start samples once per interval until ctx is done
func (c *Collector) Start(ctx context.Context) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.Chan():
			c.collect()
		}
	}
}

// Last returns the most recent snapshot, or nil before the first sample
func (c *Collector) Last() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) collect() {
	s := &Snapshot{Timestamp: c.clock.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcessCPUPercent = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			s.ProcessRSS = int64(info.RSS)
		}
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		s.MemoryUsed = int64(vmem.Used)
		s.MemoryPercent = vmem.UsedPercent
	}

	c.mu.Lock()
	c.last = s
	c.mu.Unlock()

	fields := []zap.Field{
		zap.Float64("sys_cpu", s.CPUPercent),
		zap.Float64("proc_cpu", s.ProcessCPUPercent),
		zap.String("proc_rss", FormatBytes(s.ProcessRSS)),
		zap.String("mem_used", FormatBytes(s.MemoryUsed)),
		zap.Float64("mem_pct", s.MemoryPercent),
	}
	if c.progress != nil {
		fields = append(c.progress(), fields...)
	}
	c.logger.Info("Progress", fields...)
}
