package pipeline

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/wegman-software/osmshred/internal/metrics"
)

// ProgressTracker estimates how far a run is through its input file
type ProgressTracker struct {
	totalBytes int64
	clock      clockwork.Clock
	startTime  time.Time
}

// NewProgressTracker starts tracking a source of totalBytes bytes.
// A non-positive total disables the percentage and ETA.
func NewProgressTracker(totalBytes int64, clock clockwork.Clock) *ProgressTracker {
	return &ProgressTracker{
		totalBytes: totalBytes,
		clock:      clock,
		startTime:  clock.Now(),
	}
}

// Progress holds current progress information
type Progress struct {
	Elements   int64
	BytesRead  int64
	Percentage float64
	Elapsed    time.Duration
	ETA        time.Duration
	Throughput float64 // elements per second
}

// Calculate returns progress given the elements shredded and the source
// bytes consumed so far
func (p *ProgressTracker) Calculate(elements, bytesRead int64) Progress {
	elapsed := p.clock.Since(p.startTime)

	var percentage float64
	var eta time.Duration
	if p.totalBytes > 0 && bytesRead > 0 {
		percentage = float64(bytesRead) / float64(p.totalBytes) * 100
		if percentage < 100 && elapsed > 0 {
			bytesPerSecond := float64(bytesRead) / elapsed.Seconds()
			eta = time.Duration(float64(p.totalBytes-bytesRead)/bytesPerSecond) * time.Second
		}
	}

	var throughput float64
	if elapsed > 0 {
		throughput = float64(elements) / elapsed.Seconds()
	}

	return Progress{
		Elements:   elements,
		BytesRead:  bytesRead,
		Percentage: percentage,
		Elapsed:    elapsed.Round(time.Second),
		ETA:        eta.Round(time.Second),
		Throughput: throughput,
	}
}

// Fields renders p for a progress log line
func (p Progress) Fields() []zap.Field {
	return []zap.Field{
		zap.Int64("elements", p.Elements),
		zap.String("read", metrics.FormatBytes(p.BytesRead)),
		zap.String("pct", formatPercent(p.Percentage)),
		zap.String("rate", metrics.FormatThroughput(p.Throughput)),
		zap.String("eta", metrics.FormatETA(p.ETA)),
		zap.Duration("elapsed", p.Elapsed),
	}
}

func formatPercent(pct float64) string {
	if pct <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", pct)
}
