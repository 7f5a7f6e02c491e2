// Package pipeline drives one shredding run: it streams the input,
// shreds each node and way, optionally validates it and routes the
// records to the per-table sinks.
package pipeline

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wegman-software/osmshred/internal/config"
	"github.com/wegman-software/osmshred/internal/metrics"
	"github.com/wegman-software/osmshred/internal/normalize"
	"github.com/wegman-software/osmshred/internal/osmstream"
	"github.com/wegman-software/osmshred/internal/shred"
	"github.com/wegman-software/osmshred/internal/sink"
	"github.com/wegman-software/osmshred/internal/validate"
)

// Stats summarizes a run
type Stats struct {
	Elements    int64
	Nodes       int64
	Ways        int64
	Records     map[string]int64         // by table name
	Diagnostics map[normalize.Kind]int64 // values left unchanged
	BytesRead   int64
	Duration    time.Duration
}

// Option configures a Driver
type Option func(*Driver)

// WithLogger sets the logger used by the run and the normalizer
func WithLogger(log *zap.Logger) Option {
	return func(d *Driver) {
		d.log = log
	}
}

// WithClock replaces the wall clock
func WithClock(clock clockwork.Clock) Option {
	return func(d *Driver) {
		d.clock = clock
	}
}

// WithCounters records the run into c instead of a private set
func WithCounters(c *metrics.Counters) Option {
	return func(d *Driver) {
		d.counters = c
	}
}

// Driver runs the shredding pipeline for one input file
type Driver struct {
	cfg      *config.Config
	log      *zap.Logger
	clock    clockwork.Clock
	counters *metrics.Counters

	elements atomic.Int64
}

// New creates a driver for cfg
func New(cfg *config.Config, opts ...Option) *Driver {
	d := &Driver{
		cfg:   cfg,
		log:   zap.NewNop(),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.counters == nil {
		d.counters = metrics.NewCounters()
	}
	return d
}

// Counters returns the series the run records into
func (d *Driver) Counters() *metrics.Counters {
	return d.counters
}

// Run shreds the whole input. It stops at the first malformed element,
// schema violation or write failure; the stream and the sinks are closed
// on every path and their close errors are combined with the result.
func (d *Driver) Run(ctx context.Context) (stats *Stats, err error) {
	start := d.clock.Now()
	stats = &Stats{
		Records:     make(map[string]int64, len(sink.Tables)),
		Diagnostics: make(map[normalize.Kind]int64),
	}

	rules := normalize.DefaultRules()
	if d.cfg.RulesFile != "" {
		if rules, err = normalize.LoadRules(d.cfg.RulesFile); err != nil {
			return nil, err
		}
	}

	norm, err := normalize.New(rules, d.log, normalize.WithObserver(func(diag normalize.Diagnostic) {
		stats.Diagnostics[diag.Kind]++
		d.counters.AddDiagnostic(string(diag.Kind))
	}))
	if err != nil {
		return nil, err
	}

	var validator *validate.Validator
	if d.cfg.Validate {
		if validator, err = validate.New(); err != nil {
			return nil, err
		}
	}

	stream, err := osmstream.Open(ctx, d.cfg.InputFile, osmstream.DefaultKinds...)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, stream.Close())
	}()

	w, err := sink.Open(d.cfg.OutputDir, d.cfg.Format, d.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, w.Close())
	}()

	if d.cfg.MetricsInterval > 0 {
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		done := make(chan struct{})
		// the collector reads the stream, so it must stop before the
		// stream is closed
		defer func() {
			cancelMetrics()
			<-done
		}()

		tracker := NewProgressTracker(fileSize(d.cfg.InputFile), d.clock)
		collector := metrics.NewCollector(d.cfg.MetricsInterval, d.log,
			metrics.WithClock(d.clock),
			metrics.WithProgress(func() []zap.Field {
				return tracker.Calculate(d.elements.Load(), stream.BytesRead()).Fields()
			}),
		)
		go func() {
			defer close(done)
			collector.Start(metricsCtx)
		}()
	}

	d.log.Info("Shredding started",
		zap.String("input", d.cfg.InputFile),
		zap.String("output_dir", d.cfg.OutputDir),
		zap.String("format", d.cfg.Format),
		zap.Bool("validate", d.cfg.Validate))

	shredder := shred.New(norm)
	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		shape, ok := shredder.Shred(stream.Object())
		if !ok {
			continue
		}
		if validator != nil {
			if err := validator.Validate(shape); err != nil {
				return nil, err
			}
		}
		if err := d.write(w, shape, stats); err != nil {
			return nil, err
		}

		stats.Elements++
		d.elements.Add(1)
		d.counters.AddElement()
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats.BytesRead = stream.BytesRead()
	stats.Duration = d.clock.Since(start)
	d.counters.SetBytesRead(stats.BytesRead)

	d.log.Info("Shredding complete",
		zap.Int64("nodes", stats.Nodes),
		zap.Int64("ways", stats.Ways),
		zap.Int64("node_tags", stats.Records[sink.TableNodeTags]),
		zap.Int64("way_tags", stats.Records[sink.TableWayTags]),
		zap.Int64("way_nodes", stats.Records[sink.TableWayNodes]),
		zap.Int64("street_warnings", stats.Diagnostics[normalize.KindStreetType]),
		zap.Int64("phone_warnings", stats.Diagnostics[normalize.KindPhone]),
		zap.String("read", metrics.FormatBytes(stats.BytesRead)),
		zap.Duration("duration", stats.Duration.Round(time.Millisecond)))

	if d.cfg.MetricsFile != "" {
		if err := d.counters.WriteTextfile(d.cfg.MetricsFile); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// write routes the records of one shape to their sinks
func (d *Driver) write(w sink.Writer, shape *shred.Shape, stats *Stats) error {
	if shape.Way != nil {
		if err := w.WriteWay(shape.Way); err != nil {
			return err
		}
		if err := w.WriteWayNodes(shape.WayNodes); err != nil {
			return err
		}
		if err := w.WriteWayTags(shape.WayTags); err != nil {
			return err
		}
		stats.Ways++
		d.count(stats, sink.TableWays, 1)
		d.count(stats, sink.TableWayNodes, len(shape.WayNodes))
		d.count(stats, sink.TableWayTags, len(shape.WayTags))
		return nil
	}

	if shape.Node == nil {
		return eris.New("pipeline: shape has neither node nor way")
	}
	if err := w.WritePoint(shape.Node); err != nil {
		return err
	}
	if err := w.WriteNodeTags(shape.NodeTags); err != nil {
		return err
	}
	stats.Nodes++
	d.count(stats, sink.TableNodes, 1)
	d.count(stats, sink.TableNodeTags, len(shape.NodeTags))
	return nil
}

func (d *Driver) count(stats *Stats, table string, n int) {
	stats.Records[table] += int64(n)
	d.counters.AddRecords(table, n)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
