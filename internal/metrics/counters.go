package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Counters holds the per-run Prometheus series. Each run gets its own
// registry so repeated runs in one process do not collide.
type Counters struct {
	registry    *prometheus.Registry
	elements    prometheus.Counter
	records     *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	bytesRead   prometheus.Gauge
}

// NewCounters registers the run series on a fresh registry
func NewCounters() *Counters {
	c := &Counters{
		registry: prometheus.NewRegistry(),
		elements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "osmshred_elements_total",
			Help: "Nodes and ways shredded.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "osmshred_records_total",
			Help: "Records written, by output table.",
		}, []string{"kind"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "osmshred_diagnostics_total",
			Help: "Values left unchanged by normalization, by kind.",
		}, []string{"kind"}),
		bytesRead: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "osmshred_input_bytes_read",
			Help: "Bytes of the input file consumed.",
		}),
	}
	c.registry.MustRegister(c.elements, c.records, c.diagnostics, c.bytesRead)
	return c
}

func (c *Counters) AddElement() {
	c.elements.Inc()
}

func (c *Counters) AddRecords(kind string, n int) {
	if n > 0 {
		c.records.WithLabelValues(kind).Add(float64(n))
	}
}

func (c *Counters) AddDiagnostic(kind string) {
	c.diagnostics.WithLabelValues(kind).Inc()
}

func (c *Counters) SetBytesRead(n int64) {
	c.bytesRead.Set(float64(n))
}

// Registry exposes the underlying registry
func (c *Counters) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes the series in the node_exporter textfile format
func (c *Counters) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return eris.Wrapf(err, "metrics: write %s", path)
	}
	return nil
}
