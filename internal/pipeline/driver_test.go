package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wegman-software/osmshred/internal/config"
	"github.com/wegman-software/osmshred/internal/normalize"
	"github.com/wegman-software/osmshred/internal/osmstream"
	"github.com/wegman-software/osmshred/internal/sink"
	"github.com/wegman-software/osmshred/internal/validate"
)

const sampleOSM = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="37.1" lon="-121.6" version="2" changeset="10" timestamp="2016-01-02T03:04:05Z" user="alice" uid="7">
    <tag k="addr:street" v="Main Ave"/>
    <tag k="phone" v="(408) 555-1234"/>
  </node>
  <node id="2" lat="37.2" lon="-121.65" version="1" changeset="11" timestamp="2016-01-02T03:04:06Z" user="bob" uid="8">
    <tag k="addr:street" v="Stevens Creek Blvd"/>
    <tag k="contact:phone" v="call us"/>
  </node>
  <way id="100" version="3" changeset="12" timestamp="2016-01-02T03:04:07Z" user="alice" uid="7">
    <nd ref="1"/>
    <nd ref="2"/>
    <nd ref="1"/>
    <tag k="highway" v="residential"/>
    <tag k="name" v="Elm Dr"/>
  </way>
  <relation id="500" version="1" changeset="13">
    <member type="way" ref="100" role="outer"/>
    <tag k="type" v="multipolygon"/>
  </relation>
</osm>`

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.osm")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testConfig(t *testing.T, input string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.InputFile = input
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.MetricsInterval = 0
	return cfg
}

func readTable(t *testing.T, cfg *config.Config, table string) string {
	t.Helper()
	b, err := os.ReadFile(sink.Path(cfg.OutputDir, cfg.Format, table))
	require.NoError(t, err)
	return string(b)
}

func TestRunWritesFiveTables(t *testing.T) {
	cfg := testConfig(t, writeInput(t, sampleOSM))

	stats, err := New(cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t,
		"id,lat,lon,user,uid,version,changeset,timestamp\n"+
			"1,37.1,-121.6,alice,7,2,10,2016-01-02T03:04:05Z\n"+
			"2,37.2,-121.65,bob,8,1,11,2016-01-02T03:04:06Z\n",
		readTable(t, cfg, sink.TableNodes))
	assert.Equal(t,
		"id,key,value,type\n"+
			"1,addr:street,Main Avenue,addr\n"+
			"1,phone,+1 408-555-1234,node\n"+
			"2,addr:street,Stevens Creek Blvd,addr\n"+
			"2,contact:phone,call us,contact\n",
		readTable(t, cfg, sink.TableNodeTags))
	assert.Equal(t,
		"id,user,uid,version,changeset,timestamp\n"+
			"100,alice,7,3,12,2016-01-02T03:04:07Z\n",
		readTable(t, cfg, sink.TableWays))
	assert.Equal(t,
		"id,key,value,type\n"+
			"100,highway,residential,way\n"+
			"100,name,Elm Dr,way\n",
		readTable(t, cfg, sink.TableWayTags))
	assert.Equal(t,
		"id,node_id,position\n100,1,0\n100,2,1\n100,1,2\n",
		readTable(t, cfg, sink.TableWayNodes))

	assert.Equal(t, int64(3), stats.Elements)
	assert.Equal(t, int64(2), stats.Nodes)
	assert.Equal(t, int64(1), stats.Ways)
	assert.Equal(t, map[string]int64{
		sink.TableNodes:    2,
		sink.TableNodeTags: 4,
		sink.TableWays:     1,
		sink.TableWayTags:  2,
		sink.TableWayNodes: 3,
	}, stats.Records)
	assert.Equal(t, map[normalize.Kind]int64{
		normalize.KindStreetType: 1,
		normalize.KindPhone:      1,
	}, stats.Diagnostics)

	info, err := os.Stat(cfg.InputFile)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), stats.BytesRead)
}

func TestRunLogsDiagnostics(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := testConfig(t, writeInput(t, sampleOSM))

	_, err := New(cfg, WithLogger(zap.New(core))).Run(context.Background())
	require.NoError(t, err)

	warnings := logs.FilterMessage("Unrecognized value left unchanged").All()
	require.Len(t, warnings, 2)
	assert.Equal(t, "Stevens Creek Blvd", warnings[0].ContextMap()["value"])
	assert.Equal(t, "call us", warnings[1].ContextMap()["value"])
	assert.Equal(t, 1, logs.FilterMessage("Shredding complete").Len())
}

func TestRunIsDeterministic(t *testing.T) {
	input := writeInput(t, sampleOSM)
	first := testConfig(t, input)
	second := testConfig(t, input)

	_, err := New(first).Run(context.Background())
	require.NoError(t, err)
	_, err = New(second).Run(context.Background())
	require.NoError(t, err)

	for _, table := range sink.Tables {
		assert.Equal(t, readTable(t, first, table), readTable(t, second, table), table)
	}
}

func TestRunMissingMetadataWritesZeros(t *testing.T) {
	cfg := testConfig(t, writeInput(t, `<osm><node id="5" lat="37.123" lon="-121.6"/></osm>`))

	_, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"id,lat,lon,user,uid,version,changeset,timestamp\n5,37.123,-121.6,,0,0,0,\n",
		readTable(t, cfg, sink.TableNodes))

	cfg.OutputDir = filepath.Join(t.TempDir(), "validated")
	cfg.Validate = true
	_, err = New(cfg).Run(context.Background())
	assert.True(t, errors.Is(err, validate.ErrSchemaViolation))
}

func TestRunValidationAborts(t *testing.T) {
	input := writeInput(t, `<osm>
  <node id="1" lat="37.1" lon="-121.6" version="1" changeset="1" timestamp="2016-01-02T03:04:05Z" user="a" uid="1"/>
  <node id="2" lat="95" lon="-121.6" version="1" changeset="1" timestamp="2016-01-02T03:04:05Z" user="a" uid="1"/>
  <node id="3" lat="37.3" lon="-121.6" version="1" changeset="1" timestamp="2016-01-02T03:04:05Z" user="a" uid="1"/>
</osm>`)
	cfg := testConfig(t, input)
	cfg.Validate = true

	stats, err := New(cfg).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, stats)
	assert.True(t, errors.Is(err, validate.ErrSchemaViolation))

	var violation *validate.SchemaViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, int64(2), violation.ElementID)
	assert.Equal(t, "node", violation.Kind)

	// the sinks were flushed and closed with the rows written before the abort
	assert.Equal(t,
		"id,lat,lon,user,uid,version,changeset,timestamp\n"+
			"1,37.1,-121.6,a,1,1,1,2016-01-02T03:04:05Z\n",
		readTable(t, cfg, sink.TableNodes))
}

func TestRunWithoutValidationKeepsOutOfRangeValues(t *testing.T) {
	input := writeInput(t, `<osm>
  <node id="2" lat="95" lon="-121.6" version="1" changeset="1" timestamp="2016-01-02T03:04:05Z" user="a" uid="1"/>
</osm>`)
	cfg := testConfig(t, input)

	stats, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Nodes)
}

func TestRunMalformedInput(t *testing.T) {
	for name, input := range map[string]string{
		"unclosed tag": `<osm><node id="1" lat="1" lon="2"><tag k="a" v="b"></node></osm>`,
		"empty":        "",
		"plain text":   "not xml",
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t, writeInput(t, input))

			stats, err := New(cfg).Run(context.Background())
			require.Error(t, err)
			assert.Nil(t, stats)
			assert.True(t, eris.Is(err, osmstream.ErrMalformedInput))
		})
	}
}

func TestRunMissingInput(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing.osm"))

	_, err := New(cfg).Run(context.Background())
	require.Error(t, err)

	_, statErr := os.Stat(cfg.OutputDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunCancelled(t *testing.T) {
	cfg := testConfig(t, writeInput(t, sampleOSM))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(cfg).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunWithRulesFile(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte("street_mapping:\n  Blvd: Boulevard\n"), 0644))

	cfg := testConfig(t, writeInput(t, sampleOSM))
	cfg.RulesFile = rules

	stats, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, readTable(t, cfg, sink.TableNodeTags), "2,addr:street,Stevens Creek Boulevard,addr\n")
	// the file replaces the whole mapping, so Ave is no longer expanded
	assert.Contains(t, readTable(t, cfg, sink.TableNodeTags), "1,addr:street,Main Ave,addr\n")
	assert.Equal(t, int64(1), stats.Diagnostics[normalize.KindStreetType])
}

func TestRunWritesMetricsFile(t *testing.T) {
	cfg := testConfig(t, writeInput(t, sampleOSM))
	cfg.MetricsFile = filepath.Join(t.TempDir(), "osmshred.prom")

	_, err := New(cfg).Run(context.Background())
	require.NoError(t, err)

	content, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `osmshred_records_total{kind="nodes"} 2`)
	assert.Contains(t, string(content), `osmshred_diagnostics_total{kind="phone"} 1`)
	assert.Contains(t, string(content), "osmshred_elements_total 3")
}

func TestRunParquet(t *testing.T) {
	cfg := testConfig(t, writeInput(t, sampleOSM))
	cfg.Format = config.FormatParquet
	cfg.BatchSize = 2

	stats, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Records[sink.TableWayNodes])

	for _, path := range sink.Paths(cfg.OutputDir, cfg.Format) {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size(), path)
	}
}

func TestRunWithProgressLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := testConfig(t, writeInput(t, sampleOSM))
	cfg.MetricsInterval = time.Hour

	stats, err := New(cfg, WithLogger(zap.New(core))).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Elements)

	// the collector has already stopped when Run returns
	assert.Equal(t, 1, logs.FilterMessage("Metrics collection stopped").Len())
}
