package sink

import (
	"errors"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/rotisserie/eris"

	"github.com/wegman-software/osmshred/internal/config"
	"github.com/wegman-software/osmshred/internal/shred"
)

var (
	tagFields = []arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "key", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "value", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "type", Type: arrow.BinaryTypes.String, Nullable: false},
	}

	parquetSchemas = map[string]*arrow.Schema{
		TableNodes: arrow.NewSchema([]arrow.Field{
			{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
			{Name: "lat", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
			{Name: "lon", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
			{Name: "user", Type: arrow.BinaryTypes.String, Nullable: false},
			{Name: "uid", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
			{Name: "version", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
			{Name: "changeset", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
			{Name: "timestamp", Type: arrow.BinaryTypes.String, Nullable: false},
		}, nil),
		TableNodeTags: arrow.NewSchema(tagFields, nil),
		TableWays: arrow.NewSchema([]arrow.Field{
			{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
			{Name: "user", Type: arrow.BinaryTypes.String, Nullable: false},
			{Name: "uid", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
			{Name: "version", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
			{Name: "changeset", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
			{Name: "timestamp", Type: arrow.BinaryTypes.String, Nullable: false},
		}, nil),
		TableWayTags: arrow.NewSchema(tagFields, nil),
		TableWayNodes: arrow.NewSchema([]arrow.Field{
			{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
			{Name: "node_id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
			{Name: "position", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
		}, nil),
	}
)

// parquetTable buffers rows in a record builder and writes a row group
// every batchSize rows
type parquetTable struct {
	path      string
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
}

func newParquetTable(path string, schema *arrow.Schema, batchSize int) (*parquetTable, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sink: create %s", path)
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, eris.Wrapf(err, "sink: parquet writer for %s", path)
	}

	return &parquetTable{
		path:      path,
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		batchSize: batchSize,
	}, nil
}

func (t *parquetTable) appendInt64(i int, v int64) {
	t.builder.Field(i).(*array.Int64Builder).Append(v)
}

func (t *parquetTable) appendInt32(i int, v int32) {
	t.builder.Field(i).(*array.Int32Builder).Append(v)
}

func (t *parquetTable) appendFloat64(i int, v float64) {
	t.builder.Field(i).(*array.Float64Builder).Append(v)
}

func (t *parquetTable) appendString(i int, v string) {
	t.builder.Field(i).(*array.StringBuilder).Append(v)
}

// rowDone counts a completed row and flushes a full batch
func (t *parquetTable) rowDone() error {
	t.count++
	if t.count >= t.batchSize {
		return t.flush()
	}
	return nil
}

func (t *parquetTable) flush() error {
	if t.count == 0 {
		return nil
	}
	rec := t.builder.NewRecord()
	defer rec.Release()
	t.count = 0
	if err := t.writer.Write(rec); err != nil {
		return eris.Wrapf(err, "sink: write %s", t.path)
	}
	return nil
}

func (t *parquetTable) Close() error {
	defer t.builder.Release()

	if err := t.flush(); err != nil {
		t.writer.Close()
		return err
	}
	if err := t.writer.Close(); err != nil {
		return eris.Wrapf(err, "sink: close %s", t.path)
	}
	// the parquet writer closes its sink itself
	if err := t.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return eris.Wrapf(err, "sink: close %s", t.path)
	}
	return nil
}

// ParquetWriter writes the five tables as zstd-compressed Parquet files
type ParquetWriter struct {
	nodes, nodeTags, ways, wayTags, wayNodes *parquetTable
}

func openParquet(dir string, batchSize int) (*ParquetWriter, error) {
	opened := make([]*parquetTable, 0, len(Tables))
	for _, table := range Tables {
		t, err := newParquetTable(Path(dir, config.FormatParquet, table), parquetSchemas[table], batchSize)
		if err != nil {
			_ = closeAll(opened)
			return nil, err
		}
		opened = append(opened, t)
	}

	return &ParquetWriter{
		nodes:    opened[0],
		nodeTags: opened[1],
		ways:     opened[2],
		wayTags:  opened[3],
		wayNodes: opened[4],
	}, nil
}

func (w *ParquetWriter) WritePoint(p *shred.Point) error {
	t := w.nodes
	t.appendInt64(0, p.ID)
	t.appendFloat64(1, float64(p.Lat))
	t.appendFloat64(2, float64(p.Lon))
	t.appendString(3, p.User)
	t.appendInt64(4, p.UID)
	t.appendInt32(5, int32(p.Version))
	t.appendInt64(6, p.Changeset)
	t.appendString(7, p.Timestamp)
	return t.rowDone()
}

func (w *ParquetWriter) WriteNodeTags(tags []shred.Tag) error {
	return writeTags(w.nodeTags, tags)
}

func (w *ParquetWriter) WriteWay(way *shred.Way) error {
	t := w.ways
	t.appendInt64(0, way.ID)
	t.appendString(1, way.User)
	t.appendInt64(2, way.UID)
	t.appendInt32(3, int32(way.Version))
	t.appendInt64(4, way.Changeset)
	t.appendString(5, way.Timestamp)
	return t.rowDone()
}

func (w *ParquetWriter) WriteWayTags(tags []shred.Tag) error {
	return writeTags(w.wayTags, tags)
}

func (w *ParquetWriter) WriteWayNodes(nodes []shred.WayNode) error {
	t := w.wayNodes
	for _, n := range nodes {
		t.appendInt64(0, n.ID)
		t.appendInt64(1, n.NodeID)
		t.appendInt32(2, int32(n.Position))
		if err := t.rowDone(); err != nil {
			return err
		}
	}
	return nil
}

func (w *ParquetWriter) Close() error {
	return closeAll([]*parquetTable{w.nodes, w.nodeTags, w.ways, w.wayTags, w.wayNodes})
}

func writeTags(t *parquetTable, tags []shred.Tag) error {
	for _, tag := range tags {
		t.appendInt64(0, tag.ID)
		t.appendString(1, tag.Key)
		t.appendString(2, tag.Value)
		t.appendString(3, tag.Type)
		if err := t.rowDone(); err != nil {
			return err
		}
	}
	return nil
}
