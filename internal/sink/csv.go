package sink

import (
	"encoding/csv"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/wegman-software/osmshred/internal/config"
	"github.com/wegman-software/osmshred/internal/shred"
)

// csvTable is one CSV file with its header already written
type csvTable struct {
	path string
	file *os.File
	w    *csv.Writer
	enc  *csvutil.Encoder
}

func newCSVTable(path string, header any) (*csvTable, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sink: create %s", path)
	}

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = false
	if err := enc.EncodeHeader(header); err != nil {
		f.Close()
		return nil, eris.Wrapf(err, "sink: write header of %s", path)
	}

	return &csvTable{path: path, file: f, w: w, enc: enc}, nil
}

func (t *csvTable) encode(v any) error {
	if err := t.enc.Encode(v); err != nil {
		return eris.Wrapf(err, "sink: write %s", t.path)
	}
	return nil
}

func (t *csvTable) Close() error {
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		t.file.Close()
		return eris.Wrapf(err, "sink: flush %s", t.path)
	}
	if err := t.file.Close(); err != nil {
		return eris.Wrapf(err, "sink: close %s", t.path)
	}
	return nil
}

// CSVWriter writes the five tables as comma-delimited UTF-8 files
type CSVWriter struct {
	nodes, nodeTags, ways, wayTags, wayNodes *csvTable
}

func openCSV(dir string) (*CSVWriter, error) {
	headers := map[string]any{
		TableNodes:    shred.Point{},
		TableNodeTags: shred.Tag{},
		TableWays:     shred.Way{},
		TableWayTags:  shred.Tag{},
		TableWayNodes: shred.WayNode{},
	}

	opened := make([]*csvTable, 0, len(Tables))
	for _, table := range Tables {
		t, err := newCSVTable(Path(dir, config.FormatCSV, table), headers[table])
		if err != nil {
			_ = closeAll(opened)
			return nil, err
		}
		opened = append(opened, t)
	}

	return &CSVWriter{
		nodes:    opened[0],
		nodeTags: opened[1],
		ways:     opened[2],
		wayTags:  opened[3],
		wayNodes: opened[4],
	}, nil
}

func (w *CSVWriter) WritePoint(p *shred.Point) error {
	return w.nodes.encode(p)
}

func (w *CSVWriter) WriteNodeTags(tags []shred.Tag) error {
	for i := range tags {
		if err := w.nodeTags.encode(&tags[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *CSVWriter) WriteWay(way *shred.Way) error {
	return w.ways.encode(way)
}

func (w *CSVWriter) WriteWayTags(tags []shred.Tag) error {
	for i := range tags {
		if err := w.wayTags.encode(&tags[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *CSVWriter) WriteWayNodes(nodes []shred.WayNode) error {
	for i := range nodes {
		if err := w.wayNodes.encode(&nodes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *CSVWriter) Close() error {
	return closeAll([]*csvTable{w.nodes, w.nodeTags, w.ways, w.wayTags, w.wayNodes})
}
