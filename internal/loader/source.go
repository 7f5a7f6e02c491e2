package loader

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/wegman-software/osmshred/internal/shred"
	"github.com/wegman-software/osmshred/internal/sink"
)

// table describes one output table: its columns and how a CSV record of
// it becomes a row
type table struct {
	name    string
	columns []string
	decode  func(dec *csvutil.Decoder) ([]any, error)
}

// decodeAs decodes one record into T and flattens it with fn
func decodeAs[T any](fn func(*T) []any) func(*csvutil.Decoder) ([]any, error) {
	return func(dec *csvutil.Decoder) ([]any, error) {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			return nil, err
		}
		return fn(&rec), nil
	}
}

func tagRow(t *shred.Tag) []any {
	return []any{t.ID, t.Key, t.Value, t.Type}
}

var tagColumns = []string{"id", "key", "value", "type"}

// tables in load order; parents come before the tables referencing them
var tables = []table{
	{
		name:    sink.TableNodes,
		columns: []string{"id", "lat", "lon", "user", "uid", "version", "changeset", "timestamp"},
		decode: decodeAs(func(p *shred.Point) []any {
			return []any{p.ID, float64(p.Lat), float64(p.Lon), p.User, p.UID, p.Version, p.Changeset, p.Timestamp}
		}),
	},
	{
		name:    sink.TableWays,
		columns: []string{"id", "user", "uid", "version", "changeset", "timestamp"},
		decode: decodeAs(func(w *shred.Way) []any {
			return []any{w.ID, w.User, w.UID, w.Version, w.Changeset, w.Timestamp}
		}),
	},
	{
		name:    sink.TableNodeTags,
		columns: tagColumns,
		decode:  decodeAs(tagRow),
	},
	{
		name:    sink.TableWayTags,
		columns: tagColumns,
		decode:  decodeAs(tagRow),
	},
	{
		name:    sink.TableWayNodes,
		columns: []string{"id", "node_id", "position"},
		decode: decodeAs(func(n *shred.WayNode) []any {
			return []any{n.ID, n.NodeID, n.Position}
		}),
	},
}

// parents and children split tables into the two load phases
var (
	parents  = tables[:2]
	children = tables[2:]
)

// csvSource streams the rows of one CSV file. It satisfies
// pgx.CopyFromSource and is also driven directly by the SQLite loader.
type csvSource struct {
	path    string
	file    *os.File
	dec     *csvutil.Decoder
	decode  func(*csvutil.Decoder) ([]any, error)
	current []any
	rows    int64
	err     error
}

func openSource(path string, t table) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open %s", path)
	}

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		f.Close()
		if err == io.EOF {
			return nil, eris.Errorf("loader: %s has no header", path)
		}
		return nil, eris.Wrapf(err, "loader: read header of %s", path)
	}

	return &csvSource{path: path, file: f, dec: dec, decode: t.decode}, nil
}

func (s *csvSource) Next() bool {
	if s.err != nil {
		return false
	}
	row, err := s.decode(s.dec)
	if err == io.EOF {
		return false
	}
	if err != nil {
		s.err = eris.Wrapf(err, "loader: decode %s", s.path)
		return false
	}
	s.current = row
	s.rows++
	return true
}

func (s *csvSource) Values() ([]any, error) {
	return s.current, nil
}

func (s *csvSource) Err() error {
	return s.err
}

func (s *csvSource) Close() error {
	return s.file.Close()
}
