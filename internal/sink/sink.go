// Package sink writes shredded records to one file per record kind.
package sink

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"

	"github.com/wegman-software/osmshred/internal/config"
	"github.com/wegman-software/osmshred/internal/shred"
)

// Table names, also used as file base names and database table names
const (
	TableNodes    = "nodes"
	TableNodeTags = "nodes_tags"
	TableWays     = "ways"
	TableWayTags  = "ways_tags"
	TableWayNodes = "ways_nodes"
)

// Tables lists every table in parent-before-child order
var Tables = []string{TableNodes, TableNodeTags, TableWays, TableWayTags, TableWayNodes}

// Writer receives the records of each kind
type Writer interface {
	WritePoint(p *shred.Point) error
	WriteNodeTags(tags []shred.Tag) error
	WriteWay(w *shred.Way) error
	WriteWayTags(tags []shred.Tag) error
	WriteWayNodes(nodes []shred.WayNode) error
	// Close flushes and closes every file, reporting all failures
	Close() error
}

// Path returns the file a table is written to
func Path(dir, format, table string) string {
	return filepath.Join(dir, table+"."+format)
}

// Paths returns the files of every table in Tables order
func Paths(dir, format string) []string {
	paths := make([]string, len(Tables))
	for i, table := range Tables {
		paths[i] = Path(dir, format, table)
	}
	return paths
}

// Open creates the output directory and the five table files in it
func Open(dir, format string, batchSize int) (Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, eris.Wrapf(err, "sink: create output directory %s", dir)
	}

	switch format {
	case config.FormatCSV:
		w, err := openCSV(dir)
		if err != nil {
			return nil, err
		}
		return w, nil
	case config.FormatParquet:
		w, err := openParquet(dir, batchSize)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	return nil, eris.Errorf("sink: unsupported format %q", format)
}

type closer interface {
	Close() error
}

// closeAll closes every opened table and combines their errors
func closeAll[T closer](tables []T) error {
	var err error
	for _, t := range tables {
		err = multierr.Append(err, t.Close())
	}
	return err
}
