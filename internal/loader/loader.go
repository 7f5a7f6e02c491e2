// Package loader loads the five shredded CSV files into PostgreSQL or
// SQLite, owners before the tags and memberships that reference them.
package loader

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wegman-software/osmshred/internal/config"
	"github.com/wegman-software/osmshred/internal/sink"
)

// Stats holds rows loaded per table
type Stats struct {
	Rows       map[string]int64
	RowsLoaded int64
}

func (s *Stats) add(table string, n int64) {
	s.Rows[table] = n
	s.RowsLoaded += n
}

// Loader loads the files of cfg.OutputDir into a database
type Loader interface {
	Load(ctx context.Context) (*Stats, error)
	Close() error
}

// New connects the loader selected by cfg.Driver
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (Loader, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		l, err := NewPostgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.DriverSQLite:
		l, err := NewSQLite(cfg, log)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, eris.Errorf("loader: unsupported driver %q", cfg.Driver)
}

// checkSources fails early when a table file is missing
func checkSources(dir string) error {
	for _, path := range sink.Paths(dir, config.FormatCSV) {
		if _, err := os.Stat(path); err != nil {
			return eris.Wrapf(err, "loader: missing %s, run shred first", path)
		}
	}
	return nil
}

func sourcePath(dir string, t table) string {
	return sink.Path(dir, config.FormatCSV, t.name)
}
