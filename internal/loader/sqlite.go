package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wegman-software/osmshred/internal/config"
)

// SQLite loads the tables into a single database file, one transaction
// per table
type SQLite struct {
	cfg *config.Config
	db  *sql.DB
	log *zap.Logger
}

// NewSQLite opens or creates cfg.SQLitePath
func NewSQLite(cfg *config.Config, log *zap.Logger) (*SQLite, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{cfg: cfg, db: db, log: log}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB exposes the database handle
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Load creates the tables if needed, empties or recreates them and
// inserts every row
func (s *SQLite) Load(ctx context.Context) (*Stats, error) {
	if err := checkSources(s.cfg.OutputDir); err != nil {
		return nil, err
	}
	start := time.Now()

	// children go first when clearing so no reference is left dangling
	for i := len(tables) - 1; i >= 0; i-- {
		name := quoteIdent(tables[i].name)
		stmt := "DELETE FROM " + name
		if s.cfg.DropExisting {
			stmt = "DROP TABLE IF EXISTS " + name
		} else if !s.tableExists(ctx, tables[i].name) {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: clear %s", tables[i].name)
		}
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, createTableSQL(t.name, quoteIdent)); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create table %s", t.name)
		}
	}

	stats := &Stats{Rows: make(map[string]int64, len(tables))}
	for _, t := range tables {
		n, err := s.insertTable(ctx, t)
		if err != nil {
			return nil, err
		}
		stats.add(t.name, n)
		s.log.Info("Table loaded", zap.String("table", t.name), zap.Int64("rows", n))
	}

	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, createIndexSQL(idx[0], idx[1], quoteIdent)); err != nil {
			return nil, eris.Wrapf(err, "sqlite: index %s", idx[0])
		}
	}

	s.log.Info("SQLite load complete",
		zap.String("path", s.cfg.SQLitePath),
		zap.Int64("rows", stats.RowsLoaded),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return stats, nil
}

func (s *SQLite) tableExists(ctx context.Context, name string) bool {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	return err == nil && n > 0
}

func (s *SQLite) insertTable(ctx context.Context, t table) (n int64, err error) {
	src, err := openSource(sourcePath(s.cfg.OutputDir, t), t)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSQL(t))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare insert into %s", t.name)
	}
	defer stmt.Close()

	for src.Next() {
		row, err := src.Values()
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: read %s row %d", t.name, src.rows)
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert into %s row %d", t.name, src.rows)
		}
	}
	if err := src.Err(); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: commit %s", t.name)
	}
	return src.rows, nil
}

func insertSQL(t table) string {
	cols := make([]string, len(t.columns))
	for i, c := range t.columns {
		cols[i] = quoteIdent(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(t.name), strings.Join(cols, ", "), placeholders)
}
