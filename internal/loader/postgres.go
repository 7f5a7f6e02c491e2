package loader

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmshred/internal/config"
)

// Pool is the part of pgxpool.Pool the loader uses
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

// Postgres loads the tables with COPY, each phase in parallel
type Postgres struct {
	cfg  *config.Config
	pool Pool
	log  *zap.Logger
}

// NewPostgres connects to the database described by cfg
func NewPostgres(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, eris.Wrap(err, "loader: parse connection string")
	}
	poolConfig.MaxConns = int32(len(children))

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, eris.Wrap(err, "loader: connect to PostgreSQL")
	}
	return NewPostgresWithPool(cfg, pool, log), nil
}

// NewPostgresWithPool uses an existing pool
func NewPostgresWithPool(cfg *config.Config, pool Pool, log *zap.Logger) *Postgres {
	if log == nil {
		log = zap.NewNop()
	}
	return &Postgres{cfg: cfg, pool: pool, log: log}
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) qualify(name string) string {
	return pgx.Identifier{p.cfg.DBSchema, name}.Sanitize()
}

// Load creates the tables if needed, empties or recreates them and copies
// the parent tables, then the child tables
func (p *Postgres) Load(ctx context.Context) (*Stats, error) {
	if err := checkSources(p.cfg.OutputDir); err != nil {
		return nil, err
	}
	start := time.Now()

	if p.cfg.DBSchema != "public" {
		if _, err := p.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{p.cfg.DBSchema}.Sanitize()); err != nil {
			return nil, eris.Wrap(err, "loader: create schema")
		}
	}

	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = p.qualify(t.name)
	}
	all := strings.Join(names, ", ")

	if p.cfg.DropExisting {
		if _, err := p.pool.Exec(ctx, "DROP TABLE IF EXISTS "+all+" CASCADE"); err != nil {
			return nil, eris.Wrap(err, "loader: drop tables")
		}
	}
	for _, t := range tables {
		if _, err := p.pool.Exec(ctx, createTableSQL(t.name, p.qualify)); err != nil {
			return nil, eris.Wrapf(err, "loader: create table %s", t.name)
		}
	}
	if !p.cfg.DropExisting {
		if _, err := p.pool.Exec(ctx, "TRUNCATE "+all); err != nil {
			return nil, eris.Wrap(err, "loader: truncate tables")
		}
	}

	stats := &Stats{Rows: make(map[string]int64, len(tables))}
	for _, phase := range [][]table{parents, children} {
		if err := p.loadPhase(ctx, phase, stats); err != nil {
			return nil, err
		}
	}

	for _, idx := range indexes {
		if _, err := p.pool.Exec(ctx, createIndexSQL(idx[0], idx[1], p.qualify)); err != nil {
			return nil, eris.Wrapf(err, "loader: index %s", idx[0])
		}
	}

	p.log.Info("PostgreSQL load complete",
		zap.String("schema", p.cfg.DBSchema),
		zap.Int64("rows", stats.RowsLoaded),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return stats, nil
}

// loadPhase copies independent tables concurrently
func (p *Postgres) loadPhase(ctx context.Context, phase []table, stats *Stats) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, t := range phase {
		g.Go(func() error {
			n, err := p.copyTable(gctx, t)
			if err != nil {
				return err
			}
			mu.Lock()
			stats.add(t.name, n)
			mu.Unlock()
			p.log.Info("Table loaded", zap.String("table", t.name), zap.Int64("rows", n))
			return nil
		})
	}
	return g.Wait()
}

func (p *Postgres) copyTable(ctx context.Context, t table) (int64, error) {
	src, err := openSource(sourcePath(p.cfg.OutputDir, t), t)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	n, err := p.pool.CopyFrom(ctx, pgx.Identifier{p.cfg.DBSchema, t.name}, t.columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "loader: COPY INTO %s", t.name)
	}
	return n, nil
}
