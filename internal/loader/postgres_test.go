package loader

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmshred/internal/sink"
)

var wantRows = map[string]int64{
	sink.TableNodes:    2,
	sink.TableNodeTags: 3,
	sink.TableWays:     1,
	sink.TableWayTags:  1,
	sink.TableWayNodes: 3,
}

func expectCreateTables(mock pgxmock.PgxPoolIface, schema string) {
	for _, t := range tables {
		mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s"."%s" (`, schema, t.name))).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
}

func expectCopies(mock pgxmock.PgxPoolIface, schema string) {
	for _, t := range tables {
		mock.ExpectCopyFrom(pgx.Identifier{schema, t.name}, t.columns).WillReturnResult(wantRows[t.name])
	}
}

func expectIndexes(mock pgxmock.PgxPoolIface) {
	for _, idx := range indexes {
		mock.ExpectExec(regexp.QuoteMeta(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s_idx", idx[0], idx[1]))).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
}

func TestPostgresLoad(t *testing.T) {
	cfg := testConfig(t)
	writeTables(t, cfg.OutputDir, false)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(false)

	expectCreateTables(mock, "public")
	mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE "public"."nodes", "public"."ways", "public"."nodes_tags"`)).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	expectCopies(mock, "public")
	expectIndexes(mock)

	stats, err := NewPostgresWithPool(cfg, mock, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wantRows, stats.Rows)
	assert.Equal(t, int64(10), stats.RowsLoaded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadDropExistingInSchema(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBSchema = "osm"
	cfg.DropExisting = true
	writeTables(t, cfg.OutputDir, false)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(false)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "osm"`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "osm"."nodes", "osm"."ways"`)).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	expectCreateTables(mock, "osm")
	expectCopies(mock, "osm")
	expectIndexes(mock)

	stats, err := NewPostgresWithPool(cfg, mock, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.RowsLoaded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadCopyError(t *testing.T) {
	cfg := testConfig(t)
	writeTables(t, cfg.OutputDir, false)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(false)

	expectCreateTables(mock, "public")
	mock.ExpectExec("TRUNCATE").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"public", sink.TableNodes}, tables[0].columns).
		WillReturnError(fmt.Errorf("permission denied"))
	mock.ExpectCopyFrom(pgx.Identifier{"public", sink.TableWays}, tables[1].columns).WillReturnResult(1)

	_, err = NewPostgresWithPool(cfg, mock, nil).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO nodes")
}

func TestPostgresLoadCreateError(t *testing.T) {
	cfg := testConfig(t)
	writeTables(t, cfg.OutputDir, false)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(fmt.Errorf("boom"))

	_, err = NewPostgresWithPool(cfg, mock, nil).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create table nodes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadMissingFiles(t *testing.T) {
	cfg := testConfig(t)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresWithPool(cfg, mock, nil).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run shred first")
	assert.NoError(t, mock.ExpectationsWereMet())
}
