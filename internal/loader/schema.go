package loader

import (
	"fmt"
	"strings"

	"github.com/wegman-software/osmshred/internal/sink"
)

// columnDefs holds the column definitions of each table. In child tables
// %s is the qualified name of the owning table.
var columnDefs = map[string]string{
	sink.TableNodes: `id BIGINT PRIMARY KEY,
	lat DOUBLE PRECISION NOT NULL,
	lon DOUBLE PRECISION NOT NULL,
	"user" TEXT NOT NULL,
	uid BIGINT NOT NULL,
	version INTEGER NOT NULL,
	changeset BIGINT NOT NULL,
	"timestamp" TEXT NOT NULL`,
	sink.TableWays: `id BIGINT PRIMARY KEY,
	"user" TEXT NOT NULL,
	uid BIGINT NOT NULL,
	version INTEGER NOT NULL,
	changeset BIGINT NOT NULL,
	"timestamp" TEXT NOT NULL`,
	sink.TableNodeTags: `id BIGINT NOT NULL REFERENCES %s (id),
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	type TEXT NOT NULL`,
	sink.TableWayTags: `id BIGINT NOT NULL REFERENCES %s (id),
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	type TEXT NOT NULL`,
	sink.TableWayNodes: `id BIGINT NOT NULL REFERENCES %s (id),
	node_id BIGINT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (id, position)`,
}

var parentOf = map[string]string{
	sink.TableNodeTags: sink.TableNodes,
	sink.TableWayTags:  sink.TableWays,
	sink.TableWayNodes: sink.TableWays,
}

// indexes created once every table is loaded: table -> indexed column
var indexes = [][2]string{
	{sink.TableNodeTags, "id"},
	{sink.TableWayTags, "id"},
	{sink.TableWayNodes, "node_id"},
}

func createTableSQL(name string, qualify func(string) string) string {
	defs := columnDefs[name]
	if parent, ok := parentOf[name]; ok {
		defs = fmt.Sprintf(defs, qualify(parent))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", qualify(name), defs)
}

func createIndexSQL(name, column string, qualify func(string) string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s)", name, column, qualify(name), column)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
