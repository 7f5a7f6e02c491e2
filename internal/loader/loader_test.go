package loader

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmshred/internal/config"
	"github.com/wegman-software/osmshred/internal/shred"
	"github.com/wegman-software/osmshred/internal/sink"
)

// writeTables shreds a small fixed data set into dir as CSV
func writeTables(t *testing.T, dir string, orphanTag bool) {
	t.Helper()
	w, err := sink.Open(dir, config.FormatCSV, 0)
	require.NoError(t, err)

	for _, p := range []shred.Point{
		{ID: 1, Lat: 37.1, Lon: -121.6, User: "alice", UID: 7, Version: 2, Changeset: 10, Timestamp: "2016-01-02T03:04:05Z"},
		{ID: 2, Lat: 37.2, Lon: -121.65, User: "bob", UID: 8, Version: 1, Changeset: 11, Timestamp: ""},
	} {
		require.NoError(t, w.WritePoint(&p))
	}

	nodeTags := []shred.Tag{
		{ID: 1, Key: "addr:street", Value: "Main Avenue", Type: "addr"},
		{ID: 1, Key: "phone", Value: "+1 408-555-1234", Type: "node"},
		{ID: 2, Key: "name", Value: "Joe's, \"Best\" Cafe", Type: "node"},
	}
	if orphanTag {
		nodeTags = append(nodeTags, shred.Tag{ID: 999, Key: "name", Value: "nowhere", Type: "node"})
	}
	require.NoError(t, w.WriteNodeTags(nodeTags))

	require.NoError(t, w.WriteWay(&shred.Way{ID: 100, User: "alice", UID: 7, Version: 3, Changeset: 12, Timestamp: "2016-01-02T03:04:07Z"}))
	require.NoError(t, w.WriteWayNodes([]shred.WayNode{
		{ID: 100, NodeID: 1, Position: 0},
		{ID: 100, NodeID: 2, Position: 1},
		{ID: 100, NodeID: 1, Position: 2},
	}))
	require.NoError(t, w.WriteWayTags([]shred.Tag{{ID: 100, Key: "highway", Value: "residential", Type: "way"}}))
	require.NoError(t, w.Close())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "osm.db")
	return cfg
}
