package shred

import (
	"testing"
	"time"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmshred/internal/normalize"
)

// identity leaves every value as is
type identity struct{}

func (identity) StreetName(name string) string { return name }
func (identity) Phone(phone string) string     { return phone }

func newShredder(t *testing.T) *Shredder {
	t.Helper()
	n, err := normalize.New(normalize.DefaultRules(), nil)
	require.NoError(t, err)
	return New(n)
}

func TestShredPoint(t *testing.T) {
	node := &osm.Node{
		ID:          1,
		Lat:         37.1,
		Lon:         -121.6,
		User:        "alice",
		UserID:      7,
		Version:     2,
		ChangesetID: 10,
		Timestamp:   time.Date(2016, 1, 2, 3, 4, 5, 0, time.UTC),
		Tags:        osm.Tags{{Key: "addr:street", Value: "Main Ave"}},
	}

	shape, ok := newShredder(t).Shred(node)
	require.True(t, ok)
	assert.Equal(t, "node", shape.Kind())
	assert.Nil(t, shape.Way)

	require.NotNil(t, shape.Node)
	assert.Equal(t, Point{
		ID:        1,
		Lat:       37.1,
		Lon:       -121.6,
		User:      "alice",
		UID:       7,
		Version:   2,
		Changeset: 10,
		Timestamp: "2016-01-02T03:04:05Z",
	}, *shape.Node)

	lat, _ := shape.Node.Lat.MarshalText()
	lon, _ := shape.Node.Lon.MarshalText()
	assert.Equal(t, "37.1", string(lat))
	assert.Equal(t, "-121.6", string(lon))

	require.Len(t, shape.NodeTags, 1)
	assert.Equal(t, Tag{ID: 1, Key: "addr:street", Value: "Main Avenue", Type: "addr"}, shape.NodeTags[0])
}

func TestShredWayPositions(t *testing.T) {
	refs := []osm.NodeID{40, 10, 30, 10, 20}
	way := &osm.Way{ID: 100, Version: 1}
	for _, r := range refs {
		way.Nodes = append(way.Nodes, osm.WayNode{ID: r})
	}

	shape, ok := newShredder(t).Shred(way)
	require.True(t, ok)
	assert.Equal(t, "way", shape.Kind())
	assert.Equal(t, int64(100), shape.ID())

	require.Len(t, shape.WayNodes, len(refs))
	for i, m := range shape.WayNodes {
		assert.Equal(t, int64(100), m.ID)
		assert.Equal(t, int64(refs[i]), m.NodeID)
		assert.Equal(t, i, m.Position)
	}
	assert.Empty(t, shape.WayTags)
}

func TestShredWayTags(t *testing.T) {
	way := &osm.Way{
		ID: 5,
		Tags: osm.Tags{
			{Key: "name", Value: "Depot"},
			{Key: "phone", Value: "(408) 555-1212"},
			{Key: "contact:phone", Value: "408 555 1313"},
			{Key: "addr:street", Value: "Monterey Hwy"},
		},
	}

	shape, ok := newShredder(t).Shred(way)
	require.True(t, ok)
	assert.Equal(t, []Tag{
		{ID: 5, Key: "name", Value: "Depot", Type: "way"},
		{ID: 5, Key: "phone", Value: "+1 408-555-1212", Type: "way"},
		{ID: 5, Key: "contact:phone", Value: "+1 408-555-1313", Type: "contact"},
		{ID: 5, Key: "addr:street", Value: "Monterey Hwy", Type: "addr"},
	}, shape.WayTags)
}

func TestShredSkipsOtherKinds(t *testing.T) {
	shape, ok := newShredder(t).Shred(&osm.Relation{ID: 1})
	assert.False(t, ok)
	assert.Nil(t, shape)
}

func TestTagType(t *testing.T) {
	tests := []struct {
		key  string
		kind osm.Type
		want string
	}{
		{"name", osm.TypeNode, "node"},
		{"highway", osm.TypeWay, "way"},
		{"addr:street", osm.TypeNode, "addr"},
		{"addr:street:name", osm.TypeWay, "addr"},
		{":odd", osm.TypeNode, "node"},
		{"trailing:", osm.TypeWay, "trailing"},
		{"", osm.TypeNode, "node"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, TagType(tt.key, tt.kind))
		})
	}
}

func TestAssembleRoundTrip(t *testing.T) {
	way := &osm.Way{
		ID: 9,
		Nodes: osm.WayNodes{
			{ID: 3}, {ID: 1}, {ID: 2}, {ID: 3},
		},
		Tags: osm.Tags{
			{Key: "addr:street", Value: "Main Ave"},
			{Key: "phone", Value: "n/a"},
			{Key: "building", Value: "yes"},
		},
	}

	shape, ok := New(identity{}).Shred(way)
	require.True(t, ok)

	// shuffle membership rows to prove order comes from position
	shape.WayNodes[0], shape.WayNodes[3] = shape.WayNodes[3], shape.WayNodes[0]
	shape.WayNodes[1], shape.WayNodes[2] = shape.WayNodes[2], shape.WayNodes[1]

	tags, refs := Assemble(shape)
	assert.ElementsMatch(t, way.Tags, tags)
	assert.Equal(t, []osm.NodeID{3, 1, 2, 3}, refs)

	node := &osm.Node{ID: 4, Tags: osm.Tags{{Key: "amenity", Value: "cafe"}}}
	shape, ok = New(identity{}).Shred(node)
	require.True(t, ok)
	tags, refs = Assemble(shape)
	assert.Equal(t, node.Tags, tags)
	assert.Nil(t, refs)
}
