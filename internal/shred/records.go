package shred

import (
	"strconv"
	"time"

	"github.com/paulmach/osm"
)

// Coord is a latitude or longitude written in shortest round-trip form
type Coord float64

// MarshalText implements encoding.TextMarshaler (used by csvutil)
func (c Coord) MarshalText() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(c), 'f', -1, 64), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Coord) UnmarshalText(b []byte) error {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*c = Coord(f)
	return nil
}

// MarshalJSON keeps coordinates numeric in JSON
func (c Coord) MarshalJSON() ([]byte, error) {
	return c.MarshalText()
}

// Point is one row of nodes.csv
type Point struct {
	ID        int64  `csv:"id" json:"id"`
	Lat       Coord  `csv:"lat" json:"lat"`
	Lon       Coord  `csv:"lon" json:"lon"`
	User      string `csv:"user" json:"user"`
	UID       int64  `csv:"uid" json:"uid"`
	Version   int    `csv:"version" json:"version"`
	Changeset int64  `csv:"changeset" json:"changeset"`
	Timestamp string `csv:"timestamp" json:"timestamp"`
}

// Way is one row of ways.csv
type Way struct {
	ID        int64  `csv:"id" json:"id"`
	User      string `csv:"user" json:"user"`
	UID       int64  `csv:"uid" json:"uid"`
	Version   int    `csv:"version" json:"version"`
	Changeset int64  `csv:"changeset" json:"changeset"`
	Timestamp string `csv:"timestamp" json:"timestamp"`
}

// Tag is one row of nodes_tags.csv or ways_tags.csv. ID is the owner.
type Tag struct {
	ID    int64  `csv:"id" json:"id"`
	Key   string `csv:"key" json:"key"`
	Value string `csv:"value" json:"value"`
	Type  string `csv:"type" json:"type"`
}

// WayNode is one row of ways_nodes.csv
type WayNode struct {
	ID       int64 `csv:"id" json:"id"`
	NodeID   int64 `csv:"node_id" json:"node_id"`
	Position int   `csv:"position" json:"position"`
}

// Shape is the shredded form of one element. Exactly one of Node and
// Way is set.
type Shape struct {
	Node     *Point    `json:"node,omitempty"`
	NodeTags []Tag     `json:"node_tags,omitempty"`
	Way      *Way      `json:"way,omitempty"`
	WayNodes []WayNode `json:"way_nodes,omitempty"`
	WayTags  []Tag     `json:"way_tags,omitempty"`
}

// Kind returns "node" or "way"
func (s *Shape) Kind() string {
	if s.Way != nil {
		return string(osm.TypeWay)
	}
	return string(osm.TypeNode)
}

// ID returns the id of the shredded element
func (s *Shape) ID() int64 {
	if s.Way != nil {
		return s.Way.ID
	}
	if s.Node != nil {
		return s.Node.ID
	}
	return 0
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
