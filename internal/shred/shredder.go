// Package shred flattens OSM nodes and ways into the rows of the five
// output tables.
package shred

import (
	"sort"
	"strings"

	"github.com/paulmach/osm"
)

// Tag keys whose values are rewritten during shredding
const (
	KeyStreet       = "addr:street"
	KeyPhone        = "phone"
	KeyContactPhone = "contact:phone"
)

// Normalizer rewrites street names and phone numbers
type Normalizer interface {
	StreetName(name string) string
	Phone(phone string) string
}

// Shredder turns elements into Shapes
type Shredder struct {
	normalizer Normalizer
}

// New creates a shredder using n for tag value cleanup
func New(n Normalizer) *Shredder {
	return &Shredder{normalizer: n}
}

// Shred converts a node or way. Any other element yields false.
func (s *Shredder) Shred(obj osm.Object) (*Shape, bool) {
	switch o := obj.(type) {
	case *osm.Node:
		return s.shredNode(o), true
	case *osm.Way:
		return s.shredWay(o), true
	}
	return nil, false
}

func (s *Shredder) shredNode(n *osm.Node) *Shape {
	id := int64(n.ID)
	return &Shape{
		Node: &Point{
			ID:        id,
			Lat:       Coord(n.Lat),
			Lon:       Coord(n.Lon),
			User:      n.User,
			UID:       int64(n.UserID),
			Version:   n.Version,
			Changeset: int64(n.ChangesetID),
			Timestamp: formatTimestamp(n.Timestamp),
		},
		NodeTags: s.tags(id, osm.TypeNode, n.Tags),
	}
}

func (s *Shredder) shredWay(w *osm.Way) *Shape {
	id := int64(w.ID)

	var members []WayNode
	if len(w.Nodes) > 0 {
		members = make([]WayNode, len(w.Nodes))
		for i, nd := range w.Nodes {
			members[i] = WayNode{ID: id, NodeID: int64(nd.ID), Position: i}
		}
	}

	return &Shape{
		Way: &Way{
			ID:        id,
			User:      w.User,
			UID:       int64(w.UserID),
			Version:   w.Version,
			Changeset: int64(w.ChangesetID),
			Timestamp: formatTimestamp(w.Timestamp),
		},
		WayNodes: members,
		WayTags:  s.tags(id, osm.TypeWay, w.Tags),
	}
}

func (s *Shredder) tags(owner int64, kind osm.Type, tags osm.Tags) []Tag {
	if len(tags) == 0 {
		return nil
	}

	out := make([]Tag, len(tags))
	for i, t := range tags {
		value := t.Value
		switch t.Key {
		case KeyStreet:
			value = s.normalizer.StreetName(value)
		case KeyPhone, KeyContactPhone:
			value = s.normalizer.Phone(value)
		}
		out[i] = Tag{
			ID:    owner,
			Key:   t.Key,
			Value: value,
			Type:  TagType(t.Key, kind),
		}
	}
	return out
}

// TagType classifies a key by the segment before its first colon.
// Keys without such a segment fall back to the owning element's kind.
func TagType(key string, kind osm.Type) string {
	if prefix, _, found := strings.Cut(key, ":"); found && prefix != "" {
		return prefix
	}
	return string(kind)
}

// Assemble rebuilds the tag list and the ordered node references of the
// element a Shape came from.
func Assemble(shape *Shape) (osm.Tags, []osm.NodeID) {
	rows := shape.NodeTags
	if shape.Way != nil {
		rows = shape.WayTags
	}

	var tags osm.Tags
	for _, t := range rows {
		tags = append(tags, osm.Tag{Key: t.Key, Value: t.Value})
	}

	if len(shape.WayNodes) == 0 {
		return tags, nil
	}
	members := append([]WayNode(nil), shape.WayNodes...)
	sort.Slice(members, func(i, j int) bool { return members[i].Position < members[j].Position })

	refs := make([]osm.NodeID, len(members))
	for i, m := range members {
		refs[i] = osm.NodeID(m.NodeID)
	}
	return tags, refs
}
