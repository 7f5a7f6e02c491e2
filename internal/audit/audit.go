// Package audit reports the street types found in addr:street values that
// are not in the expected list, together with the names that use them.
package audit

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/paulmach/osm"
	"github.com/rotisserie/eris"

	"github.com/wegman-software/osmshred/internal/osmstream"
)

const streetKey = "addr:street"

// StreetTyper splits a street name into its trailing type
type StreetTyper interface {
	StreetType(name string) (string, bool)
	IsExpectedStreetType(token string) bool
}

// Entry is one unexpected street type
type Entry struct {
	Type  string
	Names []string // distinct, sorted
}

// Report lists unexpected street types sorted by type
type Report struct {
	Elements int64
	Entries  []Entry
}

// Auditor accumulates street types over a stream of elements
type Auditor struct {
	typer    StreetTyper
	elements int64
	types    map[string]map[string]struct{}
}

func New(typer StreetTyper) *Auditor {
	return &Auditor{
		typer: typer,
		types: make(map[string]map[string]struct{}),
	}
}

// Add records the addr:street tags of a node or way. Other kinds are
// ignored.
func (a *Auditor) Add(obj osm.Object) {
	var tags osm.Tags
	switch o := obj.(type) {
	case *osm.Node:
		tags = o.Tags
	case *osm.Way:
		tags = o.Tags
	default:
		return
	}
	a.elements++

	for _, tag := range tags {
		if tag.Key != streetKey {
			continue
		}
		token, ok := a.typer.StreetType(tag.Value)
		if !ok || a.typer.IsExpectedStreetType(token) {
			continue
		}
		names, ok := a.types[token]
		if !ok {
			names = make(map[string]struct{})
			a.types[token] = names
		}
		names[tag.Value] = struct{}{}
	}
}

// Report returns what has been collected so far
func (a *Auditor) Report() *Report {
	r := &Report{Elements: a.elements, Entries: make([]Entry, 0, len(a.types))}
	for token, names := range a.types {
		e := Entry{Type: token, Names: make([]string, 0, len(names))}
		for name := range names {
			e.Names = append(e.Names, name)
		}
		sort.Strings(e.Names)
		r.Entries = append(r.Entries, e)
	}
	sort.Slice(r.Entries, func(i, j int) bool { return r.Entries[i].Type < r.Entries[j].Type })
	return r
}

// Run audits every node and way of the file at path
func Run(ctx context.Context, path string, typer StreetTyper) (*Report, error) {
	stream, err := osmstream.Open(ctx, path, osmstream.DefaultKinds...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	a := New(typer)
	for stream.Next() {
		a.Add(stream.Object())
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return a.Report(), nil
}

// WriteTable writes the report as an aligned table, one row per type
func (r *Report) WriteTable(w io.Writer) error {
	rows := [][]string{{"street type", "count", "names"}}
	for _, e := range r.Entries {
		rows = append(rows, []string{e.Type, strconv.Itoa(len(e.Names)), strings.Join(e.Names, "; ")})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var sb strings.Builder
	for i, row := range rows {
		writeRow(&sb, row, widths)
		if i == 0 {
			sep := make([]string, len(widths))
			for j, width := range widths {
				sep[j] = strings.Repeat("-", width)
			}
			writeRow(&sb, sep, widths)
		}
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return eris.Wrap(err, "audit: write report")
	}
	return nil
}

func writeRow(sb *strings.Builder, row []string, widths []int) {
	sb.WriteString("|")
	for i, cell := range row {
		sb.WriteString(" ")
		sb.WriteString(runewidth.FillRight(cell, widths[i]))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}
