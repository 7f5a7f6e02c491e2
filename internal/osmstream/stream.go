// Package osmstream yields top-level OSM elements from an XML or PBF
// source one at a time. Each element is decoded on its own and nothing
// already returned is retained, so memory use does not grow with the
// size of the input.
package osmstream

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/rotisserie/eris"
)

// ErrMalformedInput is returned by Err when the source cannot be decoded
var ErrMalformedInput = eris.New("malformed input")

// Format is the encoding of the source document
type Format int

const (
	FormatXML Format = iota
	FormatPBF
)

// DefaultKinds are the element kinds the shredder understands
var DefaultKinds = []osm.Type{osm.TypeNode, osm.TypeWay}

// scanner is implemented by both osmxml.Scanner and osmpbf.Scanner
type scanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

// Stream is a pull iterator over the selected top-level elements
type Stream struct {
	scanner scanner
	kinds   map[osm.Type]bool
	counter *countingReader
	closers []io.Closer
	current osm.Object
	err     error
}

// Open opens path and picks a decoder from its extension: ".pbf" is read
// as PBF, ".gz" and ".bz2" are decompressed and read as XML, everything
// else is read as plain XML.
func Open(ctx context.Context, path string, kinds ...osm.Type) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "osmstream: open %s", path)
	}

	counter := &countingReader{r: f}
	var (
		reader  io.Reader = counter
		closers           = []io.Closer{f}
		format            = FormatXML
	)

	switch {
	case strings.HasSuffix(path, ".pbf"):
		format = FormatPBF
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(counter)
		if err != nil {
			f.Close()
			return nil, eris.Wrapf(ErrMalformedInput, "osmstream: gzip header of %s: %v", path, err)
		}
		reader = gz
		closers = append([]io.Closer{gz}, closers...)
	case strings.HasSuffix(path, ".bz2"):
		reader = bzip2.NewReader(counter)
	}

	s := newStream(ctx, reader, counter, format, kinds)
	s.closers = closers
	return s, nil
}

// New wraps a reader. The caller keeps ownership of r.
func New(ctx context.Context, r io.Reader, format Format, kinds ...osm.Type) *Stream {
	counter := &countingReader{r: r}
	return newStream(ctx, counter, counter, format, kinds)
}

func newStream(ctx context.Context, r io.Reader, counter *countingReader, format Format, kinds []osm.Type) *Stream {
	if len(kinds) == 0 {
		kinds = DefaultKinds
	}

	s := &Stream{
		kinds:   make(map[osm.Type]bool, len(kinds)),
		counter: counter,
	}
	for _, k := range kinds {
		s.kinds[k] = true
	}

	switch format {
	case FormatPBF:
		s.scanner = osmpbf.New(ctx, r, runtime.NumCPU())
	default:
		s.scanner = osmxml.New(ctx, newXMLGuard(r))
	}
	return s
}

// Next advances to the next selected element. It returns false at the
// end of the input or on error; check Err afterwards.
func (s *Stream) Next() bool {
	if s.err != nil {
		return false
	}

	for s.scanner.Scan() {
		obj := s.scanner.Object()
		if s.kinds[kindOf(obj)] {
			s.current = obj
			return true
		}
	}

	s.current = nil
	if err := s.scanner.Err(); err != nil && err != io.EOF {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.err = err
		} else {
			s.err = eris.Wrapf(ErrMalformedInput, "osmstream: %v", err)
		}
	}
	return false
}

// Object returns the element Next advanced to
func (s *Stream) Object() osm.Object {
	return s.current
}

// Err returns the first decoding error, if any
func (s *Stream) Err() error {
	return s.err
}

// BytesRead returns how many bytes of the source file, before any
// decompression, have been consumed so far. Safe to call from another
// goroutine.
func (s *Stream) BytesRead() int64 {
	return s.counter.n.Load()
}

// Close releases the decoder and any files opened by Open
func (s *Stream) Close() error {
	err := s.scanner.Close()
	for _, c := range s.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	s.closers = nil
	return err
}

func kindOf(obj osm.Object) osm.Type {
	switch obj.(type) {
	case *osm.Node:
		return osm.TypeNode
	case *osm.Way:
		return osm.TypeWay
	case *osm.Relation:
		return osm.TypeRelation
	}
	return ""
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
