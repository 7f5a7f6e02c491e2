package osmstream

import (
	"bufio"
	"bytes"
	"io"

	"github.com/rotisserie/eris"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// prolog scanner states
const (
	statePrologText = iota
	stateTagOpen
	stateMarkup
	stateBang
	stateBangDash
	stateComment
	stateBody
)

// xmlGuard rejects documents encoding/xml would otherwise accept as
// empty: no root element, character data before the root or text after
// the last closing tag. It only looks at the prolog byte by byte; once
// the root starts it just remembers the last non-space byte.
type xmlGuard struct {
	r      io.Reader
	state  int
	depth  int // '[' nesting inside a DOCTYPE
	dashes int
	last   byte
	err    error
}

func newXMLGuard(r io.Reader) *xmlGuard {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return &xmlGuard{r: br}
}

func (g *xmlGuard) Read(p []byte) (int, error) {
	if g.err != nil {
		return 0, g.err
	}

	n, err := g.r.Read(p)
	for _, c := range p[:n] {
		if gerr := g.feed(c); gerr != nil {
			g.err = gerr
			return 0, gerr
		}
	}

	if err == io.EOF {
		switch {
		case g.state != stateBody && g.last == 0:
			g.err = eris.New("no element found")
		case g.state != stateBody:
			g.err = eris.New("no root element")
		case g.last != '>':
			g.err = eris.New("junk after document element")
		default:
			return n, io.EOF
		}
		return n, g.err
	}
	return n, err
}

func (g *xmlGuard) feed(c byte) error {
	space := c == ' ' || c == '\t' || c == '\n' || c == '\r'
	if !space {
		g.last = c
	}

	switch g.state {
	case stateBody:
	case statePrologText:
		switch {
		case space:
		case c == '<':
			g.state = stateTagOpen
		default:
			return eris.Errorf("syntax error: unexpected %q before root element", c)
		}
	case stateTagOpen:
		switch {
		case c == '?':
			g.state = stateMarkup
		case c == '!':
			g.state = stateBang
		case isNameStart(c):
			g.state = stateBody
		default:
			return eris.Errorf("syntax error: invalid markup %q", "<"+string(c))
		}
	case stateBang:
		g.state = stateMarkup
		if c == '-' {
			g.state = stateBangDash
		}
	case stateBangDash:
		g.state = stateMarkup
		if c == '-' {
			g.state = stateComment
			g.dashes = 0
		}
	case stateComment:
		switch {
		case c == '-':
			g.dashes++
		case c == '>' && g.dashes >= 2:
			g.state = statePrologText
		default:
			g.dashes = 0
		}
	case stateMarkup:
		switch c {
		case '[':
			g.depth++
		case ']':
			g.depth--
		case '>':
			if g.depth <= 0 {
				g.depth = 0
				g.state = statePrologText
			}
		}
	}
	return nil
}

func isNameStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == ':' || c >= 0x80
}
