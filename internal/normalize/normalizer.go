// Package normalize canonicalizes street names and phone numbers found in
// OSM tag values. Both operations are total: input they do not recognize
// is returned unchanged and reported as a warning diagnostic.
package normalize

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// streetTypeRegex picks the trailing token of a street name
var streetTypeRegex = regexp.MustCompile(`(?:^|\s)(\S+)$`)

// Kind identifies what a diagnostic is about
type Kind string

const (
	KindStreetType Kind = "street_type"
	KindPhone      Kind = "phone"
)

// Diagnostic describes a value the normalizer did not recognize
type Diagnostic struct {
	Kind  Kind
	Value string
	Token string // trailing street type, empty for phones
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithObserver registers a callback invoked for every diagnostic
func WithObserver(fn func(Diagnostic)) Option {
	return func(n *Normalizer) {
		n.observe = fn
	}
}

// Normalizer applies a fixed set of Rules
type Normalizer struct {
	mapping     map[string]string
	expected    map[string]struct{}
	phone       *regexp.Regexp
	countryCode string
	log         *zap.Logger
	observe     func(Diagnostic)
}

// New compiles rules into a Normalizer
func New(rules Rules, log *zap.Logger, opts ...Option) (*Normalizer, error) {
	if log == nil {
		log = zap.NewNop()
	}

	phone, err := regexp.Compile(rules.PhonePattern)
	if err != nil {
		return nil, eris.Wrap(err, "normalize: compile phone pattern")
	}
	if phone.NumSubexp() != 4 {
		return nil, eris.Errorf("normalize: phone pattern needs 4 groups, has %d", phone.NumSubexp())
	}

	n := &Normalizer{
		mapping:     make(map[string]string, len(rules.StreetMapping)),
		expected:    make(map[string]struct{}, len(rules.ExpectedStreetTypes)),
		phone:       phone,
		countryCode: rules.DefaultCountryCode,
		log:         log,
	}
	for abbrev, canonical := range rules.StreetMapping {
		n.mapping[norm.NFC.String(abbrev)] = canonical
	}
	for _, t := range rules.ExpectedStreetTypes {
		n.expected[norm.NFC.String(t)] = struct{}{}
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// StreetType returns the trailing token of a street name
func (n *Normalizer) StreetType(name string) (string, bool) {
	m := streetTypeRegex.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsExpectedStreetType reports whether token is already canonical
func (n *Normalizer) IsExpectedStreetType(token string) bool {
	_, ok := n.expected[norm.NFC.String(token)]
	return ok
}

// StreetName replaces an abbreviated trailing street type with its
// canonical form. Every occurrence of the token in the name is replaced.
func (n *Normalizer) StreetName(name string) string {
	token, ok := n.StreetType(name)
	if !ok {
		return name
	}

	if canonical, mapped := n.mapping[norm.NFC.String(token)]; mapped {
		better := strings.ReplaceAll(name, token, canonical)
		n.log.Debug("Street name normalized", zap.String("from", name), zap.String("to", better))
		return better
	}

	if !n.IsExpectedStreetType(token) {
		n.report(Diagnostic{Kind: KindStreetType, Value: name, Token: token})
	}
	return name
}

// Phone reformats a North American phone number as "+1 408-555-1212"
func (n *Normalizer) Phone(phone string) string {
	m := n.phone.FindStringSubmatch(phone)
	if m == nil {
		n.report(Diagnostic{Kind: KindPhone, Value: phone})
		return phone
	}

	countryCode := m[1]
	if countryCode == "" {
		countryCode = n.countryCode
	}
	better := countryCode + " " + m[2] + "-" + m[3] + "-" + m[4]
	n.log.Debug("Phone normalized", zap.String("from", phone), zap.String("to", better))
	return better
}

func (n *Normalizer) report(d Diagnostic) {
	fields := []zap.Field{zap.String("kind", string(d.Kind)), zap.String("value", d.Value)}
	if d.Token != "" {
		fields = append(fields, zap.String("token", d.Token))
	}
	n.log.Warn("Unrecognized value left unchanged", fields...)

	if n.observe != nil {
		n.observe(d)
	}
}
