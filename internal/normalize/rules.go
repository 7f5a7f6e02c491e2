package normalize

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rules is the fixed data the normalizer works from. A Normalizer copies
// it on construction, so later changes to a Rules value have no effect.
type Rules struct {
	// StreetMapping maps abbreviated street types to their canonical form
	StreetMapping map[string]string `yaml:"street_mapping,omitempty"`
	// ExpectedStreetTypes lists street types that are already canonical
	ExpectedStreetTypes []string `yaml:"expected_street_types,omitempty"`
	// PhonePattern must have four groups: country code, area, exchange, line
	PhonePattern string `yaml:"phone_pattern,omitempty"`
	// DefaultCountryCode is used when the phone number has none
	DefaultCountryCode string `yaml:"default_country_code,omitempty"`
}

// DefaultRules returns the built-in rule tables
func DefaultRules() Rules {
	return Rules{
		StreetMapping: map[string]string{
			"Ave":  "Avenue",
			"Ave.": "Avenue",
			"Dr":   "Drive",
		},
		ExpectedStreetTypes: []string{
			"Street", "Avenue", "Boulevard", "Drive", "Court", "Place",
			"Square", "Lane", "Road", "Trail", "Parkway", "Commons",
			"Circle", "Grande", "Way",
		},
		PhonePattern:       `\s*(\+1)?[- ]?\(?(\d{3})\)?[\- ]?(\d{3})[- ]?(\d{4})\s*`,
		DefaultCountryCode: "+1",
	}
}

// LoadRules reads a YAML rules file. Every table present in the file
// replaces the corresponding default table as a whole.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, eris.Wrapf(err, "rules: read %s", path)
	}

	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return rules, eris.Wrapf(err, "rules: parse %s", path)
	}

	if file.StreetMapping != nil {
		rules.StreetMapping = file.StreetMapping
	}
	if file.ExpectedStreetTypes != nil {
		rules.ExpectedStreetTypes = file.ExpectedStreetTypes
	}
	if file.PhonePattern != "" {
		rules.PhonePattern = file.PhonePattern
	}
	if file.DefaultCountryCode != "" {
		rules.DefaultCountryCode = file.DefaultCountryCode
	}
	return rules, nil
}
