// Package validate checks shredded elements against a fixed JSON schema
// before they are written.
package validate

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/wegman-software/osmshred/internal/shred"
)

//go:embed schema.json
var schemaJSON []byte

// ErrSchemaViolation matches every *SchemaViolation with errors.Is
var ErrSchemaViolation = eris.New("schema violation")

// SchemaViolation reports the sub-record of an element that failed
// validation and every field error found in it.
type SchemaViolation struct {
	ElementID int64
	Kind      string // node, node_tags, way, way_nodes, way_tags
	Errors    []string
}

func (v *SchemaViolation) Error() string {
	return fmt.Sprintf("element %d: sub-record of type '%s' has the following errors:\n  %s",
		v.ElementID, v.Kind, strings.Join(v.Errors, "\n  "))
}

// Is reports whether target is ErrSchemaViolation
func (v *SchemaViolation) Is(target error) bool {
	return target == ErrSchemaViolation
}

// Validator holds the compiled schema
type Validator struct {
	schema *gojsonschema.Schema
}

// New compiles the embedded schema
func New() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, eris.Wrap(err, "validate: compile schema")
	}
	return &Validator{schema: schema}, nil
}

// Validate returns a *SchemaViolation when shape does not match the schema
func (v *Validator) Validate(shape *shred.Shape) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(shape))
	if err != nil {
		return eris.Wrap(err, "validate: run schema")
	}
	if result.Valid() {
		return nil
	}

	// schema errors come back in no fixed order
	errs := result.Errors()
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field() < errs[j].Field() })

	violation := &SchemaViolation{ElementID: shape.ID(), Kind: subRecord(errs[0].Field())}
	for _, re := range errs {
		if subRecord(re.Field()) == violation.Kind {
			violation.Errors = append(violation.Errors, re.Field()+": "+re.Description())
		}
	}
	return violation
}

// subRecord maps a field path such as "node_tags.0.key" to its sub-record
func subRecord(field string) string {
	kind, _, _ := strings.Cut(field, ".")
	if kind == "" || kind == "(root)" {
		return "element"
	}
	return kind
}
