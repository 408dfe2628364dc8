package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaViolation is returned when model output does not satisfy its contract.
var ErrSchemaViolation = errors.New("output does not match schema")

// Schema is a JSON Schema document for an output contract.
type Schema struct {
	Name   string
	Doc    map[string]any
	loader gojsonschema.JSONLoader
}

var schemaCache sync.Map // reflect.Type -> *Schema

// SchemaFor returns the cached schema of T.
func SchemaFor[T any]() (*Schema, error) {
	var zero T
	return schemaOf(reflect.TypeOf(zero), zero)
}

func schemaOf(t reflect.Type, v any) (*Schema, error) {
	if s, ok := schemaCache.Load(t); ok {
		return s.(*Schema), nil
	}

	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", t, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	// Providers reject the meta keys.
	delete(doc, "$schema")
	delete(doc, "$id")

	s := &Schema{
		Name:   snake(t.Name()),
		Doc:    doc,
		loader: gojsonschema.NewGoLoader(doc),
	}
	actual, _ := schemaCache.LoadOrStore(t, s)
	return actual.(*Schema), nil
}

// JSON returns the schema as indented JSON, for prompts.
func (s *Schema) JSON() string {
	b, _ := json.MarshalIndent(s.Doc, "", "  ")
	return string(b)
}

// Validate checks a JSON document against the schema.
func (s *Schema) Validate(doc []byte) error {
	res, err := gojsonschema.Validate(s.loader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate %s: %w", s.Name, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s: %s", ErrSchemaViolation, s.Name, strings.Join(msgs, "; "))
}

func snake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
