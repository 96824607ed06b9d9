package validate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaURL identifies the embedded document schema.
const SchemaURL = "https://github.com/coolbeans/carta/schema/constituicao.json"

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(SchemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	schema, err := compiler.Compile(SchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return schema, nil
})

// SchemaSource returns the embedded schema document.
func SchemaSource() []byte {
	return bytes.Clone(schemaJSON)
}

// Validator checks serialized documents against the embedded schema.
type Validator struct {
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewValidator compiles the schema (once per process) and returns a
// Validator. A nil logger discards log output.
func NewValidator(logger *slog.Logger) (*Validator, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	return &Validator{schema: schema, logger: logger}, nil
}

// Validate checks any JSON-marshalable document, typically the mapping
// produced by extract.Serialize. A rejected document yields a *SchemaError.
func (v *Validator) Validate(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return v.ValidateBytes(raw)
}

// ValidateBytes checks a JSON document. Malformed input wraps ErrInvalidJSON.
func (v *Validator) ValidateBytes(data []byte) error {
	instance, err := decodeJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return v.validate(instance)
}

// ValidateReader checks the JSON document read from r.
func (v *Validator) ValidateReader(r io.Reader) error {
	instance, err := decodeJSON(r)
	if err != nil {
		return err
	}
	return v.validate(instance)
}

func (v *Validator) validate(instance any) error {
	err := v.schema.Validate(instance)
	if err == nil {
		v.logger.Info("data validation successful")
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("validating document: %w", err)
	}

	list := flatten(verr)
	for _, violation := range list {
		v.logger.Debug("schema violation", "path", violation.Path, "keyword", violation.Keyword, "message", violation.Message)
	}
	v.logger.Error("schema validation failed", "violations", len(list), "first", list[0].Error())
	return &SchemaError{Violations: list}
}

func decodeJSON(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after document", ErrInvalidJSON)
	}
	return instance, nil
}

// flatten collects the leaf causes of a validation error, sorted by
// instance path and keyword.
func flatten(root *jsonschema.ValidationError) ValidationList {
	var list ValidationList
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			list = append(list, Validation{
				Code:    string(CodeSchemaViolation),
				Message: e.Message,
				Path:    pointer(e.InstanceLocation),
				Keyword: e.KeywordLocation,
			})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(root)

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Path != list[j].Path {
			return list[i].Path < list[j].Path
		}
		return list[i].Keyword < list[j].Keyword
	})
	return list
}

func pointer(location string) string {
	if location == "" {
		return "/"
	}
	return location
}
