package validate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a class of validation failure.
type ErrorCode string

const (
	// CodeSchemaViolation indicates a document that does not satisfy the schema.
	CodeSchemaViolation ErrorCode = "schema-violation"
	// CodeInvalidJSON indicates input that is not well-formed JSON.
	CodeInvalidJSON ErrorCode = "invalid-json"
)

var (
	// ErrSchemaViolation is the sentinel every SchemaError unwraps to.
	ErrSchemaViolation = errors.New("validate: document violates schema")
	// ErrInvalidJSON is returned when a document cannot be decoded at all.
	ErrInvalidJSON = errors.New("validate: invalid JSON")
)

// Validation describes one schema violation, located by JSON pointer.
type Validation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
	Keyword string `json:"keyword,omitempty"`
}

// Error formats the violation for display.
func (v *Validation) Error() string {
	if v == nil {
		return "validation <nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", v.Code, v.Message)
	if v.Path != "" {
		fmt.Fprintf(&b, " at %s", v.Path)
	}
	if v.Keyword != "" {
		fmt.Fprintf(&b, " (keyword %s)", v.Keyword)
	}
	return b.String()
}

// NewValidation builds a Validation with a code, message and path.
func NewValidation(code ErrorCode, msg, path string) Validation {
	return Validation{Code: string(code), Message: msg, Path: path}
}

// ValidationList is an error holding one or more violations.
type ValidationList []Validation

// Error returns a compact summary of the violations.
func (v ValidationList) Error() string {
	switch len(v) {
	case 0:
		return "no validation errors"
	case 1:
		return v[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", v[0].Error(), len(v)-1)
	}
}

// SchemaError reports a rejected document.
type SchemaError struct {
	Violations ValidationList
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation: %s", e.Violations.Error())
}

// Unwrap exposes both the sentinel and the violation list to errors.Is and
// errors.As.
func (e *SchemaError) Unwrap() []error {
	return []error{ErrSchemaViolation, e.Violations}
}

// AsValidations extracts the violations carried by err, if any.
func AsValidations(err error) ([]Validation, bool) {
	if err == nil {
		return nil, false
	}
	var list ValidationList
	if errors.As(err, &list) {
		return []Validation(list), true
	}
	return nil, false
}
