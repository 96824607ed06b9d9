package extract

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a class of extraction problem.
type ErrorCode string

const (
	// CodeAmbiguousClassification indicates a paragraph that could not be
	// placed as an element and was kept as content.
	CodeAmbiguousClassification ErrorCode = "ambiguous-classification"
	// CodeInvalidNumeral indicates a malformed Roman numeral; the raw string
	// is kept as the element number.
	CodeInvalidNumeral ErrorCode = "invalid-numeral"
	// CodeDuplicateElement indicates a second element with the same kind and
	// number under one parent; the later one is discarded.
	CodeDuplicateElement ErrorCode = "duplicate-element"
	// CodeUnknownKind indicates a class label that names no element kind.
	CodeUnknownKind ErrorCode = "unknown-kind"
	// CodeOutOfOrder indicates a sibling numbered lower than its predecessor.
	CodeOutOfOrder ErrorCode = "out-of-order"
	// CodeEmptyInput indicates a paragraph stream with nothing to build.
	CodeEmptyInput ErrorCode = "empty-input"
)

// ErrEmptyInput is returned when no paragraph reaches the builder.
var ErrEmptyInput = errors.New("extract: empty input, no paragraphs to build")

// Severity grades a recoverable issue.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Issue is a recoverable, per-paragraph problem. Issues never abort a build;
// they are collected in the Report.
type Issue struct {
	Code     ErrorCode `json:"code"`
	Severity Severity  `json:"severity"`
	Index    int       `json:"index"`
	Kind     Kind      `json:"-"`
	Class    string    `json:"classe,omitempty"`
	Number   string    `json:"numero,omitempty"`
	Message  string    `json:"message"`
}

// Error formats the issue for display.
func (i Issue) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] paragraph %d", i.Code, i.Index)
	if i.Class != "" {
		fmt.Fprintf(&b, " (%s", i.Class)
		if i.Number != "" {
			fmt.Fprintf(&b, " %s", i.Number)
		}
		b.WriteString(")")
	}
	fmt.Fprintf(&b, ": %s", i.Message)
	return b.String()
}

// Report summarizes a build.
type Report struct {
	Paragraphs    int          `json:"paragraphs"`
	Elements      map[Kind]int `json:"-"`
	Continuations int          `json:"continuations"`
	Dropped       int          `json:"dropped"`
	Issues        []Issue      `json:"issues,omitempty"`
}

func newReport() *Report {
	return &Report{Elements: make(map[Kind]int)}
}

// Count returns the number of issues with the given code.
func (r *Report) Count(code ErrorCode) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Code == code {
			n++
		}
	}
	return n
}

// Warnings returns the number of warning-level issues.
func (r *Report) Warnings() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityWarning {
			n++
		}
	}
	return n
}

// ElementCounts returns element counts keyed by class label.
func (r *Report) ElementCounts() map[string]int {
	counts := make(map[string]int, len(r.Elements))
	for kind, n := range r.Elements {
		counts[kind.Class()] = n
	}
	return counts
}
