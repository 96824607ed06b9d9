package scrape

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/coolbeans/carta/pkg/extract"
)

// Stats summarizes one run.
type Stats struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Source     string    `json:"source"`
	Charset    string    `json:"charset,omitempty"`

	SourceBytes int `json:"source_bytes"`
	Struck      int `json:"struck"`
	// Paragraphs is the number read from the markup; Processed is the
	// number that reached the builder.
	Paragraphs int `json:"total_paragraphs"`
	Processed  int `json:"processed_paragraphs"`

	Elements      map[string]int `json:"elements"`
	Continuations int            `json:"continuations"`
	Dropped       int            `json:"dropped"`

	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Duplicates      int `json:"duplicates"`
	InvalidNumerals int `json:"invalid_numerals"`
	OutOfOrder      int `json:"out_of_order"`
	UnknownKinds    int `json:"unknown_kinds"`
	Ambiguous       int `json:"ambiguous"`

	SchemaValid bool    `json:"schema_valid"`
	GateScore   float64 `json:"gate_score"`
}

func newStats(started time.Time) *Stats {
	return &Stats{StartedAt: started, Elements: map[string]int{}}
}

// absorb copies the build report counters.
func (s *Stats) absorb(report *extract.Report) {
	if report == nil {
		return
	}
	s.Processed = report.Paragraphs
	s.Elements = report.ElementCounts()
	s.Continuations = report.Continuations
	s.Dropped = report.Dropped
	s.Warnings = report.Warnings()
	s.Duplicates = report.Count(extract.CodeDuplicateElement)
	s.InvalidNumerals = report.Count(extract.CodeInvalidNumeral)
	s.OutOfOrder = report.Count(extract.CodeOutOfOrder)
	s.UnknownKinds = report.Count(extract.CodeUnknownKind)
	s.Ambiguous = report.Count(extract.CodeAmbiguousClassification)
}

// Duration is the wall time of the run.
func (s *Stats) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// LogAttrs returns the statistics as slog key-value pairs.
func (s *Stats) LogAttrs() []any {
	attrs := []any{
		"source", s.Source,
		"duration", s.Duration(),
		"paragraphs", s.Paragraphs,
		"processed", s.Processed,
		"errors", s.Errors,
		"warnings", s.Warnings,
		"duplicates", s.Duplicates,
		"invalid_numerals", s.InvalidNumerals,
	}
	for _, class := range sortedKeys(s.Elements) {
		attrs = append(attrs, class, s.Elements[class])
	}
	return attrs
}

// String formats the statistics as a table.
func (s *Stats) String() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("%-22s %s\n", "SOURCE", s.Source))
	builder.WriteString(strings.Repeat("─", 40) + "\n")
	row := func(label string, value any) {
		builder.WriteString(fmt.Sprintf("%-22s %v\n", label, value))
	}
	row("duration", s.Duration().Round(time.Millisecond))
	row("paragraphs", s.Paragraphs)
	row("processed", s.Processed)
	for _, class := range sortedKeys(s.Elements) {
		row(class, s.Elements[class])
	}
	row("continuations", s.Continuations)
	row("dropped", s.Dropped)
	row("errors", s.Errors)
	row("warnings", s.Warnings)
	row("duplicates", s.Duplicates)
	row("invalid numerals", s.InvalidNumerals)
	row("schema valid", s.SchemaValid)
	row("gate score", fmt.Sprintf("%.1f%%", s.GateScore*100))

	return builder.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
