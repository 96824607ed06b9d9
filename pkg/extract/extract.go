package extract

import (
	"context"
	"log/slog"

	"github.com/coolbeans/carta/pkg/pattern"
)

// Options configures Extract.
type Options struct {
	// Rules selects the classifier rule table; nil uses the built-in rules.
	Rules *pattern.RuleSet
	// Logger receives progress and per-element warnings; nil discards them.
	Logger *slog.Logger
	// ProgressEvery is the number of elements between progress logs
	// (default DefaultProgressEvery; negative disables).
	ProgressEvery int
}

// Result is the outcome of one extraction pass.
type Result struct {
	Tree            *Tree
	Classifications []Classification
	Report          *Report
}

// Extract normalizes, classifies and builds an ordered paragraph stream in a
// single pass. Empty paragraphs are skipped. The context is checked between
// paragraphs; a cancelled pass returns the context error and no tree.
func Extract(ctx context.Context, paragraphs []Paragraph, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	classifier, err := NewClassifier(opts.Rules, logger)
	if err != nil {
		return nil, err
	}

	normalized := make([]Paragraph, 0, len(paragraphs))
	for _, p := range paragraphs {
		text := Normalize(p.Text)
		if text == "" {
			continue
		}
		normalized = append(normalized, Paragraph{Text: text, Preamble: p.Preamble})
	}

	builder := NewBuilder(logger)
	switch {
	case opts.ProgressEvery > 0:
		builder.SetProgressEvery(opts.ProgressEvery)
	case opts.ProgressEvery < 0:
		builder.SetProgressEvery(0)
	}

	classifications := make([]Classification, 0, len(normalized))
	for i := range normalized {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next *Paragraph
		if i+1 < len(normalized) {
			next = &normalized[i+1]
		}
		c := classifier.Classify(normalized[i], next)
		c.Index = i
		classifications = append(classifications, c)
		builder.Add(c)
	}

	tree, err := builder.Finish()
	if err != nil {
		return nil, err
	}

	report := builder.Report()
	logger.Info("extraction complete",
		"paragraphs", report.Paragraphs,
		"elements", tree.Len()-2,
		"continuations", report.Continuations,
		"dropped", report.Dropped,
		"warnings", report.Warnings(),
	)

	return &Result{Tree: tree, Classifications: classifications, Report: report}, nil
}
