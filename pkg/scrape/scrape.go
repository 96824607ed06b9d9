// Package scrape runs the whole conversion: retrieve the page, read its
// paragraphs, build and serialize the tree, validate it, and persist the
// results.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/coolbeans/carta/pkg/archive"
	"github.com/coolbeans/carta/pkg/extract"
	"github.com/coolbeans/carta/pkg/fetch"
	"github.com/coolbeans/carta/pkg/markup"
	"github.com/coolbeans/carta/pkg/pattern"
	"github.com/coolbeans/carta/pkg/render"
	"github.com/coolbeans/carta/pkg/validate"
)

// Options configures a run.
type Options struct {
	// URL overrides the page named by Fetch.BaseURL and Fetch.Path.
	URL string
	// InputFile reads HTML from disk instead of fetching it.
	InputFile string
	// Page is an already fetched page used instead of retrieval.
	Page  *fetch.Page
	Fetch fetch.Config
	// HTTPClient replaces the default client; the rate limit still applies.
	HTTPClient fetch.HTTPClient

	// Rules replaces the built-in classifier rules when non-nil.
	Rules *pattern.RuleSet

	OutputPath   string
	Format       archive.Format
	MarkdownPath string
	HTMLPath     string
	ArchiveDir   string
	// PersistInvalid writes the output even when validation fails.
	PersistInvalid bool

	Gates         *validate.ValidationConfig
	ProgressEvery int
	Logger        *slog.Logger
}

// Result is everything a run produced.
type Result struct {
	Stats    *Stats
	Extract  *extract.Result
	Document *extract.Mapping
	Output   []byte
	Gates    *validate.GateReport
	Run      *archive.RunEntry
}

// Scraper runs the pipeline.
type Scraper struct {
	opts      Options
	logger    *slog.Logger
	validator *validate.Validator
}

// New checks opts and prepares a Scraper.
func New(opts Options) (*Scraper, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Format == "" {
		opts.Format = archive.FormatJSON
	}
	if _, err := archive.ParseFormat(string(opts.Format)); err != nil {
		return nil, err
	}
	if opts.InputFile == "" && opts.Page == nil {
		if err := opts.Fetch.Validate(); err != nil {
			return nil, fmt.Errorf("invalid fetch config: %w", err)
		}
	}
	if opts.Gates == nil {
		opts.Gates = validate.DefaultValidationConfig()
	}

	validator, err := validate.NewValidator(opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Scraper{opts: opts, logger: opts.Logger, validator: validator}, nil
}

type source struct {
	name    string
	raw     []byte
	html    string
	charset string
}

// Run executes the pipeline. Fatal failures are returned as *Error; the
// Result is returned alongside whenever a tree was built.
func (s *Scraper) Run(ctx context.Context) (*Result, error) {
	result := &Result{Stats: newStats(time.Now().UTC())}
	stats := result.Stats
	defer func() {
		stats.FinishedAt = time.Now().UTC()
		s.logger.Info("run finished", stats.LogAttrs()...)
	}()

	src, err := s.load(ctx)
	if err != nil {
		stats.Errors++
		return result, stageError(StageFetch, err)
	}
	stats.Source = src.name
	stats.SourceBytes = len(src.raw)
	stats.Charset = src.charset

	doc, err := markup.NewReader(s.logger).ReadString(src.html)
	if err != nil {
		stats.Errors++
		return result, s.fail(src, stageError(StageMarkup, err))
	}
	stats.Paragraphs = len(doc.Paragraphs)
	stats.Struck = doc.Struck

	extracted, err := extract.Extract(ctx, doc.Paragraphs, extract.Options{
		Rules:         s.opts.Rules,
		Logger:        s.logger,
		ProgressEvery: s.opts.ProgressEvery,
	})
	if extracted != nil {
		stats.absorb(extracted.Report)
	}
	if err != nil {
		stats.Errors++
		return result, s.fail(src, stageError(StageExtract, err))
	}
	result.Extract = extracted
	result.Document = extract.Serialize(extracted.Tree)

	schemaErr := s.validator.Validate(result.Document)
	stats.SchemaValid = schemaErr == nil

	pipeline := validate.NewGatePipeline(s.opts.Gates)
	pipeline.RegisterDefaultGates()
	result.Gates = pipeline.Run(&validate.ValidationContext{
		Source:        doc,
		SourceSize:    len(src.html),
		Result:        extracted,
		Document:      result.Document,
		Validator:     s.validator,
		SchemaChecked: true,
		SchemaErr:     schemaErr,
		Config:        s.opts.Gates,
	})
	stats.GateScore = result.Gates.TotalScore
	s.logGates(result.Gates)

	var fatal error
	switch {
	case schemaErr != nil:
		fatal = stageError(StageValidate, schemaErr)
	case s.opts.Gates.StrictMode || s.opts.Gates.FailOnWarn:
		if err := result.Gates.Err(); err != nil {
			fatal = stageError(StageValidate, err)
		}
	}
	if fatal != nil {
		stats.Errors++
		if !s.opts.PersistInvalid {
			return result, s.fail(src, fatal)
		}
		s.logger.Warn("persisting output that failed validation", "error", fatal)
	}

	if err := s.persist(src, result, fatal); err != nil {
		stats.Errors++
		return result, stageError(StagePersist, err)
	}
	return result, fatal
}

func (s *Scraper) load(ctx context.Context) (*source, error) {
	if page := s.opts.Page; page != nil {
		return &source{name: page.URL, raw: page.Body, html: page.HTML, charset: page.Charset}, nil
	}
	if s.opts.InputFile != "" {
		raw, err := os.ReadFile(s.opts.InputFile)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		text, charset, err := fetch.DecodeHTML(raw, s.opts.Fetch.Charset)
		if err != nil {
			return nil, err
		}
		s.logger.Info("read input file", "path", s.opts.InputFile, "bytes", len(raw), "charset", charset)
		return &source{name: s.opts.InputFile, raw: raw, html: text, charset: charset}, nil
	}

	fetcher, err := fetch.NewFetcher(s.opts.Fetch, s.opts.HTTPClient, s.logger)
	if err != nil {
		return nil, err
	}
	var page *fetch.Page
	if s.opts.URL != "" {
		page, err = fetcher.Fetch(ctx, s.opts.URL)
	} else {
		page, err = fetcher.FetchDefault(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &source{name: page.URL, raw: page.Body, html: page.HTML, charset: page.Charset}, nil
}

func (s *Scraper) persist(src *source, result *Result, runErr error) error {
	output, err := s.opts.Format.Encode(result.Document)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", s.opts.Format, err)
	}
	result.Output = output

	if s.opts.OutputPath != "" {
		if err := archive.WriteFile(s.opts.OutputPath, output, s.logger); err != nil {
			return err
		}
	}

	if s.opts.MarkdownPath != "" || s.opts.HTMLPath != "" {
		renderer, err := render.NewRenderer(s.opts.Rules)
		if err != nil {
			return err
		}
		if s.opts.MarkdownPath != "" {
			if err := archive.WriteFile(s.opts.MarkdownPath, renderer.Markdown(result.Extract.Tree), s.logger); err != nil {
				return err
			}
		}
		if s.opts.HTMLPath != "" {
			page, err := renderer.HTML(result.Extract.Tree)
			if err != nil {
				return err
			}
			if err := archive.WriteFile(s.opts.HTMLPath, page, s.logger); err != nil {
				return err
			}
		}
	}

	if s.opts.ArchiveDir != "" {
		result.Stats.FinishedAt = time.Now().UTC()
		run, err := s.record(src, output, result.Stats, runErr)
		if err != nil {
			return err
		}
		result.Run = run
	}
	return nil
}

// fail records a failed run in the archive, when one is configured, and
// returns err.
func (s *Scraper) fail(src *source, err error) error {
	if s.opts.ArchiveDir == "" {
		return err
	}
	if _, recErr := s.record(src, nil, nil, err); recErr != nil {
		s.logger.Warn("failed run not archived", "error", recErr)
	}
	return err
}

func (s *Scraper) record(src *source, output []byte, stats *Stats, runErr error) (*archive.RunEntry, error) {
	a, err := archive.OpenOrInit(s.opts.ArchiveDir)
	if err != nil {
		return nil, err
	}
	opts := archive.RecordOptions{
		SourceURL: src.name,
		Source:    src.raw,
		Output:    output,
		Format:    s.opts.Format,
		Err:       runErr,
	}
	if stats != nil {
		opts.Stats = stats
	}
	run, err := a.Record(opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("run archived", "archive", a.Path(), "run", run.ID, "source_cid", run.SourceCID, "output_cid", run.OutputCID)
	return run, nil
}

func (s *Scraper) logGates(report *validate.GateReport) {
	for _, gateResult := range report.Results {
		if gateResult.Skipped {
			continue
		}
		level := slog.LevelInfo
		if !gateResult.Passed {
			level = slog.LevelWarn
		}
		messages := make([]string, 0, len(gateResult.Errors))
		for _, gateError := range gateResult.Errors {
			messages = append(messages, gateError.Message)
		}
		s.logger.Log(context.Background(), level, "quality gate", "gate", gateResult.Gate, "passed", gateResult.Passed, "score", gateResult.Score, "errors", strings.Join(messages, "; "))
	}
}

// StageOf returns the stage of a pipeline error, or "" when err did not
// come from Run.
func StageOf(err error) Stage {
	var stageErr *Error
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
