package validate

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/coolbeans/carta/pkg/extract"
	"github.com/coolbeans/carta/pkg/markup"
)

var _ ValidationGate = (*SourceGate)(nil)
var _ ValidationGate = (*StructureGate)(nil)
var _ ValidationGate = (*SchemaGate)(nil)

func sampleContext(t *testing.T) *ValidationContext {
	t.Helper()
	result := sampleResult(t)
	return &ValidationContext{
		Source: &markup.Document{
			Paragraphs:         sampleParagraphs(),
			PreambleParagraphs: 1,
		},
		Result:    result,
		Document:  extract.Serialize(result.Tree),
		Validator: newTestValidator(t),
		Config:    DefaultValidationConfig(),
	}
}

func TestGatePipelinePasses(t *testing.T) {
	pipeline := NewGatePipeline(nil)
	pipeline.RegisterDefaultGates()

	report := pipeline.Run(sampleContext(t))
	if !report.OverallPass {
		t.Fatalf("expected pass, got:\n%s", report.String())
	}
	if report.GatesPassed != 3 {
		t.Errorf("GatesPassed = %d, want 3", report.GatesPassed)
	}
	if report.TotalScore != 1.0 {
		t.Errorf("TotalScore = %.2f, want 1.0", report.TotalScore)
	}
	if err := report.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestSourceGate(t *testing.T) {
	tests := []struct {
		name         string
		source       *markup.Document
		wantPass     bool
		wantWarnings int
	}{
		{"paragraphs and preamble", &markup.Document{Paragraphs: sampleParagraphs(), PreambleParagraphs: 1}, true, 0},
		{"no preamble", &markup.Document{Paragraphs: sampleParagraphs()}, false, 0},
		{"no source", nil, false, 0},
		{"struck elements", &markup.Document{Paragraphs: sampleParagraphs(), PreambleParagraphs: 1, Struck: 4}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewSourceGate().Run(&ValidationContext{Source: tt.source})
			if result.Passed != tt.wantPass {
				t.Errorf("Passed = %v, want %v (errors %v)", result.Passed, tt.wantPass, result.Errors)
			}
			if len(result.Warnings) != tt.wantWarnings {
				t.Errorf("Warnings = %v, want %d", result.Warnings, tt.wantWarnings)
			}
		})
	}
}

func TestStructureGate(t *testing.T) {
	ctx := sampleContext(t)
	result := NewStructureGate().Run(ctx)
	if !result.Passed {
		t.Fatalf("expected pass, errors: %v", result.Errors)
	}
	for _, metric := range []string{"has_titles", "has_articles", "has_transitional", "content_density", "issue_free"} {
		if result.Metrics[metric] != 1.0 {
			t.Errorf("%s = %.2f, want 1.0", metric, result.Metrics[metric])
		}
	}

	empty := NewStructureGate().Run(&ValidationContext{})
	if empty.Passed {
		t.Error("structure gate should fail without a tree")
	}
}

func TestStructureGateWithoutTransitional(t *testing.T) {
	paragraphs := sampleParagraphs()[:14]
	result, err := extract.Extract(t.Context(), paragraphs, extract.Options{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	gateResult := NewStructureGate().Run(&ValidationContext{Result: result})
	if gateResult.Passed {
		t.Error("structure gate should fail without transitional articles")
	}
	if gateResult.Metrics["has_transitional"] != 0.0 {
		t.Errorf("has_transitional = %.1f, want 0", gateResult.Metrics["has_transitional"])
	}

	config := DefaultValidationConfig()
	config.Thresholds["structure.has_transitional"] = 0.0
	gateResult = NewStructureGate().Run(&ValidationContext{Result: result, Config: config})
	if !gateResult.Passed {
		t.Errorf("threshold override should let the gate pass: %v", gateResult.Errors)
	}
}

func TestSchemaGate(t *testing.T) {
	ctx := sampleContext(t)
	if result := NewSchemaGate().Run(ctx); !result.Passed {
		t.Errorf("schema gate failed: %v", result.Errors)
	}

	broken := extract.NewMapping()
	broken.Set(extract.KeyPreamble, []extract.ContentEntry{})
	ctx.Document = broken
	result := NewSchemaGate().Run(ctx)
	if result.Passed {
		t.Fatal("schema gate should fail for a document without titulos and adct")
	}
	if len(result.Errors) < 2 {
		t.Errorf("Errors = %v, want one per violation", result.Errors)
	}

	precomputed := NewSchemaGate().Run(&ValidationContext{
		SchemaChecked: true,
		SchemaErr:     &SchemaError{Violations: ValidationList{NewValidation(CodeSchemaViolation, "bad", "/")}},
	})
	if precomputed.Passed || len(precomputed.Errors) != 1 {
		t.Errorf("precomputed result = %+v, want one error", precomputed)
	}

	if NewSchemaGate().Run(&ValidationContext{}).Passed {
		t.Error("schema gate should fail with nothing to validate")
	}
}

func TestGatePipelineStrictMode(t *testing.T) {
	ctx := sampleContext(t)
	ctx.Source = &markup.Document{}

	config := DefaultValidationConfig()
	config.StrictMode = true
	pipeline := NewGatePipeline(config)
	pipeline.RegisterDefaultGates()

	report := pipeline.Run(ctx)
	if report.OverallPass {
		t.Fatal("expected failure")
	}
	if report.HaltedAt != "source" {
		t.Errorf("HaltedAt = %q, want source", report.HaltedAt)
	}
	if len(report.Results) != 1 {
		t.Errorf("Results = %d, want 1 (halted)", len(report.Results))
	}
	err := report.Err()
	if !errors.Is(err, ErrGateFailed) || !strings.Contains(err.Error(), "source") {
		t.Errorf("Err() = %v, want ErrGateFailed naming source", err)
	}
}

func TestGatePipelineSkipAndRunGate(t *testing.T) {
	ctx := sampleContext(t)
	ctx.Source = nil

	config := DefaultValidationConfig()
	config.SkipGates = []string{"SOURCE"}
	pipeline := NewGatePipeline(config)
	pipeline.RegisterDefaultGates()

	report := pipeline.Run(ctx)
	if !report.OverallPass {
		t.Fatalf("expected pass with source skipped:\n%s", report.String())
	}
	if report.GatesSkipped != 1 || !report.Results[0].Skipped {
		t.Errorf("GatesSkipped = %d, first result %+v", report.GatesSkipped, report.Results[0])
	}

	if result := pipeline.RunGate("source", ctx); result == nil || !result.Skipped {
		t.Errorf("RunGate(source) = %+v, want skipped", result)
	}
	if result := pipeline.RunGate("schema", ctx); result == nil || !result.Passed {
		t.Errorf("RunGate(schema) = %+v, want pass", result)
	}
	if result := pipeline.RunGate("nope", ctx); result != nil {
		t.Errorf("RunGate(nope) = %+v, want nil", result)
	}
}

func TestGatePipelineFailOnWarn(t *testing.T) {
	ctx := sampleContext(t)
	ctx.Source.Struck = 2

	config := DefaultValidationConfig()
	config.FailOnWarn = true
	pipeline := NewGatePipeline(config)
	pipeline.RegisterDefaultGates()

	report := pipeline.Run(ctx)
	if report.OverallPass || report.HaltedAt != "source" {
		t.Errorf("OverallPass = %v, HaltedAt = %q; want halt at source", report.OverallPass, report.HaltedAt)
	}
	if err := report.Err(); !errors.Is(err, ErrGateFailed) {
		t.Errorf("Err() = %v, want ErrGateFailed", err)
	}
}

func TestGateReportRendering(t *testing.T) {
	ctx := sampleContext(t)
	ctx.Source = &markup.Document{Paragraphs: sampleParagraphs()}
	pipeline := NewGatePipeline(nil)
	pipeline.RegisterDefaultGates()
	report := pipeline.Run(ctx)

	text := report.String()
	for _, want := range []string{"QUALITY GATES  FAIL", "source     FAIL", "schema     PASS", "preamble_present        0.0%", "error   preamble_present (0.0%) below threshold (100.0%)"} {
		if !strings.Contains(text, want) {
			t.Errorf("String() missing %q:\n%s", want, text)
		}
	}

	markdown := report.ToMarkdown()
	for _, want := range []string{"# Quality gates: FAIL", "| source | FAIL |", "## source", `| preamble\_present | 0.0% | 100.0% |`, "- error: preamble\\_present (0.0%) below threshold"} {
		if !strings.Contains(markdown, want) {
			t.Errorf("ToMarkdown() missing %q:\n%s", want, markdown)
		}
	}

	raw, err := report.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("ToJSON() produced invalid JSON: %v", err)
	}
	if decoded["overall_pass"] != false {
		t.Errorf("overall_pass = %v, want false", decoded["overall_pass"])
	}
}
