package validate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coolbeans/carta/pkg/extract"
)

// ErrGateFailed is returned by GateReport.Err when a gate did not pass.
var ErrGateFailed = errors.New("validate: quality gate failed")

// contentDensityMinChars is the shortest article text counted as meaningful.
const contentDensityMinChars = 20

// maxSchemaErrors bounds the violations copied into a gate result.
const maxSchemaErrors = 10

// SourceGate checks the paragraph stream read from the markup.
type SourceGate struct{}

// NewSourceGate creates the source gate.
func NewSourceGate() *SourceGate { return &SourceGate{} }

// Name returns "source".
func (sourceGate *SourceGate) Name() string { return "source" }

// Thresholds returns the default thresholds for the source metrics.
func (sourceGate *SourceGate) Thresholds() map[string]float64 {
	return map[string]float64{
		"has_paragraphs":   1.0,
		"preamble_present": 1.0,
	}
}

// Run checks that the markup yielded paragraphs and a preamble.
func (sourceGate *SourceGate) Run(vc *ValidationContext) *GateResult {
	startTime := time.Now()
	gateResult := newGateResult(sourceGate.Name())

	if vc.Source != nil && len(vc.Source.Paragraphs) > 0 {
		gateResult.Metrics["has_paragraphs"] = 1.0
	} else {
		gateResult.Metrics["has_paragraphs"] = 0.0
	}

	if vc.Source != nil && vc.Source.PreambleParagraphs > 0 {
		gateResult.Metrics["preamble_present"] = 1.0
	} else {
		gateResult.Metrics["preamble_present"] = 0.0
	}

	if vc.Source != nil && vc.Source.Struck > 0 {
		gateResult.Warnings = append(gateResult.Warnings, Finding{
			Metric:  "struck",
			Message: fmt.Sprintf("%d struck-through elements removed", vc.Source.Struck),
			Value:   float64(vc.Source.Struck),
		})
	}

	gateResult.evaluate(vc.Config, sourceGate)
	gateResult.Duration = time.Since(startTime)
	return gateResult
}

// StructureGate checks the shape of the built tree.
type StructureGate struct{}

// NewStructureGate creates the structure gate.
func NewStructureGate() *StructureGate { return &StructureGate{} }

// Name returns "structure".
func (structureGate *StructureGate) Name() string { return "structure" }

// Thresholds returns the default thresholds for the structure metrics.
func (structureGate *StructureGate) Thresholds() map[string]float64 {
	return map[string]float64{
		"has_titles":       1.0,
		"has_articles":     1.0,
		"has_transitional": 1.0,
		"content_density":  0.90,
		"issue_free":       0.95,
	}
}

// Run measures titles, articles, transitional articles, article text
// density and the share of elements built without a warning.
func (structureGate *StructureGate) Run(vc *ValidationContext) *GateResult {
	startTime := time.Now()
	gateResult := newGateResult(structureGate.Name())

	if vc.Result == nil || vc.Result.Tree == nil {
		for metricName := range structureGate.Thresholds() {
			gateResult.Metrics[metricName] = 0.0
		}
		gateResult.evaluate(vc.Config, structureGate)
		gateResult.Duration = time.Since(startTime)
		return gateResult
	}

	tree := vc.Result.Tree
	gateResult.Metrics["has_titles"] = presence(tree.Count(extract.KindTitle))

	var mainArticles, transitionalArticles, denseArticles int
	tree.Walk(func(id extract.NodeID, depth int) bool {
		element := tree.Node(id)
		if element.Kind != extract.KindArticle {
			return true
		}
		if tree.Branch(id) == extract.TransitionalRoot {
			transitionalArticles++
		} else {
			mainArticles++
		}
		length := 0
		for _, entry := range element.Content {
			length += len(entry.Text)
		}
		if length >= contentDensityMinChars {
			denseArticles++
		}
		return true
	})

	gateResult.Metrics["has_articles"] = presence(mainArticles)
	gateResult.Metrics["has_transitional"] = presence(transitionalArticles)
	if total := mainArticles + transitionalArticles; total > 0 {
		gateResult.Metrics["content_density"] = float64(denseArticles) / float64(total)
	} else {
		gateResult.Metrics["content_density"] = 0.0
	}

	gateResult.Metrics["issue_free"] = issueFree(vc.Result.Report)

	gateResult.evaluate(vc.Config, structureGate)
	gateResult.Duration = time.Since(startTime)
	return gateResult
}

// SchemaGate checks the serialized document against the schema.
type SchemaGate struct{}

// NewSchemaGate creates the schema gate.
func NewSchemaGate() *SchemaGate { return &SchemaGate{} }

// Name returns "schema".
func (schemaGate *SchemaGate) Name() string { return "schema" }

// Thresholds returns the default thresholds for the schema metrics.
func (schemaGate *SchemaGate) Thresholds() map[string]float64 {
	return map[string]float64{"schema_valid": 1.0}
}

// Run validates vc.Document unless the outcome is already known.
func (schemaGate *SchemaGate) Run(vc *ValidationContext) *GateResult {
	startTime := time.Now()
	gateResult := newGateResult(schemaGate.Name())

	schemaErr := vc.SchemaErr
	checked := vc.SchemaChecked
	if !checked && vc.Validator != nil && vc.Document != nil {
		schemaErr = vc.Validator.Validate(vc.Document)
		checked = true
	}

	switch {
	case !checked:
		gateResult.Metrics["schema_valid"] = 0.0
		gateResult.Errors = append(gateResult.Errors, Finding{Metric: "schema_valid", Message: "no document to validate"})
	case schemaErr == nil:
		gateResult.Metrics["schema_valid"] = 1.0
	default:
		gateResult.Metrics["schema_valid"] = 0.0
		violations, ok := AsValidations(schemaErr)
		if !ok {
			gateResult.Errors = append(gateResult.Errors, Finding{Metric: "schema_valid", Message: schemaErr.Error()})
			break
		}
		for i, violation := range violations {
			if i == maxSchemaErrors {
				gateResult.Errors = append(gateResult.Errors, Finding{
					Metric:  "schema_valid",
					Message: fmt.Sprintf("%d more violations", len(violations)-maxSchemaErrors),
				})
				break
			}
			gateResult.Errors = append(gateResult.Errors, Finding{Metric: "schema_valid", Message: violation.Error()})
		}
	}

	gateResult.evaluate(vc.Config, schemaGate)
	gateResult.Duration = time.Since(startTime)
	return gateResult
}

// Err returns nil when the report passed, or an error wrapping
// ErrGateFailed that names the failing gates.
func (gateReport *GateReport) Err() error {
	if gateReport.OverallPass {
		return nil
	}
	var failed []string
	for _, gateResult := range gateReport.Results {
		if !gateResult.Skipped && !gateResult.Passed {
			failed = append(failed, gateResult.Gate)
		}
	}
	if len(failed) == 0 && gateReport.HaltedAt != "" {
		return fmt.Errorf("%w: halted on warnings at %s", ErrGateFailed, gateReport.HaltedAt)
	}
	return fmt.Errorf("%w: %s", ErrGateFailed, strings.Join(failed, ", "))
}

func newGateResult(name string) *GateResult {
	return &GateResult{
		Gate:     name,
		Metrics:  make(map[string]float64),
		Warnings: make([]Finding, 0),
		Errors:   make([]Finding, 0),
	}
}

func presence(count int) float64 {
	if count > 0 {
		return 1.0
	}
	return 0.0
}

func issueFree(report *extract.Report) float64 {
	if report == nil {
		return 0.0
	}
	elements := 0
	for _, count := range report.Elements {
		elements += count
	}
	if elements == 0 {
		return 0.0
	}
	score := 1 - float64(report.Warnings())/float64(elements)
	if score < 0 {
		return 0.0
	}
	return score
}
