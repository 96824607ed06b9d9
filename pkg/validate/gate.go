package validate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/coolbeans/carta/pkg/extract"
	"github.com/coolbeans/carta/pkg/markup"
)

// defaultThreshold applies to metrics a gate declares no threshold for.
const defaultThreshold = 0.80

// nearMargin is the relative distance above a threshold that still warns.
const nearMargin = 0.10

// ValidationGate is a quality checkpoint of a scrape run. A gate turns what
// the run produced into metrics in [0, 1] and declares the minimum for each.
type ValidationGate interface {
	// Name is the gate identifier used in config keys and reports.
	Name() string

	Run(vc *ValidationContext) *GateResult

	// Thresholds returns the default minimum of each metric.
	Thresholds() map[string]float64
}

// ValidationContext carries the products of a run. Stages that did not run
// leave their fields nil.
type ValidationContext struct {
	// Source is the paragraph stream read from the markup.
	Source     *markup.Document
	SourceSize int

	Result   *extract.Result
	Document *extract.Mapping

	// Validator checks Document unless SchemaChecked is set, in which case
	// SchemaErr is the outcome of an earlier check.
	Validator     *Validator
	SchemaChecked bool
	SchemaErr     error

	Config *ValidationConfig
}

// ValidationConfig tunes gate execution. It is the gates section of the
// configuration file.
type ValidationConfig struct {
	// Thresholds overrides metric minimums, keyed "gate.metric"
	// (for example "structure.content_density").
	Thresholds map[string]float64 `yaml:"thresholds"`

	// SkipGates names gates that are not run.
	SkipGates []string `yaml:"skip"`

	// StrictMode stops at the first failing gate and makes the failure fatal.
	StrictMode bool `yaml:"strict"`

	// FailOnWarn stops at the first gate with a warning and makes it fatal.
	FailOnWarn bool `yaml:"fail_on_warn"`
}

// DefaultValidationConfig returns a config without overrides.
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{Thresholds: make(map[string]float64)}
}

// threshold resolves the minimum for metric of gate: a config override
// first, then the gate default, then defaultThreshold.
func (config *ValidationConfig) threshold(gate ValidationGate, metric string) float64 {
	if config != nil {
		if value, ok := config.Thresholds[gate.Name()+"."+metric]; ok {
			return value
		}
	}
	if value, ok := gate.Thresholds()[metric]; ok {
		return value
	}
	return defaultThreshold
}

func (config *ValidationConfig) skips(gateName string) bool {
	if config == nil {
		return false
	}
	for _, name := range config.SkipGates {
		if strings.EqualFold(name, gateName) {
			return true
		}
	}
	return false
}

// Finding is one warning or error raised by a gate.
type Finding struct {
	Metric    string  `json:"metric"`
	Message   string  `json:"message"`
	Value     float64 `json:"value,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// GateResult is the outcome of one gate.
type GateResult struct {
	Gate       string             `json:"gate"`
	Passed     bool               `json:"passed"`
	Score      float64            `json:"score"`
	Metrics    map[string]float64 `json:"metrics"`
	Warnings   []Finding          `json:"warnings,omitempty"`
	Errors     []Finding          `json:"errors,omitempty"`
	Duration   time.Duration      `json:"duration"`
	Skipped    bool               `json:"skipped,omitempty"`
	SkipReason string             `json:"skip_reason,omitempty"`
}

func skippedResult(gateName string) *GateResult {
	return &GateResult{
		Gate:       gateName,
		Skipped:    true,
		SkipReason: "skipped by configuration",
		Metrics:    make(map[string]float64),
	}
}

// status is the report label of the result.
func (gateResult *GateResult) status() string {
	switch {
	case gateResult.Skipped:
		return "SKIP"
	case gateResult.Passed:
		return "PASS"
	default:
		return "FAIL"
	}
}

// evaluate compares every metric with its threshold. The score is the mean
// metric value; a metric below its threshold fails the gate, and one that
// clears it by less than nearMargin warns unless it is perfect.
func (gateResult *GateResult) evaluate(config *ValidationConfig, gate ValidationGate) {
	gateResult.Passed = true
	if len(gateResult.Metrics) == 0 {
		gateResult.Score = 1.0
		return
	}

	sum := 0.0
	for _, metric := range sortedMetrics(gateResult.Metrics) {
		value := gateResult.Metrics[metric]
		minimum := config.threshold(gate, metric)
		sum += value

		finding := Finding{Metric: metric, Value: value, Threshold: minimum}
		switch {
		case value < minimum:
			gateResult.Passed = false
			finding.Message = fmt.Sprintf("%s (%.1f%%) below threshold (%.1f%%)", metric, value*100, minimum*100)
			gateResult.Errors = append(gateResult.Errors, finding)
		case value < 1 && value < minimum*(1+nearMargin):
			finding.Message = fmt.Sprintf("%s (%.1f%%) close to threshold (%.1f%%)", metric, value*100, minimum*100)
			gateResult.Warnings = append(gateResult.Warnings, finding)
		}
	}
	gateResult.Score = sum / float64(len(gateResult.Metrics))
}

// GateReport collects the results of a pipeline run.
type GateReport struct {
	Results      []*GateResult `json:"results"`
	OverallPass  bool          `json:"overall_pass"`
	TotalScore   float64       `json:"total_score"`
	GatesPassed  int           `json:"gates_passed"`
	GatesFailed  int           `json:"gates_failed"`
	GatesSkipped int           `json:"gates_skipped"`
	Duration     time.Duration `json:"duration"`
	HaltedAt     string        `json:"halted_at,omitempty"`
}

func (gateReport *GateReport) add(gateResult *GateResult) {
	gateReport.Results = append(gateReport.Results, gateResult)
	switch {
	case gateResult.Skipped:
		gateReport.GatesSkipped++
	case gateResult.Passed:
		gateReport.GatesPassed++
	default:
		gateReport.GatesFailed++
		gateReport.OverallPass = false
	}
}

// score sets TotalScore to the mean score of the gates that ran.
func (gateReport *GateReport) score() {
	ran, sum := 0, 0.0
	for _, gateResult := range gateReport.Results {
		if !gateResult.Skipped {
			sum += gateResult.Score
			ran++
		}
	}
	if ran > 0 {
		gateReport.TotalScore = sum / float64(ran)
	}
}

// ToJSON serializes the report as indented JSON.
func (gateReport *GateReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(gateReport, "", "  ")
}

// String renders the report for a terminal: one line per gate, its metrics
// and findings indented below.
func (gateReport *GateReport) String() string {
	var b strings.Builder

	status := "PASS"
	if !gateReport.OverallPass {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "QUALITY GATES  %s  score %.1f%%  (%d passed, %d failed, %d skipped)\n",
		status, gateReport.TotalScore*100, gateReport.GatesPassed, gateReport.GatesFailed, gateReport.GatesSkipped)

	for _, gateResult := range gateReport.Results {
		fmt.Fprintf(&b, "\n%-10s %s", gateResult.Gate, gateResult.status())
		if gateResult.Skipped {
			fmt.Fprintf(&b, "  %s\n", gateResult.SkipReason)
			continue
		}
		fmt.Fprintf(&b, "  %.1f%%  %s\n", gateResult.Score*100, gateResult.Duration.Round(time.Microsecond))
		for _, metric := range sortedMetrics(gateResult.Metrics) {
			fmt.Fprintf(&b, "  %-20s %6.1f%%\n", metric, gateResult.Metrics[metric]*100)
		}
		for _, finding := range gateResult.Errors {
			fmt.Fprintf(&b, "  error   %s\n", finding.Message)
		}
		for _, finding := range gateResult.Warnings {
			fmt.Fprintf(&b, "  warning %s\n", finding.Message)
		}
	}

	if gateReport.HaltedAt != "" {
		fmt.Fprintf(&b, "\nhalted at %s\n", gateReport.HaltedAt)
	}
	return b.String()
}

// GatePipeline runs gates in registration order.
type GatePipeline struct {
	gates  []ValidationGate
	config *ValidationConfig
}

// NewGatePipeline creates an empty pipeline. A nil config uses the defaults.
func NewGatePipeline(config *ValidationConfig) *GatePipeline {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &GatePipeline{config: config}
}

// RegisterGate appends a gate.
func (gatePipeline *GatePipeline) RegisterGate(gate ValidationGate) {
	gatePipeline.gates = append(gatePipeline.gates, gate)
}

// RegisterDefaultGates registers the source, structure and schema gates.
func (gatePipeline *GatePipeline) RegisterDefaultGates() {
	gatePipeline.RegisterGate(NewSourceGate())
	gatePipeline.RegisterGate(NewStructureGate())
	gatePipeline.RegisterGate(NewSchemaGate())
}

// Run executes the gates against vc. Skipped gates are recorded as such.
// In strict mode the run stops after the first failing gate; with
// FailOnWarn it stops after the first gate that warned, and the report
// fails.
func (gatePipeline *GatePipeline) Run(vc *ValidationContext) *GateReport {
	start := time.Now()
	gateReport := &GateReport{
		Results:     make([]*GateResult, 0, len(gatePipeline.gates)),
		OverallPass: true,
	}

	for _, gate := range gatePipeline.gates {
		if gatePipeline.config.skips(gate.Name()) {
			gateReport.add(skippedResult(gate.Name()))
			continue
		}

		gateResult := gate.Run(vc)
		gateReport.add(gateResult)

		if !gateResult.Passed && gatePipeline.config.StrictMode {
			gateReport.HaltedAt = gate.Name()
			break
		}
		if len(gateResult.Warnings) > 0 && gatePipeline.config.FailOnWarn {
			gateReport.OverallPass = false
			gateReport.HaltedAt = gate.Name()
			break
		}
	}

	gateReport.score()
	gateReport.Duration = time.Since(start)
	return gateReport
}

// RunGate executes the named gate alone. It returns a skipped result for a
// gate excluded by configuration and nil for an unknown name.
func (gatePipeline *GatePipeline) RunGate(gateName string, vc *ValidationContext) *GateResult {
	if gatePipeline.config.skips(gateName) {
		return skippedResult(gateName)
	}
	for _, gate := range gatePipeline.gates {
		if gate.Name() == gateName {
			return gate.Run(vc)
		}
	}
	return nil
}

func sortedMetrics(metrics map[string]float64) []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
