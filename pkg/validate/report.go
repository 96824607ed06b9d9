package validate

import (
	"fmt"
	"strings"
	"time"
)

var markdownEscaper = strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "`", "\\`")

// ToMarkdown renders the report as a Markdown document: an overview table
// with one row per gate, then the metrics and findings of each gate that ran.
func (gateReport *GateReport) ToMarkdown() string {
	var b strings.Builder

	status := "PASS"
	if !gateReport.OverallPass {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "# Quality gates: %s\n\n", status)
	fmt.Fprintf(&b, "Score **%.1f%%** over %d gates: %d passed, %d failed, %d skipped.\n",
		gateReport.TotalScore*100, len(gateReport.Results), gateReport.GatesPassed, gateReport.GatesFailed, gateReport.GatesSkipped)
	if gateReport.HaltedAt != "" {
		fmt.Fprintf(&b, "\nHalted after gate `%s`.\n", gateReport.HaltedAt)
	}

	b.WriteString("\n| Gate | Status | Score | Duration |\n|---|---|---:|---:|\n")
	for _, gateResult := range gateReport.Results {
		if gateResult.Skipped {
			fmt.Fprintf(&b, "| %s | SKIP | | |\n", gateResult.Gate)
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %.1f%% | %s |\n",
			gateResult.Gate, gateResult.status(), gateResult.Score*100, gateResult.Duration.Round(time.Microsecond))
	}

	for _, gateResult := range gateReport.Results {
		if gateResult.Skipped || len(gateResult.Metrics) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", gateResult.Gate)
		writeMetricTable(&b, gateResult)

		for _, finding := range gateResult.Errors {
			fmt.Fprintf(&b, "- error: %s\n", markdownEscaper.Replace(finding.Message))
		}
		for _, finding := range gateResult.Warnings {
			fmt.Fprintf(&b, "- warning: %s\n", markdownEscaper.Replace(finding.Message))
		}
	}
	return b.String()
}

// writeMetricTable lists each metric with the threshold a finding recorded
// for it, if any.
func writeMetricTable(b *strings.Builder, gateResult *GateResult) {
	thresholds := make(map[string]float64)
	for _, finding := range append(gateResult.Errors, gateResult.Warnings...) {
		thresholds[finding.Metric] = finding.Threshold
	}

	b.WriteString("| Metric | Value | Threshold |\n|---|---:|---:|\n")
	for _, metric := range sortedMetrics(gateResult.Metrics) {
		threshold := ""
		if value, ok := thresholds[metric]; ok {
			threshold = fmt.Sprintf("%.1f%%", value*100)
		}
		fmt.Fprintf(b, "| %s | %.1f%% | %s |\n", markdownEscaper.Replace(metric), gateResult.Metrics[metric]*100, threshold)
	}
	b.WriteString("\n")
}
