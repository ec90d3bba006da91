package decision

import (
	"fmt"
	"strings"

	"cate-trust-layer/internal/domain"
)

// Explain lists every triggered or warning factor with its value and threshold.
func Explain(d *domain.RiskDecision) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %s (risk score %.1f, size multiplier %.4f)",
		d.Action, d.AssetID, d.RiskScore, d.SizeMultiplier))

	listed := 0
	for _, f := range d.Factors {
		if f.Severity == domain.SeverityInfo && !f.Triggered {
			continue
		}
		status := "WARNING"
		if f.Triggered {
			status = "TRIGGERED"
		}
		sb.WriteString(fmt.Sprintf("\n- %s %s: value %.4f, threshold %.4f",
			status, f.Name, f.Value, f.Threshold))
		listed++
	}

	if listed == 0 {
		sb.WriteString("\n- all factors within thresholds")
	}

	return sb.String()
}

// RenderMarkdown renders a RiskDecision as a Markdown report.
func RenderMarkdown(d *domain.RiskDecision) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Risk Decision: %s\n\n", d.AssetID))
	sb.WriteString(fmt.Sprintf("## Action: %s\n\n", d.Action))
	sb.WriteString(fmt.Sprintf("- Risk score: %.1f\n", d.RiskScore))
	sb.WriteString(fmt.Sprintf("- Size multiplier: %.4f\n", d.SizeMultiplier))
	sb.WriteString(fmt.Sprintf("- Source: %s\n", d.Source))
	sb.WriteString(fmt.Sprintf("- Timestamp: %d\n\n", d.Timestamp))

	sb.WriteString("## Factors\n\n")
	sb.WriteString("| # | Factor | Value | Threshold | Impact | Severity | Status |\n")
	sb.WriteString("|---|--------|-------|-----------|--------|----------|--------|\n")
	for i, f := range d.Factors {
		statusStr := "OK"
		if f.Triggered {
			statusStr = "TRIGGERED"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %.4f | %.4f | %+.0f | %s | %s |\n",
			i+1, f.Name, f.Value, f.Threshold, f.Impact, f.Severity, statusStr))
	}
	sb.WriteString("\n")

	triggered := d.TriggeredFactors()
	sb.WriteString(fmt.Sprintf("Triggered: %d/%d factors\n\n", len(triggered), len(d.Factors)))

	// Summary
	sb.WriteString("## Summary\n\n")
	if d.Action != domain.ActionBlock {
		sb.WriteString("No hard constraint violated.\n")
	} else {
		sb.WriteString("Decision is BLOCK due to:\n")
		for _, f := range triggered {
			sb.WriteString(fmt.Sprintf("- %s (value: %.4f, threshold: %.4f)\n", f.Name, f.Value, f.Threshold))
		}
	}

	return sb.String()
}
