package gate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cadre-dev/cadre/pkg/types"
)

// RenderJSON serializes a gate report for storage or export
func RenderJSON(report *types.GateReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// RenderMarkdown renders a human-readable gate report
func RenderMarkdown(report *types.GateReport) []byte {
	var buf bytes.Buffer
	m := report.Metrics

	fmt.Fprintf(&buf, "# Gate Report: %s\n\n", report.GateID)
	fmt.Fprintf(&buf, "- Target: %s\n", report.Target)
	fmt.Fprintf(&buf, "- Assessor: %s\n", report.Assessor)
	fmt.Fprintf(&buf, "- Decision: **%s**\n", report.Decision)
	fmt.Fprintf(&buf, "- Evaluated: %s\n\n", report.EvaluatedAt.UTC().Format(time.RFC3339))

	buf.WriteString("## Metrics\n\n")
	fmt.Fprintf(&buf, "| Checks | Passed | Failed | Skipped | Coverage |\n")
	fmt.Fprintf(&buf, "|---|---|---|---|---|\n")
	fmt.Fprintf(&buf, "| %d | %d | %d | %d | %.0f%% |\n\n",
		m.TotalChecks, m.PassedChecks, m.FailedChecks, m.SkippedChecks, m.Coverage*100)
	fmt.Fprintf(&buf, "Scores: overall %.1f, security %.1f, performance %.1f\n\n",
		m.OverallScore, m.SecurityScore, m.PerformanceScore)

	if len(report.Issues) > 0 {
		buf.WriteString("## Issues\n\n")
		for _, issue := range report.Issues {
			fmt.Fprintf(&buf, "- [%s/%s] %s\n", issue.Severity, issue.Category, issue.Title)
		}
		buf.WriteString("\n")
	}

	writeCriteria(&buf, "Passed criteria", report.PassedCriteria)
	writeCriteria(&buf, "Failed criteria", report.FailedCriteria)
	writeCriteria(&buf, "Waived criteria", report.WaivedCriteria)

	if len(report.Recommendations) > 0 {
		buf.WriteString("## Recommendations\n\n")
		for _, rec := range report.Recommendations {
			fmt.Fprintf(&buf, "- %s\n", rec)
		}
		buf.WriteString("\n")
	}
	if report.Notes != "" {
		fmt.Fprintf(&buf, "## Notes\n\n%s\n", report.Notes)
	}
	return buf.Bytes()
}

func writeCriteria(buf *bytes.Buffer, title string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(buf, "## %s\n\n", title)
	for _, id := range ids {
		fmt.Fprintf(buf, "- %s\n", id)
	}
	buf.WriteString("\n")
}
