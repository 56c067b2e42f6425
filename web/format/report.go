package format

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"

	"contract-analyzer/web/types"
)

// stateBadge maps compliance states to report badges.
var stateBadge = map[string]string{
	"Fully Compliant":     "✅",
	"Partially Compliant": "⚠️",
	"Non-Compliant":       "❌",
}

// BuildReport renders a completed job's results as a markdown compliance
// report.
func BuildReport(job types.Job) string {
	var b strings.Builder

	b.WriteString("# Contract Compliance Report\n\n")
	fmt.Fprintf(&b, "**File:** %s\n\n", job.Filename)
	if job.CompletedAt != nil {
		fmt.Fprintf(&b, "**Analyzed:** %s\n\n", job.CompletedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	if job.Document != nil && job.Document.NeedsOCR() {
		b.WriteString("> **Note:** This document appears to contain little extractable text. " +
			"Results may be incomplete; the file may need OCR.\n\n")
	}

	fmt.Fprintf(&b, "## Summary\n\n%s\n\n", summaryLine(job))

	for i, r := range job.Results {
		badge := stateBadge[r.ComplianceState]
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, r.ComplianceQuestion)
		fmt.Fprintf(&b, "**State:** %s %s  \n", badge, r.ComplianceState)
		fmt.Fprintf(&b, "**Confidence:** %d/100\n\n", r.Confidence)
		fmt.Fprintf(&b, "%s\n\n", r.Rationale)

		if len(r.RelevantQuotes) > 0 {
			b.WriteString("**Supporting quotes:**\n\n")
			for _, q := range r.RelevantQuotes {
				fmt.Fprintf(&b, "> %q (%s)\n\n", q.Text, pageRange(q.PageStart, q.PageEnd))
			}
		}
	}

	return b.String()
}

// MdToHTML converts a markdown report into a standalone HTML page.
func MdToHTML(md string) []byte {
	body := markdown.ToHTML([]byte(md), nil, nil)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<title>Contract Compliance Report</title>\n</head>\n<body>\n")
	b.Write(body)
	b.WriteString("</body>\n</html>\n")
	return []byte(b.String())
}

func summaryLine(job types.Job) string {
	counts := map[string]int{}
	for _, r := range job.Results {
		counts[r.ComplianceState]++
	}
	return fmt.Sprintf("%d of %d requirements fully compliant, %d partially compliant, %d non-compliant.",
		counts["Fully Compliant"], len(job.Results),
		counts["Partially Compliant"], counts["Non-Compliant"])
}

func pageRange(start, end int) string {
	if start <= 0 {
		return "page unknown"
	}
	if start == end {
		return fmt.Sprintf("page %d", start)
	}
	return fmt.Sprintf("pages %d-%d", start, end)
}
