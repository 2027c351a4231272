package rules

import (
	"fmt"
	"strings"
)

// statusBadge maps a verdict to its display form.
func statusBadge(v Verdict) string {
	switch v {
	case VerdictCompliant:
		return "COMPLIANT"
	case VerdictNonCompliant:
		return "NON-COMPLIANT"
	case VerdictPartial:
		return "PARTIAL"
	default:
		return "UNKNOWN"
	}
}

func statusIcon(s Status) string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusFail:
		return "FAIL"
	case StatusSkip:
		return "SKIP"
	default:
		return "?"
	}
}

// ToMarkdown renders the report as the COMPLIANCE.md document body.
func (r *CheckReport) ToMarkdown() string {
	var b strings.Builder
	id := r.ElementID
	if id == "" {
		id = "Unknown"
	}
	fmt.Fprintf(&b, "# Compliance Report — %s\n\n", id)
	fmt.Fprintf(&b, "**IFC Class:** `%s`\n", r.IFCClass)
	fmt.Fprintf(&b, "**Status:** %s\n", statusBadge(r.Verdict))
	fmt.Fprintf(&b, "**Checked:** %s\n\n", r.CheckedAt.Format("2006-01-02 15:04 UTC"))

	var passes, fails, skips int
	for _, res := range r.Results {
		switch res.Status {
		case StatusPass:
			passes++
		case StatusFail:
			fails++
		default:
			skips++
		}
	}
	fmt.Fprintf(&b, "**Results:** %d passed, %d failed, %d skipped\n\n", passes, fails, skips)

	if len(r.Results) > 0 {
		b.WriteString("## Rule Results\n\n")
		b.WriteString("| Status | Code | Section | Title | Detail |\n")
		b.WriteString("|--------|------|---------|-------|--------|\n")
		for _, res := range r.Results {
			detail := strings.ReplaceAll(res.Message, "|", "\\|")
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				statusIcon(res.Status), res.CodeName, res.Section, res.Title, detail)
		}
		b.WriteString("\n")
	}

	var failures []Result
	for _, res := range r.Results {
		if res.Status == StatusFail {
			failures = append(failures, res)
		}
	}
	if len(failures) > 0 {
		b.WriteString("## Violations\n\n")
		for _, res := range failures {
			fmt.Fprintf(&b, "- **%s %s** — %s\n", res.CodeName, res.Section, res.Title)
			fmt.Fprintf(&b, "  %s\n", res.Message)
			if res.Citation != "" {
				fmt.Fprintf(&b, "  *Citation:* %s\n", res.Citation)
			}
			b.WriteString("\n")
		}
	}

	if len(r.SuggestedFixes) > 0 {
		b.WriteString("## Suggested Fixes\n\n")
		for _, fix := range r.SuggestedFixes {
			fmt.Fprintf(&b, "- %s\n", fix)
		}
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}
