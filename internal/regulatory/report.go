package regulatory

import (
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/quobo-ops/aecos/internal/fsutil"
	"github.com/quobo-ops/aecos/internal/rules"
)

// ChangeReport is the human-readable record of a regulatory update.
type ChangeReport struct {
	CodeName      string
	OldVersion    string
	NewVersion    string
	Diff          *DiffResult
	Update        *UpdateResult
	Impact        *ImpactReport
	GeneratedAt   time.Time
	ChangeSummary string
}

// ToMarkdown renders the full update report, including a textual diff of
// each modified rule.
func (r *ChangeReport) ToMarkdown() string {
	var b strings.Builder
	b.WriteString("# Regulatory Update Report\n\n")
	fmt.Fprintf(&b, "**Code:** %s\n", r.CodeName)
	if r.OldVersion != "" {
		fmt.Fprintf(&b, "**Old Version:** %s\n", r.OldVersion)
	}
	if r.NewVersion != "" {
		fmt.Fprintf(&b, "**New Version:** %s\n", r.NewVersion)
	}
	fmt.Fprintf(&b, "**Generated:** %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	if r.Update != nil && r.Update.Tag != "" {
		fmt.Fprintf(&b, "**Version Tag:** `%s`\n\n", r.Update.Tag)
	}

	b.WriteString("## Changes Summary\n\n")
	if r.ChangeSummary != "" {
		b.WriteString(r.ChangeSummary + "\n\n")
	} else if r.Diff != nil {
		b.WriteString(r.Diff.Summary() + "\n\n")
	}

	if r.Diff != nil {
		b.WriteString("## Rule Changes\n\n")
		b.WriteString("| Change Type | Count |\n")
		b.WriteString("|-------------|-------|\n")
		fmt.Fprintf(&b, "| Added       | %d |\n", len(r.Diff.Added))
		fmt.Fprintf(&b, "| Modified    | %d |\n", len(r.Diff.Modified))
		fmt.Fprintf(&b, "| Removed     | %d |\n\n", len(r.Diff.Removed))

		if len(r.Diff.Modified) > 0 {
			b.WriteString("## Modified Rule Details\n\n")
			for _, pair := range r.Diff.Modified {
				fmt.Fprintf(&b, "### %s §%s\n\n", pair.New.CodeName, pair.New.Section)
				b.WriteString("```diff\n")
				b.WriteString(renderRuleDiff(pair.Old, pair.New))
				b.WriteString("```\n\n")
			}
		}
	}

	if r.Impact != nil {
		b.WriteString("## Impact Assessment\n\n")
		fmt.Fprintf(&b, "- **Affected Templates:** %d\n", len(r.Impact.AffectedTemplates))
		fmt.Fprintf(&b, "- **Affected Elements:** %d\n\n", len(r.Impact.AffectedElements))
		if r.Impact.TotalAffected > 0 {
			b.WriteString("## Action Required\n\n")
			b.WriteString("- Re-validate affected elements against updated rules\n")
			b.WriteString("- Review templates for compliance with new requirements\n\n")
			for _, name := range r.Impact.RevalidationNeeded {
				fmt.Fprintf(&b, "- `%s`\n", name)
			}
			b.WriteString("\n")
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// renderRuleDiff produces a line-oriented diff between the JSON renderings
// of two rules.
func renderRuleDiff(old, new rules.Rule) string {
	old.ID = 0
	new.ID = 0
	oldText := ruleText(old)
	newText := ruleText(new)

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			out.WriteString(prefix + line + "\n")
		}
	}
	return out.String()
}

func ruleText(r rules.Rule) string {
	data, err := fsutil.EncodeJSON(r)
	if err != nil {
		return fmt.Sprintf("%+v\n", r)
	}
	return string(data)
}
